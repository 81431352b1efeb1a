package tasks

import (
	"time"

	"storescraper/internal/platform/redis"

	"github.com/hibiken/asynq"
)

const (
	// TaskTypeExecute runs one job through the execution engine. Scheduled
	// fires, manual triggers and retries all go through this task type.
	TaskTypeExecute = "scrape:execute"
)

type Client struct{ c *asynq.Client }

func New(r *redis.Service) *Client { return &Client{c: asynq.NewClient(r.AsynqRedisOpt())} }

func (t *Client) Close() error { return t.c.Close() }

// Enqueue dispatches a task for immediate processing. Engine tasks carry their
// own retry policy, so asynq-level retry is disabled.
func (t *Client) Enqueue(task *asynq.Task, queue string) error {
	_, err := t.c.Enqueue(task, asynq.Queue(queue), asynq.MaxRetry(0))
	return err
}

// EnqueueIn dispatches a task after the given delay. Used for the engine's
// one-shot retry scheduling; the task lives in Redis, so a pending retry
// survives a process restart.
func (t *Client) EnqueueIn(task *asynq.Task, queue string, delay time.Duration) error {
	_, err := t.c.Enqueue(task, asynq.Queue(queue), asynq.MaxRetry(0), asynq.ProcessIn(delay))
	return err
}
