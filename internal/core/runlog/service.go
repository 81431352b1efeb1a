package runlog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"storescraper/internal/logger"
	rds "storescraper/internal/platform/redis"

	"github.com/google/uuid"
)

// historyLimit caps the retained run history per job.
const historyLimit = 100

func key(id string) string            { return "cronlog:" + id }
func jobIndexKey(jobID string) string { return "cronlogs:" + jobID }

// Service is the Redis-backed execution log store. Writes for a given log id
// are serialized through a per-log mutex so a heartbeat snapshot still in
// flight can never overwrite a newer finalization.
type Service struct {
	redis *rds.Service
	log   *logger.Logger

	mu      sync.Mutex
	writers map[string]*sync.Mutex
}

func NewService(redis *rds.Service) *Service {
	return &Service{
		redis:   redis,
		log:     logger.New("RunLog"),
		writers: make(map[string]*sync.Mutex),
	}
}

func (s *Service) writerFor(logID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.writers[logID]
	if !ok {
		w = &sync.Mutex{}
		s.writers[logID] = w
	}
	return w
}

func (s *Service) release(logID string) {
	s.mu.Lock()
	delete(s.writers, logID)
	s.mu.Unlock()
}

// Create opens a new running log row for a run attempt.
func (s *Service) Create(ctx context.Context, jobID, jobName string) (*ExecutionLog, error) {
	entry := &ExecutionLog{
		ID:                  uuid.New().String(),
		JobID:               jobID,
		JobName:             jobName,
		Status:              StatusRunning,
		StartedAt:           time.Now(),
		CategoriesProcessed: []CategoryOutcome{},
	}
	if err := s.write(ctx, entry); err != nil {
		return nil, fmt.Errorf("create execution log: %w", err)
	}

	pipe := s.redis.Client().TxPipeline()
	pipe.LPush(ctx, jobIndexKey(jobID), entry.ID)
	pipe.LTrim(ctx, jobIndexKey(jobID), 0, historyLimit-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("index execution log: %w", err)
	}
	return entry, nil
}

// Snapshot upserts the current in-memory state of a running log. Heartbeat
// writes are best-effort; callers log and swallow the error.
func (s *Service) Snapshot(ctx context.Context, entry *ExecutionLog) error {
	w := s.writerFor(entry.ID)
	w.Lock()
	defer w.Unlock()

	// The finalization write is authoritative; once the stored row left the
	// running state a late heartbeat must not touch it.
	var stored ExecutionLog
	if err := s.redis.GetJSON(ctx, key(entry.ID), &stored); err == nil && stored.Status != StatusRunning {
		return nil
	}
	return s.write(ctx, entry)
}

// Finalize writes the terminal state of a run. Exactly one finalization
// happens per run; the engine guarantees the success and failure paths are
// mutually exclusive.
func (s *Service) Finalize(ctx context.Context, entry *ExecutionLog) error {
	w := s.writerFor(entry.ID)
	w.Lock()
	err := s.write(ctx, entry)
	w.Unlock()
	s.release(entry.ID)
	if err != nil {
		return fmt.Errorf("finalize execution log %s: %w", entry.ID, err)
	}
	return nil
}

func (s *Service) write(ctx context.Context, entry *ExecutionLog) error {
	return s.redis.SetJSON(ctx, key(entry.ID), entry, 0)
}

func (s *Service) Get(ctx context.Context, id string) (*ExecutionLog, error) {
	var entry ExecutionLog
	if err := s.redis.GetJSON(ctx, key(id), &entry); err != nil {
		return nil, fmt.Errorf("load execution log %s: %w", id, err)
	}
	return &entry, nil
}

// ListByJob returns a job's run history, newest first.
func (s *Service) ListByJob(ctx context.Context, jobID string, limit int) ([]*ExecutionLog, error) {
	if limit <= 0 || limit > historyLimit {
		limit = historyLimit
	}
	ids, err := s.redis.Client().LRange(ctx, jobIndexKey(jobID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list execution logs for %s: %w", jobID, err)
	}
	entries := make([]*ExecutionLog, 0, len(ids))
	for _, id := range ids {
		entry, err := s.Get(ctx, id)
		if err != nil {
			s.log.LogWarnf("skipping unreadable execution log %s: %v", id, err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Purge removes a job's run history. Called when the job itself is deleted.
func (s *Service) Purge(ctx context.Context, jobID string) error {
	ids, err := s.redis.Client().LRange(ctx, jobIndexKey(jobID), 0, -1).Result()
	if err != nil {
		return err
	}
	for _, id := range ids {
		_ = s.redis.Client().Del(ctx, key(id)).Err()
	}
	return s.redis.Client().Del(ctx, jobIndexKey(jobID)).Err()
}
