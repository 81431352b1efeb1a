// Package worker wires asynq task handlers into a servable mux.
package worker

import (
	"context"

	"github.com/hibiken/asynq"

	"storescraper/internal/logger"
)

// Mux collects the task handlers the run queue serves. Registration is kept
// in one place so boot logs show exactly which task types got wired.
type Mux struct {
	mux *asynq.ServeMux
	log *logger.Logger
}

func NewMux() *Mux {
	return &Mux{
		mux: asynq.NewServeMux(),
		log: logger.New("Worker"),
	}
}

// HandleFunc binds a task type to its handler.
func (m *Mux) HandleFunc(taskType string, h func(ctx context.Context, task *asynq.Task) error) {
	m.mux.HandleFunc(taskType, h)
	m.log.LogInfof("handler registered for task type %s", taskType)
}

// Mux exposes the underlying asynq mux for the worker server.
func (m *Mux) Mux() *asynq.ServeMux { return m.mux }
