package scheduler

import (
	"context"
	"sync"
	"time"

	"storescraper/internal/core/job"
	"storescraper/internal/logger"

	"github.com/robfig/cron/v3"
)

// Dispatcher hands a due job to the execution engine. The scheduler never
// runs a job inline; dispatch failures are logged, nothing propagates back
// into the cron callback.
type Dispatcher interface {
	DispatchExecute(ctx context.Context, jobID string) error
}

// Scheduler maintains exactly one recurring trigger per active job
// definition, evaluated in a single fixed timezone.
type Scheduler struct {
	registry   *job.Service
	dispatcher Dispatcher
	loc        *time.Location
	cron       *cron.Cron
	log        *logger.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func New(registry *job.Service, dispatcher Dispatcher, loc *time.Location) *Scheduler {
	return &Scheduler{
		registry:   registry,
		dispatcher: dispatcher,
		loc:        loc,
		cron:       cron.New(cron.WithLocation(loc)),
		log:        logger.New("Scheduler"),
		entries:    make(map[string]cron.EntryID),
	}
}

func (s *Scheduler) Location() *time.Location { return s.loc }

// ComputeNextRun evaluates the pure next-run computation in the scheduler's
// fixed timezone.
func (s *Scheduler) ComputeNextRun(scheduleType job.ScheduleType, scheduleTime string, now time.Time) (time.Time, error) {
	return ComputeNextRun(scheduleType, scheduleTime, now, s.loc)
}

// LoadAndStart installs triggers for every active job definition and starts
// the cron runner. A registry read failure disables scheduling for this
// process but is not fatal: the HTTP surface keeps serving.
func (s *Scheduler) LoadAndStart(ctx context.Context) {
	defs, err := s.registry.ListActive(ctx)
	if err != nil {
		s.log.LogError("failed to load job definitions, scheduling disabled", err)
		s.cron.Start()
		return
	}

	installed := 0
	for _, def := range defs {
		if err := s.Install(def); err != nil {
			s.log.LogErrorf("skipping job %s (%s): %v", def.ID, def.Name, err)
			continue
		}
		installed++
	}
	s.log.LogInfof("installed %d/%d job triggers", installed, len(defs))

	// Pick up retries that were pending when the previous process died.
	now := time.Now()
	for _, def := range defs {
		if def.NextRetryAt != nil && def.NextRetryAt.Before(now) {
			s.log.LogWarnf("job %s has an overdue retry from %s, dispatching now", def.ID, def.NextRetryAt.Format(time.RFC3339))
			if err := s.dispatcher.DispatchExecute(ctx, def.ID); err != nil {
				s.log.LogErrorf("failed to dispatch overdue retry for %s: %v", def.ID, err)
			}
		}
	}

	s.cron.Start()
	s.log.LogSuccess("scheduler started")
}

// Install registers the recurring trigger for a job, replacing any prior
// trigger for the same id so a job never fires twice per occurrence.
func (s *Scheduler) Install(def *job.Definition) error {
	schedule, err := TriggerSchedule(def.ScheduleType, def.ScheduleTime, s.loc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.entries[def.ID]; ok {
		s.cron.Remove(prev)
		delete(s.entries, def.ID)
	}

	jobID := def.ID
	s.entries[def.ID] = s.cron.Schedule(schedule, cron.FuncJob(func() { s.fire(jobID) }))

	s.log.LogInfof("trigger installed for job %s (%s) at %s %s", def.ID, def.Name, def.ScheduleTime, def.ScheduleType)
	return nil
}

// Uninstall cancels a job's live trigger. A job with no trigger is a no-op.
func (s *Scheduler) Uninstall(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, ok := s.entries[jobID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, jobID)
		s.log.LogInfof("trigger removed for job %s", jobID)
	}
}

// HasTrigger reports whether a job currently has a live trigger.
func (s *Scheduler) HasTrigger(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[jobID]
	return ok
}

func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.log.LogInfo("scheduler stopped")
}

// fire is the cron callback. It only dispatches; an error or panic here must
// never take down the recurring trigger.
func (s *Scheduler) fire(jobID string) {
	defer func() {
		if r := recover(); r != nil {
			s.log.LogErrorf("panic recovered in trigger for job %s: %v", jobID, r)
		}
	}()

	s.log.LogInfof("trigger fired for job %s", jobID)
	if err := s.dispatcher.DispatchExecute(context.Background(), jobID); err != nil {
		s.log.LogErrorf("failed to dispatch job %s: %v", jobID, err)
	}
}
