package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"storescraper/internal/core/job"
	"storescraper/internal/core/runlog"
	"storescraper/internal/logger"
	"storescraper/internal/platform/tasks"
	"storescraper/internal/progress"
	"storescraper/internal/scrapers"

	"github.com/hibiken/asynq"
)

// TimeoutError marks a run that exceeded the engine's deadline.
type TimeoutError struct {
	Deadline time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("run exceeded the %s deadline", e.Deadline)
}

// JobStore is the slice of the job registry the engine needs.
type JobStore interface {
	Get(ctx context.Context, id string) (*job.Definition, error)
	UpdateBookkeeping(ctx context.Context, id string, fn func(*job.Definition)) (*job.Definition, error)
}

// LogStore is the execution log lifecycle: one Create, any number of
// best-effort Snapshots, exactly one Finalize.
type LogStore interface {
	Create(ctx context.Context, jobID, jobName string) (*runlog.ExecutionLog, error)
	Snapshot(ctx context.Context, entry *runlog.ExecutionLog) error
	Finalize(ctx context.Context, entry *runlog.ExecutionLog) error
}

// Notifier sends the run report emails. Per-recipient failures are handled
// inside the notifier and never fail the run.
type Notifier interface {
	NotifySuccess(ctx context.Context, def *job.Definition, entry *runlog.ExecutionLog) error
	NotifyFailure(ctx context.Context, def *job.Definition, entry *runlog.ExecutionLog) error
}

// TaskQueue dispatches execute tasks, immediately or after a delay.
type TaskQueue interface {
	Enqueue(task *asynq.Task, queue string) error
	EnqueueIn(task *asynq.Task, queue string, delay time.Duration) error
}

type Config struct {
	RunDeadline       time.Duration
	HeartbeatInterval time.Duration
	ChunkSize         int
	Queue             string
}

// Engine runs one job end to end: bounded duration, bounded parallelism,
// periodic durability, exactly-once finalization.
type Engine struct {
	jobs     JobStore
	logs     LogStore
	notifier Notifier
	queue    TaskQueue
	registry scrapers.Registry
	sink     progress.Sink
	nextRun  func(job.ScheduleType, string, time.Time) (time.Time, error)
	cfg      Config
	log      *logger.Logger
}

func New(jobs JobStore, logs LogStore, notifier Notifier, queue TaskQueue, registry scrapers.Registry, sink progress.Sink, nextRun func(job.ScheduleType, string, time.Time) (time.Time, error), cfg Config) *Engine {
	if cfg.ChunkSize < 1 {
		cfg.ChunkSize = 4
	}
	if cfg.RunDeadline <= 0 {
		cfg.RunDeadline = 4 * time.Hour
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 60 * time.Second
	}
	if cfg.Queue == "" {
		cfg.Queue = "default"
	}
	return &Engine{
		jobs:     jobs,
		logs:     logs,
		notifier: notifier,
		queue:    queue,
		registry: registry,
		sink:     sink,
		nextRun:  nextRun,
		cfg:      cfg,
		log:      logger.New("Engine"),
	}
}

type executePayload struct {
	JobID string `json:"job_id"`
}

// DispatchExecute queues a run of the given job. Scheduled fires, manual
// triggers and overdue retries all come through here.
func (e *Engine) DispatchExecute(ctx context.Context, jobID string) error {
	b, err := json.Marshal(executePayload{JobID: jobID})
	if err != nil {
		return err
	}
	return e.queue.Enqueue(asynq.NewTask(tasks.TaskTypeExecute, b), e.cfg.Queue)
}

// HandleExecuteTask is the asynq handler backing DispatchExecute. Run-level
// failures are fully absorbed by Execute (finalized log, retry decision), so
// the task itself never asks asynq for a redelivery.
func (e *Engine) HandleExecuteTask(ctx context.Context, t *asynq.Task) error {
	var p executePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("malformed execute payload: %w", err)
	}
	if err := e.Execute(ctx, p.JobID); err != nil {
		e.log.LogErrorf("run for job %s ended in failure: %v", p.JobID, err)
	}
	return nil
}

// runState collects per-category outcomes behind a mutex so heartbeat
// snapshots can read them while chunks are still settling.
type runState struct {
	mu       sync.Mutex
	outcomes []runlog.CategoryOutcome
}

func (r *runState) append(batch []runlog.CategoryOutcome) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, batch...)
	r.mu.Unlock()
}

func (r *runState) snapshot() []runlog.CategoryOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]runlog.CategoryOutcome, len(r.outcomes))
	copy(out, r.outcomes)
	return out
}

// Execute runs one job to completion. Category failures never fail the run;
// only job-not-found, a deadline hit, or an engine-internal error do.
func (e *Engine) Execute(ctx context.Context, jobID string) error {
	def, err := e.jobs.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			// No log row, no retry.
			e.log.LogErrorf("execute requested for unknown job %s", jobID)
		}
		return err
	}

	entry, err := e.logs.Create(ctx, def.ID, def.Name)
	if err != nil {
		// Proceeding without a log row would leave the run unaccounted for.
		return fmt.Errorf("open execution log for job %s: %w", def.ID, err)
	}

	if def.NextRetryAt != nil {
		if _, err := e.jobs.UpdateBookkeeping(ctx, def.ID, func(d *job.Definition) { d.NextRetryAt = nil }); err != nil {
			e.log.LogWarnf("failed to clear retry marker for job %s: %v", def.ID, err)
		}
	}

	stats := scrapers.NewRunStats()
	state := &runState{}

	unitEntry, err := e.registry.ForType(def.ScraperType)
	if err != nil {
		return e.finishFailure(ctx, def, entry, stats, state, err, nil)
	}

	e.sink.Publish(progress.Event{
		Type:    progress.EventInfo,
		JobID:   def.ID,
		Message: fmt.Sprintf("starting run for %q across %d categories", def.Name, len(def.CategoryPaths)),
		Total:   len(def.CategoryPaths),
	})

	// The deadline is propagated into every unit invocation; abandonment is
	// still cooperative, in-flight work is not force-aborted.
	runCtx, cancel := context.WithTimeout(ctx, e.cfg.RunDeadline)

	hbStop := make(chan struct{})
	var hbDone sync.WaitGroup
	hbDone.Add(1)
	go e.heartbeatLoop(def, entry, stats, state, hbStop, &hbDone)

	stopTimers := func() {
		cancel()
		close(hbStop)
		hbDone.Wait()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		e.processCategories(runCtx, def, unitEntry, stats, state)
	}()

	select {
	case <-done:
		// The work loop may have bailed out mid-run because the context
		// expired; completing with a dead context is never a success.
		if err := runCtx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return e.finishFailure(ctx, def, entry, stats, state, &TimeoutError{Deadline: e.cfg.RunDeadline}, stopTimers)
			}
			return e.finishFailure(ctx, def, entry, stats, state, fmt.Errorf("run aborted: %w", err), stopTimers)
		}
		return e.finishSuccess(ctx, def, entry, stats, state, stopTimers)
	case <-runCtx.Done():
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return e.finishFailure(ctx, def, entry, stats, state, &TimeoutError{Deadline: e.cfg.RunDeadline}, stopTimers)
		}
		return e.finishFailure(ctx, def, entry, stats, state, fmt.Errorf("run aborted: %w", runCtx.Err()), stopTimers)
	}
}

// processCategories partitions the category list into fixed-size chunks,
// runs every category in a chunk concurrently, and waits for the whole chunk
// before starting the next. This caps in-flight category work at the chunk
// size while still overlapping I/O within a chunk.
func (e *Engine) processCategories(ctx context.Context, def *job.Definition, unitEntry scrapers.Entry, stats *scrapers.RunStats, state *runState) {
	paths := def.CategoryPaths
	for start := 0; start < len(paths); start += e.cfg.ChunkSize {
		if ctx.Err() != nil {
			return
		}
		end := start + e.cfg.ChunkSize
		if end > len(paths) {
			end = len(paths)
		}
		chunk := paths[start:end]

		outcomes := make([]runlog.CategoryOutcome, len(chunk))
		var wg sync.WaitGroup
		for i, path := range chunk {
			wg.Add(1)
			go func(i int, path string) {
				defer wg.Done()
				outcomes[i] = e.runCategory(ctx, def, unitEntry, stats, path)
			}(i, path)
		}
		wg.Wait()

		state.append(outcomes)
	}
}

// runCategory invokes the scrape unit for a single category. A unit error or
// panic is recorded in the outcome and absorbed here; sibling categories are
// unaffected.
func (e *Engine) runCategory(ctx context.Context, def *job.Definition, unitEntry scrapers.Entry, stats *scrapers.RunStats, path string) (outcome runlog.CategoryOutcome) {
	outcome = runlog.CategoryOutcome{
		Path:        path,
		DisplayName: unitEntry.DisplayName(path),
	}

	defer func() {
		if r := recover(); r != nil {
			outcome.Status = runlog.CategoryFailed
			outcome.Error = fmt.Sprintf("panic: %v", r)
			e.sink.Publish(progress.Event{
				Type:     progress.EventError,
				JobID:    def.ID,
				Category: path,
				Message:  outcome.Error,
			})
		}
	}()

	e.sink.Publish(progress.Event{
		Type:     progress.EventInfo,
		JobID:    def.ID,
		Category: path,
		Message:  "scraping category " + outcome.DisplayName,
	})

	res, err := unitEntry.Unit.Run(ctx, path, def.ScrapeOptions, def.Concurrency, e.sink.Publish, stats)
	if err != nil {
		outcome.Status = runlog.CategoryFailed
		outcome.Error = err.Error()
		e.sink.Publish(progress.Event{
			Type:     progress.EventError,
			JobID:    def.ID,
			Category: path,
			Message:  fmt.Sprintf("category failed: %v", err),
		})
		return outcome
	}

	outcome.Status = runlog.CategorySuccess
	outcome.ProductCount = res.Count()
	e.sink.Publish(progress.Event{
		Type:     progress.EventSuccess,
		JobID:    def.ID,
		Category: path,
		Message:  fmt.Sprintf("category done, %d products", outcome.ProductCount),
		Current:  outcome.ProductCount,
	})
	return outcome
}

// heartbeatLoop flushes a snapshot of the live counters into the execution
// log on a fixed cadence. Snapshot failures are logged and swallowed; the
// heartbeat is disposable, the finalization write is not.
func (e *Engine) heartbeatLoop(def *job.Definition, entry *runlog.ExecutionLog, stats *scrapers.RunStats, state *runState, stop <-chan struct{}, done *sync.WaitGroup) {
	defer done.Done()
	ticker := time.NewTicker(e.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			added, updated, failed := stats.Snapshot()
			snap := *entry
			snap.ProductsAdded = added
			snap.ProductsUpdated = updated
			snap.ProductsFailed = failed
			snap.TotalProductsScraped = added + updated
			snap.DurationSeconds = time.Since(entry.StartedAt).Seconds()
			snap.CategoriesProcessed = state.snapshot()

			if err := e.logs.Snapshot(context.Background(), &snap); err != nil {
				e.log.LogWarnf("heartbeat snapshot failed for log %s: %v", entry.ID, err)
			}

			e.sink.Publish(progress.Event{
				Type:    progress.EventProgress,
				JobID:   def.ID,
				Message: fmt.Sprintf("run in progress: %d added, %d updated, %d failed", added, updated, failed),
				Current: len(snap.CategoriesProcessed),
				Total:   len(def.CategoryPaths),
			})
		}
	}
}

func (e *Engine) finishSuccess(ctx context.Context, def *job.Definition, entry *runlog.ExecutionLog, stats *scrapers.RunStats, state *runState, stopTimers func()) error {
	stopTimers()

	now := time.Now()
	outcomes := state.snapshot()
	added, updated, failed := stats.Snapshot()

	entry.Status = runlog.StatusCompleted
	entry.CompletedAt = &now
	entry.DurationSeconds = now.Sub(entry.StartedAt).Seconds()
	entry.ProductsAdded = added
	entry.ProductsUpdated = updated
	entry.ProductsFailed = failed
	entry.CategoriesProcessed = outcomes
	entry.TotalProductsScraped = 0
	for _, o := range outcomes {
		entry.TotalProductsScraped += int64(o.ProductCount)
	}

	finalizeErr := e.logs.Finalize(ctx, entry)
	if finalizeErr != nil {
		e.log.LogError(fmt.Sprintf("finalize write failed for log %s, run accounting is inconsistent", entry.ID), finalizeErr)
	}

	if _, err := e.jobs.UpdateBookkeeping(ctx, def.ID, func(d *job.Definition) {
		d.LastRunAt = &now
		d.TotalRuns++
		d.ConsecutiveFailures = 0
		d.NextRetryAt = nil
		if next, err := e.nextRun(d.ScheduleType, d.ScheduleTime, now); err == nil {
			d.NextRunAt = &next
		}
	}); err != nil {
		e.log.LogErrorf("bookkeeping update failed for job %s: %v", def.ID, err)
	}

	e.sink.Publish(progress.Event{
		Type:    progress.EventComplete,
		JobID:   def.ID,
		Message: fmt.Sprintf("run completed: %d products across %d categories in %.0fs", entry.TotalProductsScraped, len(outcomes), entry.DurationSeconds),
	})

	if def.NotifyOnSuccess && len(def.EmailRecipients) > 0 {
		if err := e.notifier.NotifySuccess(ctx, def, entry); err != nil {
			e.log.LogErrorf("success notification failed for job %s: %v", def.ID, err)
		}
	}

	e.log.LogSuccessf("job %s completed: total=%d added=%d updated=%d failed=%d", def.ID, entry.TotalProductsScraped, added, updated, failed)
	if finalizeErr != nil {
		return fmt.Errorf("run completed but log finalization failed: %w", finalizeErr)
	}
	return nil
}

// finishFailure is the single failure exit. When the deadline fired mid-run
// the abandoned work loop is left to drain on its own; the cancelled context
// winds it down and nothing it writes after this point is read.
func (e *Engine) finishFailure(ctx context.Context, def *job.Definition, entry *runlog.ExecutionLog, stats *scrapers.RunStats, state *runState, runErr error, stopTimers func()) error {
	if stopTimers != nil {
		stopTimers()
	}

	now := time.Now()
	outcomes := state.snapshot()
	added, updated, failed := stats.Snapshot()

	entry.Status = runlog.StatusFailed
	entry.CompletedAt = &now
	entry.DurationSeconds = now.Sub(entry.StartedAt).Seconds()
	entry.ProductsAdded = added
	entry.ProductsUpdated = updated
	entry.ProductsFailed = failed
	entry.CategoriesProcessed = outcomes
	entry.TotalProductsScraped = added + updated
	entry.ErrorMessage = runErr.Error()

	if err := e.logs.Finalize(ctx, entry); err != nil {
		e.log.LogError(fmt.Sprintf("finalize write failed for log %s, run accounting is inconsistent", entry.ID), err)
	}

	e.sink.Publish(progress.Event{
		Type:    progress.EventError,
		JobID:   def.ID,
		Message: fmt.Sprintf("run failed: %v", runErr),
	})

	if def.AutoRetry && def.ConsecutiveFailures < def.MaxRetries {
		delay := time.Duration(def.RetryDelayMinutes) * time.Minute
		retryAt := now.Add(delay)
		if err := e.scheduleRetry(ctx, def.ID, delay); err != nil {
			e.log.LogErrorf("failed to schedule retry for job %s: %v", def.ID, err)
		} else {
			if _, err := e.jobs.UpdateBookkeeping(ctx, def.ID, func(d *job.Definition) {
				d.ConsecutiveFailures++
				d.NextRetryAt = &retryAt
			}); err != nil {
				e.log.LogErrorf("retry bookkeeping update failed for job %s: %v", def.ID, err)
			}
			e.sink.Publish(progress.Event{
				Type:    progress.EventWarning,
				JobID:   def.ID,
				Message: fmt.Sprintf("retry %d/%d scheduled in %d minutes", def.ConsecutiveFailures+1, def.MaxRetries, def.RetryDelayMinutes),
			})
		}
	} else if def.NotifyOnFailure && len(def.EmailRecipients) > 0 {
		if err := e.notifier.NotifyFailure(ctx, def, entry); err != nil {
			e.log.LogErrorf("failure notification failed for job %s: %v", def.ID, err)
		}
	}

	e.log.LogErrorf("job %s failed after %.0fs: %v", def.ID, entry.DurationSeconds, runErr)
	return runErr
}

func (e *Engine) scheduleRetry(ctx context.Context, jobID string, delay time.Duration) error {
	b, err := json.Marshal(executePayload{JobID: jobID})
	if err != nil {
		return err
	}
	return e.queue.EnqueueIn(asynq.NewTask(tasks.TaskTypeExecute, b), e.cfg.Queue, delay)
}
