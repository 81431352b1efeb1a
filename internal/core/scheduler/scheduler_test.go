package scheduler

import (
	"context"
	"sync"
	"testing"

	"storescraper/internal/core/job"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDispatcher struct {
	mu       sync.Mutex
	jobIDs   []string
	panicked bool
}

func (d *recordingDispatcher) DispatchExecute(_ context.Context, jobID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.panicked {
		panic("dispatcher blew up")
	}
	d.jobIDs = append(d.jobIDs, jobID)
	return nil
}

func testScheduler(d Dispatcher) *Scheduler {
	return New(nil, d, testLoc)
}

func TestInstallAndUninstall(t *testing.T) {
	s := testScheduler(&recordingDispatcher{})
	def := &job.Definition{ID: "job-1", Name: "sweep", ScheduleType: job.ScheduleDaily, ScheduleTime: "02:00"}

	require.NoError(t, s.Install(def))
	assert.True(t, s.HasTrigger("job-1"))

	s.Uninstall("job-1")
	assert.False(t, s.HasTrigger("job-1"))

	// Uninstalling an absent trigger is a no-op.
	s.Uninstall("job-1")
}

func TestInstallReplacesPriorTrigger(t *testing.T) {
	s := testScheduler(&recordingDispatcher{})
	def := &job.Definition{ID: "job-1", Name: "sweep", ScheduleType: job.ScheduleDaily, ScheduleTime: "02:00"}

	require.NoError(t, s.Install(def))
	first := s.entries["job-1"]

	def.ScheduleTime = "03:30"
	require.NoError(t, s.Install(def))
	second := s.entries["job-1"]

	assert.NotEqual(t, first, second)
	assert.Len(t, s.entries, 1)
}

func TestInstallRejectsInvalidSchedule(t *testing.T) {
	s := testScheduler(&recordingDispatcher{})
	def := &job.Definition{ID: "job-1", Name: "sweep", ScheduleType: job.ScheduleDaily, ScheduleTime: "9am"}

	err := s.Install(def)
	require.Error(t, err)
	var invalid *InvalidScheduleError
	assert.ErrorAs(t, err, &invalid)
	assert.False(t, s.HasTrigger("job-1"))
}

func TestFireDispatchesJob(t *testing.T) {
	d := &recordingDispatcher{}
	s := testScheduler(d)

	s.fire("job-1")

	d.mu.Lock()
	defer d.mu.Unlock()
	require.Len(t, d.jobIDs, 1)
	assert.Equal(t, "job-1", d.jobIDs[0])
}

func TestFireContainsDispatcherPanic(t *testing.T) {
	d := &recordingDispatcher{panicked: true}
	s := testScheduler(d)

	assert.NotPanics(t, func() { s.fire("job-1") })
}
