package notify

import (
	"context"
	"testing"
	"time"

	"storescraper/internal/config"
	"storescraper/internal/core/job"
	"storescraper/internal/core/runlog"

	"github.com/stretchr/testify/assert"
)

func TestBuildReport(t *testing.T) {
	started := time.Date(2026, time.March, 10, 2, 0, 0, 0, time.UTC)
	finished := started.Add(42 * time.Minute)

	def := &job.Definition{ID: "job-1", Name: "nightly sweep"}
	entry := &runlog.ExecutionLog{
		Status:               runlog.StatusCompleted,
		StartedAt:            started,
		CompletedAt:          &finished,
		DurationSeconds:      2520,
		TotalProductsScraped: 150,
		ProductsAdded:        100,
		ProductsUpdated:      50,
		ProductsFailed:       3,
		CategoriesProcessed: []runlog.CategoryOutcome{
			{Path: "kitchen", DisplayName: "Kitchen", ProductCount: 90, Status: runlog.CategorySuccess},
			{Path: "garden", DisplayName: "Garden", Status: runlog.CategoryFailed, Error: "category page returned 500"},
		},
	}

	report := buildReport(def, entry)

	assert.Contains(t, report, "nightly sweep")
	assert.Contains(t, report, "completed")
	assert.Contains(t, report, "Products scraped: 150")
	assert.Contains(t, report, "added:   100")
	assert.Contains(t, report, "[ok]")
	assert.Contains(t, report, "Kitchen")
	assert.Contains(t, report, "[fail]")
	assert.Contains(t, report, "category page returned 500")
}

func TestBuildReportFailure(t *testing.T) {
	def := &job.Definition{ID: "job-1", Name: "nightly sweep"}
	entry := &runlog.ExecutionLog{
		Status:       runlog.StatusFailed,
		StartedAt:    time.Now(),
		ErrorMessage: "run exceeded the 4h0m0s deadline",
	}

	report := buildReport(def, entry)
	assert.Contains(t, report, "failed")
	assert.Contains(t, report, "Error: run exceeded the 4h0m0s deadline")
}

func TestUnconfiguredMailerSkipsSending(t *testing.T) {
	m := NewMailer(config.Config{})
	assert.False(t, m.Configured())

	def := &job.Definition{ID: "job-1", Name: "sweep", EmailRecipients: []string{"ops@example.com"}}
	entry := &runlog.ExecutionLog{Status: runlog.StatusCompleted, StartedAt: time.Now()}

	// No SMTP host configured: notification is a logged no-op, never an error.
	assert.NoError(t, m.NotifySuccess(context.Background(), def, entry))
	assert.NoError(t, m.NotifyFailure(context.Background(), def, entry))
}
