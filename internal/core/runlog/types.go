package runlog

import "time"

// Status is the execution log state machine: running -> completed | failed.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// CategoryStatus is the per-category outcome within one run.
type CategoryStatus string

const (
	CategorySuccess CategoryStatus = "success"
	CategoryFailed  CategoryStatus = "failed"
)

// CategoryOutcome records how one category fared during a run.
type CategoryOutcome struct {
	Path         string         `json:"path"`
	DisplayName  string         `json:"display_name"`
	ProductCount int            `json:"product_count"`
	Status       CategoryStatus `json:"status"`
	Error        string         `json:"error,omitempty"`
}

// ExecutionLog is one row per run attempt. Counters are monotonically
// non-decreasing through the run; the final values reconcile with the sum
// over CategoriesProcessed.
type ExecutionLog struct {
	ID      string `json:"id"`
	JobID   string `json:"job_id"`
	JobName string `json:"job_name"`

	Status      Status     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	DurationSeconds float64 `json:"duration_seconds"`

	TotalProductsScraped int64 `json:"total_products_scraped"`
	ProductsAdded        int64 `json:"products_added"`
	ProductsUpdated      int64 `json:"products_updated"`
	ProductsFailed       int64 `json:"products_failed"`

	CategoriesProcessed []CategoryOutcome `json:"categories_processed"`

	ErrorMessage string `json:"error_message,omitempty"`
}
