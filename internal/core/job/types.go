package job

import (
	"errors"
	"time"
)

// ErrJobNotFound is returned when a job id has no definition in the registry.
var ErrJobNotFound = errors.New("job not found")

// ScraperType selects which scrape unit implementation a job invokes.
type ScraperType string

const (
	ScraperShopify    ScraperType = "shopify"
	ScraperStorefront ScraperType = "storefront"
)

func IsValidScraperType(t ScraperType) bool {
	switch t {
	case ScraperShopify, ScraperStorefront:
		return true
	default:
		return false
	}
}

// ScheduleType is the recurrence pattern of a job.
type ScheduleType string

const (
	ScheduleDaily      ScheduleType = "daily"
	ScheduleEvery3Days ScheduleType = "every_3_days"
	ScheduleWeekly     ScheduleType = "weekly"
)

func IsValidScheduleType(t ScheduleType) bool {
	switch t {
	case ScheduleDaily, ScheduleEvery3Days, ScheduleWeekly:
		return true
	default:
		return false
	}
}

// ScrapeMode bounds how much of a category one run covers.
type ScrapeMode string

const (
	ModeLimit ScrapeMode = "limit"
	ModeRange ScrapeMode = "range"
	ModeFull  ScrapeMode = "full"
)

// ScrapeOptions carries the mode plus its bounds. Limit applies in limit
// mode, StartIndex/EndIndex in range mode; full mode is unbounded.
type ScrapeOptions struct {
	Mode       ScrapeMode `json:"mode"`
	Limit      int        `json:"limit,omitempty"`
	StartIndex int        `json:"start_index,omitempty"`
	EndIndex   int        `json:"end_index,omitempty"`
}

// Definition is one scheduled unit of recurring scrape work.
type Definition struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	ScraperType   ScraperType   `json:"scraper_type"`
	CategoryPaths []string      `json:"category_paths"`
	ScheduleType  ScheduleType  `json:"schedule_type"`
	ScheduleTime  string        `json:"schedule_time"` // HH:MM in the fixed timezone
	ScrapeOptions ScrapeOptions `json:"scrape_options"`
	Concurrency   int           `json:"concurrency"`

	NotifyOnSuccess bool     `json:"notify_on_success"`
	NotifyOnFailure bool     `json:"notify_on_failure"`
	EmailRecipients []string `json:"email_recipients,omitempty"`

	AutoRetry         bool `json:"auto_retry"`
	MaxRetries        int  `json:"max_retries"`
	RetryDelayMinutes int  `json:"retry_delay_minutes"`

	IsActive bool `json:"is_active"`

	// Run bookkeeping, mutated by the execution engine after every run.
	LastRunAt           *time.Time `json:"last_run_at,omitempty"`
	NextRunAt           *time.Time `json:"next_run_at,omitempty"`
	NextRetryAt         *time.Time `json:"next_retry_at,omitempty"`
	TotalRuns           int        `json:"total_runs"`
	ConsecutiveFailures int        `json:"consecutive_failures"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateRequest is the POST /api/cron/jobs payload.
type CreateRequest struct {
	Name          string        `json:"name" validate:"required"`
	ScraperType   ScraperType   `json:"scraper_type" validate:"required,oneof=shopify storefront"`
	CategoryPaths []string      `json:"category_paths"`
	ScheduleType  ScheduleType  `json:"schedule_type" validate:"required,oneof=daily every_3_days weekly"`
	ScheduleTime  string        `json:"schedule_time" validate:"required"`
	ScrapeOptions ScrapeOptions `json:"scrape_options"`
	Concurrency   int           `json:"concurrency" validate:"omitempty,min=1,max=20"`

	NotifyOnSuccess bool     `json:"notify_on_success"`
	NotifyOnFailure bool     `json:"notify_on_failure"`
	EmailRecipients []string `json:"email_recipients" validate:"omitempty,dive,email"`

	AutoRetry         bool `json:"auto_retry"`
	MaxRetries        int  `json:"max_retries" validate:"omitempty,min=0,max=10"`
	RetryDelayMinutes int  `json:"retry_delay_minutes" validate:"omitempty,min=1"`

	IsActive *bool `json:"is_active"`
}

// UpdateRequest is the PUT /api/cron/jobs/:id payload. Nil fields are left
// untouched.
type UpdateRequest struct {
	Name          *string        `json:"name"`
	CategoryPaths *[]string      `json:"category_paths"`
	ScheduleType  *ScheduleType  `json:"schedule_type" validate:"omitempty,oneof=daily every_3_days weekly"`
	ScheduleTime  *string        `json:"schedule_time"`
	ScrapeOptions *ScrapeOptions `json:"scrape_options"`
	Concurrency   *int           `json:"concurrency" validate:"omitempty,min=1,max=20"`

	NotifyOnSuccess *bool     `json:"notify_on_success"`
	NotifyOnFailure *bool     `json:"notify_on_failure"`
	EmailRecipients *[]string `json:"email_recipients" validate:"omitempty,dive,email"`

	AutoRetry         *bool `json:"auto_retry"`
	MaxRetries        *int  `json:"max_retries" validate:"omitempty,min=0,max=10"`
	RetryDelayMinutes *int  `json:"retry_delay_minutes" validate:"omitempty,min=1"`

	IsActive *bool `json:"is_active"`
}

// Definition applies request defaults and returns a fresh definition with
// zeroed bookkeeping fields.
func (r CreateRequest) Definition(id string, now time.Time) *Definition {
	concurrency := r.Concurrency
	if concurrency == 0 {
		concurrency = 5
	}
	mode := r.ScrapeOptions.Mode
	if mode == "" {
		mode = ModeFull
	}
	maxRetries := r.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	retryDelay := r.RetryDelayMinutes
	if retryDelay == 0 {
		retryDelay = 30
	}
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}

	opts := r.ScrapeOptions
	opts.Mode = mode

	return &Definition{
		ID:                id,
		Name:              r.Name,
		ScraperType:       r.ScraperType,
		CategoryPaths:     r.CategoryPaths,
		ScheduleType:      r.ScheduleType,
		ScheduleTime:      r.ScheduleTime,
		ScrapeOptions:     opts,
		Concurrency:       concurrency,
		NotifyOnSuccess:   r.NotifyOnSuccess,
		NotifyOnFailure:   r.NotifyOnFailure,
		EmailRecipients:   r.EmailRecipients,
		AutoRetry:         r.AutoRetry,
		MaxRetries:        maxRetries,
		RetryDelayMinutes: retryDelay,
		IsActive:          active,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}
