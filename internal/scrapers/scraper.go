package scrapers

import (
	"context"
	"fmt"
	"strings"

	"storescraper/internal/core/job"
	"storescraper/internal/progress"
)

// Product is one scraped catalog item.
type Product struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Handle      string   `json:"handle"`
	URL         string   `json:"url"`
	Vendor      string   `json:"vendor,omitempty"`
	Price       float64  `json:"price"`
	Description string   `json:"description,omitempty"`
	Images      []string `json:"images,omitempty"`
}

// FailedProduct records one item that could not be scraped.
type FailedProduct struct {
	Handle string `json:"handle"`
	Error  string `json:"error"`
}

// BatchResult is the outcome of scraping one category. A unit returns either
// a flat Items list or Successful/Failed sublists; Count normalizes both.
type BatchResult struct {
	Items      []Product
	Successful []Product
	Failed     []FailedProduct
}

func (r *BatchResult) Count() int {
	if r == nil {
		return 0
	}
	if r.Successful != nil {
		return len(r.Successful)
	}
	return len(r.Items)
}

// ProgressFunc receives zero or more ordered progress notifications from a
// unit before it completes.
type ProgressFunc func(progress.Event)

// Unit is the capability contract every retailer implementation satisfies.
// A unit must report progress at least at start, meaningful milestones, and
// completion or error, and must increment the shared stats per item outcome.
// Any returned error is treated as total category failure by the caller.
type Unit interface {
	Run(ctx context.Context, category string, opts job.ScrapeOptions, concurrency int, onProgress ProgressFunc, stats *RunStats) (*BatchResult, error)
}

// DisplayNameFunc turns a category path into its breadcrumb display name.
type DisplayNameFunc func(categoryPath string) string

// Entry pairs a unit with its display-name function.
type Entry struct {
	Unit        Unit
	DisplayName DisplayNameFunc
}

// Registry maps scraper types to their implementations. Built once at
// startup and handed to the execution engine.
type Registry map[job.ScraperType]Entry

func (r Registry) ForType(t job.ScraperType) (Entry, error) {
	entry, ok := r[t]
	if !ok {
		return Entry{}, fmt.Errorf("no scrape unit registered for type %q", t)
	}
	return entry, nil
}

// Breadcrumb is the default display-name function: "electronics/cell-phones"
// becomes "Electronics > Cell Phones".
func Breadcrumb(categoryPath string) string {
	segments := strings.Split(strings.Trim(categoryPath, "/"), "/")
	for i, seg := range segments {
		words := strings.Split(strings.ReplaceAll(seg, "-", " "), " ")
		for j, w := range words {
			if w == "" {
				continue
			}
			words[j] = strings.ToUpper(w[:1]) + w[1:]
		}
		segments[i] = strings.Join(words, " ")
	}
	return strings.Join(segments, " > ")
}
