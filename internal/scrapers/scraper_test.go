package scrapers

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storescraper/internal/core/job"
)

func TestBreadcrumb(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"electronics/cell-phones", "Electronics > Cell Phones"},
		{"home-garden", "Home Garden"},
		{"/toys/", "Toys"},
		{"a/b/c", "A > B > C"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Breadcrumb(tc.in))
	}
}

func TestBatchResultCount(t *testing.T) {
	var nilResult *BatchResult
	assert.Equal(t, 0, nilResult.Count())

	flat := &BatchResult{Items: make([]Product, 7)}
	assert.Equal(t, 7, flat.Count())

	split := &BatchResult{
		Successful: make([]Product, 3),
		Failed:     make([]FailedProduct, 2),
	}
	assert.Equal(t, 3, split.Count())

	// Successful sublist wins even when Items is also set.
	both := &BatchResult{Items: make([]Product, 9), Successful: make([]Product, 4)}
	assert.Equal(t, 4, both.Count())
}

func TestRegistryForType(t *testing.T) {
	r := Registry{
		job.ScraperShopify: {Unit: nil, DisplayName: Breadcrumb},
	}

	entry, err := r.ForType(job.ScraperShopify)
	require.NoError(t, err)
	assert.NotNil(t, entry.DisplayName)

	_, err = r.ForType(job.ScraperStorefront)
	assert.Error(t, err)
}

func TestRunStatsConcurrentIncrements(t *testing.T) {
	stats := NewRunStats()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stats.AddAdded(2)
			stats.AddUpdated(1)
			stats.AddFailed(1)
		}()
	}
	wg.Wait()

	added, updated, failed := stats.Snapshot()
	assert.EqualValues(t, 100, added)
	assert.EqualValues(t, 50, updated)
	assert.EqualValues(t, 50, failed)
}
