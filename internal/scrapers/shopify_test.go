package scrapers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storescraper/internal/core/job"
	"storescraper/internal/progress"
)

type memoryMarker struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemoryMarker(preseeded ...string) *memoryMarker {
	m := &memoryMarker{seen: make(map[string]bool)}
	for _, k := range preseeded {
		m.seen[k] = true
	}
	return m
}

func (m *memoryMarker) MarkSeen(_ context.Context, scope, handle string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := scope + "/" + handle
	known := m.seen[k]
	m.seen[k] = true
	return known, nil
}

// shopifyTestServer serves a fake collection feed with the given number of
// products, paged like the real endpoint.
func shopifyTestServer(t *testing.T, total int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/widgets/products.json" {
			http.NotFound(w, r)
			return
		}
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if page < 1 || limit < 1 {
			http.Error(w, "bad paging", http.StatusBadRequest)
			return
		}

		start := (page - 1) * limit
		var products []map[string]any
		for i := start; i < start+limit && i < total; i++ {
			products = append(products, map[string]any{
				"id":        i + 1,
				"title":     fmt.Sprintf("Widget %d", i+1),
				"handle":    fmt.Sprintf("widget-%d", i+1),
				"body_html": "<p>A <b>fine</b> widget.</p><script>evil()</script>",
				"vendor":    "Acme",
				"variants":  []map[string]any{{"price": "19.99"}},
				"images":    []map[string]any{{"src": "https://cdn.example.com/w.jpg"}},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"products": products})
	}))
}

func discardProgress(progress.Event) {}

func TestShopifyUnitFullMode(t *testing.T) {
	srv := shopifyTestServer(t, 12)
	defer srv.Close()

	unit := NewShopifyUnit(srv.URL, newMemoryMarker())
	stats := NewRunStats()

	res, err := unit.Run(context.Background(), "widgets", job.ScrapeOptions{Mode: job.ModeFull}, 4, discardProgress, stats)
	require.NoError(t, err)
	assert.Equal(t, 12, res.Count())
	assert.Empty(t, res.Failed)

	added, updated, failed := stats.Snapshot()
	assert.EqualValues(t, 12, added)
	assert.EqualValues(t, 0, updated)
	assert.EqualValues(t, 0, failed)

	for _, p := range res.Successful {
		assert.Equal(t, "Acme", p.Vendor)
		assert.Equal(t, 19.99, p.Price)
		assert.Contains(t, p.URL, "/products/widget-")
		assert.Contains(t, p.Description, "fine")
		assert.NotContains(t, p.Description, "script")
		require.Len(t, p.Images, 1)
	}
}

func TestShopifyUnitLimitMode(t *testing.T) {
	srv := shopifyTestServer(t, 40)
	defer srv.Close()

	unit := NewShopifyUnit(srv.URL, newMemoryMarker())
	res, err := unit.Run(context.Background(), "widgets", job.ScrapeOptions{Mode: job.ModeLimit, Limit: 5}, 2, discardProgress, NewRunStats())
	require.NoError(t, err)
	assert.Equal(t, 5, res.Count())
}

func TestShopifyUnitRangeMode(t *testing.T) {
	srv := shopifyTestServer(t, 30)
	defer srv.Close()

	unit := NewShopifyUnit(srv.URL, newMemoryMarker())

	res, err := unit.Run(context.Background(), "widgets", job.ScrapeOptions{Mode: job.ModeRange, StartIndex: 10, EndIndex: 15}, 2, discardProgress, NewRunStats())
	require.NoError(t, err)
	assert.Equal(t, 5, res.Count())

	handles := make(map[string]bool)
	for _, p := range res.Successful {
		handles[p.Handle] = true
	}
	assert.True(t, handles["widget-11"])
	assert.True(t, handles["widget-15"])
	assert.False(t, handles["widget-10"])
	assert.False(t, handles["widget-16"])
}

func TestShopifyUnitInvalidRange(t *testing.T) {
	srv := shopifyTestServer(t, 5)
	defer srv.Close()

	unit := NewShopifyUnit(srv.URL, newMemoryMarker())
	_, err := unit.Run(context.Background(), "widgets", job.ScrapeOptions{Mode: job.ModeRange, StartIndex: 5, EndIndex: 5}, 1, discardProgress, NewRunStats())
	assert.Error(t, err)
}

func TestShopifyUnitSeenItemsCountAsUpdates(t *testing.T) {
	srv := shopifyTestServer(t, 6)
	defer srv.Close()

	marker := newMemoryMarker("shopify:widgets/widget-1", "shopify:widgets/widget-2")
	unit := NewShopifyUnit(srv.URL, marker)
	stats := NewRunStats()

	res, err := unit.Run(context.Background(), "widgets", job.ScrapeOptions{Mode: job.ModeFull}, 3, discardProgress, stats)
	require.NoError(t, err)
	assert.Equal(t, 6, res.Count())

	added, updated, _ := stats.Snapshot()
	assert.EqualValues(t, 4, added)
	assert.EqualValues(t, 2, updated)
}

func TestShopifyUnitUnknownCategory(t *testing.T) {
	srv := shopifyTestServer(t, 5)
	defer srv.Close()

	unit := NewShopifyUnit(srv.URL, newMemoryMarker())
	_, err := unit.Run(context.Background(), "missing", job.ScrapeOptions{Mode: job.ModeFull}, 1, discardProgress, NewRunStats())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
