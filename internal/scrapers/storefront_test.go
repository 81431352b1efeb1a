package scrapers

import (
	"context"
	"errors"
	"testing"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const categoryPageHTML = `
<html><body>
<ul>
  <li class="product">
    <a href="/products/red-kettle"><h3>Red Kettle</h3></a>
    <span class="price">$34.99</span>
    <img src="https://cdn.example.com/kettle.jpg">
  </li>
  <li class="product">
    <a href="https://www.example.com/products/blue-toaster">Blue Toaster</a>
    <span class="price">1,299.00</span>
  </li>
  <li class="product">
    <a href="/products/red-kettle"><h3>Red Kettle duplicate card</h3></a>
  </li>
  <li class="product">
    <span class="price">no link, skipped</span>
  </li>
</ul>
</body></html>`

func TestExtractCards(t *testing.T) {
	cards, err := extractCards(categoryPageHTML, "https://www.example.com")
	require.NoError(t, err)
	require.Len(t, cards, 2)

	assert.Equal(t, "Red Kettle", cards[0].Title)
	assert.Equal(t, "https://www.example.com/products/red-kettle", cards[0].URL)
	assert.Equal(t, "$34.99", cards[0].Price)
	assert.Equal(t, "https://cdn.example.com/kettle.jpg", cards[0].Image)

	assert.Equal(t, "Blue Toaster", cards[1].Title)
	assert.Equal(t, "https://www.example.com/products/blue-toaster", cards[1].URL)
}

func TestExtractCardsEmptyPage(t *testing.T) {
	cards, err := extractCards("<html><body><p>nothing here</p></body></html>", "https://www.example.com")
	require.NoError(t, err)
	assert.Empty(t, cards)
}

func TestParsePrice(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"$34.99", 34.99},
		{"1,299.00", 1299.00},
		{"USD 5", 5},
		{"", 0},
		{"call for price", 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, parsePrice(tc.in), "input %q", tc.in)
	}
}

func TestStorefrontProcessCard(t *testing.T) {
	unit := NewStorefrontUnit("https://www.example.com", newMemoryMarker())
	stats := NewRunStats()

	p, err := unit.processCard(context.Background(), "kitchen", productCard{
		Title: "Red Kettle",
		URL:   "https://www.example.com/products/red-kettle",
		Price: "$34.99",
		Image: "https://cdn.example.com/kettle.jpg",
	}, stats)
	require.NoError(t, err)
	assert.Equal(t, "red-kettle", p.Handle)
	assert.Equal(t, 34.99, p.Price)

	_, err = unit.processCard(context.Background(), "kitchen", productCard{URL: "https://www.example.com/x"}, stats)
	assert.Error(t, err)

	added, _, failed := stats.Snapshot()
	assert.EqualValues(t, 1, added)
	assert.EqualValues(t, 1, failed)
}

func TestRenderAndExtractRotatesToNextStrategy(t *testing.T) {
	unit := NewStorefrontUnit("https://www.example.com", newMemoryMarker())

	calls := 0
	unit.render = func(_ playwright.Browser, _ string, _ headerProfile) ([]productCard, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("navigation timeout")
		}
		return []productCard{{Title: "Red Kettle", URL: "https://www.example.com/products/red-kettle"}}, nil
	}

	cards, err := unit.renderAndExtract(nil, "https://www.example.com/kitchen?page=1")
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, 2, calls)
}

func TestRenderAndExtractEmptyPageEndsPagination(t *testing.T) {
	unit := NewStorefrontUnit("https://www.example.com", newMemoryMarker())

	// One strategy is blocked, the other renders a legitimately empty page.
	// That is the end of pagination, not a category failure.
	calls := 0
	unit.render = func(_ playwright.Browser, _ string, _ headerProfile) ([]productCard, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("403 blocked")
		}
		return nil, nil
	}

	cards, err := unit.renderAndExtract(nil, "https://www.example.com/kitchen?page=9")
	assert.NoError(t, err)
	assert.Empty(t, cards)
}

func TestRenderAndExtractAllStrategiesFail(t *testing.T) {
	unit := NewStorefrontUnit("https://www.example.com", newMemoryMarker())
	unit.render = func(_ playwright.Browser, _ string, _ headerProfile) ([]productCard, error) {
		return nil, errors.New("connection refused")
	}

	_, err := unit.renderAndExtract(nil, "https://www.example.com/kitchen?page=1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}
