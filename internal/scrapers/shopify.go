package scrapers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"storescraper/internal/core/job"
	"storescraper/internal/logger"
	"storescraper/internal/progress"
	"storescraper/internal/utils/markdown"
)

const (
	shopifyPageSize           = 250
	progressMilestone         = 25
	defaultShopifyHTTPTimeout = 30 * time.Second
)

// shopifyProduct mirrors the subset of the products.json payload we keep.
type shopifyProduct struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Handle   string `json:"handle"`
	BodyHTML string `json:"body_html"`
	Vendor   string `json:"vendor"`
	Images   []struct {
		Src string `json:"src"`
	} `json:"images"`
	Variants []struct {
		Price string `json:"price"`
	} `json:"variants"`
}

type shopifyPage struct {
	Products []shopifyProduct `json:"products"`
}

// ShopifyUnit scrapes a store's public collection feed. Shopify serves full
// product data as JSON, so no rendering is involved; one request per page of
// up to 250 items.
type ShopifyUnit struct {
	baseURL string
	client  *http.Client
	marker  SeenMarker
	log     *logger.Logger
}

func NewShopifyUnit(baseURL string, marker SeenMarker) *ShopifyUnit {
	return &ShopifyUnit{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultShopifyHTTPTimeout},
		marker:  marker,
		log:     logger.New("ShopifyUnit"),
	}
}

func (u *ShopifyUnit) Run(ctx context.Context, category string, opts job.ScrapeOptions, concurrency int, onProgress ProgressFunc, stats *RunStats) (*BatchResult, error) {
	raw, err := u.fetchCategory(ctx, category, opts)
	if err != nil {
		return nil, err
	}

	onProgress(progress.Event{
		Type:     progress.EventInfo,
		Category: category,
		Message:  fmt.Sprintf("fetched %d products from %s", len(raw), category),
		Total:    len(raw),
	})

	if concurrency < 1 {
		concurrency = 1
	}

	result := &BatchResult{
		Successful: make([]Product, 0, len(raw)),
		Failed:     []FailedProduct{},
	}

	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		processed int
	)
	sem := make(chan struct{}, concurrency)

	for _, rp := range raw {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(rp shopifyProduct) {
			defer wg.Done()
			defer func() { <-sem }()

			p, err := u.processProduct(ctx, category, rp, stats)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed = append(result.Failed, FailedProduct{Handle: rp.Handle, Error: err.Error()})
			} else {
				result.Successful = append(result.Successful, p)
			}
			processed++
			if processed%progressMilestone == 0 {
				onProgress(progress.Event{
					Type:     progress.EventProgress,
					Category: category,
					Message:  fmt.Sprintf("processed %d/%d products", processed, len(raw)),
					Current:  processed,
					Total:    len(raw),
				})
			}
		}(rp)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("category %s interrupted: %w", category, err)
	}

	onProgress(progress.Event{
		Type:     progress.EventSuccess,
		Category: category,
		Message:  fmt.Sprintf("category %s complete: %d ok, %d failed", category, len(result.Successful), len(result.Failed)),
		Current:  len(result.Successful),
		Total:    len(raw),
	})
	return result, nil
}

// fetchCategory pages through the collection feed until the feed ends or the
// scrape mode's bound is reached, then applies the bound exactly.
func (u *ShopifyUnit) fetchCategory(ctx context.Context, category string, opts job.ScrapeOptions) ([]shopifyProduct, error) {
	want := -1
	switch opts.Mode {
	case job.ModeLimit:
		want = opts.Limit
	case job.ModeRange:
		if opts.EndIndex <= opts.StartIndex {
			return nil, fmt.Errorf("invalid range [%d, %d) for category %s", opts.StartIndex, opts.EndIndex, category)
		}
		want = opts.EndIndex
	}

	var all []shopifyProduct
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch, err := u.fetchPage(ctx, category, page)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		all = append(all, batch...)
		if want >= 0 && len(all) >= want {
			break
		}
		if len(batch) < shopifyPageSize {
			break
		}
	}

	switch opts.Mode {
	case job.ModeLimit:
		if len(all) > opts.Limit {
			all = all[:opts.Limit]
		}
	case job.ModeRange:
		if opts.StartIndex >= len(all) {
			return nil, nil
		}
		end := opts.EndIndex
		if end > len(all) {
			end = len(all)
		}
		all = all[opts.StartIndex:end]
	}
	return all, nil
}

func (u *ShopifyUnit) fetchPage(ctx context.Context, category string, page int) ([]shopifyProduct, error) {
	url := fmt.Sprintf("%s/collections/%s/products.json?limit=%d&page=%d", u.baseURL, category, shopifyPageSize, page)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s page %d: %w", category, page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("category %s not found (404)", category)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s page %d: status %d", category, page, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 20<<20))
	if err != nil {
		return nil, err
	}
	var parsed shopifyPage
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse %s page %d: %w", category, page, err)
	}
	return parsed.Products, nil
}

func (u *ShopifyUnit) processProduct(ctx context.Context, category string, rp shopifyProduct, stats *RunStats) (Product, error) {
	if rp.Handle == "" {
		stats.AddFailed(1)
		return Product{}, fmt.Errorf("product %d has no handle", rp.ID)
	}

	p := Product{
		ID:          strconv.FormatInt(rp.ID, 10),
		Title:       rp.Title,
		Handle:      rp.Handle,
		URL:         fmt.Sprintf("%s/products/%s", u.baseURL, rp.Handle),
		Vendor:      rp.Vendor,
		Description: markdown.FromProductHTML(rp.BodyHTML),
	}
	if len(rp.Variants) > 0 {
		if price, err := strconv.ParseFloat(rp.Variants[0].Price, 64); err == nil {
			p.Price = price
		}
	}
	for _, img := range rp.Images {
		p.Images = append(p.Images, img.Src)
	}

	known, err := u.marker.MarkSeen(ctx, "shopify:"+category, rp.Handle)
	if err != nil {
		// The item itself was scraped fine; count it as an add and move on.
		u.log.LogWarnf("seen-marker lookup failed for %s: %v", rp.Handle, err)
		known = false
	}
	if known {
		stats.AddUpdated(1)
	} else {
		stats.AddAdded(1)
	}
	return p, nil
}
