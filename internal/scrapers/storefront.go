package scrapers

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"storescraper/internal/core/job"
	"storescraper/internal/logger"
	"storescraper/internal/progress"

	"github.com/PuerkitoBio/goquery"
	"github.com/playwright-community/playwright-go"
)

// productCard is one listing extracted from a rendered category page.
type productCard struct {
	Title string
	URL   string
	Price string
	Image string
}

// StorefrontUnit scrapes retailers whose category pages are rendered
// client-side. Each run launches one headless browser, walks the category's
// pagination, and extracts product cards from the settled DOM with goquery.
type StorefrontUnit struct {
	baseURL string
	marker  SeenMarker
	log     *logger.Logger

	// render loads one page under one header profile. Split out so the
	// strategy rotation can be tested without a live browser.
	render func(browser playwright.Browser, url string, profile headerProfile) ([]productCard, error)
}

func NewStorefrontUnit(baseURL string, marker SeenMarker) *StorefrontUnit {
	u := &StorefrontUnit{
		baseURL: baseURL,
		marker:  marker,
		log:     logger.New("StorefrontUnit"),
	}
	u.render = u.renderOnce
	return u
}

func (u *StorefrontUnit) Run(ctx context.Context, category string, opts job.ScrapeOptions, concurrency int, onProgress ProgressFunc, stats *RunStats) (*BatchResult, error) {
	onProgress(progress.Event{
		Type:     progress.EventInfo,
		Category: category,
		Message:  "rendering category " + category,
	})

	cards, err := u.collectCards(ctx, category, opts)
	if err != nil {
		return nil, err
	}

	onProgress(progress.Event{
		Type:     progress.EventInfo,
		Category: category,
		Message:  fmt.Sprintf("extracted %d product cards from %s", len(cards), category),
		Total:    len(cards),
	})

	if concurrency < 1 {
		concurrency = 1
	}

	result := &BatchResult{
		Successful: make([]Product, 0, len(cards)),
		Failed:     []FailedProduct{},
	}

	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		processed int
	)
	sem := make(chan struct{}, concurrency)

	for _, card := range cards {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(card productCard) {
			defer wg.Done()
			defer func() { <-sem }()

			p, err := u.processCard(ctx, category, card, stats)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed = append(result.Failed, FailedProduct{Handle: card.URL, Error: err.Error()})
			} else {
				result.Successful = append(result.Successful, p)
			}
			processed++
			if processed%progressMilestone == 0 {
				onProgress(progress.Event{
					Type:     progress.EventProgress,
					Category: category,
					Message:  fmt.Sprintf("processed %d/%d products", processed, len(cards)),
					Current:  processed,
					Total:    len(cards),
				})
			}
		}(card)
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
		Total:    len(cards),
	})
	return result, nil
}

// collectCards renders the category's pages and extracts cards, rotating
// header strategies when a page yields nothing. A retailer that blocks the
// desktop profile often serves the mobile one.
func (u *StorefrontUnit) collectCards(ctx context.Context, category string, opts job.ScrapeOptions) ([]productCard, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("playwright initialization failed: %w", err)
	}
	defer pw.Stop()

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
		Args: []string{
			"--no-sandbox",
			"--disable-dev-shm-usage",
			"--disable-gpu",
			"--disable-web-security",
			"--disable-features=VizDisplayCompositor",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("browser launch failed: %w", err)
	}
	defer browser.Close()

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

	var all []productCard
	for pageNum := 1; ; pageNum++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		url := fmt.Sprintf("%s/%s?page=%d", u.baseURL, strings.Trim(category, "/"), pageNum)
		cards, err := u.renderAndExtract(browser, url)
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", url, err)
		}
		if len(cards) == 0 {
			break
		}
		all = append(all, cards...)
		if want >= 0 && len(all) >= want {
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

// renderAndExtract loads one page under each header strategy in turn and
// returns the first non-empty card set. An empty final result is not an
// error; it is how pagination ends.
func (u *StorefrontUnit) renderAndExtract(browser playwright.Browser, url string) ([]productCard, error) {
	var lastErr error
	sawEmpty := false
	for _, strategy := range allStrategies() {
		profile := profileFor(strategy)

		cards, err := u.render(browser, url, profile)
		if err != nil {
			lastErr = err
			u.log.LogWarnf("strategy %s failed for %s: %v", strategy, url, err)
			continue
		}
		if len(cards) > 0 {
			return cards, nil
		}
		sawEmpty = true
	}
	if sawEmpty {
		// At least one profile rendered the page and found no cards. That is
		// the end of pagination, not a failure, even if another profile errored.
		return nil, nil
	}
	return nil, lastErr
}

func (u *StorefrontUnit) renderOnce(browser playwright.Browser, url string, profile headerProfile) ([]productCard, error) {
	opts := playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(profile.UserAgent),
		ExtraHttpHeaders: map[string]string{
			"Accept":          profile.Accept,
			"Accept-Language": profile.AcceptLanguage,
		},
	}
	if profile.Mobile {
		opts.Viewport = &playwright.Size{Width: 375, Height: 667}
		opts.IsMobile = playwright.Bool(true)
		opts.HasTouch = playwright.Bool(true)
	} else {
		opts.Viewport = &playwright.Size{Width: 1920, Height: 1080}
	}

	bctx, err := browser.NewContext(opts)
	if err != nil {
		return nil, err
	}
	defer bctx.Close()

	page, err := bctx.NewPage()
	if err != nil {
		return nil, err
	}

	if _, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(45000),
	}); err != nil {
		return nil, err
	}

	html, err := page.Content()
	if err != nil {
		return nil, err
	}
	return extractCards(html, u.baseURL)
}

var cardSelectors = strings.Join([]string{
	"[data-product-id]",
	".product-card",
	".product-item",
	".product-tile",
	"li.product",
}, ", ")

var priceRe = regexp.MustCompile(`[\d,]+(?:\.\d{1,2})?`)

// extractCards pulls product listings out of a rendered category page.
func extractCards(html, baseURL string) ([]productCard, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var cards []productCard
	seen := make(map[string]bool)
	doc.Find(cardSelectors).Each(func(_ int, sel *goquery.Selection) {
		link := sel.Find("a[href]").First()
		href, ok := link.Attr("href")
		if !ok || href == "" {
			return
		}
		if strings.HasPrefix(href, "/") {
			href = baseURL + href
		}
		if seen[href] {
			return
		}
		seen[href] = true

		title := strings.TrimSpace(sel.Find(".product-title, .product-name, h2, h3").First().Text())
		if title == "" {
			title = strings.TrimSpace(link.Text())
		}
		price := strings.TrimSpace(sel.Find(".price, .product-price, [data-price]").First().Text())
		img, _ := sel.Find("img").First().Attr("src")

		cards = append(cards, productCard{Title: title, URL: href, Price: price, Image: img})
	})
	return cards, nil
}

func (u *StorefrontUnit) processCard(ctx context.Context, category string, card productCard, stats *RunStats) (Product, error) {
	if card.URL == "" || card.Title == "" {
		stats.AddFailed(1)
		return Product{}, fmt.Errorf("incomplete product card %q", card.URL)
	}

	handle := card.URL
	if i := strings.LastIndex(strings.TrimRight(card.URL, "/"), "/"); i >= 0 {
		handle = strings.TrimRight(card.URL, "/")[i+1:]
	}

	p := Product{
		ID:     handle,
		Title:  card.Title,
		Handle: handle,
		URL:    card.URL,
		Price:  parsePrice(card.Price),
	}
	if card.Image != "" {
		p.Images = []string{card.Image}
	}

	known, err := u.marker.MarkSeen(ctx, "storefront:"+category, handle)
	if err != nil {
		u.log.LogWarnf("seen-marker lookup failed for %s: %v", handle, err)
		known = false
	}
	if known {
		stats.AddUpdated(1)
	} else {
		stats.AddAdded(1)
	}
	return p, nil
}

func parsePrice(raw string) float64 {
	m := priceRe.FindString(raw)
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil {
		return 0
	}
	return v
}
