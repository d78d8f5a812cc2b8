// Package headless fetches script-rendered platforms with headless Chrome.
// Listings are extracted in the page itself: a small script built from the
// site's CSS selectors returns them as JSON.
package headless

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/pricehound/pricehound/internal/catalog"
)

// SiteConfig describes a rendered search results page.
type SiteConfig struct {
	// SearchURL is a template with one %s verb for the escaped keyword.
	SearchURL    string
	ItemSelector string
	Title        string
	Price        string
	Link         string
	Image        string
}

// RoutnConfig returns the routn.com site description.
func RoutnConfig() SiteConfig {
	return SiteConfig{
		SearchURL:    "https://www.routn.com/search?keyword=%s",
		ItemSelector: "div.product-card",
		Title:        ".product-card__title",
		Price:        ".product-card__price",
		Link:         "a",
		Image:        "img",
	}
}

// Config controls the headless fetcher.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
}

// Fetcher implements catalog.Fetcher using chromedp and headless Chrome.
type Fetcher struct {
	site        SiteConfig
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// New creates a headless fetcher backed by chromedp.
func New(site SiteConfig, cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		site:        site,
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context.
func (f *Fetcher) Close() {
	f.allocCancel()
}

type extractedItem struct {
	Title string `json:"title"`
	Price string `json:"price"`
	URL   string `json:"url"`
	Image string `json:"image"`
}

// Fetch renders the search page and extracts listings in the browser.
func (f *Fetcher) Fetch(ctx context.Context, req catalog.FetchRequest) ([]catalog.ProductCandidate, error) {
	if err := f.acquire(ctx); err != nil {
		return nil, err
	}
	defer f.release()

	taskCtx, taskCancel := chromedp.NewContext(f.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, f.cfg.NavigationTimeout)
	defer cancel()

	searchURL := fmt.Sprintf(f.site.SearchURL, url.QueryEscape(req.Keyword))
	var items []extractedItem
	actions := []chromedp.Action{
		f.networkSetupAction(),
		chromedp.Navigate(searchURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.Evaluate(buildExtractScript(f.site), &items),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return nil, fmt.Errorf("chromedp run: %w", err)
	}

	var out []catalog.ProductCandidate
	for _, item := range items {
		if req.MaxCount > 0 && len(out) >= req.MaxCount {
			break
		}
		if item.Title == "" || item.URL == "" {
			continue
		}
		price := catalog.CoercePrice(item.Price)
		if req.MinPrice > 0 && price < req.MinPrice {
			continue
		}
		if req.MaxPrice > 0 && price > req.MaxPrice {
			continue
		}
		out = append(out, catalog.ProductCandidate{
			Title:    item.Title,
			Price:    price,
			URL:      item.URL,
			ImageURL: item.Image,
		})
	}
	return out, nil
}

func (f *Fetcher) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// buildExtractScript produces the in-page expression collecting listings.
// Selectors come from configuration, not user input.
func buildExtractScript(site SiteConfig) string {
	return fmt.Sprintf(`Array.from(document.querySelectorAll(%q)).map(function(item) {
	var text = function(sel) {
		var el = item.querySelector(sel);
		return el ? el.textContent.trim() : "";
	};
	var attr = function(sel, name) {
		var el = item.querySelector(sel);
		return el ? (el[name] || el.getAttribute(name) || "") : "";
	};
	return {
		title: text(%q),
		price: text(%q),
		url: attr(%q, "href"),
		image: attr(%q, "src")
	};
})`, site.ItemSelector, site.Title, site.Price, site.Link, site.Image)
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	select {
	case f.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.limiter == nil {
		return
	}
	select {
	case <-f.limiter:
	default:
	}
}
