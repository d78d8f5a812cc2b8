// Package collyfetcher implements HTML platform fetchers using gocolly.
// Each platform is described by a SiteConfig: a search URL template plus the
// CSS selectors that locate listings on its results page.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/pricehound/pricehound/internal/catalog"
)

// SiteConfig describes one platform's search results page.
type SiteConfig struct {
	// SearchURL is a template with one %s verb for the escaped keyword.
	SearchURL    string
	ItemSelector string
	Title        string
	Price        string
	Link         string
	Image        string
}

// YahooConfig returns the Yahoo Shopping site description.
func YahooConfig() SiteConfig {
	return SiteConfig{
		SearchURL:    "https://tw.buy.yahoo.com/search/product?p=%s",
		ItemSelector: "li[class*=item]",
		Title:        "span[class*=title]",
		Price:        "span[class*=price]",
		Link:         "a",
		Image:        "img",
	}
}

// YahooRushbuyConfig returns the Yahoo flash-sale page description. The
// keyword slot stays in the URL but the page ignores it.
func YahooRushbuyConfig() SiteConfig {
	return SiteConfig{
		SearchURL:    "https://tw.buy.yahoo.com/rushbuy?p=%s",
		ItemSelector: "li[class*=item]",
		Title:        "span[class*=title]",
		Price:        "span[class*=price]",
		Link:         "a",
		Image:        "img",
	}
}

// CarrefourConfig returns the Carrefour online store site description.
func CarrefourConfig() SiteConfig {
	return SiteConfig{
		SearchURL:    "https://online.carrefour.com.tw/search?q=%s",
		ItemSelector: "div[class*=product-item]",
		Title:        "div[class*=name]",
		Price:        "div[class*=price]",
		Link:         "a",
		Image:        "img",
	}
}

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher implements catalog.Fetcher using a Colly collector.
type Fetcher struct {
	site          SiteConfig
	cfg           Config
	baseCollector *colly.Collector
}

// New builds a Fetcher for one site.
func New(site SiteConfig, cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())
	c.IgnoreRobotsTxt = true
	return &Fetcher{
		site:          site,
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch scrapes one results page and applies the request's count and price
// bounds.
func (f *Fetcher) Fetch(ctx context.Context, req catalog.FetchRequest) ([]catalog.ProductCandidate, error) {
	collector := f.baseCollector.Clone()
	collector.IgnoreRobotsTxt = true
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	var (
		mu       sync.Mutex
		out      []catalog.ProductCandidate
		fetchErr error
	)
	collector.OnHTML(f.site.ItemSelector, func(e *colly.HTMLElement) {
		mu.Lock()
		defer mu.Unlock()
		if req.MaxCount > 0 && len(out) >= req.MaxCount {
			return
		}
		title := strings.TrimSpace(e.ChildText(f.site.Title))
		link := e.ChildAttr(f.site.Link, "href")
		if title == "" || link == "" {
			return
		}
		price := catalog.CoercePrice(e.ChildText(f.site.Price))
		if req.MinPrice > 0 && price < req.MinPrice {
			return
		}
		if req.MaxPrice > 0 && price > req.MaxPrice {
			return
		}
		out = append(out, catalog.ProductCandidate{
			Title:    title,
			Price:    price,
			URL:      e.Request.AbsoluteURL(link),
			ImageURL: e.Request.AbsoluteURL(e.ChildAttr(f.site.Image, "src")),
		})
	})
	collector.OnError(func(_ *colly.Response, err error) {
		mu.Lock()
		fetchErr = err
		mu.Unlock()
	})

	searchURL := fmt.Sprintf(f.site.SearchURL, url.QueryEscape(req.Keyword))
	if err := runCollector(ctx, collector, searchURL); err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	if fetchErr != nil {
		return nil, fmt.Errorf("colly response failed: %w", fetchErr)
	}
	return out, nil
}

func runCollector(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
