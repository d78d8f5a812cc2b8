// Package pchome fetches listings from the PChome search and onsale JSON
// endpoints. No HTML scraping is involved; the platform exposes plain JSON.
package pchome

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pricehound/pricehound/internal/catalog"
)

// Config controls the HTTP client and endpoints.
type Config struct {
	SearchBaseURL string
	OnsaleBaseURL string
	ProductPrefix string
	UserAgent     string
	Timeout       time.Duration
}

// DefaultConfig returns the production endpoints.
func DefaultConfig() Config {
	return Config{
		SearchBaseURL: "https://ecshweb.pchome.com.tw/search/v3.3/all/results",
		OnsaleBaseURL: "https://ecapi.pchome.com.tw/ecshop/prodapi/v2/onsale/prod",
		ProductPrefix: "https://24h.pchome.com.tw/prod/",
		Timeout:       15 * time.Second,
	}
}

// Fetcher implements catalog.Fetcher against the search endpoint.
type Fetcher struct {
	cfg    Config
	client *http.Client
}

// New builds a search Fetcher. Zero-valued Config fields fall back to
// defaults.
func New(cfg Config) *Fetcher {
	def := DefaultConfig()
	if cfg.SearchBaseURL == "" {
		cfg.SearchBaseURL = def.SearchBaseURL
	}
	if cfg.OnsaleBaseURL == "" {
		cfg.OnsaleBaseURL = def.OnsaleBaseURL
	}
	if cfg.ProductPrefix == "" {
		cfg.ProductPrefix = def.ProductPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Fetcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type searchResponse struct {
	Prods []struct {
		ID    string  `json:"Id"`
		Name  string  `json:"name"`
		Price float64 `json:"price"`
		PicB  string  `json:"picB"`
	} `json:"prods"`
}

// Fetch queries the search endpoint for the keyword and applies the count
// and price bounds of the request.
func (f *Fetcher) Fetch(ctx context.Context, req catalog.FetchRequest) ([]catalog.ProductCandidate, error) {
	q := url.Values{}
	q.Set("q", req.Keyword)
	q.Set("page", "1")
	q.Set("sort", "sale/dc")

	var decoded searchResponse
	if err := f.getJSON(ctx, f.cfg.SearchBaseURL+"?"+q.Encode(), &decoded); err != nil {
		return nil, err
	}

	var out []catalog.ProductCandidate
	for _, prod := range decoded.Prods {
		if req.MaxCount > 0 && len(out) >= req.MaxCount {
			break
		}
		price := int64(prod.Price)
		if req.MinPrice > 0 && price < req.MinPrice {
			continue
		}
		if req.MaxPrice > 0 && price > req.MaxPrice {
			continue
		}
		out = append(out, catalog.ProductCandidate{
			Title:    prod.Name,
			Price:    price,
			URL:      f.cfg.ProductPrefix + prod.ID,
			ImageURL: absoluteImage(prod.PicB),
		})
	}
	return out, nil
}

// OnsaleFetcher implements catalog.Fetcher against the flash-sale endpoint.
type OnsaleFetcher struct {
	inner *Fetcher
}

// NewOnsale builds a flash-sale Fetcher sharing the search fetcher's client
// settings.
func NewOnsale(cfg Config) *OnsaleFetcher {
	return &OnsaleFetcher{inner: New(cfg)}
}

type onsaleResponse struct {
	Prods []struct {
		ID    string  `json:"Id"`
		Name  string  `json:"Name"`
		Price struct {
			P float64 `json:"P"`
		} `json:"Price"`
		Pic struct {
			B string `json:"B"`
		} `json:"Pic"`
	} `json:"Prods"`
}

// Fetch returns the current flash-sale listings. The keyword is ignored;
// onsale is a fixed page.
func (f *OnsaleFetcher) Fetch(ctx context.Context, req catalog.FetchRequest) ([]catalog.ProductCandidate, error) {
	var decoded onsaleResponse
	if err := f.inner.getJSON(ctx, f.inner.cfg.OnsaleBaseURL, &decoded); err != nil {
		return nil, err
	}

	var out []catalog.ProductCandidate
	for _, prod := range decoded.Prods {
		if req.MaxCount > 0 && len(out) >= req.MaxCount {
			break
		}
		out = append(out, catalog.ProductCandidate{
			Title:    prod.Name,
			Price:    int64(prod.Price.P),
			URL:      f.inner.cfg.ProductPrefix + prod.ID,
			ImageURL: absoluteImage(prod.Pic.B),
		})
	}
	return out, nil
}

func (f *Fetcher) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create pchome request: %w", err)
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("pchome request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("pchome status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode pchome response: %w", err)
	}
	return nil
}

func absoluteImage(pic string) string {
	if pic == "" || strings.HasPrefix(pic, "http") {
		return pic
	}
	return "https://cs-a.ecimg.tw" + pic
}
