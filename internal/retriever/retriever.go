// Package retriever produces comparison candidates for a target product,
// preferring the persisted corpus and falling back to live platform fetches
// when the corpus yield is too small.
package retriever

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/pricehound/pricehound/internal/catalog"
	"github.com/pricehound/pricehound/internal/registry"
)

// Config holds the retrieval tunables. The thresholds were lifted from
// observed behavior of the production corpus and are deliberately not
// hard contracts.
type Config struct {
	NoiseRunes    string
	NoiseTokens   []string
	MinTokenLen   int
	MaxTerms      int
	CorpusCap     int
	ProductsCap   int
	MinViable     int
	LiveCap       int
	MaxCandidates int
	LivePlatforms []string
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		NoiseRunes:    defaultNoiseRunes,
		NoiseTokens:   defaultNoiseTokens,
		MinTokenLen:   2,
		MaxTerms:      3,
		CorpusCap:     50,
		ProductsCap:   30,
		MinViable:     5,
		LiveCap:       30,
		MaxCandidates: 150,
		LivePlatforms: []string{"carrefour", "pchome", "yahoo", "routn"},
	}
}

// Retriever searches the corpus and, when needed, live platforms.
type Retriever struct {
	store    catalog.CorpusStore
	registry *registry.Registry
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Retriever. Zero-valued Config fields fall back to the
// defaults.
func New(store catalog.CorpusStore, reg *registry.Registry, cfg Config, logger *zap.Logger) *Retriever {
	def := DefaultConfig()
	if cfg.NoiseRunes == "" {
		cfg.NoiseRunes = def.NoiseRunes
	}
	if cfg.NoiseTokens == nil {
		cfg.NoiseTokens = def.NoiseTokens
	}
	if cfg.MinTokenLen <= 0 {
		cfg.MinTokenLen = def.MinTokenLen
	}
	if cfg.MaxTerms <= 0 {
		cfg.MaxTerms = def.MaxTerms
	}
	if cfg.CorpusCap <= 0 {
		cfg.CorpusCap = def.CorpusCap
	}
	if cfg.ProductsCap <= 0 {
		cfg.ProductsCap = def.ProductsCap
	}
	if cfg.MinViable <= 0 {
		cfg.MinViable = def.MinViable
	}
	if cfg.LiveCap <= 0 {
		cfg.LiveCap = def.LiveCap
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = def.MaxCandidates
	}
	if cfg.LivePlatforms == nil {
		cfg.LivePlatforms = def.LivePlatforms
	}
	return &Retriever{store: store, registry: reg, cfg: cfg, logger: logger}
}

// GetCandidates returns comparison candidates for the target. The corpus
// tier alone is returned when it meets the minimum viable count; otherwise
// live fetches are merged in. An all-noise title yields an empty list.
func (r *Retriever) GetCandidates(ctx context.Context, target catalog.TargetProduct) ([]catalog.Candidate, error) {
	terms := r.ExtractKeywords(target.Title)
	if len(terms) == 0 {
		r.logger.Debug("title fully consumed by noise stripping", zap.String("title", target.Title))
		return nil, nil
	}

	candidates := r.corpusTier(ctx, terms, target.Platform)
	if len(candidates) >= r.cfg.MinViable {
		r.logger.Debug("corpus tier sufficient",
			zap.Strings("terms", terms),
			zap.Int("candidates", len(candidates)),
		)
		return candidates, nil
	}

	r.logger.Info("corpus yield below minimum, invoking live tier",
		zap.Strings("terms", terms),
		zap.Int("corpus_candidates", len(candidates)),
	)
	candidates = r.liveTier(ctx, terms, candidates)
	if len(candidates) > r.cfg.MaxCandidates {
		candidates = candidates[:r.cfg.MaxCandidates]
	}
	return candidates, nil
}

// corpusTier queries deals first and tops up from session products, deduping
// by URL and excluding the target's own platform.
func (r *Retriever) corpusTier(ctx context.Context, terms []string, excludePlatform string) []catalog.Candidate {
	seen := make(map[string]bool)
	var candidates []catalog.Candidate

	appendUnique := func(found []catalog.Candidate) {
		for _, c := range found {
			if len(candidates) >= r.cfg.CorpusCap {
				return
			}
			if c.URL == "" || seen[c.URL] {
				continue
			}
			seen[c.URL] = true
			candidates = append(candidates, c)
		}
	}

	for _, term := range terms {
		found, err := r.store.SearchDeals(ctx, term, excludePlatform, r.cfg.CorpusCap)
		if err != nil {
			r.logger.Warn("deals corpus search failed", zap.String("term", term), zap.Error(err))
			continue
		}
		appendUnique(found)
	}

	// The session-product corpus is larger but noisier; consult it only
	// when the deals corpus came up short.
	if len(candidates) < r.cfg.MinViable*4 {
		for _, term := range terms {
			found, err := r.store.SearchProducts(ctx, term, excludePlatform, r.cfg.ProductsCap)
			if err != nil {
				r.logger.Warn("products corpus search failed", zap.String("term", term), zap.Error(err))
				continue
			}
			appendUnique(found)
		}
	}
	return candidates
}

// liveTier fetches a small fixed platform set with the derived keyword and
// merges the results into the corpus-tier candidates. Per-platform failures
// are logged and skipped.
func (r *Retriever) liveTier(ctx context.Context, terms []string, candidates []catalog.Candidate) []catalog.Candidate {
	keyword := strings.Join(terms, " ")
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		seen[c.URL] = true
	}

	for _, platform := range r.cfg.LivePlatforms {
		fetcher, err := r.registry.Resolve(platform)
		if err != nil {
			r.logger.Warn("live tier platform unavailable", zap.String("platform", platform), zap.Error(err))
			continue
		}
		found, err := fetcher.Fetch(ctx, catalog.FetchRequest{
			Keyword:  keyword,
			MaxCount: r.cfg.LiveCap,
			MaxPrice: 999999,
		})
		if err != nil {
			r.logger.Warn("live tier fetch failed", zap.String("platform", platform), zap.Error(err))
			continue
		}
		for _, p := range found {
			if p.URL == "" || seen[p.URL] {
				continue
			}
			seen[p.URL] = true
			candidates = append(candidates, catalog.Candidate{
				Title:    p.Title,
				Platform: platform,
				Price:    catalog.CoercePrice(p.Price),
				URL:      p.URL,
				ImageURL: p.ImageURL,
				Source:   catalog.CandidateSourceLive,
			})
		}
	}
	return candidates
}
