// Package matcher scores target-versus-candidate product pairs. The primary
// path delegates to an AI scorer; any scorer failure or unusable output falls
// back to a deterministic token-overlap heuristic so callers always get a
// result in the same shape.
package matcher

import (
	"context"

	"go.uber.org/zap"

	"github.com/pricehound/pricehound/internal/catalog"
	"github.com/pricehound/pricehound/internal/metrics"
)

// Config holds the matcher tunables.
type Config struct {
	MaxCandidates  int
	FallbackFloor  float64
	DomainKeywords []string
	Brands         []string
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxCandidates:  80,
		FallbackFloor:  0.4,
		DomainKeywords: defaultDomainKeywords,
		Brands:         defaultBrands,
	}
}

// Matcher scores candidates against a target product.
type Matcher struct {
	scorer catalog.Scorer
	cfg    Config
	logger *zap.Logger
}

// New constructs a Matcher. A nil scorer is allowed and routes every call
// straight to the fallback path.
func New(scorer catalog.Scorer, cfg Config, logger *zap.Logger) *Matcher {
	def := DefaultConfig()
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = def.MaxCandidates
	}
	if cfg.FallbackFloor <= 0 {
		cfg.FallbackFloor = def.FallbackFloor
	}
	if cfg.DomainKeywords == nil {
		cfg.DomainKeywords = def.DomainKeywords
	}
	if cfg.Brands == nil {
		cfg.Brands = def.Brands
	}
	return &Matcher{scorer: scorer, cfg: cfg, logger: logger}
}

// Score judges every candidate against the target. Results reference the
// given candidate slice by index; callers cannot tell which path scored them.
func (m *Matcher) Score(ctx context.Context, target catalog.TargetProduct, candidates []catalog.Candidate) []catalog.Match {
	if len(candidates) == 0 {
		return nil
	}
	if len(candidates) > m.cfg.MaxCandidates {
		m.logger.Debug("truncating candidate list",
			zap.Int("candidates", len(candidates)),
			zap.Int("cap", m.cfg.MaxCandidates),
		)
		candidates = candidates[:m.cfg.MaxCandidates]
	}

	if m.scorer != nil {
		matches, err := m.scorer.Score(ctx, target, candidates)
		if err == nil {
			metrics.ObserveScorerPath("primary")
			return m.sanitize(matches, len(candidates))
		}
		m.logger.Warn("primary scorer failed, using fallback",
			zap.String("target", target.Title),
			zap.Error(err),
		)
	}

	metrics.ObserveScorerPath("fallback")
	return m.fallbackCompare(target, candidates)
}

// sanitize drops out-of-range indices, clamps similarities and normalizes
// confidence bands so primary-path output obeys the same contract as the
// fallback.
func (m *Matcher) sanitize(matches []catalog.Match, candidateCount int) []catalog.Match {
	out := matches[:0]
	for _, match := range matches {
		if match.Index < 0 || match.Index >= candidateCount {
			m.logger.Warn("scorer returned out-of-range index", zap.Int("index", match.Index))
			continue
		}
		if match.Similarity < 0 {
			match.Similarity = 0
		}
		if match.Similarity > 1 {
			match.Similarity = 1
		}
		match.Confidence = normalizeConfidence(match.Confidence, match.Similarity)
		out = append(out, match)
	}
	return out
}

func normalizeConfidence(confidence string, similarity float64) string {
	switch confidence {
	case catalog.ConfidenceLow, catalog.ConfidenceMedium, catalog.ConfidenceHigh:
		return confidence
	default:
		return fallbackConfidence(similarity)
	}
}
