// Package comparison serves similarity results for a target product,
// preferring persisted judgments and computing, persisting and returning
// fresh ones on a miss.
package comparison

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/pricehound/pricehound/internal/catalog"
	"github.com/pricehound/pricehound/internal/matcher"
	"github.com/pricehound/pricehound/internal/metrics"
	"github.com/pricehound/pricehound/internal/retriever"
)

// Config holds the acceptance threshold for persisted matches.
type Config struct {
	AcceptThreshold float64
}

// DefaultConfig returns the production default.
func DefaultConfig() Config {
	return Config{AcceptThreshold: 0.70}
}

// Service is the comparison cache pipeline.
type Service struct {
	store     catalog.ComparisonStore
	deals     catalog.DealStore
	retriever *retriever.Retriever
	matcher   *matcher.Matcher
	clock     catalog.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Service.
func New(
	store catalog.ComparisonStore,
	deals catalog.DealStore,
	ret *retriever.Retriever,
	m *matcher.Matcher,
	clock catalog.Clock,
	cfg Config,
	logger *zap.Logger,
) *Service {
	if cfg.AcceptThreshold <= 0 {
		cfg.AcceptThreshold = DefaultConfig().AcceptThreshold
	}
	return &Service{
		store:     store,
		deals:     deals,
		retriever: ret,
		matcher:   m,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Lookup returns persisted matches for a target identified by title,
// platform and price. The boolean reports whether the cache had anything;
// a target with no matching deal row or no entries is a miss, not an error.
func (s *Service) Lookup(ctx context.Context, title, platform string, price int64) (catalog.MatchResult, bool, error) {
	target := catalog.TargetProduct{Title: title, Platform: platform, Price: price}

	deal, err := s.store.FindDeal(ctx, title, platform, price)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return catalog.MatchResult{}, false, nil
		}
		return catalog.MatchResult{}, false, fmt.Errorf("find deal: %w", err)
	}

	cached, err := s.store.CachedMatches(ctx, deal.ID)
	if err != nil {
		return catalog.MatchResult{}, false, fmt.Errorf("cached matches: %w", err)
	}
	if len(cached) == 0 {
		return catalog.MatchResult{}, false, nil
	}

	return catalog.MatchResult{
		Target:          target,
		SimilarProducts: cached,
		TotalCandidates: len(cached),
		TotalMatches:    len(cached),
		Source:          catalog.MatchSourceCache,
	}, true, nil
}

// Resolve serves a match result for the target: cache first, then the
// retrieve-score-persist pipeline. Accepted realtime matches are written
// back so a later Resolve for the same target is a cache hit.
func (s *Service) Resolve(ctx context.Context, target catalog.TargetProduct) (catalog.MatchResult, error) {
	result, hit, err := s.Lookup(ctx, target.Title, target.Platform, target.Price)
	if err != nil {
		return catalog.MatchResult{}, err
	}
	if hit {
		metrics.ObserveComparisonLookup("hit")
		s.logger.Debug("comparison served from cache",
			zap.String("target", target.Title),
			zap.Int("matches", len(result.SimilarProducts)),
		)
		return result, nil
	}
	metrics.ObserveComparisonLookup("miss")

	candidates, err := s.retriever.GetCandidates(ctx, target)
	if err != nil {
		return catalog.MatchResult{}, fmt.Errorf("get candidates: %w", err)
	}
	if len(candidates) == 0 {
		return catalog.MatchResult{
			Target: target,
			Source: catalog.MatchSourceRealtime,
		}, nil
	}

	matches := s.matcher.Score(ctx, target, candidates)
	accepted := s.accept(matches, candidates)

	// Write-back is keyed by the target's deal row. A target that is not a
	// known deal still gets a realtime answer; it just cannot be cached.
	if deal, err := s.store.FindDeal(ctx, target.Title, target.Platform, target.Price); err == nil {
		if err := s.persistMatches(ctx, deal.ID, accepted); err != nil {
			return catalog.MatchResult{}, err
		}
	} else if !errors.Is(err, catalog.ErrNotFound) {
		return catalog.MatchResult{}, fmt.Errorf("find deal for write-back: %w", err)
	}

	return catalog.MatchResult{
		Target:          target,
		SimilarProducts: accepted,
		TotalCandidates: len(candidates),
		TotalMatches:    len(matches),
		Source:          catalog.MatchSourceRealtime,
	}, nil
}

// RebuildAll clears every cache entry and recomputes matches for each known
// deal. Returns the number of deals processed. Per-deal scoring problems are
// logged and skipped; store failures abort the rebuild.
func (s *Service) RebuildAll(ctx context.Context) (int, error) {
	if err := s.store.ClearComparisonCache(ctx); err != nil {
		return 0, fmt.Errorf("clear comparison cache: %w", err)
	}

	deals, err := s.deals.ListDeals(ctx)
	if err != nil {
		return 0, fmt.Errorf("list deals: %w", err)
	}
	s.logger.Info("rebuilding comparison cache", zap.Int("deals", len(deals)))

	processed := 0
	for _, deal := range deals {
		target := catalog.TargetProduct{Title: deal.Title, Platform: deal.Platform, Price: deal.Price}
		candidates, err := s.retriever.GetCandidates(ctx, target)
		if err != nil {
			s.logger.Warn("candidate retrieval failed during rebuild",
				zap.Int64("deal_id", deal.ID),
				zap.Error(err),
			)
			continue
		}
		if len(candidates) == 0 {
			continue
		}
		accepted := s.accept(s.matcher.Score(ctx, target, candidates), candidates)
		if err := s.persistMatches(ctx, deal.ID, accepted); err != nil {
			return processed, err
		}
		processed++
	}
	s.logger.Info("comparison cache rebuilt", zap.Int("processed", processed))
	return processed, nil
}

// accept filters matches to the acceptance threshold and joins them with
// their candidates, highest similarity first.
func (s *Service) accept(matches []catalog.Match, candidates []catalog.Candidate) []catalog.SimilarProduct {
	var out []catalog.SimilarProduct
	for _, match := range matches {
		if match.Similarity < s.cfg.AcceptThreshold {
			continue
		}
		if match.Index < 0 || match.Index >= len(candidates) {
			continue
		}
		out = append(out, catalog.SimilarProduct{
			Candidate:  candidates[match.Index],
			Similarity: match.Similarity,
			Reason:     match.Reason,
			Confidence: match.Confidence,
			Category:   match.Category,
		})
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Similarity > out[b].Similarity
	})
	return out
}

// persistMatches files each accepted candidate in the comparison corpus and
// writes the cache entries for the target.
func (s *Service) persistMatches(ctx context.Context, targetID int64, accepted []catalog.SimilarProduct) error {
	if len(accepted) == 0 {
		return nil
	}
	entries := make([]catalog.CacheEntry, 0, len(accepted))
	for _, sp := range accepted {
		candidateID, err := s.store.UpsertComparisonProduct(ctx, sp.Candidate)
		if err != nil {
			return fmt.Errorf("upsert comparison product: %w", err)
		}
		entries = append(entries, catalog.CacheEntry{
			TargetID:    targetID,
			CandidateID: candidateID,
			Similarity:  sp.Similarity,
			Reason:      sp.Reason,
			Confidence:  sp.Confidence,
			Category:    sp.Category,
			CachedAt:    s.clock.Now(),
		})
	}
	if err := s.store.InsertCacheEntries(ctx, entries); err != nil {
		return fmt.Errorf("insert cache entries: %w", err)
	}
	return nil
}
