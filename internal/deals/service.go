// Package deals maintains the promotional corpus: flash-sale platforms are
// crawled in the background and their listings replace the previous ones
// per platform.
package deals

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pricehound/pricehound/internal/catalog"
	"github.com/pricehound/pricehound/internal/registry"
)

// Config holds the refresh tunables.
type Config struct {
	FlashPlatforms []string
	MaxPerPlatform int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		FlashPlatforms: []string{"pchome_onsale", "yahoo_rushbuy"},
		MaxPerPlatform: 100,
	}
}

// Service runs deals refreshes. At most one refresh is in flight; its state
// is tracked as a value object so callers always observe a snapshot.
type Service struct {
	registry *registry.Registry
	store    catalog.DealStore
	clock    catalog.Clock
	cfg      Config
	logger   *zap.Logger

	mu      sync.Mutex
	current *catalog.RefreshJob
}

// New constructs a Service. Zero-valued Config fields fall back to defaults.
func New(reg *registry.Registry, store catalog.DealStore, clock catalog.Clock, cfg Config, logger *zap.Logger) *Service {
	def := DefaultConfig()
	if cfg.FlashPlatforms == nil {
		cfg.FlashPlatforms = def.FlashPlatforms
	}
	if cfg.MaxPerPlatform <= 0 {
		cfg.MaxPerPlatform = def.MaxPerPlatform
	}
	return &Service{
		registry: reg,
		store:    store,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
}

// StartRefresh launches a background refresh and returns its job snapshot.
// A second start while one is running returns the running job together with
// catalog.ErrRefreshInProgress.
func (s *Service) StartRefresh(ctx context.Context) (catalog.RefreshJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && s.current.State == catalog.RefreshRunning {
		return *s.current, catalog.ErrRefreshInProgress
	}

	job := catalog.RefreshJob{
		ID:        uuid.NewString(),
		State:     catalog.RefreshRunning,
		StartedAt: s.clock.Now(),
	}
	s.current = &job
	s.logger.Info("deals refresh started", zap.String("job_id", job.ID))

	// The refresh outlives the request that triggered it.
	go s.run(context.WithoutCancel(ctx), job.ID)
	return job, nil
}

// Status returns a snapshot of the most recent job, if any.
func (s *Service) Status() (catalog.RefreshJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return catalog.RefreshJob{}, false
	}
	return *s.current, true
}

// ListDeals exposes the current corpus.
func (s *Service) ListDeals(ctx context.Context) ([]catalog.Deal, error) {
	return s.store.ListDeals(ctx)
}

func (s *Service) run(ctx context.Context, jobID string) {
	var firstErr error
	succeeded := 0

	for _, platform := range s.cfg.FlashPlatforms {
		if err := s.refreshPlatform(ctx, platform); err != nil {
			s.logger.Warn("platform refresh failed",
				zap.String("job_id", jobID),
				zap.String("platform", platform),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		succeeded++
	}

	// A refresh that landed at least one platform keeps the corpus usable
	// and counts as a success.
	state := catalog.RefreshSucceeded
	errText := ""
	if succeeded == 0 {
		state = catalog.RefreshFailed
		if firstErr != nil {
			errText = firstErr.Error()
		}
	}
	s.finish(jobID, state, errText)
}

func (s *Service) refreshPlatform(ctx context.Context, platform string) error {
	fetcher, err := s.registry.Resolve(platform)
	if err != nil {
		return err
	}
	found, err := fetcher.Fetch(ctx, catalog.FetchRequest{MaxCount: s.cfg.MaxPerPlatform})
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}

	now := s.clock.Now()
	deals := make([]catalog.Deal, 0, len(found))
	for _, p := range found {
		if p.URL == "" {
			continue
		}
		deals = append(deals, catalog.Deal{
			Platform:  platform,
			Title:     p.Title,
			Price:     catalog.CoercePrice(p.Price),
			URL:       p.URL,
			ImageURL:  p.ImageURL,
			CrawledAt: now,
		})
	}
	if err := s.store.ReplaceDeals(ctx, platform, deals); err != nil {
		return fmt.Errorf("replace deals: %w", err)
	}
	s.logger.Info("platform deals replaced",
		zap.String("platform", platform),
		zap.Int("count", len(deals)),
	)
	return nil
}

func (s *Service) finish(jobID string, state catalog.RefreshJobState, errText string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.current.ID != jobID {
		return
	}
	now := s.clock.Now()
	s.current.State = state
	s.current.FinishedAt = &now
	s.current.ErrorText = errText
	s.logger.Info("deals refresh finished",
		zap.String("job_id", jobID),
		zap.String("state", string(state)),
	)
}
