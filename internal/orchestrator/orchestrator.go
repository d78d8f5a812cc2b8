// Package orchestrator drives concurrent platform fetches for one keyword
// request and commits the aggregated results as an immutable session batch.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pricehound/pricehound/internal/catalog"
	"github.com/pricehound/pricehound/internal/metrics"
	"github.com/pricehound/pricehound/internal/registry"
)

// Config controls Orchestrator side channels. Snapshot archiving and event
// publishing are skipped when their targets are unset.
type Config struct {
	SnapshotPrefix      string
	SnapshotContentType string
	Topic               string
}

// BatchRequest describes one crawl batch.
type BatchRequest struct {
	Keyword        string
	Platforms      []string
	MaxPerPlatform int
	MinPrice       int64
	MaxPrice       int64
}

// Orchestrator fans one worker per platform out over the registry and
// reduces their outcomes into a committed session.
type Orchestrator struct {
	registry  *registry.Registry
	store     catalog.SessionStore
	blobs     catalog.BlobStore
	publisher catalog.Publisher
	hasher    catalog.Hasher
	clock     catalog.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs an Orchestrator. Blob store, publisher and hasher are
// optional; registry, store and clock are required.
func New(
	reg *registry.Registry,
	store catalog.SessionStore,
	blobs catalog.BlobStore,
	publisher catalog.Publisher,
	hasher catalog.Hasher,
	clock catalog.Clock,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.SnapshotContentType == "" {
		cfg.SnapshotContentType = "application/json"
	}
	return &Orchestrator{
		registry:  reg,
		store:     store,
		blobs:     blobs,
		publisher: publisher,
		hasher:    hasher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// RunBatch executes every requested platform's fetcher concurrently, waits
// for all of them, classifies the overall outcome and commits the batch.
// Individual fetch failures are recorded in the session status; only a
// store-commit failure is returned as an error.
func (o *Orchestrator) RunBatch(ctx context.Context, req BatchRequest) (catalog.Session, error) {
	if err := o.validate(req); err != nil {
		return catalog.Session{}, err
	}

	// Resolve everything up front so an unknown platform rejects the whole
	// request before any worker launches.
	fetchers := make([]catalog.Fetcher, len(req.Platforms))
	for i, platform := range req.Platforms {
		fetcher, err := o.registry.Resolve(platform)
		if err != nil {
			return catalog.Session{}, err
		}
		fetchers[i] = fetcher
	}

	o.logger.Info("starting batch",
		zap.String("keyword", req.Keyword),
		zap.Strings("platforms", req.Platforms),
	)

	outcomes := make([]catalog.FetchOutcome, len(req.Platforms))
	var wg sync.WaitGroup
	for i := range req.Platforms {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			outcomes[idx] = o.runUnit(ctx, req.Platforms[idx], fetchers[idx], req)
		}(i)
	}
	wg.Wait()

	session := catalog.Session{
		Keyword:   req.Keyword,
		Platforms: req.Platforms,
		CreatedAt: o.clock.Now(),
		Status:    classify(outcomes),
	}
	products := o.flatten(outcomes)

	committed, err := o.store.CommitBatch(ctx, session, products)
	if err != nil {
		return catalog.Session{}, fmt.Errorf("commit batch: %w", err)
	}

	metrics.ObserveBatch(string(committed.Status), committed.TotalProducts)
	o.logger.Info("batch committed",
		zap.Int64("session_id", committed.ID),
		zap.String("status", string(committed.Status)),
		zap.Int("total_products", committed.TotalProducts),
	)

	o.archiveSnapshot(ctx, committed, outcomes)
	o.publishCommitted(ctx, committed)

	return committed, nil
}

func (o *Orchestrator) validate(req BatchRequest) error {
	if strings.TrimSpace(req.Keyword) == "" {
		return fmt.Errorf("keyword is required")
	}
	if len(req.Platforms) == 0 {
		return fmt.Errorf("at least one platform is required")
	}
	if req.MinPrice < 0 || req.MinPrice > req.MaxPrice {
		return fmt.Errorf("invalid price range [%d, %d]", req.MinPrice, req.MaxPrice)
	}
	return nil
}

// runUnit invokes one fetcher, converting any failure, including a panic,
// into that unit's error outcome so siblings are never disturbed.
func (o *Orchestrator) runUnit(
	ctx context.Context,
	platform string,
	fetcher catalog.Fetcher,
	req BatchRequest,
) (outcome catalog.FetchOutcome) {
	start := o.clock.Now()
	outcome = catalog.FetchOutcome{Platform: platform, Status: catalog.FetchSuccess}

	defer func() {
		if r := recover(); r != nil {
			outcome.Status = catalog.FetchError
			outcome.Err = fmt.Errorf("fetcher panicked: %v", r)
			outcome.Products = nil
		}
		outcome.Elapsed = o.clock.Now().Sub(start)
		metrics.ObserveFetch(platform, string(outcome.Status), outcome.Elapsed)
		if outcome.Err != nil {
			o.logger.Warn("platform fetch failed",
				zap.String("platform", platform),
				zap.Error(outcome.Err),
			)
		} else {
			o.logger.Debug("platform fetch succeeded",
				zap.String("platform", platform),
				zap.Int("products", len(outcome.Products)),
			)
		}
	}()

	products, err := fetcher.Fetch(ctx, catalog.FetchRequest{
		Keyword:  req.Keyword,
		MaxCount: req.MaxPerPlatform,
		MinPrice: req.MinPrice,
		MaxPrice: req.MaxPrice,
	})
	if err != nil {
		outcome.Status = catalog.FetchError
		outcome.Err = err
		return outcome
	}
	outcome.Products = products
	return outcome
}

// classify derives the session status from the joined outcomes: failed when
// nothing succeeded, success when everything did, partial_fail otherwise.
func classify(outcomes []catalog.FetchOutcome) catalog.SessionStatus {
	succeeded := 0
	for _, out := range outcomes {
		if out.Status == catalog.FetchSuccess {
			succeeded++
		}
	}
	switch succeeded {
	case 0:
		return catalog.SessionFailed
	case len(outcomes):
		return catalog.SessionSuccess
	default:
		return catalog.SessionPartialFail
	}
}

// flatten merges successful outcomes into product rows. Candidates without a
// URL are dropped since URL is the identity key; unparseable prices coerce
// to 0 and keep the product.
func (o *Orchestrator) flatten(outcomes []catalog.FetchOutcome) []catalog.Product {
	var products []catalog.Product
	for _, out := range outcomes {
		if out.Status != catalog.FetchSuccess {
			continue
		}
		for _, c := range out.Products {
			if strings.TrimSpace(c.URL) == "" {
				continue
			}
			title := c.Title
			if title == "" {
				title = "untitled product"
			}
			products = append(products, catalog.Product{
				Platform: out.Platform,
				Title:    title,
				Price:    catalog.CoercePrice(c.Price),
				URL:      c.URL,
				ImageURL: c.ImageURL,
			})
		}
	}
	return products
}

// archiveSnapshot writes the raw joined outcomes as a JSON blob. Best-effort:
// a snapshot failure never fails a committed batch.
func (o *Orchestrator) archiveSnapshot(ctx context.Context, session catalog.Session, outcomes []catalog.FetchOutcome) {
	if o.blobs == nil || o.hasher == nil {
		return
	}
	type unitSnapshot struct {
		Platform  string                     `json:"platform"`
		Status    catalog.FetchStatus        `json:"status"`
		ElapsedMs int64                      `json:"elapsed_ms"`
		Error     string                     `json:"error,omitempty"`
		Products  []catalog.ProductCandidate `json:"products,omitempty"`
	}
	units := make([]unitSnapshot, 0, len(outcomes))
	for _, out := range outcomes {
		u := unitSnapshot{
			Platform:  out.Platform,
			Status:    out.Status,
			ElapsedMs: out.Elapsed.Milliseconds(),
			Products:  out.Products,
		}
		if out.Err != nil {
			u.Error = out.Err.Error()
		}
		units = append(units, u)
	}
	data, err := json.Marshal(map[string]any{
		"session_id": session.ID,
		"keyword":    session.Keyword,
		"created_at": session.CreatedAt.Format(time.RFC3339),
		"units":      units,
	})
	if err != nil {
		o.logger.Warn("snapshot marshal failed", zap.Int64("session_id", session.ID), zap.Error(err))
		return
	}
	hash, err := o.hasher.Hash(data)
	if err != nil {
		o.logger.Warn("snapshot hash failed", zap.Int64("session_id", session.ID), zap.Error(err))
		return
	}
	path := o.buildSnapshotPath(session.ID, hash)
	uri, err := o.blobs.PutObject(ctx, path, o.cfg.SnapshotContentType, data)
	if err != nil {
		o.logger.Warn("snapshot archive failed", zap.Int64("session_id", session.ID), zap.Error(err))
		return
	}
	o.logger.Debug("snapshot archived", zap.Int64("session_id", session.ID), zap.String("uri", uri))
}

func (o *Orchestrator) buildSnapshotPath(sessionID int64, hash string) string {
	prefix := strings.Trim(o.cfg.SnapshotPrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%d/%s.json", sessionID, hash)
	}
	return fmt.Sprintf("%s/%d/%s.json", prefix, sessionID, hash)
}

// publishCommitted emits a batch-committed event. Best-effort as well.
func (o *Orchestrator) publishCommitted(ctx context.Context, session catalog.Session) {
	if o.publisher == nil || o.cfg.Topic == "" {
		return
	}
	payload := map[string]any{
		"session_id":     session.ID,
		"keyword":        session.Keyword,
		"platforms":      session.Platforms,
		"status":         string(session.Status),
		"total_products": session.TotalProducts,
		"created_at":     session.CreatedAt.Format(time.RFC3339),
	}
	if _, err := o.publisher.Publish(ctx, o.cfg.Topic, payload); err != nil {
		o.logger.Warn("batch event publish failed", zap.Int64("session_id", session.ID), zap.Error(err))
		return
	}
	o.logger.Debug("batch event published", zap.Int64("session_id", session.ID))
}
