// Package main wires together the pricehound service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/pricehound/pricehound/internal/api"
	"github.com/pricehound/pricehound/internal/catalog"
	"github.com/pricehound/pricehound/internal/clock/system"
	"github.com/pricehound/pricehound/internal/comparison"
	"github.com/pricehound/pricehound/internal/config"
	"github.com/pricehound/pricehound/internal/deals"
	collyfetcher "github.com/pricehound/pricehound/internal/fetcher/colly"
	headlessfetcher "github.com/pricehound/pricehound/internal/fetcher/headless"
	"github.com/pricehound/pricehound/internal/fetcher/pchome"
	"github.com/pricehound/pricehound/internal/filter"
	"github.com/pricehound/pricehound/internal/hash/sha256"
	"github.com/pricehound/pricehound/internal/logging"
	"github.com/pricehound/pricehound/internal/matcher"
	"github.com/pricehound/pricehound/internal/metrics"
	"github.com/pricehound/pricehound/internal/orchestrator"
	memorypublisher "github.com/pricehound/pricehound/internal/publisher/memory"
	pubsubpublisher "github.com/pricehound/pricehound/internal/publisher/pubsub"
	"github.com/pricehound/pricehound/internal/registry"
	"github.com/pricehound/pricehound/internal/retriever"
	"github.com/pricehound/pricehound/internal/scorer/gemini"
	"github.com/pricehound/pricehound/internal/storage/gcs"
	"github.com/pricehound/pricehound/internal/storage/local"
	memorystorage "github.com/pricehound/pricehound/internal/storage/memory"
	memorystore "github.com/pricehound/pricehound/internal/store/memory"
	"github.com/pricehound/pricehound/internal/store/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := buildStore(ctx, cfg)
	if err != nil {
		logger.Fatal("store init failed", zap.Error(err))
	}
	defer store.Close()

	reg := buildRegistry(cfg, logger)
	clock := system.New()
	hasher := sha256.New()

	blobs, err := buildBlobStore(ctx, cfg)
	if err != nil {
		logger.Fatal("blob store init failed", zap.Error(err))
	}

	var publisher catalog.Publisher
	if cfg.PubSub.ProjectID != "" {
		psPublisher, err := pubsubpublisher.New(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("pubsub init failed", zap.Error(err))
		}
		defer func() {
			if closeErr := psPublisher.Close(); closeErr != nil {
				logger.Warn("pubsub close failed", zap.Error(closeErr))
			}
		}()
		publisher = psPublisher
	} else {
		publisher = memorypublisher.New()
	}

	orch := orchestrator.New(reg, store, blobs, publisher, hasher, clock, orchestrator.Config{
		SnapshotPrefix:      cfg.Storage.Prefix,
		SnapshotContentType: cfg.Storage.ContentType,
		Topic:               cfg.PubSub.TopicName,
	}, logger.Named("orchestrator"))

	ret := retriever.New(store, reg, retriever.Config{
		MinTokenLen:   cfg.Retrieval.MinTokenLen,
		MaxTerms:      cfg.Retrieval.MaxTerms,
		CorpusCap:     cfg.Retrieval.CorpusCap,
		MinViable:     cfg.Retrieval.MinViable,
		LiveCap:       cfg.Retrieval.LiveCap,
		MaxCandidates: cfg.Retrieval.MaxCandidates,
	}, logger.Named("retriever"))

	var (
		scorer    catalog.Scorer
		filterSvc *filter.Service
	)
	if cfg.Scorer.Enabled {
		client := gemini.New(gemini.Config{
			BaseURL: cfg.Scorer.BaseURL,
			Model:   cfg.Scorer.Model,
			APIKey:  cfg.Scorer.APIKey,
			Timeout: time.Duration(cfg.Scorer.TimeoutSeconds) * time.Second,
		}, logger.Named("gemini"))
		scorer = client
		filterSvc = filter.New(store, client, logger.Named("filter"))
	}

	m := matcher.New(scorer, matcher.Config{
		MaxCandidates: cfg.Comparison.ScorerCandidates,
		FallbackFloor: cfg.Comparison.FallbackFloor,
	}, logger.Named("matcher"))

	cmp := comparison.New(store, store, ret, m, clock, comparison.Config{
		AcceptThreshold: cfg.Comparison.AcceptThreshold,
	}, logger.Named("comparison"))

	dealsSvc := deals.New(reg, store, clock, deals.Config{
		MaxPerPlatform: cfg.Crawler.MaxPerPlatform,
	}, logger.Named("deals"))

	apiServer := api.NewServer(orch, store, cmp, dealsSvc, filterSvc, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func buildStore(ctx context.Context, cfg config.Config) (catalog.Store, error) {
	if cfg.DB.DSN == "" {
		return memorystore.New(), nil
	}
	return postgres.New(ctx, postgres.Config{
		DSN:             cfg.DB.DSN,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: time.Duration(cfg.DB.MaxConnLifeMins) * time.Minute,
	})
}

func buildRegistry(cfg config.Config, logger *zap.Logger) *registry.Registry {
	reg := registry.New()

	collyCfg := collyfetcher.Config{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.CrawlTimeout(),
	}
	reg.Register("pchome", pchome.New(pchome.Config{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.CrawlTimeout(),
	}))
	reg.Register("yahoo", collyfetcher.New(collyfetcher.YahooConfig(), collyCfg))
	reg.Register("carrefour", collyfetcher.New(collyfetcher.CarrefourConfig(), collyCfg))
	reg.Register("pchome_onsale", pchome.NewOnsale(pchome.Config{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.CrawlTimeout(),
	}))
	reg.Register("yahoo_rushbuy", collyfetcher.New(collyfetcher.YahooRushbuyConfig(), collyCfg))

	if cfg.Headless.Enabled {
		routn, err := headlessfetcher.New(headlessfetcher.RoutnConfig(), headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Crawler.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			logger.Warn("headless fetcher init failed", zap.Error(err))
		} else {
			reg.Register("routn", routn)
		}
	}
	return reg
}

func buildBlobStore(ctx context.Context, cfg config.Config) (catalog.BlobStore, error) {
	switch {
	case cfg.Storage.GCSBucket != "":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		return gcs.New(client, gcs.Config{Bucket: cfg.Storage.GCSBucket})
	case cfg.Storage.LocalDir != "":
		return local.New(local.Config{BaseDir: cfg.Storage.LocalDir})
	default:
		return memorystorage.NewBlobStore(), nil
	}
}
