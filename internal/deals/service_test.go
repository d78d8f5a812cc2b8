package deals

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pricehound/pricehound/internal/catalog"
	"github.com/pricehound/pricehound/internal/registry"
)

type fakeDealStore struct {
	mu       sync.Mutex
	replaced map[string][]catalog.Deal
	err      error
}

func (f *fakeDealStore) ReplaceDeals(_ context.Context, platform string, deals []catalog.Deal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.replaced == nil {
		f.replaced = make(map[string][]catalog.Deal)
	}
	f.replaced[platform] = deals
	return nil
}

func (f *fakeDealStore) ListDeals(context.Context) ([]catalog.Deal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []catalog.Deal
	for _, deals := range f.replaced {
		out = append(out, deals...)
	}
	return out, nil
}

type fakeClock struct{ now time.Time }

func (f fakeClock) Now() time.Time { return f.now }

func staticFetcher(products ...catalog.ProductCandidate) catalog.Fetcher {
	return catalog.FetcherFunc(func(context.Context, catalog.FetchRequest) ([]catalog.ProductCandidate, error) {
		return products, nil
	})
}

func waitForFinish(t *testing.T, svc *Service) catalog.RefreshJob {
	t.Helper()
	var job catalog.RefreshJob
	require.Eventually(t, func() bool {
		var ok bool
		job, ok = svc.Status()
		return ok && job.State != catalog.RefreshRunning
	}, 2*time.Second, 5*time.Millisecond)
	return job
}

func TestStartRefresh_ReplacesFlashPlatforms(t *testing.T) {
	reg := registry.New()
	reg.Register("pchome_onsale", staticFetcher(
		catalog.ProductCandidate{Title: "Flash Widget", Price: "1,290", URL: "https://p/1"},
		catalog.ProductCandidate{Title: "No URL item", Price: 99},
	))
	reg.Register("yahoo_rushbuy", staticFetcher(
		catalog.ProductCandidate{Title: "Rush Widget", Price: 500, URL: "https://y/1"},
	))

	store := &fakeDealStore{}
	svc := New(reg, store, fakeClock{now: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)}, Config{}, zap.NewNop())

	job, err := svc.StartRefresh(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, catalog.RefreshRunning, job.State)

	done := waitForFinish(t, svc)
	assert.Equal(t, catalog.RefreshSucceeded, done.State)
	require.NotNil(t, done.FinishedAt)

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.replaced["pchome_onsale"], 1, "URL-less listings are dropped")
	assert.Equal(t, int64(1290), store.replaced["pchome_onsale"][0].Price)
	require.Len(t, store.replaced["yahoo_rushbuy"], 1)
}

func TestStartRefresh_RejectsConcurrentStart(t *testing.T) {
	release := make(chan struct{})
	reg := registry.New()
	blocking := catalog.FetcherFunc(func(context.Context, catalog.FetchRequest) ([]catalog.ProductCandidate, error) {
		<-release
		return nil, nil
	})
	reg.Register("pchome_onsale", blocking)
	reg.Register("yahoo_rushbuy", blocking)

	svc := New(reg, &fakeDealStore{}, fakeClock{now: time.Now()}, Config{}, zap.NewNop())

	first, err := svc.StartRefresh(context.Background())
	require.NoError(t, err)

	second, err := svc.StartRefresh(context.Background())
	require.ErrorIs(t, err, catalog.ErrRefreshInProgress)
	assert.Equal(t, first.ID, second.ID, "rejection reports the running job")

	close(release)
	waitForFinish(t, svc)

	// Once finished a new refresh may start.
	third, err := svc.StartRefresh(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
	waitForFinish(t, svc)
}

func TestStartRefresh_PartialPlatformFailureStillSucceeds(t *testing.T) {
	reg := registry.New()
	reg.Register("pchome_onsale", staticFetcher(
		catalog.ProductCandidate{Title: "Flash Widget", Price: 100, URL: "https://p/1"},
	))
	reg.Register("yahoo_rushbuy", catalog.FetcherFunc(func(context.Context, catalog.FetchRequest) ([]catalog.ProductCandidate, error) {
		return nil, errors.New("rate limited")
	}))

	store := &fakeDealStore{}
	svc := New(reg, store, fakeClock{now: time.Now()}, Config{}, zap.NewNop())

	_, err := svc.StartRefresh(context.Background())
	require.NoError(t, err)

	done := waitForFinish(t, svc)
	assert.Equal(t, catalog.RefreshSucceeded, done.State)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Len(t, store.replaced, 1)
}

func TestStartRefresh_AllPlatformsFailedMarksJobFailed(t *testing.T) {
	// Empty registry: every flash platform fails to resolve.
	svc := New(registry.New(), &fakeDealStore{}, fakeClock{now: time.Now()}, Config{}, zap.NewNop())

	_, err := svc.StartRefresh(context.Background())
	require.NoError(t, err)

	done := waitForFinish(t, svc)
	assert.Equal(t, catalog.RefreshFailed, done.State)
	assert.NotEmpty(t, done.ErrorText)
}

func TestStatus_EmptyBeforeFirstRefresh(t *testing.T) {
	svc := New(registry.New(), &fakeDealStore{}, fakeClock{now: time.Now()}, Config{}, zap.NewNop())
	_, ok := svc.Status()
	assert.False(t, ok)
}
