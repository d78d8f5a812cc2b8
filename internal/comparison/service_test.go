package comparison

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pricehound/pricehound/internal/catalog"
	"github.com/pricehound/pricehound/internal/matcher"
	"github.com/pricehound/pricehound/internal/registry"
	"github.com/pricehound/pricehound/internal/retriever"
)

type fakeStore struct {
	deal        catalog.Deal
	dealErr     error
	cached      []catalog.SimilarProduct
	deals       []catalog.Deal
	nextID      int64
	upserted    []catalog.Candidate
	entries     []catalog.CacheEntry
	cleared     bool
	dealLookups int
}

func (f *fakeStore) FindDeal(_ context.Context, _, _ string, _ int64) (catalog.Deal, error) {
	f.dealLookups++
	if f.dealErr != nil {
		return catalog.Deal{}, f.dealErr
	}
	return f.deal, nil
}

func (f *fakeStore) CachedMatches(_ context.Context, _ int64) ([]catalog.SimilarProduct, error) {
	return f.cached, nil
}

func (f *fakeStore) UpsertComparisonProduct(_ context.Context, c catalog.Candidate) (int64, error) {
	f.upserted = append(f.upserted, c)
	f.nextID++
	return f.nextID, nil
}

func (f *fakeStore) InsertCacheEntries(_ context.Context, entries []catalog.CacheEntry) error {
	f.entries = append(f.entries, entries...)
	return nil
}

func (f *fakeStore) ClearComparisonCache(context.Context) error {
	f.cleared = true
	return nil
}

func (f *fakeStore) ReplaceDeals(_ context.Context, _ string, _ []catalog.Deal) error {
	return nil
}

func (f *fakeStore) ListDeals(context.Context) ([]catalog.Deal, error) {
	return f.deals, nil
}

type fakeCorpus struct {
	deals    []catalog.Candidate
	products []catalog.Candidate
	searches int
}

func (f *fakeCorpus) SearchDeals(_ context.Context, _, _ string, _ int) ([]catalog.Candidate, error) {
	f.searches++
	return f.deals, nil
}

func (f *fakeCorpus) SearchProducts(_ context.Context, _, _ string, _ int) ([]catalog.Candidate, error) {
	f.searches++
	return f.products, nil
}

type fakeClock struct{ now time.Time }

func (f fakeClock) Now() time.Time { return f.now }

func newService(t *testing.T, store *fakeStore, corpus *fakeCorpus) *Service {
	t.Helper()
	logger := zap.NewNop()
	ret := retriever.New(corpus, registry.New(), retriever.Config{MinViable: 1}, logger)
	m := matcher.New(nil, matcher.Config{}, logger)
	clock := fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	return New(store, store, ret, m, clock, Config{}, logger)
}

func TestResolve_ServesFromCache(t *testing.T) {
	store := &fakeStore{
		deal: catalog.Deal{ID: 7, Title: "Acme Model X200", Platform: "pchome", Price: 1290},
		cached: []catalog.SimilarProduct{
			{
				Candidate:  catalog.Candidate{Title: "Acme X200 64GB", Platform: "yahoo", URL: "https://y/1"},
				Similarity: 0.91,
				Confidence: catalog.ConfidenceHigh,
			},
			{
				Candidate:  catalog.Candidate{Title: "Acme X200 32GB", Platform: "carrefour", URL: "https://c/1"},
				Similarity: 0.84,
				Confidence: catalog.ConfidenceHigh,
			},
		},
	}
	corpus := &fakeCorpus{}
	svc := newService(t, store, corpus)

	result, err := svc.Resolve(context.Background(), catalog.TargetProduct{
		Title: "Acme Model X200", Platform: "pchome", Price: 1290,
	})
	require.NoError(t, err)

	assert.Equal(t, catalog.MatchSourceCache, result.Source)
	assert.Len(t, result.SimilarProducts, 2)
	assert.Zero(t, corpus.searches, "cache hit must not touch the corpus")
}

func TestResolve_MissComputesAndWritesBack(t *testing.T) {
	store := &fakeStore{
		deal: catalog.Deal{ID: 42, Title: "Acme Model X200", Platform: "pchome", Price: 1290},
	}
	corpus := &fakeCorpus{
		deals: []catalog.Candidate{
			{Title: "Acme Model X200", Platform: "yahoo", Price: 1350, URL: "https://y/x200", Source: catalog.CandidateSourceDeals},
		},
	}
	svc := newService(t, store, corpus)

	result, err := svc.Resolve(context.Background(), catalog.TargetProduct{
		Title: "Acme Model X200", Platform: "pchome", Price: 1290,
	})
	require.NoError(t, err)

	assert.Equal(t, catalog.MatchSourceRealtime, result.Source)
	require.Len(t, result.SimilarProducts, 1)
	assert.GreaterOrEqual(t, result.SimilarProducts[0].Similarity, 0.70)

	require.Len(t, store.upserted, 1)
	assert.Equal(t, "https://y/x200", store.upserted[0].URL)
	require.Len(t, store.entries, 1)
	assert.Equal(t, int64(42), store.entries[0].TargetID)
	assert.Equal(t, int64(1), store.entries[0].CandidateID)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), store.entries[0].CachedAt)
}

func TestResolve_UnknownTargetSkipsWriteBack(t *testing.T) {
	store := &fakeStore{dealErr: catalog.ErrNotFound}
	corpus := &fakeCorpus{
		deals: []catalog.Candidate{
			{Title: "Acme Model X200", Platform: "yahoo", Price: 1350, URL: "https://y/x200", Source: catalog.CandidateSourceDeals},
		},
	}
	svc := newService(t, store, corpus)

	result, err := svc.Resolve(context.Background(), catalog.TargetProduct{
		Title: "Acme Model X200", Platform: "pchome", Price: 1290,
	})
	require.NoError(t, err)

	assert.Equal(t, catalog.MatchSourceRealtime, result.Source)
	require.Len(t, result.SimilarProducts, 1)
	assert.Empty(t, store.entries, "no deal row, nothing to key the cache by")
	assert.Empty(t, store.upserted)
}

func TestResolve_ThresholdFiltersWeakMatches(t *testing.T) {
	store := &fakeStore{dealErr: catalog.ErrNotFound}
	corpus := &fakeCorpus{
		deals: []catalog.Candidate{
			{Title: "Acme Model X200", Platform: "yahoo", Price: 1350, URL: "https://y/strong", Source: catalog.CandidateSourceDeals},
			{Title: "Acme charging cable", Platform: "yahoo", Price: 199, URL: "https://y/weak", Source: catalog.CandidateSourceDeals},
		},
	}
	svc := newService(t, store, corpus)

	result, err := svc.Resolve(context.Background(), catalog.TargetProduct{
		Title: "Acme Model X200", Platform: "pchome", Price: 1290,
	})
	require.NoError(t, err)

	require.Len(t, result.SimilarProducts, 1)
	assert.Equal(t, "https://y/strong", result.SimilarProducts[0].URL)
	assert.Equal(t, 2, result.TotalCandidates)
}

func TestResolve_NoCandidatesReturnsEmptyRealtime(t *testing.T) {
	store := &fakeStore{dealErr: catalog.ErrNotFound}
	svc := newService(t, store, &fakeCorpus{})

	result, err := svc.Resolve(context.Background(), catalog.TargetProduct{
		Title: "Acme Model X200", Platform: "pchome", Price: 1290,
	})
	require.NoError(t, err)

	assert.Equal(t, catalog.MatchSourceRealtime, result.Source)
	assert.Empty(t, result.SimilarProducts)
	assert.Empty(t, store.entries)
}

func TestLookup_MissWhenNoEntries(t *testing.T) {
	store := &fakeStore{
		deal: catalog.Deal{ID: 9, Title: "Widget", Platform: "yahoo", Price: 500},
	}
	svc := newService(t, store, &fakeCorpus{})

	_, hit, err := svc.Lookup(context.Background(), "Widget", "yahoo", 500)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestLookup_StoreErrorPropagates(t *testing.T) {
	store := &fakeStore{dealErr: errors.New("connection reset")}
	svc := newService(t, store, &fakeCorpus{})

	_, _, err := svc.Lookup(context.Background(), "Widget", "yahoo", 500)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "find deal")
}

func TestRebuildAll_ClearsAndRecomputes(t *testing.T) {
	store := &fakeStore{
		deals: []catalog.Deal{
			{ID: 1, Title: "Acme Model X200", Platform: "pchome", Price: 1290},
			{ID: 2, Title: "Widget Classic", Platform: "yahoo", Price: 500},
		},
	}
	corpus := &fakeCorpus{
		deals: []catalog.Candidate{
			{Title: "Acme Model X200", Platform: "yahoo", Price: 1350, URL: "https://y/x200", Source: catalog.CandidateSourceDeals},
		},
	}
	svc := newService(t, store, corpus)

	processed, err := svc.RebuildAll(context.Background())
	require.NoError(t, err)

	assert.True(t, store.cleared)
	assert.Equal(t, 2, processed)
	// Only the X200 deal finds a candidate above threshold.
	require.Len(t, store.entries, 1)
	assert.Equal(t, int64(1), store.entries[0].TargetID)
}
