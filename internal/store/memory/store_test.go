package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricehound/pricehound/internal/catalog"
)

func TestCommitBatchDedupsAndCounts(t *testing.T) {
	t.Parallel()

	store := New()
	session, err := store.CommitBatch(context.Background(),
		catalog.Session{Keyword: "widget", Status: catalog.SessionSuccess},
		[]catalog.Product{
			{Platform: "pchome", Title: "Widget", URL: "https://p/1"},
			{Platform: "yahoo", Title: "Widget", URL: "https://p/1"},
			{Platform: "yahoo", Title: "Widget Pro", URL: "https://y/2"},
		},
	)
	require.NoError(t, err)

	assert.Equal(t, 2, session.TotalProducts)
	products, err := store.ListSessionProducts(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Len(t, products, 2)
}

func TestGetSessionNotFound(t *testing.T) {
	t.Parallel()

	_, err := New().GetSession(context.Background(), 99)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestMarkFilteredOutHidesFromSearch(t *testing.T) {
	t.Parallel()

	store := New()
	session, err := store.CommitBatch(context.Background(),
		catalog.Session{Keyword: "widget", Status: catalog.SessionSuccess},
		[]catalog.Product{{Platform: "pchome", Title: "Widget case", URL: "https://p/1"}},
	)
	require.NoError(t, err)

	products, err := store.ListSessionProducts(context.Background(), session.ID)
	require.NoError(t, err)
	require.NoError(t, store.MarkFilteredOut(context.Background(), []int64{products[0].ID}))

	found, err := store.SearchProducts(context.Background(), "widget", "", 10)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestSearchDealsExcludesPlatformAndCaps(t *testing.T) {
	t.Parallel()

	store := New()
	now := time.Now()
	require.NoError(t, store.ReplaceDeals(context.Background(), "pchome_onsale", []catalog.Deal{
		{Title: "Widget Flash", URL: "https://p/1", CrawledAt: now},
		{Title: "Widget Deluxe", URL: "https://p/2", CrawledAt: now},
	}))
	require.NoError(t, store.ReplaceDeals(context.Background(), "yahoo_rushbuy", []catalog.Deal{
		{Title: "Widget Rush", URL: "https://y/1", CrawledAt: now},
	}))

	found, err := store.SearchDeals(context.Background(), "widget", "pchome_onsale", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "yahoo_rushbuy", found[0].Platform)

	capped, err := store.SearchDeals(context.Background(), "widget", "", 2)
	require.NoError(t, err)
	assert.Len(t, capped, 2)
}

func TestReplaceDealsSwapsPlatform(t *testing.T) {
	t.Parallel()

	store := New()
	now := time.Now()
	require.NoError(t, store.ReplaceDeals(context.Background(), "pchome_onsale", []catalog.Deal{
		{Title: "Old deal", URL: "https://p/old", CrawledAt: now},
	}))
	require.NoError(t, store.ReplaceDeals(context.Background(), "pchome_onsale", []catalog.Deal{
		{Title: "New deal", URL: "https://p/new", CrawledAt: now},
	}))

	deals, err := store.ListDeals(context.Background())
	require.NoError(t, err)
	require.Len(t, deals, 1)
	assert.Equal(t, "New deal", deals[0].Title)
}

func TestComparisonRoundTrip(t *testing.T) {
	t.Parallel()

	store := New()
	now := time.Now()
	require.NoError(t, store.ReplaceDeals(context.Background(), "pchome_onsale", []catalog.Deal{
		{Title: "Acme X200", Price: 1290, URL: "https://p/1", CrawledAt: now},
	}))
	deal, err := store.FindDeal(context.Background(), "Acme X200", "pchome_onsale", 1290)
	require.NoError(t, err)

	candidateID, err := store.UpsertComparisonProduct(context.Background(), catalog.Candidate{
		Title: "Acme X200 64GB", Platform: "yahoo", Price: 1350, URL: "https://y/1",
	})
	require.NoError(t, err)

	// A second upsert of the same URL reuses the row.
	again, err := store.UpsertComparisonProduct(context.Background(), catalog.Candidate{
		Title: "Acme X200 64GB Black", Platform: "yahoo", Price: 1200, URL: "https://y/1",
	})
	require.NoError(t, err)
	assert.Equal(t, candidateID, again)

	require.NoError(t, store.InsertCacheEntries(context.Background(), []catalog.CacheEntry{
		{TargetID: deal.ID, CandidateID: candidateID, Similarity: 0.91, Confidence: catalog.ConfidenceHigh, CachedAt: now},
	}))

	matches, err := store.CachedMatches(context.Background(), deal.ID)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "Acme X200 64GB Black", matches[0].Title)

	require.NoError(t, store.ClearComparisonCache(context.Background()))
	matches, err = store.CachedMatches(context.Background(), deal.ID)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSentinelRowsHiddenFromProductSearch(t *testing.T) {
	t.Parallel()

	store := New()
	_, err := store.UpsertComparisonProduct(context.Background(), catalog.Candidate{
		Title: "Acme X200", Platform: "yahoo", URL: "https://y/1",
	})
	require.NoError(t, err)

	found, err := store.SearchProducts(context.Background(), "acme", "", 10)
	require.NoError(t, err)
	assert.Empty(t, found)
}
