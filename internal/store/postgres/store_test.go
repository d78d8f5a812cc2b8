package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/pricehound/pricehound/internal/catalog"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewWithPool(mock)
	require.NoError(t, err)
	return store, mock
}

func TestCommitBatchCountsActualInserts(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()

	session := catalog.Session{
		Keyword:   "iphone 15",
		Platforms: []string{"pchome", "yahoo"},
		Status:    catalog.SessionSuccess,
		CreatedAt: now,
	}
	products := []catalog.Product{
		{Platform: "pchome", Title: "iPhone 15", Price: 28900, URL: "https://p/1"},
		{Platform: "yahoo", Title: "iPhone 15", Price: 28500, URL: "https://p/1"},
	}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO crawl_sessions").
		WithArgs("iphone 15", []string{"pchome", "yahoo"}, "success", now).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectExec("INSERT INTO products").
		WithArgs(int64(7), "pchome", "iPhone 15", int64(28900), "https://p/1", "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	// Second product collides on (session_id, url) and inserts nothing.
	mock.ExpectExec("INSERT INTO products").
		WithArgs(int64(7), "yahoo", "iPhone 15", int64(28500), "https://p/1", "").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectExec("UPDATE crawl_sessions").
		WithArgs(1, int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	committed, err := store.CommitBatch(context.Background(), session, products)
	require.NoError(t, err)
	require.Equal(t, int64(7), committed.ID)
	require.Equal(t, 1, committed.TotalProducts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitBatchRollsBackOnInsertFailure(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO crawl_sessions").
		WithArgs("widget", []string{"pchome"}, "success", now).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(3)))
	mock.ExpectExec("INSERT INTO products").
		WithArgs(int64(3), "pchome", "Widget", int64(100), "https://p/1", "").
		WillReturnError(pgx.ErrTxClosed)
	mock.ExpectRollback()

	_, err := store.CommitBatch(context.Background(),
		catalog.Session{Keyword: "widget", Platforms: []string{"pchome"}, Status: catalog.SessionSuccess, CreatedAt: now},
		[]catalog.Product{{Platform: "pchome", Title: "Widget", Price: 100, URL: "https://p/1"}},
	)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSessionNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT id, keyword, platforms").
		WithArgs(int64(99)).
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetSession(context.Background(), 99)
	require.ErrorIs(t, err, catalog.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchDealsMapsCandidates(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("FROM daily_deals").
		WithArgs("x200", "pchome", 50).
		WillReturnRows(pgxmock.NewRows([]string{"title", "platform", "price", "url", "image_url"}).
			AddRow("Acme X200", "yahoo", int64(1290), "https://y/1", "https://y/1.jpg"))

	found, err := store.SearchDeals(context.Background(), "x200", "pchome", 50)
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, catalog.CandidateSourceDeals, found[0].Source)
	require.Equal(t, "Acme X200", found[0].Title)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchProductsExcludesSentinelSession(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("FROM products").
		WithArgs("x200", "pchome", catalog.ComparisonSessionID, 30).
		WillReturnRows(pgxmock.NewRows([]string{"title", "platform", "price", "url", "image_url"}).
			AddRow("Acme X200", "carrefour", int64(1350), "https://c/1", ""))

	found, err := store.SearchProducts(context.Background(), "x200", "pchome", 30)
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, catalog.CandidateSourceProducts, found[0].Source)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindDealNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("FROM daily_deals").
		WithArgs("Widget", "pchome", int64(100)).
		WillReturnError(pgx.ErrNoRows)

	_, err := store.FindDeal(context.Background(), "Widget", "pchome", 100)
	require.ErrorIs(t, err, catalog.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedMatchesJoinsCandidates(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("FROM product_comparison_cache").
		WithArgs(int64(42)).
		WillReturnRows(pgxmock.NewRows([]string{
			"title", "platform", "price", "url", "image_url",
			"similarity", "reason", "confidence", "category",
		}).AddRow("Acme X200", "yahoo", int64(1290), "https://y/1", "", 0.91, "model match", "high", "highly similar"))

	matches, err := store.CachedMatches(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, 0.91, matches[0].Similarity)
	require.Equal(t, "yahoo", matches[0].Platform)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertComparisonProductUsesSentinelSession(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("INSERT INTO products").
		WithArgs(catalog.ComparisonSessionID, "yahoo", "Acme X200", int64(1290), "https://y/1", "").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(55)))

	id, err := store.UpsertComparisonProduct(context.Background(), catalog.Candidate{
		Title: "Acme X200", Platform: "yahoo", Price: 1290, URL: "https://y/1",
	})
	require.NoError(t, err)
	require.Equal(t, int64(55), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkFilteredOutSkipsEmptyInput(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	require.NoError(t, store.MarkFilteredOut(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceDealsIsTransactional(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM daily_deals").
		WithArgs("pchome_onsale").
		WillReturnResult(pgxmock.NewResult("DELETE", 10))
	mock.ExpectExec("INSERT INTO daily_deals").
		WithArgs("pchome_onsale", "Flash Widget", int64(1290), "https://p/1", "", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := store.ReplaceDeals(context.Background(), "pchome_onsale", []catalog.Deal{
		{Title: "Flash Widget", Price: 1290, URL: "https://p/1", CrawledAt: now},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClearComparisonCache(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("DELETE FROM product_comparison_cache").
		WillReturnResult(pgxmock.NewResult("DELETE", 12))

	require.NoError(t, store.ClearComparisonCache(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
