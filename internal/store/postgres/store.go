// Package postgres provides the Postgres-backed persistence implementation.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pricehound/pricehound/internal/catalog"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store implements catalog.Store on a pgx pool.
type Store struct {
	pool dbPool
}

// New creates a Store connected per the config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for testing).
func NewWithPool(pool dbPool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CommitBatch creates the session row, inserts its products with
// (session_id, url) dedup and sets the session total to the count of rows
// actually inserted, all in one transaction.
func (s *Store) CommitBatch(ctx context.Context, session catalog.Session, products []catalog.Product) (catalog.Session, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return catalog.Session{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
INSERT INTO crawl_sessions (keyword, platforms, status, created_at, total_products)
VALUES ($1, $2, $3, $4, 0)
RETURNING id`,
		session.Keyword, session.Platforms, string(session.Status), session.CreatedAt,
	).Scan(&session.ID)
	if err != nil {
		return catalog.Session{}, fmt.Errorf("insert session: %w", err)
	}

	inserted := 0
	for _, p := range products {
		tag, err := tx.Exec(ctx, `
INSERT INTO products (session_id, platform, title, price, url, image_url, is_filtered_out)
VALUES ($1, $2, $3, $4, $5, $6, FALSE)
ON CONFLICT (session_id, url) DO NOTHING`,
			session.ID, p.Platform, p.Title, p.Price, p.URL, p.ImageURL,
		)
		if err != nil {
			return catalog.Session{}, fmt.Errorf("insert product: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}

	if _, err := tx.Exec(ctx,
		`UPDATE crawl_sessions SET total_products = $1 WHERE id = $2`,
		inserted, session.ID,
	); err != nil {
		return catalog.Session{}, fmt.Errorf("update session total: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return catalog.Session{}, fmt.Errorf("commit: %w", err)
	}
	session.TotalProducts = inserted
	return session, nil
}

// GetSession loads one session by id.
func (s *Store) GetSession(ctx context.Context, id int64) (catalog.Session, error) {
	var (
		session catalog.Session
		status  string
	)
	err := s.pool.QueryRow(ctx, `
SELECT id, keyword, platforms, status, created_at, total_products
FROM crawl_sessions WHERE id = $1`, id,
	).Scan(&session.ID, &session.Keyword, &session.Platforms, &status, &session.CreatedAt, &session.TotalProducts)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Session{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.Session{}, fmt.Errorf("get session: %w", err)
	}
	session.Status = catalog.SessionStatus(status)
	return session, nil
}

// ListSessionProducts returns a session's products in insertion order.
func (s *Store) ListSessionProducts(ctx context.Context, sessionID int64) ([]catalog.Product, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, session_id, platform, title, price, url, image_url, is_filtered_out
FROM products WHERE session_id = $1 ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list session products: %w", err)
	}
	defer rows.Close()

	var out []catalog.Product
	for rows.Next() {
		var p catalog.Product
		if err := rows.Scan(&p.ID, &p.SessionID, &p.Platform, &p.Title, &p.Price, &p.URL, &p.ImageURL, &p.IsFilteredOut); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkFilteredOut flags the given products as off-topic.
func (s *Store) MarkFilteredOut(ctx context.Context, productIDs []int64) error {
	if len(productIDs) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx,
		`UPDATE products SET is_filtered_out = TRUE WHERE id = ANY($1)`,
		productIDs,
	); err != nil {
		return fmt.Errorf("mark filtered out: %w", err)
	}
	return nil
}

// SearchDeals returns deals whose title contains term, excluding one
// platform, newest first.
func (s *Store) SearchDeals(ctx context.Context, term, excludePlatform string, limit int) ([]catalog.Candidate, error) {
	rows, err := s.pool.Query(ctx, `
SELECT title, platform, price, url, image_url
FROM daily_deals
WHERE title ILIKE '%' || $1 || '%' AND platform <> $2
ORDER BY crawled_at DESC
LIMIT $3`, term, excludePlatform, limit)
	if err != nil {
		return nil, fmt.Errorf("search deals: %w", err)
	}
	defer rows.Close()
	return scanCandidates(rows, catalog.CandidateSourceDeals)
}

// SearchProducts is the session-product equivalent of SearchDeals. Rows filed
// under the comparison sentinel session and filtered-out products are skipped.
func (s *Store) SearchProducts(ctx context.Context, term, excludePlatform string, limit int) ([]catalog.Candidate, error) {
	rows, err := s.pool.Query(ctx, `
SELECT title, platform, price, url, image_url
FROM products
WHERE title ILIKE '%' || $1 || '%'
  AND platform <> $2
  AND session_id <> $3
  AND is_filtered_out = FALSE
ORDER BY id DESC
LIMIT $4`, term, excludePlatform, catalog.ComparisonSessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	defer rows.Close()
	return scanCandidates(rows, catalog.CandidateSourceProducts)
}

// FindDeal locates the most recent deal matching title, platform and price.
func (s *Store) FindDeal(ctx context.Context, title, platform string, price int64) (catalog.Deal, error) {
	var d catalog.Deal
	err := s.pool.QueryRow(ctx, `
SELECT id, platform, title, price, url, image_url, crawled_at
FROM daily_deals
WHERE title = $1 AND platform = $2 AND price = $3
ORDER BY crawled_at DESC
LIMIT 1`, title, platform, price,
	).Scan(&d.ID, &d.Platform, &d.Title, &d.Price, &d.URL, &d.ImageURL, &d.CrawledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Deal{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.Deal{}, fmt.Errorf("find deal: %w", err)
	}
	return d, nil
}

// CachedMatches returns a target's cache entries joined with their candidate
// products, highest similarity first.
func (s *Store) CachedMatches(ctx context.Context, targetID int64) ([]catalog.SimilarProduct, error) {
	rows, err := s.pool.Query(ctx, `
SELECT p.title, p.platform, p.price, p.url, p.image_url,
       c.similarity, c.reason, c.confidence, c.category
FROM product_comparison_cache c
JOIN products p ON p.id = c.candidate_product_id
WHERE c.target_product_id = $1
ORDER BY c.similarity DESC`, targetID)
	if err != nil {
		return nil, fmt.Errorf("cached matches: %w", err)
	}
	defer rows.Close()

	var out []catalog.SimilarProduct
	for rows.Next() {
		var sp catalog.SimilarProduct
		if err := rows.Scan(
			&sp.Title, &sp.Platform, &sp.Price, &sp.URL, &sp.ImageURL,
			&sp.Similarity, &sp.Reason, &sp.Confidence, &sp.Category,
		); err != nil {
			return nil, fmt.Errorf("scan cached match: %w", err)
		}
		sp.Source = catalog.CandidateSourceProducts
		out = append(out, sp)
	}
	return out, rows.Err()
}

// UpsertComparisonProduct files a candidate under the comparison sentinel
// session, reusing an existing row on URL conflict.
func (s *Store) UpsertComparisonProduct(ctx context.Context, c catalog.Candidate) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
INSERT INTO products (session_id, platform, title, price, url, image_url, is_filtered_out)
VALUES ($1, $2, $3, $4, $5, $6, FALSE)
ON CONFLICT (session_id, url) DO UPDATE
SET title = EXCLUDED.title, price = EXCLUDED.price, image_url = EXCLUDED.image_url
RETURNING id`,
		catalog.ComparisonSessionID, c.Platform, c.Title, c.Price, c.URL, c.ImageURL,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert comparison product: %w", err)
	}
	return id, nil
}

// InsertCacheEntries writes comparison judgments.
func (s *Store) InsertCacheEntries(ctx context.Context, entries []catalog.CacheEntry) error {
	for _, e := range entries {
		if _, err := s.pool.Exec(ctx, `
INSERT INTO product_comparison_cache
	(target_product_id, candidate_product_id, similarity, reason, confidence, category, cached_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			e.TargetID, e.CandidateID, e.Similarity, e.Reason, e.Confidence, e.Category, e.CachedAt,
		); err != nil {
			return fmt.Errorf("insert cache entry: %w", err)
		}
	}
	return nil
}

// ClearComparisonCache removes every cache entry.
func (s *Store) ClearComparisonCache(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM product_comparison_cache`); err != nil {
		return fmt.Errorf("clear comparison cache: %w", err)
	}
	return nil
}

// ReplaceDeals swaps out one platform's deals in a single transaction.
func (s *Store) ReplaceDeals(ctx context.Context, platform string, deals []catalog.Deal) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM daily_deals WHERE platform = $1`, platform); err != nil {
		return fmt.Errorf("delete platform deals: %w", err)
	}
	for _, d := range deals {
		if _, err := tx.Exec(ctx, `
INSERT INTO daily_deals (platform, title, price, url, image_url, crawled_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
			platform, d.Title, d.Price, d.URL, d.ImageURL, d.CrawledAt,
		); err != nil {
			return fmt.Errorf("insert deal: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListDeals returns the whole promotional corpus, newest first.
func (s *Store) ListDeals(ctx context.Context) ([]catalog.Deal, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, platform, title, price, url, image_url, crawled_at
FROM daily_deals ORDER BY crawled_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list deals: %w", err)
	}
	defer rows.Close()

	var out []catalog.Deal
	for rows.Next() {
		var d catalog.Deal
		if err := rows.Scan(&d.ID, &d.Platform, &d.Title, &d.Price, &d.URL, &d.ImageURL, &d.CrawledAt); err != nil {
			return nil, fmt.Errorf("scan deal: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanCandidates(rows pgx.Rows, source string) ([]catalog.Candidate, error) {
	var out []catalog.Candidate
	for rows.Next() {
		var c catalog.Candidate
		if err := rows.Scan(&c.Title, &c.Platform, &c.Price, &c.URL, &c.ImageURL); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		c.Source = source
		out = append(out, c)
	}
	return out, rows.Err()
}
