package catalog

import (
	"context"
	"time"
)

// FetchRequest captures everything needed to fetch listings for one keyword.
type FetchRequest struct {
	Keyword  string
	MaxCount int
	MinPrice int64
	MaxPrice int64
}

// Fetcher retrieves raw product candidates for one platform. Implementations
// must return an error instead of panicking; the orchestrator records a
// failed unit either way.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) ([]ProductCandidate, error)
}

// FetcherFunc adapts a plain function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, req FetchRequest) ([]ProductCandidate, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, req FetchRequest) ([]ProductCandidate, error) {
	return f(ctx, req)
}

// SessionStore commits and reads crawl batches.
type SessionStore interface {
	// CommitBatch atomically creates the session row, bulk-inserts its
	// products with (session_id, url) dedup, and sets the total to the
	// actual inserted count. Returns the committed session.
	CommitBatch(ctx context.Context, session Session, products []Product) (Session, error)
	GetSession(ctx context.Context, id int64) (Session, error)
	ListSessionProducts(ctx context.Context, sessionID int64) ([]Product, error)
	MarkFilteredOut(ctx context.Context, productIDs []int64) error
}

// CorpusStore serves candidate retrieval over previously persisted listings.
type CorpusStore interface {
	// SearchDeals returns deals whose title contains term, excluding the
	// given platform, newest first.
	SearchDeals(ctx context.Context, term, excludePlatform string, limit int) ([]Candidate, error)
	// SearchProducts is the session-scoped equivalent over the products table.
	SearchProducts(ctx context.Context, term, excludePlatform string, limit int) ([]Candidate, error)
}

// ComparisonStore persists similarity judgments and the corpus rows backing
// them.
type ComparisonStore interface {
	// FindDeal locates the most recent deal matching all three fields.
	FindDeal(ctx context.Context, title, platform string, price int64) (Deal, error)
	// CachedMatches returns cache entries for a target joined with their
	// candidate products, highest similarity first.
	CachedMatches(ctx context.Context, targetID int64) ([]SimilarProduct, error)
	// UpsertComparisonProduct files a candidate under ComparisonSessionID
	// and returns the product id, reusing an existing row on URL conflict.
	UpsertComparisonProduct(ctx context.Context, c Candidate) (int64, error)
	InsertCacheEntries(ctx context.Context, entries []CacheEntry) error
	ClearComparisonCache(ctx context.Context) error
}

// DealStore maintains the promotional corpus.
type DealStore interface {
	// ReplaceDeals swaps out a platform's deals in one transaction.
	ReplaceDeals(ctx context.Context, platform string, deals []Deal) error
	ListDeals(ctx context.Context) ([]Deal, error)
}

// Store is the full persistence surface consumed by the services.
type Store interface {
	SessionStore
	CorpusStore
	ComparisonStore
	DealStore
	Close()
}

// Scorer judges target-versus-candidate similarity. Implementations may fail
// or return garbage; callers fall back to the deterministic matcher.
type Scorer interface {
	Score(ctx context.Context, target TargetProduct, candidates []Candidate) ([]Match, error)
}

// BlobStore writes raw batch snapshots and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes batch-committed events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for snapshot content addressing.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
