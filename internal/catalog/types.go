// Package catalog defines the core types and interfaces shared across the
// crawl and comparison subsystems. It includes session and product records,
// per-fetch outcomes and the similarity match shapes.
package catalog

import "time"

// SessionStatus classifies the overall outcome of one batch crawl.
type SessionStatus string

// Session status values persisted with each batch.
const (
	SessionSuccess     SessionStatus = "success"
	SessionPartialFail SessionStatus = "partial_fail"
	SessionFailed      SessionStatus = "failed"
)

// ComparisonSessionID is the sentinel session a product is filed under when it
// was stored for comparison purposes only and is not tied to a user crawl.
const ComparisonSessionID int64 = -1

// Session is one committed batch of crawl results for a single keyword
// request. Immutable after commit.
type Session struct {
	ID            int64         `json:"id"`
	Keyword       string        `json:"keyword"`
	Platforms     []string      `json:"platforms"`
	CreatedAt     time.Time     `json:"created_at"`
	Status        SessionStatus `json:"status"`
	TotalProducts int           `json:"total_products"`
}

// Product is a single listing committed with a session. URL is the dedup key
// within a session; IsFilteredOut is the only field mutated after commit.
type Product struct {
	ID            int64  `json:"id"`
	SessionID     int64  `json:"session_id"`
	Platform      string `json:"platform"`
	Title         string `json:"title"`
	Price         int64  `json:"price"`
	URL           string `json:"url"`
	ImageURL      string `json:"image_url"`
	IsFilteredOut bool   `json:"is_filtered_out"`
}

// Deal is a promotional listing from a flash-sale platform. Deals form the
// platform-agnostic corpus preferred by candidate retrieval.
type Deal struct {
	ID        int64     `json:"id"`
	Platform  string    `json:"platform"`
	Title     string    `json:"title"`
	Price     int64     `json:"price"`
	URL       string    `json:"url"`
	ImageURL  string    `json:"image_url"`
	CrawledAt time.Time `json:"crawled_at"`
}

// ProductCandidate is a raw listing as returned by a platform fetcher,
// before price coercion and URL-based dedup.
type ProductCandidate struct {
	Title    string `json:"title"`
	Price    any    `json:"price"`
	URL      string `json:"url"`
	ImageURL string `json:"image_url"`
}

// FetchStatus marks a single fetch unit as succeeded or failed.
type FetchStatus string

// Fetch unit outcomes.
const (
	FetchSuccess FetchStatus = "success"
	FetchError   FetchStatus = "error"
)

// FetchOutcome is the result of one fetcher invocation. Outcomes are
// transient: the orchestrator consumes them within a single RunBatch call.
type FetchOutcome struct {
	Platform string
	Products []ProductCandidate
	Elapsed  time.Duration
	Status   FetchStatus
	Err      error
}

// TargetProduct is the subject of a similarity query.
type TargetProduct struct {
	Title    string `json:"title"`
	Platform string `json:"platform"`
	Price    int64  `json:"price"`
}

// Candidate is a product considered for similarity comparison, together with
// the tier that produced it.
type Candidate struct {
	Title    string `json:"title"`
	Platform string `json:"platform"`
	Price    int64  `json:"price"`
	URL      string `json:"url"`
	ImageURL string `json:"image_url"`
	Source   string `json:"source"`
}

// Candidate source tiers.
const (
	CandidateSourceDeals    = "deals"
	CandidateSourceProducts = "products"
	CandidateSourceLive     = "live_fetch"
)

// Confidence bands attached to a similarity judgment.
const (
	ConfidenceLow    = "low"
	ConfidenceMedium = "medium"
	ConfidenceHigh   = "high"
)

// Match is one scored target-versus-candidate judgment. Index references the
// candidate list handed to the scorer by position.
type Match struct {
	Index      int     `json:"index"`
	Similarity float64 `json:"similarity"`
	Reason     string  `json:"reason"`
	Confidence string  `json:"confidence"`
	Category   string  `json:"category"`
}

// SimilarProduct is an accepted match joined with its candidate product.
type SimilarProduct struct {
	Candidate
	Similarity float64 `json:"similarity"`
	Reason     string  `json:"reason"`
	Confidence string  `json:"confidence"`
	Category   string  `json:"category"`
}

// Match result sources.
const (
	MatchSourceCache    = "cache"
	MatchSourceRealtime = "realtime"
)

// MatchResult is the response shape shared by cache hits and live resolves.
type MatchResult struct {
	Target          TargetProduct    `json:"target"`
	SimilarProducts []SimilarProduct `json:"similar_products"`
	TotalCandidates int              `json:"total_candidates"`
	TotalMatches    int              `json:"total_matches"`
	Source          string           `json:"source"`
}

// CacheEntry is one persisted comparison judgment. Entries are never mutated,
// only superseded by a full rebuild.
type CacheEntry struct {
	ID          int64     `json:"id"`
	TargetID    int64     `json:"target_product_id"`
	CandidateID int64     `json:"candidate_product_id"`
	Similarity  float64   `json:"similarity"`
	Reason      string    `json:"reason"`
	Confidence  string    `json:"confidence"`
	Category    string    `json:"category"`
	CachedAt    time.Time `json:"cached_at"`
}

// RefreshJobState is the lifecycle state of a deals-corpus refresh.
type RefreshJobState string

// Refresh job states.
const (
	RefreshRunning   RefreshJobState = "running"
	RefreshSucceeded RefreshJobState = "succeeded"
	RefreshFailed    RefreshJobState = "failed"
)

// RefreshJob is the state value describing one deals refresh run. It is
// passed and returned rather than shared, so callers observe a snapshot.
type RefreshJob struct {
	ID         string          `json:"id"`
	State      RefreshJobState `json:"state"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	ErrorText  string          `json:"error_text,omitempty"`
}
