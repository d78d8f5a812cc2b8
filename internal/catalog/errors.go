package catalog

import "errors"

// Sentinel errors shared across subsystems. Per the propagation policy, only
// store failures surface to callers as hard errors; fetch and scorer failures
// degrade to recorded statuses and fallbacks.
var (
	// ErrUnsupportedPlatform is returned before any worker launches when a
	// requested platform has no registered fetcher.
	ErrUnsupportedPlatform = errors.New("unsupported platform")

	// ErrScorerMalformedOutput marks a scorer response that survived neither
	// the strict nor the lenient parse stage.
	ErrScorerMalformedOutput = errors.New("scorer returned malformed output")

	// ErrScorerUnavailable marks a scorer that could not be reached at all.
	ErrScorerUnavailable = errors.New("scorer unavailable")

	// ErrNotFound is returned by store lookups with no matching row.
	ErrNotFound = errors.New("not found")

	// ErrRefreshInProgress rejects a refresh start while another run is live.
	ErrRefreshInProgress = errors.New("deals refresh already in progress")
)
