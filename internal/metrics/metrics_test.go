package metrics

import (
	"testing"
	"time"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	// Collectors must be usable after repeated Init calls.
	ObserveFetch("pchome", "success", 250*time.Millisecond)
	ObserveBatch("partial_fail", 3)
	ObserveScorerPath("fallback")
	ObserveComparisonLookup("hit")
}

func TestObserversNoopBeforeInit(t *testing.T) {
	// The package-level vars are set by Init via sync.Once; the guard clauses
	// keep pre-Init calls from panicking in isolated unit tests.
	ObserveFetch("yahoo", "error", time.Second)
	ObserveBatch("failed", 0)
	ObserveScorerPath("primary")
	ObserveComparisonLookup("miss")
}
