// Package registry maps platform identifiers to their fetch capabilities.
// The registry is populated once at startup and read-only afterward, so
// lookups need no locking.
package registry

import (
	"fmt"
	"sort"

	"github.com/pricehound/pricehound/internal/catalog"
)

// Registry resolves platform identifiers to fetchers.
type Registry struct {
	fetchers map[string]catalog.Fetcher
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{fetchers: make(map[string]catalog.Fetcher)}
}

// Register adds a fetcher under the given platform identifier. Registering
// the same platform twice replaces the earlier entry.
func (r *Registry) Register(platform string, fetcher catalog.Fetcher) {
	r.fetchers[platform] = fetcher
}

// Resolve returns the fetcher for a platform, or ErrUnsupportedPlatform when
// none is registered.
func (r *Registry) Resolve(platform string) (catalog.Fetcher, error) {
	fetcher, ok := r.fetchers[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %s", catalog.ErrUnsupportedPlatform, platform)
	}
	return fetcher, nil
}

// Platforms lists registered platform identifiers in sorted order.
func (r *Registry) Platforms() []string {
	platforms := make([]string, 0, len(r.fetchers))
	for p := range r.fetchers {
		platforms = append(platforms, p)
	}
	sort.Strings(platforms)
	return platforms
}
