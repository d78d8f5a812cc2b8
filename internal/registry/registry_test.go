package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pricehound/pricehound/internal/catalog"
)

func noopFetcher() catalog.Fetcher {
	return catalog.FetcherFunc(func(_ context.Context, _ catalog.FetchRequest) ([]catalog.ProductCandidate, error) {
		return nil, nil
	})
}

func TestRegistry_ResolveRegistered(t *testing.T) {
	t.Parallel()

	r := New()
	r.Register("pchome", noopFetcher())

	fetcher, err := r.Resolve("pchome")
	require.NoError(t, err)
	require.NotNil(t, fetcher)
}

func TestRegistry_ResolveUnknownPlatform(t *testing.T) {
	t.Parallel()

	r := New()
	_, err := r.Resolve("momo")
	require.Error(t, err)
	require.True(t, errors.Is(err, catalog.ErrUnsupportedPlatform))
	require.Contains(t, err.Error(), "momo")
}

func TestRegistry_PlatformsSorted(t *testing.T) {
	t.Parallel()

	r := New()
	r.Register("yahoo", noopFetcher())
	r.Register("carrefour", noopFetcher())
	r.Register("pchome", noopFetcher())

	require.Equal(t, []string{"carrefour", "pchome", "yahoo"}, r.Platforms())
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	t.Parallel()

	called := ""
	r := New()
	r.Register("pchome", catalog.FetcherFunc(func(_ context.Context, _ catalog.FetchRequest) ([]catalog.ProductCandidate, error) {
		called = "old"
		return nil, nil
	}))
	r.Register("pchome", catalog.FetcherFunc(func(_ context.Context, _ catalog.FetchRequest) ([]catalog.ProductCandidate, error) {
		called = "new"
		return nil, nil
	}))

	fetcher, err := r.Resolve("pchome")
	require.NoError(t, err)
	_, _ = fetcher.Fetch(context.Background(), catalog.FetchRequest{})
	require.Equal(t, "new", called)
}
