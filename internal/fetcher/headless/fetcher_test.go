package headless

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsNegativeParallelism(t *testing.T) {
	_, err := New(RoutnConfig(), Config{MaxParallel: -1})
	require.Error(t, err)
}

func TestNewDefaultsNavigationTimeout(t *testing.T) {
	fetcher, err := New(RoutnConfig(), Config{})
	require.NoError(t, err)
	defer fetcher.Close()
	assert.Positive(t, fetcher.cfg.NavigationTimeout)
	assert.Nil(t, fetcher.limiter)
}

func TestBuildExtractScriptEmbedsSelectors(t *testing.T) {
	script := buildExtractScript(SiteConfig{
		ItemSelector: "div.card",
		Title:        ".name",
		Price:        ".price",
		Link:         "a",
		Image:        "img",
	})
	assert.Contains(t, script, `querySelectorAll("div.card")`)
	assert.Contains(t, script, `title: text(".name")`)
	assert.Contains(t, script, `price: text(".price")`)
	assert.Contains(t, script, `url: attr("a", "href")`)
	assert.Contains(t, script, `image: attr("img", "src")`)
}
