package gemini

import (
	"fmt"
	"strings"

	"github.com/pricehound/pricehound/internal/catalog"
)

func buildComparisonPrompt(target catalog.TargetProduct, candidates []catalog.Candidate) string {
	var list strings.Builder
	for idx, c := range candidates {
		list.WriteString(fmt.Sprintf("[%d] platform=%s price=%d title=%s\n", idx, c.Platform, c.Price, c.Title))
	}

	return fmt.Sprintf(`You compare e-commerce product listings.
Target product:
platform=%s price=%d title=%s

Candidates:
%s
For every candidate that is the same or a closely comparable product, emit one
entry. Return a strict JSON object, no markdown:
{"matches":[{"index":0,"similarity":0.95,"reason":"...","confidence":"high","category":"highly similar"}]}
similarity is 0 to 1. confidence is one of low, medium, high.
category is "highly similar" for the same product and "partially similar" for
comparable variants. Omit unrelated candidates entirely.`,
		target.Platform, target.Price, target.Title, list.String())
}

func buildRelevancePrompt(keyword string, titles []string) string {
	var list strings.Builder
	for idx, title := range titles {
		list.WriteString(fmt.Sprintf("[%d] %s\n", idx, title))
	}

	return fmt.Sprintf(`A shopper searched for: %s

Listings:
%s
Identify listings that do not answer the search: accessories, spare parts,
cases, cables or unrelated products. Return a strict JSON object, no markdown:
{"filtered_indices":[1,4]}
Use the bracketed index of each off-topic listing. Return an empty array when
every listing is relevant.`, keyword, list.String())
}
