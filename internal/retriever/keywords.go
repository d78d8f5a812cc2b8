package retriever

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Decoration characters and promotional phrases that carry no product
// identity. The defaults mirror what sellers on the supported platforms
// decorate listings with; both are tunable through Config.
var (
	defaultNoiseRunes = "【】★☆▶▷※◆◇■□"

	defaultNoiseTokens = []string{
		"限時", "特價", "促銷", "優惠", "折扣", "免運", "現貨", "熱銷",
		"新款", "正品", "官方", "代理", "公司貨",
		"sale", "hot", "new", "official",
	}
)

var yearToken = regexp.MustCompile(`^(19|20)\d{2}$`)

// ExtractKeywords derives search terms from a product title: decoration and
// marketing tokens are stripped, any parenthetical suffix is truncated, and
// the leading terms of sufficient length are kept. An empty result means the
// title was all noise and the caller should short-circuit.
func (r *Retriever) ExtractKeywords(title string) []string {
	cleaned := title
	for _, rn := range r.cfg.NoiseRunes {
		cleaned = strings.ReplaceAll(cleaned, string(rn), " ")
	}
	for _, tok := range r.cfg.NoiseTokens {
		cleaned = strings.ReplaceAll(cleaned, tok, " ")
	}

	// Parenthetical suffixes hold pack sizes and gift notes, not identity.
	if i := strings.IndexAny(cleaned, "(（"); i >= 0 {
		cleaned = cleaned[:i]
	}

	var terms []string
	for _, word := range strings.Fields(cleaned) {
		if utf8.RuneCountInString(word) < r.cfg.MinTokenLen {
			continue
		}
		if yearToken.MatchString(word) {
			continue
		}
		terms = append(terms, word)
		if len(terms) == r.cfg.MaxTerms {
			break
		}
	}
	return terms
}
