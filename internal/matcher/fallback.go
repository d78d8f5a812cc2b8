package matcher

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/pricehound/pricehound/internal/catalog"
)

// Curated token lists for the deterministic scorer. Product-type keywords
// earn a small bonus, brand tokens a larger one; both lists are tunable
// through Config.
var (
	defaultDomainKeywords = []string{
		"口罩", "醫療", "醫用", "成人", "兒童", "防護", "平面", "立體",
		"iphone", "ipad", "airpods", "macbook", "switch", "ps5",
		"筆電", "電腦", "耳機", "手機", "充電器", "滑鼠", "鍵盤",
	}

	defaultBrands = []string{
		"apple", "samsung", "sony", "nintendo", "asus", "acer", "hp",
		"dell", "lenovo", "lg", "dyson", "philips",
		"中衛", "csd", "永猷", "motex", "摩戴舒", "rst",
	}
)

// modelCode matches uppercase alphanumeric runs; a run qualifies as a model
// code only when it mixes letters and digits (X200, A2650), which filters
// out plain words and bare numbers.
var modelCode = regexp.MustCompile(`\b[A-Z0-9]+\b`)

// fallbackScore computes the deterministic similarity for one pair:
// token-set overlap plus curated keyword, brand and model-code bonuses,
// clamped to [0, 1].
func (m *Matcher) fallbackScore(targetTitle, candidateTitle string) (float64, string) {
	target := strings.ToLower(targetTitle)
	candidate := strings.ToLower(candidateTitle)

	targetTokens := tokenSet(target)
	candidateTokens := tokenSet(candidate)

	union := len(targetTokens)
	common := 0
	for tok := range candidateTokens {
		if targetTokens[tok] {
			common++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0, ""
	}
	score := float64(common) / float64(union)
	reason := fmt.Sprintf("keyword overlap %d/%d", common, union)

	for _, kw := range m.cfg.DomainKeywords {
		if strings.Contains(target, kw) && strings.Contains(candidate, kw) {
			score += 0.15
		}
	}

	brandMatched := false
	for _, brand := range m.cfg.Brands {
		if strings.Contains(target, brand) && strings.Contains(candidate, brand) {
			score += 0.25
			brandMatched = true
		}
	}
	if brandMatched {
		reason += ", brand match"
	}

	if sharedModelCode(targetTitle, candidateTitle) {
		score += 0.30
		reason += ", model match"
	}

	if score > 1.0 {
		score = 1.0
	}
	return score, reason
}

// fallbackCompare scores every candidate, keeps those at or above the floor
// and sorts them by descending similarity. It is fully deterministic for a
// given input and serves as the correctness baseline for the primary scorer.
func (m *Matcher) fallbackCompare(target catalog.TargetProduct, candidates []catalog.Candidate) []catalog.Match {
	var matches []catalog.Match
	for i, c := range candidates {
		score, reason := m.fallbackScore(target.Title, c.Title)
		if score < m.cfg.FallbackFloor {
			continue
		}
		matches = append(matches, catalog.Match{
			Index:      i,
			Similarity: round2(score),
			Reason:     reason,
			Confidence: fallbackConfidence(score),
			Category:   fallbackCategory(score),
		})
	}
	sort.SliceStable(matches, func(a, b int) bool {
		return matches[a].Similarity > matches[b].Similarity
	})
	return matches
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(s) {
		set[tok] = true
	}
	return set
}

func sharedModelCode(a, b string) bool {
	codesA := extractModelCodes(a)
	if len(codesA) == 0 {
		return false
	}
	for code := range extractModelCodes(b) {
		if codesA[code] {
			return true
		}
	}
	return false
}

func extractModelCodes(title string) map[string]bool {
	codes := make(map[string]bool)
	for _, run := range modelCode.FindAllString(strings.ToUpper(title), -1) {
		if strings.IndexFunc(run, func(r rune) bool { return r >= 'A' && r <= 'Z' }) < 0 {
			continue
		}
		if strings.IndexFunc(run, func(r rune) bool { return r >= '0' && r <= '9' }) < 0 {
			continue
		}
		codes[run] = true
	}
	return codes
}

func fallbackConfidence(score float64) string {
	switch {
	case score >= 0.7:
		return catalog.ConfidenceHigh
	case score >= 0.5:
		return catalog.ConfidenceMedium
	default:
		return catalog.ConfidenceLow
	}
}

func fallbackCategory(score float64) string {
	if score >= 0.8 {
		return "highly similar"
	}
	return "partially similar"
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}
