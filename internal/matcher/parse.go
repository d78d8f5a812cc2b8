package matcher

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pricehound/pricehound/internal/catalog"
)

type scorerPayload struct {
	Matches []catalog.Match `json:"matches"`
}

// ParseMatches decodes a scorer response with strict-then-lenient semantics.
// Stage one is a canonical JSON parse. Stage two strips a surrounding code
// fence and retries on the first balanced top-level object in the text. A
// second failure is ErrScorerMalformedOutput; no further repair is attempted.
func ParseMatches(raw string) ([]catalog.Match, error) {
	var payload scorerPayload
	if err := json.Unmarshal([]byte(raw), &payload); err == nil {
		return payload.Matches, nil
	}

	extracted, ok := extractObject(stripCodeFence(raw))
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object found", catalog.ErrScorerMalformedOutput)
	}
	if err := json.Unmarshal([]byte(extracted), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", catalog.ErrScorerMalformedOutput, err)
	}
	return payload.Matches, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// extractObject returns the substring from the first '{' to its matching
// closing brace, honoring JSON string escapes so braces inside strings do
// not unbalance the scan.
func extractObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
