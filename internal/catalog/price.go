package catalog

import (
	"strconv"
	"strings"
)

// CoercePrice normalizes a price-like value from a fetcher payload into
// currency minor units. Fetchers hand back whatever the platform serialized:
// integers, floats, or strings with currency symbols and separators. A value
// that cannot be parsed coerces to 0 rather than dropping the product.
func CoercePrice(v any) int64 {
	switch p := v.(type) {
	case nil:
		return 0
	case int:
		return int64(p)
	case int64:
		return p
	case float64:
		return int64(p)
	case float32:
		return int64(p)
	case string:
		return parsePriceString(p)
	default:
		return 0
	}
}

func parsePriceString(s string) int64 {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-':
			return r
		default:
			return -1
		}
	}, strings.TrimSpace(s))
	if cleaned == "" {
		return 0
	}
	if n, err := strconv.ParseInt(cleaned, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return int64(f)
	}
	return 0
}
