package ratelimit

import "strings"

// Reference:
// https://develop.sentry.dev/sdk/expected-features/rate-limiting/#definitions

// Category classifies supported payload types that can be throttled
// independently of each other.
type Category string

// Known rate limit categories. CategoryAll applies to all payload types.
const (
	CategoryAll          Category = ""
	CategoryError        Category = "error"
	CategoryTransaction  Category = "transaction"
	CategoryMonitor      Category = "monitor"
	CategoryMetricBucket Category = "metric_bucket"
)

// knownCategories is the set of currently known categories. Other categories
// are ignored for the purpose of rate limiting.
var knownCategories = map[Category]struct{}{
	CategoryAll:          {},
	CategoryError:        {},
	CategoryTransaction:  {},
	CategoryMonitor:      {},
	CategoryMetricBucket: {},
}

// String returns the category formatted for debugging.
func (c Category) String() string {
	switch c {
	case CategoryAll:
		return "CategoryAll"
	default:
		var b strings.Builder
		b.WriteString("Category")
		words := strings.Fields(strings.ReplaceAll(string(c), "_", " "))
		for _, word := range words {
			b.WriteString(strings.ToUpper(word[:1]))
			b.WriteString(word[1:])
		}
		return b.String()
	}
}
