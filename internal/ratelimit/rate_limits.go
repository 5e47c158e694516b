package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

const defaultRetryAfter = 1 * time.Minute

// FromResponse returns a rate limit map from an HTTP response.
//
// The X-Sentry-Rate-Limits header is authoritative when present; otherwise a
// 429 response falls back to Retry-After; any other response yields no
// limits. Parsing never consumes the response body, so the caller can still
// inspect the response afterwards.
func FromResponse(r *http.Response) Map {
	return fromResponse(r, now())
}

func fromResponse(r *http.Response, now time.Time) Map {
	s := r.Header.Get("X-Sentry-Rate-Limits")
	if s != "" {
		return parseXSentryRateLimits(s, now)
	}
	if r.StatusCode == http.StatusTooManyRequests {
		s := r.Header.Get("Retry-After")
		deadline := parseRetryAfter(s, now)
		return Map{CategoryAll: deadline}
	}
	return Map{}
}

// parseXSentryRateLimits returns a RateLimits map by parsing an input string
// in the format of the X-Sentry-Rate-Limits header.
//
// The header is a comma-separated list of quota limits in the format
//
//	<retry_after>:<categories>:<scope>:<reason_code>
//
// where categories is a semicolon-separated list of category names, with the
// empty list (or "*") meaning all categories. Only retry_after and categories
// are relevant to the SDK; malformed quota limits are ignored rather than
// propagated.
func parseXSentryRateLimits(s string, now time.Time) Map {
	m := Map{}
	for _, limit := range strings.Split(s, ",") {
		limit = strings.TrimSpace(limit)
		if limit == "" {
			continue
		}
		components := strings.Split(limit, ":")
		retryAfter, err := parseDelaySeconds(components[0])
		if err != nil {
			continue
		}
		deadline := Deadline(now.Add(retryAfter))

		var categories string
		if len(components) > 1 {
			categories = components[1]
		}
		for _, category := range strings.Split(categories, ";") {
			c, known := parseCategory(category)
			if !known {
				// Unknown categories must not throttle everything.
				continue
			}
			if deadline.After(m[c]) {
				m[c] = deadline
			}
		}
	}
	return m
}

func parseCategory(s string) (Category, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "*" {
		s = ""
	}
	c := Category(s)
	_, known := knownCategories[c]
	return c, known
}

// parseDelaySeconds parses a non-negative number of seconds, tolerating a
// fractional part, as some collectors emit floats.
func parseDelaySeconds(s string) (time.Duration, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f < 0 {
		if err == nil {
			err = strconv.ErrRange
		}
		return 0, err
	}
	return time.Duration(f * float64(time.Second)), nil
}

// parseRetryAfter returns a deadline from a string in the format of the
// Retry-After header: either a delay in seconds or an HTTP date. Malformed
// input falls back to a 60 second back-off.
func parseRetryAfter(s string, now time.Time) Deadline {
	if delay, err := parseDelaySeconds(s); err == nil {
		return Deadline(now.Add(delay))
	}
	if date, err := http.ParseTime(s); err == nil {
		return Deadline(date)
	}
	return Deadline(now.Add(defaultRetryAfter))
}
