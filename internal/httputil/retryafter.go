// Package httputil parses the small set of HTTP header grammars the
// pipeline cares about: Retry-After and Cache-Control. Grounded on the
// teacher's internal/utils parsing helpers in spirit (small, dependency-free
// string-to-value converters), new code since the teacher has no HTTP
// wire-format parsing of its own.
package httputil

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ParseRetryAfter parses a Retry-After header value, accepting either an
// integer seconds count or an RFC 7231 HTTP-date. now is the reference
// point for HTTP-date values. Returns (0, false) when raw is empty or
// unparseable.
func ParseRetryAfter(raw string, now time.Time) (time.Duration, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}

	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds < 0 {
			seconds = 0
		}
		return time.Duration(seconds) * time.Second, true
	}

	for _, layout := range []string{http.TimeFormat, time.RFC850, time.ANSIC} {
		if t, err := time.Parse(layout, raw); err == nil {
			d := t.Sub(now)
			if d < 0 {
				d = 0
			}
			return d, true
		}
	}

	return 0, false
}
