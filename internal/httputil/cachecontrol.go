package httputil

import (
	"sort"
	"strconv"
	"strings"
)

// CacheControlDirectives is a parsed Cache-Control header: bare tokens map
// to true, key=value pairs map to an int64 when the value parses as an
// integer, otherwise to the raw string.
type CacheControlDirectives map[string]interface{}

// ParseCacheControl splits raw on commas and classifies each directive.
// Directive names are lower-cased; values are trimmed of surrounding
// whitespace and double quotes, then coerced to int64 when they parse as
// an integer.
func ParseCacheControl(raw string) CacheControlDirectives {
	directives := make(CacheControlDirectives)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, hasValue := strings.Cut(part, "=")
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if !hasValue {
			directives[name] = true
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"`)
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			directives[name] = n
		} else {
			directives[name] = value
		}
	}
	return directives
}

// RenderCacheControl renders directives back into a Cache-Control header
// value. Keys are sorted for deterministic output, making
// ParseCacheControl(RenderCacheControl(d)) round-trip to an equal map.
func RenderCacheControl(directives CacheControlDirectives) string {
	names := make([]string, 0, len(directives))
	for name := range directives {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		switch v := directives[name].(type) {
		case bool:
			if v {
				parts = append(parts, name)
			}
		case int64:
			parts = append(parts, name+"="+strconv.FormatInt(v, 10))
		case int:
			parts = append(parts, name+"="+strconv.Itoa(v))
		case string:
			parts = append(parts, name+"="+v)
		}
	}
	return strings.Join(parts, ", ")
}
