package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// Fingerprint computes the canonical request-identity hash: SHA-256 hex
// of uppercase(method) | url | sorted(params) | sorted(subset of headers
// named in includeHeaders). Deterministic regardless of map iteration
// order — keys are sorted before hashing — and headers outside
// includeHeaders never affect the result.
func Fingerprint(method string, rawURL string, params url.Values, headers http.Header, includeHeaders []string) string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(method))
	b.WriteByte('|')
	b.WriteString(rawURL)
	b.WriteByte('|')
	writeSortedValues(&b, params)
	b.WriteByte('|')
	writeSortedHeaders(&b, headers, includeHeaders)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func writeSortedValues(b *strings.Builder, values url.Values) {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for i, name := range names {
		if i > 0 {
			b.WriteByte('&')
		}
		vs := append([]string(nil), values[name]...)
		sort.Strings(vs)
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(strings.Join(vs, ","))
	}
}

func writeSortedHeaders(b *strings.Builder, headers http.Header, includeHeaders []string) {
	names := make([]string, 0, len(includeHeaders))
	for _, name := range includeHeaders {
		names = append(names, strings.ToLower(name))
	}
	sort.Strings(names)
	for i, name := range names {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(headers.Get(name))
	}
}
