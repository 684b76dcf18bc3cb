// Package redact masks sensitive data — header values, query parameters,
// and body content — before it reaches a log sink. Grounded on
// internal/utils/sanitization.go's SensitiveDataMasker: the same
// reflect-based recursive walk over arbitrary values, extended with the
// three mask styles (Full, Partial, Hash) and query-parameter support
// spec.md §4.5 requires.
package redact

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"reflect"
	"regexp"
	"sort"
	"strings"
)

// Style selects how a matched value is rendered once redacted.
type Style int

const (
	// StyleFull replaces the entire value with a fixed placeholder.
	StyleFull Style = iota
	// StylePartial keeps the first and last N characters, masking the middle.
	StylePartial
	// StyleHash replaces the value with a short SHA-256 prefix.
	StyleHash
)

const fullPlaceholder = "***REDACTED***"

// Pattern is a regular expression applied to body text (and non-redacted
// header values). The first capture group is replaced if present,
// otherwise the entire match is replaced.
type Pattern struct {
	Name  string
	Regex *regexp.Regexp
}

// Config lists the redaction surfaces spec.md §4.5 names.
type Config struct {
	HeaderNames []string // lower-cased header names to mask in full
	QueryParams []string // lower-cased query parameter names to mask
	BodyPatterns []Pattern
	Style        Style
	PartialN     int // used only when Style == StylePartial
}

// DefaultConfig returns the built-in redaction targets from spec.md §4.5.
func DefaultConfig() Config {
	return Config{
		HeaderNames: []string{
			"authorization", "x-api-key", "api-key", "apikey",
			"x-auth-token", "cookie", "set-cookie", "x-csrf-token",
		},
		QueryParams: []string{
			"password", "token", "secret", "api_key", "apikey", "access_token",
		},
		BodyPatterns: []Pattern{
			{Name: "password_field", Regex: regexp.MustCompile(`(?i)password=([^&\s"']+)`)},
			{Name: "token_field", Regex: regexp.MustCompile(`(?i)token=([^&\s"']+)`)},
			{Name: "secret_field", Regex: regexp.MustCompile(`(?i)secret=([^&\s"']+)`)},
			{Name: "api_key_field", Regex: regexp.MustCompile(`(?i)api_key=([^&\s"']+)`)},
			{Name: "bearer_token", Regex: regexp.MustCompile(`(?i)Bearer\s+([a-zA-Z0-9._-]+)`)},
			{Name: "basic_auth", Regex: regexp.MustCompile(`(?i)Basic\s+([a-zA-Z0-9+/=]+)`)},
		},
		Style:    StyleFull,
		PartialN: 4,
	}
}

// Masker applies a Config to headers, query strings, and arbitrary body
// values.
type Masker struct {
	cfg         Config
	headerSet   map[string]struct{}
	querySet    map[string]struct{}
}

// New builds a Masker from cfg.
func New(cfg Config) *Masker {
	m := &Masker{cfg: cfg, headerSet: map[string]struct{}{}, querySet: map[string]struct{}{}}
	for _, h := range cfg.HeaderNames {
		m.headerSet[strings.ToLower(h)] = struct{}{}
	}
	for _, q := range cfg.QueryParams {
		m.querySet[strings.ToLower(q)] = struct{}{}
	}
	return m
}

// mask renders value per the configured Style.
func (m *Masker) mask(value string) string {
	switch m.cfg.Style {
	case StylePartial:
		n := m.cfg.PartialN
		if n <= 0 {
			n = 4
		}
		if len(value) <= 2*n {
			return "****"
		}
		return value[:n] + "..." + value[len(value)-n:]
	case StyleHash:
		sum := sha256.Sum256([]byte(value))
		return "[HASH:" + hex.EncodeToString(sum[:])[:8] + "]"
	default:
		return fullPlaceholder
	}
}

// MaskHeaders returns a copy of headers with every configured sensitive
// header name masked in full (values replaced wholesale, not pattern-matched).
func (m *Masker) MaskHeaders(headers map[string][]string) map[string][]string {
	if headers == nil {
		return nil
	}
	out := make(map[string][]string, len(headers))
	for k, values := range headers {
		if _, sensitive := m.headerSet[strings.ToLower(k)]; sensitive {
			out[k] = []string{m.mask(strings.Join(values, ","))}
			continue
		}
		masked := make([]string, len(values))
		for i, v := range values {
			masked[i] = m.maskBodyPatterns(v)
		}
		out[k] = masked
	}
	return out
}

// MaskURL reassembles rawURL with every configured sensitive query
// parameter value masked.
func (m *Masker) MaskURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return m.maskBodyPatterns(rawURL)
	}
	q := u.Query()
	changed := false
	names := make([]string, 0, len(q))
	for name := range q {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, sensitive := m.querySet[strings.ToLower(name)]; !sensitive {
			continue
		}
		values := q[name]
		for i, v := range values {
			values[i] = m.mask(v)
		}
		q[name] = values
		changed = true
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// maskBodyPatterns applies every configured regular expression to s,
// replacing the first capture group (or the whole match, absent one).
func (m *Masker) maskBodyPatterns(s string) string {
	out := s
	for _, p := range m.cfg.BodyPatterns {
		out = p.Regex.ReplaceAllStringFunc(out, func(match string) string {
			sub := p.Regex.FindStringSubmatch(match)
			if len(sub) > 1 {
				return strings.Replace(match, sub[1], m.mask(sub[1]), 1)
			}
			return m.mask(match)
		})
	}
	return out
}

// MaskBody applies body-pattern redaction to raw body bytes, treating
// them as text; it does not attempt structured JSON traversal (that is
// MaskValue's job for already-decoded data).
func (m *Masker) MaskBody(body []byte) []byte {
	if len(body) == 0 {
		return body
	}
	return []byte(m.maskBodyPatterns(string(body)))
}

// MaskValue recursively redacts sensitive data within an arbitrary Go
// value (maps, slices, structs, strings), used for logging already
// json.Unmarshal-ed bodies. Grounded on SensitiveDataMasker.maskValue.
func (m *Masker) MaskValue(v interface{}) interface{} {
	return m.maskReflect(reflect.ValueOf(v)).Interface()
}

func (m *Masker) maskReflect(v reflect.Value) reflect.Value {
	if !v.IsValid() {
		return v
	}
	switch v.Kind() {
	case reflect.String:
		return reflect.ValueOf(m.maskBodyPatterns(v.String()))
	case reflect.Map:
		return m.maskMap(v)
	case reflect.Slice, reflect.Array:
		return m.maskSlice(v)
	case reflect.Ptr:
		if v.IsNil() {
			return v
		}
		elem := m.maskReflect(v.Elem())
		ptr := reflect.New(elem.Type())
		ptr.Elem().Set(elem)
		return ptr
	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		return reflect.ValueOf(m.MaskValue(v.Interface()))
	default:
		return v
	}
}

func (m *Masker) maskMap(v reflect.Value) reflect.Value {
	if v.IsNil() {
		return v
	}
	out := reflect.MakeMap(v.Type())
	for _, key := range v.MapKeys() {
		keyStr := fmt.Sprintf("%v", key.Interface())
		if _, sensitive := m.querySet[strings.ToLower(keyStr)]; sensitive {
			out.SetMapIndex(key, reflect.ValueOf(m.mask(fmt.Sprintf("%v", v.MapIndex(key).Interface()))).Convert(v.Type().Elem()))
			continue
		}
		out.SetMapIndex(key, m.maskReflect(v.MapIndex(key)))
	}
	return out
}

func (m *Masker) maskSlice(v reflect.Value) reflect.Value {
	out := reflect.MakeSlice(v.Type(), v.Len(), v.Cap())
	for i := 0; i < v.Len(); i++ {
		out.Index(i).Set(m.maskReflect(v.Index(i)))
	}
	return out
}

// ContainsValue reports whether s appears verbatim in rendered — used in
// tests to assert a secret never reaches a log line.
func ContainsValue(rendered, secret string) bool {
	return strings.Contains(rendered, secret)
}
