package httputil

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseRetryAfter_IntegerSeconds(t *testing.T) {
	d, ok := ParseRetryAfter("120", time.Now())
	assert.True(t, ok)
	assert.Equal(t, 120*time.Second, d)
}

func TestParseRetryAfter_Empty(t *testing.T) {
	_, ok := ParseRetryAfter("", time.Now())
	assert.False(t, ok)
}

func TestParseRetryAfter_Invalid(t *testing.T) {
	_, ok := ParseRetryAfter("not-a-value", time.Now())
	assert.False(t, ok)
}

func TestParseRetryAfter_HTTPDate(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(90 * time.Second)
	raw := future.Format(http.TimeFormat)

	d, ok := ParseRetryAfter(raw, now)
	assert.True(t, ok)
	assert.Equal(t, 90*time.Second, d)
}

func TestParseRetryAfter_PastDateClampsToZero(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-90 * time.Second)
	raw := past.Format(http.TimeFormat)

	d, ok := ParseRetryAfter(raw, now)
	assert.True(t, ok)
	assert.Equal(t, time.Duration(0), d)
}

func TestParseRetryAfter_NegativeSecondsClampsToZero(t *testing.T) {
	d, ok := ParseRetryAfter("-5", time.Now())
	assert.True(t, ok)
	assert.Equal(t, time.Duration(0), d)
}

func TestCacheControl_RoundTrip(t *testing.T) {
	d := ParseCacheControl("no-cache, max-age=120, private")
	rendered := RenderCacheControl(d)
	reparsed := ParseCacheControl(rendered)
	assert.Equal(t, d, reparsed)
}

func TestCacheControl_IntegerValue(t *testing.T) {
	d := ParseCacheControl("max-age=300")
	assert.EqualValues(t, 300, d["max-age"])
}

func TestCacheControl_BareTokenIsTrue(t *testing.T) {
	d := ParseCacheControl("no-store")
	assert.Equal(t, true, d["no-store"])
}

func TestCacheControl_NonIntegerValueStaysString(t *testing.T) {
	d := ParseCacheControl(`community="UCI"`)
	assert.Equal(t, "UCI", d["community"])
}
