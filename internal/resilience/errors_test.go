package resilience

import (
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "deadline exceeded" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransientNil(t *testing.T) {
	assert.False(t, IsTransient(nil))
}

func TestIsTransientExplicitMarker(t *testing.T) {
	err := NewTransient(eris.New("backend returned 503"), 503)
	assert.True(t, IsTransient(err))

	// The marker survives wrapping.
	wrapped := fmt.Errorf("extract node sec-1: %w", err)
	assert.True(t, IsTransient(wrapped))
}

func TestIsTransientNetTimeout(t *testing.T) {
	assert.True(t, IsTransient(timeoutErr{}))
}

func TestIsTransientSyscall(t *testing.T) {
	assert.True(t, IsTransient(fmt.Errorf("dial: %w", syscall.ECONNRESET)))
	assert.True(t, IsTransient(fmt.Errorf("dial: %w", syscall.ECONNREFUSED)))
}

func TestIsTransientStringPatterns(t *testing.T) {
	assert.True(t, IsTransient(eris.New("Post \"https://api\": connection reset by peer")))
	assert.True(t, IsTransient(eris.New("api error: Overloaded")))
	assert.True(t, IsTransient(eris.New("429: rate limit exceeded")))
}

func TestIsTransientPermanent(t *testing.T) {
	assert.False(t, IsTransient(eris.New("invalid api key")))
	assert.False(t, IsTransient(eris.New("schema validation failed")))
}

func TestIsTransientStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504, 529} {
		assert.True(t, IsTransientStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 400, 401, 403, 404, 422} {
		assert.False(t, IsTransientStatus(code), "status %d", code)
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, "transient", Classify(NewTransient(eris.New("overloaded"), 529)))
	assert.Equal(t, "permanent", Classify(eris.New("invalid api key")))
}

func TestTransientErrorUnwrap(t *testing.T) {
	inner := eris.New("boom")
	err := NewTransient(inner, 500)
	assert.Equal(t, "boom", err.Error())
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, 500, err.StatusCode)
}

func TestQuarantineEligible(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	q := &QuarantinedNode{RetryCount: 1, MaxRetries: 3, NextRetryAt: now.Add(-time.Minute)}
	assert.True(t, q.Eligible(now))

	q.NextRetryAt = now.Add(time.Minute)
	assert.False(t, q.Eligible(now))

	q.NextRetryAt = now.Add(-time.Minute)
	q.RetryCount = 3
	assert.False(t, q.Eligible(now))

	// Exactly at the retry time counts as eligible.
	q.RetryCount = 2
	q.NextRetryAt = now
	assert.True(t, q.Eligible(now))
}
