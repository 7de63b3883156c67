package httphandler

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(context.Background(), 0, 1, nil)

	assert.False(t, rl.Enabled())
	for range 100 {
		assert.True(t, rl.Allow("10.0.0.1"))
	}
	assert.Zero(t, rl.size())
}

func TestRateLimiter_PerClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl := NewRateLimiter(ctx, 1, 1, nil)

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"), "buckets are per client")
	assert.Equal(t, 2, rl.size())
}

func TestRateLimiter_Sweep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl := NewRateLimiter(ctx, 60, 5, nil)
	rl.Allow("a")
	rl.Allow("b")

	rl.sweep(time.Now().Add(-time.Hour))
	assert.Equal(t, 2, rl.size())

	rl.sweep(time.Now().Add(time.Second))
	assert.Zero(t, rl.size())
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	assert.Equal(t, "192.0.2.7", clientIP(req))

	req.RemoteAddr = "not-an-addr"
	assert.Equal(t, "not-an-addr", clientIP(req))
}
