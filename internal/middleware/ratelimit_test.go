package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newTestLimiter(t *testing.T, rate int, interval time.Duration) (*RateLimiter, *time.Time) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(ctx, rate, interval)
	rl.now = func() time.Time { return clock }
	return rl, &clock
}

func TestRateLimiterTake(t *testing.T) {
	rl, clock := newTestLimiter(t, 2, time.Minute)

	ok, _ := rl.take("1.1.1.1")
	assert.True(t, ok)
	ok, _ = rl.take("1.1.1.1")
	assert.True(t, ok)

	ok, wait := rl.take("1.1.1.1")
	assert.False(t, ok)
	assert.Equal(t, time.Minute, wait)

	ok, _ = rl.take("2.2.2.2")
	assert.True(t, ok, "visitors are limited independently")

	*clock = clock.Add(40 * time.Second)
	ok, wait = rl.take("1.1.1.1")
	assert.False(t, ok)
	assert.Equal(t, 20*time.Second, wait)

	*clock = clock.Add(20 * time.Second)
	ok, _ = rl.take("1.1.1.1")
	assert.True(t, ok, "tokens refill after one interval")
}

func TestRateLimiterCleanup(t *testing.T) {
	rl, clock := newTestLimiter(t, 1, time.Minute)

	rl.take("1.1.1.1")
	*clock = clock.Add(2 * time.Minute)
	rl.take("2.2.2.2")

	*clock = clock.Add(2 * time.Minute)
	rl.cleanup()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.visitors, "1.1.1.1")
	assert.Contains(t, rl.visitors, "2.2.2.2")
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl, _ := newTestLimiter(t, 1, time.Minute)

	r := gin.New()
	r.POST("/signups", rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusCreated) })

	w := serve(r, httptest.NewRequest(http.MethodPost, "/signups", nil))
	assert.Equal(t, http.StatusCreated, w.Code)

	w = serve(r, httptest.NewRequest(http.MethodPost, "/signups", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")
}
