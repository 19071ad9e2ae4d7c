package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/connected/common/logger"
	"github.com/lyzr/connected/common/ratelimit"
)

type failingLimiter struct{}

func (failingLimiter) CheckUserLimit(ctx context.Context, userID string, policy ratelimit.Policy) (*ratelimit.RateLimitResult, error) {
	return nil, errors.New("redis down")
}

func serve(t *testing.T, limiter ratelimit.Limiter, userID string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	policy := ratelimit.Policy{Action: ratelimit.ActionTransfer, Limit: 1, WindowSeconds: 60}
	h := UserRateLimitMiddleware(limiter, policy, logger.New("error", "text"))(func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)
	if userID != "" {
		SetIdentity(c, userID)
	}
	require.NoError(t, h(c))
	return rec
}

func TestUserRateLimitMiddleware(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter()

	assert.Equal(t, http.StatusNoContent, serve(t, limiter, "alice").Code)

	rec := serve(t, limiter, "alice")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "user_rate_limit_exceeded")

	assert.Equal(t, http.StatusNoContent, serve(t, limiter, "bob").Code)
}

func TestUserRateLimitMiddleware_SkipsAnonymous(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter()
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusNoContent, serve(t, limiter, "").Code)
	}
}

func TestUserRateLimitMiddleware_FailsOpen(t *testing.T) {
	assert.Equal(t, http.StatusNoContent, serve(t, failingLimiter{}, "alice").Code)
}
