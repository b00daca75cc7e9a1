package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewware/teamcore/pkg/auth"
	"github.com/crewware/teamcore/pkg/contextkeys"
)

func newTestLimiter(t *testing.T, limit int) (*RateLimiter, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRateLimiter(client, &RateLimitConfig{
		RequestsPerWindow: limit,
		WindowDuration:    time.Minute,
	}, "test"), mr
}

func TestRateLimiter_Allow(t *testing.T) {
	rl, _ := newTestLimiter(t, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := rl.Allow(ctx, "member:1")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}

	allowed, err := rl.Allow(ctx, "member:1")
	require.NoError(t, err)
	assert.False(t, allowed)

	// Other keys have their own window.
	allowed, err = rl.Allow(ctx, "member:2")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRateLimiter_RemainingAndReset(t *testing.T) {
	rl, _ := newTestLimiter(t, 5)
	ctx := context.Background()

	remaining, err := rl.Remaining(ctx, "member:1")
	require.NoError(t, err)
	assert.Equal(t, 5, remaining)

	_, err = rl.Allow(ctx, "member:1")
	require.NoError(t, err)
	_, err = rl.Allow(ctx, "member:1")
	require.NoError(t, err)

	remaining, err = rl.Remaining(ctx, "member:1")
	require.NoError(t, err)
	assert.Equal(t, 3, remaining)

	require.NoError(t, rl.Reset(ctx, "member:1"))
	remaining, err = rl.Remaining(ctx, "member:1")
	require.NoError(t, err)
	assert.Equal(t, 5, remaining)
}

func TestRateLimiter_FailOpen(t *testing.T) {
	rl, mr := newTestLimiter(t, 1)
	mr.Close()

	allowed, err := rl.Allow(context.Background(), "member:1")
	assert.Error(t, err)
	assert.True(t, allowed)
}

func TestRateLimiter_Handler(t *testing.T) {
	rl, _ := newTestLimiter(t, 2)

	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(memberID int64) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		ctx := contextkeys.WithAuth(req.Context(), &auth.AuthContext{MemberID: memberID, TeamID: 1})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req.WithContext(ctx))
		return rec
	}

	assert.Equal(t, http.StatusOK, send(1).Code)
	assert.Equal(t, http.StatusOK, send(1).Code)

	rec := send(1)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// Another member is not affected.
	assert.Equal(t, http.StatusOK, send(2).Code)
}
