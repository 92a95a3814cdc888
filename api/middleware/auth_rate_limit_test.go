package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubRateLimiter struct {
	counts map[string]int64
	err    error
}

func (s *stubRateLimiter) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	if s.err != nil {
		return false, 0, s.err
	}
	if s.counts == nil {
		s.counts = map[string]int64{}
	}
	s.counts[scope]++
	return s.counts[scope] <= limit, s.counts[scope], nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func loginRequest(email string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/auth/login", strings.NewReader(`{"email":"`+email+`","password":"secret123"}`))
	req.RemoteAddr = "203.0.113.9:52100"
	return req
}

func TestAuthRateLimitBlocksEmailAfterLimit(t *testing.T) {
	store := &stubRateLimiter{}
	policy := AuthRateLimitPolicy{Scope: "login", Window: time.Minute, EmailLimit: 2, IPLimit: 100}
	handler := AuthRateLimit(store, policy, testLogger())(okHandler())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, loginRequest("admin@dstars.example.com"))
		require.Equal(t, http.StatusNoContent, rec.Code)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, loginRequest("admin@dstars.example.com"))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestAuthRateLimitBlocksIPAfterLimit(t *testing.T) {
	store := &stubRateLimiter{}
	policy := AuthRateLimitPolicy{Scope: "login", Window: time.Minute, EmailLimit: 100, IPLimit: 3}
	handler := AuthRateLimit(store, policy, testLogger())(okHandler())

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, loginRequest("user"+string(rune('a'+i))+"@dstars.example.com"))
		require.Equal(t, http.StatusNoContent, rec.Code)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, loginRequest("someone-else@dstars.example.com"))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestAuthRateLimitFailsOpenWhenStoreDown(t *testing.T) {
	store := &stubRateLimiter{err: errors.New("redis down")}
	policy := AuthRateLimitPolicy{Scope: "login", Window: time.Minute, EmailLimit: 1, IPLimit: 1}
	handler := AuthRateLimit(store, policy, testLogger())(okHandler())

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, loginRequest("admin@dstars.example.com"))
		require.Equal(t, http.StatusNoContent, rec.Code)
	}
}

func TestAuthRateLimitRestoresBodyForHandler(t *testing.T) {
	store := &stubRateLimiter{}
	policy := AuthRateLimitPolicy{Scope: "login", Window: time.Minute, EmailLimit: 10, IPLimit: 10}

	var seenBody string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Email string `json:"email"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		seenBody = payload.Email
		w.WriteHeader(http.StatusNoContent)
	})
	handler := AuthRateLimit(store, policy, testLogger())(inner)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, loginRequest("admin@dstars.example.com"))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "admin@dstars.example.com", seenBody)
}
