package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/dstarsfitness/dstars-backend/api/responses"
	"github.com/dstarsfitness/dstars-backend/pkg/config"
	pkgerrors "github.com/dstarsfitness/dstars-backend/pkg/errors"
	"github.com/dstarsfitness/dstars-backend/pkg/logger"
)

const maxRateLimitBodyBytes = 1 << 16

type RateLimiterStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// AuthRateLimitPolicy bounds how often an email or client IP can hit an
// abuse-prone auth endpoint inside the window.
type AuthRateLimitPolicy struct {
	Scope      string
	Window     time.Duration
	EmailLimit int64
	IPLimit    int64
}

func NewLoginRateLimitPolicy(cfg config.AuthRateLimitConfig) AuthRateLimitPolicy {
	return AuthRateLimitPolicy{
		Scope:      "login",
		Window:     cfg.LoginWindow,
		EmailLimit: int64(cfg.LoginEmailLimit),
		IPLimit:    int64(cfg.LoginIPLimit),
	}
}

func NewRegisterRateLimitPolicy(cfg config.AuthRateLimitConfig) AuthRateLimitPolicy {
	return AuthRateLimitPolicy{
		Scope:      "register",
		Window:     cfg.RegisterWindow,
		EmailLimit: int64(cfg.RegisterEmailLimit),
		IPLimit:    int64(cfg.RegisterIPLimit),
	}
}

// AuthRateLimit throttles by client IP and, when the body carries one, by
// the submitted email. The limiter fails open when Redis is unreachable.
func AuthRateLimit(store RateLimiterStore, policy AuthRateLimitPolicy, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			ip := ClientIP(r)
			if ip != "" && policy.IPLimit > 0 {
				allowed, _, err := store.FixedWindowAllow(ctx, policy.Scope+":ip:"+ip, policy.IPLimit, policy.Window)
				if err != nil {
					logg.Warn(logg.WithField(ctx, "error", err.Error()), "auth_rate_limit.redis_unavailable")
				} else if !allowed {
					respondRateLimited(ctx, logg, w)
					return
				}
			}

			email := extractEmail(r)
			if email != "" && policy.EmailLimit > 0 {
				allowed, _, err := store.FixedWindowAllow(ctx, policy.Scope+":email:"+email, policy.EmailLimit, policy.Window)
				if err != nil {
					logg.Warn(logg.WithField(ctx, "error", err.Error()), "auth_rate_limit.redis_unavailable")
				} else if !allowed {
					respondRateLimited(ctx, logg, w)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func respondRateLimited(ctx context.Context, logg *logger.Logger, w http.ResponseWriter) {
	responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many attempts, try again later"))
}

// ClientIP resolves the caller's address, preferring proxy headers.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first := strings.TrimSpace(strings.SplitN(forwarded, ",", 2)[0])
		if first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-Ip")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// extractEmail peeks the email field from a JSON body, restoring the body
// so the handler can decode it again.
func extractEmail(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRateLimitBodyBytes))
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	var payload struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(payload.Email))
}
