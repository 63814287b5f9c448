package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/componentry-backend/api/responses"
	pkgerrors "github.com/angelmondragon/componentry-backend/pkg/errors"
	"github.com/angelmondragon/componentry-backend/pkg/logger"
)

// Only the head of the body is inspected for the email field.
const rateLimitBodyPeek = 64 << 10

// RateLimitStore counts hits in fixed windows.
type RateLimitStore interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(policy, dimension, subject string) string
}

// AuthRateLimitPolicy throttles one credential endpoint per client IP and per
// submitted email. A zero limit disables that dimension.
type AuthRateLimitPolicy struct {
	name       string
	window     time.Duration
	ipLimit    int
	emailLimit int
}

func NewAuthRateLimitPolicy(name string, window time.Duration, ipLimit, emailLimit int) AuthRateLimitPolicy {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "auth"
	}
	return AuthRateLimitPolicy{name: name, window: window, ipLimit: ipLimit, emailLimit: emailLimit}
}

func (p AuthRateLimitPolicy) enabled() bool {
	return p.window > 0 && max(p.ipLimit, p.emailLimit) > 0
}

// counter is one window the request has to stay under. Emails are hashed
// before they reach Redis or the logs.
type counter struct {
	dimension string
	subject   string
	limit     int
}

// AuthRateLimit answers 429 with Retry-After once any counter for the request
// passes its limit. When Redis is down the request is refused rather than
// let through unthrottled.
func AuthRateLimit(policy AuthRateLimitPolicy, store RateLimitStore, logg *logger.Logger) func(http.Handler) http.Handler {
	if !policy.enabled() || store == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	retryAfter := strconv.Itoa(int(policy.window.Seconds()))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			counters, err := policy.counters(r)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable request body"))
				return
			}

			for _, c := range counters {
				hits, err := store.IncrWithTTL(ctx, store.RateLimitKey(policy.name, c.dimension, c.subject), policy.window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiter unavailable"))
					return
				}
				if hits <= int64(c.limit) {
					continue
				}
				if logg != nil {
					logg.Warn(logg.WithFields(ctx, map[string]any{
						"policy":    policy.name,
						"dimension": c.dimension,
						"subject":   c.logSubject(),
						"hits":      hits,
						"limit":     c.limit,
					}), "auth.rate_limit.blocked")
				}
				w.Header().Set("Retry-After", retryAfter)
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many attempts, try again later"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (c counter) logSubject() string {
	if c.dimension == "email" {
		return c.subject[:12]
	}
	return c.subject
}

// counters peeks at the body for the email and puts it back for the handler.
func (p AuthRateLimitPolicy) counters(r *http.Request) ([]counter, error) {
	out := make([]counter, 0, 2)
	if ip := clientIP(r); p.ipLimit > 0 && ip != "" {
		out = append(out, counter{dimension: "ip", subject: ip, limit: p.ipLimit})
	}
	if p.emailLimit <= 0 || r.Body == nil {
		return out, nil
	}
	head, err := io.ReadAll(io.LimitReader(r.Body, rateLimitBodyPeek))
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(head), r.Body))

	var body struct {
		Email string `json:"email"`
	}
	if json.Unmarshal(head, &body) == nil {
		if email := strings.ToLower(strings.TrimSpace(body.Email)); email != "" {
			sum := sha256.Sum256([]byte(email))
			out = append(out, counter{dimension: "email", subject: hex.EncodeToString(sum[:]), limit: p.emailLimit})
		}
	}
	return out, nil
}

// clientIP prefers the first X-Forwarded-For hop set by the load balancer.
func clientIP(r *http.Request) string {
	if first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ","); strings.TrimSpace(first) != "" {
		return strings.TrimSpace(first)
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
