package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nkiryanov/guildhall/internal/handlers/render"
	"github.com/nkiryanov/guildhall/internal/handlers/userctx"
	"github.com/nkiryanov/guildhall/internal/ratelimit"
)

// ISO 8601 in UTC with milliseconds
const resetLayout = "2006-01-02T15:04:05.000Z"

// Fixed window limit per user, or per client IP for anonymous requests
// Put after Protect or OptionalAuth to count per user
func RateLimitByUser(store ratelimit.Store, maxRequests int64, window time.Duration, l errorLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ip:" + clientIP(r)
			if user, ok := userctx.FromContext(r.Context()); ok {
				key = "user:" + user.ID.String()
			}

			win, err := store.Hit(r.Context(), key, window)
			if err != nil {
				l.Error("rate limit store failed", "key", key, "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			if win.Count > maxRequests {
				retryAfter := max(int(math.Ceil(win.TTL.Seconds())), 1)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				render.ServiceError(w, "Too many requests, please try again later", http.StatusTooManyRequests, render.WithRetryAfter(retryAfter))
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.FormatInt(maxRequests, 10))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(max(maxRequests-win.Count, 0), 10))
			h.Set("X-RateLimit-Reset", win.ResetAt.UTC().Format(resetLayout))

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
