package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nkiryanov/guildhall/internal/handlers/render"
)

// Limiters are dropped once there are more than this and they are full again
const maxTrackedClients = 10_000

// Token bucket per client IP, slows down password guessing on login
type LoginThrottle struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

// Allow 'perMinute' attempts on average with bursts up to 'burst'
func NewLoginThrottle(perMinute int, burst int) *LoginThrottle {
	return &LoginThrottle{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perMinute) / 60,
		burst:    burst,
		now:      time.Now,
	}
}

func (t *LoginThrottle) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := t.now()
		limiter := t.limiter(clientIP(r), now)

		if !limiter.AllowN(now, 1) {
			retryAfter := max(int(math.Ceil(1/float64(t.limit))), 1)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			render.ServiceError(w, "Too many login attempts, please try again later", http.StatusTooManyRequests, render.WithRetryAfter(retryAfter))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (t *LoginThrottle) limiter(ip string, now time.Time) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	limiter, ok := t.limiters[ip]
	if ok {
		return limiter
	}

	if len(t.limiters) >= maxTrackedClients {
		for k, l := range t.limiters {
			if l.TokensAt(now) >= float64(t.burst) {
				delete(t.limiters, k)
			}
		}
	}

	limiter = rate.NewLimiter(t.limit, t.burst)
	t.limiters[ip] = limiter
	return limiter
}
