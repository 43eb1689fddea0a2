package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type infoLogger interface {
	Info(msg string, args ...any)
}

type accessKey struct{}

// Filled by inner middlewares while the request travels down the chain
type accessEntry struct {
	userID uuid.UUID
}

// Remember authenticated user for the access log line
func noteUser(ctx context.Context, id uuid.UUID) {
	if e, ok := ctx.Value(accessKey{}).(*accessEntry); ok {
		e.userID = id
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (w *statusRecorder) Write(p []byte) (int, error) {
	n, err := w.ResponseWriter.Write(p)
	w.size += n
	return n, err
}

func (w *statusRecorder) WriteHeader(status int) {
	w.ResponseWriter.WriteHeader(status)
	w.status = status
}

// Write one line per request. user_id is present when some handler down the chain authenticated the request
func AccessLog(l infoLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			entry := &accessEntry{}
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), accessKey{}, entry)))

			args := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"size", rec.size,
				"ip", clientIP(r),
				"duration", time.Since(start),
			}
			if entry.userID != uuid.Nil {
				args = append(args, "user_id", entry.userID.String())
			}
			l.Info("request handled", args...)
		})
	}
}
