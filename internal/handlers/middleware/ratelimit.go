package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/nkiryanov/queuedesk/internal/handlers/render"
	"github.com/nkiryanov/queuedesk/internal/ratelimit"
)

type limiter interface {
	Allow(ctx context.Context, key string) (ratelimit.Result, error)
}

type errorLogger interface {
	Error(msg string, args ...any)
}

// RateLimit rejects requests over the limit with 429
// Limit headers are set on every response. Limiter failures admit the request
// and report only 'X-RateLimit-Limit' when the limiter knows it
func RateLimit(l limiter, identify func(*http.Request) string, log errorLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := l.Allow(r.Context(), identify(r))
			if err != nil {
				log.Error("Rate limiter failed, request admitted", "error", err, "path", r.URL.Path)
				if res.Limit > 0 {
					w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
				}
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(res.Reset.Unix(), 10))

			var throttled *ratelimit.ThrottleError
			if errors.As(res.Err(), &throttled) {
				render.TooManyRequests(w, throttled.RetryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Client ip of the request
// With trustProxy the first 'X-Forwarded-For' hop is used when present
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
