package middleware

import (
	"log/slog"
	"net/http"
	"strconv"

	"go-auth-core/internal/limiter"
	"go-auth-core/internal/metrics"
	"go-auth-core/internal/model"
)

// RateLimit guards a route with a shared fixed-window limiter keyed by
// client address. State lives in the counter store, so the limit holds
// across service instances.
func RateLimit(window *limiter.FixedWindow, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, err := window.Allow(r.Context(), ExtractClientIP(r))
			if err != nil {
				// Fail-closed policy: counter store trouble rejects the request.
				slog.Error("rate limit check failed", "error", err)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = jsonEncode(w, model.APIResponse{
					Success: false,
					Error:   &model.APIError{Code: "SERVICE_UNAVAILABLE", Message: "Try again later"},
				})
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(window.Limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))

			if !decision.Allowed {
				m.RateLimited.Inc()
				retryAfter := int64(decision.RetryAfter.Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = jsonEncode(w, model.APIResponse{
					Success: false,
					Error:   &model.APIError{Code: "RATE_LIMIT_EXCEEDED", Message: "Too many requests"},
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
