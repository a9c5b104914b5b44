package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"go-auth-core/internal/model"
)

type clientThrottle struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Throttle is a coarse in-process per-IP limiter for the whole API. It is
// a backstop against abusive clients, not the shared login budget; that
// one is enforced by the fixed-window limiter.
type Throttle struct {
	rpm     int
	mu      sync.Mutex
	clients map[string]*clientThrottle
}

func NewThrottle(rpm int) *Throttle {
	if rpm <= 0 {
		rpm = 300
	}
	return &Throttle{rpm: rpm, clients: map[string]*clientThrottle{}}
}

func (t *Throttle) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !t.allow(ExtractClientIP(r)) {
			w.Header().Set("Retry-After", "60")
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

func (t *Throttle) allow(clientIP string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, exists := t.clients[clientIP]
	if !exists {
		entry = &clientThrottle{
			limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(t.rpm)), t.rpm),
		}
		t.clients[clientIP] = entry
	}
	entry.lastSeen = time.Now()
	t.gcLocked()

	return entry.limiter.Allow()
}

func (t *Throttle) gcLocked() {
	if len(t.clients) < 1000 {
		return
	}

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, entry := range t.clients {
		if entry.lastSeen.Before(cutoff) {
			delete(t.clients, ip)
		}
	}
}

func ExtractClientIP(r *http.Request) string {
	forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}

	realIP := strings.TrimSpace(r.Header.Get("X-Real-IP"))
	if realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}

	if strings.TrimSpace(r.RemoteAddr) == "" {
		return "unknown"
	}

	return r.RemoteAddr
}
