package api

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/SmartInclusion/SmartInclusion/internal/models"
)

// rateLimit rejects requests over the per-client budget with 429. It is a
// pass-through when no limiter is configured.
func (s *Server) rateLimit(next http.HandlerFunc) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r)
		if !s.limiter.Allow(key, s.now()) {
			slog.Warn("Server.rateLimit: request limited", "client", key, "path", r.URL.Path)
			w.Header().Set("Retry-After", "1")
			writeJSONResponse(w, http.StatusTooManyRequests, models.Error("Too many requests"))
			return
		}
		next(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
