package api

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/tezrelay/relay/internal/auth"
	"github.com/tezrelay/relay/internal/presence"
)

// Rate limit tiers for different endpoint categories.
const (
	// Authenticated user global rate limit: 6000 requests per minute.
	authedRateLimit  = 6000
	authedRateWindow = 1 * time.Minute

	// Unauthenticated global rate limit: 1200 requests per minute per IP.
	unauthRateLimit  = 1200
	unauthRateWindow = 1 * time.Minute

	// Tez sharing: 100 shares per 10 seconds per user.
	shareRateLimit  = 100
	shareRateWindow = 10 * time.Second

	// Search: 300 queries per minute per user.
	searchRateLimit  = 300
	searchRateWindow = 1 * time.Minute
)

// RateLimitGlobal returns middleware that enforces rate limits using
// DragonflyDB/Redis. It applies a global rate limit per user (or IP for
// unauthenticated requests). Must be applied AFTER auth middleware on
// authenticated routes so that auth.UserIDFromContext returns the
// authenticated user ID.
func (s *Server) RateLimitGlobal() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.Cache == nil {
				next.ServeHTTP(w, r)
				return
			}

			userID := auth.UserIDFromContext(r.Context())
			var key string
			var limit int
			var window time.Duration

			if userID != "" {
				key = "global:" + userID
				limit = authedRateLimit
				window = authedRateWindow
			} else {
				key = "global:" + clientIP(r)
				limit = unauthRateLimit
				window = unauthRateWindow
			}

			result, err := s.Cache.CheckRateLimitInfo(r.Context(), key, limit, window)
			if err != nil {
				s.Logger.Debug("rate limit check failed", slog.String("error", err.Error()))
				next.ServeHTTP(w, r)
				return
			}
			setRateLimitHeaders(w, result, window)
			if !result.Allowed {
				writeRateLimitResponse(w, window)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitShare is middleware for the Tez share/reply/conversation-message
// endpoints, with tighter limits than the global one.
func (s *Server) RateLimitShare(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Cache == nil {
			next.ServeHTTP(w, r)
			return
		}

		userID := auth.UserIDFromContext(r.Context())
		if userID == "" {
			next.ServeHTTP(w, r)
			return
		}

		result, err := s.Cache.CheckRateLimitInfo(r.Context(), "share:"+userID, shareRateLimit, shareRateWindow)
		if err != nil {
			s.Logger.Debug("share rate limit check failed", slog.String("error", err.Error()))
			next.ServeHTTP(w, r)
			return
		}
		setRateLimitHeaders(w, result, shareRateWindow)
		if !result.Allowed {
			writeRateLimitResponse(w, shareRateWindow)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RateLimitSearch is middleware for search endpoints with moderate rate limits.
func (s *Server) RateLimitSearch(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Cache == nil {
			next.ServeHTTP(w, r)
			return
		}

		userID := auth.UserIDFromContext(r.Context())
		if userID == "" {
			next.ServeHTTP(w, r)
			return
		}

		result, err := s.Cache.CheckRateLimitInfo(r.Context(), "search:"+userID, searchRateLimit, searchRateWindow)
		if err != nil {
			s.Logger.Debug("search rate limit check failed", slog.String("error", err.Error()))
			next.ServeHTTP(w, r)
			return
		}
		setRateLimitHeaders(w, result, searchRateWindow)
		if !result.Allowed {
			writeRateLimitResponse(w, searchRateWindow)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// setRateLimitHeaders sets X-RateLimit-* headers on every response so clients
// can track their remaining quota proactively.
func setRateLimitHeaders(w http.ResponseWriter, result presence.RateLimitResult, window time.Duration) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Add(window).Unix()))
}

// writeRateLimitResponse sends a 429 Too Many Requests response with
// standard rate limit headers.
func writeRateLimitResponse(w http.ResponseWriter, retryAfter time.Duration) {
	w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
	WriteError(w, http.StatusTooManyRequests, "RATE_LIMITED", "You are being rate limited. Please try again later.")
}

// clientIP extracts the client IP from the request. Chi's RealIP middleware
// already sets r.RemoteAddr from trusted proxy headers, so we just strip the
// port from RemoteAddr.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
