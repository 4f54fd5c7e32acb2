package admin

import (
	"math"
	"net"
	"net/http"
	"strconv"

	"github.com/socketgate/socketgate/internal/domain/ratelimit"
)

// apiKeyType scopes admin API budgets apart from socket connect budgets.
const apiKeyType ratelimit.KeyType = "admin"

// apiRateLimitMiddleware wraps an http.Handler with per-IP rate limiting.
// Requests from localhost are exempt (consistent with auth bypass for
// localhost). When the budget is exhausted it responds with 429 Too Many
// Requests and a Retry-After header.
func (h *AdminAPIHandler) apiRateLimitMiddleware(next http.Handler) http.Handler {
	if h.limiter == nil || !h.apiLimit.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isLocalhost(r) {
			next.ServeHTTP(w, r)
			return
		}

		clientIP, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			clientIP = r.RemoteAddr
		}

		res, err := h.limiter.Allow(r.Context(), ratelimit.FormatKey(apiKeyType, clientIP), h.apiLimit)
		if err != nil {
			h.logger.Error("admin rate limit check failed", "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if !res.Allowed {
			retryAfter := int(math.Ceil(res.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			h.respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}
