package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/suPer8Hu/gopherchat/internal/common"
	"github.com/suPer8Hu/gopherchat/internal/metrics"
	"github.com/suPer8Hu/gopherchat/internal/ratelimit"
)

// KeyFunc picks the throttle key for a request; "" skips throttling.
type KeyFunc func(c *gin.Context) string

func ByClientIP(c *gin.Context) string { return "ip:" + c.ClientIP() }

func ByUser(c *gin.Context) string {
	if uid, ok := UserID(c); ok {
		return "user:" + strconv.FormatUint(uid, 10)
	}
	return ""
}

// RateLimit rejects with 429 once the key's window is used up. A limiter
// error lets the request through.
func RateLimit(scope string, limiter ratelimit.Limiter, key KeyFunc, msg string, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		k := key(c)
		if k == "" {
			c.Next()
			return
		}

		res, err := limiter.Allow(c.Request.Context(), k)
		if err != nil {
			log.Warn().Err(err).Str("scope", scope).Msg("rate limiter unavailable, allowing request")
			c.Next()
			return
		}
		if !res.Allowed {
			metrics.RecordRateLimited(scope)
			secs := res.RetryAfterSeconds()
			c.Header("Retry-After", strconv.Itoa(secs))
			common.Fail(c, http.StatusTooManyRequests, 42901, msg, gin.H{"retryAfter": secs})
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		c.Next()
	}
}
