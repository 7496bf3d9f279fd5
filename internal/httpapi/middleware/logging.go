package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/suPer8Hu/gopherchat/internal/metrics"
)

// Logging writes one line per request, at warn for 4xx and error for 5xx,
// and records the request metrics.
func Logging(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.RecordRequest(c.Request.Method, endpoint, strconv.Itoa(status), latency.Seconds())

		ev := log.Info()
		if status >= 500 {
			ev = log.Error()
		} else if status >= 400 {
			ev = log.Warn()
		}
		if id := RequestIDFromContext(c); id != "" {
			ev = ev.Str("request_id", id)
		}
		if uid, ok := UserID(c); ok {
			ev = ev.Uint64("user_id", uid)
		}
		ev.
			Str("client_ip", c.ClientIP()).
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", latency).
			Msg(c.Errors.ByType(gin.ErrorTypePrivate).String())
	}
}
