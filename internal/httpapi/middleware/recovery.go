package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/suPer8Hu/gopherchat/internal/common"
)

// Recovery turns a panic into the standard 500 body. The stack is only
// logged; the panic value is echoed back in development.
func Recovery(log zerolog.Logger, dev bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				stack := debug.Stack()
				log.Error().
					Str("request_id", RequestIDFromContext(c)).
					Interface("panic", rec).
					Bytes("stack", stack).
					Msg("panic recovered")

				var extra gin.H
				if dev {
					extra = gin.H{"panic": fmt.Sprint(rec)}
				}
				common.Fail(c, http.StatusInternalServerError, 50000, "Something went wrong", extra)
			}
		}()
		c.Next()
	}
}
