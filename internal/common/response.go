package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// FieldError is one entry of a 400 response's details list.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Fail writes the standard error body. Extra keys (details, retryAfter,
// conversationId) are merged in when non-nil.
func Fail(c *gin.Context, httpStatus int, code int, msg string, extra ...gin.H) {
	body := gin.H{
		"code":    code,
		"error":   http.StatusText(httpStatus),
		"message": msg,
	}
	for _, e := range extra {
		for k, v := range e {
			if v != nil {
				body[k] = v
			}
		}
	}
	c.AbortWithStatusJSON(httpStatus, body)
}

func ValidationFailed(c *gin.Context, details []FieldError) {
	Fail(c, http.StatusBadRequest, 40001, "Invalid input data", gin.H{"details": details})
}
