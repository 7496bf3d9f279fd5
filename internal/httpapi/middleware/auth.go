package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/gopherchat/internal/auth"
	"github.com/suPer8Hu/gopherchat/internal/common"
)

const UserIDKey = "user_id"

// AuthRequired accepts "Authorization: Bearer <jwt>". A missing or expired
// token is 401, any other bad token is 403.
func AuthRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := ""
		if scheme, rest, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
			token = strings.TrimSpace(rest)
		}
		if token == "" {
			common.Fail(c, http.StatusUnauthorized, 40101, "Access token is required")
			return
		}

		claims, err := auth.ParseJWT(token, secret)
		if err != nil {
			if errors.Is(err, auth.ErrTokenExpired) {
				common.Fail(c, http.StatusUnauthorized, 40102, "Token has expired")
				return
			}
			common.Fail(c, http.StatusForbidden, 40301, "Invalid token")
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Next()
	}
}

func UserID(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}
