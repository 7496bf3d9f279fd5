package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/gopherchat/internal/auth"
	"github.com/suPer8Hu/gopherchat/internal/common"
)

type signupReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,strongpassword"`
}

type loginReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func sessionBody(msg string, s *auth.Session) gin.H {
	return gin.H{
		"message": msg,
		"token":   s.Token,
		"user": gin.H{
			"id":    s.User.ID,
			"email": s.User.Email,
		},
	}
}

func (h *Handler) Signup(c *gin.Context) {
	var req signupReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ValidationFailed(c, []common.FieldError{{Field: "body", Message: "Invalid JSON"}})
		return
	}
	if details := validateStruct(req); details != nil {
		common.ValidationFailed(c, details)
		return
	}

	sess, err := h.Auth.Signup(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			common.Fail(c, http.StatusConflict, 40901, "User with this email already exists")
			return
		}
		h.Log.Error().Err(err).Msg("signup failed")
		common.Fail(c, http.StatusInternalServerError, 50001, "Failed to register user")
		return
	}
	c.JSON(http.StatusCreated, sessionBody("User registered successfully", sess))
}

func (h *Handler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ValidationFailed(c, []common.FieldError{{Field: "body", Message: "Invalid JSON"}})
		return
	}
	if details := validateStruct(req); details != nil {
		common.ValidationFailed(c, details)
		return
	}

	sess, err := h.Auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			common.Fail(c, http.StatusUnauthorized, 40103, "Invalid email or password")
			return
		}
		h.Log.Error().Err(err).Msg("login failed")
		common.Fail(c, http.StatusInternalServerError, 50002, "Failed to authenticate user")
		return
	}
	c.JSON(http.StatusOK, sessionBody("Login successful", sess))
}
