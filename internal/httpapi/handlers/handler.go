package handlers

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/suPer8Hu/gopherchat/internal/auth"
	"github.com/suPer8Hu/gopherchat/internal/chat"
)

type Handler struct {
	Chat    *chat.Service
	Auth    *auth.Service
	Log     zerolog.Logger
	Started time.Time
}

func NewHandler(chatSvc *chat.Service, authSvc *auth.Service, log zerolog.Logger) *Handler {
	return &Handler{
		Chat:    chatSvc,
		Auth:    authSvc,
		Log:     log,
		Started: time.Now(),
	}
}
