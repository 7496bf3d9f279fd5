package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/suPer8Hu/gopherchat/internal/common"
	"github.com/suPer8Hu/gopherchat/internal/config"
	"github.com/suPer8Hu/gopherchat/internal/httpapi/handlers"
	"github.com/suPer8Hu/gopherchat/internal/httpapi/middleware"
	"github.com/suPer8Hu/gopherchat/internal/ratelimit"
)

// Limiters are the two throttles: General applies to every route by client
// address, Chat to POST /chat/send by user.
type Limiters struct {
	General ratelimit.Limiter
	Chat    ratelimit.Limiter
}

// NewMemoryLimiters builds in-process limiters from config. Callers that run
// several replicas pass redis-backed ones instead.
func NewMemoryLimiters(cfg config.Config) Limiters {
	return Limiters{
		General: ratelimit.NewMemoryLimiter(cfg.RateLimitGeneral, time.Minute),
		Chat:    ratelimit.NewMemoryLimiter(cfg.RateLimitChat, time.Minute),
	}
}

func NewRouter(cfg config.Config, h *handlers.Handler, lim Limiters, log zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	// nil trusts no proxy, so ClientIP is the peer address.
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		log.Warn().Err(err).Strs("trusted_proxies", cfg.TrustedProxies).Msg("invalid trusted proxies, trusting none")
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(log))
	r.Use(middleware.Recovery(log, cfg.IsDevelopment()))
	r.Use(middleware.CORS(cfg.CORSOrigins()))
	r.Use(middleware.RateLimit("general", lim.General, middleware.ByClientIP,
		"Too many requests from this IP, please try again later.", log))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/health", h.Health)
	r.GET("/ping", h.Ping)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authGroup := r.Group("/auth")
	authGroup.POST("/signup", h.Signup)
	authGroup.POST("/login", h.Login)

	chatGroup := r.Group("/chat")
	chatGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	chatGroup.POST("/conversations", h.CreateConversation)
	chatGroup.GET("/conversations", h.ListConversations)
	chatGroup.DELETE("/conversations/:id", h.DeleteConversation)
	chatGroup.POST("/conversations/:id/recover", h.RecoverConversation)
	chatGroup.POST("/send",
		middleware.RateLimit("chat", lim.Chat, middleware.ByUser,
			"Too many messages, please slow down.", log),
		h.SendMessage)
	chatGroup.GET("/history", h.GetHistory)
	chatGroup.DELETE("/history", h.DeleteHistory)
	chatGroup.GET("/jobs/:id", h.GetJob)

	return r
}
