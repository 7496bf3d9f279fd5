// Package bootstrap wires the pieces both binaries share.
package bootstrap

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/suPer8Hu/gopherchat/internal/ai"
	"github.com/suPer8Hu/gopherchat/internal/chat"
	"github.com/suPer8Hu/gopherchat/internal/config"
	"github.com/suPer8Hu/gopherchat/internal/httpapi"
	"github.com/suPer8Hu/gopherchat/internal/ratelimit"
	"github.com/suPer8Hu/gopherchat/internal/store/redisstore"
	"gorm.io/gorm"
)

// Providers registers every supported completion backend.
func Providers(cfg config.Config) *ai.Registry {
	reg := ai.NewRegistry()

	reg.Register("openrouter", func(s ai.Settings) (ai.Provider, error) {
		p := ai.NewOpenRouterProvider(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, s.Model,
			cfg.OpenRouterSiteURL, cfg.OpenRouterAppName)
		p.Temperature = s.Temperature
		p.MaxTokens = s.MaxTokens
		p.Client = &http.Client{Timeout: s.Timeout}
		return p, nil
	})
	reg.Register("openai", func(s ai.Settings) (ai.Provider, error) {
		p := ai.NewOpenAIProvider(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, s.Model, s.Timeout)
		p.Temperature = s.Temperature
		p.MaxTokens = s.MaxTokens
		return p, nil
	})
	reg.Register("ollama", func(s ai.Settings) (ai.Provider, error) {
		p := ai.NewOllamaProvider(cfg.OllamaBaseURL, s.Model)
		p.Temperature = s.Temperature
		p.MaxTokens = s.MaxTokens
		p.Client = &http.Client{Timeout: s.Timeout}
		return p, nil
	})
	return reg
}

func modelFor(cfg config.Config) string {
	switch cfg.AIProvider {
	case "openai":
		return cfg.OpenAIModel
	case "ollama":
		return cfg.OllamaModel
	default:
		return cfg.OpenRouterModel
	}
}

func Gateway(cfg config.Config) (*ai.Gateway, error) {
	return Providers(cfg).Gateway(cfg.AIProvider, ai.Settings{
		Model:       modelFor(cfg),
		Temperature: cfg.AITemperature,
		MaxTokens:   cfg.AIMaxTokens,
		Timeout:     cfg.AITimeout,
	}, cfg.ChatSystemPrompt)
}

// ChatService assembles the chat pipeline. publisher may be nil, which
// disables recovery requests.
func ChatService(cfg config.Config, gdb *gorm.DB, log zerolog.Logger, publisher chat.JobPublisher) (*chat.Service, error) {
	gw, err := Gateway(cfg)
	if err != nil {
		return nil, err
	}
	return chat.NewService(chat.Deps{
		Conversations: chat.NewConversationRegistry(gdb),
		Messages:      chat.NewMessageStore(gdb),
		Generator:     gw,
		Logger:        log.With().Str("component", "chat").Logger(),
		Jobs:          chat.NewJobRepo(gdb),
		Publisher:     publisher,
	}, cfg.ChatContextWindowSize), nil
}

// Limiters picks the throttle backend. When redis is configured but not
// reachable the server falls back to in-process counters.
func Limiters(ctx context.Context, cfg config.Config, log zerolog.Logger) (httpapi.Limiters, func()) {
	if cfg.RateLimitBackend != "redis" {
		return httpapi.NewMemoryLimiters(cfg), func() {}
	}

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rds.Ping(pctx); err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable, using in-memory rate limits")
		_ = rds.Close()
		return httpapi.NewMemoryLimiters(cfg), func() {}
	}

	return httpapi.Limiters{
		General: ratelimit.NewRedisLimiter(rds, "general", cfg.RateLimitGeneral, time.Minute),
		Chat:    ratelimit.NewRedisLimiter(rds, "chat", cfg.RateLimitChat, time.Minute),
	}, func() { _ = rds.Close() }
}
