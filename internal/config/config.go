package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port       string
	AppEnv     string
	LogLevel   string
	LogFormat  string
	CORSOrigin string

	// TrustedProxies lists the proxy IPs/CIDRs whose X-Forwarded-For is
	// believed. Empty means the peer address is the client.
	TrustedProxies []string

	DBDriver string
	DBDSN    string

	JWTSecret    string
	JWTExpiresIn time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// rate limits, requests per minute
	RateLimitBackend string
	RateLimitGeneral int
	RateLimitChat    int

	ChatContextWindowSize int
	ChatSystemPrompt      string

	// AI provider
	AIProvider    string
	AITemperature float32
	AIMaxTokens   int
	AITimeout     time.Duration

	OllamaBaseURL string
	OllamaModel   string

	OpenRouterBaseURL string
	OpenRouterAPIKey  string
	OpenRouterModel   string
	OpenRouterSiteURL string
	OpenRouterAppName string

	OpenAIBaseURL string
	OpenAIAPIKey  string
	OpenAIModel   string

	// rabbitMQ
	RabbitURL         string
	RabbitQueue       string
	WorkerConcurrency int
}

const DefaultSystemPrompt = "You are a helpful customer support assistant."

func Load() Config {
	// DSN demo：
	// app:apppass@tcp(127.0.0.1:3306)/gopherchat?charset=utf8mb4&parseTime=true&loc=UTC
	driver := strings.ToLower(getenv("DB_DRIVER", "mysql"))
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		switch driver {
		case "sqlite":
			dsn = "gopherchat.db"
		default:
			dsn = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
				"app", "apppass", "127.0.0.1", "3306", "gopherchat",
			)
		}
	}

	appEnv := strings.ToLower(getenv("APP_ENV", "development"))

	windowSize := getInt("CHAT_CONTEXT_WINDOW_SIZE", 10)

	temperature := float32(0.7)
	if v := os.Getenv("AI_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			temperature = float32(f)
		}
	}

	return Config{
		Port:       getenv("PORT", "3000"),
		AppEnv:     appEnv,
		LogLevel:   getenv("LOG_LEVEL", "info"),
		LogFormat:  getenv("LOG_FORMAT", "console"),
		CORSOrigin: getenv("CORS_ORIGIN", "*"),

		TrustedProxies: getList("TRUSTED_PROXIES"),

		DBDriver: driver,
		DBDSN:    dsn,

		JWTSecret:    os.Getenv("JWT_SECRET"),
		JWTExpiresIn: getDuration("JWT_EXPIRES_IN", 7*24*time.Hour),

		RedisAddr:     getenv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getInt("REDIS_DB", 0),

		RateLimitBackend: strings.ToLower(getenv("RATE_LIMIT_BACKEND", "redis")),
		RateLimitGeneral: getInt("RATE_LIMIT_GENERAL", 100),
		RateLimitChat:    getInt("RATE_LIMIT_CHAT", 20),

		ChatContextWindowSize: windowSize,
		ChatSystemPrompt:      getenv("CHAT_SYSTEM_PROMPT", DefaultSystemPrompt),

		AIProvider:    strings.ToLower(getenv("AI_PROVIDER", "openrouter")),
		AITemperature: temperature,
		AIMaxTokens:   getInt("AI_MAX_TOKENS", 1000),
		AITimeout:     getDuration("AI_TIMEOUT", 90*time.Second),

		OllamaBaseURL: getenv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:   getenv("OLLAMA_MODEL", "llama3:latest"),

		OpenRouterBaseURL: getenv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		OpenRouterAPIKey:  os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterModel:   getenv("OPENROUTER_MODEL", "google/gemini-2.0-flash-exp:free"),
		OpenRouterSiteURL: os.Getenv("OPENROUTER_SITE_URL"),
		OpenRouterAppName: os.Getenv("OPENROUTER_APP_NAME"),

		OpenAIBaseURL: getenv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:   getenv("OPENAI_MODEL", "gpt-4o-mini"),

		RabbitURL:         os.Getenv("RABBIT_URL"),
		RabbitQueue:       getenv("RABBIT_QUEUE", "chat_recovery_jobs"),
		WorkerConcurrency: getInt("WORKER_CONCURRENCY", 2),
	}
}

func (c Config) IsDevelopment() bool { return c.AppEnv == "development" }

// Validate reports settings the server cannot start without.
func (c Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.DBDriver {
	case "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER=%q", c.DBDriver))
	}
	switch c.RateLimitBackend {
	case "redis", "memory":
	default:
		errs = append(errs, fmt.Errorf("unsupported RATE_LIMIT_BACKEND=%q", c.RateLimitBackend))
	}
	for _, p := range c.TrustedProxies {
		if !validProxy(p) {
			errs = append(errs, fmt.Errorf("invalid TRUSTED_PROXIES entry %q", p))
		}
	}
	for _, o := range c.CORSOrigins() {
		if o != "*" && !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			errs = append(errs, fmt.Errorf("invalid CORS_ORIGIN entry %q", o))
		}
	}
	if c.RateLimitGeneral <= 0 || c.RateLimitChat <= 0 {
		errs = append(errs, errors.New("rate limits must be positive"))
	}
	return errors.Join(errs...)
}

// CORSOrigins splits CORS_ORIGIN on commas.
func (c Config) CORSOrigins() []string {
	return splitList(c.CORSOrigin)
}

func validProxy(p string) bool {
	if net.ParseIP(p) != nil {
		return true
	}
	_, _, err := net.ParseCIDR(p)
	return err == nil
}

func getList(key string) []string {
	return splitList(os.Getenv(key))
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// getDuration accepts Go durations ("90s") and the "7d" day shorthand.
func getDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if strings.HasSuffix(v, "d") {
		if n, err := strconv.Atoi(strings.TrimSuffix(v, "d")); err == nil && n > 0 {
			return time.Duration(n) * 24 * time.Hour
		}
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	return def
}
