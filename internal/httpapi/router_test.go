package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/gopherchat/internal/ai"
	"github.com/suPer8Hu/gopherchat/internal/auth"
	"github.com/suPer8Hu/gopherchat/internal/chat"
	"github.com/suPer8Hu/gopherchat/internal/config"
	"github.com/suPer8Hu/gopherchat/internal/db"
	"github.com/suPer8Hu/gopherchat/internal/httpapi/handlers"
	)

const testSecret = "test-secret"

type fakeGenerator struct {
	reply string
	err   error
}

func (g *fakeGenerator) Generate(ctx context.Context, userMessage string, history []ai.Message) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

type testServer struct {
	router *gin.Engine
	gen    *fakeGenerator
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWith(t, nil)
}

// newTestServerWith lets a test adjust the config before the router is built.
func newTestServerWith(t *testing.T, tweak func(*config.Config)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	name := strings.ReplaceAll(t.Name(), "/", "_")
	gdb, err := db.Connect("sqlite", "file:"+name+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(gdb) })
	require.NoError(t, db.Migrate(gdb))

	gen := &fakeGenerator{reply: "Hello! How can I help you today?"}
	chatSvc := chat.NewService(chat.Deps{
		Conversations: chat.NewConversationRegistry(gdb),
		Messages:      chat.NewMessageStore(gdb),
		Generator:     gen,
		Logger:        zerolog.Nop(),
		Jobs:          chat.NewJobRepo(gdb),
	}, 10)
	authSvc := auth.NewService(gdb, testSecret, time.Hour)

	cfg := config.Config{
		AppEnv:           "test",
		JWTSecret:        testSecret,
		CORSOrigin:       "*",
		RateLimitGeneral: 1000,
		RateLimitChat:    20,
	}
	if tweak != nil {
		tweak(&cfg)
	}
	lim := NewMemoryLimiters(cfg)
	h := handlers.NewHandler(chatSvc, authSvc, zerolog.Nop())
	return &testServer{router: NewRouter(cfg, h, lim, zerolog.Nop()), gen: gen}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func (s *testServer) signup(t *testing.T, email string) string {
	t.Helper()
	w, body := s.do(t, http.MethodPost, "/auth/signup", "", gin.H{"email": email, "password": "Passw0rd!"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return body["token"].(string)
}

func details(t *testing.T, body map[string]any) []map[string]any {
	t.Helper()
	raw, ok := body["details"].([]any)
	require.True(t, ok, "missing details in %v", body)
	out := make([]map[string]any, 0, len(raw))
	for _, d := range raw {
		out = append(out, d.(map[string]any))
	}
	return out
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w, body := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body, "uptime")
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestSignupAndLogin(t *testing.T) {
	s := newTestServer(t)
	s.signup(t, "alice@example.com")

	w, _ := s.do(t, http.MethodPost, "/auth/signup", "", gin.H{"email": "alice@example.com", "password": "Passw0rd!"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, body := s.do(t, http.MethodPost, "/auth/signup", "", gin.H{"email": "bob@example.com", "password": "weakpass"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "password", details(t, body)[0]["field"])

	w, body = s.do(t, http.MethodPost, "/auth/login", "", gin.H{"email": "alice@example.com", "password": "Passw0rd!"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, body["token"])

	w, _ = s.do(t, http.MethodPost, "/auth/login", "", gin.H{"email": "alice@example.com", "password": "Wr0ng!pass"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do(t, http.MethodPost, "/chat/send", "", gin.H{"message": "hi"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Access token is required", body["message"])

	w, _ = s.do(t, http.MethodGet, "/chat/conversations", "garbage", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		UserID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	w, body = s.do(t, http.MethodGet, "/chat/conversations", expired, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Token has expired", body["message"])
}

func TestSendAndHistory(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "carol@example.com")

	w, body := s.do(t, http.MethodPost, "/chat/send", token, gin.H{"message": "  Hello  "})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Hello! How can I help you today?", body["message"])
	assert.Equal(t, "assistant", body["role"])
	assert.NotEmpty(t, body["timestamp"])
	convID, _ := body["conversationId"].(string)
	require.Len(t, convID, 26)

	w, body = s.do(t, http.MethodGet, "/chat/history?conversationId="+convID, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 2)
	first := msgs[0].(map[string]any)
	assert.Equal(t, "user", first["role"])
	assert.Equal(t, "Hello", first["content"])
	pagination := body["pagination"].(map[string]any)
	assert.EqualValues(t, 50, pagination["limit"])
	assert.EqualValues(t, 0, pagination["offset"])
	assert.EqualValues(t, 2, pagination["count"])

	w, body = s.do(t, http.MethodGet, "/chat/conversations", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// another user sees nothing of carol's conversation
	other := s.signup(t, "dave@example.com")
	w, body = s.do(t, http.MethodGet, "/chat/history?conversationId="+convID, other, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, body["messages"])

	w, body = s.do(t, http.MethodPost, "/chat/send", other, gin.H{"message": "hi", "conversationId": convID})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "conversationId", details(t, body)[0]["field"])
}

func TestHistoryRequiresConversationID(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "erin@example.com")

	w, body := s.do(t, http.MethodGet, "/chat/history", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "conversationId", details(t, body)[0]["field"])

	w, body = s.do(t, http.MethodGet, "/chat/history?conversationId=not-a-ulid", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	d := details(t, body)[0]
	assert.Equal(t, "conversationId", d["field"])
	assert.Equal(t, "Invalid conversation ID", d["message"])
}

func TestSendValidatesMessageLength(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "frank@example.com")

	w, body := s.do(t, http.MethodPost, "/chat/send", token, gin.H{"message": strings.Repeat("a", 5001)})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid input data", body["message"])
	assert.Equal(t, "message", details(t, body)[0]["field"])

	w, body = s.do(t, http.MethodPost, "/chat/send", token, gin.H{"message": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "message", details(t, body)[0]["field"])

	w, _ = s.do(t, http.MethodPost, "/chat/send", token, gin.H{"message": strings.Repeat("a", 5000)})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSendRateLimitedPerUser(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "grace@example.com")

	for i := 0; i < 20; i++ {
		w, _ := s.do(t, http.MethodPost, "/chat/send", token, gin.H{"message": "ping"})
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
	}
	w, body := s.do(t, http.MethodPost, "/chat/send", token, gin.H{"message": "ping"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, body, "retryAfter")

	// the limit is per user
	other := s.signup(t, "heidi@example.com")
	w, _ = s.do(t, http.MethodPost, "/chat/send", other, gin.H{"message": "ping"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSendProviderRateLimit(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "ivan@example.com")
	secs := 30
	s.gen.err = &ai.CompletionError{Provider: "fake", Transient: true, RetryAfter: &secs}

	w, body := s.do(t, http.MethodPost, "/chat/send", token, gin.H{"message": "hello"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.EqualValues(t, 30, body["retryAfter"])
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
	convID, _ := body["conversationId"].(string)
	require.NotEmpty(t, convID)

	// the user turn is kept
	w, body = s.do(t, http.MethodGet, "/chat/history?conversationId="+convID, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["messages"], 1)
}

func TestSendProviderFailure(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "judy@example.com")
	s.gen.err = &ai.CompletionError{Provider: "fake", Err: ai.ErrEmptyCompletion}

	w, body := s.do(t, http.MethodPost, "/chat/send", token, gin.H{"message": "hello"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to process message", body["message"])
	assert.NotContains(t, w.Body.String(), "empty response")
}

func TestConversationLifecycle(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "kate@example.com")

	w, body := s.do(t, http.MethodPost, "/chat/conversations", token, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "New Chat", body["title"])
	convID := body["id"].(string)

	w, _ = s.do(t, http.MethodPost, "/chat/send", token, gin.H{"message": "x", "conversationId": convID})
	require.Equal(t, http.StatusOK, w.Code)

	w, body = s.do(t, http.MethodDelete, "/chat/conversations/"+convID, token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Conversation deleted", body["message"])

	w, body = s.do(t, http.MethodGet, "/chat/history?conversationId="+convID, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, body["messages"])

	s.do(t, http.MethodPost, "/chat/send", token, gin.H{"message": "again"})
	w, body = s.do(t, http.MethodDelete, "/chat/history", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Chat history deleted successfully", body["message"])

	req := httptest.NewRequest(http.MethodGet, "/chat/conversations", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestRecoverWithoutQueue(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "leo@example.com")

	s.gen.err = &ai.CompletionError{Provider: "fake", Err: ai.ErrEmptyCompletion}
	_, body := s.do(t, http.MethodPost, "/chat/send", token, gin.H{"message": "hello"})
	convID := body["conversationId"].(string)

	w, _ := s.do(t, http.MethodPost, "/chat/conversations/"+convID+"/recover", token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w, _ = s.do(t, http.MethodGet, "/chat/jobs/01ARZ3NDEKTSV4RRFFQ69G5FAV", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func (s *testServer) ping(t *testing.T, forwardedFor string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = "192.0.2.1:40000"
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w.Code
}

func TestGeneralRateLimitKeysOnPeerAddress(t *testing.T) {
	s := newTestServerWith(t, func(c *config.Config) { c.RateLimitGeneral = 3 })

	rejected := 0
	for i := 0; i < 10; i++ {
		if s.ping(t, fmt.Sprintf("10.0.0.%d", i)) == http.StatusTooManyRequests {
			rejected++
		}
	}
	assert.Equal(t, 7, rejected, "X-Forwarded-For from an untrusted peer must not change the key")
}

func TestGeneralRateLimitHonorsTrustedProxy(t *testing.T) {
	s := newTestServerWith(t, func(c *config.Config) {
		c.RateLimitGeneral = 3
		c.TrustedProxies = []string{"192.0.2.1"}
	})

	for i := 0; i < 10; i++ {
		assert.Equal(t, http.StatusOK, s.ping(t, fmt.Sprintf("10.0.0.%d", i)))
	}
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, s.ping(t, "10.0.1.1"))
	}
	assert.Equal(t, http.StatusTooManyRequests, s.ping(t, "10.0.1.1"))
}

func preflight(s *testServer, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodOptions, "/chat/send", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestCORSWildcardNeverSendsCredentials(t *testing.T) {
	s := newTestServer(t)

	w := preflight(s, "https://evil.example")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSExplicitOrigins(t *testing.T) {
	s := newTestServerWith(t, func(c *config.Config) { c.CORSOrigin = "https://app.example" })

	w := preflight(s, "https://app.example")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	w = preflight(s, "https://evil.example")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCreateConversationRejectsMalformedBody(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "mia@example.com")

	for _, raw := range []string{`{"title": "Trip pla`, `{"title": 5}`} {
		req := httptest.NewRequest(http.MethodPost, "/chat/conversations", strings.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, raw)
	}

	w, _ := s.do(t, http.MethodGet, "/chat/conversations", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	w, body := s.do(t, http.MethodPost, "/chat/conversations", token, gin.H{"title": "Trip plan"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Trip plan", body["title"])
}
