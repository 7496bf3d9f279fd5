package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/gopherchat/internal/ai"
	"github.com/suPer8Hu/gopherchat/internal/chat"
	"github.com/suPer8Hu/gopherchat/internal/common"
	"github.com/suPer8Hu/gopherchat/internal/httpapi/middleware"
)

const maxIdempotencyKeyLen = 128

func timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

func (h *Handler) userID(c *gin.Context) (uint64, bool) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "Access token is required")
	}
	return uid, ok
}

// writeError maps service errors onto the HTTP contract. conversationID is
// echoed so a client can find a turn left pending in a new conversation.
func (h *Handler) writeError(c *gin.Context, err error, fallback string) {
	var conversationID any
	var te *chat.TurnError
	if errors.As(err, &te) && te.ConversationID != "" {
		conversationID = te.ConversationID
	}

	var ve *chat.ValidationError
	if errors.As(err, &ve) {
		common.ValidationFailed(c, []common.FieldError{{Field: ve.Field, Message: ve.Message}})
		return
	}

	if retry, ok := ai.RateLimited(err); ok {
		var retryAfter any
		if retry != nil {
			retryAfter = *retry
			c.Header("Retry-After", strconv.Itoa(*retry))
		}
		common.Fail(c, http.StatusTooManyRequests, 42902,
			"AI service is busy, please try again later",
			gin.H{"retryAfter": retryAfter, "conversationId": conversationID})
		return
	}

	switch {
	case errors.Is(err, chat.ErrConversationNotFound):
		common.Fail(c, http.StatusNotFound, 40401, "Conversation not found")
		return
	case errors.Is(err, chat.ErrJobNotFound):
		common.Fail(c, http.StatusNotFound, 40402, "Job not found")
		return
	case errors.Is(err, chat.ErrNotPending):
		common.Fail(c, http.StatusConflict, 40902, "Conversation has no pending message")
		return
	case errors.Is(err, chat.ErrRecoveryUnavailable):
		common.Fail(c, http.StatusServiceUnavailable, 50301, "Recovery is not available")
		return
	}

	ev := h.Log.Error().Err(err).Str("request_id", middleware.RequestIDFromContext(c))
	if te != nil {
		ev = ev.Str("stage", string(te.Stage)).Str("conversation_id", te.ConversationID)
	}
	ev.Msg(fallback)
	common.Fail(c, http.StatusInternalServerError, 50000, fallback, gin.H{"conversationId": conversationID})
}

type createConversationReq struct {
	Title string `json:"title" validate:"max=255"`
}

func (h *Handler) CreateConversation(c *gin.Context) {
	uid, ok := h.userID(c)
	if !ok {
		return
	}

	var req createConversationReq
	// empty body is allowed
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		common.ValidationFailed(c, []common.FieldError{{Field: "body", Message: "Request body must be a JSON object"}})
		return
	}
	if details := validateStruct(req); details != nil {
		common.ValidationFailed(c, details)
		return
	}

	conv, err := h.Chat.CreateConversation(c.Request.Context(), uid, req.Title)
	if err != nil {
		h.writeError(c, err, "Failed to create conversation")
		return
	}
	c.JSON(http.StatusCreated, conv)
}

func (h *Handler) ListConversations(c *gin.Context) {
	uid, ok := h.userID(c)
	if !ok {
		return
	}
	convs, err := h.Chat.ListConversations(c.Request.Context(), uid)
	if err != nil {
		h.writeError(c, err, "Failed to fetch conversations")
		return
	}
	if convs == nil {
		convs = []chat.Conversation{}
	}
	c.JSON(http.StatusOK, convs)
}

func (h *Handler) DeleteConversation(c *gin.Context) {
	uid, ok := h.userID(c)
	if !ok {
		return
	}
	if err := h.Chat.DeleteConversation(c.Request.Context(), uid, c.Param("id")); err != nil {
		h.writeError(c, err, "Failed to delete conversation")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Conversation deleted"})
}

type sendMessageReq struct {
	Message        string `json:"message" validate:"required,max=5000"`
	ConversationID string `json:"conversationId" validate:"omitempty,ulid"`
}

func (h *Handler) SendMessage(c *gin.Context) {
	uid, ok := h.userID(c)
	if !ok {
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ValidationFailed(c, []common.FieldError{{Field: "message", Message: "Message must be a string"}})
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	req.ConversationID = strings.TrimSpace(req.ConversationID)
	if details := validateStruct(req); details != nil {
		common.ValidationFailed(c, details)
		return
	}

	res, err := h.Chat.SendTurn(c.Request.Context(), uid, req.ConversationID, req.Message)
	if err != nil {
		h.writeError(c, err, "Failed to process message")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":        res.Text,
		"role":           ai.RoleAssistant,
		"timestamp":      timestamp(res.Timestamp),
		"conversationId": res.ConversationID,
	})
}

func (h *Handler) GetHistory(c *gin.Context) {
	uid, ok := h.userID(c)
	if !ok {
		return
	}

	conversationID := strings.TrimSpace(c.Query("conversationId"))
	if conversationID == "" {
		common.ValidationFailed(c, []common.FieldError{{Field: "conversationId", Message: "Conversation ID is required"}})
		return
	}
	if !common.IsULID(conversationID) {
		common.ValidationFailed(c, []common.FieldError{{Field: "conversationId", Message: "Invalid conversation ID"}})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))

	msgs, limit, offset, err := h.Chat.History(c.Request.Context(), uid, conversationID, limit, offset)
	if err != nil {
		h.writeError(c, err, "Failed to retrieve chat history")
		return
	}

	out := make([]gin.H, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, gin.H{
			"role":      m.Role,
			"content":   m.Content,
			"timestamp": timestamp(m.CreatedAt),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"messages": out,
		"pagination": gin.H{
			"limit":  limit,
			"offset": offset,
			"count":  len(out),
		},
	})
}

func (h *Handler) DeleteHistory(c *gin.Context) {
	uid, ok := h.userID(c)
	if !ok {
		return
	}
	if err := h.Chat.DeleteHistory(c.Request.Context(), uid); err != nil {
		h.writeError(c, err, "Failed to delete chat history")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Chat history deleted successfully"})
}

// RecoverConversation queues an out-of-band reply for a pending user turn.
func (h *Handler) RecoverConversation(c *gin.Context) {
	uid, ok := h.userID(c)
	if !ok {
		return
	}

	key := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if len(key) > maxIdempotencyKeyLen {
		common.ValidationFailed(c, []common.FieldError{{Field: "Idempotency-Key", Message: "Idempotency key is too long"}})
		return
	}

	job, created, err := h.Chat.RequestRecovery(c.Request.Context(), uid, c.Param("id"), key)
	if err != nil {
		h.writeError(c, err, "Failed to queue recovery")
		return
	}
	status := http.StatusAccepted
	if !created {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"jobId": job.ID, "status": job.Status})
}

func (h *Handler) GetJob(c *gin.Context) {
	uid, ok := h.userID(c)
	if !ok {
		return
	}
	job, err := h.Chat.GetJob(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		h.writeError(c, err, "Failed to fetch job")
		return
	}
	c.JSON(http.StatusOK, job)
}
