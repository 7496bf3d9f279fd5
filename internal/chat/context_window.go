package chat

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/suPer8Hu/gopherchat/internal/ai"
	"github.com/suPer8Hu/gopherchat/internal/metrics"
)

// ContextAssembler loads the bounded, chronologically ordered history sent
// to the model. It never fails: a broken read degrades to no history.
type ContextAssembler struct {
	messages MessageStore
	log      zerolog.Logger
}

func NewContextAssembler(messages MessageStore, log zerolog.Logger) *ContextAssembler {
	return &ContextAssembler{messages: messages, log: log}
}

func (a *ContextAssembler) RecentHistory(ctx context.Context, userID uint64, conversationID string, windowSize int) []ai.Message {
	return a.RecentHistoryBefore(ctx, userID, conversationID, 0, windowSize)
}

// RecentHistoryBefore ignores the turn with id beforeID and anything newer.
func (a *ContextAssembler) RecentHistoryBefore(ctx context.Context, userID uint64, conversationID string, beforeID uint64, windowSize int) []ai.Message {
	if windowSize <= 0 {
		return []ai.Message{}
	}

	recent, err := a.messages.ListRecent(ctx, userID, conversationID, windowSize, beforeID)
	if err != nil {
		metrics.ContextAssemblyFailuresTotal.Inc()
		a.log.Warn().Err(err).
			Uint64("user_id", userID).
			Str("conversation_id", conversationID).
			Msg("history fetch failed, continuing without context")
		return []ai.Message{}
	}

	// newest-first -> oldest-first
	out := make([]ai.Message, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		out = append(out, ai.Message{Role: recent[i].Role, Content: recent[i].Content})
	}
	return out
}
