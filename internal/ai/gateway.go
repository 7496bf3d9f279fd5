package ai

import (
	"context"
	"strings"
	"time"

	"github.com/suPer8Hu/gopherchat/internal/metrics"
)

// Gateway turns a user message plus recent history into one provider call
// and normalizes whatever comes back.
type Gateway struct {
	name         string
	provider     Provider
	systemPrompt string
}

func NewGateway(name string, provider Provider, systemPrompt string) *Gateway {
	return &Gateway{name: name, provider: provider, systemPrompt: systemPrompt}
}

func (g *Gateway) Name() string { return g.name }

// BuildMessages orders the request: system instruction, history oldest
// first, then the current user message last.
func (g *Gateway) BuildMessages(userMessage string, history []Message) []Message {
	out := make([]Message, 0, len(history)+2)
	if g.systemPrompt != "" {
		out = append(out, Message{Role: RoleSystem, Content: g.systemPrompt})
	}
	out = append(out, history...)
	out = append(out, Message{Role: RoleUser, Content: userMessage})
	return out
}

// Generate never returns empty text: a blank completion is a
// non-transient *CompletionError.
func (g *Gateway) Generate(ctx context.Context, userMessage string, history []Message) (string, error) {
	start := time.Now()
	reply, err := g.provider.Chat(ctx, g.BuildMessages(userMessage, history))
	if err == nil && strings.TrimSpace(reply) == "" {
		err = &CompletionError{Err: ErrEmptyCompletion}
	}

	outcome := "ok"
	if err != nil {
		ce := Normalize(g.name, err)
		outcome = "error"
		if ce.Transient {
			outcome = "rate_limited"
		}
		metrics.RecordCompletion(g.name, outcome, time.Since(start).Seconds())
		return "", ce
	}
	metrics.RecordCompletion(g.name, outcome, time.Since(start).Seconds())
	return reply, nil
}
