package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/suPer8Hu/gopherchat/internal/ai"
	"github.com/suPer8Hu/gopherchat/internal/common"
	"github.com/suPer8Hu/gopherchat/internal/metrics"
)

const (
	DefaultContextWindow = 10
	maxContextWindow     = 100

	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 100

	titleRunes = 30
)

// Generator produces the assistant reply for one turn. *ai.Gateway
// satisfies it.
type Generator interface {
	Generate(ctx context.Context, userMessage string, history []ai.Message) (string, error)
}

// JobPublisher hands a recovery job to the worker queue.
type JobPublisher interface {
	PublishJob(ctx context.Context, jobID string) error
}

type Deps struct {
	Conversations ConversationStore
	Messages      MessageStore
	Generator     Generator
	Logger        zerolog.Logger

	// Jobs and Publisher are optional; without them recovery is unavailable.
	Jobs      *JobRepo
	Publisher JobPublisher
}

type Service struct {
	conversations ConversationStore
	messages      MessageStore
	assembler     *ContextAssembler
	generator     Generator
	jobs          *JobRepo
	publisher     JobPublisher
	log           zerolog.Logger

	contextWindowSize int
}

func NewService(d Deps, contextWindowSize int) *Service {
	if contextWindowSize <= 0 || contextWindowSize > maxContextWindow {
		contextWindowSize = DefaultContextWindow
	}
	return &Service{
		conversations:     d.Conversations,
		messages:          d.Messages,
		assembler:         NewContextAssembler(d.Messages, d.Logger),
		generator:         d.Generator,
		jobs:              d.Jobs,
		publisher:         d.Publisher,
		log:               d.Logger,
		contextWindowSize: contextWindowSize,
	}
}

type TurnResult struct {
	Text           string
	ConversationID string
	Timestamp      time.Time
}

func turnFailed(stage Stage, conversationID string, err error) error {
	metrics.RecordTurn(string(stage), "error")
	return &TurnError{Stage: stage, ConversationID: conversationID, Err: err}
}

// SendTurn runs one user→assistant exchange. The user turn is persisted
// before generation and is kept when generation fails, leaving the
// conversation in the pending state.
//
// The caller's cancellation is dropped: once accepted, a turn runs to
// completion and provider timeouts bound the wait.
func (s *Service) SendTurn(ctx context.Context, userID uint64, conversationID, message string) (*TurnResult, error) {
	ctx = context.WithoutCancel(ctx)

	if strings.TrimSpace(message) == "" {
		return nil, turnFailed(StageResolveConversation, "",
			&ValidationError{Field: "message", Message: "Message cannot be empty"})
	}

	conv, err := s.resolveConversation(ctx, userID, conversationID, message)
	if err != nil {
		return nil, turnFailed(StageResolveConversation, "", err)
	}

	userTurn, err := s.messages.Append(ctx, userID, conv.ID, ai.RoleUser, message)
	if err != nil {
		return nil, turnFailed(StagePersistUserTurn, conv.ID, err)
	}
	s.touch(ctx, userID, conv.ID, userTurn.CreatedAt)

	history := s.assembler.RecentHistoryBefore(ctx, userID, conv.ID, userTurn.ID, s.contextWindowSize)

	reply, err := s.generator.Generate(ctx, message, history)
	if err != nil {
		s.log.Warn().Err(err).
			Uint64("user_id", userID).
			Str("conversation_id", conv.ID).
			Msg("generation failed, user turn left pending")
		return nil, turnFailed(StageGenerate, conv.ID, err)
	}

	assistantTurn, err := s.messages.Append(ctx, userID, conv.ID, ai.RoleAssistant, reply)
	if err != nil {
		return nil, turnFailed(StagePersistAssistantTurn, conv.ID, err)
	}
	s.touch(ctx, userID, conv.ID, assistantTurn.CreatedAt)

	metrics.RecordTurn(string(StageRespond), "ok")
	return &TurnResult{
		Text:           reply,
		ConversationID: conv.ID,
		Timestamp:      assistantTurn.CreatedAt,
	}, nil
}

func (s *Service) resolveConversation(ctx context.Context, userID uint64, conversationID, message string) (*Conversation, error) {
	if conversationID == "" {
		conv, err := s.conversations.Create(ctx, userID, TitleFromMessage(message))
		if err != nil {
			return nil, err
		}
		metrics.ConversationsCreatedTotal.Inc()
		return conv, nil
	}

	conv, err := s.conversations.Get(ctx, userID, conversationID)
	if errors.Is(err, ErrConversationNotFound) {
		return nil, &ValidationError{Field: "conversationId", Message: "Conversation not found"}
	}
	return conv, err
}

// Touch failures only cost list ordering, so they are logged and dropped.
func (s *Service) touch(ctx context.Context, userID uint64, conversationID string, at time.Time) {
	if err := s.conversations.Touch(ctx, userID, conversationID, at); err != nil {
		s.log.Warn().Err(err).
			Str("conversation_id", conversationID).
			Msg("failed to bump conversation activity")
	}
}

// TitleFromMessage keeps the first 30 characters of the message.
func TitleFromMessage(message string) string {
	message = strings.TrimSpace(message)
	r := []rune(message)
	if len(r) <= titleRunes {
		return message
	}
	return string(r[:titleRunes]) + "..."
}

func (s *Service) CreateConversation(ctx context.Context, userID uint64, title string) (*Conversation, error) {
	conv, err := s.conversations.Create(ctx, userID, strings.TrimSpace(title))
	if err != nil {
		return nil, err
	}
	metrics.ConversationsCreatedTotal.Inc()
	return conv, nil
}

func (s *Service) ListConversations(ctx context.Context, userID uint64) ([]Conversation, error) {
	return s.conversations.ListByUser(ctx, userID)
}

func (s *Service) DeleteConversation(ctx context.Context, userID uint64, conversationID string) error {
	return s.conversations.Delete(ctx, userID, conversationID)
}

// History pages through a conversation oldest first. limit falls back to 50
// when out of range; a negative offset is treated as 0.
func (s *Service) History(ctx context.Context, userID uint64, conversationID string, limit, offset int) ([]Message, int, int, error) {
	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	msgs, err := s.messages.ListByConversation(ctx, userID, conversationID, limit, offset)
	if err != nil {
		return nil, limit, offset, err
	}
	return msgs, limit, offset, nil
}

// DeleteHistory removes every conversation and message the user owns.
func (s *Service) DeleteHistory(ctx context.Context, userID uint64) error {
	return s.conversations.DeleteByUser(ctx, userID)
}

// CompletePending answers a trailing user turn. pendingID, when non-zero,
// must still be the conversation's last turn.
func (s *Service) CompletePending(ctx context.Context, userID uint64, conversationID string, pendingID uint64) (*Message, error) {
	ctx = context.WithoutCancel(ctx)

	if _, err := s.conversations.Get(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	last, err := s.messages.Last(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	if last == nil || last.Role != ai.RoleUser || (pendingID != 0 && last.ID != pendingID) {
		return nil, ErrNotPending
	}

	history := s.assembler.RecentHistoryBefore(ctx, userID, conversationID, last.ID, s.contextWindowSize)
	reply, err := s.generator.Generate(ctx, last.Content, history)
	if err != nil {
		return nil, err
	}

	assistantTurn, err := s.messages.Append(ctx, userID, conversationID, ai.RoleAssistant, reply)
	if err != nil {
		return nil, err
	}
	s.touch(ctx, userID, conversationID, assistantTurn.CreatedAt)
	return assistantTurn, nil
}

// RequestRecovery queues a job that answers the conversation's pending turn.
// A repeated idempotency key returns the original job with created=false.
func (s *Service) RequestRecovery(ctx context.Context, userID uint64, conversationID, idempotencyKey string) (*Job, bool, error) {
	if s.jobs == nil || s.publisher == nil {
		return nil, false, ErrRecoveryUnavailable
	}
	if _, err := s.conversations.Get(ctx, userID, conversationID); err != nil {
		return nil, false, err
	}
	last, err := s.messages.Last(ctx, userID, conversationID)
	if err != nil {
		return nil, false, err
	}
	if last == nil || last.Role != ai.RoleUser {
		return nil, false, ErrNotPending
	}

	id, err := common.NewULID()
	if err != nil {
		return nil, false, err
	}
	job := &Job{
		ID:               id,
		UserID:           userID,
		ConversationID:   conversationID,
		PendingMessageID: last.ID,
		Status:           JobQueued,
	}
	if idempotencyKey != "" {
		job.IdempotencyKey = &idempotencyKey
	}

	job, created, err := s.jobs.CreateOrGetExisting(ctx, job)
	if err != nil {
		return nil, false, err
	}
	if !created {
		return job, false, nil
	}

	if err := s.publisher.PublishJob(ctx, job.ID); err != nil {
		_ = s.jobs.MarkFailed(context.WithoutCancel(ctx), job.ID, "publish: "+err.Error())
		metrics.RecordRecoveryJob(string(JobFailed))
		return nil, false, err
	}
	metrics.RecordRecoveryJob(string(JobQueued))
	return job, true, nil
}

func (s *Service) GetJob(ctx context.Context, userID uint64, jobID string) (*Job, error) {
	if s.jobs == nil {
		return nil, ErrJobNotFound
	}
	return s.jobs.GetForUser(ctx, userID, jobID)
}

// RunJob is the worker side of recovery. A job that is no longer queued was
// taken by another delivery and is skipped.
func (s *Service) RunJob(ctx context.Context, jobID string) error {
	if s.jobs == nil {
		return ErrRecoveryUnavailable
	}
	won, err := s.jobs.MarkRunning(ctx, jobID)
	if err != nil {
		return err
	}
	if !won {
		s.log.Info().Str("job_id", jobID).Msg("job already taken, skipping")
		return nil
	}

	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}

	start := time.Now()
	msg, err := s.CompletePending(ctx, job.UserID, job.ConversationID, job.PendingMessageID)
	if err != nil {
		if markErr := s.jobs.MarkFailed(ctx, jobID, err.Error()); markErr != nil {
			s.log.Error().Err(markErr).Str("job_id", jobID).Msg("failed to mark job failed")
		}
		metrics.RecordRecoveryJob(string(JobFailed))
		s.log.Warn().Err(err).
			Str("job_id", jobID).
			Dur("took", time.Since(start)).
			Msg("recovery job failed")
		return err
	}

	if err := s.jobs.MarkSucceeded(ctx, jobID, msg.ID); err != nil {
		return err
	}
	metrics.RecordRecoveryJob(string(JobSucceeded))
	s.log.Info().
		Str("job_id", jobID).
		Str("conversation_id", job.ConversationID).
		Dur("took", time.Since(start)).
		Msg("recovery job succeeded")
	return nil
}
