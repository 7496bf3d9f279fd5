package chat

import (
	"errors"
	"fmt"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrJobNotFound          = errors.New("job not found")
	// ErrNotPending means the conversation's last turn already has a reply.
	ErrNotPending = errors.New("conversation has no pending user turn")
	// ErrRecoveryUnavailable is returned when no job queue is configured.
	ErrRecoveryUnavailable = errors.New("recovery queue is not configured")
)

// StorageError wraps any datastore failure. Its message is for logs only.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage: %s: %v", e.Op, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// ValidationError rejects caller input that passed shape validation but is
// not acceptable in the current state (e.g. a foreign conversation id).
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Message }

type Stage string

const (
	StageResolveConversation  Stage = "resolve_conversation"
	StagePersistUserTurn      Stage = "persist_user_turn"
	StageAssembleContext      Stage = "assemble_context"
	StageGenerate             Stage = "generate"
	StagePersistAssistantTurn Stage = "persist_assistant_turn"
	StageRespond              Stage = "respond"
)

// TurnError records the stage a turn failed in. ConversationID is set once
// the conversation is known, so callers can report it even on failure.
type TurnError struct {
	Stage          Stage
	ConversationID string
	Err            error
}

func (e *TurnError) Error() string { return fmt.Sprintf("turn %s: %v", e.Stage, e.Err) }

func (e *TurnError) Unwrap() error { return e.Err }
