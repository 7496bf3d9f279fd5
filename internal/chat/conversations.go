package chat

import (
	"context"
	"errors"
	"time"

	"github.com/suPer8Hu/gopherchat/internal/common"
	"gorm.io/gorm"
)

const DefaultTitle = "New Chat"

type ConversationStore interface {
	Create(ctx context.Context, userID uint64, title string) (*Conversation, error)
	ListByUser(ctx context.Context, userID uint64) ([]Conversation, error)
	Get(ctx context.Context, userID uint64, conversationID string) (*Conversation, error)
	Touch(ctx context.Context, userID uint64, conversationID string, at time.Time) error
	Delete(ctx context.Context, userID uint64, conversationID string) error
	DeleteByUser(ctx context.Context, userID uint64) error
}

type ConversationRegistry struct {
	db *gorm.DB
}

func NewConversationRegistry(db *gorm.DB) *ConversationRegistry {
	return &ConversationRegistry{db: db}
}

func (r *ConversationRegistry) Create(ctx context.Context, userID uint64, title string) (*Conversation, error) {
	if title == "" {
		title = DefaultTitle
	}
	id, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	c := &Conversation{
		ID:        id,
		UserID:    userID,
		Title:     title,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, storageErr("create conversation", err)
	}
	return c, nil
}

// ListByUser returns active conversations, most recently used first.
func (r *ConversationRegistry) ListByUser(ctx context.Context, userID uint64) ([]Conversation, error) {
	var out []Conversation
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("updated_at DESC").Order("id DESC").
		Find(&out).Error
	if err != nil {
		return nil, storageErr("list conversations", err)
	}
	return out, nil
}

func (r *ConversationRegistry) Get(ctx context.Context, userID uint64, conversationID string) (*Conversation, error) {
	var c Conversation
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", conversationID, userID).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, storageErr("get conversation", err)
	}
	return &c, nil
}

func (r *ConversationRegistry) Touch(ctx context.Context, userID uint64, conversationID string, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&Conversation{}).
		Where("id = ? AND user_id = ?", conversationID, userID).
		UpdateColumn("updated_at", at.UTC()).Error
	return storageErr("touch conversation", err)
}

// Delete removes the conversation and its messages in one transaction.
// A conversation owned by someone else matches zero rows and is not an error.
func (r *ConversationRegistry) Delete(ctx context.Context, userID uint64, conversationID string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND conversation_id = ?", userID, conversationID).
			Delete(&Message{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ? AND user_id = ?", conversationID, userID).
			Delete(&Conversation{}).Error
	})
	return storageErr("delete conversation", err)
}

func (r *ConversationRegistry) DeleteByUser(ctx context.Context, userID uint64) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&Message{}).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ?", userID).Delete(&Conversation{}).Error
	})
	return storageErr("delete user conversations", err)
}
