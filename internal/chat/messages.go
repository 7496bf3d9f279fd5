package chat

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// MessageStore is the persistence boundary for turns. Every method filters
// by userID.
type MessageStore interface {
	Append(ctx context.Context, userID uint64, conversationID, role, content string) (*Message, error)
	ListByConversation(ctx context.Context, userID uint64, conversationID string, limit, offset int) ([]Message, error)
	ListRecent(ctx context.Context, userID uint64, conversationID string, limit int, beforeID uint64) ([]Message, error)
	Last(ctx context.Context, userID uint64, conversationID string) (*Message, error)
	DeleteByConversation(ctx context.Context, userID uint64, conversationID string) error
	DeleteByUser(ctx context.Context, userID uint64) error
}

type GormMessageStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewMessageStore(db *gorm.DB) *GormMessageStore {
	return &GormMessageStore{db: db, now: time.Now}
}

func (s *GormMessageStore) scoped(ctx context.Context, userID uint64, conversationID string) *gorm.DB {
	return s.db.WithContext(ctx).
		Where("user_id = ? AND conversation_id = ?", userID, conversationID)
}

// Append stamps the turn with max(now, previous+1ms) so created_at is
// strictly increasing within a conversation.
func (s *GormMessageStore) Append(ctx context.Context, userID uint64, conversationID, role, content string) (*Message, error) {
	ts := s.now().UTC().Truncate(time.Millisecond)

	last, err := s.Last(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	if last != nil {
		floor := last.CreatedAt.UTC().Truncate(time.Millisecond).Add(time.Millisecond)
		if ts.Before(floor) {
			ts = floor
		}
	}

	m := &Message{
		UserID:         userID,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      ts,
	}
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, storageErr("append message", err)
	}
	return m, nil
}

// ListByConversation returns oldest first.
func (s *GormMessageStore) ListByConversation(ctx context.Context, userID uint64, conversationID string, limit, offset int) ([]Message, error) {
	var msgs []Message
	err := s.scoped(ctx, userID, conversationID).
		Order("created_at ASC").Order("id ASC").
		Limit(limit).Offset(offset).
		Find(&msgs).Error
	if err != nil {
		return nil, storageErr("list messages", err)
	}
	return msgs, nil
}

// ListRecent returns newest first. beforeID > 0 excludes that turn and
// everything after it.
func (s *GormMessageStore) ListRecent(ctx context.Context, userID uint64, conversationID string, limit int, beforeID uint64) ([]Message, error) {
	q := s.scoped(ctx, userID, conversationID).
		Order("created_at DESC").Order("id DESC").
		Limit(limit)
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}

	var msgs []Message
	if err := q.Find(&msgs).Error; err != nil {
		return nil, storageErr("list recent messages", err)
	}
	return msgs, nil
}

// Last returns nil, nil for an empty conversation.
func (s *GormMessageStore) Last(ctx context.Context, userID uint64, conversationID string) (*Message, error) {
	var m Message
	err := s.scoped(ctx, userID, conversationID).
		Order("created_at DESC").Order("id DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("last message", err)
	}
	return &m, nil
}

func (s *GormMessageStore) DeleteByConversation(ctx context.Context, userID uint64, conversationID string) error {
	return storageErr("delete conversation messages",
		s.scoped(ctx, userID, conversationID).Delete(&Message{}).Error)
}

func (s *GormMessageStore) DeleteByUser(ctx context.Context, userID uint64) error {
	return storageErr("delete user messages",
		s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&Message{}).Error)
}
