package chat

import "time"

type Conversation struct {
	ID        string    `gorm:"primaryKey;type:varchar(26)" json:"id"`
	UserID    uint64    `gorm:"index:idx_chat_conv_user_active,priority:1;not null" json:"-"`
	Title     string    `gorm:"type:varchar(255);not null" json:"title"`
	IsActive  bool      `gorm:"index:idx_chat_conv_user_active,priority:2;not null;default:true" json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `gorm:"index" json:"updatedAt"`
}

func (Conversation) TableName() string { return "chat_conversations" }

type Message struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         uint64    `gorm:"not null;index:idx_chat_msg_user_conv,priority:1" json:"-"`
	ConversationID string    `gorm:"type:varchar(26);not null;index:idx_chat_msg_user_conv,priority:2" json:"conversationId"`
	Role           string    `gorm:"type:varchar(16);not null" json:"role"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	CreatedAt      time.Time `gorm:"index:idx_chat_msg_user_conv,priority:3" json:"timestamp"`
}

func (Message) TableName() string { return "chat_messages" }

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Job tracks one out-of-band attempt to answer a conversation whose last
// turn never got an assistant reply.
type Job struct {
	ID             string `gorm:"primaryKey;size:26" json:"jobId"`
	UserID         uint64 `gorm:"not null;index:uniq_chat_job_idempo,unique,priority:1" json:"-"`
	ConversationID string `gorm:"size:26;index;not null" json:"conversationId"`

	// PendingMessageID is the user turn the job answers.
	PendingMessageID uint64 `gorm:"not null" json:"pendingMessageId"`

	IdempotencyKey *string   `gorm:"type:varchar(128);index:uniq_chat_job_idempo,unique,priority:2" json:"-"`
	Status         JobStatus `gorm:"type:varchar(16);index;not null" json:"status"`

	ResultMessageID *uint64 `json:"resultMessageId,omitempty"`
	Error           *string `gorm:"type:text" json:"error,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Job) TableName() string { return "chat_jobs" }
