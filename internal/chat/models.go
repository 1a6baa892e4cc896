package chat

import "time"

type Session struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	SessionID string    `gorm:"type:varchar(26);uniqueIndex;not null" json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Session) TableName() string { return "chat_sessions" }

// Message is one transcript entry. MessageID is the public id; the numeric
// primary key only orders the transcript.
type Message struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	MessageID string    `gorm:"type:varchar(36);uniqueIndex;not null" json:"id"`
	SessionID string    `gorm:"type:varchar(26);index;not null" json:"session_id"`
	Role      string    `gorm:"type:varchar(16);not null" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"timestamp"`
}

func (Message) TableName() string { return "chat_messages" }
