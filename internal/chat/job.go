package chat

import "time"

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Job is a queued full-page recipe generation run. The worker always
// augments the result with images, unlike the interactive stream path.
type Job struct {
	ID string `gorm:"primaryKey;size:26" json:"id"` // ULID

	SessionID string `gorm:"size:26;index;not null" json:"session_id"`
	Prompt    string `gorm:"type:text;not null" json:"prompt"`

	IdempotencyKey *string `gorm:"type:varchar(128);uniqueIndex" json:"-"`

	Status JobStatus `gorm:"type:varchar(16);index;not null" json:"status"`

	// Filled when succeeded
	ResultMessageID *string `gorm:"type:varchar(36)" json:"result_message_id"`

	// Filled when failed
	Error *string `gorm:"type:text" json:"error"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
