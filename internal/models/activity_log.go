package models

import "time"

// ActivityLog records a write made through the API or the chat assistant.
type ActivityLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ProjectID *string   `gorm:"size:36;index" json:"project_id,omitempty"`
	UserID    *string   `gorm:"size:36;index" json:"user_id,omitempty"`
	Action    string    `gorm:"size:100;index" json:"action"`
	Message   string    `gorm:"type:text" json:"message"`
	IP        string    `gorm:"size:50" json:"ip,omitempty"`
	UserAgent string    `gorm:"size:500" json:"user_agent,omitempty"`
	Extra     string    `gorm:"type:text" json:"extra,omitempty"` // JSON
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (ActivityLog) TableName() string { return "activity_logs" }
