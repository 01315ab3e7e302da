package models

import "time"

// ProjectMember is the join row behind Project.Members.
// The composite key makes adding an existing member a no-op.
type ProjectMember struct {
	ProjectID string    `gorm:"primaryKey;size:36" json:"project_id"`
	UserID    string    `gorm:"primaryKey;size:36;index" json:"user_id"`
	AddedBy   string    `gorm:"size:36" json:"added_by"`
	CreatedAt time.Time `json:"created_at"`
}

func (ProjectMember) TableName() string { return "project_members" }
