package models

import "time"

// JobLock marks a scheduled job slot as taken so that only one server
// instance runs it.
type JobLock struct {
	Job       string    `gorm:"primaryKey;size:100" json:"job"`
	Slot      string    `gorm:"primaryKey;size:100" json:"slot"`
	Holder    string    `gorm:"size:100" json:"holder"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `gorm:"index" json:"expires_at"`
}

func (JobLock) TableName() string { return "job_locks" }
