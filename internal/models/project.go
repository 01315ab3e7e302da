package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Project is a collaborative workspace. Members always include the creator.
type Project struct {
	ID        string                       `gorm:"primaryKey;size:36" json:"_id"`
	Name      string                       `gorm:"uniqueIndex;size:200;not null" json:"name"`
	CreatedBy string                       `gorm:"size:36;index" json:"created_by"`
	FileTree  datatypes.JSONType[FileTree] `json:"fileTree"`
	Members   []User                       `gorm:"many2many:project_members" json:"users"`
	CreatedAt time.Time                    `json:"created_at"`
	UpdatedAt time.Time                    `json:"updated_at"`
}

func (Project) TableName() string { return "projects" }

func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.FileTree.Data() == nil {
		p.FileTree = datatypes.NewJSONType(FileTree{})
	}
	return nil
}

// MemberIDs returns the ids of the loaded members.
func (p *Project) MemberIDs() []string {
	ids := make([]string, 0, len(p.Members))
	for _, m := range p.Members {
		ids = append(ids, m.ID)
	}
	return ids
}

// HasMember reports whether userID is among the loaded members.
func (p *Project) HasMember(userID string) bool {
	for _, m := range p.Members {
		if m.ID == userID {
			return true
		}
	}
	return false
}
