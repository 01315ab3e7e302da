package services

import (
	"encoding/json"
	"time"

	"github.com/huangang/cocode/internal/models"
	"github.com/huangang/cocode/pkg/logger"
	"github.com/huangang/cocode/pkg/response"
	"gorm.io/gorm"
)

// ActivityService stores the per-project audit trail.
type ActivityService struct {
	db *gorm.DB
}

func NewActivityService(db *gorm.DB) *ActivityService {
	return &ActivityService{db: db}
}

type ActivityEntry struct {
	ProjectID string
	UserID    string
	Action    string
	Message   string
	IP        string
	UserAgent string
	Extra     interface{}
}

// Record writes an entry. Failures are logged and never reach the caller.
// A nil service discards entries.
func (s *ActivityService) Record(e ActivityEntry) {
	if s == nil || s.db == nil {
		return
	}

	row := models.ActivityLog{
		Action:    e.Action,
		Message:   e.Message,
		IP:        e.IP,
		UserAgent: e.UserAgent,
		CreatedAt: time.Now(),
	}
	if e.ProjectID != "" {
		row.ProjectID = &e.ProjectID
	}
	if e.UserID != "" {
		row.UserID = &e.UserID
	}
	if e.Extra != nil {
		if b, err := json.Marshal(e.Extra); err == nil {
			row.Extra = string(b)
		}
	}

	if err := s.db.Create(&row).Error; err != nil {
		logger.Warn().Err(err).Str("action", e.Action).Msg("failed to record activity")
	}
}

type ActivityListRequest struct {
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
	Action   string `form:"action"`
}

type ActivityListResponse struct {
	Total    int64                `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
	Items    []models.ActivityLog `json:"items"`
}

// ListForProject pages through a project's activity, newest first.
func (s *ActivityService) ListForProject(projectID string, req *ActivityListRequest) (*ActivityListResponse, error) {
	if !isValidID(projectID) {
		return nil, response.NewValidation(response.FieldError{Field: "projectId", Message: "projectId must be a valid id"})
	}
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 || req.PageSize > 100 {
		req.PageSize = 20
	}

	query := s.db.Model(&models.ActivityLog{}).Where("project_id = ?", projectID)
	if req.Action != "" {
		query = query.Where("action = ?", req.Action)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	items := []models.ActivityLog{}
	offset := (req.Page - 1) * req.PageSize
	if err := query.Offset(offset).Limit(req.PageSize).Order("created_at DESC, id DESC").Find(&items).Error; err != nil {
		return nil, err
	}

	return &ActivityListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    items,
	}, nil
}

// Cleanup deletes entries older than retentionDays and returns how many were removed.
func (s *ActivityService) Cleanup(retentionDays int) (int64, error) {
	if s == nil || retentionDays <= 0 {
		return 0, nil
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	result := s.db.Where("created_at < ?", cutoff).Delete(&models.ActivityLog{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
