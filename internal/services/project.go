package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/huangang/cocode/internal/models"
	"github.com/huangang/cocode/pkg/response"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProjectService struct {
	db       *gorm.DB
	activity *ActivityService
}

func NewProjectService(db *gorm.DB, activity *ActivityService) *ProjectService {
	return &ProjectService{db: db, activity: activity}
}

type CreateProjectRequest struct {
	Name string `json:"name" binding:"required"`
}

type AddUserRequest struct {
	ProjectID string   `json:"projectId" binding:"required"`
	Users     []string `json:"users" binding:"required,min=1"`
}

type UpdateFileTreeRequest struct {
	ProjectID string          `json:"projectId" binding:"required"`
	FileTree  models.FileTree `json:"fileTree" binding:"required"`
}

// Create persists a project whose only member is the requester.
func (s *ProjectService) Create(name, requesterID string) (*models.Project, error) {
	name = strings.TrimSpace(name)
	var fields []response.FieldError
	if name == "" {
		fields = append(fields, response.FieldError{Field: "name", Message: "name is required"})
	}
	if requesterID == "" {
		fields = append(fields, response.FieldError{Field: "userId", Message: "userId is required"})
	}
	if len(fields) > 0 {
		return nil, response.NewValidation(fields...)
	}

	var count int64
	if err := s.db.Model(&models.Project{}).Where("name = ?", name).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("check project name: %w", err)
	}
	if count > 0 {
		return nil, response.NewConflict("project name already exists")
	}

	project := models.Project{Name: name, CreatedBy: requesterID}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&project).Error; err != nil {
			return err
		}
		return tx.Create(&models.ProjectMember{
			ProjectID: project.ID,
			UserID:    requesterID,
			AddedBy:   requesterID,
		}).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, response.NewConflict("project name already exists")
		}
		return nil, fmt.Errorf("create project: %w", err)
	}

	s.activity.Record(ActivityEntry{
		ProjectID: project.ID,
		UserID:    requesterID,
		Action:    "project.create",
		Message:   fmt.Sprintf("created project %q", project.Name),
	})

	return s.load(project.ID)
}

// ListForUser returns every project the requester is a member of.
func (s *ProjectService) ListForUser(requesterID string) ([]models.Project, error) {
	if requesterID == "" {
		return nil, response.NewValidation(response.FieldError{Field: "userId", Message: "userId is required"})
	}

	projects := []models.Project{}
	err := s.db.
		Joins("JOIN project_members ON project_members.project_id = projects.id").
		Where("project_members.user_id = ?", requesterID).
		Preload("Members").
		Order("projects.created_at ASC").
		Find(&projects).Error
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// AddCollaborators unions userIDs into the member set. Existing members are skipped.
func (s *ProjectService) AddCollaborators(projectID string, userIDs []string, requesterID string) (*models.Project, error) {
	var fields []response.FieldError
	if !isValidID(projectID) {
		fields = append(fields, response.FieldError{Field: "projectId", Message: "projectId must be a valid id"})
	}
	if !isValidID(requesterID) {
		fields = append(fields, response.FieldError{Field: "userId", Message: "userId must be a valid id"})
	}
	if len(userIDs) == 0 {
		fields = append(fields, response.FieldError{Field: "users", Message: "users must contain at least one id"})
	}
	for _, id := range userIDs {
		if !isValidID(id) {
			fields = append(fields, response.FieldError{Field: "users", Message: fmt.Sprintf("%q is not a valid id", id)})
		}
	}
	if len(fields) > 0 {
		return nil, response.NewValidation(fields...)
	}

	if err := s.requireMember(projectID, requesterID); err != nil {
		return nil, err
	}

	ids := dedupe(userIDs)
	var known int64
	if err := s.db.Model(&models.User{}).Where("id IN ?", ids).Count(&known).Error; err != nil {
		return nil, fmt.Errorf("check users: %w", err)
	}
	if int(known) != len(ids) {
		return nil, response.NewValidation(response.FieldError{Field: "users", Message: "users contains an unknown user id"})
	}

	rows := make([]models.ProjectMember, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, models.ProjectMember{ProjectID: projectID, UserID: id, AddedBy: requesterID})
	}
	result := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("add collaborators: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		s.activity.Record(ActivityEntry{
			ProjectID: projectID,
			UserID:    requesterID,
			Action:    "project.add_user",
			Message:   fmt.Sprintf("added %d collaborator(s)", result.RowsAffected),
			Extra:     map[string]interface{}{"users": ids},
		})
	}

	return s.load(projectID)
}

// Get returns a project with its members. Only members may read it.
func (s *ProjectService) Get(projectID, requesterID string) (*models.Project, error) {
	if !isValidID(projectID) {
		return nil, response.NewValidation(response.FieldError{Field: "projectId", Message: "projectId must be a valid id"})
	}
	if err := s.requireMember(projectID, requesterID); err != nil {
		return nil, err
	}
	return s.load(projectID)
}

// UpdateFileTree replaces the project's file tree on behalf of a member.
func (s *ProjectService) UpdateFileTree(projectID string, tree models.FileTree, requesterID string) (*models.Project, error) {
	if !isValidID(projectID) {
		return nil, response.NewValidation(response.FieldError{Field: "projectId", Message: "projectId must be a valid id"})
	}
	if tree == nil {
		return nil, response.NewValidation(response.FieldError{Field: "fileTree", Message: "fileTree is required"})
	}
	if err := s.requireMember(projectID, requesterID); err != nil {
		return nil, err
	}
	if err := s.SaveFileTree(projectID, tree); err != nil {
		return nil, err
	}

	s.activity.Record(ActivityEntry{
		ProjectID: projectID,
		UserID:    requesterID,
		Action:    "project.update_file_tree",
		Message:   fmt.Sprintf("saved %d file(s)", len(tree)),
	})
	return s.load(projectID)
}

// SaveFileTree replaces the stored tree without a membership check. Last write wins.
func (s *ProjectService) SaveFileTree(projectID string, tree models.FileTree) error {
	if err := tree.Validate(); err != nil {
		return response.NewValidation(response.FieldError{Field: "fileTree", Message: err.Error()})
	}
	result := s.db.Model(&models.Project{}).
		Where("id = ?", projectID).
		Update("file_tree", datatypes.NewJSONType(tree.Clone()))
	if result.Error != nil {
		return fmt.Errorf("save file tree: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return response.NewNotFound("project not found")
	}
	return nil
}

// EnsureCreatorMembership re-adds creators missing from their own project's members.
func (s *ProjectService) EnsureCreatorMembership() (int64, error) {
	var projects []models.Project
	err := s.db.Model(&models.Project{}).
		Select("projects.id, projects.created_by").
		Joins("LEFT JOIN project_members ON project_members.project_id = projects.id AND project_members.user_id = projects.created_by").
		Where("projects.created_by <> '' AND project_members.user_id IS NULL").
		Find(&projects).Error
	if err != nil {
		return 0, fmt.Errorf("find orphaned projects: %w", err)
	}
	if len(projects) == 0 {
		return 0, nil
	}

	rows := make([]models.ProjectMember, 0, len(projects))
	for _, p := range projects {
		rows = append(rows, models.ProjectMember{ProjectID: p.ID, UserID: p.CreatedBy, AddedBy: p.CreatedBy})
	}
	result := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows)
	return result.RowsAffected, result.Error
}

// IsMember reports whether userID belongs to the project.
func (s *ProjectService) IsMember(projectID, userID string) (bool, error) {
	var count int64
	err := s.db.Model(&models.ProjectMember{}).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Count(&count).Error
	return count > 0, err
}

func (s *ProjectService) requireMember(projectID, userID string) error {
	var exists int64
	if err := s.db.Model(&models.Project{}).Where("id = ?", projectID).Count(&exists).Error; err != nil {
		return fmt.Errorf("load project: %w", err)
	}
	if exists == 0 {
		return response.NewNotFound("project not found")
	}
	member, err := s.IsMember(projectID, userID)
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if !member {
		return response.NewForbidden("user does not belong to this project")
	}
	return nil
}

func (s *ProjectService) load(projectID string) (*models.Project, error) {
	var project models.Project
	if err := s.db.Preload("Members").First(&project, "id = ?", projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewNotFound("project not found")
		}
		return nil, fmt.Errorf("load project: %w", err)
	}
	return &project, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
