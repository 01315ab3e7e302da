package services

import (
	"errors"
	"fmt"

	"github.com/huangang/cocode/internal/models"
	"github.com/huangang/cocode/pkg/response"
	"gorm.io/gorm"
)

type UserService struct {
	db *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

func (s *UserService) GetByID(id string) (*models.User, error) {
	if !isValidID(id) {
		return nil, response.NewValidation(response.FieldError{Field: "userId", Message: "userId must be a valid id"})
	}
	var user models.User
	if err := s.db.First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewNotFound("user not found")
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &user, nil
}

// ListOthers returns every user except the requester, ordered by email.
func (s *UserService) ListOthers(requesterID string) ([]models.User, error) {
	users := []models.User{}
	if err := s.db.Where("id <> ?", requesterID).Order("email ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}
