package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/huangang/cocode/internal/config"
	"github.com/huangang/cocode/internal/models"
	"github.com/huangang/cocode/internal/utils"
	"github.com/huangang/cocode/pkg/response"
	"gorm.io/gorm"
)

// MinPasswordLength is the shortest password registration accepts.
const MinPasswordLength = 3

type AuthService struct {
	db          *gorm.DB
	ldapService *LDAPService
	jwtConfig   *config.JWTConfig
	now         func() time.Time
}

func NewAuthService(db *gorm.DB, jwtCfg *config.JWTConfig, ldapCfg *config.LDAPConfig) *AuthService {
	return &AuthService{
		db:          db,
		ldapService: NewLDAPService(ldapCfg),
		jwtConfig:   jwtCfg,
		now:         time.Now,
	}
}

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=3"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	AuthType string `json:"auth_type"` // local, ldap
}

// Session is what a successful register, login or refresh hands back.
type Session struct {
	User            *models.User `json:"user"`
	Token           string       `json:"token"`
	ExpireAt        time.Time    `json:"expire_at"`
	RefreshToken    string       `json:"refresh_token,omitempty"`
	RefreshExpireAt *time.Time   `json:"refresh_expire_at,omitempty"`
}

// Register creates a local user and returns a signed access token.
func (s *AuthService) Register(req *RegisterRequest) (*Session, error) {
	email := normalizeEmail(req.Email)
	var fields []response.FieldError
	if err := validate.Var(email, "required,email"); err != nil {
		fields = append(fields, response.FieldError{Field: "email", Message: "email must be a valid email address"})
	}
	if len(req.Password) < MinPasswordLength {
		fields = append(fields, response.FieldError{
			Field:   "password",
			Message: fmt.Sprintf("password must be at least %d characters long", MinPasswordLength),
		})
	}
	if len(fields) > 0 {
		return nil, response.NewValidation(fields...)
	}

	var count int64
	if err := s.db.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if count > 0 {
		return nil, response.NewConflict("email already registered")
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{Email: email, Password: hash, AuthType: "local"}
	if err := s.db.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, response.NewConflict("email already registered")
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	return s.issueAccess(&user)
}

// Login verifies credentials and returns an access and refresh token pair.
func (s *AuthService) Login(req *LoginRequest, clientIP, userAgent string) (*Session, error) {
	var user *models.User
	var err error

	if req.AuthType == "" {
		req.AuthType = "local"
	}

	switch req.AuthType {
	case "local":
		user, err = s.localAuth(normalizeEmail(req.Email), req.Password)
	case "ldap":
		user, err = s.ldapAuth(normalizeEmail(req.Email), req.Password)
	default:
		return nil, response.NewBadRequest("invalid auth type")
	}
	if err != nil {
		return nil, err
	}

	session, err := s.issueAccess(user)
	if err != nil {
		return nil, err
	}
	if err := s.issueRefresh(session, clientIP, userAgent); err != nil {
		return nil, err
	}

	now := s.now()
	user.LastLogin = &now
	s.db.Model(user).Update("last_login", now)

	return session, nil
}

// Refresh rotates a refresh token: the presented one is revoked and a new pair issued.
func (s *AuthService) Refresh(refreshToken, clientIP, userAgent string) (*Session, error) {
	if refreshToken == "" {
		return nil, response.NewBadRequest("refresh token required")
	}

	var stored models.RefreshToken
	if err := s.db.Where("token_hash = ?", utils.HashToken(refreshToken)).First(&stored).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewUnauthorized("invalid refresh token")
		}
		return nil, err
	}
	if stored.RevokedAt != nil {
		return nil, response.NewUnauthorized("refresh token revoked")
	}
	if !stored.Active(s.now()) {
		return nil, response.NewUnauthorized("refresh token expired")
	}

	var user models.User
	if err := s.db.First(&user, "id = ?", stored.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewUnauthorized("user not found")
		}
		return nil, err
	}

	session, err := s.issueAccess(&user)
	if err != nil {
		return nil, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		next, err := s.createRefresh(tx, user.ID, clientIP, userAgent)
		if err != nil {
			return err
		}
		session.RefreshToken = next.raw
		session.RefreshExpireAt = &next.record.ExpiresAt
		return tx.Model(&stored).Updates(map[string]interface{}{
			"revoked_at":           s.now(),
			"replaced_by_token_id": next.record.ID,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (s *AuthService) RevokeRefreshToken(refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.db.Model(&models.RefreshToken{}).
		Where("token_hash = ? AND revoked_at IS NULL", utils.HashToken(refreshToken)).
		Update("revoked_at", s.now()).Error
}

// CleanupExpiredTokens deletes refresh tokens that expired or were revoked before cutoff.
func (s *AuthService) CleanupExpiredTokens(cutoff time.Time) (int64, error) {
	result := s.db.Where("expires_at < ? OR revoked_at < ?", cutoff, cutoff).Delete(&models.RefreshToken{})
	return result.RowsAffected, result.Error
}

func (s *AuthService) IsLDAPEnabled() bool {
	return s.ldapService.IsEnabled()
}

func (s *AuthService) issueAccess(user *models.User) (*Session, error) {
	hours := s.jwtConfig.ExpireHour
	if hours <= 0 {
		hours = 24
	}
	token, err := utils.GenerateToken(user.ID, user.Email, hours)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &Session{
		User:     user,
		Token:    token,
		ExpireAt: s.now().Add(time.Duration(hours) * time.Hour),
	}, nil
}

func (s *AuthService) issueRefresh(session *Session, clientIP, userAgent string) error {
	issued, err := s.createRefresh(s.db, session.User.ID, clientIP, userAgent)
	if err != nil {
		return err
	}
	session.RefreshToken = issued.raw
	session.RefreshExpireAt = &issued.record.ExpiresAt
	return nil
}

type issuedRefresh struct {
	raw    string
	record models.RefreshToken
}

func (s *AuthService) createRefresh(tx *gorm.DB, userID, clientIP, userAgent string) (*issuedRefresh, error) {
	hours := s.jwtConfig.RefreshExpireHour
	if hours <= 0 {
		hours = 24 * 7
	}
	raw, err := utils.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}
	record := models.RefreshToken{
		UserID:      userID,
		TokenHash:   utils.HashToken(raw),
		ExpiresAt:   s.now().Add(time.Duration(hours) * time.Hour),
		CreatedByIP: clientIP,
		UserAgent:   userAgent,
	}
	if err := tx.Create(&record).Error; err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}
	return &issuedRefresh{raw: raw, record: record}, nil
}

func (s *AuthService) localAuth(email, password string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("email = ? AND auth_type = ?", email, "local").First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewUnauthorized("invalid email or password")
		}
		return nil, err
	}

	if !utils.CheckPassword(password, user.Password) {
		return nil, response.NewUnauthorized("invalid email or password")
	}

	return &user, nil
}

func (s *AuthService) ldapAuth(email, password string) (*models.User, error) {
	ldapUser, err := s.ldapService.Authenticate(email, password)
	if err != nil {
		return nil, response.NewUnauthorized(err.Error())
	}
	if ldapUser.Email == "" {
		ldapUser.Email = email
	}

	var user models.User
	err = s.db.Where("email = ?", normalizeEmail(ldapUser.Email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = models.User{Email: normalizeEmail(ldapUser.Email), AuthType: "ldap"}
		if err := s.db.Create(&user).Error; err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	} else if user.AuthType != "ldap" {
		return nil, response.NewConflict("email is registered with a local password")
	}

	return &user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
