package services

import (
	"testing"

	"github.com/huangang/cocode/internal/config"
	"github.com/huangang/cocode/internal/models"
	"github.com/huangang/cocode/internal/utils"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := models.Open(&config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"}, false)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func newTestAuth(t *testing.T, db *gorm.DB) *AuthService {
	t.Helper()
	utils.SetJWTSecret("test-secret")
	return NewAuthService(db, &config.JWTConfig{ExpireHour: 1, RefreshExpireHour: 24}, &config.LDAPConfig{})
}

func createUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	user := models.User{Email: email, AuthType: "local"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return &user
}
