package services

import (
	"testing"
	"time"

	"github.com/huangang/cocode/internal/config"
	"github.com/huangang/cocode/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaintenanceScheduler_RunOnce(t *testing.T) {
	db := newTestDB(t)
	auth := newTestAuth(t, db)
	activity := NewActivityService(db)
	user := createUser(t, db, "a@x.com")

	require.NoError(t, db.Create(&models.RefreshToken{UserID: user.ID, TokenHash: "h1", ExpiresAt: time.Now().Add(-time.Minute)}).Error)
	require.NoError(t, db.Create(&models.ActivityLog{Action: "old", CreatedAt: time.Now().AddDate(0, 0, -40)}).Error)
	require.NoError(t, db.Create(&models.ActivityLog{Action: "recent", CreatedAt: time.Now()}).Error)

	s := NewMaintenanceScheduler(config.MaintenanceConfig{ActivityRetentionDays: 30}, db, auth, activity)
	s.RunOnce()

	var tokens, logs int64
	db.Model(&models.RefreshToken{}).Count(&tokens)
	db.Model(&models.ActivityLog{}).Count(&logs)
	assert.Zero(t, tokens)
	assert.Equal(t, int64(1), logs)
}

func TestMaintenanceScheduler_StartRejectsBadCron(t *testing.T) {
	s := NewMaintenanceScheduler(config.MaintenanceConfig{CleanupCron: "not a cron"}, nil, nil, nil)
	assert.Error(t, s.Start())

	ok := NewMaintenanceScheduler(config.MaintenanceConfig{}, nil, nil, nil)
	require.NoError(t, ok.Start())
	ok.Stop()
}

func TestMaintenanceScheduler_OneInstancePerTick(t *testing.T) {
	db := newTestDB(t)
	activity := NewActivityService(db)
	cfg := config.MaintenanceConfig{ActivityRetentionDays: 30}
	first := NewMaintenanceScheduler(cfg, db, nil, activity)
	second := NewMaintenanceScheduler(cfg, db, nil, activity)
	second.holder = "other:1"

	tick := time.Date(2026, 1, 2, 3, 0, 5, 0, time.UTC)
	assert.True(t, first.claim(tick))
	assert.False(t, second.claim(tick.Add(20*time.Second)), "same minute is taken")
	assert.True(t, second.claim(tick.Add(time.Minute)), "next slot is free")

	// expired locks are swept on the next claim
	assert.True(t, first.claim(tick.Add(48*time.Hour)))
	var locks int64
	db.Model(&models.JobLock{}).Count(&locks)
	assert.Equal(t, int64(1), locks)
}

func TestUserService(t *testing.T) {
	db := newTestDB(t)
	svc := NewUserService(db)
	a := createUser(t, db, "a@x.com")
	createUser(t, db, "b@x.com")

	got, err := svc.GetByID(a.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", got.Email)

	others, err := svc.ListOthers(a.ID)
	require.NoError(t, err)
	require.Len(t, others, 1)
	assert.Equal(t, "b@x.com", others[0].Email)
}

func TestActivityService_ListForProject(t *testing.T) {
	db := newTestDB(t)
	activity := NewActivityService(db)
	projects := NewProjectService(db, activity)
	owner := createUser(t, db, "owner@x.com")
	project, err := projects.Create("demo", owner.ID)
	require.NoError(t, err)

	resp, err := activity.ListForProject(project.ID, &ActivityListRequest{})
	require.NoError(t, err)
	require.Equal(t, int64(1), resp.Total)
	assert.Equal(t, "project.create", resp.Items[0].Action)
	assert.Equal(t, 20, resp.PageSize)

	var nilService *ActivityService
	nilService.Record(ActivityEntry{Action: "ignored"})
}
