package services

import (
	"fmt"
	"os"
	"time"

	"github.com/huangang/cocode/internal/config"
	"github.com/huangang/cocode/internal/models"
	"github.com/huangang/cocode/pkg/logger"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maintenanceJob = "maintenance"

// MaintenanceScheduler prunes expired refresh tokens and old activity on a cron schedule.
// With several server instances sharing a database, each tick runs on one of them.
type MaintenanceScheduler struct {
	cfg      config.MaintenanceConfig
	db       *gorm.DB
	auth     *AuthService
	activity *ActivityService
	holder   string
	cron     *cron.Cron
	entryID  cron.EntryID
}

func NewMaintenanceScheduler(cfg config.MaintenanceConfig, db *gorm.DB, auth *AuthService, activity *ActivityService) *MaintenanceScheduler {
	host, _ := os.Hostname()
	return &MaintenanceScheduler{
		cfg:      cfg,
		db:       db,
		auth:     auth,
		activity: activity,
		holder:   fmt.Sprintf("%s:%d", host, os.Getpid()),
	}
}

func (s *MaintenanceScheduler) Start() error {
	s.cron = cron.New()
	spec := s.cfg.CleanupCron
	if spec == "" {
		spec = "0 3 * * *"
	}

	entryID, err := s.cron.AddFunc(spec, func() { s.runScheduled(time.Now()) })
	if err != nil {
		return err
	}
	s.entryID = entryID
	s.cron.Start()
	logger.Info().Str("cron", spec).Msg("[Maintenance] scheduler started")
	return nil
}

func (s *MaintenanceScheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

func (s *MaintenanceScheduler) runScheduled(now time.Time) {
	if !s.claim(now) {
		logger.Debug().Msg("[Maintenance] tick already handled by another instance")
		return
	}
	s.RunOnce()
}

// claim takes the lock for the minute containing now. Without a database every
// tick is claimed.
func (s *MaintenanceScheduler) claim(now time.Time) bool {
	if s.db == nil {
		return true
	}
	s.db.Where("expires_at < ?", now).Delete(&models.JobLock{})

	lock := models.JobLock{
		Job:       maintenanceJob,
		Slot:      now.UTC().Truncate(time.Minute).Format(time.RFC3339),
		Holder:    s.holder,
		ExpiresAt: now.Add(24 * time.Hour),
	}
	result := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&lock)
	if result.Error != nil {
		logger.Error().Err(result.Error).Msg("[Maintenance] failed to take job lock")
		return false
	}
	return result.RowsAffected == 1
}

// RunOnce performs one cleanup pass.
func (s *MaintenanceScheduler) RunOnce() {
	if s.auth != nil {
		n, err := s.auth.CleanupExpiredTokens(time.Now())
		if err != nil {
			logger.Error().Err(err).Msg("[Maintenance] refresh token cleanup failed")
		} else if n > 0 {
			logger.Info().Int64("deleted", n).Msg("[Maintenance] expired refresh tokens removed")
		}
	}

	n, err := s.activity.Cleanup(s.cfg.ActivityRetentionDays)
	if err != nil {
		logger.Error().Err(err).Msg("[Maintenance] activity cleanup failed")
	} else if n > 0 {
		logger.Info().Int64("deleted", n).Int("retention_days", s.cfg.ActivityRetentionDays).Msg("[Maintenance] old activity removed")
	}
}
