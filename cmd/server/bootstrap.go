package main

import (
	"context"
	"fmt"

	"github.com/huangang/cocode/internal/config"
	"github.com/huangang/cocode/internal/handlers"
	"github.com/huangang/cocode/internal/models"
	"github.com/huangang/cocode/internal/realtime"
	"github.com/huangang/cocode/internal/services"
	"github.com/huangang/cocode/internal/utils"
	"github.com/huangang/cocode/pkg/logger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	cfg       *config.Config
	db        *gorm.DB
	redis     *redis.Client
	hub       *realtime.Hub
	taskQueue services.TaskQueue
	worker    *services.Worker
	scheduler *services.MaintenanceScheduler
	activity  *services.ActivityService

	authHandler     *handlers.AuthHandler
	projectHandler  *handlers.ProjectHandler
	aiHandler       *handlers.AIHandler
	realtimeHandler *handlers.RealtimeHandler
	healthHandler   *handlers.HealthHandler
}

// bootstrap initializes all application dependencies: database, services, schedulers.
func bootstrap(ctx context.Context, cfg *config.Config) (*appServices, error) {
	utils.SetJWTSecret(cfg.JWT.Secret)

	if err := models.InitDB(&cfg.Database, cfg.Server.Mode == "debug"); err != nil {
		return nil, err
	}
	if err := models.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	db := models.GetDB()

	activity := services.NewActivityService(db)
	authService := services.NewAuthService(db, &cfg.JWT, &cfg.LDAP)
	userService := services.NewUserService(db)
	projectService := services.NewProjectService(db, activity)
	aiGateway := services.NewAIGateway(cfg.AI)

	if n, err := projectService.EnsureCreatorMembership(); err != nil {
		logger.Warn().Err(err).Msg("Failed to repair project membership")
	} else if n > 0 {
		logger.Info().Int64("rows", n).Msg("Restored missing creator memberships")
	}

	// Chat fan-out goes through Redis when it is reachable so every instance sees every room.
	var rdb *redis.Client
	var bus realtime.Bus
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("Redis unavailable, chat fan-out stays in process")
			_ = rdb.Close()
			rdb = nil
		} else {
			bus = realtime.NewRedisBus(rdb)
		}
	}
	hub := realtime.NewHub(bus)
	if err := hub.Start(ctx); err != nil {
		return nil, fmt.Errorf("start %s: %w", hub.Name(), err)
	}

	taskQueue := services.NewTaskQueue(&cfg.Redis)
	assistant := services.NewChatAssistant(aiGateway, taskQueue, hub, projectService, activity)
	if syncQueue, ok := taskQueue.(*services.SyncQueue); ok {
		syncQueue.SetProcessor(assistant.ProcessAITask)
	}

	var worker *services.Worker
	if taskQueue.IsAsync() {
		worker = services.NewWorker(&cfg.Redis)
		if worker != nil {
			worker.SetProcessor(assistant.ProcessAITask)
			if err := worker.Start(); err != nil {
				return nil, fmt.Errorf("start worker: %w", err)
			}
		}
	}

	scheduler := services.NewMaintenanceScheduler(cfg.Maintenance, db, authService, activity)
	if err := scheduler.Start(); err != nil {
		logger.Warn().Err(err).Msg("Maintenance scheduler not started")
	}

	return &appServices{
		cfg:       cfg,
		db:        db,
		redis:     rdb,
		hub:       hub,
		taskQueue: taskQueue,
		worker:    worker,
		scheduler: scheduler,
		activity:  activity,

		authHandler:     handlers.NewAuthHandler(authService, userService),
		projectHandler:  handlers.NewProjectHandler(projectService, activity),
		aiHandler:       handlers.NewAIHandler(aiGateway),
		realtimeHandler: handlers.NewRealtimeHandler(hub, projectService, assistant, &cfg.Realtime),
		healthHandler:   handlers.NewHealthHandler(db, taskQueue, hub),
	}, nil
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	s.scheduler.Stop()
	logger.Info().Msg("Maintenance scheduler stopped")

	// Hijacked websocket connections survive srv.Shutdown and must be closed
	// before the queue.
	_ = s.hub.Close()
	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		_ = s.taskQueue.Close()
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if sqlDB, err := s.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
