package main

import (
	"flag"
	"os"

	"github.com/huangang/cocode/internal/config"
	"github.com/huangang/cocode/internal/models"
	"github.com/huangang/cocode/internal/services"
	"github.com/huangang/cocode/pkg/logger"
)

// prune runs one maintenance pass: expired refresh tokens, old activity and
// projects whose creator lost membership.
func main() {
	retention := flag.Int("retention-days", 0, "override activity retention in days")
	flag.Parse()

	config.LoadEnv()
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load config")
	}
	logger.Init(cfg.Log.Level, true)

	db, err := models.Open(&cfg.Database, false)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	if err := models.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("Failed to migrate database")
	}

	if *retention > 0 {
		cfg.Maintenance.ActivityRetentionDays = *retention
	}

	activity := services.NewActivityService(db)
	auth := services.NewAuthService(db, &cfg.JWT, &cfg.LDAP)
	services.NewMaintenanceScheduler(cfg.Maintenance, db, auth, activity).RunOnce()

	n, err := services.NewProjectService(db, activity).EnsureCreatorMembership()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to repair memberships")
	}
	logger.Info().Int64("restored", n).Msg("Prune finished")
}
