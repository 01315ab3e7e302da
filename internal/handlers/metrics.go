package handlers

import (
	"database/sql"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

var registerDBStats sync.Once

// Metrics serves the Prometheus registry. Connection pool gauges for db are
// registered on first use.
// GET /metrics
func Metrics(db *gorm.DB) gin.HandlerFunc {
	registerDBStats.Do(func() {
		sqlDB, err := db.DB()
		if err != nil {
			return
		}
		poolGauge("cocode_db_open_connections", "Number of open DB connections", sqlDB, func(s sql.DBStats) int { return s.OpenConnections })
		poolGauge("cocode_db_in_use_connections", "Number of in-use DB connections", sqlDB, func(s sql.DBStats) int { return s.InUse })
		poolGauge("cocode_db_idle_connections", "Number of idle DB connections", sqlDB, func(s sql.DBStats) int { return s.Idle })
	})
	return gin.WrapH(promhttp.Handler())
}

func poolGauge(name, help string, sqlDB *sql.DB, pick func(sql.DBStats) int) {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, func() float64 {
		return float64(pick(sqlDB.Stats()))
	})
}
