package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/huangang/cocode/internal/realtime"
	"github.com/huangang/cocode/internal/services"
	"gorm.io/gorm"
)

// HealthHandler reports the state of the database, task queue and chat hub.
type HealthHandler struct {
	db    *gorm.DB
	queue services.TaskQueue
	hub   *realtime.Hub
}

func NewHealthHandler(db *gorm.DB, queue services.TaskQueue, hub *realtime.Hub) *HealthHandler {
	return &HealthHandler{db: db, queue: queue, hub: hub}
}

// CheckHealth returns the health status of all subsystems.
// GET /health
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "healthy"
	status := http.StatusOK

	dbStatus := "ok"
	sqlDB, err := h.db.DB()
	if err != nil {
		dbStatus = "error: " + err.Error()
	} else if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		dbStatus = "error: " + err.Error()
	}
	if dbStatus != "ok" {
		overall = "unhealthy"
		status = http.StatusServiceUnavailable
	}

	queueMode := "sync"
	if h.queue != nil && h.queue.IsAsync() {
		queueMode = "async (Redis)"
	}

	clients := 0
	if h.hub != nil {
		clients = h.hub.ClientCount()
	}

	c.JSON(status, gin.H{
		"status":  overall,
		"service": "cocode",
		"components": gin.H{
			"database":          dbStatus,
			"queue_mode":        queueMode,
			"websocket_clients": clients,
		},
	})
}
