package handlers

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/huangang/cocode/internal/config"
	"github.com/huangang/cocode/internal/metrics"
	"github.com/huangang/cocode/internal/middleware"
	"github.com/huangang/cocode/internal/realtime"
	"github.com/huangang/cocode/internal/services"
	"github.com/huangang/cocode/internal/utils"
	"github.com/huangang/cocode/pkg/logger"
	"github.com/huangang/cocode/pkg/response"
)

// ChatListener reacts to human chat messages after they are broadcast.
type ChatListener interface {
	HandleChatMessage(ctx context.Context, projectID string, msg realtime.HumanMessage) (bool, error)
}

// RealtimeHandler upgrades project members to a websocket joined to the project room.
type RealtimeHandler struct {
	hub            *realtime.Hub
	projectService *services.ProjectService
	listener       ChatListener
	upgrader       websocket.Upgrader
	sendBuffer     int
}

func NewRealtimeHandler(hub *realtime.Hub, projectService *services.ProjectService, listener ChatListener, cfg *config.RealtimeConfig) *RealtimeHandler {
	return &RealtimeHandler{
		hub:            hub,
		projectService: projectService,
		listener:       listener,
		sendBuffer:     cfg.SendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
	}
}

// Connect joins the caller to a project room
// GET /ws?projectId=...&token=...
func (h *RealtimeHandler) Connect(c *gin.Context) {
	token, ok := middleware.TokenFromRequest(c)
	if !ok {
		response.Unauthorized(c, "authorization required")
		return
	}
	claims, err := utils.ParseToken(token)
	if err != nil {
		response.Unauthorized(c, "invalid or expired token")
		return
	}

	projectID := c.Query("projectId")
	if _, err := h.projectService.Get(projectID, claims.UserID); err != nil {
		response.Error(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn().Err(err).Str("project_id", projectID).Msg("websocket upgrade failed")
		return
	}

	client := realtime.NewClient(h.hub, conn, projectID, realtime.Sender{ID: claims.UserID, Email: claims.Email}, h.sendBuffer)
	client.IncomingHandler = h.handleFrame
	h.hub.Join(client)

	go client.WritePump()
	client.ReadPump()
}

// handleFrame broadcasts a chat frame under the connection's identity and
// hands it to the listener.
func (h *RealtimeHandler) handleFrame(client *realtime.Client, frame []byte) {
	pm, err := realtime.DecodeFrame(frame)
	if err != nil {
		metrics.RealtimeMalformed.WithLabelValues("client").Inc()
		logger.Warn().Err(err).Str("client_id", client.ID).Str("project_id", client.ProjectID).Msg("malformed realtime frame dropped")
		return
	}

	msg := realtime.NewHumanMessage(pm.ID, client.User, pm.Message)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := h.hub.Publish(ctx, client.ProjectID, msg); err != nil {
		logger.Error().Err(err).Str("project_id", client.ProjectID).Msg("failed to publish chat message")
		return
	}

	if h.listener == nil {
		return
	}
	if _, err := h.listener.HandleChatMessage(ctx, client.ProjectID, msg); err != nil {
		logger.Error().Err(err).Str("project_id", client.ProjectID).Msg("failed to hand chat message to assistant")
	}
}

// originChecker allows requests without an Origin header, same-host origins and
// the configured list. "*" allows any origin.
func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set[origin]; ok {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}
