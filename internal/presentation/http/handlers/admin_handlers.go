package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cursedboard/cursedboard-go/internal/application/services"
	"github.com/cursedboard/cursedboard-go/internal/domain/ritual"
	"github.com/cursedboard/cursedboard-go/internal/infrastructure/observability/logging"
	"github.com/cursedboard/cursedboard-go/internal/infrastructure/security"
	"github.com/cursedboard/cursedboard-go/pkg/config"
)

// AdminHandlers serves the operator API: manual anomaly pushes,
// visitor state control, and store diagnostics.
type AdminHandlers struct {
	engine *services.RitualEngine
	logger *logging.ChanneledLogger
}

// NewAdminHandlers creates the admin handlers.
func NewAdminHandlers(engine *services.RitualEngine, logger *logging.ChanneledLogger) *AdminHandlers {
	return &AdminHandlers{engine: engine, logger: logger}
}

// Login exchanges the admin secret for a session token.
func (h *AdminHandlers) Login(c *gin.Context) {
	var request struct {
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if config.AdminSecret == "" || request.Password != config.AdminSecret {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid password"})
		return
	}

	token, err := security.GenerateAdminToken(config.AdminSecret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token generation failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// PostAnomaly queues an anomaly for one visitor. With a type it queues
// that exact anomaly; without, one sampled from the visitor's level.
func (h *AdminHandlers) PostAnomaly(c *gin.Context) {
	var request struct {
		VisitorID string         `json:"visitor_id" binding:"required"`
		Type      string         `json:"type"`
		Data      map[string]any `json:"data"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	var event *ritual.AnomalyEvent
	var err error
	if request.Type != "" {
		event, err = h.engine.QueueAnomalyForType(c.Request.Context(), request.VisitorID, request.Type, request.Data)
	} else {
		event, err = h.engine.QueueAnomaly(c.Request.Context(), request.VisitorID, "admin")
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if event == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown visitor"})
		return
	}

	h.logger.Anomaly().Info("Admin queued anomaly",
		"visitorId", request.VisitorID, "type", string(event.Type))
	c.JSON(http.StatusOK, gin.H{"queued": event})
}

// PostBroadcast fans one anomaly out to every active queue.
func (h *AdminHandlers) PostBroadcast(c *gin.Context) {
	var request struct {
		Type    string         `json:"type" binding:"required"`
		Data    map[string]any `json:"data"`
		Pattern string         `json:"pattern"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	anomalyType, err := ritual.ParseAnomalyType(request.Type)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	event := ritual.NewAnomalyEvent(anomalyType, "", nil, request.Data, "broadcast", time.Now())
	count, err := h.engine.Queues().PushBroadcast(c.Request.Context(), event, request.Pattern)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "broadcast failed"})
		return
	}

	h.logger.Anomaly().Info("Admin broadcast anomaly",
		"type", request.Type, "reached", count)
	c.JSON(http.StatusOK, gin.H{"reached": count})
}

// PostReset wipes a visitor's state and pending queue and hands back
// the fresh state.
func (h *AdminHandlers) PostReset(c *gin.Context) {
	visitorID := c.Param("id")
	state, err := h.engine.ResetUserState(c.Request.Context(), visitorID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reset failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "state reset", "state": state})
}

// PostProgress pins a visitor's progress.
func (h *AdminHandlers) PostProgress(c *gin.Context) {
	var request struct {
		VisitorID string `json:"visitor_id" binding:"required"`
		Progress  *int   `json:"progress" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	state, err := h.engine.SetUserProgress(c.Request.Context(), request.VisitorID, *request.Progress)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	if state == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown visitor"})
		return
	}
	c.JSON(http.StatusOK, h.engine.Snapshot(state))
}

// GetVisitor returns a visitor's full stored state.
func (h *AdminHandlers) GetVisitor(c *gin.Context) {
	state, err := h.engine.GetUserState(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "state unavailable"})
		return
	}
	if state == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown visitor"})
		return
	}
	c.JSON(http.StatusOK, state)
}

// GetConnections lists visitors with live channels.
func (h *AdminHandlers) GetConnections(c *gin.Context) {
	ids, err := h.engine.ConnectedUsers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "presence unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"connected": ids, "count": len(ids)})
}

// GetQueue returns a non-destructive snapshot of a visitor's queue.
func (h *AdminHandlers) GetQueue(c *gin.Context) {
	visitorID := c.Param("id")
	messages, err := h.engine.Queues().GetAll(c.Request.Context(), visitorID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "queue unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"visitor_id": visitorID, "length": len(messages), "messages": messages})
}

// GetMetrics reports store-level counts.
func (h *AdminHandlers) GetMetrics(c *gin.Context) {
	ctx := c.Request.Context()

	states, err := h.engine.States().GetAllIDs(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "metrics unavailable"})
		return
	}
	queues, err := h.engine.Queues().ActiveVisitors(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "metrics unavailable"})
		return
	}
	connections, err := h.engine.ConnectionCount(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "metrics unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"states":      len(states),
		"queues":      len(queues),
		"connections": connections,
	})
}
