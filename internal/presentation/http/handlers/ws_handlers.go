package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/cursedboard/cursedboard-go/internal/application/services"
	"github.com/cursedboard/cursedboard-go/internal/infrastructure/messaging"
	"github.com/cursedboard/cursedboard-go/internal/infrastructure/observability/logging"
	"github.com/cursedboard/cursedboard-go/internal/presentation/http/middleware"
	"github.com/cursedboard/cursedboard-go/pkg/config"
)

// WSHandlers upgrades visitor connections to the anomaly channel.
type WSHandlers struct {
	engine   *services.RitualEngine
	logger   *logging.ChanneledLogger
	upgrader websocket.Upgrader
}

// NewWSHandlers creates the websocket handlers. Origin checks are
// delegated to the CORS layer; the forum frontend proxies same-origin.
func NewWSHandlers(engine *services.RitualEngine, logger *logging.ChanneledLogger) *WSHandlers {
	return &WSHandlers{
		engine: engine,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Connect upgrades the request and serves the visitor's channel until
// it closes.
func (h *WSHandlers) Connect(c *gin.Context) {
	visitorID := middleware.GetVisitorID(c)
	if visitorID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no visitor identity"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WS().Error("Upgrade failed", "visitorId", visitorID, "error", err.Error())
		return
	}

	connection := messaging.NewConnection(conn, visitorID, h.engine, messaging.ConnectionConfig{
		HeartbeatInterval: config.WSHeartbeatInterval,
		QueuePollTimeout:  config.WSQueuePollTimeout,
		WriteTimeout:      config.WSWriteTimeout,
		ReadLimit:         config.WSReadLimit,
	}, h.logger)

	connection.Serve(c.Request.Context())
}
