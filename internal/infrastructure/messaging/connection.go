// Package messaging carries anomaly events to connected visitors over
// websockets, draining each visitor's delivery queue.
package messaging

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cursedboard/cursedboard-go/internal/application/services"
	"github.com/cursedboard/cursedboard-go/internal/infrastructure/observability/logging"
)

// ClientMessage is the inbound frame format. Unknown types are ignored.
type ClientMessage struct {
	Type         string `json:"type"`
	TimeSpent    int    `json:"time_spent,omitempty"`
	ViewedThread *int   `json:"viewed_thread,omitempty"`
	ViewedPost   *int   `json:"viewed_post,omitempty"`
}

// ConnectionConfig tunes the per-connection loops. The queue poll
// timeout must stay below the heartbeat interval so idle connections
// still get pinged.
type ConnectionConfig struct {
	HeartbeatInterval time.Duration
	QueuePollTimeout  time.Duration
	WriteTimeout      time.Duration
	ReadLimit         int64
}

// Connection serves one visitor's real-time channel: a writer loop
// draining the delivery queue and a reader loop handling client frames.
// Either loop ending tears down the other.
type Connection struct {
	conn      *websocket.Conn
	visitorID string
	engine    *services.RitualEngine
	logger    *logging.ChanneledLogger
	config    ConnectionConfig

	writeMu  sync.Mutex
	stopOnce sync.Once
	done     chan struct{}
	cancel   context.CancelFunc
}

// NewConnection wraps an upgraded websocket for a visitor.
func NewConnection(conn *websocket.Conn, visitorID string, engine *services.RitualEngine, cfg ConnectionConfig, logger *logging.ChanneledLogger) *Connection {
	return &Connection{
		conn:      conn,
		visitorID: visitorID,
		engine:    engine,
		logger:    logger,
		config:    cfg,
		done:      make(chan struct{}),
	}
}

// Serve registers presence, sends the welcome frame, and runs both
// loops until the client leaves or ctx is cancelled. Always deregisters
// on the way out.
func (c *Connection) Serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	defer cancel()

	if err := c.engine.Presence().Connect(ctx, c.visitorID); err != nil {
		c.logger.WS().Error("Presence registration failed",
			"visitorId", c.visitorID, "error", err.Error())
		c.conn.Close()
		return
	}
	defer c.disconnect()

	if err := c.writeJSON(map[string]any{"type": "welcome", "visitor_id": c.visitorID}); err != nil {
		return
	}
	c.logger.WS().Info("Visitor connected", "visitorId", c.visitorID)

	c.conn.SetReadLimit(c.config.ReadLimit)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer c.stop()
		c.writeLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		defer c.stop()
		c.readLoop(ctx)
	}()
	wg.Wait()
}

// stop signals both loops to end. Cancelling the serve context here
// matters: the writer may be parked inside a blocking queue pop, and
// only the context aborts that wait. Idempotent.
func (c *Connection) stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		if c.cancel != nil {
			c.cancel()
		}
	})
}

// disconnect deregisters presence and closes the socket. Safe to call
// after the client is already gone.
func (c *Connection) disconnect() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.engine.Presence().Disconnect(ctx, c.visitorID); err != nil {
		c.logger.WS().Error("Presence deregistration failed",
			"visitorId", c.visitorID, "error", err.Error())
	}
	c.conn.Close()
	c.logger.WS().Info("Visitor disconnected", "visitorId", c.visitorID)
}

func (c *Connection) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.conn.WriteJSON(v)
}

func (c *Connection) writePing() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

// writeLoop drains the delivery queue. The blocking pop doubles as the
// heartbeat cadence; a pop that times out empty sends a ping instead.
func (c *Connection) writeLoop(ctx context.Context) {
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		msg, err := c.engine.Queues().PopBlocking(ctx, c.visitorID, c.config.QueuePollTimeout)
		if err != nil {
			if ctx.Err() == nil {
				c.logger.WS().Error("Queue pop failed",
					"visitorId", c.visitorID, "error", err.Error())
			}
			return
		}

		if msg == nil {
			if err := c.writePing(); err != nil {
				return
			}
			continue
		}

		if err := c.writeJSON(msg); err != nil {
			return
		}
		c.logger.WS().Debug("Delivered anomaly", "visitorId", c.visitorID)
	}
}

// readLoop handles inbound frames until the client closes or errors.
func (c *Connection) readLoop(ctx context.Context) {
	readDeadline := 2 * c.config.HeartbeatInterval
	c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.WS().Debug("Read failed",
					"visitorId", c.visitorID, "error", err.Error())
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(readDeadline))

		if done := c.handleMessage(ctx, &msg); done {
			return
		}
	}
}

func (c *Connection) handleMessage(ctx context.Context, msg *ClientMessage) bool {
	switch msg.Type {
	case "heartbeat":
		if err := c.engine.Presence().Heartbeat(ctx, c.visitorID); err != nil {
			c.logger.WS().Error("Heartbeat failed",
				"visitorId", c.visitorID, "error", err.Error())
		}
	case "activity":
		c.handleActivity(ctx, msg)
	case "ping":
		if err := c.writeJSON(map[string]any{"type": "pong"}); err != nil {
			return true
		}
	case "close":
		return true
	default:
		c.logger.WS().Debug("Ignoring unknown client frame",
			"visitorId", c.visitorID, "type", msg.Type)
	}
	return false
}

// handleActivity applies a client activity report to the visitor's
// state. Each field is independent.
func (c *Connection) handleActivity(ctx context.Context, msg *ClientMessage) {
	if msg.TimeSpent > 0 {
		if _, err := c.engine.OnActivity(ctx, c.visitorID, msg.TimeSpent); err != nil {
			c.logger.WS().Error("Activity time update failed",
				"visitorId", c.visitorID, "error", err.Error())
		}
	}
	if msg.ViewedThread != nil {
		if _, err := c.engine.OnThreadView(ctx, c.visitorID, *msg.ViewedThread); err != nil {
			c.logger.WS().Error("Activity thread view failed",
				"visitorId", c.visitorID, "error", err.Error())
		}
	}
	if msg.ViewedPost != nil {
		if _, err := c.engine.OnPostView(ctx, c.visitorID, *msg.ViewedPost); err != nil {
			c.logger.WS().Error("Activity post view failed",
				"visitorId", c.visitorID, "error", err.Error())
		}
	}
}
