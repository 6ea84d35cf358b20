package export

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mohamedkhairy/stock-screener/internal/models"
	"github.com/mohamedkhairy/stock-screener/pkg/logger"
)

// HubConfig holds websocket timing settings
type HubConfig struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PingInterval time.Duration
}

// DefaultHubConfig returns default websocket timings
func DefaultHubConfig() HubConfig {
	return HubConfig{
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
	}
}

// UserIDFunc extracts the authenticated user of an upgrade request
type UserIDFunc func(r *http.Request) string

// Hub broadcasts run results to websocket clients. It is both a Sink and
// the http.Handler that accepts the connections.
type Hub struct {
	config   HubConfig
	registry *ConnectionRegistry
	upgrader websocket.Upgrader
	userID   UserIDFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	broadcasts atomic.Int64
	dropped    atomic.Int64
}

// NewHub creates a hub. userID may be nil.
func NewHub(config HubConfig, userID UserIDFunc) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		config:   config,
		registry: NewConnectionRegistry(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Origin is checked by the CORS middleware
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		userID: userID,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (h *Hub) Name() string { return "websocket" }

// ServeHTTP upgrades the request and registers the connection
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an error
		logger.WithContext(r.Context()).Debug("WebSocket upgrade failed", logger.ErrorField(err))
		return
	}

	userID := "anonymous"
	if h.userID != nil {
		if id := h.userID(r); id != "" {
			userID = id
		}
	}

	conn := NewConnection(uuid.NewString(), userID, ws)
	for _, id := range r.URL.Query()["ruleId"] {
		conn.Subscribe(id)
	}
	h.Register(conn)
}

// Register starts the pumps of a connection
func (h *Hub) Register(conn *Connection) {
	h.registry.Add(conn)

	logger.Info("Connection registered",
		logger.String("connection_id", conn.ID),
		logger.String("user_id", conn.UserID),
		logger.Int("total_connections", h.registry.Count()),
	)

	h.wg.Add(2)
	go h.writePump(conn)
	go h.readPump(conn)
}

// Unregister closes and forgets a connection
func (h *Hub) Unregister(conn *Connection) {
	if !h.registry.Remove(conn.ID) {
		return
	}
	conn.Close()

	logger.Info("Connection unregistered",
		logger.String("connection_id", conn.ID),
		logger.String("user_id", conn.UserID),
		logger.Int("total_connections", h.registry.Count()),
	)
}

// Count returns the number of connected clients
func (h *Hub) Count() int {
	return h.registry.Count()
}

// Publish broadcasts result to the subscribed clients. Slow clients miss
// the message rather than block the caller.
func (h *Hub) Publish(ctx context.Context, result models.RunResult) error {
	data, err := json.Marshal(ServerMessage{Type: MessageTypeResult, Data: result})
	if err != nil {
		return err
	}

	sent, dropped := 0, 0
	for _, conn := range h.registry.GetAll() {
		if !conn.ShouldReceive(result.RuleID) {
			continue
		}
		if conn.enqueue(data) {
			sent++
		} else {
			dropped++
		}
	}

	h.broadcasts.Add(1)
	h.dropped.Add(int64(dropped))

	logger.WithContext(ctx).Debug("Broadcast run result",
		logger.String("rule_id", result.RuleID),
		logger.Int("rows", len(result.Rows)),
		logger.Int("sent", sent),
		logger.Int("dropped", dropped),
	)
	return nil
}

// Close disconnects every client
func (h *Hub) Close() error {
	h.cancel()
	for _, conn := range h.registry.GetAll() {
		h.Unregister(conn)
	}
	h.wg.Wait()
	return nil
}

func (h *Hub) writePump(conn *Connection) {
	defer h.wg.Done()
	defer h.Unregister(conn)

	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			conn.Conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
				time.Now().Add(h.config.WriteTimeout))
			return

		case <-conn.done:
			return

		case message := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := conn.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(conn *Connection) {
	defer h.wg.Done()
	defer h.Unregister(conn)

	conn.Conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.UpdateLastPong()
		conn.Conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("WebSocket error",
					logger.ErrorField(err),
					logger.String("connection_id", conn.ID),
				)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			conn.SendJSON(ServerMessage{Type: MessageTypeError, Code: "invalid_message", Message: "failed to parse message"})
			continue
		}
		conn.SendJSON(conn.handleClientMessage(&msg))
	}
}
