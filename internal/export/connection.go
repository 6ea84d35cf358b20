package export

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Connection is one websocket client of the Hub
type Connection struct {
	ID     string
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte

	mu            sync.RWMutex
	subscriptions map[string]bool // rule_id -> subscribed
	lastPong      time.Time
	closeOnce     sync.Once
	done          chan struct{}
}

// NewConnection wraps a websocket connection
func NewConnection(id, userID string, conn *websocket.Conn) *Connection {
	return &Connection{
		ID:            id,
		UserID:        userID,
		Conn:          conn,
		Send:          make(chan []byte, 64),
		subscriptions: make(map[string]bool),
		lastPong:      time.Now(),
		done:          make(chan struct{}),
	}
}

// Subscribe subscribes to the results of a rule
func (c *Connection) Subscribe(ruleID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions[ruleID] = true
}

// Unsubscribe removes a rule subscription
func (c *Connection) Unsubscribe(ruleID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscriptions, ruleID)
}

// ShouldReceive reports whether results of ruleID go to this connection.
// A connection without subscriptions receives everything.
func (c *Connection) ShouldReceive(ruleID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.subscriptions) == 0 {
		return true
	}
	return c.subscriptions[ruleID]
}

// UpdateLastPong records a pong from the client
func (c *Connection) UpdateLastPong() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPong = time.Now()
}

// GetLastPong returns the last pong time
func (c *Connection) GetLastPong() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastPong
}

// enqueue queues data without blocking; it reports false when the client
// is gone or too slow
func (c *Connection) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// SendJSON queues v for the client
func (c *Connection) SendJSON(v interface{}) bool {
	data, err := json.Marshal(v)
	if err != nil {
		return false
	}
	return c.enqueue(data)
}

// Close closes the connection once
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.Conn.Close()
	})
}
