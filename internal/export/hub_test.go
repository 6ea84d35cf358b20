package export

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(HubConfig{
		ReadTimeout:  5 * time.Second,
		WriteTimeout: time.Second,
		PingInterval: time.Second,
	}, func(r *http.Request) string { return r.Header.Get("X-User") })
	server := httptest.NewServer(hub)
	t.Cleanup(func() {
		server.Close()
		hub.Close()
	})
	return hub, server
}

func dial(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) ServerMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg ServerMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHub_BroadcastsToSubscribers(t *testing.T) {
	hub, server := startHub(t)

	subscribed := dial(t, server, "?ruleId=rule-1")
	other := dial(t, server, "?ruleId=rule-2")
	require.Eventually(t, func() bool { return hub.Count() == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Publish(context.Background(), sampleResult()))

	msg := readMessage(t, subscribed)
	assert.Equal(t, MessageTypeResult, msg.Type)
	data, err := json.Marshal(msg.Data)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"ruleId":"rule-1"`)

	require.NoError(t, other.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err = other.ReadMessage()
	assert.Error(t, err, "client subscribed to another rule must not receive the result")
}

func TestHub_SubscribeMessage(t *testing.T) {
	hub, server := startHub(t)

	conn := dial(t, server, "")
	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "subscribe", RuleID: "rule-9"}))
	assert.Equal(t, MessageTypeSuccess, readMessage(t, conn).Type)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "ping"}))
	assert.Equal(t, MessageTypePong, readMessage(t, conn).Type)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "bogus"}))
	reply := readMessage(t, conn)
	assert.Equal(t, MessageTypeError, reply.Type)
	assert.Equal(t, "unknown_message_type", reply.Code)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, "invalid_message", readMessage(t, conn).Code)

	// subscribed to rule-9 only
	require.NoError(t, hub.Publish(context.Background(), sampleResult()))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestHub_UnregistersOnClientClose(t *testing.T) {
	hub, server := startHub(t)

	conn := dial(t, server, "")
	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestConnection_ShouldReceive(t *testing.T) {
	c := NewConnection("c1", "u1", nil)
	assert.True(t, c.ShouldReceive("any"), "no subscriptions receives everything")

	c.Subscribe("r1")
	assert.True(t, c.ShouldReceive("r1"))
	assert.False(t, c.ShouldReceive("r2"))

	c.Unsubscribe("r1")
	assert.True(t, c.ShouldReceive("r2"))
}
