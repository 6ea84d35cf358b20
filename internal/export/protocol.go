package export

import "fmt"

// MessageType is the type of a websocket message
type MessageType string

const (
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeUnsubscribe MessageType = "unsubscribe"
	MessageTypePing        MessageType = "ping"
	MessageTypePong        MessageType = "pong"
	MessageTypeResult      MessageType = "result"
	MessageTypeSuccess     MessageType = "success"
	MessageTypeError       MessageType = "error"
)

// ClientMessage is a message from the client
type ClientMessage struct {
	Type    string   `json:"type"`
	RuleID  string   `json:"ruleId,omitempty"`
	RuleIDs []string `json:"ruleIds,omitempty"`
}

// ServerMessage is a message to the client
type ServerMessage struct {
	Type    MessageType `json:"type"`
	Data    interface{} `json:"data,omitempty"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
}

func (m *ClientMessage) ruleIDs() []string {
	if m.RuleID != "" {
		return append([]string{m.RuleID}, m.RuleIDs...)
	}
	return m.RuleIDs
}

// handleClientMessage applies a client message and returns the reply
func (c *Connection) handleClientMessage(msg *ClientMessage) ServerMessage {
	switch MessageType(msg.Type) {
	case MessageTypeSubscribe, MessageTypeUnsubscribe:
		ids := msg.ruleIDs()
		if len(ids) == 0 {
			return ServerMessage{Type: MessageTypeError, Code: "invalid_request", Message: "ruleId or ruleIds field required"}
		}
		for _, id := range ids {
			if MessageType(msg.Type) == MessageTypeSubscribe {
				c.Subscribe(id)
			} else {
				c.Unsubscribe(id)
			}
		}
		return ServerMessage{Type: MessageTypeSuccess, Data: map[string]interface{}{"action": msg.Type, "ruleIds": ids}}

	case MessageTypePing:
		return ServerMessage{Type: MessageTypePong}

	default:
		return ServerMessage{Type: MessageTypeError, Code: "unknown_message_type", Message: fmt.Sprintf("unknown message type: %s", msg.Type)}
	}
}
