// ABOUTME: Outbound request shapes the client writes to the session WebSocket.
// ABOUTME: User turns, the abort sentinel, and the reconnect handshake request.

package envelope

import "encoding/json"

// AbortSentinel is the distinguished content value that turns a user message
// into an abort request for the in-flight turn.
const AbortSentinel = "__ABORT__"

// UserMessage is an outbound user turn.
type UserMessage struct {
	Type           Type     `json:"type"`
	Content        string   `json:"content"`
	Images         []string `json:"images,omitempty"`
	AgentType      string   `json:"agentType,omitempty"`
	PermissionMode string   `json:"permissionMode,omitempty"`
	ThinkingMode   string   `json:"thinkingMode,omitempty"`
}

// NewUserMessage builds an outbound user turn envelope.
func NewUserMessage(content string) *UserMessage {
	return &UserMessage{Type: TypeMessage, Content: content}
}

// NewAbort builds the abort sentinel message. Best-effort, fire-and-forget.
func NewAbort() *UserMessage {
	return &UserMessage{Type: TypeMessage, Content: AbortSentinel}
}

// ReconnectRequest is sent immediately after re-opening the socket. It tells
// the server where the client's delivery watermark stands so the server can
// replay the gap. The server is the source of truth for what it resends.
type ReconnectRequest struct {
	Type            Type    `json:"type"`
	LastMessageID   *string `json:"last_message_id"`
	LastBufferIndex int     `json:"last_buffer_index"`
}

// NewReconnectRequest builds a reconnect handshake request from cursor state.
func NewReconnectRequest(lastMessageID *string, lastBufferIndex int) *ReconnectRequest {
	return &ReconnectRequest{
		Type:            "reconnect",
		LastMessageID:   lastMessageID,
		LastBufferIndex: lastBufferIndex,
	}
}

// Encode marshals an outbound value to its wire form.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}
