// ABOUTME: Wire-format envelope union exchanged over the session WebSocket.
// ABOUTME: JSON tagged by "type", covering chat, streaming, control and side-channel kinds.

package envelope

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type discriminates the kind of an envelope.
type Type string

const (
	// TypeMessage is a complete, finalized chat turn broadcast to all
	// observers of a session (e.g. a user's own message echoed back for
	// multi-tab sync).
	TypeMessage Type = "message"
	// TypeStream is an incremental or final chunk of an assistant turn.
	// Chunks carry a stable message id so repeated chunks update the same
	// logical message.
	TypeStream Type = "stream"
	// TypeToolUse announces a tool invocation by the agent.
	TypeToolUse Type = "tool_use"
	// TypeComplete marks the end of the current turn.
	TypeComplete Type = "complete"
	// TypeError is a terminal failure for the current turn. It does not
	// affect the connection.
	TypeError Type = "error"
	// TypeAborted acknowledges a user-initiated cancellation.
	TypeAborted Type = "aborted"
	// TypeMetaAgent is a secondary commentary channel with the same
	// ordering rules as TypeStream.
	TypeMetaAgent Type = "meta_agent"
	// TypeFileResults carries file autocomplete results. Side-channel,
	// never part of the conversation log.
	TypeFileResults Type = "file_results"
	// TypeCommandResults carries command autocomplete results. Side-channel.
	TypeCommandResults Type = "command_results"
	// TypeReconnected acknowledges a reconnect handshake and reports how
	// many buffered events the server replayed.
	TypeReconnected Type = "reconnected"
	// TypeStreamingActive tells a freshly (re)connected client that a turn
	// is already in flight.
	TypeStreamingActive Type = "streaming_active"
	// TypeProcessingState is a broadcast-only "agent is working" signal.
	// Never persisted to the log.
	TypeProcessingState Type = "processing_state"
)

// Envelope is one discrete typed message received over the session.
// Fields are kind-specific; only Type is always present.
type Envelope struct {
	Type      Type      `json:"type"`
	ID        string    `json:"id,omitempty"`
	Role      string    `json:"role,omitempty"`
	Content   string    `json:"content,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`

	// IsReplay marks envelopes the server is re-sending after a reconnect.
	// Replayed envelopes must not advance the client's replay cursor.
	IsReplay bool `json:"is_replay,omitempty"`

	// Final marks the last chunk of a streamed turn (TypeStream).
	Final bool `json:"final,omitempty"`

	// Tool invocation fields (TypeToolUse).
	ToolID    string `json:"tool_id,omitempty"`
	ToolName  string `json:"tool_name,omitempty"`
	ToolInput string `json:"tool_input,omitempty"`

	// Autocomplete side-channel payloads.
	Files    []string `json:"files,omitempty"`
	Commands []string `json:"commands,omitempty"`

	// ReplayedEvents reports replay coverage (TypeReconnected).
	ReplayedEvents int `json:"replayed_events,omitempty"`

	// Processing state broadcast (TypeProcessingState).
	Processing bool   `json:"processing,omitempty"`
	Message    string `json:"message,omitempty"`
}

// knownTypes lists every inbound envelope kind the client understands.
var knownTypes = map[Type]bool{
	TypeMessage:         true,
	TypeStream:          true,
	TypeToolUse:         true,
	TypeComplete:        true,
	TypeError:           true,
	TypeAborted:         true,
	TypeMetaAgent:       true,
	TypeFileResults:     true,
	TypeCommandResults:  true,
	TypeReconnected:     true,
	TypeStreamingActive: true,
	TypeProcessingState: true,
}

// Parse decodes a raw inbound payload into an Envelope.
// Returns an error for malformed JSON, a missing type discriminator, or an
// unknown kind. Callers are expected to log and drop on error, never to
// treat it as a connection-level failure.
func Parse(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("envelope missing type discriminator")
	}
	if !knownTypes[env.Type] {
		return nil, fmt.Errorf("unknown envelope type %q", env.Type)
	}
	return &env, nil
}

// ContributesToLog reports whether this envelope kind belongs in the
// client-side conversation log. Control and side-channel kinds do not.
func (e *Envelope) ContributesToLog() bool {
	switch e.Type {
	case TypeMessage, TypeStream, TypeToolUse, TypeMetaAgent:
		return true
	default:
		return false
	}
}
