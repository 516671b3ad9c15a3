// Package envelope defines the wire format of the session protocol.
//
// Every message exchanged over the session WebSocket is a UTF-8 JSON object
// with a mandatory "type" discriminator. Inbound envelopes are parsed into
// the Envelope union; outbound messages use dedicated request shapes
// (UserMessage, ReconnectRequest).
//
// Envelope kinds split into three groups:
//
//   - Log-contributing: message, stream, tool_use, meta_agent. These carry a
//     stable id and land in the client's ordered message log.
//   - Turn control: complete, error, aborted. Scoped to the current turn.
//   - Session control and side-channels: reconnected, streaming_active,
//     processing_state, file_results, command_results.
//
// Replay: any log-contributing envelope may carry is_replay=true when the
// server re-sends it after a reconnect. Replayed envelopes never advance the
// client's replay cursor.
package envelope
