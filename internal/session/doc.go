// Package session maintains the long-lived duplex connection between a
// client and the remote conversational-agent engine.
//
// # Manager
//
// One Manager per logical session owns all mutable connection state: the
// socket, the backoff budget, the replay cursor, and any pending reconnect
// timer. Lifecycle:
//
//	Idle → Connecting → Open → (Closing | Reconnecting) → Idle
//
// with a terminal Failed state once the retry budget is exhausted.
//
// Connect is idempotent: concurrent calls from multiple UI mount effects
// collapse into one dial. Close cancels any pending reconnect timer and
// closes the socket with a normal-closure code, which is never retried.
//
// # Dispatch
//
// A single read-loop goroutine parses and routes every inbound envelope in
// arrival order. Log-contributing kinds land in the msglog via upsert-by-id;
// processing_state fans out through the processing broadcaster; malformed
// payloads are logged and dropped.
//
// # Resumption
//
// On reconnect the manager sends the replay cursor from the replay tracker
// and holds the session in Connecting until the server's reconnected
// acknowledgment (or the first business envelope) arrives. The server
// replays at least from the cursor; upsert-by-id plus the seen cache make
// replay idempotent even when the server overshoots.
//
// # Failure taxonomy
//
// Transient closes retry under backoff. A not-ready close (the execution
// environment is still provisioning) raises OnNotReady and is left to an
// external readiness poller. Turn-level error envelopes render inline in
// the log and never touch connection state. Exhausted retries fire
// OnConnectionFailed exactly once.
package session
