// ABOUTME: Inbound envelope routing from the session socket.
// ABOUTME: Parses, filters replay duplicates, and routes by kind to the log, broadcast, and handlers.

package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-client/internal/envelope"
	"github.com/2389/coven-client/internal/msglog"
	"github.com/2389/coven-client/internal/processing"
)

// transcriptSaveTimeout bounds a single transcript write so a slow disk
// never stalls dispatch for long.
const transcriptSaveTimeout = 2 * time.Second

// dispatch handles one inbound payload. Unparsable payloads are logged and
// dropped; they never crash the connection.
func (m *Manager) dispatch(data []byte) {
	env, err := envelope.Parse(data)
	if err != nil {
		m.logger.Warn("dropping malformed envelope", "error", err)
		return
	}

	if m.promoteToOpen(env) {
		return
	}

	h := m.callbacks()

	switch env.Type {
	case envelope.TypeMessage, envelope.TypeStream, envelope.TypeToolUse, envelope.TypeMetaAgent:
		m.applyLogEnvelope(env)

	case envelope.TypeComplete:
		if h.OnTurnComplete != nil {
			h.OnTurnComplete()
		}

	case envelope.TypeError:
		// Turn-level failure: rendered inline in the log, the connection
		// stays open.
		m.insertSystemEntry(msglog.KindError, env.Content)

	case envelope.TypeAborted:
		m.insertSystemEntry(msglog.KindSystem, abortedText(env))
		if h.OnTurnComplete != nil {
			h.OnTurnComplete()
		}

	case envelope.TypeFileResults:
		if h.OnFileResults != nil {
			h.OnFileResults(env.Files)
		}

	case envelope.TypeCommandResults:
		if h.OnCommandResults != nil {
			h.OnCommandResults(env.Commands)
		}

	case envelope.TypeStreamingActive:
		if h.OnStreamingActive != nil {
			h.OnStreamingActive()
		}

	case envelope.TypeProcessingState:
		m.broadcast.Publish(m.cfg.SessionKey, processing.State{
			Active:  env.Processing,
			Message: env.Message,
		})

	case envelope.TypeReconnected:
		// Ack outside a handshake: the server replayed spontaneously.
		m.logger.Debug("unexpected reconnected ack", "replayed_events", env.ReplayedEvents)
	}
}

// applyLogEnvelope lands a log-contributing envelope in the message store.
func (m *Manager) applyLogEnvelope(env *envelope.Envelope) {
	// Replayed complete units already applied are skipped so handlers are
	// not re-notified. Stream and meta_agent chunks flow through regardless:
	// upsert-by-id makes them idempotent.
	if env.ID != "" && (env.Type == envelope.TypeMessage || env.Type == envelope.TypeToolUse) {
		seenBefore := m.seen.CheckAndMark(string(env.Type) + ":" + env.ID)
		if seenBefore && env.IsReplay {
			m.logger.Debug("skipping replayed envelope already applied",
				"type", env.Type, "id", env.ID)
			return
		}
	}

	m.tracker.Observe(env)

	entry := entryFromEnvelope(env)
	result := m.log.Upsert(entry)
	if result == msglog.Suppressed {
		return
	}

	m.saveTranscript(entry)
	if h := m.callbacks(); h.OnLogChanged != nil {
		h.OnLogChanged()
	}
}

// insertSystemEntry appends a locally generated entry (turn errors, abort
// acknowledgments) to the log.
func (m *Manager) insertSystemEntry(kind msglog.Kind, content string) {
	entry := msglog.Entry{
		ID:        uuid.New().String(),
		Role:      "system",
		Content:   content,
		Timestamp: time.Now(),
		Kind:      kind,
	}
	if m.log.Upsert(entry) == msglog.Suppressed {
		return
	}

	m.saveTranscript(entry)
	if h := m.callbacks(); h.OnLogChanged != nil {
		h.OnLogChanged()
	}
}

// saveTranscript writes an entry to the transcript sink, if configured.
// Best-effort: failures are logged, never propagated into dispatch.
func (m *Manager) saveTranscript(entry msglog.Entry) {
	if m.cfg.Transcript == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), transcriptSaveTimeout)
	defer cancel()

	if err := m.cfg.Transcript.Save(ctx, m.cfg.SessionKey, entry); err != nil {
		m.logger.Warn("transcript save failed", "entry_id", entry.ID, "error", err)
	}
}

// entryFromEnvelope maps a log-contributing envelope to its store entry.
func entryFromEnvelope(env *envelope.Envelope) msglog.Entry {
	ts := env.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	entry := msglog.Entry{
		ID:        env.ID,
		Role:      env.Role,
		Content:   env.Content,
		Timestamp: ts,
	}

	switch env.Type {
	case envelope.TypeMessage:
		entry.Kind = msglog.KindMessage
	case envelope.TypeStream:
		entry.Kind = msglog.KindStream
		if entry.Role == "" {
			entry.Role = "assistant"
		}
	case envelope.TypeMetaAgent:
		entry.Kind = msglog.KindMetaAgent
		if entry.Role == "" {
			entry.Role = "assistant"
		}
	case envelope.TypeToolUse:
		entry.Kind = msglog.KindToolUse
		entry.ToolID = env.ToolID
		entry.ToolName = env.ToolName
		entry.ToolInput = env.ToolInput
		if entry.Role == "" {
			entry.Role = "assistant"
		}
		if entry.ID == "" {
			entry.ID = env.ToolID
		}
	}

	return entry
}

// abortedText picks the inline text for an abort acknowledgment.
func abortedText(env *envelope.Envelope) string {
	if env.Content != "" {
		return env.Content
	}
	return "Turn aborted."
}
