// ABOUTME: Connection lifecycle manager for one logical chat session.
// ABOUTME: Owns the socket, drives the state machine, schedules reconnects, cancels timers on close.

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/2389/coven-client/internal/backoff"
	"github.com/2389/coven-client/internal/envelope"
	"github.com/2389/coven-client/internal/msglog"
	"github.com/2389/coven-client/internal/processing"
	"github.com/2389/coven-client/internal/replay"
)

// ErrNotConnected is returned by outbound sends when the session is not
// open. Outbound turns are never queued across disconnects; the caller
// surfaces "not connected" to the user.
var ErrNotConnected = errors.New("session not connected")

// ErrSessionClosed is returned when operating on a session after Close.
var ErrSessionClosed = errors.New("session closed")

// Defaults for the replayed-envelope seen cache.
const (
	defaultSeenTTL  = 10 * time.Minute
	defaultSeenSize = 4096
)

// State is the connection lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateReconnecting
	// StateFailed is terminal: the backoff budget is exhausted and no
	// further reconnect will be scheduled.
	StateFailed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Handlers is the event-dispatch surface of the manager. All callbacks are
// optional and are invoked from the manager's single dispatch goroutine (or
// from the goroutine that detected a connection transition), so handlers
// must not block.
type Handlers struct {
	// OnConnected fires when the session reaches Open. For reconnections
	// replayedEvents reports the server's replay coverage when known.
	OnConnected func(reconnected bool, replayedEvents int)
	// OnNotReady fires on a not-ready close. The manager schedules nothing
	// itself; an external readiness poller owns recovery.
	OnNotReady func()
	// OnConnectionFailed fires exactly once when the retry budget is
	// exhausted. The session is terminal afterwards.
	OnConnectionFailed func(err error)
	// OnStreamingActive fires when the server reports a turn already in
	// flight, so a thinking indicator can show without waiting for the
	// next stream chunk.
	OnStreamingActive func()
	// OnTurnComplete fires on end-of-turn and abort acknowledgment.
	OnTurnComplete func()
	// OnLogChanged fires after any message log mutation.
	OnLogChanged func()
	// OnFileResults and OnCommandResults deliver the autocomplete
	// side-channel. Never part of the conversation log.
	OnFileResults    func(files []string)
	OnCommandResults func(commands []string)
}

// TranscriptSink receives log entries for durable local storage.
type TranscriptSink interface {
	Save(ctx context.Context, sessionKey string, entry msglog.Entry) error
}

// Config configures a session Manager.
type Config struct {
	// GatewayURL is the gateway base URL, e.g. "wss://gateway.example.com".
	GatewayURL string
	// SessionKey identifies the logical conversation.
	SessionKey string
	// Token is the bearer token carried on the dial.
	Token string
	// Backoff tunes the reconnect schedule.
	Backoff backoff.Config
	// Transcript, when non-nil, receives every log entry as it lands.
	Transcript TranscriptSink
}

// Manager owns the duplex socket for one logical session. All mutable
// connection state (the socket, attempt counters, timers, and the replay
// cursor) lives inside the Manager; nothing is shared through globals.
// Constructed when a conversation view mounts, closed when it unmounts.
type Manager struct {
	cfg      Config
	handlers Handlers
	logger   *slog.Logger

	log       *msglog.Log
	tracker   *replay.Tracker
	seen      *replay.SeenCache
	retry     *backoff.Controller
	broadcast *processing.Broadcaster

	dial dialFunc

	mu             sync.Mutex
	state          State
	conn           wire
	readCancel     context.CancelFunc
	reconnectTimer *time.Timer
	everConnected  bool
	awaitingAck    bool
	closed         bool
	failedFired    bool
	gen            int // connection generation; stale read loops are ignored
}

// NewManager creates a Manager for one session. Pass nil logger for default.
func NewManager(cfg Config, handlers Handlers, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "session", "session_key", cfg.SessionKey)

	return &Manager{
		cfg:       cfg,
		handlers:  handlers,
		logger:    logger,
		log:       msglog.New(logger),
		tracker:   replay.NewTracker(),
		seen:      replay.NewSeenCache(defaultSeenTTL, defaultSeenSize),
		retry:     backoff.New(cfg.Backoff),
		broadcast: processing.NewBroadcaster(logger),
		dial:      wsDial,
	}
}

// SetHandlers replaces the handler set. Useful when handlers need to close
// over the manager itself (e.g. the not-ready recovery path calling Connect).
// Call before Connect.
func (m *Manager) SetHandlers(handlers Handlers) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = handlers
}

// callbacks returns a snapshot of the handler set.
func (m *Manager) callbacks() Handlers {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handlers
}

// Log returns the session's ordered message log.
func (m *Manager) Log() *msglog.Log {
	return m.log
}

// Processing returns the processing-state broadcaster for this session.
func (m *Manager) Processing() *processing.Broadcaster {
	return m.broadcast
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// endpoint builds the session WebSocket URL.
func (m *Manager) endpoint() string {
	return fmt.Sprintf("%s/api/sessions/%s/ws", m.cfg.GatewayURL, m.cfg.SessionKey)
}

// Connect opens the session socket. Idempotent: a no-op while already
// Connecting or Open, which guards against duplicate concurrent calls from
// multiple UI mount effects. On a reconnection the manager first sends the
// replay cursor and holds the session in Connecting until the server's
// reconnected acknowledgment (or first business envelope) arrives.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrSessionClosed
	}
	switch m.state {
	case StateConnecting, StateOpen:
		m.mu.Unlock()
		return nil
	case StateFailed:
		m.mu.Unlock()
		return backoff.ErrRetriesExhausted
	}
	// A manual Connect during a pending backoff wait supersedes the timer.
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	reconnecting := m.everConnected
	m.state = StateConnecting
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	warnIfTokenExpired(m.logger, m.cfg.Token)
	m.logger.Info("connecting", "reconnecting", reconnecting)

	conn, err := m.dial(ctx, m.endpoint(), m.authHeader())
	if err != nil {
		m.logger.Warn("dial failed", "error", err)
		m.handleDisconnect(gen, err)
		return fmt.Errorf("dialing session: %w", err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "client closed")
		return ErrSessionClosed
	}
	readCtx, cancel := context.WithCancel(context.Background())
	m.conn = conn
	m.readCancel = cancel
	m.everConnected = true
	m.awaitingAck = reconnecting
	if !reconnecting {
		m.state = StateOpen
	}
	m.mu.Unlock()

	if reconnecting {
		if err := m.sendReconnectRequest(ctx, conn); err != nil {
			m.logger.Warn("reconnect handshake send failed", "error", err)
			_ = conn.Close(websocket.StatusInternalError, "handshake send failed")
			m.handleDisconnect(gen, err)
			return err
		}
	} else {
		m.retry.Reset()
		m.logger.Info("session open")
		if h := m.callbacks(); h.OnConnected != nil {
			h.OnConnected(false, 0)
		}
	}

	go m.readLoop(readCtx, gen, conn)
	return nil
}

// sendReconnectRequest writes the replay cursor so the server can replay
// the delivery gap.
func (m *Manager) sendReconnectRequest(ctx context.Context, conn wire) error {
	cur := m.tracker.Cursor()
	data, err := envelope.Encode(envelope.NewReconnectRequest(cur.LastMessageID, cur.BufferOffset))
	if err != nil {
		return fmt.Errorf("encoding reconnect request: %w", err)
	}
	m.logger.Debug("sent reconnect request", "buffer_offset", cur.BufferOffset)
	return conn.Write(ctx, data)
}

// readLoop processes inbound envelopes one at a time, in arrival order.
// This is the manager's single dispatch path: everything downstream of it
// relies on serial delivery.
func (m *Manager) readLoop(ctx context.Context, gen int, conn wire) {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			m.handleDisconnect(gen, err)
			return
		}
		m.dispatch(data)
	}
}

// handleDisconnect classifies a connection loss and drives recovery.
// Normal closes stop cleanly; not-ready closes raise OnNotReady and defer
// to the readiness poller; everything else goes through the backoff budget.
func (m *Manager) handleDisconnect(gen int, cause error) {
	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.awaitingAck = false
	if m.readCancel != nil {
		m.readCancel()
		m.readCancel = nil
	}

	switch backoff.Classify(cause) {
	case backoff.ClassNormal:
		m.state = StateIdle
		m.mu.Unlock()
		m.logger.Info("session closed by peer")

	case backoff.ClassNotReady:
		m.state = StateIdle
		m.mu.Unlock()
		m.logger.Info("engine not ready, deferring to readiness poller")
		if h := m.callbacks(); h.OnNotReady != nil {
			h.OnNotReady()
		}

	case backoff.ClassTransient:
		delay, ok := m.retry.Next()
		if !ok {
			m.state = StateFailed
			alreadyFired := m.failedFired
			m.failedFired = true
			m.mu.Unlock()
			m.logger.Error("reconnect budget exhausted, session failed")
			if h := m.callbacks(); !alreadyFired && h.OnConnectionFailed != nil {
				h.OnConnectionFailed(backoff.ErrRetriesExhausted)
			}
			return
		}
		m.state = StateReconnecting
		m.reconnectTimer = time.AfterFunc(delay, m.reconnectNow)
		attempt := m.retry.Attempts()
		m.mu.Unlock()
		m.logger.Warn("connection lost, reconnect scheduled",
			"delay", delay,
			"attempt", attempt,
			"error", cause)
	}
}

// reconnectNow runs when the backoff timer fires.
func (m *Manager) reconnectNow() {
	m.mu.Lock()
	m.reconnectTimer = nil
	if m.closed || m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}
	m.state = StateIdle
	m.mu.Unlock()

	if err := m.Connect(context.Background()); err != nil {
		m.logger.Warn("reconnect attempt failed", "error", err)
	}
}

// promoteToOpen completes the reconnect handshake. Returns true if env was
// the handshake acknowledgment itself and needs no further routing.
func (m *Manager) promoteToOpen(env *envelope.Envelope) (consumed bool) {
	m.mu.Lock()
	if !m.awaitingAck {
		m.mu.Unlock()
		return false
	}
	// Side-channel traffic does not complete the handshake.
	switch env.Type {
	case envelope.TypeProcessingState, envelope.TypeFileResults, envelope.TypeCommandResults:
		m.mu.Unlock()
		return false
	}
	m.awaitingAck = false
	m.state = StateOpen
	m.mu.Unlock()

	m.retry.Reset()

	replayed := 0
	if env.Type == envelope.TypeReconnected {
		replayed = env.ReplayedEvents
	}
	m.logger.Info("session reopened", "replayed_events", replayed)
	if h := m.callbacks(); h.OnConnected != nil {
		h.OnConnected(true, replayed)
	}
	return env.Type == envelope.TypeReconnected
}

// SendOptions carries optional outbound turn fields.
type SendOptions struct {
	Images         []string
	AgentType      string
	PermissionMode string
	ThinkingMode   string
}

// SendMessage sends a user turn. Rejected (never queued) unless the session
// is Open. Fire-and-forget: no response is awaited.
func (m *Manager) SendMessage(ctx context.Context, content string, opts SendOptions) error {
	conn, err := m.openConn()
	if err != nil {
		return err
	}

	msg := envelope.NewUserMessage(content)
	msg.Images = opts.Images
	msg.AgentType = opts.AgentType
	msg.PermissionMode = opts.PermissionMode
	msg.ThinkingMode = opts.ThinkingMode

	data, err := envelope.Encode(msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	return conn.Write(ctx, data)
}

// SendAbort sends the abort sentinel for the in-flight turn. Best-effort.
func (m *Manager) SendAbort(ctx context.Context) error {
	conn, err := m.openConn()
	if err != nil {
		return err
	}

	data, err := envelope.Encode(envelope.NewAbort())
	if err != nil {
		return fmt.Errorf("encoding abort: %w", err)
	}
	return conn.Write(ctx, data)
}

// openConn returns the live connection iff state is Open.
func (m *Manager) openConn() (wire, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateOpen || m.conn == nil {
		return nil, ErrNotConnected
	}
	return m.conn, nil
}

// SeedHistory inserts durable history entries fetched at session start.
// They travel the same ordered-insertion path as live entries, so cached or
// optimistic entries interleave correctly.
func (m *Manager) SeedHistory(entries []msglog.Entry) {
	for _, e := range entries {
		m.log.Upsert(e)
	}
	if h := m.callbacks(); len(entries) > 0 && h.OnLogChanged != nil {
		h.OnLogChanged()
	}
	m.logger.Debug("history seeded", "entries", len(entries))
}

// Close tears the session down: cancels any pending reconnect timer, closes
// the socket with a normal-closure code, and releases resources. A close
// requested here never triggers a retry. Safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.state = StateClosing
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	if m.readCancel != nil {
		m.readCancel()
		m.readCancel = nil
	}
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close(websocket.StatusNormalClosure, "client closed")
	}

	m.mu.Lock()
	m.state = StateIdle
	m.mu.Unlock()

	m.seen.Close()
	m.broadcast.Close()
	m.logger.Info("session manager closed")
	return err
}
