// ABOUTME: Delivery-progress watermark used to ask the server for replay after reconnect.
// ABOUTME: Advances by one per non-replay log-contributing envelope; replays never advance it.

package replay

import (
	"sync"

	"github.com/2389/coven-client/internal/envelope"
)

// Cursor is the client's delivery watermark: the id of the last delivered
// message and its position in the server's replay buffer. It is an outbound
// hint only; the server decides what it actually resends.
type Cursor struct {
	LastMessageID *string
	BufferOffset  int
}

// Tracker maintains the replay cursor. It performs no server-side logic; it
// is a monotonically advancing counter that lets the client tell the server
// "replay from here" after a reconnect. The store's upsert-by-id semantics
// keep the log correct even if the server replays one event extra.
type Tracker struct {
	mu     sync.Mutex
	cursor Cursor
}

// NewTracker creates a tracker with an empty cursor.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Observe advances the cursor for a non-replay, log-contributing envelope.
// Replayed envelopes and control/side-channel kinds are ignored.
func (t *Tracker) Observe(env *envelope.Envelope) {
	if env.IsReplay || !env.ContributesToLog() {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.cursor.BufferOffset++
	if env.ID != "" {
		id := env.ID
		t.cursor.LastMessageID = &id
	}
}

// Cursor returns a snapshot of the current watermark.
func (t *Tracker) Cursor() Cursor {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := t.cursor
	if t.cursor.LastMessageID != nil {
		id := *t.cursor.LastMessageID
		snap.LastMessageID = &id
	}
	return snap
}

// Reset clears the cursor. Used when the log itself is cleared.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cursor = Cursor{}
}
