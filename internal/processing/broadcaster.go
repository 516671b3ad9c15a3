// ABOUTME: In-memory fan-out of "agent is working" state to session observers.
// ABOUTME: Best-effort UI affordance; no persistence, arrival order only.

package processing

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// subscriberBufferSize is the channel buffer for each subscriber.
const subscriberBufferSize = 64

// State is one processing-state update for a session.
type State struct {
	Active  bool
	Message string
}

// Broadcaster relays processing-state updates to every observer of a logical
// session, e.g. multiple open views of one conversation. Publishing is
// non-blocking: updates are dropped for subscribers whose channels are full.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan State // sessionKey -> subID -> ch
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan State),
		logger:      logger.With("component", "processing"),
	}
}

// Subscribe registers an observer for the given session key. Returns a
// channel of state updates and a subscription ID for later unsubscription.
// The subscription is cleaned up automatically when ctx is cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context, sessionKey string) (<-chan State, string) {
	subID := uuid.New().String()
	ch := make(chan State, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[sessionKey]; !ok {
		b.subscribers[sessionKey] = make(map[string]chan State)
	}
	b.subscribers[sessionKey][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("observer added", "session_key", sessionKey, "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(sessionKey, subID)
	}()

	return ch, subID
}

// Publish fans a state update out to every observer of the session key.
// Sends happen under the read lock: Unsubscribe closes channels under the
// write lock, so a send can never hit a channel mid-close. The sends are
// non-blocking, so holding the lock is safe.
func (b *Broadcaster) Publish(sessionKey string, state State) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers[sessionKey] {
		select {
		case ch <- state:
		default:
			b.logger.Debug("dropped update for slow observer",
				"session_key", sessionKey)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(sessionKey, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[sessionKey]
	if !ok {
		return
	}

	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	if len(subs) == 0 {
		delete(b.subscribers, sessionKey)
	}

	b.logger.Debug("observer removed", "session_key", sessionKey, "sub_id", subID)
}

// Close shuts down the broadcaster and closes all observer channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for key, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, key)
	}
}
