// ABOUTME: In-memory ordered conversation log with upsert-by-id semantics.
// ABOUTME: Append fast path, binary-search ordered insertion, near-duplicate suppression.

package msglog

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// DefaultDuplicateWindow is how close together two identical inserts must be
// to be treated as an accidental duplicate producer call.
const DefaultDuplicateWindow = 500 * time.Millisecond

// Kind categorizes a log entry.
type Kind string

const (
	KindMessage   Kind = "message"
	KindStream    Kind = "stream"
	KindToolUse   Kind = "tool_use"
	KindMetaAgent Kind = "meta_agent"
	KindError     Kind = "error"
	KindSystem    Kind = "system"
)

// Entry is one persisted unit of the conversation log. The ID is stable
// across streaming updates: repeated chunks of the same assistant turn
// replace the content of one Entry rather than appending new ones.
type Entry struct {
	ID        string
	Role      string
	Content   string
	Timestamp time.Time
	Kind      Kind

	// Tool invocation payload (KindToolUse).
	ToolID    string
	ToolName  string
	ToolInput string
}

// UpsertResult describes what an Upsert call did.
type UpsertResult int

const (
	// Inserted means a new entry was added to the log.
	Inserted UpsertResult = iota
	// Updated means an existing entry's content was replaced in place.
	Updated
	// Suppressed means the entry was dropped as a near-duplicate of the
	// immediately preceding insert.
	Suppressed
)

// Log is the authoritative client-side conversation log. Entries are kept
// ordered by timestamp; ids are unique. All mutation goes through Upsert,
// Remove and Clear; nothing else ever changes an entry.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	byID    map[string]int // id -> index into entries

	// Near-duplicate suppression state: the most recent insert.
	lastContent  string
	lastRole     string
	lastInsertAt time.Time

	window time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Log.
type Option func(*Log)

// WithDuplicateWindow overrides the near-duplicate suppression window.
// A zero window disables suppression.
func WithDuplicateWindow(d time.Duration) Option {
	return func(l *Log) { l.window = d }
}

// WithClock overrides the wall clock used for the suppression window.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// New creates an empty Log. Pass nil logger for default.
func New(logger *slog.Logger, opts ...Option) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Log{
		byID:   make(map[string]int),
		window: DefaultDuplicateWindow,
		now:    time.Now,
		logger: logger.With("component", "msglog"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Upsert adds or replaces an entry by id.
//
// If the id already exists the entry's content and payload are replaced in
// place; position in the log does not change. This is what lets a
// multi-chunk assistant turn render as one growing message.
//
// New ids append when their timestamp is >= the current tail (the common
// case for live streaming) and otherwise insert at the position found by
// binary search over timestamps. History replay, cached entries, and
// out-of-order delivery during reconnection can all arrive older than the
// tail.
//
// A new entry whose content and role match the immediately preceding insert
// within the suppression window is dropped as an accidental duplicate
// producer call. This guards against double-invocation from the caller, not
// against network duplication (the replay filter handles that upstream).
func (l *Log) Upsert(e Entry) UpsertResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	if idx, ok := l.byID[e.ID]; ok {
		existing := &l.entries[idx]
		existing.Content = e.Content
		existing.Kind = e.Kind
		existing.ToolID = e.ToolID
		existing.ToolName = e.ToolName
		existing.ToolInput = e.ToolInput
		if existing.Role == "" {
			existing.Role = e.Role
		}
		l.logger.Debug("entry updated", "id", e.ID, "kind", e.Kind)
		return Updated
	}

	if l.isNearDuplicate(e) {
		l.logger.Debug("near-duplicate insert suppressed", "id", e.ID)
		return Suppressed
	}

	l.insert(e)
	l.lastContent = e.Content
	l.lastRole = e.Role
	l.lastInsertAt = l.now()
	return Inserted
}

// isNearDuplicate reports whether e repeats the previous insert within the
// suppression window. Must be called with mu held.
func (l *Log) isNearDuplicate(e Entry) bool {
	if l.window <= 0 || l.lastInsertAt.IsZero() {
		return false
	}
	if e.Content == "" || e.Content != l.lastContent || e.Role != l.lastRole {
		return false
	}
	return l.now().Sub(l.lastInsertAt) < l.window
}

// insert places e at its timestamp-ordered position. Must be called with mu
// held.
func (l *Log) insert(e Entry) {
	n := len(l.entries)

	// Fast path: timestamp at or past the tail, append.
	if n == 0 || !e.Timestamp.Before(l.entries[n-1].Timestamp) {
		l.entries = append(l.entries, e)
		l.byID[e.ID] = n
		return
	}

	// Ordered insertion: first position whose timestamp is after e's.
	// Equal timestamps keep arrival order.
	pos := sort.Search(n, func(i int) bool {
		return l.entries[i].Timestamp.After(e.Timestamp)
	})

	l.entries = append(l.entries, Entry{})
	copy(l.entries[pos+1:], l.entries[pos:])
	l.entries[pos] = e
	l.reindexFrom(pos)
}

// reindexFrom rebuilds byID for entries at or after pos. Must be called with
// mu held.
func (l *Log) reindexFrom(pos int) {
	for i := pos; i < len(l.entries); i++ {
		l.byID[l.entries[i].ID] = i
	}
}

// Remove deletes an entry by id. Returns true if an entry was removed.
// Used to evict optimistic cache entries superseded by server history.
func (l *Log) Remove(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx, ok := l.byID[id]
	if !ok {
		return false
	}

	l.entries = append(l.entries[:idx], l.entries[idx+1:]...)
	delete(l.byID, id)
	l.reindexFrom(idx)
	return true
}

// Clear removes all entries.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = nil
	l.byID = make(map[string]int)
	l.lastContent = ""
	l.lastRole = ""
	l.lastInsertAt = time.Time{}
}

// Get returns the entry with the given id, if present.
func (l *Log) Get(id string) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	idx, ok := l.byID[id]
	if !ok {
		return Entry{}, false
	}
	return l.entries[idx], true
}

// Entries returns a copy of the log in iteration order.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
