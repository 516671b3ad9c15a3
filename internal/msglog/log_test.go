// ABOUTME: Tests for the ordered message log.
// ABOUTME: Covers upsert-by-id, ordering, out-of-order correction, suppression, removal.

package msglog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entryAt(id string, ts int64, content string) Entry {
	return Entry{
		ID:        id,
		Role:      "assistant",
		Content:   content,
		Timestamp: time.Unix(ts, 0),
		Kind:      KindStream,
	}
}

func TestLog_UpsertSameIDReplacesContent(t *testing.T) {
	l := New(nil)

	require.Equal(t, Inserted, l.Upsert(entryAt("a", 10, "He")))
	require.Equal(t, Updated, l.Upsert(entryAt("a", 10, "Hello")))

	assert.Equal(t, 1, l.Len())
	got, ok := l.Get("a")
	require.True(t, ok)
	assert.Equal(t, "Hello", got.Content)
}

func TestLog_RepeatedUpsertsContributeOneEntry(t *testing.T) {
	l := New(nil, WithDuplicateWindow(0))

	for i, content := range []string{"a", "ab", "abc", "abcd"} {
		e := entryAt("turn-1", 10, content)
		if i == 0 {
			require.Equal(t, Inserted, l.Upsert(e))
		} else {
			require.Equal(t, Updated, l.Upsert(e))
		}
	}

	assert.Equal(t, 1, l.Len())
	got, _ := l.Get("turn-1")
	assert.Equal(t, "abcd", got.Content)
}

func TestLog_NonDecreasingTimestampsKeepInsertionOrder(t *testing.T) {
	l := New(nil, WithDuplicateWindow(0))

	l.Upsert(entryAt("a", 10, "one"))
	l.Upsert(entryAt("b", 10, "two"))
	l.Upsert(entryAt("c", 20, "three"))
	l.Upsert(entryAt("d", 20, "four"))

	ids := make([]string, 0, 4)
	for _, e := range l.Entries() {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids)
}

func TestLog_OutOfOrderInsertIsCorrected(t *testing.T) {
	l := New(nil, WithDuplicateWindow(0))

	l.Upsert(entryAt("a", 10, "one"))
	l.Upsert(entryAt("c", 30, "three"))
	l.Upsert(entryAt("b", 20, "two"))

	ids := make([]string, 0, 3)
	for _, e := range l.Entries() {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestLog_UpdateAfterMidInsertTargetsRightEntry(t *testing.T) {
	l := New(nil, WithDuplicateWindow(0))

	l.Upsert(entryAt("a", 10, "one"))
	l.Upsert(entryAt("c", 30, "three"))
	l.Upsert(entryAt("b", 20, "two"))

	// The index map must survive the mid-log insertion of "b".
	require.Equal(t, Updated, l.Upsert(entryAt("c", 30, "THREE")))
	got, ok := l.Get("c")
	require.True(t, ok)
	assert.Equal(t, "THREE", got.Content)
}

func TestLog_ReplayIsIdempotent(t *testing.T) {
	l := New(nil, WithDuplicateWindow(0))

	live := []Entry{
		entryAt("a", 10, "hello"),
		entryAt("b", 20, "world"),
		entryAt("c", 30, "done"),
	}
	for _, e := range live {
		l.Upsert(e)
	}
	before := l.Entries()

	// Server replays the same envelopes after a reconnect.
	for _, e := range live {
		l.Upsert(e)
	}

	assert.Equal(t, before, l.Entries())
}

func TestLog_NearDuplicateWithinWindowIsSuppressed(t *testing.T) {
	now := time.Unix(1000, 0)
	l := New(nil, WithClock(func() time.Time { return now }))

	first := Entry{ID: "a", Role: "user", Content: "hi", Timestamp: time.Unix(10, 0), Kind: KindMessage}
	dup := Entry{ID: "b", Role: "user", Content: "hi", Timestamp: time.Unix(10, 0), Kind: KindMessage}

	require.Equal(t, Inserted, l.Upsert(first))

	now = now.Add(100 * time.Millisecond)
	assert.Equal(t, Suppressed, l.Upsert(dup))
	assert.Equal(t, 1, l.Len())
}

func TestLog_IdenticalContentOutsideWindowIsKept(t *testing.T) {
	now := time.Unix(1000, 0)
	l := New(nil, WithClock(func() time.Time { return now }))

	l.Upsert(Entry{ID: "a", Role: "user", Content: "hi", Timestamp: time.Unix(10, 0), Kind: KindMessage})

	now = now.Add(2 * time.Second)
	res := l.Upsert(Entry{ID: "b", Role: "user", Content: "hi", Timestamp: time.Unix(12, 0), Kind: KindMessage})

	assert.Equal(t, Inserted, res)
	assert.Equal(t, 2, l.Len())
}

func TestLog_DifferentRoleIsNotADuplicate(t *testing.T) {
	now := time.Unix(1000, 0)
	l := New(nil, WithClock(func() time.Time { return now }))

	l.Upsert(Entry{ID: "a", Role: "user", Content: "hi", Timestamp: time.Unix(10, 0), Kind: KindMessage})
	res := l.Upsert(Entry{ID: "b", Role: "assistant", Content: "hi", Timestamp: time.Unix(10, 0), Kind: KindStream})

	assert.Equal(t, Inserted, res)
}

func TestLog_RemoveEvictsOptimisticEntry(t *testing.T) {
	l := New(nil, WithDuplicateWindow(0))

	l.Upsert(entryAt("optimistic", 10, "pending..."))
	l.Upsert(entryAt("b", 20, "two"))

	require.True(t, l.Remove("optimistic"))
	assert.False(t, l.Remove("optimistic"))
	assert.Equal(t, 1, l.Len())

	// Index map stays usable after removal.
	require.Equal(t, Updated, l.Upsert(entryAt("b", 20, "TWO")))
	got, _ := l.Get("b")
	assert.Equal(t, "TWO", got.Content)
}

func TestLog_Clear(t *testing.T) {
	l := New(nil, WithDuplicateWindow(0))

	l.Upsert(entryAt("a", 10, "one"))
	l.Upsert(entryAt("b", 20, "two"))
	l.Clear()

	assert.Equal(t, 0, l.Len())
	_, ok := l.Get("a")
	assert.False(t, ok)

	// Fresh inserts work after a clear.
	assert.Equal(t, Inserted, l.Upsert(entryAt("a", 10, "one")))
}

func TestLog_EntriesReturnsACopy(t *testing.T) {
	l := New(nil, WithDuplicateWindow(0))
	l.Upsert(entryAt("a", 10, "one"))

	snapshot := l.Entries()
	snapshot[0].Content = "mutated"

	got, _ := l.Get("a")
	assert.Equal(t, "one", got.Content)
}
