// ABOUTME: Tests for the replay cursor tracker.
// ABOUTME: Covers advancement, replay exclusion, and non-log envelope exclusion.

package replay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-client/internal/envelope"
)

func TestTracker_AdvancesPerLogContributingEnvelope(t *testing.T) {
	tr := NewTracker()

	tr.Observe(&envelope.Envelope{Type: envelope.TypeStream, ID: "a"})
	tr.Observe(&envelope.Envelope{Type: envelope.TypeMessage, ID: "b"})
	tr.Observe(&envelope.Envelope{Type: envelope.TypeToolUse, ID: "c"})

	cur := tr.Cursor()
	assert.Equal(t, 3, cur.BufferOffset)
	require.NotNil(t, cur.LastMessageID)
	assert.Equal(t, "c", *cur.LastMessageID)
}

func TestTracker_ReplayedEnvelopesDoNotAdvance(t *testing.T) {
	tr := NewTracker()

	tr.Observe(&envelope.Envelope{Type: envelope.TypeStream, ID: "a"})
	tr.Observe(&envelope.Envelope{Type: envelope.TypeStream, ID: "b", IsReplay: true})
	tr.Observe(&envelope.Envelope{Type: envelope.TypeMessage, ID: "c", IsReplay: true})

	cur := tr.Cursor()
	assert.Equal(t, 1, cur.BufferOffset)
	require.NotNil(t, cur.LastMessageID)
	assert.Equal(t, "a", *cur.LastMessageID)
}

func TestTracker_ControlEnvelopesDoNotAdvance(t *testing.T) {
	tr := NewTracker()

	tr.Observe(&envelope.Envelope{Type: envelope.TypeComplete})
	tr.Observe(&envelope.Envelope{Type: envelope.TypeProcessingState, Processing: true})
	tr.Observe(&envelope.Envelope{Type: envelope.TypeFileResults, Files: []string{"a.go"}})

	cur := tr.Cursor()
	assert.Equal(t, 0, cur.BufferOffset)
	assert.Nil(t, cur.LastMessageID)
}

func TestTracker_EnvelopeWithoutIDAdvancesOffsetOnly(t *testing.T) {
	tr := NewTracker()

	tr.Observe(&envelope.Envelope{Type: envelope.TypeStream, ID: "a"})
	tr.Observe(&envelope.Envelope{Type: envelope.TypeMetaAgent})

	cur := tr.Cursor()
	assert.Equal(t, 2, cur.BufferOffset)
	require.NotNil(t, cur.LastMessageID)
	assert.Equal(t, "a", *cur.LastMessageID, "id is retained from the last envelope that had one")
}

func TestTracker_CursorIsASnapshot(t *testing.T) {
	tr := NewTracker()
	tr.Observe(&envelope.Envelope{Type: envelope.TypeStream, ID: "a"})

	snap := tr.Cursor()
	tr.Observe(&envelope.Envelope{Type: envelope.TypeStream, ID: "b"})

	assert.Equal(t, 1, snap.BufferOffset)
	assert.Equal(t, "a", *snap.LastMessageID)
}

func TestTracker_Reset(t *testing.T) {
	tr := NewTracker()
	tr.Observe(&envelope.Envelope{Type: envelope.TypeStream, ID: "a"})

	tr.Reset()

	cur := tr.Cursor()
	assert.Equal(t, 0, cur.BufferOffset)
	assert.Nil(t, cur.LastMessageID)
}
