// ABOUTME: Tests for the processing-state fan-out broadcaster.
// ABOUTME: Covers subscribe, publish, unsubscribe, context cancellation, concurrency.

package processing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_SingleSubscriberReceivesState(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, _ := b.Subscribe(context.Background(), "session-1")

	b.Publish("session-1", State{Active: true, Message: "thinking"})

	select {
	case got := <-ch:
		assert.True(t, got.Active)
		assert.Equal(t, "thinking", got.Message)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for state update")
	}
}

func TestBroadcaster_MultipleSubscribersReceiveSameState(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx := context.Background()

	ch1, _ := b.Subscribe(ctx, "session-1")
	ch2, _ := b.Subscribe(ctx, "session-1")
	ch3, _ := b.Subscribe(ctx, "session-1")

	b.Publish("session-1", State{Active: true})

	for i, ch := range []<-chan State{ch1, ch2, ch3} {
		select {
		case got := <-ch:
			assert.True(t, got.Active, "subscriber %d got wrong state", i)
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d timed out", i)
		}
	}
}

func TestBroadcaster_SessionKeysAreIsolated(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx := context.Background()

	ch1, _ := b.Subscribe(ctx, "session-1")
	ch2, _ := b.Subscribe(ctx, "session-2")

	b.Publish("session-1", State{Active: true})

	select {
	case got := <-ch1:
		assert.True(t, got.Active)
	case <-time.After(time.Second):
		t.Fatal("subscriber for session-1 timed out")
	}

	select {
	case <-ch2:
		t.Fatal("subscriber for session-2 should not see session-1 updates")
	case <-time.After(100 * time.Millisecond):
		// Expected: no update
	}
}

func TestBroadcaster_SlowConsumerDoesNotBlockPublisher(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx := context.Background()

	// Subscribe but never read (slow consumer)
	_, _ = b.Subscribe(ctx, "session-1")
	ch2, _ := b.Subscribe(ctx, "session-1")

	// Publish more updates than the buffer size to overflow the slow one
	for i := 0; i < 2*subscriberBufferSize; i++ {
		b.Publish("session-1", State{Active: i%2 == 0})
	}

	received := 0
	for {
		select {
		case <-ch2:
			received++
		case <-time.After(200 * time.Millisecond):
			goto done
		}
	}
done:
	assert.Greater(t, received, 0, "fast consumer should receive at least some updates")
}

func TestBroadcaster_ContextCancellationCleansUp(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, subID := b.Subscribe(ctx, "session-1")

	b.mu.RLock()
	_, exists := b.subscribers["session-1"][subID]
	b.mu.RUnlock()
	assert.True(t, exists, "subscription should exist before cancel")

	cancel()

	// Give cleanup goroutine time to run
	time.Sleep(50 * time.Millisecond)

	b.mu.RLock()
	subs, keyExists := b.subscribers["session-1"]
	if keyExists {
		_, subExists := subs[subID]
		assert.False(t, subExists, "subscription should be removed after context cancel")
	}
	b.mu.RUnlock()

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed after context cancel")
	case <-time.After(time.Second):
		t.Fatal("channel not closed after context cancel")
	}
}

func TestBroadcaster_ManualUnsubscribe(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, subID := b.Subscribe(context.Background(), "session-1")

	b.Unsubscribe("session-1", subID)

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed after unsubscribe")
	case <-time.After(time.Second):
		t.Fatal("channel not closed after unsubscribe")
	}

	// Publishing should not panic
	b.Publish("session-1", State{Active: false})
}

func TestBroadcaster_CloseClosesAllSubscriptions(t *testing.T) {
	b := NewBroadcaster(nil)

	ch1, _ := b.Subscribe(context.Background(), "session-1")
	ch2, _ := b.Subscribe(context.Background(), "session-2")

	b.Close()

	for i, ch := range []<-chan State{ch1, ch2} {
		select {
		case _, ok := <-ch:
			assert.False(t, ok, "channel %d should be closed after Close()", i)
		case <-time.After(time.Second):
			t.Fatalf("channel %d not closed after Close()", i)
		}
	}
}

func TestBroadcaster_ConcurrentPublishSubscribe(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	var wg sync.WaitGroup
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch, _ := b.Subscribe(ctx, "session-concurrent")
			for j := 0; j < 5; j++ {
				select {
				case <-ch:
				case <-time.After(500 * time.Millisecond):
					return
				}
			}
		}()
	}

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				b.Publish("session-concurrent", State{Active: true})
			}
		}()
	}

	wg.Wait()
	// If we get here without deadlock or panic, the test passes
}

func TestBroadcaster_ConcurrentPublishUnsubscribe(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	var wg sync.WaitGroup

	// Subscribers churn while publishers hammer the same key. A publish
	// landing on a channel being closed would panic; this must stay quiet.
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				ctx, cancel := context.WithCancel(context.Background())
				_, subID := b.Subscribe(ctx, "session-churn")
				b.Unsubscribe("session-churn", subID)
				cancel()
			}
		}()
	}

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				b.Publish("session-churn", State{Active: true})
			}
		}()
	}

	wg.Wait()
}

func TestBroadcaster_SubscribeReturnsUniqueIDs(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx := context.Background()

	_, id1 := b.Subscribe(ctx, "session-1")
	_, id2 := b.Subscribe(ctx, "session-1")
	_, id3 := b.Subscribe(ctx, "session-2")

	require.NotEqual(t, id1, id2)
	require.NotEqual(t, id1, id3)
	require.NotEqual(t, id2, id3)
}

func TestBroadcaster_PublishToNonexistentSession(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	// Should not panic
	b.Publish("nobody-listening", State{Active: true})
}
