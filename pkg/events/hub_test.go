package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readEvent(t *testing.T, sub *Subscription) map[string]any {
	t.Helper()
	select {
	case data, ok := <-sub.Events:
		require.True(t, ok, "subscription closed")
		var msg map[string]any
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func assertNoEvent(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case data := <-sub.Events:
		t.Fatalf("unexpected event: %s", data)
	default:
	}
}

func TestSubscribeCaseSendsConnectedFirst(t *testing.T) {
	hub := NewHub(10, time.Minute)
	sub := hub.SubscribeCase("case-1")
	defer hub.Unsubscribe(sub)

	msg := readEvent(t, sub)
	assert.Equal(t, TypeConnected, msg["event"])
	assert.Equal(t, "case-1", msg["case_id"])
}

func TestPublishCaseScopesByCaseID(t *testing.T) {
	hub := NewHub(10, time.Minute)
	subA := hub.SubscribeCase("case-a")
	subB := hub.SubscribeCase("case-b")
	defer hub.Unsubscribe(subA)
	defer hub.Unsubscribe(subB)
	readEvent(t, subA) // connected
	readEvent(t, subB)

	hub.PublishCase("case-a", NewProgress("analyzing policy", 40))

	msg := readEvent(t, subA)
	assert.Equal(t, TypeProgress, msg["event"])
	assert.Equal(t, "analyzing policy", msg["message"])
	assertNoEvent(t, subB)
}

func TestSystemSubscriberGetsReplay(t *testing.T) {
	hub := NewHub(2, time.Minute)
	hub.PublishSystem(NewProgress("first", 1))
	hub.PublishSystem(NewProgress("second", 2))
	hub.PublishSystem(NewProgress("third", 3))

	sub := hub.SubscribeSystem()
	defer hub.Unsubscribe(sub)

	// Only the last two survive the replay limit, oldest first.
	assert.Equal(t, "second", readEvent(t, sub)["message"])
	assert.Equal(t, "third", readEvent(t, sub)["message"])
	assertNoEvent(t, sub)

	hub.PublishSystem(NewProgress("live", 4))
	assert.Equal(t, "live", readEvent(t, sub)["message"])
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	hub := NewHub(10, time.Minute)
	sub := hub.SubscribeCase("case-1")
	require.Equal(t, 1, hub.SubscriberCount("case-1"))

	// The connected marker occupies one slot; fill the rest and overflow.
	for i := 0; i < subscriberBuffer; i++ {
		hub.PublishCase("case-1", NewProgress("filling", i))
	}

	assert.Equal(t, 0, hub.SubscriberCount("case-1"))

	// Drain to the close; buffered events remain readable.
	for range sub.Events {
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	hub := NewHub(10, time.Minute)
	sub := hub.SubscribeCase("case-1")
	hub.Unsubscribe(sub)
	hub.Unsubscribe(sub)
	assert.Equal(t, 0, hub.SubscriberCount("case-1"))

	// Publishing after the drop is a no-op.
	hub.PublishCase("case-1", NewProgress("late", 99))
}

func TestHeartbeatReachesIdleSubscribers(t *testing.T) {
	hub := NewHub(10, 10*time.Millisecond)
	sub := hub.SubscribeCase("case-1")
	defer hub.Unsubscribe(sub)
	readEvent(t, sub) // connected

	time.Sleep(25 * time.Millisecond)
	hub.heartbeatIdle()

	msg := readEvent(t, sub)
	assert.Equal(t, TypeHeartbeat, msg["event"])
}

func TestHeartbeatSkipsActiveSubscribers(t *testing.T) {
	hub := NewHub(10, time.Minute)
	sub := hub.SubscribeCase("case-1")
	defer hub.Unsubscribe(sub)
	readEvent(t, sub)

	hub.heartbeatIdle()
	assertNoEvent(t, sub)
}
