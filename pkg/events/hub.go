package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Subscriber channel buffer. A subscriber whose buffer is full gets dropped
// rather than blocking the publisher.
const subscriberBuffer = 64

// Hub fans case and system events out to in-process subscribers. Delivery
// is best-effort and at-most-once; per-subscriber send order is preserved,
// cross-subscriber order is not.
type Hub struct {
	mu         sync.RWMutex
	caseSubs   map[string]map[string]*Subscription
	systemSubs map[string]*Subscription

	recentMu    sync.Mutex
	recent      []json.RawMessage
	recentLimit int

	heartbeatInterval time.Duration
}

// Subscription is one subscriber's receive side. Events closes when the
// subscriber is dropped or cancelled.
type Subscription struct {
	ID     string
	Events chan json.RawMessage

	caseID   string
	lastSend time.Time
	closed   bool
}

// NewHub creates a hub keeping the last replayLimit system messages and
// heartbeating idle subscribers at the given interval.
func NewHub(replayLimit int, heartbeatInterval time.Duration) *Hub {
	return &Hub{
		caseSubs:          make(map[string]map[string]*Subscription),
		systemSubs:        make(map[string]*Subscription),
		recentLimit:       replayLimit,
		heartbeatInterval: heartbeatInterval,
	}
}

// Run drives heartbeats until the context is cancelled. Callers start it
// once at startup.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.heartbeatIdle()
		}
	}
}

// SubscribeCase registers for one case's events. The first message is a
// connected marker.
func (h *Hub) SubscribeCase(caseID string) *Subscription {
	sub := &Subscription{
		ID:       uuid.NewString(),
		Events:   make(chan json.RawMessage, subscriberBuffer),
		caseID:   caseID,
		lastSend: time.Now(),
	}
	h.mu.Lock()
	if h.caseSubs[caseID] == nil {
		h.caseSubs[caseID] = make(map[string]*Subscription)
	}
	h.caseSubs[caseID][sub.ID] = sub
	h.mu.Unlock()

	h.send(sub, mustMarshal(NewConnected(caseID)))
	return sub
}

// SubscribeSystem registers for system-wide notifications and replays the
// most recent messages before any live broadcast.
func (h *Hub) SubscribeSystem() *Subscription {
	sub := &Subscription{
		ID:       uuid.NewString(),
		Events:   make(chan json.RawMessage, subscriberBuffer),
		lastSend: time.Now(),
	}

	h.recentMu.Lock()
	replay := make([]json.RawMessage, len(h.recent))
	copy(replay, h.recent)
	h.recentMu.Unlock()

	h.mu.Lock()
	h.systemSubs[sub.ID] = sub
	h.mu.Unlock()

	for _, msg := range replay {
		h.send(sub, msg)
	}
	return sub
}

// Unsubscribe removes a subscription and closes its channel. Safe to call
// more than once.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(sub)
}

// PublishCase broadcasts an event to all subscribers of one case.
func (h *Hub) PublishCase(caseID string, event any) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Warn("Failed to marshal case event", "case_id", caseID, "error", err)
		return
	}
	h.mu.RLock()
	subs := make([]*Subscription, 0, len(h.caseSubs[caseID]))
	for _, sub := range h.caseSubs[caseID] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		h.send(sub, data)
	}
}

// PublishSystem broadcasts a system-wide notification and records it in the
// replay buffer.
func (h *Hub) PublishSystem(event any) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Warn("Failed to marshal system event", "error", err)
		return
	}

	h.recentMu.Lock()
	h.recent = append(h.recent, data)
	if len(h.recent) > h.recentLimit {
		h.recent = h.recent[len(h.recent)-h.recentLimit:]
	}
	h.recentMu.Unlock()

	h.mu.RLock()
	subs := make([]*Subscription, 0, len(h.systemSubs))
	for _, sub := range h.systemSubs {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		h.send(sub, data)
	}
}

// SubscriberCount reports active subscribers for a case. Tests poll this
// instead of sleeping.
func (h *Hub) SubscriberCount(caseID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.caseSubs[caseID])
}

// send delivers without blocking. A full buffer means the consumer stopped
// draining; the subscriber is dropped.
func (h *Hub) send(sub *Subscription, data json.RawMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub.closed {
		return
	}
	select {
	case sub.Events <- data:
		sub.lastSend = time.Now()
	default:
		slog.Warn("Dropping slow event subscriber", "subscription_id", sub.ID, "case_id", sub.caseID)
		h.dropLocked(sub)
	}
}

func (h *Hub) dropLocked(sub *Subscription) {
	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.Events)
	if sub.caseID != "" {
		delete(h.caseSubs[sub.caseID], sub.ID)
		if len(h.caseSubs[sub.caseID]) == 0 {
			delete(h.caseSubs, sub.caseID)
		}
		return
	}
	delete(h.systemSubs, sub.ID)
}

// heartbeatIdle sends a heartbeat to every subscriber that has not received
// a message within the heartbeat interval.
func (h *Hub) heartbeatIdle() {
	cutoff := time.Now().Add(-h.heartbeatInterval)
	beat := mustMarshal(NewHeartbeat())

	h.mu.RLock()
	var idle []*Subscription
	for _, subs := range h.caseSubs {
		for _, sub := range subs {
			if sub.lastSend.Before(cutoff) {
				idle = append(idle, sub)
			}
		}
	}
	for _, sub := range h.systemSubs {
		if sub.lastSend.Before(cutoff) {
			idle = append(idle, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range idle {
		h.send(sub, beat)
	}
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}
