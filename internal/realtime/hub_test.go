package realtime

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/pitrustlab/pitrust/internal/reputation"
)

func testHub() *Hub {
	return NewHub(slog.Default())
}

func scoreEvent(uid string, points int) *Event {
	return &Event{
		Type:      EventScore,
		Timestamp: time.Now(),
		Data: ScoreEventData{
			UID:   uid,
			Event: reputation.ScoreEvent{Type: reputation.EventTypeCheckIn, Points: points},
		},
	}
}

func TestShouldSend_AllEvents(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{AllEvents: true}}

	if !h.shouldSend(client, scoreEvent("user1", 10)) {
		t.Error("AllEvents client should receive all events")
	}
}

func TestShouldSend_EventTypeFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		EventTypes: []EventType{EventScore, EventVIPGrant},
	}}

	vipEvent := &Event{Type: EventVIPGrant, Data: map[string]any{"uid": "user1"}}
	paymentEvent := &Event{Type: EventPayment, Data: map[string]any{"uid": "user1"}}

	if !h.shouldSend(client, scoreEvent("user1", 10)) {
		t.Error("Should receive score events")
	}
	if !h.shouldSend(client, vipEvent) {
		t.Error("Should receive vip_granted events")
	}
	if h.shouldSend(client, paymentEvent) {
		t.Error("Should NOT receive payment events")
	}
}

func TestShouldSend_UIDFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{UIDs: []string{"user1"}}}

	if !h.shouldSend(client, scoreEvent("user1", 10)) {
		t.Error("Should match own uid")
	}
	if h.shouldSend(client, scoreEvent("other", 10)) {
		t.Error("Should NOT match unrelated uid")
	}

	paymentForUser := &Event{Type: EventPayment, Data: map[string]any{"uid": "user1"}}
	if !h.shouldSend(client, paymentForUser) {
		t.Error("Should match uid in map payloads too")
	}
}

func TestShouldSend_MinPointsFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{MinPoints: 20}}

	if !h.shouldSend(client, scoreEvent("user1", 25)) {
		t.Error("Should receive large awards")
	}
	if h.shouldSend(client, scoreEvent("user1", 5)) {
		t.Error("Should NOT receive small awards")
	}

	vipEvent := &Event{Type: EventVIPGrant, Data: map[string]any{"uid": "user1"}}
	if !h.shouldSend(client, vipEvent) {
		t.Error("MinPoints filter should only apply to score events")
	}
}

func TestShouldSend_EmptySubscription(t *testing.T) {
	h := testHub()

	// No filters, not AllEvents
	client := &Client{sub: Subscription{}}

	if !h.shouldSend(client, scoreEvent("user1", 10)) {
		t.Error("Empty subscription (no filters) should receive events")
	}
}

func TestHubRunAndBroadcast(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	client := &Client{hub: h, send: make(chan []byte, 8), sub: Subscription{AllEvents: true}}
	h.register <- client

	h.BroadcastScoreEvent("user1", reputation.ScoreEvent{Type: reputation.EventTypeCheckIn, Points: 10}, 10, 1)

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("expected serialized event")
		}
	case <-time.After(time.Second):
		t.Fatal("broadcast never reached client")
	}

	stats := h.Stats()
	if stats["connectedClients"].(int) != 1 {
		t.Errorf("connectedClients = %v, want 1", stats["connectedClients"])
	}

	cancel()
	// Run's shutdown closes client channels.
	select {
	case _, ok := <-client.send:
		if ok {
			// Drain until closed
			for range client.send {
			}
		}
	case <-time.After(time.Second):
		t.Fatal("hub shutdown never closed client channel")
	}
}

func TestBroadcastDropsWhenFull(t *testing.T) {
	h := testHub()
	// No Run loop draining the channel: fill it and confirm Broadcast
	// does not block.
	for i := 0; i < 300; i++ {
		h.Broadcast(&Event{Type: EventScore, Timestamp: time.Now()})
	}
}
