package sse

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublishDeliversToSubscriber(t *testing.T) {
	hub := NewHub(discardLogger())
	ch, cancel := hub.Subscribe("alert_stream")
	defer cancel()

	hub.Publish("alert_stream", Event{Type: "alert", Data: []byte(`{"id":1}`)})

	select {
	case ev := <-ch:
		if ev.Type != "alert" {
			t.Errorf("expected type alert, got %s", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("expected the event to be delivered")
	}
}

func TestPublishIsScopedToSiteID(t *testing.T) {
	hub := NewHub(discardLogger())
	ch, cancel := hub.Subscribe("site-a")
	defer cancel()

	hub.Publish("site-b", Event{Type: "alert"})

	select {
	case <-ch:
		t.Fatal("expected no delivery for an unrelated site id")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCancelRemovesSubscriberAndClosesChannel(t *testing.T) {
	hub := NewHub(discardLogger())
	ch, cancel := hub.Subscribe("alert_stream")
	if n := hub.SubscriberCount("alert_stream"); n != 1 {
		t.Fatalf("expected 1 subscriber, got %d", n)
	}
	cancel()
	if n := hub.SubscriberCount("alert_stream"); n != 0 {
		t.Fatalf("expected 0 subscribers after cancel, got %d", n)
	}
	if _, ok := <-ch; ok {
		t.Errorf("expected the channel to be closed after cancel")
	}
}

func TestPublishDropsOnFullChannelWithoutBlocking(t *testing.T) {
	hub := NewHub(discardLogger())
	_, cancel := hub.Subscribe("alert_stream")
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.Publish("alert_stream", Event{Type: "alert"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Publish to never block even once the subscriber channel fills up")
	}
}
