package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe("")
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe("")
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: "site.created", Data: map[string]string{"name": "alpha"}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: site.created") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"name":"alpha"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishSiteEvent_ListThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe("")
	defer b.Unsubscribe(ch)

	// First event should trigger sites.updated.
	b.PublishSiteEvent(KindCreated, "alpha")
	// Second event immediately should NOT trigger another sites.updated.
	b.PublishSiteEvent(KindUpdated, "beta")
	// Unknown kinds are dropped entirely.
	b.PublishSiteEvent("renamed", "gamma")

	// Drain and count events.
	time.Sleep(50 * time.Millisecond)
	listCount := 0
	siteCount := 0
loop:
	for {
		select {
		case msg := <-ch:
			s := string(msg)
			if strings.Contains(s, "sites.updated") {
				listCount++
			} else {
				siteCount++
			}
		default:
			break loop
		}
	}

	if siteCount != 2 {
		t.Errorf("site events = %d, want 2", siteCount)
	}
	if listCount != 1 {
		t.Errorf("sites.updated events = %d, want 1 (throttled)", listCount)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	// Start handler in background.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.Publish(Event{Type: "site.updated", Data: map[string]string{"name": "x"}})
	time.Sleep(50 * time.Millisecond)

	// Cancel context to disconnect.
	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: site.updated") {
		t.Errorf("handler output missing event: %q", body)
	}

	// Client should be cleaned up.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe("")
	defer b.Unsubscribe(ch)

	// Fill buffer (capacity 64) and then one more should not block.
	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
	// If we reach here without deadlock, the test passes.
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe("")
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Should be safe no-op after close.
	b.Publish(Event{Type: "site.updated", Data: map[string]string{"name": "x"}})
	b.PublishSiteEvent(KindUpdated, "x")
}

func TestSubscribe_SiteFilter(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	alpha := b.Subscribe("alpha")
	defer b.Unsubscribe(alpha)

	b.PublishSiteEvent(KindUpdated, "beta")
	b.PublishSiteEvent(KindUpdated, "alpha")

	var got []string
	timeout := time.After(time.Second)
	for len(got) < 2 {
		select {
		case msg := <-alpha:
			got = append(got, string(msg))
		case <-timeout:
			t.Fatalf("timeout, got %q", got)
		}
	}
	// sites.updated is unscoped and follows the first site event.
	if !strings.Contains(got[0], "event: sites.updated") {
		t.Errorf("first event = %q, want sites.updated", got[0])
	}
	if !strings.Contains(got[1], `"name":"alpha"`) {
		t.Errorf("second event = %q, want alpha update", got[1])
	}
	select {
	case msg := <-alpha:
		t.Errorf("unexpected event %q", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEventIDsIncrease(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	ch := b.Subscribe("")
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: "a", Data: 1})
	b.Publish(Event{Type: "b", Data: 2})

	for _, want := range []string{"id: 1\nevent: a\ndata: 1\n\n", "id: 2\nevent: b\ndata: 2\n\n"} {
		select {
		case msg := <-ch:
			if string(msg) != want {
				t.Errorf("frame = %q, want %q", msg, want)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for message")
		}
	}
}

func TestSSEHandler_KeepAlive(t *testing.T) {
	b := NewBroker(time.Hour, WithKeepAlive(10*time.Millisecond))
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/events?site=alpha", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	b.ServeHTTP(w, req)

	if !strings.Contains(w.Body.String(), ": keepalive\n\n") {
		t.Errorf("no keepalive in %q", w.Body.String())
	}
}
