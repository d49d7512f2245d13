package streaming

import (
	"context"
	"testing"
	"time"

	"chatguard-lab/pkg/logger"
)

func TestImportEventSubject(t *testing.T) {
	cases := []struct {
		event string
		want  string
	}{
		{"import.status", "imports.abc.status"},
		{"import.progress", "imports.abc.progress"},
		{"plain", "imports.abc.plain"},
	}
	for _, tc := range cases {
		e := &ImportEvent{ImportID: "abc", Event: tc.event}
		if got := e.Subject(); got != tc.want {
			t.Errorf("Subject(%q) = %q, want %q", tc.event, got, tc.want)
		}
	}
}

func TestSubscriptionMatches(t *testing.T) {
	event := &ImportEvent{ImportID: "abc"}

	var nilSub *Subscription
	if !nilSub.Matches(event) {
		t.Error("nil subscription should match everything")
	}
	if !(&Subscription{}).Matches(event) {
		t.Error("empty subscription should match everything")
	}
	if !(&Subscription{ImportID: "abc"}).Matches(event) {
		t.Error("matching import id rejected")
	}
	if (&Subscription{ImportID: "other"}).Matches(event) {
		t.Error("foreign import id accepted")
	}
}

func TestEventBusFanOut(t *testing.T) {
	eb := NewEventBus(nil, logger.NewDefault())
	defer eb.Close()

	ctx := context.Background()
	all, unsubAll := eb.Subscribe(ctx, nil)
	defer unsubAll()
	scoped, unsubScoped := eb.Subscribe(ctx, &Subscription{ImportID: "abc"})
	defer unsubScoped()

	if eb.SubscriberCount() != 2 {
		t.Fatalf("subscriber count = %d, want 2", eb.SubscriberCount())
	}

	first, err := NewImportEvent("abc", "import.status", map[string]string{"status": "PARSING"})
	if err != nil {
		t.Fatalf("NewImportEvent error: %v", err)
	}
	second, err := NewImportEvent("other", "import.status", map[string]string{"status": "PARSING"})
	if err != nil {
		t.Fatalf("NewImportEvent error: %v", err)
	}

	eb.Publish(ctx, first)
	eb.Publish(ctx, second)

	// The unfiltered subscriber sees both events
	for _, wantID := range []string{"abc", "other"} {
		select {
		case got := <-all:
			if got.ImportID != wantID {
				t.Fatalf("unfiltered subscriber got %q, want %q", got.ImportID, wantID)
			}
		case <-time.After(time.Second):
			t.Fatal("unfiltered subscriber timed out")
		}
	}

	// The scoped subscriber sees only its import
	select {
	case got := <-scoped:
		if got.ImportID != "abc" {
			t.Fatalf("scoped subscriber got %q, want abc", got.ImportID)
		}
	case <-time.After(time.Second):
		t.Fatal("scoped subscriber timed out")
	}
	select {
	case got := <-scoped:
		t.Fatalf("scoped subscriber leaked event for %q", got.ImportID)
	default:
	}
}

func TestEventBusUnsubscribe(t *testing.T) {
	eb := NewEventBus(nil, logger.NewDefault())
	defer eb.Close()

	ch, unsubscribe := eb.Subscribe(context.Background(), nil)
	unsubscribe()

	if eb.SubscriberCount() != 0 {
		t.Fatalf("subscriber count = %d after unsubscribe", eb.SubscriberCount())
	}
	if _, open := <-ch; open {
		t.Fatal("channel still open after unsubscribe")
	}

	// Unsubscribing twice is a no-op
	unsubscribe()
}
