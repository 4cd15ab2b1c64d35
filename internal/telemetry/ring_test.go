package telemetry

import "testing"

func TestRingOverflowDropsOldestAndCountsDropped(t *testing.T) {
	r := NewRing(4)
	for i := 0; i < 6; i++ {
		r.Append(Event{NodeName: "n", Text: string(rune('a' + i))})
	}

	if r.Len() != 4 {
		t.Fatalf("expected ring to cap at 4 entries, got %d", r.Len())
	}
	if r.Dropped() != 2 {
		t.Fatalf("expected 2 dropped records, got %d", r.Dropped())
	}

	snap := r.Snapshot()
	if snap[0].Text != "c" || snap[3].Text != "f" {
		t.Fatalf("expected oldest-dropped order [c,d,e,f], got %v", snap)
	}
}

func TestRingSubscribeReceivesNewEntriesOnly(t *testing.T) {
	r := NewRing(8)
	r.Append(Event{Text: "before"})

	ch, unsubscribe := r.Subscribe(4)
	defer unsubscribe()

	r.Append(Event{Text: "after"})

	select {
	case e := <-ch:
		if e.Text != "after" {
			t.Fatalf("expected to receive only post-subscribe events, got %q", e.Text)
		}
	default:
		t.Fatalf("expected the subscriber channel to have the post-subscribe event buffered")
	}
}

func TestRingUnsubscribeStopsDelivery(t *testing.T) {
	r := NewRing(8)
	ch, unsubscribe := r.Subscribe(4)
	unsubscribe()

	r.Append(Event{Text: "after unsubscribe"})

	if _, ok := <-ch; ok {
		t.Fatalf("expected the channel to be closed after unsubscribe")
	}
}
