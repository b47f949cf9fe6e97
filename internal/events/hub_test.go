package events

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	h := NewHub(4)
	ch, cancel := h.Subscribe()
	defer cancel()

	h.Publish(CommandAccepted, map[string]any{"command_id": "c1"})

	select {
	case ev := <-ch:
		if ev.Type != CommandAccepted || ev.ID != 1 {
			t.Fatalf("unexpected event: %+v", ev)
		}
		var data map[string]any
		if err := json.Unmarshal(ev.Data, &data); err != nil {
			t.Fatalf("decode data: %v", err)
		}
		if data["command_id"] != "c1" {
			t.Fatalf("unexpected data: %v", data)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestSnapshotSinceWrapsRing(t *testing.T) {
	h := NewHub(3)
	for range 5 {
		h.Publish(CommandSucceeded, nil)
	}

	all := h.SnapshotSince(0)
	if len(all) != 3 {
		t.Fatalf("len(snapshot) = %d, want 3", len(all))
	}
	if all[0].ID != 3 || all[2].ID != 5 {
		t.Fatalf("unexpected ids: %d..%d", all[0].ID, all[2].ID)
	}

	since := h.SnapshotSince(4)
	if len(since) != 1 || since[0].ID != 5 {
		t.Fatalf("unexpected SnapshotSince(4): %+v", since)
	}
	if string(all[0].Data) != "{}" {
		t.Fatalf("nil data should encode as {}, got %s", all[0].Data)
	}
}

func TestCancelClosesChannel(t *testing.T) {
	h := NewHub(1)
	ch, cancel := h.Subscribe()
	cancel()
	cancel() // idempotent

	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
	h.Publish(SenderStopped, nil) // no panic on closed subscriber
}

func TestNilHubDiscards(t *testing.T) {
	var h *Hub
	h.Publish(SenderStarted, nil)
}

func TestConcurrentPublishKeepsHistoryOrdered(t *testing.T) {
	h := NewHub(64)
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				h.Publish(CommandAccepted, nil)
			}
		}()
	}
	wg.Wait()

	snap := h.SnapshotSince(0)
	if len(snap) != 64 {
		t.Fatalf("len(snapshot) = %d, want 64", len(snap))
	}
	for i := 1; i < len(snap); i++ {
		if snap[i].ID != snap[i-1].ID+1 {
			t.Fatalf("ids out of order at %d: %d after %d", i, snap[i].ID, snap[i-1].ID)
		}
	}
	if snap[len(snap)-1].ID != 400 {
		t.Fatalf("last id = %d, want 400", snap[len(snap)-1].ID)
	}
}
