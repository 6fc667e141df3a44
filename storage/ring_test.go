package storage

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/yairfalse/vigil/types"
)

func makeEvent(id, eventType string, severity types.Severity, ts time.Time) types.SecurityEvent {
	return types.SecurityEvent{
		ID:        id,
		Timestamp: ts,
		EventType: eventType,
		Severity:  severity,
	}
}

func TestRingAppendWithinCapacity(t *testing.T) {
	ring := NewRing(5)
	now := time.Now()

	for i := 0; i < 3; i++ {
		ring.Append(makeEvent(fmt.Sprintf("e-%d", i), "DATA_ACCESS", types.SeverityLow, now))
	}

	if ring.Len() != 3 {
		t.Errorf("Len = %d, want 3", ring.Len())
	}

	snapshot := ring.Snapshot()
	if snapshot[0].ID != "e-0" || snapshot[2].ID != "e-2" {
		t.Errorf("snapshot order wrong: %v", snapshot)
	}
}

func TestRingEvictsOldestAtCapacity(t *testing.T) {
	const capacity = 10
	ring := NewRing(capacity)
	now := time.Now()

	// Insert capacity+1 events
	for i := 0; i <= capacity; i++ {
		ring.Append(makeEvent(fmt.Sprintf("e-%d", i), "DATA_ACCESS", types.SeverityLow, now))
	}

	if ring.Len() != capacity {
		t.Errorf("Len = %d, want %d", ring.Len(), capacity)
	}

	// Oldest is absent, newest is present
	if _, ok := ring.Get("e-0"); ok {
		t.Error("oldest event should have been evicted")
	}
	if _, ok := ring.Get(fmt.Sprintf("e-%d", capacity)); !ok {
		t.Error("newest event should be present")
	}

	snapshot := ring.Snapshot()
	if snapshot[0].ID != "e-1" {
		t.Errorf("oldest remaining = %s, want e-1", snapshot[0].ID)
	}
}

func TestRingNeverExceedsCapacity(t *testing.T) {
	ring := NewRing(8)
	now := time.Now()

	for i := 0; i < 100; i++ {
		ring.Append(makeEvent(fmt.Sprintf("e-%d", i), "NETWORK_ACCESS", types.SeverityMedium, now))
		if ring.Len() > 8 {
			t.Fatalf("ring grew past capacity: %d", ring.Len())
		}
	}
}

func TestRingQueryFilters(t *testing.T) {
	ring := NewRing(100)
	now := time.Now()

	ring.Append(makeEvent("a", "LOGIN_ATTEMPT", types.SeverityCritical, now))
	ring.Append(makeEvent("b", "LOGIN_ATTEMPT", types.SeverityLow, now))
	ring.Append(makeEvent("c", "CONFIG_CHANGE", types.SeverityCritical, now))

	got := ring.Query(types.EventFilter{Severity: types.SeverityCritical})
	if len(got) != 2 {
		t.Fatalf("severity filter returned %d events, want 2", len(got))
	}
	// Newest first
	if got[0].ID != "c" {
		t.Errorf("first result = %s, want c", got[0].ID)
	}

	got = ring.Query(types.EventFilter{EventType: "LOGIN_ATTEMPT", Limit: 1})
	if len(got) != 1 || got[0].ID != "b" {
		t.Errorf("type+limit query = %v", got)
	}
}

func TestRingRecentWindowBoundary(t *testing.T) {
	ring := NewRing(100)
	now := time.Now()

	inside := makeEvent("inside", "DATA_ACCESS", types.SeverityLow, now.Add(-24*time.Hour+time.Minute))
	outside := makeEvent("outside", "DATA_ACCESS", types.SeverityLow, now.Add(-24*time.Hour-time.Minute))
	ring.Append(outside)
	ring.Append(inside)

	recent := ring.Recent(24*time.Hour, now)
	if len(recent) != 1 {
		t.Fatalf("Recent returned %d events, want 1", len(recent))
	}
	if recent[0].ID != "inside" {
		t.Errorf("Recent = %s, want inside", recent[0].ID)
	}

	if got := ring.CountSince(now.Add(-24 * time.Hour)); got != 1 {
		t.Errorf("CountSince = %d, want 1", got)
	}
}

func TestRingConcurrentAppendAndRead(t *testing.T) {
	ring := NewRing(64)
	now := time.Now()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				ring.Append(makeEvent(fmt.Sprintf("w%d-e%d", w, i), "DATA_ACCESS", types.SeverityLow, now))
			}
		}(w)
	}
	for r := 0; r < 2; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = ring.Snapshot()
				_ = ring.Len()
			}
		}()
	}
	wg.Wait()

	if ring.Len() != 64 {
		t.Errorf("Len = %d, want 64", ring.Len())
	}
}
