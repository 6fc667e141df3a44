package storage

import (
	"fmt"
	"testing"
	"time"

	"github.com/yairfalse/vigil/types"
)

func TestEventStoreAppendAndGet(t *testing.T) {
	store, err := NewEventStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewEventStore failed: %v", err)
	}
	defer func() { _ = store.Close() }()

	event := makeEvent("evt-1", "LOGIN_ATTEMPT", types.SeverityHigh, time.Now())
	seq, err := store.Append(event)
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if seq != 1 {
		t.Errorf("first sequence = %d, want 1", seq)
	}

	got, err := store.Get("evt-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.EventType != "LOGIN_ATTEMPT" || got.Severity != types.SeverityHigh {
		t.Errorf("roundtrip mismatch: %+v", got)
	}

	if _, err := store.Get("missing"); err == nil {
		t.Error("Get(missing) should fail")
	}
}

func TestEventStoreBatchOrder(t *testing.T) {
	store, err := NewEventStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = store.Close() }()

	now := time.Now()
	var batch []types.SecurityEvent
	for i := 0; i < 5; i++ {
		batch = append(batch, makeEvent(fmt.Sprintf("evt-%d", i), "CONFIG_CHANGE", types.SeverityLow, now.Add(time.Duration(i)*time.Second)))
	}

	seq, err := store.AppendBatch(batch)
	if err != nil {
		t.Fatalf("AppendBatch failed: %v", err)
	}
	if seq != 5 {
		t.Errorf("last sequence = %d, want 5", seq)
	}

	events, err := store.QueryTimeRange(now.Add(-time.Minute), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("QueryTimeRange failed: %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("got %d events, want 5", len(events))
	}
	for i, event := range events {
		if event.ID != fmt.Sprintf("evt-%d", i) {
			t.Errorf("event %d out of order: %s", i, event.ID)
		}
	}
}

func TestEventStoreTimeRangeExcludes(t *testing.T) {
	store, err := NewEventStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = store.Close() }()

	now := time.Now()
	_, _ = store.Append(makeEvent("old", "DATA_ACCESS", types.SeverityLow, now.Add(-48*time.Hour)))
	_, _ = store.Append(makeEvent("new", "DATA_ACCESS", types.SeverityLow, now))

	events, err := store.QueryTimeRange(now.Add(-24*time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].ID != "new" {
		t.Errorf("time range query = %v", events)
	}
}

func TestEventStoreCountByType(t *testing.T) {
	store, err := NewEventStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = store.Close() }()

	now := time.Now()
	for i := 0; i < 3; i++ {
		_, _ = store.Append(makeEvent(fmt.Sprintf("l-%d", i), "LOGIN_ATTEMPT", types.SeverityLow, now))
	}
	_, _ = store.Append(makeEvent("c-0", "CONFIG_CHANGE", types.SeverityLow, now))

	counts, err := store.CountByType(now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if counts["LOGIN_ATTEMPT"] != 3 || counts["CONFIG_CHANGE"] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestEventStoreReopenRebuildsIndex(t *testing.T) {
	dir := t.TempDir()

	store, err := NewEventStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = store.Append(makeEvent("persist-1", "NETWORK_ACCESS", types.SeverityMedium, time.Now()))
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewEventStore(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	if reopened.Len() != 1 {
		t.Errorf("Len after reopen = %d, want 1", reopened.Len())
	}
	got, err := reopened.Get("persist-1")
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if got.EventType != "NETWORK_ACCESS" {
		t.Errorf("event = %+v", got)
	}

	// Sequence continues after reopen
	seq, err := reopened.Append(makeEvent("persist-2", "NETWORK_ACCESS", types.SeverityMedium, time.Now()))
	if err != nil {
		t.Fatal(err)
	}
	if seq != 2 {
		t.Errorf("sequence after reopen = %d, want 2", seq)
	}
}
