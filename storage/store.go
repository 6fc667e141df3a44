package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/btree"
	"go.etcd.io/bbolt"

	"github.com/yairfalse/vigil/types"
)

// Bucket names in bbolt
var (
	bucketEvents = []byte("events")
	bucketMeta   = []byte("meta")
)

var keyLastSeq = []byte("last_sequence")

// EventStore is the durable archive of enriched security events. Events are
// keyed by an append sequence so a cursor scan returns them in ingestion
// order; an in-memory btree indexes event IDs for point lookups.
type EventStore struct {
	mu      sync.RWMutex
	index   *btree.BTreeG[*eventRef]
	db      *bbolt.DB
	lastSeq int64
	dir     string
}

// eventRef tracks an archived event in the index
type eventRef struct {
	EventID   string
	Seq       int64
	Timestamp time.Time
}

// NewEventStore opens or creates the archive in dir
func NewEventStore(dir string) (*EventStore, error) {
	dbPath := filepath.Join(dir, "vigil.db")

	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketEvents, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	store := &EventStore{
		index: btree.NewG[*eventRef](32, func(a, b *eventRef) bool {
			return a.EventID < b.EventID
		}),
		db:  db,
		dir: dir,
	}

	if err := store.rebuildIndex(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to rebuild index: %w", err)
	}

	return store, nil
}

// Close closes the store
func (s *EventStore) Close() error {
	return s.db.Close()
}

// Append archives a single event
func (s *EventStore) Append(event types.SecurityEvent) (int64, error) {
	return s.AppendBatch([]types.SecurityEvent{event})
}

// AppendBatch archives multiple events atomically, in order
func (s *EventStore) AppendBatch(events []types.SecurityEvent) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(events) == 0 {
		return s.lastSeq, nil
	}

	firstSeq := s.lastSeq + 1
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketEvents)

		for i, event := range events {
			seq := firstSeq + int64(i)
			value, err := json.Marshal(event)
			if err != nil {
				return err
			}
			if err := bucket.Put(seqKey(seq), value); err != nil {
				return err
			}
		}

		metaBucket := tx.Bucket(bucketMeta)
		return metaBucket.Put(keyLastSeq, int64ToBytes(firstSeq+int64(len(events))-1))
	})
	if err != nil {
		return 0, err
	}

	for i, event := range events {
		s.index.ReplaceOrInsert(&eventRef{
			EventID:   event.ID,
			Seq:       firstSeq + int64(i),
			Timestamp: event.Timestamp,
		})
	}
	s.lastSeq = firstSeq + int64(len(events)) - 1

	return s.lastSeq, nil
}

// Get retrieves an archived event by ID
func (s *EventStore) Get(id string) (*types.SecurityEvent, error) {
	s.mu.RLock()
	ref, ok := s.index.Get(&eventRef{EventID: id})
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("event %s not found", id)
	}

	var event types.SecurityEvent
	err := s.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(bucketEvents).Get(seqKey(ref.Seq))
		if value == nil {
			return fmt.Errorf("event %s missing at seq %d", id, ref.Seq)
		}
		return json.Unmarshal(value, &event)
	})
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// QueryTimeRange returns archived events with timestamps in [start, end],
// ingestion order
func (s *EventStore) QueryTimeRange(start, end time.Time) ([]types.SecurityEvent, error) {
	var out []types.SecurityEvent

	err := s.db.View(func(tx *bbolt.Tx) error {
		cursor := tx.Bucket(bucketEvents).Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			var event types.SecurityEvent
			if err := json.Unmarshal(v, &event); err != nil {
				return err
			}
			if event.Timestamp.Before(start) || event.Timestamp.After(end) {
				continue
			}
			out = append(out, event)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CountByType counts archived events per event type within [start, end]
func (s *EventStore) CountByType(start, end time.Time) (map[string]int, error) {
	events, err := s.QueryTimeRange(start, end)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, event := range events {
		counts[event.EventType]++
	}
	return counts, nil
}

// Len returns the number of archived events
func (s *EventStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Len()
}

// rebuildIndex reloads the in-memory index from disk
func (s *EventStore) rebuildIndex() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		if raw := tx.Bucket(bucketMeta).Get(keyLastSeq); raw != nil {
			s.lastSeq = bytesToInt64(raw)
		}

		cursor := tx.Bucket(bucketEvents).Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			var event types.SecurityEvent
			if err := json.Unmarshal(v, &event); err != nil {
				return err
			}
			s.index.ReplaceOrInsert(&eventRef{
				EventID:   event.ID,
				Seq:       bytesToInt64(k),
				Timestamp: event.Timestamp,
			})
		}
		return nil
	})
}

func seqKey(seq int64) []byte {
	return int64ToBytes(seq)
}

func int64ToBytes(v int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(v)) // #nosec G115 -- sequences are non-negative
	return buf
}

func bytesToInt64(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b)) // #nosec G115
}
