package picker

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/wms-platform/pick-floor/internal/domain"
)

// Key layout:
//
//	queue/<unitId>        last merged queue snapshot
//	finished/<unitId>     units finished here, not yet shown closed by the server
//	pending/<seq:8 bytes> mirrors not yet accepted by the server
var (
	queuePrefix    = []byte("queue/")
	finishedPrefix = []byte("finished/")
	pendingPrefix  = []byte("pending/")
)

// LocalStore keeps the device's queue and pending mirrors across restarts so
// an app restart or a dropped connection loses no picking progress.
type LocalStore struct {
	db *pebble.DB

	mu  sync.Mutex
	seq uint64
}

// OpenLocalStore opens or creates the store in dir. Pass options with an
// in-memory FS for tests.
func OpenLocalStore(dir string, opts *pebble.Options) (*LocalStore, error) {
	if opts == nil {
		opts = &pebble.Options{}
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}
	s := &LocalStore{db: db}

	pending, err := s.ListPending()
	if err != nil {
		db.Close()
		return nil, err
	}
	for _, m := range pending {
		if m.Seq > s.seq {
			s.seq = m.Seq
		}
	}
	return s, nil
}

// Close closes the store
func (s *LocalStore) Close() error {
	return s.db.Close()
}

// SaveQueue replaces the cached queue and finished set in one batch
func (s *LocalStore) SaveQueue(units []*domain.WorkUnit, finished FinishedSet) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.DeleteRange(queuePrefix, upperBound(queuePrefix), nil); err != nil {
		return fmt.Errorf("failed to clear queue: %w", err)
	}
	if err := batch.DeleteRange(finishedPrefix, upperBound(finishedPrefix), nil); err != nil {
		return fmt.Errorf("failed to clear finished set: %w", err)
	}
	for id := range finished {
		if err := batch.Set(append(append([]byte{}, finishedPrefix...), id...), nil, nil); err != nil {
			return fmt.Errorf("failed to stage finished unit %s: %w", id, err)
		}
	}
	for _, u := range units {
		data, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("failed to encode unit %s: %w", u.UnitID, err)
		}
		if err := batch.Set(append(append([]byte{}, queuePrefix...), u.UnitID...), data, nil); err != nil {
			return fmt.Errorf("failed to stage unit %s: %w", u.UnitID, err)
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to save queue: %w", err)
	}
	return nil
}

// LoadQueue returns the cached queue in queue order and the finished set
func (s *LocalStore) LoadQueue() ([]*domain.WorkUnit, FinishedSet, error) {
	var units []*domain.WorkUnit
	err := s.scan(queuePrefix, func(_, value []byte) error {
		var u domain.WorkUnit
		if err := json.Unmarshal(value, &u); err != nil {
			return fmt.Errorf("failed to decode cached unit: %w", err)
		}
		u.PriorityRank = u.Priority.Rank()
		units = append(units, &u)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	domain.SortQueue(units)

	finished := make(FinishedSet)
	err = s.scan(finishedPrefix, func(key, _ []byte) error {
		finished[string(key[len(finishedPrefix):])] = true
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return units, finished, nil
}

// SavePending stores a mirror and assigns its sequence number
func (s *LocalStore) SavePending(m *Mutation) error {
	s.mu.Lock()
	s.seq++
	m.Seq = s.seq
	s.mu.Unlock()

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode mutation: %w", err)
	}
	if err := s.db.Set(pendingKey(m.Seq), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save mutation: %w", err)
	}
	return nil
}

// DeletePending forgets a mirror
func (s *LocalStore) DeletePending(m Mutation) error {
	if err := s.db.Delete(pendingKey(m.Seq), pebble.Sync); err != nil {
		return fmt.Errorf("failed to delete mutation: %w", err)
	}
	return nil
}

// ListPending returns the pending mirrors oldest first
func (s *LocalStore) ListPending() ([]Mutation, error) {
	var pending []Mutation
	err := s.scan(pendingPrefix, func(_, value []byte) error {
		var m Mutation
		if err := json.Unmarshal(value, &m); err != nil {
			return fmt.Errorf("failed to decode mutation: %w", err)
		}
		pending = append(pending, m)
		return nil
	})
	return pending, err
}

func (s *LocalStore) scan(prefix []byte, fn func(key, value []byte) error) error {
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound(prefix)})
	if err != nil {
		return fmt.Errorf("failed to create iterator: %w", err)
	}
	defer func() { _ = it.Close() }()

	for ok := it.First(); ok; ok = it.Next() {
		if err := fn(it.Key(), it.Value()); err != nil {
			return err
		}
	}
	return it.Error()
}

func pendingKey(seq uint64) []byte {
	key := make([]byte, len(pendingPrefix)+8)
	copy(key, pendingPrefix)
	binary.BigEndian.PutUint64(key[len(pendingPrefix):], seq)
	return key
}

func upperBound(prefix []byte) []byte {
	return append(append([]byte{}, prefix...), 0xFF)
}
