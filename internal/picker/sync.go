package picker

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/wms-platform/pick-floor/internal/domain"
	"github.com/wms-platform/pick-floor/pkg/logging"
)

// QueueSource fetches the server's queue snapshot
type QueueSource interface {
	FetchQueue(ctx context.Context, filter domain.QueueFilter, includeCompleted bool) ([]*domain.WorkUnit, error)
}

// QueueCache persists the merged queue and the finished set on the device
type QueueCache interface {
	SaveQueue(units []*domain.WorkUnit, finished FinishedSet) error
	LoadQueue() ([]*domain.WorkUnit, FinishedSet, error)
}

// Syncer keeps the device's queue merged with server snapshots. Refreshes
// triggered together (a push burst, a manual refresh) share one fetch.
type Syncer struct {
	source QueueSource
	cache  QueueCache
	filter domain.QueueFilter
	logger *logging.Logger
	group  singleflight.Group

	mu       sync.RWMutex
	queue    []*domain.WorkUnit
	finished FinishedSet
}

// NewSyncer creates a syncer for the given queue filter
func NewSyncer(source QueueSource, cache QueueCache, filter domain.QueueFilter, logger *logging.Logger) *Syncer {
	if filter == "" {
		filter = domain.QueueFilterReady
	}
	return &Syncer{
		source:   source,
		cache:    cache,
		filter:   filter,
		logger:   logger.WithComponent("queue-sync"),
		finished: make(FinishedSet),
	}
}

// Load restores the cached queue, for starting offline
func (s *Syncer) Load() error {
	units, finished, err := s.cache.LoadQueue()
	if err != nil {
		return err
	}
	if finished == nil {
		finished = make(FinishedSet)
	}
	s.mu.Lock()
	s.queue = units
	s.finished = finished
	s.mu.Unlock()
	return nil
}

// Queue returns the current merged queue
func (s *Syncer) Queue() []*domain.WorkUnit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*domain.WorkUnit(nil), s.queue...)
}

// Finished returns the IDs of units finished here and not yet confirmed
func (s *Syncer) Finished() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finished.IDs()
}

// ApplyLocal records the session's copy of units so the next merge sees the
// optimistic state. A unit closed here joins the finished set, which is
// cached right away so a restart does not lose it.
func (s *Syncer) ApplyLocal(units ...*domain.WorkUnit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	newlyFinished := false
	for _, u := range units {
		if u == nil {
			continue
		}
		if u.IsClosed() && !s.finished[u.UnitID] {
			s.finished[u.UnitID] = true
			newlyFinished = true
		}
		replaced := false
		for i := range s.queue {
			if s.queue[i].UnitID == u.UnitID {
				s.queue[i] = u
				replaced = true
				break
			}
		}
		if !replaced && !u.IsGroupChild() {
			s.queue = append(s.queue, u)
		}
	}
	domain.SortQueue(s.queue)

	if newlyFinished {
		if err := s.cache.SaveQueue(s.queue, s.finished); err != nil {
			s.logger.WithError(err).Warn("Failed to cache queue")
		}
	}
}

// Refresh fetches a snapshot and merges it. Completed units are requested so
// a unit finished locally leaves the finished set once the server shows it
// closed, and leaves the queue once later snapshots stop listing it.
func (s *Syncer) Refresh(ctx context.Context, activeUnitID string) ([]*domain.WorkUnit, error) {
	v, err, _ := s.group.Do("queue", func() (interface{}, error) {
		remote, err := s.source.FetchQueue(ctx, s.filter, true)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		merged := MergeQueue(s.queue, remote, activeUnitID, s.finished)
		s.queue = merged
		err = s.cache.SaveQueue(merged, s.finished)
		s.mu.Unlock()

		if err != nil {
			s.logger.WithError(err).Warn("Failed to cache queue")
		}
		return merged, nil
	})
	if err != nil {
		s.logger.WithError(err).Warn("Queue refresh failed")
		return nil, err
	}
	return append([]*domain.WorkUnit(nil), v.([]*domain.WorkUnit)...), nil
}
