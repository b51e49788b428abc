package picker

import (
	"context"
	"fmt"
	"sync"

	"github.com/wms-platform/pick-floor/internal/domain"
	"github.com/wms-platform/pick-floor/pkg/logging"
)

// Mirror is the server side of the mutations a session produces
type Mirror interface {
	UpdateItem(ctx context.Context, key string, update ItemUpdate) (*ItemUpdateResult, error)
	Release(ctx context.Context, key, unitID string, resetProgress bool) (*UnitView, error)
	ConfirmCount(ctx context.Context, key string, count domain.BinCount) (*domain.CountResult, error)
	SkipReplenishment(ctx context.Context, key string, count domain.BinCount) (*domain.CountResult, error)
}

// PendingStore persists mirrors until the server accepts them
type PendingStore interface {
	SavePending(m *Mutation) error
	DeletePending(m Mutation) error
	ListPending() ([]Mutation, error)
}

// MirrorFailure is a mutation the server did not accept. A retryable failure
// stays pending and goes out again on Resend.
type MirrorFailure struct {
	Mutation  Mutation
	Err       error
	Retryable bool
}

func (f *MirrorFailure) Error() string {
	return fmt.Sprintf("mirror %s for %s failed: %v", f.Mutation.Kind, f.Mutation.UnitID, f.Err)
}

func (f *MirrorFailure) Unwrap() error {
	return f.Err
}

// Result is the outcome of one mirrored mutation. Exactly one of Update, Unit,
// Count or Failure is set.
type Result struct {
	Mutation Mutation
	Update   *ItemUpdateResult
	Unit     *UnitView
	Count    *domain.CountResult
	Failure  *MirrorFailure
}

// Dispatcher sends mutations to the server one at a time, in submission
// order, and reports each outcome on Results. Submit and Resend never block:
// once the queue fills, mutations wait in the pending store and Run sends
// them from there after the queue empties.
type Dispatcher struct {
	mirror  Mirror
	store   PendingStore
	logger  *logging.Logger
	queue   chan Mutation
	results chan Result
	wake    chan struct{}

	mu      sync.Mutex
	backlog bool
}

// NewDispatcher creates a dispatcher. Call Run to start it.
func NewDispatcher(mirror Mirror, store PendingStore, logger *logging.Logger) *Dispatcher {
	return newDispatcher(mirror, store, logger, 64)
}

func newDispatcher(mirror Mirror, store PendingStore, logger *logging.Logger, depth int) *Dispatcher {
	return &Dispatcher{
		mirror:  mirror,
		store:   store,
		logger:  logger.WithComponent("mirror-dispatcher"),
		queue:   make(chan Mutation, depth),
		results: make(chan Result, depth),
		wake:    make(chan struct{}, 1),
	}
}

// Results delivers mirror outcomes
func (d *Dispatcher) Results() <-chan Result {
	return d.results
}

// Submit persists m and queues it for sending
func (d *Dispatcher) Submit(m *Mutation) error {
	if m == nil {
		return nil
	}
	if err := d.store.SavePending(m); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.backlog {
		select {
		case d.queue <- *m:
			return nil
		default:
		}
		d.backlog = true
		d.logger.Warn("Mirror queue full, holding changes on the device", "depth", cap(d.queue))
	}
	d.signal()
	return nil
}

// Resend schedules every pending mutation to go out again, dropping those
// superseded by a later write to the same target, and returns how many will
// be sent. Duplicates of a mutation still in flight are absorbed by its
// idempotency key.
func (d *Dispatcher) Resend() (int, error) {
	pending, err := d.latestPending()
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	d.mu.Lock()
	d.backlog = true
	d.signal()
	d.mu.Unlock()
	return len(pending), nil
}

func (d *Dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// latestPending lists the pending store in submission order and deletes
// every entry a later write to the same target supersedes
func (d *Dispatcher) latestPending() ([]Mutation, error) {
	pending, err := d.store.ListPending()
	if err != nil {
		return nil, err
	}

	latest := make(map[string]uint64, len(pending))
	for _, m := range pending {
		latest[m.Target()] = m.Seq
	}

	kept := pending[:0]
	for _, m := range pending {
		if latest[m.Target()] != m.Seq {
			if err := d.store.DeletePending(m); err != nil {
				return nil, err
			}
			continue
		}
		kept = append(kept, m)
	}
	return kept, nil
}

// Run sends queued mutations until ctx is done
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-d.queue:
			if err := d.deliver(ctx, m); err != nil {
				return err
			}
		case <-d.wake:
			if err := d.catchUp(ctx); err != nil {
				return err
			}
		}
	}
}

// catchUp empties the queue, then sends what waits in the pending store until
// nothing is left. Each mutation goes out at most once per pass, so a
// retryable failure waits for the next Resend.
func (d *Dispatcher) catchUp(ctx context.Context) error {
	handled := make(map[uint64]bool)
	for len(d.queue) > 0 {
		m := <-d.queue
		handled[m.Seq] = true
		if err := d.deliver(ctx, m); err != nil {
			return err
		}
	}

	for {
		pending, err := d.latestPending()
		if err != nil {
			d.logger.WithError(err).Warn("Failed to list pending mirrors")
			return nil
		}

		sent := 0
		for _, m := range pending {
			if handled[m.Seq] {
				continue
			}
			handled[m.Seq] = true
			sent++
			if err := d.deliver(ctx, m); err != nil {
				return err
			}
		}
		if sent > 0 {
			continue
		}

		d.mu.Lock()
		d.backlog = false
		d.mu.Unlock()
		return nil
	}
}

func (d *Dispatcher) deliver(ctx context.Context, m Mutation) error {
	result := d.send(ctx, m)
	select {
	case d.results <- result:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) send(ctx context.Context, m Mutation) Result {
	ctx = logging.ContextWithCorrelationID(ctx, m.ID)
	result := Result{Mutation: m}

	var err error
	switch m.Kind {
	case MutationUpdateItem:
		result.Update, err = d.mirror.UpdateItem(ctx, m.ID, *m.Update)
	case MutationRelease:
		result.Unit, err = d.mirror.Release(ctx, m.ID, m.UnitID, m.ResetProgress)
	case MutationConfirmCount:
		result.Count, err = d.mirror.ConfirmCount(ctx, m.ID, *m.Count)
	case MutationSkipCount:
		result.Count, err = d.mirror.SkipReplenishment(ctx, m.ID, *m.Count)
	default:
		err = fmt.Errorf("unknown mutation kind %q", m.Kind)
	}

	if err != nil {
		failure := &MirrorFailure{Mutation: m, Err: err, Retryable: Retryable(err)}
		d.logger.WithError(err).Warn("Mirror failed",
			"kind", m.Kind,
			"unitId", m.UnitID,
			"retryable", failure.Retryable,
		)
		if !failure.Retryable {
			d.forget(m)
		}
		return Result{Mutation: m, Failure: failure}
	}

	d.settle(m)
	return result
}

// settle drops m and any older pending write to the same target, which m has
// made obsolete
func (d *Dispatcher) settle(m Mutation) {
	pending, err := d.store.ListPending()
	if err != nil {
		d.logger.WithError(err).Warn("Failed to list pending mirrors")
		d.forget(m)
		return
	}
	target := m.Target()
	for _, p := range pending {
		if p.Seq <= m.Seq && p.Target() == target {
			d.forget(p)
		}
	}
}

func (d *Dispatcher) forget(m Mutation) {
	if err := d.store.DeletePending(m); err != nil {
		d.logger.WithError(err).Warn("Failed to delete pending mirror", "seq", m.Seq)
	}
}
