/*
Package store provides the in-memory booking.Store implementation.

PURPOSE:
  Reference implementation of the store contract for tests and dev.
  Concurrency control is optimistic: every record carries a version, a
  transaction remembers the versions it read, and commit fails with
  ErrConflict if any of them moved. That mirrors what the SQLite store
  does with its version column, so engine tests exercise the same
  semantics either way.

SUBSCRIPTIONS:
  Level-triggered. Each subscriber owns a delivery goroutine fed by a
  small channel; on every committed write the full matching result set
  is recomputed and pushed. When the subscriber is slow the oldest
  pending view is dropped - only the latest view matters. Unsubscribe
  signals the goroutine and stops delivery immediately.

SEE ALSO:
  - booking/store.go: The contract
  - store/sqlite: The persistent implementation
*/
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/dormhub/booking-engine/booking"
)

// Memory is an in-memory booking.Store.
type Memory struct {
	mu      sync.RWMutex
	records map[booking.RecordID]booking.Record

	subMu   sync.Mutex
	subs    map[int]*subscriber
	nextSub int
}

func NewMemory() *Memory {
	return &Memory{
		records: make(map[booking.RecordID]booking.Record),
		subs:    make(map[int]*subscriber),
	}
}

// =============================================================================
// BASIC OPERATIONS
// =============================================================================

func (m *Memory) Get(_ context.Context, id booking.RecordID) (booking.Record, error) {
	m.mu.RLock()
	rec, ok := m.records[id]
	m.mu.RUnlock()
	if !ok {
		return booking.Record{}, booking.ErrNotFound
	}
	return rec.Clone(), nil
}

func (m *Memory) Insert(_ context.Context, r booking.Record) (booking.RecordID, error) {
	if r.ID == "" {
		r.ID = booking.RecordID(uuid.NewString())
	}
	r.Version = 1

	m.mu.Lock()
	m.records[r.ID] = r.Clone()
	m.mu.Unlock()

	m.notify()
	return r.ID, nil
}

func (m *Memory) Query(_ context.Context, f booking.Filter) ([]booking.Record, error) {
	m.mu.RLock()
	var out []booking.Record
	for _, rec := range m.records {
		if f.Matches(rec) {
			out = append(out, rec.Clone())
		}
	}
	m.mu.RUnlock()

	booking.SortRecords(out, f.OrderBy)
	return out, nil
}

// TransitionStatus is the status-only compare-and-set used by the
// expiry sweep. A record not in `from` is left untouched: (false, nil).
func (m *Memory) TransitionStatus(_ context.Context, id booking.RecordID, from, to booking.Status) (bool, error) {
	m.mu.Lock()
	rec, ok := m.records[id]
	if !ok {
		m.mu.Unlock()
		return false, booking.ErrNotFound
	}
	if rec.Status != from {
		m.mu.Unlock()
		return false, nil
	}
	rec.Status = to
	rec.Version++
	m.records[id] = rec
	m.mu.Unlock()

	m.notify()
	return true, nil
}

// =============================================================================
// TRANSACTIONS - Optimistic snapshot isolation
// =============================================================================

// RunAtomic executes fn against a snapshot view. Reads are tracked by
// version; writes are staged. Commit validates that every record read
// is still at its observed version and applies all staged writes under
// one lock, or fails with ErrConflict and applies nothing.
func (m *Memory) RunAtomic(_ context.Context, fn func(booking.Txn) error) error {
	txn := &memTxn{
		store:  m,
		reads:  make(map[booking.RecordID]int64),
		writes: make(map[booking.RecordID]booking.Record),
	}

	if err := fn(txn); err != nil {
		// Abort: nothing staged is applied.
		return err
	}

	m.mu.Lock()
	for id, version := range txn.reads {
		current, ok := m.records[id]
		if !ok || current.Version != version {
			m.mu.Unlock()
			return booking.ErrConflict
		}
	}
	changed := false
	for id, rec := range txn.writes {
		rec.Version = m.records[id].Version + 1
		m.records[id] = rec.Clone()
		changed = true
	}
	m.mu.Unlock()

	if changed {
		m.notify()
	}
	return nil
}

type memTxn struct {
	store  *Memory
	reads  map[booking.RecordID]int64
	writes map[booking.RecordID]booking.Record
}

func (t *memTxn) Get(id booking.RecordID) (booking.Record, error) {
	if staged, ok := t.writes[id]; ok {
		return staged.Clone(), nil
	}

	t.store.mu.RLock()
	rec, ok := t.store.records[id]
	t.store.mu.RUnlock()
	if !ok {
		return booking.Record{}, booking.ErrNotFound
	}

	t.reads[id] = rec.Version
	return rec.Clone(), nil
}

func (t *memTxn) Update(r booking.Record) error {
	if _, read := t.reads[r.ID]; !read {
		// Blind writes would defeat conflict detection.
		if _, staged := t.writes[r.ID]; !staged {
			return booking.ErrNotFound
		}
	}
	t.writes[r.ID] = r.Clone()
	return nil
}

// =============================================================================
// SUBSCRIPTIONS - Level-triggered full-view delivery
// =============================================================================

type subscriber struct {
	filter   booking.Filter
	onChange func([]booking.Record)
	onError  func(error)
	views    chan []booking.Record
	stop     chan struct{}
	once     sync.Once
}

type memSubscription struct {
	store *Memory
	id    int
	sub   *subscriber
}

func (s *memSubscription) Unsubscribe() {
	s.sub.once.Do(func() {
		s.store.subMu.Lock()
		delete(s.store.subs, s.id)
		s.store.subMu.Unlock()
		close(s.sub.stop)
	})
}

// Subscribe registers a level-triggered observer. The current matching
// view is delivered once immediately, then again after every committed
// write.
func (m *Memory) Subscribe(f booking.Filter, onChange func([]booking.Record), onError func(error)) (booking.Subscription, error) {
	sub := &subscriber{
		filter:   f,
		onChange: onChange,
		onError:  onError,
		views:    make(chan []booking.Record, 8),
		stop:     make(chan struct{}),
	}

	m.subMu.Lock()
	m.nextSub++
	id := m.nextSub
	m.subs[id] = sub
	m.subMu.Unlock()

	go sub.deliver()

	// Initial view.
	view, _ := m.Query(context.Background(), f)
	sub.push(view)

	return &memSubscription{store: m, id: id, sub: sub}, nil
}

func (s *subscriber) push(view []booking.Record) {
	select {
	case s.views <- view:
	default:
		// Slow subscriber: drop the oldest pending view. Level-triggered
		// delivery only needs the latest state to arrive.
		select {
		case <-s.views:
		default:
		}
		select {
		case s.views <- view:
		default:
		}
	}
}

func (s *subscriber) deliver() {
	for {
		select {
		case <-s.stop:
			return
		case view := <-s.views:
			select {
			case <-s.stop:
				return
			default:
			}
			s.invoke(view)
		}
	}
}

// invoke shields the delivery loop from a panicking callback: the error
// handler is told and the subscription is considered stalled, but the
// process survives.
func (s *subscriber) invoke(view []booking.Record) {
	defer func() {
		if r := recover(); r != nil && s.onError != nil {
			s.onError(fmt.Errorf("subscriber callback panic: %v", r))
		}
	}()
	s.onChange(view)
}

func (m *Memory) notify() {
	m.subMu.Lock()
	subs := make([]*subscriber, 0, len(m.subs))
	for _, s := range m.subs {
		subs = append(subs, s)
	}
	m.subMu.Unlock()

	for _, s := range subs {
		view, err := m.Query(context.Background(), s.filter)
		if err != nil {
			if s.onError != nil {
				s.onError(err)
			}
			continue
		}
		s.push(view)
	}
}
