/*
sweeper.go - Background expiry state machine

PURPOSE:
  Flips lapsed open records to expired. Two cooperating mechanisms, both
  deliberately kept (belt and suspenders):

  1. PERIODIC SWEEP: a fixed-interval pass over open records with a past
     deadline. Guarantees eventual correctness even with zero
     subscribers anywhere in the system.
  2. LIVE OBSERVATION: a store subscription over open records; every
     change notification re-evaluates expiry for the delivered snapshot
     and opportunistically flips newly-lapsed records, so active clients
     see flips without waiting for the next tick.

SAFETY:
  Both paths use TransitionStatus(open -> expired), a status-only
  compare-and-set that is idempotent and can only narrow what future
  operations are allowed. Racing with Reserve is safe by construction:
  the ledger re-checks expiry inside its own transaction, so a late flip
  can only make a reserve fail, never let one through.

ERRORS:
  A failed flip is logged and skipped; the sweep of remaining records
  continues and the next cycle self-heals.

LIFECYCLE:
  sweeper := NewExpirySweeper(store)
  sweeper.Start()
  defer sweeper.Stop()

SEE ALSO:
  - expiry.go: The shared lapse predicate
  - catalog.go: Read-side consumer of the same subscription primitive
*/
package booking

import (
	"context"
	"log"
	"sync"
	"time"
)

// DefaultSweepInterval is how often the background pass runs.
const DefaultSweepInterval = time.Minute

// ExpirySweeper owns the open -> expired transition.
type ExpirySweeper struct {
	Store    Store
	Interval time.Duration
	Clock    func() time.Time

	mu      sync.Mutex
	ticker  *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
	sub     Subscription
	started bool

	// flipped dedupes redundant live-observation writes: once a flip has
	// been issued for an ID it is skipped until the record leaves the
	// open snapshot. Flipping twice would still be harmless (the CAS is
	// idempotent), this just avoids write noise.
	flipped map[RecordID]struct{}
}

func NewExpirySweeper(store Store) *ExpirySweeper {
	return &ExpirySweeper{
		Store:    store,
		Interval: DefaultSweepInterval,
		Clock:    time.Now,
		flipped:  make(map[RecordID]struct{}),
	}
}

// Start launches the periodic sweep and the live-observation
// subscription. Calling Start on a running sweeper is a no-op.
func (s *ExpirySweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.started = true
	s.stop = make(chan struct{})
	s.ticker = time.NewTicker(s.Interval)

	sub, err := s.Store.Subscribe(
		Filter{Statuses: []Status{StatusOpen}, OrderBy: OrderByDeadlineAsc},
		s.observe,
		func(err error) { log.Printf("[Sweeper] observation stalled: %v", err) },
	)
	if err != nil {
		log.Printf("[Sweeper] live observation unavailable: %v", err)
	} else {
		s.sub = sub
	}

	s.wg.Add(1)
	go s.run()

	log.Printf("[Sweeper] Started with interval %v", s.Interval)
}

// Stop cancels the timer, tears down the subscription, and waits for
// the sweep goroutine to exit.
func (s *ExpirySweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.started = false

	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	if s.sub != nil {
		s.sub.Unsubscribe()
		s.sub = nil
	}
	log.Println("[Sweeper] Stopped")
}

func (s *ExpirySweeper) run() {
	defer s.wg.Done()

	// Sweep immediately on start, then on every tick.
	s.sweep()

	for {
		select {
		case <-s.ticker.C:
			s.sweep()
		case <-s.stop:
			return
		}
	}
}

func (s *ExpirySweeper) sweep() {
	flipped, err := s.SweepNow(context.Background())
	if err != nil {
		log.Printf("[Sweeper] sweep error: %v", err)
	}
	if flipped > 0 {
		log.Printf("[Sweeper] flipped %d expired record(s)", flipped)
	}
}

// SweepNow runs one periodic pass: query open records with a past
// deadline and flip each one. Per-record failures are logged, never
// fatal. Returns the number of records actually flipped. Idempotent:
// a second pass with no intervening writes flips nothing.
func (s *ExpirySweeper) SweepNow(ctx context.Context) (int, error) {
	now := s.Clock()
	lapsed, err := s.Store.Query(ctx, Filter{
		Statuses:       []Status{StatusOpen},
		DeadlineBefore: &now,
		OrderBy:        OrderByDeadlineAsc,
	})
	if err != nil {
		return 0, err
	}

	flipped := 0
	for _, rec := range lapsed {
		did, err := s.Store.TransitionStatus(ctx, rec.ID, StatusOpen, StatusExpired)
		if err != nil {
			log.Printf("[Sweeper] flip failed for %s: %v", rec.ID, err)
			continue
		}
		if did {
			flipped++
		}
	}
	return flipped, nil
}

// observe is the live-observation path: re-evaluate expiry over the
// delivered open-record snapshot and flip anything newly lapsed.
func (s *ExpirySweeper) observe(records []Record) {
	now := s.Clock()
	ctx := context.Background()

	present := make(map[RecordID]struct{}, len(records))
	for _, rec := range records {
		present[rec.ID] = struct{}{}

		if rec.Status != StatusOpen || !IsExpired(rec, now) {
			continue
		}

		s.mu.Lock()
		_, already := s.flipped[rec.ID]
		if !already {
			s.flipped[rec.ID] = struct{}{}
		}
		s.mu.Unlock()
		if already {
			continue
		}

		if _, err := s.Store.TransitionStatus(ctx, rec.ID, StatusOpen, StatusExpired); err != nil {
			log.Printf("[Sweeper] live flip failed for %s: %v", rec.ID, err)
		}
	}

	// Prune dedup entries for records that left the open snapshot.
	s.mu.Lock()
	for id := range s.flipped {
		if _, ok := present[id]; !ok {
			delete(s.flipped, id)
		}
	}
	s.mu.Unlock()
}
