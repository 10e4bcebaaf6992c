/*
store.go - Persistence interface for records

PURPOSE:
  Defines the contract between the engine and the document store. The
  engine's concurrency correctness rests entirely on RunAtomic: many
  independent processes may call Reserve against the same record, and
  the store's transaction primitive must serialize them.

CONTRACT:
  RunAtomic(fn):
    fn observes a consistent snapshot via Txn.Get and stages writes via
    Txn.Update. Commit is all-or-nothing. If a concurrent transaction
    committed a conflicting write, RunAtomic fails with an error that
    satisfies errors.Is(err, ErrConflict) and NOTHING is applied. If fn
    returns an error, nothing is applied either - rejections never
    mutate state.

  TransitionStatus(id, from, to):
    Lightweight status-only compare-and-set used by the expiry sweep.
    Idempotent: returns (false, nil) when the record is no longer in
    `from`. This can only narrow future operations (open -> expired), so
    it needs no full transaction and races safely with Reserve.

  Subscribe(filter, onChange, onError):
    Level-triggered: onChange receives the COMPLETE current matching set
    on every underlying change (plus once on subscription), never a
    diff. Delivery errors go to onError; the subscription should then be
    considered stalled and may be re-established. Unsubscribe stops
    callbacks immediately and releases all resources.

IMPLEMENTATIONS:
  - booking/store: in-memory, optimistic versioning (tests/dev)
  - store/sqlite:  SQLite with a version column, WAL mode

SEE ALSO:
  - ledger.go: The only writer of membership state
  - sweeper.go: The only writer of open -> expired
*/
package booking

import "context"

// Txn is the consistent view inside RunAtomic.
type Txn interface {
	// Get reads a record from the transaction's snapshot.
	Get(id RecordID) (Record, error)

	// Update stages a full-record write. Applied only on commit.
	Update(r Record) error
}

// Subscription is the handle returned by Subscribe.
type Subscription interface {
	// Unsubscribe stops delivery immediately and releases resources.
	// Safe to call more than once.
	Unsubscribe()
}

// Store is the abstract transactional document store the engine runs on.
type Store interface {
	// Get returns a point-in-time copy of a record, or ErrNotFound.
	Get(ctx context.Context, id RecordID) (Record, error)

	// Insert assigns an ID (when empty) and persists a new record.
	Insert(ctx context.Context, r Record) (RecordID, error)

	// RunAtomic executes fn against a consistent snapshot and commits
	// its staged writes atomically. See the contract above.
	RunAtomic(ctx context.Context, fn func(Txn) error) error

	// Query returns a point-in-time result set for the filter, sorted
	// per its ordering.
	Query(ctx context.Context, f Filter) ([]Record, error)

	// TransitionStatus flips status from -> to iff the record currently
	// has status `from`. Returns whether a flip happened.
	TransitionStatus(ctx context.Context, id RecordID, from, to Status) (bool, error)

	// Subscribe registers a level-triggered observer for the filter.
	Subscribe(f Filter, onChange func([]Record), onError func(error)) (Subscription, error)
}
