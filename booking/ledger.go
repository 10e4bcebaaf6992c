/*
ledger.go - The transactional reservation core

PURPOSE:
  ReservationLedger is the ONLY code allowed to mutate membership state.
  Every reservation is an atomic read-validate-write against the store:
  read a snapshot, evaluate admission + expiry against that snapshot,
  and commit the new membership in the same transaction - or abort with
  no write at all.

CRITICAL INVARIANTS:
  1. REJECTION NEVER MUTATES: a rejected reserve leaves the record
     byte-identical to before the call.
  2. NO LOST UPDATES: two transactions can never both observe count=k
     and both commit k+1. The store's conflict detection plus the
     bounded retry loop guarantee serialization per record.
  3. THRESHOLD EXACTNESS: the transition to threshold_reached happens in
     the same commit as the reservation that reaches CapacityTarget.
  4. DEADLINE DEFENSE IN DEPTH: expiry is re-checked inside the
     transaction, so a sweep racing with a reserve can only make the
     reserve fail, never let it through incorrectly.

CREATION POLICY:
  Order-kind records auto-enroll the creator (count starts at 1); slot
  kind records start empty (creating a slot and booking it are distinct
  actions). This is kind-keyed and consistent across the system.

CANCELLATION POLICY:
  Cancelling a reservation that pulled a threshold_reached record back
  below target reverts the record to open: it is genuinely bookable
  again and the status field must not lie.

SEE ALSO:
  - capacity.go: EvaluateAdmission
  - store.go: RunAtomic contract
  - sweeper.go: The status-only expiry writer
*/
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultMaxRetries bounds the optimistic-conflict retry loop. After
// this many conflicting attempts the caller gets ErrConflict instead of
// blocking indefinitely.
const DefaultMaxRetries = 3

// ReservationLedger performs all membership writes.
type ReservationLedger struct {
	Store      Store
	MaxRetries int

	// Clock is injectable for tests. Defaults to time.Now.
	Clock func() time.Time
}

func NewLedger(store Store) *ReservationLedger {
	return &ReservationLedger{
		Store:      store,
		MaxRetries: DefaultMaxRetries,
		Clock:      time.Now,
	}
}

// =============================================================================
// CREATE
// =============================================================================

// Create validates and inserts a new record. A plain insert: there is
// nothing to race with before the record exists.
func (l *ReservationLedger) Create(ctx context.Context, r Record) (RecordID, error) {
	now := l.Clock()

	if !r.Kind.Valid() {
		return "", fmt.Errorf("%w: unknown record kind %q", ErrValidation, r.Kind)
	}
	if r.OwnerID == "" {
		return "", fmt.Errorf("%w: owner required", ErrValidation)
	}
	if r.CapacityTarget < 1 {
		return "", fmt.Errorf("%w: capacity target must be >= 1", ErrValidation)
	}
	if r.Deadline != nil && !r.Deadline.After(now) {
		return "", fmt.Errorf("%w: deadline must be in the future", ErrValidation)
	}

	r.Status = StatusOpen
	r.CreatedAt = now
	switch r.Kind {
	case KindOrder:
		// Creator counts as the first participant.
		r.MemberIDs = []ActorID{r.OwnerID}
		r.CurrentCount = 1
	default:
		r.MemberIDs = nil
		r.CurrentCount = 0
	}

	return l.Store.Insert(ctx, r)
}

// =============================================================================
// RESERVE
// =============================================================================

// Reserve atomically admits actor to the record, or returns a typed
// rejection with no state change. Conflicting concurrent writes are
// retried from a fresh snapshot up to MaxRetries times.
func (l *ReservationLedger) Reserve(ctx context.Context, id RecordID, actor ActorID) error {
	if actor == "" {
		return fmt.Errorf("%w: actor required", ErrValidation)
	}

	return l.withRetry(ctx, func(txn Txn) error {
		rec, err := txn.Get(id)
		if err != nil {
			return l.wrap(err, id, actor)
		}

		adm := EvaluateAdmission(rec, actor, l.Clock())
		if !adm.Accepted {
			// Returning an error aborts the transaction: no write occurs.
			return &BookingError{Err: reasonError(adm.Reason), RecordID: id, ActorID: actor}
		}

		rec.CurrentCount = adm.NewCount
		rec.MemberIDs = append(rec.MemberIDs, actor)
		rec.Status = adm.NewStatus
		return txn.Update(rec)
	}, id, actor)
}

// =============================================================================
// CANCEL
// =============================================================================

// Cancel removes the actor's own reservation. Works only while the
// record is non-terminal; a threshold_reached record dropping below
// target reverts to open.
func (l *ReservationLedger) Cancel(ctx context.Context, id RecordID, actor ActorID) error {
	if actor == "" {
		return fmt.Errorf("%w: actor required", ErrValidation)
	}

	return l.withRetry(ctx, func(txn Txn) error {
		rec, err := txn.Get(id)
		if err != nil {
			return l.wrap(err, id, actor)
		}
		if rec.Status.Terminal() {
			return &BookingError{Err: ErrClosed, RecordID: id, ActorID: actor}
		}
		if !rec.HasMember(actor) {
			return &BookingError{Err: ErrNotMember, RecordID: id, ActorID: actor}
		}

		members := make([]ActorID, 0, len(rec.MemberIDs)-1)
		for _, m := range rec.MemberIDs {
			if m != actor {
				members = append(members, m)
			}
		}
		rec.MemberIDs = members
		rec.CurrentCount = len(members)
		if rec.Status == StatusThresholdReached && rec.CurrentCount < rec.CapacityTarget {
			rec.Status = StatusOpen
		}
		return txn.Update(rec)
	}, id, actor)
}

// CompleteRecord marks a fulfilled record completed. Owner-only, and
// only from threshold_reached: an open record has not met its target
// and a terminal one is already settled.
func (l *ReservationLedger) CompleteRecord(ctx context.Context, id RecordID, actor ActorID) error {
	if actor == "" {
		return fmt.Errorf("%w: actor required", ErrValidation)
	}

	return l.withRetry(ctx, func(txn Txn) error {
		rec, err := txn.Get(id)
		if err != nil {
			return l.wrap(err, id, actor)
		}
		if rec.OwnerID != actor {
			return &BookingError{Err: ErrNotOwner, RecordID: id, ActorID: actor}
		}
		if rec.Status != StatusThresholdReached {
			return &BookingError{Err: ErrClosed, RecordID: id, ActorID: actor}
		}
		rec.Status = StatusCompleted
		return txn.Update(rec)
	}, id, actor)
}

// CancelRecord terminates a whole record. Owner-only; terminal records
// stay as they are.
func (l *ReservationLedger) CancelRecord(ctx context.Context, id RecordID, actor ActorID) error {
	if actor == "" {
		return fmt.Errorf("%w: actor required", ErrValidation)
	}

	return l.withRetry(ctx, func(txn Txn) error {
		rec, err := txn.Get(id)
		if err != nil {
			return l.wrap(err, id, actor)
		}
		if rec.OwnerID != actor {
			return &BookingError{Err: ErrNotOwner, RecordID: id, ActorID: actor}
		}
		if rec.Status.Terminal() {
			return &BookingError{Err: ErrClosed, RecordID: id, ActorID: actor}
		}
		rec.Status = StatusCancelled
		return txn.Update(rec)
	}, id, actor)
}

// =============================================================================
// RETRY LOOP
// =============================================================================

// withRetry runs fn inside RunAtomic, retrying from a fresh snapshot on
// serialization conflicts. Rejections pass through untouched; only
// store-level conflicts are retried, and only MaxRetries times.
func (l *ReservationLedger) withRetry(ctx context.Context, fn func(Txn) error, id RecordID, actor ActorID) error {
	retries := l.MaxRetries
	if retries < 1 {
		retries = 1
	}

	var err error
	for attempt := 0; attempt < retries; attempt++ {
		err = l.Store.RunAtomic(ctx, fn)
		if err == nil || !errors.Is(err, ErrConflict) {
			return err
		}
	}
	return &BookingError{Err: ErrConflict, RecordID: id, ActorID: actor}
}

func (l *ReservationLedger) wrap(err error, id RecordID, actor ActorID) error {
	if errors.Is(err, ErrNotFound) {
		return &BookingError{Err: ErrNotFound, RecordID: id, ActorID: actor}
	}
	return err
}
