/*
Package booking provides the core reservation engine.

PURPOSE:
  This package contains the domain-agnostic types and algorithms for
  coordinating capacity-limited, deadline-bounded records. Whether the
  record is a vendor service slot, a laundry machine window, or a group
  bulk order, the same engine handles admission, threshold detection,
  and expiry.

KEY CONCEPTS IN THIS FILE (types.go):
  - Record: The one bookable entity, tagged by RecordKind
  - Status: The record lifecycle state machine
  - Filter/Ordering: Read-side query shapes shared by Query and Subscribe

DESIGN PRINCIPLES:
  1. One record type: slots and orders share admission/expiry logic,
     differing only in creation policy (see market package)
  2. Explicit identity: every operation takes an ActorID; the engine
     never reads ambient session state
  3. Status monotonicity: terminal states are never left

SEE ALSO:
  - capacity.go: Admission evaluation
  - expiry.go: Deadline evaluation
  - ledger.go: The transactional write path
  - store.go: Persistence interface
*/
package booking

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type RecordID string
type ActorID string

// RecordKind tags which creation policy produced a record.
// Admission and expiry logic are kind-independent.
type RecordKind string

const (
	// KindSlot is a bookable time window (service or laundry slot).
	// Creation and booking are distinct actions: CurrentCount starts at 0.
	KindSlot RecordKind = "slot"

	// KindOrder is a threshold-gated group purchase.
	// The creator is auto-enrolled: CurrentCount starts at 1.
	KindOrder RecordKind = "order"
)

func (k RecordKind) Valid() bool { return k == KindSlot || k == KindOrder }

// =============================================================================
// STATUS - Record lifecycle state machine
// =============================================================================

type Status string

const (
	StatusOpen             Status = "open"
	StatusThresholdReached Status = "threshold_reached"
	StatusExpired          Status = "expired"
	StatusCompleted        Status = "completed"
	StatusCancelled        Status = "cancelled"
)

// Terminal reports whether a status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusExpired || s == StatusCompleted || s == StatusCancelled
}

// =============================================================================
// RECORD - The bookable entity
// =============================================================================

// Record is a capacity-limited, deadline-bounded bookable entity.
//
// INVARIANTS (enforced by the ReservationLedger):
//   - len(MemberIDs) == CurrentCount
//   - CurrentCount <= CapacityTarget for every committed reservation
//   - Status transitions are monotonic; terminal states are final
//   - A record past its Deadline never accepts a reservation, regardless
//     of what the stored Status field says
type Record struct {
	ID             RecordID
	Kind           RecordKind
	OwnerID        ActorID
	CapacityTarget int
	CurrentCount   int
	MemberIDs      []ActorID
	Deadline       *time.Time
	Status         Status
	CreatedAt      time.Time

	// Presentation metadata. The engine never branches on these fields;
	// they exist for the read-side catalogs and the market wrappers.
	VendorID    string
	ServiceType string
	Location    string
	Date        string
	TimeSlot    string
	Title       string
	Author      string
	UnitPrice   decimal.Decimal

	// Version is managed by the store for optimistic concurrency.
	// Callers never set it.
	Version int64
}

// HasMember reports whether actor already holds a reservation.
func (r Record) HasMember(actor ActorID) bool {
	for _, m := range r.MemberIDs {
		if m == actor {
			return true
		}
	}
	return false
}

// Clone returns a deep copy, so stores can hand out records without
// sharing the member slice.
func (r Record) Clone() Record {
	out := r
	if r.MemberIDs != nil {
		out.MemberIDs = append([]ActorID(nil), r.MemberIDs...)
	}
	return out
}

// =============================================================================
// FILTER / ORDERING - Read-side query shapes
// =============================================================================

type Ordering int

const (
	OrderByCreatedAtDesc Ordering = iota
	OrderByCreatedAtAsc
	OrderByDeadlineAsc
)

// Filter selects records for Query and Subscribe. Zero values mean
// "match everything": an empty Kind matches both kinds, an empty
// Statuses slice matches every status.
type Filter struct {
	Kind           RecordKind
	Statuses       []Status
	DeadlineBefore *time.Time
	OrderBy        Ordering
}

// Matches reports whether the record satisfies the filter.
func (f Filter) Matches(r Record) bool {
	if f.Kind != "" && r.Kind != f.Kind {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if r.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.DeadlineBefore != nil {
		if r.Deadline == nil || !r.Deadline.Before(*f.DeadlineBefore) {
			return false
		}
	}
	return true
}

// SortRecords orders records in place according to the requested ordering.
// Records with no deadline sort last under OrderByDeadlineAsc.
func SortRecords(records []Record, by Ordering) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		switch by {
		case OrderByCreatedAtAsc:
			return a.CreatedAt.Before(b.CreatedAt)
		case OrderByDeadlineAsc:
			switch {
			case a.Deadline == nil:
				return false
			case b.Deadline == nil:
				return true
			default:
				return a.Deadline.Before(*b.Deadline)
			}
		default: // OrderByCreatedAtDesc
			return a.CreatedAt.After(b.CreatedAt)
		}
	})
}
