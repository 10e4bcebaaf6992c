/*
capacity.go - Admission evaluation for reservations

PURPOSE:
  Pure decision function: given a record snapshot and the actor asking
  to reserve, decide whether admission is allowed and what the record's
  status becomes if it is. The ledger applies this inside its transaction;
  no other code path may admit a member.

DECISION ORDER:
  1. DUPLICATE  - actor already holds a reservation
  2. CLOSED     - status is not open (full, cancelled, completed, expired)
  3. EXPIRED    - deadline has passed, even if the stored status lags

THRESHOLD:
  Admission of member N where N == CapacityTarget flips the record to
  threshold_reached. The same rule serves both mechanisms:
  - group orders: target = participants needed for the bulk deal
  - slots: target = max concurrent bookings (e.g. 3 per laundry window)

SEE ALSO:
  - expiry.go: Deadline evaluation
  - ledger.go: Applies the Admission result transactionally
*/
package booking

import "time"

// Reason classifies why an admission was rejected.
type Reason string

const (
	ReasonDuplicate Reason = "DUPLICATE"
	ReasonClosed    Reason = "CLOSED"
	ReasonExpired   Reason = "EXPIRED"
)

// Admission is the outcome of evaluating a reservation attempt.
type Admission struct {
	Accepted  bool
	Reason    Reason // set when rejected
	NewCount  int    // count after admission, when accepted
	NewStatus Status // status after admission, when accepted
}

// EvaluateAdmission decides whether actor may reserve against the given
// record snapshot. Pure: the caller commits the result (or the rejection)
// inside the same transaction that produced the snapshot.
func EvaluateAdmission(r Record, actor ActorID, now time.Time) Admission {
	if r.HasMember(actor) {
		return Admission{Reason: ReasonDuplicate}
	}
	if r.Status != StatusOpen {
		return Admission{Reason: ReasonClosed}
	}
	if IsExpired(r, now) {
		return Admission{Reason: ReasonExpired}
	}

	newCount := r.CurrentCount + 1
	newStatus := StatusOpen
	if newCount >= r.CapacityTarget {
		newStatus = StatusThresholdReached
	}
	return Admission{Accepted: true, NewCount: newCount, NewStatus: newStatus}
}
