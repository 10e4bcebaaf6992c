package booking_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dormhub/booking-engine/booking"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func openRecord(target, count int, deadline time.Time) booking.Record {
	d := deadline
	members := make([]booking.ActorID, count)
	for i := range members {
		members[i] = booking.ActorID("member-" + string(rune('a'+i)))
	}
	return booking.Record{
		ID:             "rec-1",
		Kind:           booking.KindSlot,
		OwnerID:        "owner",
		CapacityTarget: target,
		CurrentCount:   count,
		MemberIDs:      members,
		Deadline:       &d,
		Status:         booking.StatusOpen,
	}
}

// =============================================================================
// ADMISSION
// =============================================================================

func TestEvaluateAdmission_AcceptsBelowTarget(t *testing.T) {
	// GIVEN: An open record with room to spare
	// WHEN: A new actor asks to reserve
	// THEN: Accepted, status stays open

	now := time.Now()
	rec := openRecord(3, 1, now.Add(time.Hour))

	adm := booking.EvaluateAdmission(rec, "actor-new", now)

	assert.True(t, adm.Accepted)
	assert.Equal(t, 2, adm.NewCount)
	assert.Equal(t, booking.StatusOpen, adm.NewStatus)
}

func TestEvaluateAdmission_ThresholdFlipsInSameDecision(t *testing.T) {
	// GIVEN: An open record one reservation short of its target
	// WHEN: The final actor asks to reserve
	// THEN: Accepted, and the new status is threshold_reached

	now := time.Now()
	rec := openRecord(3, 2, now.Add(time.Hour))

	adm := booking.EvaluateAdmission(rec, "actor-new", now)

	assert.True(t, adm.Accepted)
	assert.Equal(t, 3, adm.NewCount)
	assert.Equal(t, booking.StatusThresholdReached, adm.NewStatus)
}

func TestEvaluateAdmission_DuplicateWinsOverEverything(t *testing.T) {
	// GIVEN: A record that is both full and past deadline, holding the actor
	// WHEN: The same actor asks again
	// THEN: The rejection reason is DUPLICATE, not CLOSED or EXPIRED

	now := time.Now()
	rec := openRecord(1, 1, now.Add(-time.Hour))
	rec.Status = booking.StatusThresholdReached

	adm := booking.EvaluateAdmission(rec, rec.MemberIDs[0], now)

	assert.False(t, adm.Accepted)
	assert.Equal(t, booking.ReasonDuplicate, adm.Reason)
}

func TestEvaluateAdmission_ClosedBeforeExpired(t *testing.T) {
	// GIVEN: A full record whose deadline has also passed
	// WHEN: A new actor asks to reserve
	// THEN: The rejection reason is CLOSED (status check precedes deadline)

	now := time.Now()
	rec := openRecord(1, 1, now.Add(-time.Hour))
	rec.Status = booking.StatusThresholdReached

	adm := booking.EvaluateAdmission(rec, "actor-new", now)

	assert.False(t, adm.Accepted)
	assert.Equal(t, booking.ReasonClosed, adm.Reason)
}

func TestEvaluateAdmission_ExpiredEvenWhileStatusLagsOpen(t *testing.T) {
	// GIVEN: A record still marked open whose deadline just passed
	// WHEN: A new actor asks to reserve before any sweep has run
	// THEN: The rejection reason is EXPIRED

	now := time.Now()
	rec := openRecord(3, 0, now.Add(-time.Second))

	adm := booking.EvaluateAdmission(rec, "actor-new", now)

	assert.False(t, adm.Accepted)
	assert.Equal(t, booking.ReasonExpired, adm.Reason)
}

func TestEvaluateAdmission_CancelledIsClosed(t *testing.T) {
	now := time.Now()
	rec := openRecord(3, 0, now.Add(time.Hour))
	rec.Status = booking.StatusCancelled

	adm := booking.EvaluateAdmission(rec, "actor-new", now)

	assert.False(t, adm.Accepted)
	assert.Equal(t, booking.ReasonClosed, adm.Reason)
}

// =============================================================================
// EXPIRY PREDICATE
// =============================================================================

func TestIsExpired_DeadlineBoundary(t *testing.T) {
	now := time.Now()

	future := openRecord(3, 0, now.Add(time.Nanosecond))
	assert.False(t, booking.IsExpired(future, now), "deadline in the future is not lapsed")

	exact := openRecord(3, 0, now)
	assert.True(t, booking.IsExpired(exact, now), "deadline == now is lapsed")

	past := openRecord(3, 0, now.Add(-time.Nanosecond))
	assert.True(t, booking.IsExpired(past, now))
}

func TestIsExpired_NoDeadlineNeverLapses(t *testing.T) {
	now := time.Now()
	rec := openRecord(3, 0, now)
	rec.Deadline = nil

	assert.False(t, booking.IsExpired(rec, now))
}

func TestIsExpired_TerminalStates(t *testing.T) {
	now := time.Now()

	rec := openRecord(3, 0, now.Add(time.Hour))
	rec.Status = booking.StatusExpired
	assert.True(t, booking.IsExpired(rec, now), "expired status counts regardless of deadline")

	rec.Status = booking.StatusCompleted
	assert.True(t, booking.IsExpired(rec, now))

	// Cancelled is terminal for a different reason, not "expired".
	rec.Status = booking.StatusCancelled
	assert.False(t, booking.IsExpired(rec, now))
}
