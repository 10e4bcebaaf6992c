package booking_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dormhub/booking-engine/booking"
	"github.com/dormhub/booking-engine/booking/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// insertOpen bypasses the ledger so records with already-lapsed
// deadlines can be seeded.
func insertOpen(t *testing.T, mem *store.Memory, deadline time.Time) booking.RecordID {
	t.Helper()
	d := deadline
	id, err := mem.Insert(context.Background(), booking.Record{
		Kind:           booking.KindSlot,
		OwnerID:        "vendor-1",
		CapacityTarget: 3,
		Deadline:       &d,
		Status:         booking.StatusOpen,
		CreatedAt:      time.Now(),
	})
	require.NoError(t, err)
	return id
}

func recordStatus(t *testing.T, mem *store.Memory, id booking.RecordID) booking.Status {
	t.Helper()
	rec, err := mem.Get(context.Background(), id)
	require.NoError(t, err)
	return rec.Status
}

// =============================================================================
// PERIODIC SWEEP
// =============================================================================

func TestSweepNow_FlipsOnlyLapsedOpenRecords(t *testing.T) {
	// GIVEN: One lapsed open record, one future one, one cancelled one
	// WHEN: A sweep pass runs
	// THEN: Only the lapsed open record flips to expired

	mem := store.NewMemory()
	ctx := context.Background()

	lapsed := insertOpen(t, mem, time.Now().Add(-time.Minute))
	future := insertOpen(t, mem, time.Now().Add(time.Hour))
	cancelled := insertOpen(t, mem, time.Now().Add(-time.Minute))
	_, err := mem.TransitionStatus(ctx, cancelled, booking.StatusOpen, booking.StatusCancelled)
	require.NoError(t, err)

	sweeper := booking.NewExpirySweeper(mem)
	flipped, err := sweeper.SweepNow(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, flipped)
	assert.Equal(t, booking.StatusExpired, recordStatus(t, mem, lapsed))
	assert.Equal(t, booking.StatusOpen, recordStatus(t, mem, future))
	assert.Equal(t, booking.StatusCancelled, recordStatus(t, mem, cancelled))
}

func TestSweepNow_Idempotent(t *testing.T) {
	// GIVEN: A sweep that already flipped everything lapsed
	// WHEN: A second pass runs with no intervening writes
	// THEN: Nothing flips

	mem := store.NewMemory()
	ctx := context.Background()
	insertOpen(t, mem, time.Now().Add(-time.Minute))

	sweeper := booking.NewExpirySweeper(mem)

	flipped, err := sweeper.SweepNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, flipped)

	flipped, err = sweeper.SweepNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, flipped)
}

func TestSweeper_PeriodicLoopFlipsWithoutManualCalls(t *testing.T) {
	// GIVEN: A running sweeper with a short interval
	// WHEN: A record's deadline lapses
	// THEN: It flips to expired within a couple of ticks

	mem := store.NewMemory()
	lapsed := insertOpen(t, mem, time.Now().Add(20*time.Millisecond))

	sweeper := booking.NewExpirySweeper(mem)
	sweeper.Interval = 10 * time.Millisecond
	sweeper.Start()
	defer sweeper.Stop()

	assert.Eventually(t, func() bool {
		return recordStatus(t, mem, lapsed) == booking.StatusExpired
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSweeper_StartStopIsIdempotent(t *testing.T) {
	mem := store.NewMemory()
	sweeper := booking.NewExpirySweeper(mem)
	sweeper.Interval = time.Hour

	sweeper.Start()
	sweeper.Start() // no-op
	sweeper.Stop()
	sweeper.Stop() // no-op
}

// =============================================================================
// LIVE OBSERVATION
// =============================================================================

func TestSweeper_LiveObservationFlipsOnChange(t *testing.T) {
	// GIVEN: A running sweeper whose periodic tick is far in the future
	// WHEN: A write delivers a snapshot containing a lapsed open record
	// THEN: The observation path flips it without waiting for a tick

	mem := store.NewMemory()

	sweeper := booking.NewExpirySweeper(mem)
	sweeper.Interval = time.Hour
	sweeper.Start()
	defer sweeper.Stop()

	// Inserting after Start: the subscription, not the (distant) ticker,
	// must pick this up.
	lapsed := insertOpen(t, mem, time.Now().Add(-time.Minute))

	assert.Eventually(t, func() bool {
		return recordStatus(t, mem, lapsed) == booking.StatusExpired
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSweeper_RacingReserveCannotSlipThrough(t *testing.T) {
	// GIVEN: A lapsed record the sweeper has not flipped yet
	// WHEN: A reserve runs first and the sweep runs second (worst order)
	// THEN: The reserve still fails - expiry is enforced in the
	//       transaction - and the sweep still flips the status

	mem := store.NewMemory()
	ctx := context.Background()
	ledger := booking.NewLedger(mem)
	lapsed := insertOpen(t, mem, time.Now().Add(-time.Minute))

	err := ledger.Reserve(ctx, lapsed, "actor-1")
	assert.ErrorIs(t, err, booking.ErrExpired)

	sweeper := booking.NewExpirySweeper(mem)
	flipped, err := sweeper.SweepNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, flipped)
	assert.Equal(t, booking.StatusExpired, recordStatus(t, mem, lapsed))
}
