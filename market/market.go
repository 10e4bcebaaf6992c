/*
Package market wraps the generic booking engine with the three concrete
mechanisms of the community marketplace: vendor service slots, laundry
machine windows, and group bulk orders.

PURPOSE:
  The booking package knows nothing about vendors, laundry rooms, or
  books. This package holds the creation policies that differ per
  mechanism - which fields are required, what the capacity target means,
  whether the creator is auto-enrolled - and delegates every reservation
  to the one ReservationLedger so the admission/expiry logic is never
  duplicated.

CREATION POLICIES:
  ServiceSlots:  slot kind, capacity = participants needed, count starts 0
  LaundrySlots:  slot kind, capacity = fixed ceiling of 3 per window,
                 find-or-create the window record, then reserve
  GroupOrders:   order kind, capacity = target quantity (>= 2),
                 creator auto-enrolled, deadline required

SEE ALSO:
  - booking/ledger.go: The transactional write path
  - booking/capacity.go: The shared admission rule
*/
package market

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dormhub/booking-engine/booking"
)

// MaxBookingsPerLaundrySlot caps concurrent bookings on one physical
// laundry window to prevent overcrowding.
const MaxBookingsPerLaundrySlot = 3

// =============================================================================
// SERVICE SLOTS
// =============================================================================

// ServiceSlots creates vendor service slots. Creating a slot and
// booking it are distinct actions: a fresh slot has no members.
type ServiceSlots struct {
	Ledger *booking.ReservationLedger
}

// SlotInput carries the creation form for a service slot.
type SlotInput struct {
	VendorID        string
	ServiceType     string
	TimeSlot        string
	MinParticipants int
	Deadline        time.Time
}

func (s *ServiceSlots) Create(ctx context.Context, owner booking.ActorID, in SlotInput) (booking.RecordID, error) {
	if in.VendorID == "" || in.ServiceType == "" || in.TimeSlot == "" {
		return "", fmt.Errorf("%w: vendor, service type and time slot are required", booking.ErrValidation)
	}
	if in.MinParticipants < 1 {
		return "", fmt.Errorf("%w: minimum participants must be >= 1", booking.ErrValidation)
	}
	if in.Deadline.IsZero() {
		return "", fmt.Errorf("%w: deadline is required", booking.ErrValidation)
	}

	deadline := in.Deadline
	return s.Ledger.Create(ctx, booking.Record{
		Kind:           booking.KindSlot,
		OwnerID:        owner,
		CapacityTarget: in.MinParticipants,
		Deadline:       &deadline,
		VendorID:       in.VendorID,
		ServiceType:    in.ServiceType,
		TimeSlot:       in.TimeSlot,
	})
}

// =============================================================================
// LAUNDRY SLOTS
// =============================================================================

// LaundrySlots books physical laundry windows. One record per
// location+date+time window, capacity fixed at the overcrowding ceiling.
type LaundrySlots struct {
	Ledger *booking.ReservationLedger
	Store  booking.Store
}

// LaundryInput identifies a physical laundry window.
type LaundryInput struct {
	Location string
	Date     string // YYYY-MM-DD
	TimeSlot string
	Deadline time.Time
}

// Book reserves a spot in the window for actor, creating the window
// record on first booking. Fullness, duplicates and deadlines are all
// enforced by the ledger's admission transaction, not here.
func (l *LaundrySlots) Book(ctx context.Context, actor booking.ActorID, in LaundryInput) (booking.RecordID, error) {
	if in.Location == "" || in.Date == "" || in.TimeSlot == "" {
		return "", fmt.Errorf("%w: location, date and time slot are required", booking.ErrValidation)
	}

	id, err := l.findWindow(ctx, in)
	if err != nil {
		return "", err
	}
	if id == "" {
		deadline := in.Deadline
		rec := booking.Record{
			Kind:           booking.KindSlot,
			OwnerID:        actor,
			CapacityTarget: MaxBookingsPerLaundrySlot,
			Location:       in.Location,
			Date:           in.Date,
			TimeSlot:       in.TimeSlot,
		}
		if !deadline.IsZero() {
			rec.Deadline = &deadline
		}
		if id, err = l.Ledger.Create(ctx, rec); err != nil {
			return "", err
		}
	}

	if err := l.Ledger.Reserve(ctx, id, actor); err != nil {
		return "", err
	}
	return id, nil
}

// findWindow locates an existing non-terminal record for the window.
func (l *LaundrySlots) findWindow(ctx context.Context, in LaundryInput) (booking.RecordID, error) {
	records, err := l.Store.Query(ctx, booking.Filter{
		Kind:     booking.KindSlot,
		Statuses: []booking.Status{booking.StatusOpen, booking.StatusThresholdReached},
		OrderBy:  booking.OrderByCreatedAtAsc,
	})
	if err != nil {
		return "", err
	}
	for _, r := range records {
		if r.Location == in.Location && r.Date == in.Date && r.TimeSlot == in.TimeSlot {
			return r.ID, nil
		}
	}
	return "", nil
}

// =============================================================================
// GROUP ORDERS
// =============================================================================

// GroupOrders creates threshold-gated bulk purchases. The creator is the
// first participant.
type GroupOrders struct {
	Ledger *booking.ReservationLedger
}

// OrderInput carries the creation form for a group order.
type OrderInput struct {
	Title     string
	Author    string
	UnitPrice decimal.Decimal
	TargetQty int
	Deadline  time.Time
}

func (g *GroupOrders) Create(ctx context.Context, owner booking.ActorID, in OrderInput) (booking.RecordID, error) {
	if in.Title == "" || in.Author == "" {
		return "", fmt.Errorf("%w: title and author are required", booking.ErrValidation)
	}
	if !in.UnitPrice.IsPositive() {
		return "", fmt.Errorf("%w: unit price must be positive", booking.ErrValidation)
	}
	if in.TargetQty < 2 {
		return "", fmt.Errorf("%w: target quantity must be >= 2", booking.ErrValidation)
	}
	if in.Deadline.IsZero() {
		return "", fmt.Errorf("%w: deadline is required", booking.ErrValidation)
	}

	deadline := in.Deadline
	return g.Ledger.Create(ctx, booking.Record{
		Kind:           booking.KindOrder,
		OwnerID:        owner,
		CapacityTarget: in.TargetQty,
		Deadline:       &deadline,
		Title:          in.Title,
		Author:         in.Author,
		UnitPrice:      in.UnitPrice,
	})
}
