/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for the API contract, decoupled from the internal
  record type. Validation happens in handlers; DTOs are pure carriers.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
*/
package api

import (
	"time"

	"github.com/dormhub/booking-engine/booking"
)

// =============================================================================
// RECORDS
// =============================================================================

// RecordDTO is a record in API responses.
type RecordDTO struct {
	ID             string   `json:"id"`
	Kind           string   `json:"kind"`
	OwnerID        string   `json:"owner_id"`
	CapacityTarget int      `json:"capacity_target"`
	CurrentCount   int      `json:"current_count"`
	SpotsLeft      int      `json:"spots_left"`
	MemberIDs      []string `json:"member_ids"`
	Deadline       string   `json:"deadline,omitempty"`
	Status         string   `json:"status"`
	CreatedAt      string   `json:"created_at"`

	VendorID    string `json:"vendor_id,omitempty"`
	ServiceType string `json:"service_type,omitempty"`
	Location    string `json:"location,omitempty"`
	Date        string `json:"date,omitempty"`
	TimeSlot    string `json:"time_slot,omitempty"`
	Title       string `json:"title,omitempty"`
	Author      string `json:"author,omitempty"`
	UnitPrice   string `json:"unit_price,omitempty"`
}

func toRecordDTO(r booking.Record) RecordDTO {
	dto := RecordDTO{
		ID:             string(r.ID),
		Kind:           string(r.Kind),
		OwnerID:        string(r.OwnerID),
		CapacityTarget: r.CapacityTarget,
		CurrentCount:   r.CurrentCount,
		SpotsLeft:      r.CapacityTarget - r.CurrentCount,
		MemberIDs:      make([]string, 0, len(r.MemberIDs)),
		Status:         string(r.Status),
		CreatedAt:      r.CreatedAt.UTC().Format(time.RFC3339),
		VendorID:       r.VendorID,
		ServiceType:    r.ServiceType,
		Location:       r.Location,
		Date:           r.Date,
		TimeSlot:       r.TimeSlot,
		Title:          r.Title,
		Author:         r.Author,
	}
	for _, m := range r.MemberIDs {
		dto.MemberIDs = append(dto.MemberIDs, string(m))
	}
	if r.Deadline != nil {
		dto.Deadline = r.Deadline.UTC().Format(time.RFC3339)
	}
	if !r.UnitPrice.IsZero() {
		dto.UnitPrice = r.UnitPrice.String()
	}
	return dto
}

func toRecordDTOs(records []booking.Record) []RecordDTO {
	out := make([]RecordDTO, len(records))
	for i, r := range records {
		out[i] = toRecordDTO(r)
	}
	return out
}

// SlotGroupDTO is one physical window with all its bookings.
type SlotGroupDTO struct {
	Location string      `json:"location"`
	Date     string      `json:"date"`
	TimeSlot string      `json:"time_slot"`
	Records  []RecordDTO `json:"records"`
}

// =============================================================================
// REQUESTS
// =============================================================================

// CreateSlotRequest creates a vendor service slot.
type CreateSlotRequest struct {
	VendorID        string `json:"vendor_id"`
	ServiceType     string `json:"service_type"`
	TimeSlot        string `json:"time_slot"`
	MinParticipants int    `json:"min_participants"`
	Deadline        string `json:"deadline"` // RFC3339
}

// BookLaundryRequest books a laundry window.
type BookLaundryRequest struct {
	Location string `json:"location"`
	Date     string `json:"date"` // YYYY-MM-DD
	TimeSlot string `json:"time_slot"`
	Deadline string `json:"deadline,omitempty"` // RFC3339
}

// CreateOrderRequest creates a group bulk order.
type CreateOrderRequest struct {
	Title     string `json:"title"`
	Author    string `json:"author"`
	UnitPrice string `json:"unit_price"`
	TargetQty int    `json:"target_qty"`
	Deadline  string `json:"deadline"` // RFC3339
}

// DiscountReportRequest asks for a bulk pricing report.
type DiscountReportRequest struct {
	Title    string `json:"title"`
	Author   string `json:"author"`
	Quantity int    `json:"quantity"`
}

// DiscountReportDTO is the pricing report response.
type DiscountReportDTO struct {
	Title        string `json:"title"`
	Author       string `json:"author"`
	BasePrice    string `json:"base_price"`
	RequestedQty int    `json:"requested_qty"`
	DiscountRate string `json:"discount_rate"`
	FinalPrice   string `json:"final_price,omitempty"`
	State        string `json:"state"`
	Reason       string `json:"reason,omitempty"`
	CheckedAt    string `json:"checked_at"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Details string `json:"details,omitempty"`
}
