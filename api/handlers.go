/*
handlers.go - HTTP request handlers

PURPOSE:
  Translates HTTP requests into ledger/market/pricing calls and maps
  booking error kinds onto HTTP status codes. Handlers stay thin: all
  admission and state logic lives in the booking package.

STATUS MAPPING:
  VALIDATION            -> 400
  NOT_FOUND             -> 404
  DUPLICATE / CLOSED    -> 409
  CONFLICT              -> 409 (retries already exhausted)
  EXPIRED               -> 410
  anything else         -> 500
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/dormhub/booking-engine/booking"
	"github.com/dormhub/booking-engine/market"
	"github.com/dormhub/booking-engine/pricing"
)

// Handler carries the wired services for all routes.
type Handler struct {
	Store   booking.Store
	Ledger  *booking.ReservationLedger
	Sweeper *booking.ExpirySweeper

	Slots   *market.ServiceSlots
	Laundry *market.LaundrySlots
	Orders  *market.GroupOrders
	Pricing *pricing.Service

	slotCatalog  *booking.Catalog
	orderCatalog *booking.Catalog
}

func NewHandler(store booking.Store, sweeper *booking.ExpirySweeper, pricingSvc *pricing.Service) *Handler {
	ledger := booking.NewLedger(store)
	return &Handler{
		Store:        store,
		Ledger:       ledger,
		Sweeper:      sweeper,
		Slots:        &market.ServiceSlots{Ledger: ledger},
		Laundry:      &market.LaundrySlots{Ledger: ledger, Store: store},
		Orders:       &market.GroupOrders{Ledger: ledger},
		Pricing:      pricingSvc,
		slotCatalog:  booking.NewSlotCatalog(store),
		orderCatalog: booking.NewOrderCatalog(store),
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeBookingError maps a booking error onto the HTTP status table.
func writeBookingError(w http.ResponseWriter, err error) {
	kind := booking.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case booking.KindValidation:
		status = http.StatusBadRequest
	case booking.KindNotFound:
		status = http.StatusNotFound
	case booking.KindDuplicate, booking.KindClosed, booking.KindConflict:
		status = http.StatusConflict
	case booking.KindExpired:
		status = http.StatusGone
	}
	resp := ErrorResponse{Error: booking.UserMessage(err), Kind: string(kind)}
	if status == http.StatusInternalServerError {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func parseDeadline(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339, raw)
}

// =============================================================================
// SERVICE SLOTS
// =============================================================================

// HandleCreateSlot handles POST /api/slots
func (h *Handler) HandleCreateSlot(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	var req CreateSlotRequest
	if !decodeBody(w, r, &req) {
		return
	}
	deadline, err := parseDeadline(req.Deadline)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid deadline, want RFC3339", err)
		return
	}

	id, err := h.Slots.Create(r.Context(), actor, market.SlotInput{
		VendorID:        req.VendorID,
		ServiceType:     req.ServiceType,
		TimeSlot:        req.TimeSlot,
		MinParticipants: req.MinParticipants,
		Deadline:        deadline,
	})
	if err != nil {
		writeBookingError(w, err)
		return
	}

	record, err := h.Store.Get(r.Context(), id)
	if err != nil {
		writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecordDTO(record))
}

// HandleListSlots handles GET /api/slots
func (h *Handler) HandleListSlots(w http.ResponseWriter, r *http.Request) {
	records, err := h.slotCatalog.Snapshot(r.Context())
	if err != nil {
		writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTOs(records))
}

// =============================================================================
// LAUNDRY
// =============================================================================

// HandleBookLaundry handles POST /api/laundry
func (h *Handler) HandleBookLaundry(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	var req BookLaundryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	in := market.LaundryInput{
		Location: req.Location,
		Date:     req.Date,
		TimeSlot: req.TimeSlot,
	}
	if req.Deadline != "" {
		deadline, err := parseDeadline(req.Deadline)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid deadline, want RFC3339", err)
			return
		}
		in.Deadline = deadline
	}

	id, err := h.Laundry.Book(r.Context(), actor, in)
	if err != nil {
		writeBookingError(w, err)
		return
	}

	record, err := h.Store.Get(r.Context(), id)
	if err != nil {
		writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTO(record))
}

// HandleListLaundry handles GET /api/laundry
//
// Returns slot records grouped by physical window (location, date, time)
// so a client can render availability per window.
func (h *Handler) HandleListLaundry(w http.ResponseWriter, r *http.Request) {
	records, err := h.slotCatalog.Snapshot(r.Context())
	if err != nil {
		writeBookingError(w, err)
		return
	}

	groups := booking.GroupSlots(records)
	out := make([]SlotGroupDTO, 0, len(groups))
	for _, g := range groups {
		out = append(out, SlotGroupDTO{
			Location: g.Location,
			Date:     g.Date,
			TimeSlot: g.TimeSlot,
			Records:  toRecordDTOs(g.Records),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// GROUP ORDERS
// =============================================================================

// HandleCreateOrder handles POST /api/orders
func (h *Handler) HandleCreateOrder(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	var req CreateOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	deadline, err := parseDeadline(req.Deadline)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid deadline, want RFC3339", err)
		return
	}
	price, err := decimal.NewFromString(req.UnitPrice)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid unit price", err)
		return
	}

	id, err := h.Orders.Create(r.Context(), actor, market.OrderInput{
		Title:     req.Title,
		Author:    req.Author,
		UnitPrice: price,
		TargetQty: req.TargetQty,
		Deadline:  deadline,
	})
	if err != nil {
		writeBookingError(w, err)
		return
	}

	record, err := h.Store.Get(r.Context(), id)
	if err != nil {
		writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecordDTO(record))
}

// HandleListOrders handles GET /api/orders
func (h *Handler) HandleListOrders(w http.ResponseWriter, r *http.Request) {
	records, err := h.orderCatalog.Snapshot(r.Context())
	if err != nil {
		writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTOs(records))
}

// HandleDiscountReport handles POST /api/orders/discount-report
func (h *Handler) HandleDiscountReport(w http.ResponseWriter, r *http.Request) {
	var req DiscountReportRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Title == "" || req.Author == "" {
		writeError(w, http.StatusBadRequest, "Title and author are required", nil)
		return
	}
	if req.Quantity < 1 {
		writeError(w, http.StatusBadRequest, "Quantity must be at least 1", nil)
		return
	}

	report, err := h.Pricing.DiscountReport(r.Context(), req.Title, req.Author, req.Quantity)
	if err != nil {
		if errors.Is(err, pricing.ErrNotListed) {
			writeError(w, http.StatusNotFound, "Item not listed in catalog", nil)
			return
		}
		writeError(w, http.StatusBadGateway, "Price lookup failed", err)
		return
	}

	dto := DiscountReportDTO{
		Title:        report.Title,
		Author:       report.Author,
		BasePrice:    report.BasePrice.String(),
		RequestedQty: report.RequestedQty,
		DiscountRate: report.DiscountRate.String(),
		CheckedAt:    report.CheckedAt.UTC().Format(time.RFC3339),
	}
	if report.Reason != "" {
		dto.State = "unavailable"
		dto.Reason = report.Reason
	} else {
		dto.State = "available"
		dto.FinalPrice = report.FinalPrice.String()
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// RECORDS
// =============================================================================

// HandleGetRecord handles GET /api/records/{id}
func (h *Handler) HandleGetRecord(w http.ResponseWriter, r *http.Request) {
	id := booking.RecordID(chi.URLParam(r, "id"))
	record, err := h.Store.Get(r.Context(), id)
	if err != nil {
		writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTO(record))
}

// HandleReserve handles POST /api/records/{id}/reserve
func (h *Handler) HandleReserve(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	id := booking.RecordID(chi.URLParam(r, "id"))

	if err := h.Ledger.Reserve(r.Context(), id, actor); err != nil {
		writeBookingError(w, err)
		return
	}

	record, err := h.Store.Get(r.Context(), id)
	if err != nil {
		writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTO(record))
}

// HandleCancelReservation handles DELETE /api/records/{id}/reserve
func (h *Handler) HandleCancelReservation(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	id := booking.RecordID(chi.URLParam(r, "id"))

	if err := h.Ledger.Cancel(r.Context(), id, actor); err != nil {
		writeBookingError(w, err)
		return
	}

	record, err := h.Store.Get(r.Context(), id)
	if err != nil {
		writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTO(record))
}

// HandleComplete handles POST /api/records/{id}/complete
//
// Owner-only. Marks a threshold_reached record completed.
func (h *Handler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	id := booking.RecordID(chi.URLParam(r, "id"))

	if err := h.Ledger.CompleteRecord(r.Context(), id, actor); err != nil {
		if errors.Is(err, booking.ErrNotOwner) {
			writeError(w, http.StatusForbidden, "Only the owner can complete this record", nil)
			return
		}
		writeBookingError(w, err)
		return
	}

	record, err := h.Store.Get(r.Context(), id)
	if err != nil {
		writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTO(record))
}

// HandleCancelRecord handles DELETE /api/records/{id}
//
// Owner-only. Marks the whole record cancelled.
func (h *Handler) HandleCancelRecord(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	id := booking.RecordID(chi.URLParam(r, "id"))

	if err := h.Ledger.CancelRecord(r.Context(), id, actor); err != nil {
		if errors.Is(err, booking.ErrNotOwner) {
			writeError(w, http.StatusForbidden, "Only the owner can cancel this record", nil)
			return
		}
		writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(booking.StatusCancelled)})
}

// =============================================================================
// ADMIN
// =============================================================================

// HandleSweep handles POST /api/admin/sweep
//
// Forces an immediate expiry pass instead of waiting for the next tick.
func (h *Handler) HandleSweep(w http.ResponseWriter, r *http.Request) {
	flipped, err := h.Sweeper.SweepNow(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Sweep failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"flipped": flipped})
}

// HandleHealth handles GET /health
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
