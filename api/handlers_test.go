/*
handlers_test.go - HTTP-level tests for the booking API

Tests the full request path: router, middleware, handlers, and the
error-kind to status-code mapping.
*/
package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dormhub/booking-engine/api"
	"github.com/dormhub/booking-engine/booking"
	"github.com/dormhub/booking-engine/booking/store"
	"github.com/dormhub/booking-engine/pricing"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type stubFetcher struct {
	quote pricing.Quote
	err   error
}

func (f *stubFetcher) Fetch(context.Context, string, string) (pricing.Quote, error) {
	if f.err != nil {
		return pricing.Quote{}, f.err
	}
	return f.quote, nil
}

type testAPI struct {
	router  http.Handler
	mem     *store.Memory
	fetcher *stubFetcher
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	mem := store.NewMemory()
	fetcher := &stubFetcher{
		quote: pricing.Quote{BasePrice: decimal.RequireFromString("25.00"), InStock: true},
	}
	pricingSvc := pricing.NewService(fetcher, pricing.NewMemoryCache())
	sweeper := booking.NewExpirySweeper(mem)

	handler := api.NewHandler(mem, sweeper, pricingSvc)
	return &testAPI{
		router:  api.NewRouter(handler, nil),
		mem:     mem,
		fetcher: fetcher,
	}
}

func (a *testAPI) do(t *testing.T, method, path, actor string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if actor != "" {
		req.Header.Set(api.ActorHeader, actor)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

func slotBody() map[string]any {
	return map[string]any{
		"vendor_id":        "vendor-1",
		"service_type":     "haircut",
		"time_slot":        "10:00-11:00",
		"min_participants": 2,
		"deadline":         time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	}
}

func orderBody() map[string]any {
	return map[string]any{
		"title":      "The Go Programming Language",
		"author":     "Donovan",
		"unit_price": "25.99",
		"target_qty": 3,
		"deadline":   time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	}
}

// =============================================================================
// IDENTITY
// =============================================================================

func TestAPI_MutatingRoutesRequireActor(t *testing.T) {
	a := newTestAPI(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/slots"},
		{http.MethodPost, "/api/laundry"},
		{http.MethodPost, "/api/orders"},
		{http.MethodPost, "/api/records/some-id/reserve"},
		{http.MethodDelete, "/api/records/some-id/reserve"},
		{http.MethodPost, "/api/records/some-id/complete"},
		{http.MethodDelete, "/api/records/some-id"},
	} {
		rec := a.do(t, tc.method, tc.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", tc.method, tc.path)
	}
}

func TestAPI_ReadRoutesNeedNoActor(t *testing.T) {
	a := newTestAPI(t)

	for _, path := range []string{"/api/slots", "/api/laundry", "/api/orders", "/health"} {
		rec := a.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

// =============================================================================
// SLOTS
// =============================================================================

func TestAPI_CreateSlotAndReserve(t *testing.T) {
	// GIVEN: A vendor-created slot needing 2 participants
	// WHEN: Two residents reserve over HTTP
	// THEN: The second response shows the threshold flip

	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/slots", "vendor-1", slotBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[api.RecordDTO](t, rec)
	assert.Equal(t, "open", created.Status)
	assert.Equal(t, 0, created.CurrentCount)
	assert.Equal(t, 2, created.SpotsLeft)

	path := "/api/records/" + created.ID + "/reserve"
	rec = a.do(t, http.MethodPost, path, "resident-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[api.RecordDTO](t, rec).CurrentCount)

	rec = a.do(t, http.MethodPost, path, "resident-2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	after := decode[api.RecordDTO](t, rec)
	assert.Equal(t, "threshold_reached", after.Status)
	assert.Equal(t, 0, after.SpotsLeft)
}

func TestAPI_CreateSlotValidation(t *testing.T) {
	a := newTestAPI(t)

	body := slotBody()
	body["min_participants"] = 0
	rec := a.do(t, http.MethodPost, "/api/slots", "vendor-1", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION", decode[api.ErrorResponse](t, rec).Kind)

	body = slotBody()
	body["deadline"] = "not-a-time"
	rec = a.do(t, http.MethodPost, "/api/slots", "vendor-1", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// ERROR KIND MAPPING
// =============================================================================

func TestAPI_DuplicateReserveMapsTo409(t *testing.T) {
	a := newTestAPI(t)

	created := decode[api.RecordDTO](t, a.do(t, http.MethodPost, "/api/slots", "vendor-1", slotBody()))
	path := "/api/records/" + created.ID + "/reserve"

	require.Equal(t, http.StatusOK, a.do(t, http.MethodPost, path, "resident-1", nil).Code)

	rec := a.do(t, http.MethodPost, path, "resident-1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decode[api.ErrorResponse](t, rec)
	assert.Equal(t, "DUPLICATE", body.Kind)
	assert.Equal(t, "You already hold a reservation here", body.Error)
}

func TestAPI_FullSlotMapsTo409Closed(t *testing.T) {
	a := newTestAPI(t)

	body := slotBody()
	body["min_participants"] = 1
	created := decode[api.RecordDTO](t, a.do(t, http.MethodPost, "/api/slots", "vendor-1", body))
	path := "/api/records/" + created.ID + "/reserve"

	require.Equal(t, http.StatusOK, a.do(t, http.MethodPost, path, "resident-1", nil).Code)

	rec := a.do(t, http.MethodPost, path, "resident-2", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CLOSED", decode[api.ErrorResponse](t, rec).Kind)
}

func TestAPI_LapsedDeadlineMapsTo410(t *testing.T) {
	// GIVEN: A record whose deadline passed but no sweep has run
	// WHEN: Reserving over HTTP
	// THEN: 410 Gone with the EXPIRED kind

	a := newTestAPI(t)
	past := time.Now().Add(-time.Minute)
	id, err := a.mem.Insert(context.Background(), booking.Record{
		Kind:           booking.KindSlot,
		OwnerID:        "vendor-1",
		CapacityTarget: 3,
		Deadline:       &past,
		Status:         booking.StatusOpen,
		CreatedAt:      time.Now(),
	})
	require.NoError(t, err)

	rec := a.do(t, http.MethodPost, fmt.Sprintf("/api/records/%s/reserve", id), "resident-1", nil)
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Equal(t, "EXPIRED", decode[api.ErrorResponse](t, rec).Kind)
}

func TestAPI_UnknownRecordMapsTo404(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodGet, "/api/records/ghost", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decode[api.ErrorResponse](t, rec).Kind)

	rec = a.do(t, http.MethodPost, "/api/records/ghost/reserve", "resident-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// ORDERS
// =============================================================================

func TestAPI_CreateOrderAutoEnrollsCreator(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/orders", "buyer-1", orderBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[api.RecordDTO](t, rec)

	assert.Equal(t, 1, created.CurrentCount)
	assert.Equal(t, []string{"buyer-1"}, created.MemberIDs)
	assert.Equal(t, "25.99", created.UnitPrice)

	// The creator joining again is a duplicate.
	resp := a.do(t, http.MethodPost, "/api/records/"+created.ID+"/reserve", "buyer-1", nil)
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "DUPLICATE", decode[api.ErrorResponse](t, resp).Kind)
}

func TestAPI_CancelReservationRevertsThreshold(t *testing.T) {
	a := newTestAPI(t)

	body := orderBody()
	body["target_qty"] = 2
	created := decode[api.RecordDTO](t, a.do(t, http.MethodPost, "/api/orders", "buyer-1", body))

	rec := a.do(t, http.MethodPost, "/api/records/"+created.ID+"/reserve", "buyer-2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "threshold_reached", decode[api.RecordDTO](t, rec).Status)

	rec = a.do(t, http.MethodDelete, "/api/records/"+created.ID+"/reserve", "buyer-2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	after := decode[api.RecordDTO](t, rec)
	assert.Equal(t, "open", after.Status)
	assert.Equal(t, 1, after.CurrentCount)
}

func TestAPI_OwnerCompletesFulfilledOrder(t *testing.T) {
	a := newTestAPI(t)

	body := orderBody()
	body["target_qty"] = 2
	created := decode[api.RecordDTO](t, a.do(t, http.MethodPost, "/api/orders", "buyer-1", body))
	require.Equal(t, http.StatusOK,
		a.do(t, http.MethodPost, "/api/records/"+created.ID+"/reserve", "buyer-2", nil).Code)

	rec := a.do(t, http.MethodPost, "/api/records/"+created.ID+"/complete", "buyer-2", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "only the owner settles the deal")

	rec = a.do(t, http.MethodPost, "/api/records/"+created.ID+"/complete", "buyer-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", decode[api.RecordDTO](t, rec).Status)
}

func TestAPI_OwnerCancelRecord(t *testing.T) {
	a := newTestAPI(t)
	created := decode[api.RecordDTO](t, a.do(t, http.MethodPost, "/api/orders", "buyer-1", orderBody()))

	rec := a.do(t, http.MethodDelete, "/api/records/"+created.ID, "stranger", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(t, http.MethodDelete, "/api/records/"+created.ID, "buyer-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[api.RecordDTO](t, a.do(t, http.MethodGet, "/api/records/"+created.ID, "", nil))
	assert.Equal(t, "cancelled", got.Status)
}

// =============================================================================
// LAUNDRY
// =============================================================================

func TestAPI_LaundryBookAndGroupedListing(t *testing.T) {
	a := newTestAPI(t)

	body := map[string]any{
		"location":  "dorm-a",
		"date":      "2026-09-01",
		"time_slot": "18:00",
	}
	rec := a.do(t, http.MethodPost, "/api/laundry", "resident-1", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(t, http.MethodPost, "/api/laundry", "resident-2", body)
	require.Equal(t, http.StatusOK, rec.Code)
	booked := decode[api.RecordDTO](t, rec)
	assert.Equal(t, 2, booked.CurrentCount)

	list := a.do(t, http.MethodGet, "/api/laundry", "", nil)
	require.Equal(t, http.StatusOK, list.Code)
	groups := decode[[]api.SlotGroupDTO](t, list)
	require.Len(t, groups, 1)
	assert.Equal(t, "dorm-a", groups[0].Location)
	require.Len(t, groups[0].Records, 1)
	assert.Equal(t, 2, groups[0].Records[0].CurrentCount)
}

// =============================================================================
// PRICING
// =============================================================================

func TestAPI_DiscountReport(t *testing.T) {
	a := newTestAPI(t)

	body := map[string]any{"title": "The Go Book", "author": "Donovan", "quantity": 10}
	rec := a.do(t, http.MethodPost, "/api/orders/discount-report", "", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	report := decode[api.DiscountReportDTO](t, rec)
	assert.Equal(t, "available", report.State)
	assert.Equal(t, "0.3", report.DiscountRate)
	assert.Equal(t, "17.5", report.FinalPrice)
}

func TestAPI_DiscountReportNotListed(t *testing.T) {
	a := newTestAPI(t)
	a.fetcher.err = pricing.ErrNotListed

	body := map[string]any{"title": "Ghost", "author": "Nobody", "quantity": 5}
	rec := a.do(t, http.MethodPost, "/api/orders/discount-report", "", body)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_DiscountReportValidation(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/orders/discount-report", "",
		map[string]any{"title": "", "author": "X", "quantity": 5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/orders/discount-report", "",
		map[string]any{"title": "X", "author": "Y", "quantity": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// ADMIN
// =============================================================================

func TestAPI_AdminSweepFlipsLapsedRecords(t *testing.T) {
	a := newTestAPI(t)

	past := time.Now().Add(-time.Minute)
	id, err := a.mem.Insert(context.Background(), booking.Record{
		Kind:           booking.KindSlot,
		OwnerID:        "vendor-1",
		CapacityTarget: 3,
		Deadline:       &past,
		Status:         booking.StatusOpen,
		CreatedAt:      time.Now(),
	})
	require.NoError(t, err)

	rec := a.do(t, http.MethodPost, "/api/admin/sweep", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[map[string]int](t, rec)["flipped"])

	got := decode[api.RecordDTO](t, a.do(t, http.MethodGet, "/api/records/"+string(id), "", nil))
	assert.Equal(t, "expired", got.Status)
}

// =============================================================================
// RATE LIMITING
// =============================================================================

func TestAPI_RateLimiterThrottlesHammering(t *testing.T) {
	mem := store.NewMemory()
	pricingSvc := pricing.NewService(&stubFetcher{}, pricing.NewMemoryCache())
	handler := api.NewHandler(mem, booking.NewExpirySweeper(mem), pricingSvc)
	router := api.NewRouter(handler, api.NewRateLimiter(1, 2))

	codes := map[int]int{}
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(api.ActorHeader, "hammer")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		codes[rec.Code]++
	}

	assert.Equal(t, 2, codes[http.StatusOK], "burst admits two")
	assert.Equal(t, 3, codes[http.StatusTooManyRequests])
}
