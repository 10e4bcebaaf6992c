/*
catalog.go - Read-side projections over the record stream

PURPOSE:
  Catalogs subscribe to the live record set and hand the caller a
  presentation-ready view on every change. Level-triggered: the callback
  always receives the complete current view, never a diff.

EXPIRY FILTERING:
  The catalog applies IsExpired client-side with the SAME predicate the
  ledger enforces, so a record whose stored status lags its deadline is
  never displayed as bookable, even before the sweeper has run.

SUBSCRIPTION DISCIPLINE:
  Listen tears down any prior subscription before creating a new one, so
  repeated listener setup cannot accumulate duplicate observers over the
  process lifetime. Close releases everything.

GROUPING/SORTING:
  GroupSlots buckets slot records by location+date+time for display
  (the laundry board view); order catalogs sort by creation time. Pure
  transforms, no effect on the ledger.

SEE ALSO:
  - expiry.go: The shared lapse predicate
  - store.go: Subscribe contract
*/
package booking

import (
	"context"
	"sort"
	"time"
)

// Catalog is a live, expiry-filtered projection of records matching a
// filter.
type Catalog struct {
	store  Store
	filter Filter

	// Clock is injectable for tests. Defaults to time.Now.
	Clock func() time.Time

	sub Subscription
}

// NewSlotCatalog projects slot-kind records, soonest deadline first.
func NewSlotCatalog(store Store) *Catalog {
	return &Catalog{
		store:  store,
		filter: Filter{Kind: KindSlot, OrderBy: OrderByDeadlineAsc},
		Clock:  time.Now,
	}
}

// NewOrderCatalog projects order-kind records, newest first.
func NewOrderCatalog(store Store) *Catalog {
	return &Catalog{
		store:  store,
		filter: Filter{Kind: KindOrder, OrderBy: OrderByCreatedAtDesc},
		Clock:  time.Now,
	}
}

// Listen subscribes onView to the full, expiry-filtered record view.
// Any previous subscription on this catalog is torn down first.
func (c *Catalog) Listen(onView func([]Record), onError func(error)) error {
	if c.sub != nil {
		c.sub.Unsubscribe()
		c.sub = nil
	}

	sub, err := c.store.Subscribe(c.filter, func(records []Record) {
		onView(c.present(records))
	}, onError)
	if err != nil {
		return err
	}
	c.sub = sub
	return nil
}

// Close tears down the subscription. Safe when not listening.
func (c *Catalog) Close() {
	if c.sub != nil {
		c.sub.Unsubscribe()
		c.sub = nil
	}
}

// Snapshot returns a one-shot, expiry-filtered view without
// subscribing.
func (c *Catalog) Snapshot(ctx context.Context) ([]Record, error) {
	records, err := c.store.Query(ctx, c.filter)
	if err != nil {
		return nil, err
	}
	return c.present(records), nil
}

// present drops lapsed records so nothing expired is ever shown as
// bookable, whatever the stored status says.
func (c *Catalog) present(records []Record) []Record {
	now := c.Clock()
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if IsExpired(r, now) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// =============================================================================
// GROUPING - Pure presentation transforms
// =============================================================================

// SlotGroup is one physical time window: every booking at the same
// location, date, and time.
type SlotGroup struct {
	Location string
	Date     string
	TimeSlot string
	Records  []Record
}

// GroupSlots buckets slot records by location+date+time, groups sorted
// by date then location then time, records within a group by creation
// time.
func GroupSlots(records []Record) []SlotGroup {
	byKey := make(map[string]*SlotGroup)
	var keys []string

	for _, r := range records {
		key := r.Location + "|" + r.Date + "|" + r.TimeSlot
		g, ok := byKey[key]
		if !ok {
			g = &SlotGroup{Location: r.Location, Date: r.Date, TimeSlot: r.TimeSlot}
			byKey[key] = g
			keys = append(keys, key)
		}
		g.Records = append(g.Records, r)
	}

	out := make([]SlotGroup, 0, len(keys))
	for _, key := range keys {
		g := byKey[key]
		SortRecords(g.Records, OrderByCreatedAtAsc)
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		if out[i].Location != out[j].Location {
			return out[i].Location < out[j].Location
		}
		return out[i].TimeSlot < out[j].TimeSlot
	})
	return out
}
