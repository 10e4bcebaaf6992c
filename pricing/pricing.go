/*
Package pricing looks up external catalog prices and computes bulk
discount reports for group orders.

PURPOSE:
  A side lookup invoked before presenting a bulk-discount report - no
  core booking invariant depends on it. Lookups go through a 12-hour
  freshness cache: a fresh cache entry returns immediately; a miss (or a
  stale entry) fetches remotely and stores the result with its fetch
  timestamp.

MONEY:
  All price arithmetic uses decimal.Decimal. No floats anywhere near a
  price.

DISCOUNT TIERS (per-unit, by quantity):
  >= 30  ->  50%
  >= 20  ->  40%
  >= 10  ->  30%
  >=  5  ->  15%
  else   ->   0%

SEE ALSO:
  - fetcher.go: The remote catalog client
  - store/sqlite: Persistent Cache implementation
*/
package pricing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// FreshnessTTL is how long a cached quote stays authoritative.
const FreshnessTTL = 12 * time.Hour

// ErrNotListed is returned when the remote catalog has no entry for the
// title/author pair.
var ErrNotListed = errors.New("item not listed in catalog")

// Quote is one catalog lookup result.
type Quote struct {
	Title     string
	Author    string
	BasePrice decimal.Decimal
	InStock   bool
	CachedAt  time.Time
}

// Fetcher retrieves a quote from the remote catalog.
type Fetcher interface {
	Fetch(ctx context.Context, title, author string) (Quote, error)
}

// Cache stores quotes with their fetch timestamps.
type Cache interface {
	GetQuote(ctx context.Context, key string) (Quote, bool, error)
	PutQuote(ctx context.Context, key string, q Quote) error
}

// =============================================================================
// SERVICE
// =============================================================================

// Service is the cached pricing lookup.
type Service struct {
	Fetcher Fetcher
	Cache   Cache
	TTL     time.Duration

	// Clock is injectable for tests. Defaults to time.Now.
	Clock func() time.Time
}

func NewService(fetcher Fetcher, cache Cache) *Service {
	return &Service{
		Fetcher: fetcher,
		Cache:   cache,
		TTL:     FreshnessTTL,
		Clock:   time.Now,
	}
}

var keySeparators = regexp.MustCompile(`\s+`)

// CacheKey normalizes a title/author pair into a cache key.
func CacheKey(title, author string) string {
	return strings.ToLower(keySeparators.ReplaceAllString(title+"-"+author, "_"))
}

// Lookup returns the quote for a title/author pair, from cache when
// fresh, otherwise from the remote catalog. A failed cache write after
// a successful fetch is logged, not fatal - the quote is still good.
func (s *Service) Lookup(ctx context.Context, title, author string) (Quote, error) {
	key := CacheKey(title, author)
	now := s.Clock()

	cached, ok, err := s.Cache.GetQuote(ctx, key)
	if err != nil {
		return Quote{}, fmt.Errorf("price cache read: %w", err)
	}
	if ok && now.Sub(cached.CachedAt) <= s.TTL {
		return cached, nil
	}

	quote, err := s.Fetcher.Fetch(ctx, title, author)
	if err != nil {
		return Quote{}, err
	}
	quote.CachedAt = now

	if err := s.Cache.PutQuote(ctx, key, quote); err != nil {
		log.Printf("[Pricing] cache write failed for %s: %v", key, err)
	}
	return quote, nil
}

// =============================================================================
// DISCOUNTS
// =============================================================================

var discountTiers = []struct {
	minQty int
	rate   decimal.Decimal
}{
	{30, decimal.NewFromFloat(0.50)},
	{20, decimal.NewFromFloat(0.40)},
	{10, decimal.NewFromFloat(0.30)},
	{5, decimal.NewFromFloat(0.15)},
}

// DiscountRate returns the bulk discount rate for a quantity. Pure.
func DiscountRate(qty int) decimal.Decimal {
	for _, tier := range discountTiers {
		if qty >= tier.minQty {
			return tier.rate
		}
	}
	return decimal.Zero
}

// Report is the outcome of a bulk-discount calculation.
type Report struct {
	Title        string
	Author       string
	BasePrice    decimal.Decimal
	RequestedQty int
	DiscountRate decimal.Decimal
	FinalPrice   decimal.Decimal // per unit, after discount
	InStock      bool
	Reason       string // set when not purchasable
	CheckedAt    time.Time
}

// DiscountReport computes the per-unit price for a bulk purchase of
// qty units. Out-of-stock items produce a report with a reason rather
// than an error: the lookup worked, the item just cannot be bought.
func (s *Service) DiscountReport(ctx context.Context, title, author string, qty int) (Report, error) {
	if qty < 1 {
		return Report{}, fmt.Errorf("quantity must be >= 1, got %d", qty)
	}

	quote, err := s.Lookup(ctx, title, author)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		Title:        title,
		Author:       author,
		BasePrice:    quote.BasePrice,
		RequestedQty: qty,
		DiscountRate: DiscountRate(qty),
		InStock:      quote.InStock,
		CheckedAt:    s.Clock(),
	}
	if !quote.InStock {
		report.Reason = "out of stock"
		return report, nil
	}

	one := decimal.NewFromInt(1)
	report.FinalPrice = quote.BasePrice.Mul(one.Sub(report.DiscountRate)).Round(2)
	return report, nil
}

// =============================================================================
// MEMORY CACHE - For tests and cache-less deployments
// =============================================================================

type MemoryCache struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{quotes: make(map[string]Quote)}
}

func (c *MemoryCache) GetQuote(_ context.Context, key string) (Quote, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.quotes[key]
	return q, ok, nil
}

func (c *MemoryCache) PutQuote(_ context.Context, key string, q Quote) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes[key] = q
	return nil
}
