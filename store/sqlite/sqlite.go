/*
Package sqlite provides the SQLite-backed implementation of the booking
store.

PURPOSE:
  Production persistence for records plus the pricing cache table. The
  same patterns apply to PostgreSQL - only minor dialect differences.

CONCURRENCY:
  Optimistic locking through a version column: every UPDATE carries
  "AND version = ?" and bumps the version. A transaction whose read
  versions moved underneath it fails with booking.ErrConflict and is
  rolled back, which the ledger's bounded retry loop absorbs. SQLITE_BUSY
  from a competing writer maps to the same error.

WAL MODE:
  The database is opened with WAL so readers never block on the single
  writer, and contention resolves through the busy-timeout connection
  option instead of hanging.

SUBSCRIPTIONS:
  SQLite has no change feed, so subscription fan-out is in-process: the
  store re-queries each subscriber's filter after every committed write
  and delivers the full result set, level-triggered, on a per-subscriber
  goroutine. Query errors during fan-out surface on the subscriber's
  error handler.

KEY TABLES:
  records:     the unified slot/order record set (version column)
  price_cache: pricing lookups with fetch timestamps (12h freshness)

SEE ALSO:
  - booking/store.go: Interface definitions
  - booking/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/dormhub/booking-engine/booking"
	"github.com/dormhub/booking-engine/pricing"
)

// timeLayout is fixed-width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements booking.Store and pricing.Cache over SQLite.
type Store struct {
	db *sql.DB

	subMu   sync.Mutex
	subs    map[int]*subscriber
	nextSub int
}

// New opens (and migrates) a SQLite store. Use ":memory:" for tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: transactions serialize in-process, and :memory:
	// databases only exist on a single connection anyway.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, subs: make(map[int]*subscriber)}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close stops the fan-out goroutines and closes the database.
func (s *Store) Close() error {
	s.subMu.Lock()
	for id, sub := range s.subs {
		close(sub.stop)
		delete(s.subs, id)
	}
	s.subMu.Unlock()
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		capacity_target INTEGER NOT NULL,
		current_count INTEGER NOT NULL,
		member_ids TEXT NOT NULL DEFAULT '[]',
		deadline TEXT,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		vendor_id TEXT NOT NULL DEFAULT '',
		service_type TEXT NOT NULL DEFAULT '',
		location TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL DEFAULT '',
		time_slot TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		author TEXT NOT NULL DEFAULT '',
		unit_price TEXT NOT NULL DEFAULT '0',
		version INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_records_kind_status
		ON records(kind, status);

	-- Sweep hot path: open records ordered by deadline
	CREATE INDEX IF NOT EXISTS idx_records_status_deadline
		ON records(status, deadline);

	CREATE INDEX IF NOT EXISTS idx_records_created_at
		ON records(created_at);

	CREATE TABLE IF NOT EXISTS price_cache (
		cache_key TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		author TEXT NOT NULL,
		base_price TEXT NOT NULL,
		in_stock BOOLEAN NOT NULL,
		cached_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ROW MAPPING
// =============================================================================

const recordColumns = `id, kind, owner_id, capacity_target, current_count, member_ids,
	deadline, status, created_at, vendor_id, service_type, location, date, time_slot,
	title, author, unit_price, version`

func scanRecord(row interface{ Scan(...any) error }) (booking.Record, error) {
	var (
		rec       booking.Record
		members   string
		deadline  sql.NullString
		createdAt string
		unitPrice string
	)
	err := row.Scan(
		&rec.ID, &rec.Kind, &rec.OwnerID, &rec.CapacityTarget, &rec.CurrentCount,
		&members, &deadline, &rec.Status, &createdAt, &rec.VendorID, &rec.ServiceType,
		&rec.Location, &rec.Date, &rec.TimeSlot, &rec.Title, &rec.Author, &unitPrice,
		&rec.Version,
	)
	if err != nil {
		return booking.Record{}, err
	}

	if err := json.Unmarshal([]byte(members), &rec.MemberIDs); err != nil {
		return booking.Record{}, fmt.Errorf("corrupt member_ids for %s: %w", rec.ID, err)
	}
	if len(rec.MemberIDs) == 0 {
		rec.MemberIDs = nil
	}
	if rec.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return booking.Record{}, fmt.Errorf("corrupt created_at for %s: %w", rec.ID, err)
	}
	if deadline.Valid {
		t, err := time.Parse(timeLayout, deadline.String)
		if err != nil {
			return booking.Record{}, fmt.Errorf("corrupt deadline for %s: %w", rec.ID, err)
		}
		rec.Deadline = &t
	}
	if rec.UnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
		rec.UnitPrice = decimal.Zero
	}
	return rec, nil
}

func recordArgs(r booking.Record) ([]any, error) {
	members := r.MemberIDs
	if members == nil {
		members = []booking.ActorID{}
	}
	memberJSON, err := json.Marshal(members)
	if err != nil {
		return nil, err
	}
	var deadline any
	if r.Deadline != nil {
		deadline = r.Deadline.UTC().Format(timeLayout)
	}
	return []any{
		string(r.ID), string(r.Kind), string(r.OwnerID), r.CapacityTarget, r.CurrentCount,
		string(memberJSON), deadline, string(r.Status), r.CreatedAt.UTC().Format(timeLayout),
		r.VendorID, r.ServiceType, r.Location, r.Date, r.TimeSlot,
		r.Title, r.Author, r.UnitPrice.String(),
	}, nil
}

// =============================================================================
// BASIC OPERATIONS
// =============================================================================

func (s *Store) Get(ctx context.Context, id booking.RecordID) (booking.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE id = ?`, string(id))
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return booking.Record{}, booking.ErrNotFound
	}
	return rec, err
}

func (s *Store) Insert(ctx context.Context, r booking.Record) (booking.RecordID, error) {
	if r.ID == "" {
		r.ID = booking.RecordID(uuid.NewString())
	}
	args, err := recordArgs(r)
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		args...)
	if err != nil {
		return "", mapSQLiteErr(err)
	}

	s.notify()
	return r.ID, nil
}

func (s *Store) Query(ctx context.Context, f booking.Filter) ([]booking.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE 1=1`
	var args []any

	if f.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(f.Kind))
	}
	if len(f.Statuses) > 0 {
		query += ` AND status IN (?` + repeat(",?", len(f.Statuses)-1) + `)`
		for _, st := range f.Statuses {
			args = append(args, string(st))
		}
	}
	if f.DeadlineBefore != nil {
		query += ` AND deadline IS NOT NULL AND deadline < ?`
		args = append(args, f.DeadlineBefore.UTC().Format(timeLayout))
	}

	switch f.OrderBy {
	case booking.OrderByCreatedAtAsc:
		query += ` ORDER BY created_at ASC`
	case booking.OrderByDeadlineAsc:
		query += ` ORDER BY deadline IS NULL, deadline ASC`
	default:
		query += ` ORDER BY created_at DESC`
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []booking.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// TransitionStatus is the sweep's status-only compare-and-set.
func (s *Store) TransitionStatus(ctx context.Context, id booking.RecordID, from, to booking.Status) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE records SET status = ?, version = version + 1
		WHERE id = ? AND status = ?`,
		string(to), string(id), string(from))
	if err != nil {
		return false, mapSQLiteErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		// Distinguish "already transitioned" (idempotent no-op) from a
		// missing record.
		var exists int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM records WHERE id = ?`, string(id)).Scan(&exists); err != nil {
			return false, err
		}
		if exists == 0 {
			return false, booking.ErrNotFound
		}
		return false, nil
	}

	s.notify()
	return true, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// RunAtomic runs fn inside a database transaction. Updates carry the
// version read in this transaction; a row whose version moved fails the
// whole transaction with booking.ErrConflict.
func (s *Store) RunAtomic(ctx context.Context, fn func(booking.Txn) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapSQLiteErr(err)
	}

	txn := &sqlTxn{ctx: ctx, tx: tx, reads: make(map[booking.RecordID]int64)}
	if err := fn(txn); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapSQLiteErr(err)
	}

	if txn.wrote {
		s.notify()
	}
	return nil
}

type sqlTxn struct {
	ctx   context.Context
	tx    *sql.Tx
	reads map[booking.RecordID]int64
	wrote bool
}

func (t *sqlTxn) Get(id booking.RecordID) (booking.Record, error) {
	row := t.tx.QueryRowContext(t.ctx,
		`SELECT `+recordColumns+` FROM records WHERE id = ?`, string(id))
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return booking.Record{}, booking.ErrNotFound
	}
	if err != nil {
		return booking.Record{}, mapSQLiteErr(err)
	}
	t.reads[id] = rec.Version
	return rec, nil
}

func (t *sqlTxn) Update(r booking.Record) error {
	readVersion, ok := t.reads[r.ID]
	if !ok {
		return booking.ErrNotFound
	}
	args, err := recordArgs(r)
	if err != nil {
		return err
	}
	// args[0] is the id; the SET clause skips it.
	args = append(args[1:], string(r.ID), readVersion)

	res, err := t.tx.ExecContext(t.ctx, `
		UPDATE records SET
			kind = ?, owner_id = ?, capacity_target = ?, current_count = ?,
			member_ids = ?, deadline = ?, status = ?, created_at = ?,
			vendor_id = ?, service_type = ?, location = ?, date = ?, time_slot = ?,
			title = ?, author = ?, unit_price = ?,
			version = version + 1
		WHERE id = ? AND version = ?`,
		args...)
	if err != nil {
		return mapSQLiteErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return booking.ErrConflict
	}
	t.wrote = true
	return nil
}

// mapSQLiteErr translates driver-level contention into the engine's
// conflict sentinel so the ledger's retry loop can absorb it.
func mapSQLiteErr(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked {
			return fmt.Errorf("%w: %v", booking.ErrConflict, err)
		}
	}
	return err
}

func repeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}

// =============================================================================
// SUBSCRIPTIONS - In-process fan-out
// =============================================================================

type subscriber struct {
	filter   booking.Filter
	onChange func([]booking.Record)
	onError  func(error)
	views    chan []booking.Record
	stop     chan struct{}
	once     sync.Once
}

type subscription struct {
	store *Store
	id    int
	sub   *subscriber
}

func (s *subscription) Unsubscribe() {
	s.sub.once.Do(func() {
		s.store.subMu.Lock()
		delete(s.store.subs, s.id)
		s.store.subMu.Unlock()
		close(s.sub.stop)
	})
}

func (s *Store) Subscribe(f booking.Filter, onChange func([]booking.Record), onError func(error)) (booking.Subscription, error) {
	sub := &subscriber{
		filter:   f,
		onChange: onChange,
		onError:  onError,
		views:    make(chan []booking.Record, 8),
		stop:     make(chan struct{}),
	}

	view, err := s.Query(context.Background(), f)
	if err != nil {
		return nil, err
	}

	s.subMu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs[id] = sub
	s.subMu.Unlock()

	go sub.deliver()
	sub.push(view)

	return &subscription{store: s, id: id, sub: sub}, nil
}

func (sub *subscriber) push(view []booking.Record) {
	select {
	case sub.views <- view:
	default:
		// Keep only the latest pending view for slow subscribers.
		select {
		case <-sub.views:
		default:
		}
		select {
		case sub.views <- view:
		default:
		}
	}
}

func (sub *subscriber) deliver() {
	for {
		select {
		case <-sub.stop:
			return
		case view := <-sub.views:
			select {
			case <-sub.stop:
				return
			default:
			}
			sub.onChange(view)
		}
	}
}

func (s *Store) notify() {
	s.subMu.Lock()
	subs := make([]*subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subMu.Unlock()

	for _, sub := range subs {
		view, err := s.Query(context.Background(), sub.filter)
		if err != nil {
			if sub.onError != nil {
				sub.onError(err)
			}
			continue
		}
		sub.push(view)
	}
}

// =============================================================================
// PRICE CACHE - pricing.Cache implementation
// =============================================================================

// GetQuote returns the cached quote for a key, if present. Freshness is
// the pricing service's concern; the store only reports what it has.
func (s *Store) GetQuote(ctx context.Context, key string) (pricing.Quote, bool, error) {
	var (
		q         pricing.Quote
		basePrice string
		cachedAt  string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT title, author, base_price, in_stock, cached_at
		FROM price_cache WHERE cache_key = ?`, key).
		Scan(&q.Title, &q.Author, &basePrice, &q.InStock, &cachedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return pricing.Quote{}, false, nil
	}
	if err != nil {
		return pricing.Quote{}, false, err
	}

	if q.BasePrice, err = decimal.NewFromString(basePrice); err != nil {
		return pricing.Quote{}, false, fmt.Errorf("corrupt cached price for %s: %w", key, err)
	}
	if q.CachedAt, err = time.Parse(timeLayout, cachedAt); err != nil {
		return pricing.Quote{}, false, fmt.Errorf("corrupt cache timestamp for %s: %w", key, err)
	}
	return q, true, nil
}

// PutQuote upserts a quote under the key.
func (s *Store) PutQuote(ctx context.Context, key string, q pricing.Quote) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO price_cache (cache_key, title, author, base_price, in_stock, cached_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			title = excluded.title,
			author = excluded.author,
			base_price = excluded.base_price,
			in_stock = excluded.in_stock,
			cached_at = excluded.cached_at`,
		key, q.Title, q.Author, q.BasePrice.String(), q.InStock, q.CachedAt.UTC().Format(timeLayout))
	return err
}
