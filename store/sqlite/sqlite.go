/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements persistence for the booking core using SQLite. In production
  the same patterns apply to PostgreSQL - only minor SQL dialect
  differences.

INTERFACES IMPLEMENTED:
  engine.Store:                 booking entry persistence (append-only)
  identity.Sequence:            per-pattern identifier sequence numbers
  commission.CustomerDirectory: customer attribute snapshots

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements touch booking fields of the entries table
  - No DELETE statements exist for entries
  - The single sanctioned mutation sets superseded_by, a back-reference

KEY TABLES:
  entries:    Immutable booking ledger
  sequences:  Last issued number per identifier pattern
  rates:      Commission rate table rows (introducer-keyed)
  customers:  Attribute snapshots maintained by the host CRUD layer

INDEXES:
  - idx_entries_staff_date / idx_entries_customer_date: conflict checks
  - idx_entries_customer_month: monthly aggregation (hot path)
  - unique index on idempotency_key

WAL MODE:
  SQLite is opened with WAL for better concurrency: multiple readers
  don't block, single writer at a time.

USAGE:
  store, err := sqlite.New("./data/bookings.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := engine.NewLedger(store)

SEE ALSO:
  - engine/store.go: Interface definitions
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/caretide/booking-engine/commission"
	"github.com/caretide/booking-engine/engine"
	"github.com/caretide/booking-engine/identity"
)

// Store implements the storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps :memory: databases coherent across goroutines.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Booking entries (append-only ledger)
	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		staff_id TEXT NOT NULL,
		service_date TEXT NOT NULL,
		start_minute INTEGER NOT NULL,
		end_minute INTEGER NOT NULL,
		hours TEXT NOT NULL,
		fee TEXT NOT NULL,
		staff_salary TEXT NOT NULL,
		category TEXT NOT NULL,
		supersedes TEXT,
		superseded_by TEXT,
		idempotency_key TEXT UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_staff_date
		ON entries(staff_id, service_date);
	CREATE INDEX IF NOT EXISTS idx_entries_customer_date
		ON entries(customer_id, service_date);
	CREATE INDEX IF NOT EXISTS idx_entries_customer_month
		ON entries(customer_id, substr(service_date, 1, 7));

	-- Identifier sequences (one row per pattern)
	CREATE TABLE IF NOT EXISTS sequences (
		pattern TEXT PRIMARY KEY,
		last_number INTEGER NOT NULL DEFAULT 0
	);

	-- Commission rate table (introducer-keyed reference configuration)
	CREATE TABLE IF NOT EXISTS rates (
		introducer TEXT PRIMARY KEY,
		first_month_rate TEXT NOT NULL,
		subsequent_month_rate TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Customer attribute snapshots (maintained by the host CRUD layer)
	CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		customer_type TEXT NOT NULL,
		voucher_status TEXT NOT NULL DEFAULT 'none',
		introducer TEXT NOT NULL DEFAULT '',
		identifier TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ENGINE.STORE - Entry persistence
// =============================================================================

func (s *Store) Append(ctx context.Context, entry engine.BookingEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.IdempotencyKey != "" {
		var n int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM entries WHERE idempotency_key = ?`, entry.IdempotencyKey).Scan(&n)
		if err != nil {
			return err
		}
		if n > 0 {
			return engine.ErrDuplicateIdempotencyKey
		}
	}

	idemp := sql.NullString{String: entry.IdempotencyKey, Valid: entry.IdempotencyKey != ""}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entries (
			id, customer_id, staff_id, service_date, start_minute, end_minute,
			hours, fee, staff_salary, category, supersedes, superseded_by,
			idempotency_key, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(entry.ID), string(entry.CustomerID), string(entry.StaffID),
		entry.ServiceDate.String(), int(entry.Start), int(entry.End),
		entry.Hours.String(), entry.Fee.String(), entry.StaffSalary.String(),
		string(entry.Category), string(entry.Supersedes), string(entry.SupersededBy),
		idemp, entry.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) MarkSuperseded(ctx context.Context, old, by engine.EntryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// The one mutation: sets the retirement back-reference, nothing else.
	res, err := s.db.ExecContext(ctx, `
		UPDATE entries SET superseded_by = ?
		WHERE id = ? AND (superseded_by IS NULL OR superseded_by = '')`,
		string(by), string(old))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var n int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM entries WHERE id = ?`, string(old)).Scan(&n); err != nil {
			return err
		}
		if n == 0 {
			return engine.ErrEntryNotFound
		}
		return engine.ErrEntryRetired
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id engine.EntryID) (*engine.BookingEntry, error) {
	rows, err := s.queryEntries(ctx, `WHERE id = ?`, string(id))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (s *Store) QueryByActorDate(ctx context.Context, kind engine.ActorKind, actorID string, date engine.Date) ([]engine.BookingEntry, error) {
	column := "customer_id"
	if kind == engine.ActorStaff {
		column = "staff_id"
	}
	return s.queryEntries(ctx,
		fmt.Sprintf(`WHERE %s = ? AND service_date = ? ORDER BY start_minute`, column),
		actorID, date.String())
}

func (s *Store) QueryByCustomerMonth(ctx context.Context, customerID engine.CustomerID, ym engine.YearMonth) ([]engine.BookingEntry, error) {
	return s.queryEntries(ctx,
		`WHERE customer_id = ? AND substr(service_date, 1, 7) = ? ORDER BY service_date, start_minute`,
		string(customerID), ym.String())
}

func (s *Store) MonthsWithEntries(ctx context.Context, customerID engine.CustomerID) ([]engine.YearMonth, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT substr(service_date, 1, 7) AS month
		FROM entries WHERE customer_id = ?
		ORDER BY month`, string(customerID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var months []engine.YearMonth
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		ym, err := engine.ParseYearMonth(m)
		if err != nil {
			return nil, err
		}
		months = append(months, ym)
	}
	return months, rows.Err()
}

func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM entries WHERE idempotency_key = ?`, idempotencyKey).Scan(&n)
	return n > 0, err
}

func (s *Store) queryEntries(ctx context.Context, where string, args ...any) ([]engine.BookingEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, staff_id, service_date, start_minute, end_minute,
		       hours, fee, staff_salary, category,
		       COALESCE(supersedes, ''), COALESCE(superseded_by, ''),
		       COALESCE(idempotency_key, ''), created_at
		FROM entries `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []engine.BookingEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (engine.BookingEntry, error) {
	var (
		e                             engine.BookingEntry
		id, customerID, staffID       string
		date, hours, fee, salary      string
		category, supersedes, superBy string
		idemp, createdAt              string
		startMin, endMin              int
	)
	if err := rows.Scan(&id, &customerID, &staffID, &date, &startMin, &endMin,
		&hours, &fee, &salary, &category, &supersedes, &superBy, &idemp, &createdAt); err != nil {
		return e, err
	}

	serviceDate, err := engine.ParseDate(date)
	if err != nil {
		return e, err
	}
	h, err := decimal.NewFromString(hours)
	if err != nil {
		return e, err
	}
	f, err := decimal.NewFromString(fee)
	if err != nil {
		return e, err
	}
	sal, err := decimal.NewFromString(salary)
	if err != nil {
		return e, err
	}
	created, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return e, err
	}

	return engine.BookingEntry{
		ID:             engine.EntryID(id),
		CustomerID:     engine.CustomerID(customerID),
		StaffID:        engine.StaffID(staffID),
		ServiceDate:    serviceDate,
		Start:          engine.TimeOfDay(startMin),
		End:            engine.TimeOfDay(endMin),
		Hours:          h,
		Fee:            f,
		StaffSalary:    sal,
		Category:       engine.Category(category),
		Supersedes:     engine.EntryID(supersedes),
		SupersededBy:   engine.EntryID(superBy),
		IdempotencyKey: idemp,
		CreatedAt:      created,
	}, nil
}

// =============================================================================
// IDENTITY.SEQUENCE - Per-pattern sequence numbers
// =============================================================================

// Next atomically bumps and returns the pattern's sequence number.
func (s *Store) Next(ctx context.Context, pattern identity.Pattern) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sequences (pattern, last_number) VALUES (?, 0)
		ON CONFLICT(pattern) DO NOTHING`, string(pattern)); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE sequences SET last_number = last_number + 1 WHERE pattern = ?`,
		string(pattern)); err != nil {
		return 0, err
	}

	var n int64
	if err := tx.QueryRowContext(ctx,
		`SELECT last_number FROM sequences WHERE pattern = ?`, string(pattern)).Scan(&n); err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

// =============================================================================
// CUSTOMERS - Attribute snapshots
// =============================================================================

func (s *Store) SaveCustomer(ctx context.Context, c engine.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, customer_type, voucher_status, introducer, identifier, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			customer_type = excluded.customer_type,
			voucher_status = excluded.voucher_status,
			introducer = excluded.introducer,
			identifier = excluded.identifier,
			updated_at = excluded.updated_at`,
		string(c.ID), c.Name, string(c.Type), string(c.VoucherStatus),
		c.Introducer, c.Identifier, time.Now().UTC().Format(time.RFC3339))
	return err
}

// Customer implements commission.CustomerDirectory. Returns nil when the
// customer doesn't exist.
func (s *Store) Customer(ctx context.Context, id engine.CustomerID) (*engine.Customer, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, customer_type, voucher_status, introducer, identifier
		FROM customers WHERE id = ?`, string(id))

	var c engine.Customer
	var cid, ctype, vstatus string
	err := row.Scan(&cid, &c.Name, &ctype, &vstatus, &c.Introducer, &c.Identifier)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.ID = engine.CustomerID(cid)
	c.Type = engine.CustomerType(ctype)
	c.VoucherStatus = engine.VoucherStatus(vstatus)
	return &c, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]engine.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, customer_type, voucher_status, introducer, identifier
		FROM customers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var customers []engine.Customer
	for rows.Next() {
		var c engine.Customer
		var cid, ctype, vstatus string
		if err := rows.Scan(&cid, &c.Name, &ctype, &vstatus, &c.Introducer, &c.Identifier); err != nil {
			return nil, err
		}
		c.ID = engine.CustomerID(cid)
		c.Type = engine.CustomerType(ctype)
		c.VoucherStatus = engine.VoucherStatus(vstatus)
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

// =============================================================================
// RATE TABLE - Reference configuration
// =============================================================================

func (s *Store) SaveRate(ctx context.Context, row commission.RateRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rates (introducer, first_month_rate, subsequent_month_rate, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(introducer) DO UPDATE SET
			first_month_rate = excluded.first_month_rate,
			subsequent_month_rate = excluded.subsequent_month_rate,
			updated_at = excluded.updated_at`,
		row.Introducer, row.FirstMonthRate.String(), row.SubsequentMonthRate.String(),
		time.Now().UTC().Format(time.RFC3339))
	return err
}

func (s *Store) ListRates(ctx context.Context) (commission.RateTable, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT introducer, first_month_rate, subsequent_month_rate FROM rates`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	table := make(commission.RateTable)
	for rows.Next() {
		var introducer, first, subsequent string
		if err := rows.Scan(&introducer, &first, &subsequent); err != nil {
			return nil, err
		}
		f, err := decimal.NewFromString(first)
		if err != nil {
			return nil, err
		}
		sub, err := decimal.NewFromString(subsequent)
		if err != nil {
			return nil, err
		}
		table[introducer] = commission.RateRow{
			Introducer:          introducer,
			FirstMonthRate:      f,
			SubsequentMonthRate: sub,
		}
	}
	return table, rows.Err()
}
