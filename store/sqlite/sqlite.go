/*
Package sqlite provides a SQLite-backed implementation of the repositories.

PURPOSE:
  Persists shifts, medical leaves and the property directory so the server
  survives restarts. In production, the same patterns apply to PostgreSQL -
  only minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  roster.ShiftRepository:  shifts + their worker rows
  roster.LeaveRepository:  medical leaves with compare-and-set decisions
  directory.Directory:     property postal codes

KEY TABLES:
  shifts:         one row per shift; dates as YYYY-MM-DD, times as minutes
  shift_workers:  (shift_id, worker_id, present) - assignment and attendance
  leaves:         medical leaves and their decision
  properties:     property id -> postal code / address

INDEXES:
  - idx_shift_workers_worker: ListByWorker and overlap checks (hot path)
  - idx_shifts_date:          date-range listings and payroll discovery
  - idx_leaves_worker_dates:  approved-leave lookups during ranking
  - idx_leaves_state:         pending queue

DECISIONS:
  Decide is a single conditional UPDATE ... WHERE state = 'PENDING'. Zero
  rows affected means someone else decided first; the stored state is read
  back and reported as a *roster.DecisionError.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. Business-level atomicity (overlap
  check + write) is held by shifts.Store; this lock only keeps multi-statement
  writes from interleaving.

USAGE:
  store, err := sqlite.New("./data/shifts.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  shiftStore := shifts.NewStore(store)

SEE ALSO:
  - roster/store.go: interface definitions
  - roster/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/warp/shift-engine/calendar"
	"github.com/warp/shift-engine/directory"
	"github.com/warp/shift-engine/roster"
)

// Store implements the repositories using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ roster.Repository   = (*Store)(nil)
	_ directory.Directory = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes
	// writers the way SQLite wants anyway.
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

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Shifts
	CREATE TABLE IF NOT EXISTS shifts (
		id TEXT PRIMARY KEY,
		property_ref TEXT NOT NULL,
		client_ref TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL,
		start_min INTEGER NOT NULL,
		end_min INTEGER NOT NULL,
		status TEXT NOT NULL,
		rescheduled BOOLEAN NOT NULL DEFAULT FALSE,
		original_date TEXT,
		original_start INTEGER,
		original_end INTEGER,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		CHECK (start_min < end_min)
	);

	CREATE INDEX IF NOT EXISTS idx_shifts_date
		ON shifts(date, start_min);

	-- Assignment and attendance
	CREATE TABLE IF NOT EXISTS shift_workers (
		shift_id TEXT NOT NULL REFERENCES shifts(id) ON DELETE CASCADE,
		worker_id TEXT NOT NULL,
		present BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (shift_id, worker_id)
	);

	CREATE INDEX IF NOT EXISTS idx_shift_workers_worker
		ON shift_workers(worker_id);

	-- Medical leaves
	CREATE TABLE IF NOT EXISTS leaves (
		id TEXT PRIMARY KEY,
		worker_ref TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		certificate_ref TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT 'PENDING',
		decided_by TEXT,
		decided_at TEXT,
		rejection_reason TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		CHECK (start_date <= end_date)
	);

	CREATE INDEX IF NOT EXISTS idx_leaves_worker_dates
		ON leaves(worker_ref, start_date, end_date);
	CREATE INDEX IF NOT EXISTS idx_leaves_state
		ON leaves(state);

	-- Property directory
	CREATE TABLE IF NOT EXISTS properties (
		id TEXT PRIMARY KEY,
		postal_code TEXT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// SHIFT STORE (roster.ShiftRepository)
// =============================================================================

const shiftColumns = `id, property_ref, client_ref, date, start_min, end_min, status,
	rescheduled, original_date, original_start, original_end, created_at, updated_at`

// InsertShift stores a new shift and its workers atomically.
func (s *Store) InsertShift(ctx context.Context, sh roster.Shift) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO shifts (` + shiftColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, query, shiftArgs(sh)...); err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("shift %s already exists", sh.ID)
		}
		return fmt.Errorf("failed to insert shift: %w", err)
	}
	if err := writeWorkers(ctx, tx, sh); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateShift replaces a shift row and its worker rows.
func (s *Store) UpdateShift(ctx context.Context, sh roster.Shift) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE shifts SET
			property_ref = ?, client_ref = ?, date = ?, start_min = ?, end_min = ?,
			status = ?, rescheduled = ?, original_date = ?, original_start = ?,
			original_end = ?, updated_at = ?
		WHERE id = ?
	`
	// shiftArgs minus id and created_at, then the key.
	cols := shiftArgs(sh)
	args := append(append([]any{}, cols[1:11]...), cols[12], sh.ID)
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update shift: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &roster.NotFoundError{Kind: "shift", ID: string(sh.ID)}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM shift_workers WHERE shift_id = ?`, sh.ID); err != nil {
		return fmt.Errorf("failed to clear shift workers: %w", err)
	}
	if err := writeWorkers(ctx, tx, sh); err != nil {
		return err
	}
	return tx.Commit()
}

// GetShift retrieves a shift by ID.
func (s *Store) GetShift(ctx context.Context, id roster.ShiftID) (*roster.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list, err := s.queryShifts(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, &roster.NotFoundError{Kind: "shift", ID: string(id)}
	}
	return &list[0], nil
}

// ShiftsByWorker returns the worker's shifts dated within the period.
func (s *Store) ShiftsByWorker(ctx context.Context, worker roster.WorkerID, period calendar.Period) ([]roster.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + prefixed("s.", shiftColumns) + `
		FROM shifts s
		JOIN shift_workers w ON w.shift_id = s.id
		WHERE w.worker_id = ? AND s.date >= ? AND s.date <= ?
		ORDER BY s.date ASC, s.start_min ASC, s.id ASC
	`
	return s.queryShifts(ctx, query, worker, calendar.FormatDate(period.Start), calendar.FormatDate(period.End))
}

// ShiftsByDate returns every shift dated within the period.
func (s *Store) ShiftsByDate(ctx context.Context, period calendar.Period) ([]roster.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + shiftColumns + `
		FROM shifts
		WHERE date >= ? AND date <= ?
		ORDER BY date ASC, start_min ASC, id ASC
	`
	return s.queryShifts(ctx, query, calendar.FormatDate(period.Start), calendar.FormatDate(period.End))
}

func shiftArgs(sh roster.Shift) []any {
	var origDate sql.NullString
	var origStart, origEnd sql.NullInt64
	if sh.OriginalDate != nil {
		origDate = sql.NullString{String: calendar.FormatDate(*sh.OriginalDate), Valid: true}
	}
	if sh.OriginalStart != nil {
		origStart = sql.NullInt64{Int64: int64(*sh.OriginalStart), Valid: true}
	}
	if sh.OriginalEnd != nil {
		origEnd = sql.NullInt64{Int64: int64(*sh.OriginalEnd), Valid: true}
	}
	return []any{
		sh.ID,
		sh.PropertyRef,
		sh.ClientRef,
		calendar.FormatDate(sh.Date),
		int(sh.Start),
		int(sh.End),
		sh.Status,
		sh.Rescheduled,
		origDate,
		origStart,
		origEnd,
		formatTimestamp(sh.CreatedAt),
		formatTimestamp(sh.UpdatedAt),
	}
}

func writeWorkers(ctx context.Context, db execer, sh roster.Shift) error {
	for _, w := range sh.AssignedWorkers {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO shift_workers (shift_id, worker_id, present) VALUES (?, ?, ?)`,
			sh.ID, w, sh.IsPresent(w),
		); err != nil {
			return fmt.Errorf("failed to store worker %s on shift %s: %w", w, sh.ID, err)
		}
	}
	return nil
}

// queryShifts scans shift rows, closes them, then loads the worker rows.
// Caller holds mu.
func (s *Store) queryShifts(ctx context.Context, query string, args ...any) ([]roster.Shift, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query shifts: %w", err)
	}

	var list []roster.Shift
	index := make(map[roster.ShiftID]int)
	for rows.Next() {
		sh, err := scanShift(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		index[sh.ID] = len(list)
		list = append(list, sh)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(list) == 0 {
		return []roster.Shift{}, nil
	}
	if err := s.loadWorkers(ctx, list, index); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *Store) loadWorkers(ctx context.Context, list []roster.Shift, index map[roster.ShiftID]int) error {
	placeholders := make([]string, len(list))
	args := make([]any, len(list))
	for i, sh := range list {
		placeholders[i] = "?"
		args[i] = sh.ID
	}
	query := `
		SELECT shift_id, worker_id, present
		FROM shift_workers
		WHERE shift_id IN (` + strings.Join(placeholders, ",") + `)
		ORDER BY shift_id ASC, worker_id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query shift workers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var shiftID roster.ShiftID
		var worker roster.WorkerID
		var present bool
		if err := rows.Scan(&shiftID, &worker, &present); err != nil {
			return err
		}
		sh := &list[index[shiftID]]
		sh.AssignedWorkers = append(sh.AssignedWorkers, worker)
		if present {
			sh.PresentWorkers = append(sh.PresentWorkers, worker)
		}
	}
	return rows.Err()
}

func scanShift(rows *sql.Rows) (roster.Shift, error) {
	var sh roster.Shift
	var date, createdAt, updatedAt string
	var start, end int
	var origDate sql.NullString
	var origStart, origEnd sql.NullInt64

	if err := rows.Scan(
		&sh.ID, &sh.PropertyRef, &sh.ClientRef, &date, &start, &end, &sh.Status,
		&sh.Rescheduled, &origDate, &origStart, &origEnd, &createdAt, &updatedAt,
	); err != nil {
		return roster.Shift{}, fmt.Errorf("failed to scan shift: %w", err)
	}

	var err error
	if sh.Date, err = calendar.ParseDate(date); err != nil {
		return roster.Shift{}, err
	}
	sh.Start, sh.End = calendar.Clock(start), calendar.Clock(end)
	if origDate.Valid {
		d, err := calendar.ParseDate(origDate.String)
		if err != nil {
			return roster.Shift{}, err
		}
		sh.OriginalDate = &d
	}
	if origStart.Valid {
		c := calendar.Clock(origStart.Int64)
		sh.OriginalStart = &c
	}
	if origEnd.Valid {
		c := calendar.Clock(origEnd.Int64)
		sh.OriginalEnd = &c
	}
	sh.CreatedAt = parseTimestamp(createdAt)
	sh.UpdatedAt = parseTimestamp(updatedAt)
	return sh, nil
}

// =============================================================================
// LEAVE STORE (roster.LeaveRepository)
// =============================================================================

const leaveColumns = `id, worker_ref, start_date, end_date, certificate_ref, reason, state,
	decided_by, decided_at, rejection_reason, created_at`

// InsertLeave stores a new leave.
func (s *Store) InsertLeave(ctx context.Context, l roster.MedicalLeave) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var decidedBy, decidedAt sql.NullString
	if l.DecidedBy != nil {
		decidedBy = nullString(string(*l.DecidedBy))
	}
	if l.DecidedAt != nil {
		decidedAt = nullString(formatTimestamp(*l.DecidedAt))
	}

	query := `INSERT INTO leaves (` + leaveColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		l.ID, l.WorkerRef, calendar.FormatDate(l.StartDate), calendar.FormatDate(l.EndDate),
		l.CertificateRef, l.Reason, l.State, decidedBy, decidedAt, l.RejectionReason,
		formatTimestamp(l.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("leave %s already exists", l.ID)
		}
		return fmt.Errorf("failed to insert leave: %w", err)
	}
	return nil
}

// GetLeave retrieves a leave by ID.
func (s *Store) GetLeave(ctx context.Context, id roster.LeaveID) (*roster.MedicalLeave, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLeave(ctx, id)
}

func (s *Store) getLeave(ctx context.Context, id roster.LeaveID) (*roster.MedicalLeave, error) {
	list, err := s.queryLeaves(ctx, `SELECT `+leaveColumns+` FROM leaves WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, &roster.NotFoundError{Kind: "leave", ID: string(id)}
	}
	return &list[0], nil
}

// Decide moves a PENDING leave to state with one conditional UPDATE.
func (s *Store) Decide(ctx context.Context, id roster.LeaveID, state roster.ApprovalState, by roster.WorkerID, at time.Time, reason string) (*roster.MedicalLeave, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state == roster.LeaveApproved {
		reason = ""
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE leaves
		SET state = ?, decided_by = ?, decided_at = ?, rejection_reason = ?
		WHERE id = ? AND state = ?
	`, state, by, formatTimestamp(at), reason, id, roster.LeavePending)
	if err != nil {
		return nil, fmt.Errorf("failed to decide leave %s: %w", id, err)
	}

	current, err := s.getLeave(ctx, id)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, &roster.DecisionError{LeaveID: id, State: current.State}
	}
	return current, nil
}

// LeavesByWorker returns the worker's leaves overlapping the period.
func (s *Store) LeavesByWorker(ctx context.Context, worker roster.WorkerID, period calendar.Period, state roster.ApprovalState) ([]roster.MedicalLeave, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + leaveColumns + `
		FROM leaves
		WHERE worker_ref = ? AND start_date <= ? AND end_date >= ?
		  AND (? = '' OR state = ?)
		ORDER BY start_date ASC, created_at ASC, id ASC
	`
	return s.queryLeaves(ctx, query, worker,
		calendar.FormatDate(period.End), calendar.FormatDate(period.Start), state, state)
}

// LeavesByState returns every leave in the state, oldest first.
func (s *Store) LeavesByState(ctx context.Context, state roster.ApprovalState) ([]roster.MedicalLeave, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + leaveColumns + `
		FROM leaves
		WHERE state = ?
		ORDER BY created_at ASC, id ASC
	`
	return s.queryLeaves(ctx, query, state)
}

func (s *Store) queryLeaves(ctx context.Context, query string, args ...any) ([]roster.MedicalLeave, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaves: %w", err)
	}
	defer rows.Close()

	leaves := []roster.MedicalLeave{}
	for rows.Next() {
		var l roster.MedicalLeave
		var start, end, createdAt string
		var decidedBy, decidedAt sql.NullString
		if err := rows.Scan(
			&l.ID, &l.WorkerRef, &start, &end, &l.CertificateRef, &l.Reason, &l.State,
			&decidedBy, &decidedAt, &l.RejectionReason, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan leave: %w", err)
		}
		if l.StartDate, err = calendar.ParseDate(start); err != nil {
			return nil, err
		}
		if l.EndDate, err = calendar.ParseDate(end); err != nil {
			return nil, err
		}
		if decidedBy.Valid {
			w := roster.WorkerID(decidedBy.String)
			l.DecidedBy = &w
		}
		if decidedAt.Valid {
			t := parseTimestamp(decidedAt.String)
			l.DecidedAt = &t
		}
		l.CreatedAt = parseTimestamp(createdAt)
		leaves = append(leaves, l)
	}
	return leaves, rows.Err()
}

// =============================================================================
// PROPERTY DIRECTORY (directory.Directory)
// =============================================================================

// SaveProperty inserts or replaces a property.
func (s *Store) SaveProperty(ctx context.Context, p directory.Property) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO properties (id, postal_code, address, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			postal_code = excluded.postal_code,
			address = excluded.address,
			updated_at = excluded.updated_at
	`, p.ID, p.PostalCode, p.Address, formatTimestamp(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to save property %s: %w", p.ID, err)
	}
	return nil
}

// ResolveProperty looks a property up by id.
func (s *Store) ResolveProperty(ctx context.Context, id roster.PropertyID) (directory.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var p directory.Property
	err := s.db.QueryRowContext(ctx,
		`SELECT id, postal_code, address FROM properties WHERE id = ?`, id,
	).Scan(&p.ID, &p.PostalCode, &p.Address)
	if errors.Is(err, sql.ErrNoRows) {
		return directory.Property{}, &roster.NotFoundError{Kind: "property", ID: string(id)}
	}
	if err != nil {
		return directory.Property{}, fmt.Errorf("failed to load property %s: %w", id, err)
	}
	return p, nil
}

// =============================================================================
// MAINTENANCE
// =============================================================================

// Reset deletes all rows. Used by tests and the dev reset endpoint.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"shift_workers", "shifts", "leaves", "properties"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTimestamp(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTimestamp(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func prefixed(prefix, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
