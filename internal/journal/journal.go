// Package journal records every checkout attempt in a local SQLite
// database so attempts that moved funds without a backend order can be
// found and reconciled later.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/mrz1836/paycart/internal/fileutil"
	paycarterr "github.com/mrz1836/paycart/pkg/errors"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Entry is the journaled state of one checkout attempt.
type Entry struct {
	AttemptID         string          `json:"attempt_id"`
	UserID            string          `json:"user_id"`
	Wallet            string          `json:"wallet"`
	Strategy          string          `json:"strategy"`
	State             string          `json:"state"`
	TotalBase         string          `json:"total_base,omitempty"`
	TotalQuote        string          `json:"total_quote,omitempty"`
	AmountUnits       string          `json:"amount_units,omitempty"`
	BorrowTx          string          `json:"borrow_tx,omitempty"`
	ApproveTx         string          `json:"approve_tx,omitempty"`
	OrderTx           string          `json:"order_tx,omitempty"`
	BlockNumber       uint64          `json:"block_number,omitempty"`
	BlockchainOrderID string          `json:"blockchain_order_id,omitempty"`
	BackendOrderID    string          `json:"backend_order_id,omitempty"`
	ErrorCode         string          `json:"error_code,omitempty"`
	ErrorMessage      string          `json:"error_message,omitempty"`
	Payload           json.RawMessage `json:"payload,omitempty"`
	Reconciled        bool            `json:"reconciled"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// NeedsReconciliation reports whether the attempt moved funds without a
// backend record and has not been fixed yet.
func (e *Entry) NeedsReconciliation() bool {
	if e.Reconciled || e.State != "failed" {
		return false
	}
	return e.ErrorCode == paycarterr.ErrOrderIDNotFound.Code || e.ErrorCode == paycarterr.ErrBackendPersistFailed.Code
}

// Store is the SQLite-backed journal.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the journal database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), fileutil.DirPerm); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	// one writer; also keeps ":memory:" on a single connection
	db.SetMaxOpenConns(1)

	s, err := New(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database and ensures the schema exists.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	s := &Store{db: db, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrating journal: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS checkout_attempts (
		attempt_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		wallet TEXT NOT NULL DEFAULT '',
		strategy TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL,
		total_base TEXT NOT NULL DEFAULT '',
		total_quote TEXT NOT NULL DEFAULT '',
		amount_units TEXT NOT NULL DEFAULT '',
		borrow_tx TEXT NOT NULL DEFAULT '',
		approve_tx TEXT NOT NULL DEFAULT '',
		order_tx TEXT NOT NULL DEFAULT '',
		block_number INTEGER NOT NULL DEFAULT 0,
		blockchain_order_id TEXT NOT NULL DEFAULT '',
		backend_order_id TEXT NOT NULL DEFAULT '',
		error_code TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL DEFAULT '',
		reconciled INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`)
	return err
}

const upsertQuery = `INSERT INTO checkout_attempts (
	attempt_id, user_id, wallet, strategy, state, total_base, total_quote, amount_units,
	borrow_tx, approve_tx, order_tx, block_number, blockchain_order_id, backend_order_id,
	error_code, error_message, payload, reconciled, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(attempt_id) DO UPDATE SET
	wallet = excluded.wallet,
	strategy = excluded.strategy,
	state = excluded.state,
	total_base = excluded.total_base,
	total_quote = excluded.total_quote,
	amount_units = excluded.amount_units,
	borrow_tx = excluded.borrow_tx,
	approve_tx = excluded.approve_tx,
	order_tx = excluded.order_tx,
	block_number = excluded.block_number,
	blockchain_order_id = excluded.blockchain_order_id,
	backend_order_id = excluded.backend_order_id,
	error_code = excluded.error_code,
	error_message = excluded.error_message,
	payload = excluded.payload,
	updated_at = excluded.updated_at`

// Record inserts or updates the attempt. CreatedAt and the reconciled flag
// of an existing row are preserved.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.AttemptID == "" {
		return paycarterr.WithDetails(paycarterr.ErrInvalidInput, map[string]string{"attempt_id": "empty"})
	}
	now := s.now().UTC()
	created := e.CreatedAt
	if created.IsZero() {
		created = now
	}

	_, err := s.db.ExecContext(ctx, upsertQuery,
		e.AttemptID, e.UserID, e.Wallet, e.Strategy, e.State, e.TotalBase, e.TotalQuote, e.AmountUnits,
		e.BorrowTx, e.ApproveTx, e.OrderTx, int64(e.BlockNumber), e.BlockchainOrderID, e.BackendOrderID, //nolint:gosec // block numbers fit in int64
		e.ErrorCode, e.ErrorMessage, string(e.Payload), boolToInt(e.Reconciled),
		created.UTC().Format(timeLayout), now.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("recording attempt %s: %w", e.AttemptID, err)
	}
	return nil
}

const selectColumns = `SELECT attempt_id, user_id, wallet, strategy, state, total_base, total_quote, amount_units,
	borrow_tx, approve_tx, order_tx, block_number, blockchain_order_id, backend_order_id,
	error_code, error_message, payload, reconciled, created_at, updated_at
	FROM checkout_attempts`

// Get returns one attempt or ErrNotFound.
func (s *Store) Get(ctx context.Context, attemptID string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE attempt_id = ?`, attemptID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, paycarterr.WithDetails(paycarterr.ErrNotFound, map[string]string{"attempt_id": attemptID})
	}
	if err != nil {
		return nil, fmt.Errorf("reading attempt %s: %w", attemptID, err)
	}
	return e, nil
}

// List returns the most recent attempts, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.query(ctx, selectColumns+` ORDER BY created_at DESC LIMIT ?`, limit)
}

// ListUnreconciled returns failed attempts that need manual follow-up,
// oldest first.
func (s *Store) ListUnreconciled(ctx context.Context) ([]*Entry, error) {
	return s.query(ctx, selectColumns+` WHERE state = 'failed' AND reconciled = 0 AND error_code IN (?, ?) ORDER BY created_at ASC`,
		paycarterr.ErrOrderIDNotFound.Code, paycarterr.ErrBackendPersistFailed.Code)
}

// MarkReconciled flags the attempt as fixed with the backend order id.
func (s *Store) MarkReconciled(ctx context.Context, attemptID, backendOrderID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE checkout_attempts SET reconciled = 1, backend_order_id = ?, updated_at = ? WHERE attempt_id = ?`,
		backendOrderID, s.now().UTC().Format(timeLayout), attemptID)
	if err != nil {
		return fmt.Errorf("reconciling attempt %s: %w", attemptID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reconciling attempt %s: %w", attemptID, err)
	}
	if n == 0 {
		return paycarterr.WithDetails(paycarterr.ErrNotFound, map[string]string{"attempt_id": attemptID})
	}
	return nil
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Entry
	for rows.Next() {
		e, scanErr := scanEntry(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning journal row: %w", scanErr)
		}
		out = append(out, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var (
		e          Entry
		block      int64
		payload    string
		reconciled int64
		created    string
		updated    string
	)
	err := row.Scan(&e.AttemptID, &e.UserID, &e.Wallet, &e.Strategy, &e.State, &e.TotalBase, &e.TotalQuote, &e.AmountUnits,
		&e.BorrowTx, &e.ApproveTx, &e.OrderTx, &block, &e.BlockchainOrderID, &e.BackendOrderID,
		&e.ErrorCode, &e.ErrorMessage, &payload, &reconciled, &created, &updated)
	if err != nil {
		return nil, err
	}
	e.BlockNumber = uint64(block) //nolint:gosec // stored from a uint64
	if payload != "" {
		e.Payload = json.RawMessage(payload)
	}
	e.Reconciled = reconciled != 0
	e.CreatedAt = parseTime(created)
	e.UpdatedAt = parseTime(updated)
	return &e, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
