/*
Package sqlite provides a SQLite-backed ledger.Ledger.

PURPOSE:
  Stores worksheet-shaped tables: each sheet is an ordered list of rows,
  each row a JSON array of strings. Several sheets can share one database
  file; the desk uses one (BASE_CONTROLE by default).

POSITIONS:
  A row's position is its ordinal among the sheet's rows ordered by seq.
  Row 0 is the header. Positions shift when rows are deleted, exactly like
  a spreadsheet, which is why callers re-resolve them before each write.

ATOMICITY:
  UpdateCells locates and rewrites the row inside one SQL transaction.
  Nothing spans calls.

WAL MODE:
  Opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time

USAGE:
  store, err := sqlite.New("./data/ccbdesk.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  repo := ccb.NewRepository(store.Sheet("BASE_CONTROLE"), loc)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - ledger/ledger.go: Interface definition
  - ledger/memory.go: In-memory implementation for testing
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

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/ccbdesk/ledger"
)

// Store owns the database handle. Use Sheet to get a ledger.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: ":memory:" databases are per-connection, and SQLite
	// serializes writers anyway.
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
	CREATE TABLE IF NOT EXISTS ledger_rows (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		sheet TEXT NOT NULL,
		cells_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Positional reads (ORDER BY seq within a sheet) are the hot path
	CREATE INDEX IF NOT EXISTS idx_ledger_rows_sheet_seq
		ON ledger_rows(sheet, seq);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Sheet returns the ledger for one named sheet.
func (s *Store) Sheet(name string) *Sheet {
	return &Sheet{store: s, name: name}
}

// Sheets lists the sheet names that hold at least one row.
func (s *Store) Sheets(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT sheet FROM ledger_rows ORDER BY sheet`)
	if err != nil {
		return nil, ledger.Unavailable("list sheets", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, ledger.Unavailable("list sheets", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, ledger.Unavailable("list sheets", err)
	}
	return names, nil
}

// =============================================================================
// SHEET (ledger.Ledger interface)
// =============================================================================

// Sheet is one named table in the store.
type Sheet struct {
	store *Store
	name  string
}

func (sh *Sheet) Name() string { return sh.name }

// ReadAll returns the sheet's rows in position order.
func (sh *Sheet) ReadAll(ctx context.Context) ([]ledger.Row, error) {
	sh.store.mu.RLock()
	defer sh.store.mu.RUnlock()

	rows, err := sh.store.db.QueryContext(ctx,
		`SELECT cells_json FROM ledger_rows WHERE sheet = ? ORDER BY seq ASC`, sh.name)
	if err != nil {
		return nil, ledger.Unavailable("read all", err)
	}
	defer rows.Close()

	out := []ledger.Row{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, ledger.Unavailable("read all", err)
		}
		row, err := decodeRow(raw)
		if err != nil {
			return nil, ledger.Unavailable("read all", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, ledger.Unavailable("read all", err)
	}
	return out, nil
}

// AppendRow adds a row at the end of the sheet.
func (sh *Sheet) AppendRow(ctx context.Context, row ledger.Row) error {
	sh.store.mu.Lock()
	defer sh.store.mu.Unlock()

	raw, err := encodeRow(row)
	if err != nil {
		return err
	}
	_, err = sh.store.db.ExecContext(ctx,
		`INSERT INTO ledger_rows (sheet, cells_json, updated_at) VALUES (?, ?, ?)`,
		sh.name, raw, now())
	if err != nil {
		return ledger.Unavailable("append row", err)
	}
	return nil
}

// UpdateCells rewrites the given columns of the row at rowIndex.
func (sh *Sheet) UpdateCells(ctx context.Context, rowIndex int, cells []ledger.Cell) error {
	if rowIndex < 0 {
		return fmt.Errorf("%w: %d", ledger.ErrRowOutOfRange, rowIndex)
	}

	sh.store.mu.Lock()
	defer sh.store.mu.Unlock()

	sqlTx, err := sh.store.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.Unavailable("update cells", err)
	}
	defer sqlTx.Rollback()

	var (
		seq int64
		raw string
	)
	err = sqlTx.QueryRowContext(ctx,
		`SELECT seq, cells_json FROM ledger_rows WHERE sheet = ? ORDER BY seq ASC LIMIT 1 OFFSET ?`,
		sh.name, rowIndex,
	).Scan(&seq, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %d", ledger.ErrRowOutOfRange, rowIndex)
	}
	if err != nil {
		return ledger.Unavailable("update cells", err)
	}

	current, err := decodeRow(raw)
	if err != nil {
		return ledger.Unavailable("update cells", err)
	}
	updated, err := ledger.ApplyCells(current, cells)
	if err != nil {
		return err
	}
	encoded, err := encodeRow(updated)
	if err != nil {
		return err
	}

	if _, err := sqlTx.ExecContext(ctx,
		`UPDATE ledger_rows SET cells_json = ?, updated_at = ? WHERE seq = ?`,
		encoded, now(), seq,
	); err != nil {
		return ledger.Unavailable("update cells", err)
	}

	if err := sqlTx.Commit(); err != nil {
		return ledger.Unavailable("update cells", err)
	}
	return nil
}

// DeleteRow removes the row at rowIndex. Later rows move up one position.
func (sh *Sheet) DeleteRow(ctx context.Context, rowIndex int) error {
	sh.store.mu.Lock()
	defer sh.store.mu.Unlock()

	res, err := sh.store.db.ExecContext(ctx, `
		DELETE FROM ledger_rows WHERE seq = (
			SELECT seq FROM ledger_rows WHERE sheet = ? ORDER BY seq ASC LIMIT 1 OFFSET ?
		)`, sh.name, rowIndex)
	if err != nil {
		return ledger.Unavailable("delete row", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", ledger.ErrRowOutOfRange, rowIndex)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func encodeRow(row ledger.Row) (string, error) {
	if row == nil {
		row = ledger.Row{}
	}
	b, err := json.Marshal([]string(row))
	if err != nil {
		return "", fmt.Errorf("encode row: %w", err)
	}
	return string(b), nil
}

func decodeRow(raw string) (ledger.Row, error) {
	var cells []string
	if err := json.Unmarshal([]byte(raw), &cells); err != nil {
		return nil, fmt.Errorf("decode row: %w", err)
	}
	return ledger.Row(cells), nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
