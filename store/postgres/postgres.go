/*
Package postgres provides a PostgreSQL-backed ledger.Ledger.

Same row model as store/sqlite: one table, rows grouped by sheet, positions
are ordinals by seq. UpdateCells locks the target row (FOR UPDATE) for the
length of its own transaction and no longer.

SEE ALSO:
  - store/sqlite/sqlite.go: Embedded equivalent
  - ledger/ledger.go: Interface definition
*/
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warp/ccbdesk/ledger"
)

// NewPool constructs a pgx connection pool using the provided connection string.
func NewPool(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	if connString == "" {
		return nil, fmt.Errorf("postgres: empty connection string")
	}

	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}

	return pgxpool.NewWithConfig(ctx, cfg)
}

// Store holds the pool. Use Sheet to get a ledger.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps a pool and applies the schema.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return s, nil
}

// Open parses connString, connects, and migrates.
func Open(ctx context.Context, connString string) (*Store, error) {
	pool, err := NewPool(ctx, connString)
	if err != nil {
		return nil, err
	}
	s, err := New(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS ledger_rows (
			seq BIGSERIAL PRIMARY KEY,
			sheet TEXT NOT NULL,
			cells JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_rows_sheet_seq ON ledger_rows (sheet, seq);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Sheet returns the ledger for one named sheet.
func (s *Store) Sheet(name string) *Sheet {
	return &Sheet{pool: s.pool, name: name}
}

// Sheet is one named table in the store.
type Sheet struct {
	pool *pgxpool.Pool
	name string
}

func (sh *Sheet) ReadAll(ctx context.Context) ([]ledger.Row, error) {
	const selectSQL = `
		SELECT cells
		FROM ledger_rows
		WHERE sheet = $1
		ORDER BY seq
	`

	rows, err := sh.pool.Query(ctx, selectSQL, sh.name)
	if err != nil {
		return nil, ledger.Unavailable("read all", err)
	}
	defer rows.Close()

	out := []ledger.Row{}
	for rows.Next() {
		var raw []byte
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

func (sh *Sheet) AppendRow(ctx context.Context, row ledger.Row) error {
	const insertSQL = `INSERT INTO ledger_rows (sheet, cells) VALUES ($1, $2::jsonb)`

	raw, err := encodeRow(row)
	if err != nil {
		return err
	}
	if _, err := sh.pool.Exec(ctx, insertSQL, sh.name, raw); err != nil {
		return ledger.Unavailable("append row", err)
	}
	return nil
}

func (sh *Sheet) UpdateCells(ctx context.Context, rowIndex int, cells []ledger.Cell) error {
	const (
		lockSQL = `
			SELECT seq, cells
			FROM ledger_rows
			WHERE sheet = $1
			ORDER BY seq
			LIMIT 1 OFFSET $2
			FOR UPDATE
		`
		updateSQL = `UPDATE ledger_rows SET cells = $1::jsonb, updated_at = now() WHERE seq = $2`
	)

	if rowIndex < 0 {
		return fmt.Errorf("%w: %d", ledger.ErrRowOutOfRange, rowIndex)
	}

	tx, err := sh.pool.Begin(ctx)
	if err != nil {
		return ledger.Unavailable("update cells", err)
	}
	defer tx.Rollback(ctx)

	var (
		seq int64
		raw []byte
	)
	err = tx.QueryRow(ctx, lockSQL, sh.name, rowIndex).Scan(&seq, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
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

	if _, err := tx.Exec(ctx, updateSQL, encoded, seq); err != nil {
		return ledger.Unavailable("update cells", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return ledger.Unavailable("update cells", err)
	}
	return nil
}

// DeleteRow removes the row at rowIndex. Later rows move up one position.
func (sh *Sheet) DeleteRow(ctx context.Context, rowIndex int) error {
	const deleteSQL = `
		DELETE FROM ledger_rows WHERE seq = (
			SELECT seq FROM ledger_rows WHERE sheet = $1 ORDER BY seq LIMIT 1 OFFSET $2
		)
	`

	tag, err := sh.pool.Exec(ctx, deleteSQL, sh.name, rowIndex)
	if err != nil {
		return ledger.Unavailable("delete row", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", ledger.ErrRowOutOfRange, rowIndex)
	}
	return nil
}

// Truncate removes every row of the sheet.
func (sh *Sheet) Truncate(ctx context.Context) error {
	if _, err := sh.pool.Exec(ctx, `DELETE FROM ledger_rows WHERE sheet = $1`, sh.name); err != nil {
		return ledger.Unavailable("truncate", err)
	}
	return nil
}

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

func decodeRow(raw []byte) (ledger.Row, error) {
	var cells []string
	if err := json.Unmarshal(raw, &cells); err != nil {
		return nil, fmt.Errorf("decode row: %w", err)
	}
	return ledger.Row(cells), nil
}
