/*
ledger.go - Shared tabular row store

PURPOSE:
  The Ledger is the one piece of shared mutable state in the system: an
  ordered table of rows, each row an ordered list of string cells. It is
  what a spreadsheet worksheet looks like to the code above it.

WHAT THE LEDGER DOES NOT PROMISE:
  - No transactions spanning calls
  - No row locks
  - No compare-and-swap
  - Stable row positions: another actor may insert, delete, or reorder
    rows between two calls

  Callers that mutate a row must re-read the table and locate the row by
  its business key immediately before writing. Never keep a row index
  across calls.

POSITIONS:
  Row 0 is the header. Data rows start at 1. A table with no rows at all
  (not even a header) is legal and reads as an empty slice.

ATOMICITY:
  UpdateCells writes every cell of a single call together or none of
  them. That is the only atomic unit offered.

IMPLEMENTATIONS:
  - ledger/memory.go: In-memory (tests, dev)
  - store/sqlite: SQLite (default)
  - store/postgres: PostgreSQL

SEE ALSO:
  - ccb/repository.go: Typed view of the rows
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
)

// =============================================================================
// TYPES
// =============================================================================

// Row is one ordered list of cell values.
type Row []string

// Clone returns a copy that shares no memory with r.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	copy(out, r)
	return out
}

// Cell addresses a single column of a row in an UpdateCells call.
type Cell struct {
	Column int
	Value  string
}

// Ledger is the abstract row store.
type Ledger interface {
	// ReadAll returns every row, header first, as of the call.
	ReadAll(ctx context.Context) ([]Row, error)

	// AppendRow adds a row after the last one.
	AppendRow(ctx context.Context, row Row) error

	// UpdateCells overwrites the given columns of the row at rowIndex.
	// Columns past the current row width extend the row.
	UpdateCells(ctx context.Context, rowIndex int, cells []Cell) error
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrUnavailable wraps every transport, driver, or auth failure.
	ErrUnavailable = errors.New("ledger unavailable")

	// ErrRowOutOfRange is returned by UpdateCells for a row that does not exist.
	ErrRowOutOfRange = errors.New("row index out of range")

	// ErrInvalidColumn is returned for a negative column index.
	ErrInvalidColumn = errors.New("invalid column index")
)

// Unavailable wraps err so that errors.Is(err, ErrUnavailable) holds.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}

// ApplyCells returns a copy of row with cells written in. Shared by the
// implementations so the widening rule is identical everywhere.
func ApplyCells(row Row, cells []Cell) (Row, error) {
	out := row.Clone()
	for _, c := range cells {
		if c.Column < 0 {
			return nil, fmt.Errorf("%w: %d", ErrInvalidColumn, c.Column)
		}
		for len(out) <= c.Column {
			out = append(out, "")
		}
		out[c.Column] = c.Value
	}
	return out, nil
}
