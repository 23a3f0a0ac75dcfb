/*
repository.go - Typed access to the case ledger

PURPOSE:
  Translates ledger rows into Case records and resolves cases by their
  business key. Holds no state between calls.

FRESHNESS RULE:
  Every mutation reads the ledger, locates the row by CaseID, and writes
  to that position in the same call. A row position is never kept across
  calls: another actor may insert, delete, or reorder rows at any time.

  The window between the read and the write cannot be closed without a
  conditional write on the store side. It is accepted, not hidden.

DUPLICATE KEYS:
  The ledger cannot refuse a second row with the same key, so two
  simultaneous first claims may both append. When duplicates exist the
  first row in ledger order is the one found and the one updated.

SEE ALSO:
  - codec.go: Column positions
  - lifecycle.go: The only writer
*/
package ccb

import (
	"context"
	"time"

	"github.com/warp/ccbdesk/ledger"
)

// RowRef is the position a row had at the moment of a write. Informational
// only: it is stale as soon as the call returns.
type RowRef struct {
	Index int
}

// StatusUpdate is the mutable part of a case.
type StatusUpdate struct {
	Status Status
	Notes  string

	// Owner, when non-empty, replaces the recorded owner.
	Owner string

	// Precondition runs against the freshly read row before the write.
	// A non-nil error aborts the update with nothing written.
	Precondition func(Case) error
}

// Repository reads and writes cases on a Ledger.
type Repository struct {
	ledger ledger.Ledger
	codec  Codec
}

// NewRepository creates a repository. Timestamps are interpreted in loc
// (UTC when nil).
func NewRepository(l ledger.Ledger, loc *time.Location) *Repository {
	return &Repository{ledger: l, codec: Codec{Location: loc}}
}

// Codec exposes the translation used by this repository.
func (r *Repository) Codec() Codec { return r.codec }

// FindByID scans a fresh snapshot for id. An empty ledger is not an error.
func (r *Repository) FindByID(ctx context.Context, id CaseID) (Case, error) {
	rows, err := r.ledger.ReadAll(ctx)
	if err != nil {
		return Case{}, storeError("find case", err)
	}

	idx, ok := r.locate(rows, id)
	if !ok {
		return Case{}, ErrNotFound
	}
	return r.codec.Decode(rows[idx]), nil
}

// List returns every case in ledger order.
func (r *Repository) List(ctx context.Context) ([]Case, error) {
	rows, err := r.ledger.ReadAll(ctx)
	if err != nil {
		return nil, storeError("list cases", err)
	}
	if len(rows) <= 1 {
		return []Case{}, nil
	}

	cases := make([]Case, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if r.codec.RowID(row) == "" {
			continue
		}
		cases = append(cases, r.codec.Decode(row))
	}
	return cases, nil
}

// Append adds a row for a key that is not in the ledger yet. The key is
// re-checked against a fresh read first; ErrDuplicateCase means another
// actor created it in the meantime. A bare ledger gets its header first.
func (r *Repository) Append(ctx context.Context, c Case) (RowRef, error) {
	c.ID = c.ID.Normalize()
	if c.ID == "" {
		return RowRef{}, &InputError{Field: "case_id", Reason: "required"}
	}

	rows, err := r.ledger.ReadAll(ctx)
	if err != nil {
		return RowRef{}, storeError("append case", err)
	}
	if _, ok := r.locate(rows, c.ID); ok {
		return RowRef{}, ErrDuplicateCase
	}

	if len(rows) == 0 {
		if err := r.ledger.AppendRow(ctx, Header.Clone()); err != nil {
			return RowRef{}, storeError("write header", err)
		}
		rows = append(rows, Header.Clone())
	}

	if err := r.ledger.AppendRow(ctx, r.codec.Encode(c)); err != nil {
		return RowRef{}, storeError("append case", err)
	}
	return RowRef{Index: len(rows)}, nil
}

// UpdateStatusAndNotes writes status and notes (and owner, if set) to the
// row carrying id, located in the same call. All other columns are left as
// they are. Returns the case as written.
func (r *Repository) UpdateStatusAndNotes(ctx context.Context, id CaseID, u StatusUpdate) (Case, error) {
	rows, err := r.ledger.ReadAll(ctx)
	if err != nil {
		return Case{}, storeError("update case", err)
	}

	idx, ok := r.locate(rows, id)
	if !ok {
		return Case{}, ErrNotFound
	}
	current := r.codec.Decode(rows[idx])

	if u.Precondition != nil {
		if err := u.Precondition(current); err != nil {
			return Case{}, err
		}
	}

	if err := r.ledger.UpdateCells(ctx, idx, r.codec.UpdateCells(u)); err != nil {
		return Case{}, storeError("update case", err)
	}
	return r.codec.Apply(current, u), nil
}

// locate returns the position of the first data row carrying id.
func (r *Repository) locate(rows []ledger.Row, id CaseID) (int, bool) {
	id = id.Normalize()
	if id == "" {
		return 0, false
	}
	for i := 1; i < len(rows); i++ {
		if r.codec.RowID(rows[i]) == id {
			return i, true
		}
	}
	return 0, false
}
