package ccb

import (
	"strings"
	"time"

	"github.com/warp/ccbdesk/ledger"
)

// =============================================================================
// CODEC - The only place that knows column positions
// =============================================================================

const (
	colCaseID = iota
	colNetAmount
	colPartner
	colCreatedAt
	colExternalStatus
	colAnalystStatus
	colOwner
	colNotes

	columnCount
)

// Header is the first ledger row, naming the columns in their fixed order.
var Header = ledger.Row{
	"CaseID",
	"NetAmount",
	"Partner",
	"CreatedAt",
	"ExternalStatus",
	"AnalystStatus",
	"Owner",
	"Notes",
}

// Codec translates between ledger rows and cases. Timestamps are read and
// written in Location.
type Codec struct {
	Location *time.Location
}

func (c Codec) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// Decode turns a row into a Case. Short rows decode with empty trailing fields.
func (c Codec) Decode(row ledger.Row) Case {
	cell := func(i int) string {
		if i < len(row) {
			return row[i]
		}
		return ""
	}

	out := Case{
		ID:             CaseID(cell(colCaseID)).Normalize(),
		NetAmount:      cell(colNetAmount),
		Partner:        cell(colPartner),
		CreatedAtRaw:   cell(colCreatedAt),
		ExternalStatus: cell(colExternalStatus),
		RawStatus:      cell(colAnalystStatus),
		Owner:          strings.TrimSpace(cell(colOwner)),
		Notes:          cell(colNotes),
	}
	out.AnalystStatus = ParseStatus(out.RawStatus)
	if t, ok := ParseTimestamp(out.CreatedAtRaw, c.location()); ok {
		out.CreatedAt = t
	}
	return out
}

// Encode turns a Case into a full-width row for appending.
func (c Codec) Encode(cs Case) ledger.Row {
	row := make(ledger.Row, columnCount)
	row[colCaseID] = string(cs.ID.Normalize())
	row[colNetAmount] = cs.NetAmount
	row[colPartner] = cs.Partner
	row[colCreatedAt] = cs.CreatedAtRaw
	if !cs.CreatedAt.IsZero() {
		row[colCreatedAt] = FormatTimestamp(cs.CreatedAt, c.location())
	}
	row[colExternalStatus] = cs.ExternalStatus
	row[colAnalystStatus] = cs.AnalystStatus.Label()
	row[colOwner] = cs.Owner
	row[colNotes] = cs.Notes
	return row
}

// RowID reads only the business key, for locating rows without a full decode.
func (c Codec) RowID(row ledger.Row) CaseID {
	if len(row) <= colCaseID {
		return ""
	}
	return CaseID(row[colCaseID]).Normalize()
}

// UpdateCells renders a status update as the cells to write. Owner is only
// written when set.
func (c Codec) UpdateCells(u StatusUpdate) []ledger.Cell {
	cells := []ledger.Cell{
		{Column: colAnalystStatus, Value: u.Status.Label()},
		{Column: colNotes, Value: u.Notes},
	}
	if u.Owner != "" {
		cells = append(cells, ledger.Cell{Column: colOwner, Value: u.Owner})
	}
	return cells
}

// Apply returns cs as it reads after u has been written.
func (c Codec) Apply(cs Case, u StatusUpdate) Case {
	cs.AnalystStatus = u.Status
	cs.RawStatus = u.Status.Label()
	cs.Notes = u.Notes
	if u.Owner != "" {
		cs.Owner = u.Owner
	}
	return cs
}
