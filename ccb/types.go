/*
Package ccb implements the credit-note review desk: analysts claim CCB cases
from a shared ledger, record a decision, and the reporting engine summarizes
the outcomes.

KEY CONCEPTS IN THIS FILE (types.go):
  - CaseID: The business key. The only identity a case has.
  - Status: The analyst status this package owns and transitions.
  - Case: One typed ledger row.

STATUS LIFECYCLE:

  Absent ──Claim──▶ InReview ──Finalize──▶ Pending ──Finalize──▶ Approved
                        │                     ▲  │                 (terminal)
                        │                     └──┘
                        └────────Finalize──────────────────────▶ Rejected
                                                                 (terminal)

  InReview and Pending are open: Claim resumes them. Approved and Rejected
  are terminal: nothing mutates them again.

LEDGER LABELS:
  Statuses are stored with the desk's Portuguese labels (see statusLabels).
  Parsing is forgiving: labels and English names, any case, NFC or NFD.

SEE ALSO:
  - codec.go: Row <-> Case translation (all column positions live there)
  - lifecycle.go: Claim / Finalize
  - report.go: Aggregations
*/
package ccb

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// CaseID is the CCB number. Compared after trimming surrounding whitespace.
type CaseID string

// Normalize trims the surrounding whitespace spreadsheets like to keep.
func (id CaseID) Normalize() CaseID { return CaseID(strings.TrimSpace(string(id))) }

func (id CaseID) IsEmpty() bool { return id.Normalize() == "" }

func (id CaseID) String() string { return string(id) }

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusInReview Status = "in_review"
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"

	// StatusUnknown marks a ledger value outside the four known statuses.
	// The raw text is kept on Case.RawStatus.
	StatusUnknown Status = "unknown"

	// StatusAll is only meaningful as a filter.
	StatusAll Status = "all"
)

// KnownStatuses lists the four real statuses in dashboard order.
var KnownStatuses = []Status{StatusInReview, StatusPending, StatusApproved, StatusRejected}

var statusLabels = map[Status]string{
	StatusInReview: "Em Análise",
	StatusPending:  "Análise Pendente",
	StatusApproved: "Análise Aprovada",
	StatusRejected: "Análise Reprovada",
}

var statusLookup = buildStatusLookup()

func buildStatusLookup() map[string]Status {
	lookup := make(map[string]Status)
	for _, s := range KnownStatuses {
		lookup[foldStatus(statusLabels[s])] = s
		lookup[foldStatus(string(s))] = s
	}
	lookup["inreview"] = StatusInReview
	lookup["all"] = StatusAll
	lookup["todos"] = StatusAll
	return lookup
}

func foldStatus(s string) string {
	return strings.ToLower(norm.NFC.String(strings.TrimSpace(s)))
}

// ParseStatus maps a ledger label or English name to a Status.
// Unrecognized text yields StatusUnknown.
func ParseStatus(s string) Status {
	if st, ok := statusLookup[foldStatus(s)]; ok {
		return st
	}
	return StatusUnknown
}

// Label is the text written to the ledger.
func (s Status) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

func (s Status) IsKnown() bool {
	_, ok := statusLabels[s]
	return ok
}

func (s Status) IsTerminal() bool { return s == StatusApproved || s == StatusRejected }

// IsOpen reports whether Claim resumes a case in this status. Unknown counts
// as open: it is not terminal, and resuming lets a Finalize repair the drift.
func (s Status) IsOpen() bool {
	return s == StatusInReview || s == StatusPending || s == StatusUnknown
}

// IsFinalizeResult reports whether s may be recorded by Finalize.
func (s Status) IsFinalizeResult() bool {
	return s == StatusPending || s == StatusApproved || s == StatusRejected
}

// =============================================================================
// CASE
// =============================================================================

// Case is one typed ledger row.
type Case struct {
	ID        CaseID
	NetAmount string
	Partner   string

	// CreatedAt is zero when the ledger value is missing or unparseable.
	// CreatedAtRaw keeps the original text either way.
	CreatedAt    time.Time
	CreatedAtRaw string

	// Owned upstream. Written once at creation, never again.
	ExternalStatus string

	AnalystStatus Status
	RawStatus     string

	Owner string
	Notes string
}

func (c Case) IsTerminal() bool { return c.AnalystStatus.IsTerminal() }

func (c Case) IsOpen() bool { return c.AnalystStatus.IsOpen() }

// HasCreatedAt reports whether CreatedAt parsed.
func (c Case) HasCreatedAt() bool { return !c.CreatedAt.IsZero() }

// NetAmountValue parses the free-form amount. Accepts "5000", "5000.50",
// "5.000,50" and a leading "R$".
func (c Case) NetAmountValue() (decimal.Decimal, bool) {
	return ParseAmount(c.NetAmount)
}

// ParseAmount parses a free-form monetary amount. A comma is taken as the
// decimal separator when present, in which case dots are thousands separators.
func ParseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "R$")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return decimal.Zero, false
	}
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
