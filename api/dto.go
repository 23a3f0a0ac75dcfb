/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ccb domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Wrappers around one or more DTOs

AMOUNTS:
  Net amounts are free text in the ledger. CaseDTO carries the raw text;
  summaries carry the parsed sum as a decimal string so no precision is
  lost in JSON.

SEE ALSO:
  - handlers.go: Uses these types
  - ccb/types.go, ccb/report.go: Domain types being mapped
*/
package api

import (
	"github.com/warp/ccbdesk/ccb"
)

// =============================================================================
// CASES
// =============================================================================

// CaseDTO represents one credit note in API responses.
type CaseDTO struct {
	ID             string `json:"id"`
	NetAmount      string `json:"net_amount"`
	Partner        string `json:"partner"`
	CreatedAt      string `json:"created_at,omitempty"`
	Month          string `json:"month,omitempty"`
	ExternalStatus string `json:"external_status"`
	Status         string `json:"status"`
	StatusLabel    string `json:"status_label"`
	Owner          string `json:"owner"`
	Notes          string `json:"notes"`
	Terminal       bool   `json:"terminal"`
}

// CaseListResponse is returned by GET /api/cases.
type CaseListResponse struct {
	Cases []CaseDTO `json:"cases"`
	Count int       `json:"count"`
}

// ClaimRequest is the body of POST /api/cases/claim.
type ClaimRequest struct {
	CaseID    string `json:"case_id"`
	NetAmount string `json:"net_amount"`
	Partner   string `json:"partner"`
}

// ClaimResponse reports whether the case was created or resumed.
type ClaimResponse struct {
	Outcome string  `json:"outcome"`
	Case    CaseDTO `json:"case"`
}

// FinalizeRequest is the body of POST /api/cases/finalize.
// CaseID may be empty to finalize the analyst's active case.
type FinalizeRequest struct {
	CaseID string `json:"case_id,omitempty"`
	Result string `json:"result"`
	Notes  string `json:"notes"`
}

type FinalizeResponse struct {
	Case   CaseDTO `json:"case"`
	Closed bool    `json:"closed"`
}

// SessionDTO describes the calling analyst's working context.
type SessionDTO struct {
	Analyst    string `json:"analyst"`
	ActiveCase string `json:"active_case,omitempty"`
}

// =============================================================================
// REPORTS
// =============================================================================

type StatusCountsDTO struct {
	InReview int `json:"in_review"`
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
	Unknown  int `json:"unknown"`
	Total    int `json:"total"`
}

type AnalystSummaryDTO struct {
	Analyst         string          `json:"analyst"`
	Total           int             `json:"total"`
	Counts          StatusCountsDTO `json:"counts"`
	NetAmount       string          `json:"net_amount"`
	UnparsedAmounts int             `json:"unparsed_amounts,omitempty"`
}

type MonthSummaryDTO struct {
	Month           string          `json:"month"`
	Total           int             `json:"total"`
	Counts          StatusCountsDTO `json:"counts"`
	NetAmount       string          `json:"net_amount"`
	UnparsedAmounts int             `json:"unparsed_amounts,omitempty"`
}

// PeriodReportResponse is returned by GET /api/reports/period.
type PeriodReportResponse struct {
	From   string          `json:"from"`
	To     string          `json:"to"`
	Counts StatusCountsDTO `json:"counts"`
	Cases  []CaseDTO       `json:"cases"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toCaseDTO(c ccb.Case) CaseDTO {
	month, _ := ccb.MonthKey(c)
	label := c.AnalystStatus.Label()
	if c.AnalystStatus == ccb.StatusUnknown {
		label = c.RawStatus
	}
	return CaseDTO{
		ID:             string(c.ID),
		NetAmount:      c.NetAmount,
		Partner:        c.Partner,
		CreatedAt:      c.CreatedAtRaw,
		Month:          month,
		ExternalStatus: c.ExternalStatus,
		Status:         string(c.AnalystStatus),
		StatusLabel:    label,
		Owner:          c.Owner,
		Notes:          c.Notes,
		Terminal:       c.IsTerminal(),
	}
}

func toCaseDTOs(cases []ccb.Case) []CaseDTO {
	out := make([]CaseDTO, len(cases))
	for i, c := range cases {
		out[i] = toCaseDTO(c)
	}
	return out
}

func toStatusCountsDTO(sc ccb.StatusCounts) StatusCountsDTO {
	return StatusCountsDTO{
		InReview: sc.InReview,
		Pending:  sc.Pending,
		Approved: sc.Approved,
		Rejected: sc.Rejected,
		Unknown:  sc.Unknown,
		Total:    sc.Total,
	}
}

func toAnalystSummaryDTO(s ccb.AnalystSummary) AnalystSummaryDTO {
	return AnalystSummaryDTO{
		Analyst:         s.Analyst,
		Total:           s.Total,
		Counts:          toStatusCountsDTO(s.Counts),
		NetAmount:       s.NetAmount.StringFixed(2),
		UnparsedAmounts: s.UnparsedAmounts,
	}
}

func toMonthSummaryDTO(s ccb.MonthSummary) MonthSummaryDTO {
	return MonthSummaryDTO{
		Month:           s.Month,
		Total:           s.Total,
		Counts:          toStatusCountsDTO(s.Counts),
		NetAmount:       s.NetAmount.StringFixed(2),
		UnparsedAmounts: s.UnparsedAmounts,
	}
}
