/*
handlers.go - HTTP API handlers for the credit-note review desk

PURPOSE:
  Exposes the ccb engine and reporting over REST. Handles HTTP
  request/response, JSON serialization, and delegates to ccb.

ENDPOINTS:
  Cases:
    POST   /api/cases/claim            Create or resume a case
    POST   /api/cases/finalize         Record pending/approved/rejected
    GET    /api/cases                  List (status, analyst, month, from/to, sort)
    GET    /api/cases/{id}             Fresh read of one case

  Session:
    GET    /api/session                The analyst's active case

  Reports:
    GET    /api/reports/status         Counts per status
    GET    /api/reports/analysts       Per-analyst totals
    GET    /api/reports/months         Per-month totals, oldest first
    GET    /api/reports/months/{month} One month (MM-YYYY)
    GET    /api/reports/period         Counts and cases for from..to (inclusive days)

ANALYST IDENTITY:
  The analyst name comes from the X-Analyst header. There is no
  authentication; the desk trusts its network.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid input, bad filter or period
  - 404: Case not found
  - 409: Case already finalized
  - 422: Business rule (pending without notes)
  - 503: Ledger unavailable
  - 500: Anything else

SEE ALSO:
  - dto.go: Request/response data structures
  - sessions.go: Session store and report cache
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/ccbdesk/ccb"
)

// AnalystHeader carries the calling analyst's name.
const AnalystHeader = "X-Analyst"

// dateLayouts accepted for from/to query parameters.
var dateLayouts = []string{"2006-01-02", "02/01/2006"}

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Options configures a Handler.
type Options struct {
	// Location interprets from/to dates. UTC when nil.
	Location *time.Location

	// CacheTTL is the report snapshot lifetime. Zero disables caching.
	CacheTTL time.Duration

	Logger *slog.Logger
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine   *ccb.Engine
	Sessions *SessionStore

	repo  *ccb.Repository
	loc   *time.Location
	cache *snapshotCache
	log   *slog.Logger
}

// NewHandler creates a new handler over the engine.
func NewHandler(engine *ccb.Engine, opts Options) *Handler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Handler{
		Engine:   engine,
		Sessions: NewSessionStore(),
		repo:     engine.Repository(),
		loc:      opts.Location,
		cache:    newSnapshotCache(opts.CacheTTL),
		log:      opts.Logger,
	}
}

func (h *Handler) session(r *http.Request) *ccb.Session {
	return h.Sessions.Get(r.Header.Get(AnalystHeader))
}

func (h *Handler) snapshot(r *http.Request) ([]ccb.Case, error) {
	return h.cache.get(r.Context(), h.repo.List)
}

// =============================================================================
// CASE HANDLERS
// =============================================================================

// ClaimCase creates a new case or resumes an open one.
func (h *Handler) ClaimCase(w http.ResponseWriter, r *http.Request) {
	var req ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	res, err := h.Engine.Claim(r.Context(), h.session(r), ccb.ClaimRequest{
		CaseID:    ccb.CaseID(req.CaseID),
		NetAmount: req.NetAmount,
		Partner:   req.Partner,
	})
	h.cache.invalidate()
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	status := http.StatusOK
	if res.Outcome == ccb.ClaimCreated {
		status = http.StatusCreated
	}
	writeJSON(w, status, ClaimResponse{
		Outcome: string(res.Outcome),
		Case:    toCaseDTO(res.Case),
	})
}

// FinalizeCase records the analyst's decision.
func (h *Handler) FinalizeCase(w http.ResponseWriter, r *http.Request) {
	var req FinalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result := ccb.ParseStatus(req.Result)
	if !result.IsFinalizeResult() {
		h.writeDomainError(w, r, &ccb.InputError{Field: "result", Reason: fmt.Sprintf("unknown result %q", req.Result)})
		return
	}

	res, err := h.Engine.Finalize(r.Context(), h.session(r), ccb.FinalizeRequest{
		CaseID: ccb.CaseID(req.CaseID),
		Result: result,
		Notes:  req.Notes,
	})
	h.cache.invalidate()
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, FinalizeResponse{
		Case:   toCaseDTO(res.Case),
		Closed: res.Closed,
	})
}

// GetCase reads one case straight from the ledger.
func (h *Handler) GetCase(w http.ResponseWriter, r *http.Request) {
	id := ccb.CaseID(chi.URLParam(r, "id"))

	c, err := h.repo.FindByID(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCaseDTO(c))
}

// ListCases filters the snapshot.
//
// Query parameters (all optional): status, analyst, month (MM-YYYY),
// from and to (YYYY-MM-DD, inclusive), sort (id|created_at|owner), desc.
func (h *Handler) ListCases(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	status, err := parseStatusFilter(q.Get("status"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	sortKey, err := parseSortKey(q.Get("sort"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	desc, _ := strconv.ParseBool(q.Get("desc"))

	var period *ccb.Period
	if month := q.Get("month"); month != "" {
		m, y, err := ccb.ParseMonthKey(month)
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		p := ccb.MonthPeriod(m, y, h.loc)
		period = &p
	} else if q.Get("from") != "" || q.Get("to") != "" {
		p, err := h.parsePeriod(q.Get("from"), q.Get("to"))
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		period = &p
	}

	cases, err := h.snapshot(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	cases = ccb.FilterByStatus(cases, status)
	if analyst := strings.TrimSpace(q.Get("analyst")); analyst != "" {
		cases = ccb.FilterByOwner(cases, analyst)
	}
	if period != nil {
		cases = ccb.FilterByPeriod(cases, *period)
	}
	cases = ccb.SortCases(cases, sortKey, desc)

	writeJSON(w, http.StatusOK, CaseListResponse{
		Cases: toCaseDTOs(cases),
		Count: len(cases),
	})
}

// GetSession returns the calling analyst's active case.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	analyst := strings.TrimSpace(r.Header.Get(AnalystHeader))
	if analyst == "" {
		h.writeDomainError(w, r, &ccb.InputError{Field: "actor", Reason: AnalystHeader + " header required"})
		return
	}

	active, _ := h.Sessions.Get(analyst).ActiveCase()
	writeJSON(w, http.StatusOK, SessionDTO{Analyst: analyst, ActiveCase: string(active)})
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// StatusReport returns counts per status. An optional analyst narrows it.
func (h *Handler) StatusReport(w http.ResponseWriter, r *http.Request) {
	cases, err := h.snapshot(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if analyst := strings.TrimSpace(r.URL.Query().Get("analyst")); analyst != "" {
		cases = ccb.FilterByOwner(cases, analyst)
	}
	writeJSON(w, http.StatusOK, toStatusCountsDTO(ccb.CountByStatus(cases)))
}

// AnalystReport returns per-analyst totals, busiest first.
func (h *Handler) AnalystReport(w http.ResponseWriter, r *http.Request) {
	cases, err := h.snapshot(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	groups := ccb.GroupByAnalyst(cases)
	dtos := make([]AnalystSummaryDTO, len(groups))
	for i, g := range groups {
		dtos[i] = toAnalystSummaryDTO(g)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// MonthsReport returns one summary per month, oldest first.
func (h *Handler) MonthsReport(w http.ResponseWriter, r *http.Request) {
	cases, err := h.snapshot(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	months := ccb.GroupByMonth(cases)
	dtos := make([]MonthSummaryDTO, len(months))
	for i, m := range months {
		dtos[i] = toMonthSummaryDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// MonthReport returns the summary of one month. A month with no cases is an
// empty summary, not a 404.
func (h *Handler) MonthReport(w http.ResponseWriter, r *http.Request) {
	m, y, err := ccb.ParseMonthKey(chi.URLParam(r, "month"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	cases, err := h.snapshot(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	key := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC).Format(ccb.MonthKeyLayout)
	writeJSON(w, http.StatusOK, toMonthSummaryDTO(ccb.MonthlySummary(cases, key)))
}

// PeriodReport returns counts and cases created between from and to.
func (h *Handler) PeriodReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("from") == "" || q.Get("to") == "" {
		h.writeDomainError(w, r, &ccb.InputError{Field: "from/to", Reason: "both are required"})
		return
	}
	p, err := h.parsePeriod(q.Get("from"), q.Get("to"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	cases, err := h.snapshot(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	in := ccb.FilterByPeriod(cases, p)
	writeJSON(w, http.StatusOK, PeriodReportResponse{
		From:   p.Start.Format(time.RFC3339),
		To:     p.End.Format(time.RFC3339),
		Counts: toStatusCountsDTO(ccb.CountByStatus(in)),
		Cases:  toCaseDTOs(in),
	})
}

// =============================================================================
// PARSING
// =============================================================================

func parseStatusFilter(s string) (ccb.Status, error) {
	if strings.TrimSpace(s) == "" {
		return ccb.StatusAll, nil
	}
	st := ccb.ParseStatus(s)
	if st == ccb.StatusUnknown && !strings.EqualFold(strings.TrimSpace(s), string(ccb.StatusUnknown)) {
		return "", &ccb.InputError{Field: "status", Reason: fmt.Sprintf("unknown status %q", s)}
	}
	return st, nil
}

func parseSortKey(s string) (ccb.SortKey, error) {
	switch k := ccb.SortKey(s); k {
	case ccb.SortNone, ccb.SortByID, ccb.SortByCreated, ccb.SortByOwner:
		return k, nil
	default:
		return "", &ccb.InputError{Field: "sort", Reason: "must be id, created_at or owner"}
	}
}

// parsePeriod reads whole days. A missing bound is open-ended.
func (h *Handler) parsePeriod(from, to string) (ccb.Period, error) {
	start := time.Date(1, 1, 1, 0, 0, 0, 0, h.loc)
	end := time.Date(9999, 12, 31, 0, 0, 0, 0, h.loc)

	if from != "" {
		t, err := parseDate(from, h.loc)
		if err != nil {
			return ccb.Period{}, &ccb.InputError{Field: "from", Reason: err.Error()}
		}
		start = t
	}
	if to != "" {
		t, err := parseDate(to, h.loc)
		if err != nil {
			return ccb.Period{}, &ccb.InputError{Field: "to", Reason: err.Error()}
		}
		end = t
	}

	p := ccb.DayPeriod(start, end, h.loc)
	if err := p.Validate(); err != nil {
		return ccb.Period{}, err
	}
	return p, nil
}

func parseDate(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, strings.TrimSpace(s), loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("date %q: want YYYY-MM-DD", s)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps ccb errors onto HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		status int
		code   string
		msg    string
	)
	switch {
	case errors.Is(err, ccb.ErrInvalidInput), errors.Is(err, ccb.ErrInvalidPeriod):
		status, code, msg = http.StatusBadRequest, "invalid_input", "Invalid input"
	case errors.Is(err, ccb.ErrAlreadyFinalized):
		status, code, msg = http.StatusConflict, "already_finalized", "Case already finalized"
	case errors.Is(err, ccb.ErrValidationFailed):
		status, code, msg = http.StatusUnprocessableEntity, "validation_failed", "Validation failed"
	case ccb.IsNotFound(err):
		status, code, msg = http.StatusNotFound, "not_found", "Case not found"
	case ccb.IsUnavailable(err):
		status, code, msg = http.StatusServiceUnavailable, "store_unavailable", "Ledger unavailable"
	default:
		status, code, msg = http.StatusInternalServerError, "internal", "Internal error"
	}

	if status >= 500 {
		h.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}

	var fin *ccb.FinalizedError
	var details any = err.Error()
	if errors.As(err, &fin) {
		details = map[string]string{
			"case_id": string(fin.CaseID),
			"status":  fin.Status.Label(),
		}
	}
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code, Details: details})
}
