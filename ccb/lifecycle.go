/*
lifecycle.go - Claim and Finalize

PURPOSE:
  The case state machine. Analysts claim a CCB to start (or resume) a
  review and finalize it with a decision.

CLAIM:
  ┌──────────────┬──────────────────────────────────────────────────┐
  │ row for id   │ result                                           │
  ├──────────────┼──────────────────────────────────────────────────┤
  │ none         │ append InReview row, owner=actor → ClaimCreated  │
  │ open         │ no write → ClaimResumed                          │
  │ terminal     │ no write → ErrAlreadyFinalized                   │
  └──────────────┴──────────────────────────────────────────────────┘

  Resume never touches NetAmount, Partner, or Owner and never validates
  them. Creation requires NetAmount and Partner unless RequireCaseDetails
  is off.

FINALIZE:
  Result is Pending, Approved, or Rejected. Pending needs notes. The row
  is located fresh and checked for terminal state in the same call as the
  write. Approved/Rejected close the session's pointer to the case;
  Pending leaves it so the analyst can finalize again right away.

CONFLICTS:
  Two analysts finalizing the same open case: last writer wins. Two
  analysts claiming the same unseen id at the same instant: both may
  append. Repository.Append re-checks the key right before appending,
  which narrows that window but cannot close it on a store without a
  conditional append.

NOTIFICATIONS:
  Sent after the write, on their own goroutine. A failed or slow notifier
  never changes an operation's result.

EXAMPLE:
  engine := ccb.NewEngine(repo, ccb.DefaultOptions())
  sess := ccb.NewSession("ana")

  res, err := engine.Claim(ctx, sess, ccb.ClaimRequest{CaseID: "1001", NetAmount: "5000", Partner: "Acme"})
  _, err = engine.Finalize(ctx, sess, ccb.FinalizeRequest{Result: ccb.StatusApproved, Notes: "ok"})

SEE ALSO:
  - repository.go: Freshness rule
  - errors.go: Outcomes
*/
package ccb

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultExternalStatus is what the upstream signature check reads as
// "not yet signed" when a case is first created here.
const DefaultExternalStatus = "Assinatura Reprovada"

// =============================================================================
// OPTIONS
// =============================================================================

type Options struct {
	// RequireCaseDetails demands NetAmount and Partner when creating a case.
	RequireCaseDetails bool

	// ReassignOnFinalize records the finalizing analyst as owner.
	ReassignOnFinalize bool

	DefaultExternalStatus string

	// Location for createdAt. UTC when nil.
	Location *time.Location

	Notifier      Notifier
	NotifyTimeout time.Duration

	Logger *slog.Logger

	// Now is the clock. time.Now when nil.
	Now func() time.Time
}

func DefaultOptions() Options {
	return Options{
		RequireCaseDetails:    true,
		DefaultExternalStatus: DefaultExternalStatus,
		Location:              time.UTC,
		NotifyTimeout:         5 * time.Second,
	}
}

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	repo     *Repository
	opts     Options
	notifier *dispatcher
}

// NewEngine wires the state machine to a repository.
func NewEngine(repo *Repository, opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 5 * time.Second
	}
	if opts.DefaultExternalStatus == "" {
		opts.DefaultExternalStatus = DefaultExternalStatus
	}
	return &Engine{
		repo: repo,
		opts: opts,
		notifier: &dispatcher{
			notifier: opts.Notifier,
			timeout:  opts.NotifyTimeout,
			log:      opts.Logger,
		},
	}
}

// Repository returns the repository the engine writes through.
func (e *Engine) Repository() *Repository { return e.repo }

// Wait blocks until every dispatched notification has finished.
func (e *Engine) Wait() { e.notifier.wait() }

// =============================================================================
// CLAIM
// =============================================================================

type ClaimRequest struct {
	CaseID    CaseID
	NetAmount string
	Partner   string
}

type ClaimOutcome string

const (
	ClaimCreated ClaimOutcome = "created"
	ClaimResumed ClaimOutcome = "resumed"
)

type ClaimResult struct {
	Outcome ClaimOutcome
	Case    Case
}

// Claim creates a case under review for an unseen id or resumes an open
// one. On success the session's active case is id.
func (e *Engine) Claim(ctx context.Context, sess *Session, req ClaimRequest) (ClaimResult, error) {
	id := req.CaseID.Normalize()
	if id == "" {
		return ClaimResult{}, &InputError{Field: "case_id", Reason: "required"}
	}
	actor := strings.TrimSpace(sess.actor())
	if actor == "" {
		return ClaimResult{}, &InputError{Field: "actor", Reason: "required"}
	}

	existing, err := e.repo.FindByID(ctx, id)
	switch {
	case err == nil:
		return e.resume(ctx, sess, existing)
	case !errors.Is(err, ErrNotFound):
		return ClaimResult{}, err
	}

	netAmount := strings.TrimSpace(req.NetAmount)
	partner := strings.TrimSpace(req.Partner)
	if e.opts.RequireCaseDetails {
		if netAmount == "" {
			return ClaimResult{}, &InputError{Field: "net_amount", Reason: "required for a new case"}
		}
		if partner == "" {
			return ClaimResult{}, &InputError{Field: "partner", Reason: "required for a new case"}
		}
	}

	now := e.opts.Now().In(e.opts.Location).Truncate(time.Second)
	c := Case{
		ID:             id,
		NetAmount:      netAmount,
		Partner:        partner,
		CreatedAt:      now,
		CreatedAtRaw:   FormatTimestamp(now, e.opts.Location),
		ExternalStatus: e.opts.DefaultExternalStatus,
		AnalystStatus:  StatusInReview,
		RawStatus:      StatusInReview.Label(),
		Owner:          actor,
	}

	if _, err := e.repo.Append(ctx, c); err != nil {
		if !errors.Is(err, ErrDuplicateCase) {
			return ClaimResult{}, err
		}
		// Someone created it between our lookup and our append.
		existing, err := e.repo.FindByID(ctx, id)
		if err != nil {
			return ClaimResult{}, err
		}
		return e.resume(ctx, sess, existing)
	}

	sess.activate(id)
	e.opts.Logger.Info("case created", "case_id", id, "actor", actor)
	e.notifier.dispatch(ctx, Event{
		ID:     uuid.New(),
		Kind:   EventCreated,
		CaseID: id,
		Actor:  actor,
		Status: StatusInReview,
		At:     now,
	})
	return ClaimResult{Outcome: ClaimCreated, Case: c}, nil
}

func (e *Engine) resume(ctx context.Context, sess *Session, c Case) (ClaimResult, error) {
	if c.IsTerminal() {
		return ClaimResult{}, &FinalizedError{CaseID: c.ID, Status: c.AnalystStatus}
	}

	sess.activate(c.ID)
	e.notifier.dispatch(ctx, Event{
		ID:     uuid.New(),
		Kind:   EventResumed,
		CaseID: c.ID,
		Actor:  sess.actor(),
		Status: c.AnalystStatus,
		At:     e.opts.Now().In(e.opts.Location),
	})
	return ClaimResult{Outcome: ClaimResumed, Case: c}, nil
}

// =============================================================================
// FINALIZE
// =============================================================================

type FinalizeRequest struct {
	// CaseID defaults to the session's active case when empty.
	CaseID CaseID
	Result Status
	Notes  string
}

type FinalizeResult struct {
	Case Case

	// Closed is true when the result was terminal and the session's
	// pointer to the case was released.
	Closed bool
}

// Finalize records an analyst's decision on an open case.
func (e *Engine) Finalize(ctx context.Context, sess *Session, req FinalizeRequest) (FinalizeResult, error) {
	id := req.CaseID.Normalize()
	if id == "" {
		if active, ok := sess.ActiveCase(); ok {
			id = active
		}
	}
	if id == "" {
		return FinalizeResult{}, &InputError{Field: "case_id", Reason: "required (no active case in session)"}
	}
	if !req.Result.IsFinalizeResult() {
		return FinalizeResult{}, &InputError{Field: "result", Reason: "must be pending, approved or rejected"}
	}
	if req.Result == StatusPending && strings.TrimSpace(req.Notes) == "" {
		return FinalizeResult{}, &ValidationError{Reason: "notes required"}
	}

	update := StatusUpdate{
		Status: req.Result,
		Notes:  req.Notes,
		Precondition: func(current Case) error {
			if current.IsTerminal() {
				return &FinalizedError{CaseID: current.ID, Status: current.AnalystStatus}
			}
			return nil
		},
	}
	if e.opts.ReassignOnFinalize {
		update.Owner = strings.TrimSpace(sess.actor())
	}

	updated, err := e.repo.UpdateStatusAndNotes(ctx, id, update)
	if err != nil {
		if errors.Is(err, ErrAlreadyFinalized) {
			sess.release(id)
		}
		return FinalizeResult{}, err
	}

	closed := req.Result.IsTerminal()
	if closed {
		sess.release(id)
	}

	e.opts.Logger.Info("case finalized", "case_id", id, "status", req.Result, "actor", sess.actor())
	e.notifier.dispatch(ctx, Event{
		ID:     uuid.New(),
		Kind:   EventFinalized,
		CaseID: id,
		Actor:  sess.actor(),
		Status: req.Result,
		Notes:  req.Notes,
		At:     e.opts.Now().In(e.opts.Location),
	})
	return FinalizeResult{Case: updated, Closed: closed}, nil
}
