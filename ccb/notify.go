package ccb

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// EVENTS
// =============================================================================

type EventKind string

const (
	EventCreated   EventKind = "case.created"
	EventResumed   EventKind = "case.resumed"
	EventFinalized EventKind = "case.finalized"
)

// Event describes a committed state transition.
type Event struct {
	ID     uuid.UUID
	Kind   EventKind
	CaseID CaseID
	Actor  string
	Status Status
	Notes  string
	At     time.Time
}

// Message renders the event as one chat line.
func (e Event) Message() string {
	actor := e.Actor
	if actor == "" {
		actor = "alguém"
	}
	switch e.Kind {
	case EventCreated:
		return fmt.Sprintf("%s assumiu a CCB %s (%s)", actor, e.CaseID, e.Status.Label())
	case EventResumed:
		return fmt.Sprintf("%s retomou a CCB %s (%s)", actor, e.CaseID, e.Status.Label())
	case EventFinalized:
		if e.Notes != "" {
			return fmt.Sprintf("%s registrou %s na CCB %s: %s", actor, e.Status.Label(), e.CaseID, e.Notes)
		}
		return fmt.Sprintf("%s registrou %s na CCB %s", actor, e.Status.Label(), e.CaseID)
	default:
		return fmt.Sprintf("%s: CCB %s", e.Kind, e.CaseID)
	}
}

// =============================================================================
// NOTIFIER - Best-effort outbound messages
// =============================================================================

// Notifier delivers events somewhere outside the process. Errors are logged
// and otherwise ignored.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, e Event) error

func (f NotifierFunc) Notify(ctx context.Context, e Event) error { return f(ctx, e) }

// dispatcher sends events on their own goroutine after the transition has
// been written. The caller's cancellation does not reach the send; only the
// timeout does.
type dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	log      *slog.Logger
	wg       sync.WaitGroup
}

func (d *dispatcher) dispatch(ctx context.Context, e Event) {
	if d.notifier == nil {
		return
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.log.Error("notifier panicked", "event_id", e.ID, "kind", e.Kind, "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()
		if err := d.notifier.Notify(ctx, e); err != nil {
			d.log.Warn("notification failed",
				"event_id", e.ID,
				"kind", e.Kind,
				"case_id", e.CaseID,
				"error", err,
			)
		}
	}()
}

func (d *dispatcher) wait() { d.wg.Wait() }
