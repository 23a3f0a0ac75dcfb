package ccb_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/warp/ccbdesk/ccb"
	"github.com/warp/ccbdesk/ledger"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testNow = time.Date(2026, time.March, 10, 14, 30, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []ccb.Event
	err    error
}

func (r *recorder) Notify(_ context.Context, e ccb.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func (r *recorder) kinds() []ccb.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ccb.EventKind
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

type fixture struct {
	engine   *ccb.Engine
	ledger   *ledger.Memory
	repo     *ccb.Repository
	notified *recorder
}

func newFixture(t *testing.T, tweak ...func(*ccb.Options)) *fixture {
	t.Helper()
	mem := ledger.NewMemory(ccb.Header)
	return newFixtureOn(t, mem, mem, tweak...)
}

func newFixtureOn(t *testing.T, mem *ledger.Memory, l ledger.Ledger, tweak ...func(*ccb.Options)) *fixture {
	t.Helper()
	repo := ccb.NewRepository(l, time.UTC)
	rec := &recorder{}

	opts := ccb.DefaultOptions()
	opts.Notifier = rec
	opts.Now = func() time.Time { return testNow }
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	for _, f := range tweak {
		f(&opts)
	}

	engine := ccb.NewEngine(repo, opts)
	t.Cleanup(engine.Wait)
	return &fixture{engine: engine, ledger: mem, repo: repo, notified: rec}
}

func (f *fixture) claim(t *testing.T, sess *ccb.Session, id string) ccb.ClaimResult {
	t.Helper()
	res, err := f.engine.Claim(context.Background(), sess, ccb.ClaimRequest{
		CaseID:    ccb.CaseID(id),
		NetAmount: "5000",
		Partner:   "Acme",
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) snapshot(t *testing.T) []ledger.Row {
	t.Helper()
	rows, err := f.ledger.ReadAll(context.Background())
	require.NoError(t, err)
	return rows
}

// =============================================================================
// CLAIM
// =============================================================================

func TestClaim_UnseenID_CreatesCaseInReview(t *testing.T) {
	// GIVEN: An empty ledger
	// WHEN: Ana claims CCB 1001
	// THEN: A row exists with status InReview, owned by Ana

	f := newFixture(t)
	sess := ccb.NewSession("ana")

	res := f.claim(t, sess, "1001")
	assert.Equal(t, ccb.ClaimCreated, res.Outcome)

	found, err := f.repo.FindByID(context.Background(), "1001")
	require.NoError(t, err)
	assert.Equal(t, ccb.StatusInReview, found.AnalystStatus)
	assert.Equal(t, "ana", found.Owner)
	assert.Equal(t, "5000", found.NetAmount)
	assert.Equal(t, "Acme", found.Partner)
	assert.Equal(t, ccb.DefaultExternalStatus, found.ExternalStatus)
	assert.Equal(t, "10/03/2026 14:30:00", found.CreatedAtRaw)
	assert.True(t, found.CreatedAt.Equal(testNow))

	active, ok := sess.ActiveCase()
	assert.True(t, ok)
	assert.Equal(t, ccb.CaseID("1001"), active)
}

func TestClaim_EmptyID_InvalidInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Claim(context.Background(), ccb.NewSession("ana"), ccb.ClaimRequest{CaseID: "   "})

	assert.ErrorIs(t, err, ccb.ErrInvalidInput)
	assert.Equal(t, 1, f.ledger.Len(), "nothing appended")
}

func TestClaim_MissingActor_InvalidInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Claim(context.Background(), nil, ccb.ClaimRequest{CaseID: "1", NetAmount: "1", Partner: "p"})

	var inputErr *ccb.InputError
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, "actor", inputErr.Field)
}

func TestClaim_NewCaseWithoutDetails_InvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Claim(ctx, ccb.NewSession("ana"), ccb.ClaimRequest{CaseID: "1001", Partner: "Acme"})
	var inputErr *ccb.InputError
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, "net_amount", inputErr.Field)

	_, err = f.engine.Claim(ctx, ccb.NewSession("ana"), ccb.ClaimRequest{CaseID: "1001", NetAmount: "10"})
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, "partner", inputErr.Field)

	assert.Equal(t, 1, f.ledger.Len(), "validation happens before any write")
}

func TestClaim_DetailsOptionalWhenConfigured(t *testing.T) {
	f := newFixture(t, func(o *ccb.Options) { o.RequireCaseDetails = false })

	res, err := f.engine.Claim(context.Background(), ccb.NewSession("ana"), ccb.ClaimRequest{CaseID: "1001"})

	require.NoError(t, err)
	assert.Equal(t, ccb.ClaimCreated, res.Outcome)
}

func TestClaim_OpenCase_ResumesWithoutTouchingFields(t *testing.T) {
	// GIVEN: Ana created 1001; then it went to Pending
	// WHEN: Bruno claims 1001 with different details (or none)
	// THEN: Resumed; amount, partner and owner are still Ana's

	for _, status := range []ccb.Status{ccb.StatusInReview, ccb.StatusPending} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			f.claim(t, ccb.NewSession("ana"), "1001")
			if status == ccb.StatusPending {
				_, err := f.engine.Finalize(ctx, nil, ccb.FinalizeRequest{CaseID: "1001", Result: ccb.StatusPending, Notes: "missing docs"})
				require.NoError(t, err)
			}
			before := f.snapshot(t)

			bruno := ccb.NewSession("bruno")
			res, err := f.engine.Claim(ctx, bruno, ccb.ClaimRequest{CaseID: "1001", NetAmount: "999", Partner: "Other"})

			require.NoError(t, err)
			assert.Equal(t, ccb.ClaimResumed, res.Outcome)
			assert.Equal(t, status, res.Case.AnalystStatus)
			assert.Equal(t, before, f.snapshot(t), "resume writes nothing")

			active, _ := bruno.ActiveCase()
			assert.Equal(t, ccb.CaseID("1001"), active)
		})
	}
}

func TestClaim_OpenCase_NeverValidatesDetails(t *testing.T) {
	f := newFixture(t)
	f.claim(t, ccb.NewSession("ana"), "1001")

	res, err := f.engine.Claim(context.Background(), ccb.NewSession("bruno"), ccb.ClaimRequest{CaseID: "1001"})

	require.NoError(t, err)
	assert.Equal(t, ccb.ClaimResumed, res.Outcome)
}

func TestClaim_TerminalCase_AlreadyFinalized(t *testing.T) {
	// GIVEN: 1001 approved, 1002 rejected
	// WHEN: Anyone claims either, any number of times
	// THEN: AlreadyFinalized every time; the ledger never changes

	f := newFixture(t)
	ctx := context.Background()
	f.claim(t, ccb.NewSession("ana"), "1001")
	f.claim(t, ccb.NewSession("ana"), "1002")
	_, err := f.engine.Finalize(ctx, nil, ccb.FinalizeRequest{CaseID: "1001", Result: ccb.StatusApproved})
	require.NoError(t, err)
	_, err = f.engine.Finalize(ctx, nil, ccb.FinalizeRequest{CaseID: "1002", Result: ccb.StatusRejected, Notes: "fraud"})
	require.NoError(t, err)
	before := f.snapshot(t)

	for _, actor := range []string{"ana", "bruno", "ana"} {
		for _, id := range []ccb.CaseID{"1001", "1002"} {
			sess := ccb.NewSession(actor)
			_, err := f.engine.Claim(ctx, sess, ccb.ClaimRequest{CaseID: id, NetAmount: "1", Partner: "x"})

			assert.ErrorIs(t, err, ccb.ErrAlreadyFinalized)
			_, active := sess.ActiveCase()
			assert.False(t, active)
		}
	}
	assert.Equal(t, before, f.snapshot(t))
}

func TestClaim_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana := ccb.NewSession("ana")

	res, err := f.engine.Claim(ctx, ana, ccb.ClaimRequest{CaseID: "1001", NetAmount: "5000", Partner: "Acme"})
	require.NoError(t, err)
	assert.Equal(t, ccb.ClaimCreated, res.Outcome)

	fin, err := f.engine.Finalize(ctx, ana, ccb.FinalizeRequest{CaseID: "1001", Result: ccb.ParseStatus("Análise Aprovada"), Notes: "ok"})
	require.NoError(t, err)
	assert.True(t, fin.Closed)

	_, err = f.engine.Claim(ctx, ana, ccb.ClaimRequest{CaseID: "1001"})
	assert.ErrorIs(t, err, ccb.ErrAlreadyFinalized)
}

func TestClaim_ConcurrentCreateBetweenLookupAndAppend_Resumes(t *testing.T) {
	// GIVEN: Bruno appends 1001 right after Ana's lookup found nothing
	// WHEN: Ana's claim reaches the append
	// THEN: The re-check sees Bruno's row; Ana resumes instead of duplicating

	mem := ledger.NewMemory(ccb.Header)
	racing := &racingLedger{Memory: mem, onFirstRead: func() {
		row := ccb.Codec{}.Encode(ccb.Case{ID: "1001", AnalystStatus: ccb.StatusInReview, Owner: "bruno"})
		require.NoError(t, mem.AppendRow(context.Background(), row))
	}}
	f := newFixtureOn(t, mem, racing)

	res := f.claim(t, ccb.NewSession("ana"), "1001")

	assert.Equal(t, ccb.ClaimResumed, res.Outcome)
	assert.Equal(t, "bruno", res.Case.Owner)
	assert.Equal(t, 2, mem.Len(), "no duplicate row")
}

func TestClaim_ConcurrentDistinctCases_AllCreated(t *testing.T) {
	f := newFixture(t)
	var g errgroup.Group

	for i := 0; i < 24; i++ {
		id := ccb.CaseID(fmt.Sprintf("%d", 2000+i))
		actor := []string{"ana", "bruno", "maria"}[i%3]
		g.Go(func() error {
			_, err := f.engine.Claim(context.Background(), ccb.NewSession(actor), ccb.ClaimRequest{CaseID: id, NetAmount: "1", Partner: "p"})
			return err
		})
	}
	require.NoError(t, g.Wait())

	cases, err := f.repo.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, cases, 24)
}

func TestClaim_StoreUnavailable_Surfaced(t *testing.T) {
	f := newFixture(t)
	f.ledger.FailNext(errors.New("403 forbidden"))

	_, err := f.engine.Claim(context.Background(), ccb.NewSession("ana"), ccb.ClaimRequest{CaseID: "1001", NetAmount: "1", Partner: "p"})

	assert.ErrorIs(t, err, ccb.ErrStoreUnavailable)
	assert.Contains(t, err.Error(), "403 forbidden")
	assert.Equal(t, 1, f.ledger.Len())
}

// =============================================================================
// FINALIZE
// =============================================================================

func TestFinalize_PendingWithoutNotes_ValidationFailed(t *testing.T) {
	f := newFixture(t)
	ana := ccb.NewSession("ana")
	f.claim(t, ana, "1001")
	before := f.snapshot(t)

	for _, notes := range []string{"", "   "} {
		_, err := f.engine.Finalize(context.Background(), ana, ccb.FinalizeRequest{Result: ccb.StatusPending, Notes: notes})

		var vErr *ccb.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "notes required", vErr.Reason)
	}
	assert.Equal(t, before, f.snapshot(t))
}

func TestFinalize_PendingWithNotes_StaysResumable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana := ccb.NewSession("ana")
	f.claim(t, ana, "1001")

	res, err := f.engine.Finalize(ctx, ana, ccb.FinalizeRequest{Result: ccb.StatusPending, Notes: "note"})
	require.NoError(t, err)
	assert.False(t, res.Closed)
	assert.Equal(t, ccb.StatusPending, res.Case.AnalystStatus)
	assert.Equal(t, "note", res.Case.Notes)

	active, ok := ana.ActiveCase()
	assert.True(t, ok, "pending keeps the session pointer")
	assert.Equal(t, ccb.CaseID("1001"), active)

	// Immediate re-finalization without a new claim
	res, err = f.engine.Finalize(ctx, ana, ccb.FinalizeRequest{Result: ccb.StatusPending, Notes: "still missing"})
	require.NoError(t, err)
	assert.Equal(t, "still missing", res.Case.Notes)

	claim, err := f.engine.Claim(ctx, ccb.NewSession("bruno"), ccb.ClaimRequest{CaseID: "1001"})
	require.NoError(t, err)
	assert.Equal(t, ccb.ClaimResumed, claim.Outcome)
}

func TestFinalize_TerminalResults_LockCase(t *testing.T) {
	for _, result := range []ccb.Status{ccb.StatusApproved, ccb.StatusRejected} {
		t.Run(string(result), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			ana := ccb.NewSession("ana")
			f.claim(t, ana, "1001")

			res, err := f.engine.Finalize(ctx, ana, ccb.FinalizeRequest{Result: result})
			require.NoError(t, err)
			assert.True(t, res.Closed)
			_, active := ana.ActiveCase()
			assert.False(t, active, "terminal result clears the session pointer")

			_, err = f.engine.Claim(ctx, ana, ccb.ClaimRequest{CaseID: "1001"})
			assert.ErrorIs(t, err, ccb.ErrAlreadyFinalized)

			before := f.snapshot(t)
			_, err = f.engine.Finalize(ctx, ana, ccb.FinalizeRequest{CaseID: "1001", Result: ccb.StatusPending, Notes: "reopen?"})
			assert.ErrorIs(t, err, ccb.ErrAlreadyFinalized)
			assert.Equal(t, before, f.snapshot(t), "terminal rows are never mutated")
		})
	}
}

func TestFinalize_OnlyStatusAndNotesChange(t *testing.T) {
	f := newFixture(t)
	ana := ccb.NewSession("ana")
	f.claim(t, ana, "1001")
	before := f.snapshot(t)[1]

	_, err := f.engine.Finalize(context.Background(), ccb.NewSession("bruno"), ccb.FinalizeRequest{CaseID: "1001", Result: ccb.StatusApproved, Notes: "ok"})
	require.NoError(t, err)

	after := f.snapshot(t)[1]
	for col := range before {
		switch ccb.Header[col] {
		case "AnalystStatus":
			assert.Equal(t, "Análise Aprovada", after[col])
		case "Notes":
			assert.Equal(t, "ok", after[col])
		default:
			assert.Equal(t, before[col], after[col], "column %s must be untouched", ccb.Header[col])
		}
	}
}

func TestFinalize_ReassignOnFinalize_RecordsFinalizer(t *testing.T) {
	f := newFixture(t, func(o *ccb.Options) { o.ReassignOnFinalize = true })
	f.claim(t, ccb.NewSession("ana"), "1001")

	res, err := f.engine.Finalize(context.Background(), ccb.NewSession("bruno"), ccb.FinalizeRequest{CaseID: "1001", Result: ccb.StatusApproved})
	require.NoError(t, err)
	assert.Equal(t, "bruno", res.Case.Owner)

	found, err := f.repo.FindByID(context.Background(), "1001")
	require.NoError(t, err)
	assert.Equal(t, "bruno", found.Owner)
}

func TestFinalize_RowMovedSinceClaim_WritesCorrectRow(t *testing.T) {
	// GIVEN: Ana claimed 1001 (row 1), then someone inserted rows above it
	// WHEN: Ana finalizes
	// THEN: The write lands on 1001's current row, not on row 1

	f := newFixture(t)
	ana := ccb.NewSession("ana")
	f.claim(t, ana, "1001")
	codec := ccb.Codec{}
	require.NoError(t, f.ledger.InsertRow(1, codec.Encode(ccb.Case{ID: "0999", AnalystStatus: ccb.StatusInReview, Owner: "bruno"})))
	require.NoError(t, f.ledger.InsertRow(1, codec.Encode(ccb.Case{ID: "0998", AnalystStatus: ccb.StatusPending, Owner: "maria", Notes: "n"})))

	_, err := f.engine.Finalize(context.Background(), ana, ccb.FinalizeRequest{Result: ccb.StatusRejected, Notes: "bad"})
	require.NoError(t, err)

	cases, err := f.repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, cases, 3)
	assert.Equal(t, ccb.StatusPending, cases[0].AnalystStatus, "0998 untouched")
	assert.Equal(t, ccb.StatusInReview, cases[1].AnalystStatus, "0999 untouched")
	assert.Equal(t, ccb.CaseID("1001"), cases[2].ID)
	assert.Equal(t, ccb.StatusRejected, cases[2].AnalystStatus)
}

func TestFinalize_RowRemovedOutOfBand_NotFound(t *testing.T) {
	f := newFixture(t)
	ana := ccb.NewSession("ana")
	f.claim(t, ana, "1001")
	require.NoError(t, f.ledger.DeleteRow(1))

	_, err := f.engine.Finalize(context.Background(), ana, ccb.FinalizeRequest{Result: ccb.StatusApproved})

	assert.ErrorIs(t, err, ccb.ErrNotFound)
}

func TestFinalize_NoCaseAndNoActiveSession_InvalidInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Finalize(context.Background(), ccb.NewSession("ana"), ccb.FinalizeRequest{Result: ccb.StatusApproved})

	assert.ErrorIs(t, err, ccb.ErrInvalidInput)
}

func TestFinalize_InReviewIsNotAResult(t *testing.T) {
	f := newFixture(t)
	ana := ccb.NewSession("ana")
	f.claim(t, ana, "1001")

	_, err := f.engine.Finalize(context.Background(), ana, ccb.FinalizeRequest{Result: ccb.StatusInReview})

	assert.ErrorIs(t, err, ccb.ErrInvalidInput)
}

func TestFinalize_ConcurrentFinalizers_LastWriterWins(t *testing.T) {
	// GIVEN: An open case and several analysts finalizing it as Pending at once
	// THEN: Every write succeeds and the stored notes are exactly one of theirs

	f := newFixture(t)
	f.claim(t, ccb.NewSession("ana"), "1001")

	var g errgroup.Group
	notes := []string{"a", "b", "c", "d", "e", "f"}
	for _, n := range notes {
		g.Go(func() error {
			_, err := f.engine.Finalize(context.Background(), nil, ccb.FinalizeRequest{CaseID: "1001", Result: ccb.StatusPending, Notes: n})
			return err
		})
	}
	require.NoError(t, g.Wait())

	found, err := f.repo.FindByID(context.Background(), "1001")
	require.NoError(t, err)
	assert.Equal(t, ccb.StatusPending, found.AnalystStatus)
	assert.Contains(t, notes, found.Notes)
	assert.Equal(t, 2, f.ledger.Len())
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

func TestNotifications_SentOnSuccessOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana := ccb.NewSession("ana")

	f.claim(t, ana, "1001")
	f.claim(t, ana, "1001")
	_, err := f.engine.Finalize(ctx, ana, ccb.FinalizeRequest{Result: ccb.StatusPending})
	require.Error(t, err)
	_, err = f.engine.Finalize(ctx, ana, ccb.FinalizeRequest{Result: ccb.StatusApproved})
	require.NoError(t, err)
	_, err = f.engine.Claim(ctx, ana, ccb.ClaimRequest{CaseID: "1001"})
	require.Error(t, err)

	f.engine.Wait()
	assert.ElementsMatch(t,
		[]ccb.EventKind{ccb.EventCreated, ccb.EventResumed, ccb.EventFinalized},
		f.notified.kinds(),
	)
}

func TestNotifications_TimestampsInDeskZone(t *testing.T) {
	// GIVEN: A desk running in São Paulo time
	// WHEN: A case is created, resumed and finalized
	// THEN: Every event carries the same zone

	brt := time.FixedZone("BRT", -3*60*60)
	f := newFixture(t, func(o *ccb.Options) { o.Location = brt })
	ana := ccb.NewSession("ana")

	f.claim(t, ana, "1001")
	f.claim(t, ana, "1001")
	_, err := f.engine.Finalize(context.Background(), ana, ccb.FinalizeRequest{Result: ccb.StatusApproved})
	require.NoError(t, err)

	f.engine.Wait()
	f.notified.mu.Lock()
	defer f.notified.mu.Unlock()
	require.Len(t, f.notified.events, 3)
	for _, e := range f.notified.events {
		assert.Equal(t, brt, e.At.Location(), e.Kind)
		assert.Equal(t, 11, e.At.Hour(), e.Kind)
	}
}

func TestNotifications_FailureNeverFailsOperation(t *testing.T) {
	f := newFixture(t)
	f.notified.err = errors.New("webhook down")

	res := f.claim(t, ccb.NewSession("ana"), "1001")
	f.engine.Wait()

	assert.Equal(t, ccb.ClaimCreated, res.Outcome)
	assert.Len(t, f.notified.kinds(), 1)
}

func TestNotifications_CallerCancellationDoesNotReachNotifier(t *testing.T) {
	got := make(chan error, 1)
	slow := ccb.NotifierFunc(func(ctx context.Context, _ ccb.Event) error {
		time.Sleep(10 * time.Millisecond)
		got <- ctx.Err()
		return nil
	})
	f := newFixture(t, func(o *ccb.Options) { o.Notifier = slow })

	ctx, cancel := context.WithCancel(context.Background())
	_, err := f.engine.Claim(ctx, ccb.NewSession("ana"), ccb.ClaimRequest{CaseID: "1001", NetAmount: "1", Partner: "p"})
	require.NoError(t, err)
	cancel()

	f.engine.Wait()
	assert.NoError(t, <-got)
}

func TestEvent_Message(t *testing.T) {
	e := ccb.Event{Kind: ccb.EventFinalized, CaseID: "1001", Actor: "ana", Status: ccb.StatusPending, Notes: "faltou RG"}
	assert.Equal(t, "ana registrou Análise Pendente na CCB 1001: faltou RG", e.Message())

	e = ccb.Event{Kind: ccb.EventCreated, CaseID: "1001", Actor: "ana", Status: ccb.StatusInReview}
	assert.Equal(t, "ana assumiu a CCB 1001 (Em Análise)", e.Message())
}

// =============================================================================
// HELPERS
// =============================================================================

// racingLedger runs onFirstRead right after the first ReadAll returns,
// simulating another actor writing between two of our calls.
type racingLedger struct {
	*ledger.Memory
	once        sync.Once
	onFirstRead func()
}

func (r *racingLedger) ReadAll(ctx context.Context) ([]ledger.Row, error) {
	rows, err := r.Memory.ReadAll(ctx)
	r.once.Do(r.onFirstRead)
	return rows, err
}
