package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmiclive/lineup/internal/domain"
	apperrors "github.com/openmiclive/lineup/internal/errors"
	"github.com/openmiclive/lineup/internal/notify"
	"github.com/openmiclive/lineup/internal/ordering"
	"github.com/openmiclive/lineup/internal/repository/memory"
	"github.com/openmiclive/lineup/pkg/logger"
)

const testEvent = "ev-1"

func testSettings() Settings {
	return Settings{
		AverageTurn:      3*time.Minute + 30*time.Second,
		RotationWindow:   3,
		RotationEnabled:  false,
		PriorityOffset:   10,
		PollInterval:     time.Hour, // keep the poller quiet during tests
		FailureTolerance: 3,
	}
}

func newTestService(t *testing.T, repo *memory.Repository, settings Settings) *lineupService {
	t.Helper()
	svc, err := NewLineupService(context.Background(), testEvent, repo, notify.NewNoop(), settings, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc.(*lineupService)
}

// settle waits until every issued write and effect has finished.
func settle(s *lineupService) {
	s.coord.Wait()
	s.effectWg.Wait()
}

func seed(t *testing.T, repo *memory.Repository, name string, statuses ...domain.Status) *domain.Signup {
	t.Helper()
	ctx := context.Background()
	su, err := repo.CreateSignup(ctx, &domain.Signup{EventID: testEvent, Name: name})
	require.NoError(t, err)
	for _, status := range statuses {
		su, err = repo.UpdateStatus(ctx, su.ID, status, "")
		require.NoError(t, err)
	}
	return su
}

func TestPromote_NotifiesAndReconciles(t *testing.T) {
	repo := memory.New()
	a := seed(t, repo, "Ana")
	svc := newTestService(t, repo, testSettings())

	require.NoError(t, svc.Promote(context.Background(), a.ID, false))
	settle(svc)

	su, ok := svc.view.Get(a.ID)
	require.True(t, ok)
	assert.Equal(t, domain.StatusNext, su.Status)

	// The notification outcome landed on the durable record.
	durable, err := repo.GetSignup(context.Background(), a.ID)
	require.NoError(t, err)
	assert.NotNil(t, durable.NotifiedAt)
	assert.Empty(t, durable.NotifyError)
}

func TestPromote_UnknownID(t *testing.T) {
	repo := memory.New()
	svc := newTestService(t, repo, testSettings())

	err := svc.Promote(context.Background(), "missing", false)
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestStartTurn_RejectedWhileStageOccupied(t *testing.T) {
	repo := memory.New()
	onStage := seed(t, repo, "Ana", domain.StatusNext, domain.StatusSinging)
	onDeck := seed(t, repo, "Ben", domain.StatusNext)
	svc := newTestService(t, repo, testSettings())

	err := svc.StartTurn(context.Background(), onDeck.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err), "rejected before the view is touched")

	// Neither record moved.
	a, _ := svc.view.Get(onStage.ID)
	b, _ := svc.view.Get(onDeck.ID)
	assert.Equal(t, domain.StatusSinging, a.Status)
	assert.Equal(t, domain.StatusNext, b.Status)
}

func TestComplete_SecondCallIsTypedErrorAndHarmless(t *testing.T) {
	repo := memory.New()
	a := seed(t, repo, "Ana", domain.StatusNext, domain.StatusSinging)
	svc := newTestService(t, repo, testSettings())

	require.NoError(t, svc.Complete(context.Background(), a.ID))
	settle(svc)

	su, _ := svc.view.Get(a.ID)
	require.Equal(t, domain.StatusCompleted, su.Status)

	err := svc.Complete(context.Background(), a.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))

	after, _ := svc.view.Get(a.ID)
	assert.Equal(t, *su, *after, "second completion must not corrupt the view")
}

func TestRejectedMutation_RollsBackAndSurfacesNotice(t *testing.T) {
	repo := memory.New()
	a := seed(t, repo, "Ana")
	svc := newTestService(t, repo, testSettings())

	pre, ok := svc.view.Get(a.ID)
	require.True(t, ok)

	repo.FailNext(memory.OpUpdate, apperrors.NewConflictError(a.ID, "stale write"))
	require.NoError(t, svc.Promote(context.Background(), a.ID, false))
	settle(svc)

	post, ok := svc.view.Get(a.ID)
	require.True(t, ok)
	assert.Equal(t, *pre, *post, "view must match the pre-mutation state exactly")

	snap := svc.Queue(context.Background())
	require.NotEmpty(t, snap.Notices)
	assert.Equal(t, a.ID, snap.Notices[0].SignupID)
}

func TestAdvance_CompletesCurrentThenStartsNext(t *testing.T) {
	repo := memory.New()
	d := seed(t, repo, "Dee", domain.StatusNext, domain.StatusSinging)
	w := seed(t, repo, "Wyn", domain.StatusNext)
	svc := newTestService(t, repo, testSettings())

	out, err := svc.Advance(context.Background())
	require.NoError(t, err)
	require.NotNil(t, out.Completed)
	require.NotNil(t, out.Started)
	assert.Equal(t, d.ID, out.Completed.ID)
	assert.Equal(t, w.ID, out.Started.ID)
	assert.NotNil(t, out.Started.StartedAt)
	settle(svc)

	cur := ordering.Current(svc.view.Snapshot())
	require.NotNil(t, cur)
	assert.Equal(t, w.ID, cur.ID)

	// Second advance: nobody on deck, the stage simply empties.
	out, err = svc.Advance(context.Background())
	require.NoError(t, err)
	require.NotNil(t, out.Completed)
	assert.Equal(t, w.ID, out.Completed.ID)
	assert.Nil(t, out.Started)
	settle(svc)

	assert.Nil(t, ordering.Current(svc.view.Snapshot()))

	// Third advance: nothing to do at all.
	out, err = svc.Advance(context.Background())
	require.NoError(t, err)
	assert.Nil(t, out.Completed)
	assert.Nil(t, out.Started)
}

func TestAdvance_RecordsRotation(t *testing.T) {
	repo := memory.New()
	seed(t, repo, "Dee", domain.StatusNext, domain.StatusSinging)

	settings := testSettings()
	settings.RotationEnabled = true
	svc := newTestService(t, repo, settings)

	_, err := svc.Advance(context.Background())
	require.NoError(t, err)
	settle(svc)

	assert.Equal(t, []string{"Dee"}, svc.guard.Recent())
}

func TestPromote_RotationGuardDefersRepeats(t *testing.T) {
	repo := memory.New()
	y := seed(t, repo, "Yara")
	seed(t, repo, "Wyn")

	settings := testSettings()
	settings.RotationEnabled = true
	svc := newTestService(t, repo, settings)

	svc.guard.RecordCompletion("Xan")
	svc.guard.RecordCompletion("Yara")
	svc.guard.RecordCompletion("Zoe")

	// Yara is a repeat and Wyn is still waiting.
	err := svc.Promote(context.Background(), y.ID, false)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))

	// Staff override always goes through.
	require.NoError(t, svc.Promote(context.Background(), y.ID, true))
	settle(svc)

	su, _ := svc.view.Get(y.ID)
	assert.Equal(t, domain.StatusNext, su.Status)
}

func TestPromote_RotationWaivedWhenOnlyRepeatsRemain(t *testing.T) {
	repo := memory.New()
	y := seed(t, repo, "Yara")

	settings := testSettings()
	settings.RotationEnabled = true
	svc := newTestService(t, repo, settings)

	svc.guard.RecordCompletion("Yara")

	require.NoError(t, svc.Promote(context.Background(), y.ID, false))
	settle(svc)

	su, _ := svc.view.Get(y.ID)
	assert.Equal(t, domain.StatusNext, su.Status)
}

func TestPrioritize_SortsAheadOfStandardArrivals(t *testing.T) {
	repo := memory.New()
	seed(t, repo, "Ana")
	b := seed(t, repo, "Ben")
	svc := newTestService(t, repo, testSettings())

	require.NoError(t, svc.Prioritize(context.Background(), b.ID))
	settle(svc)

	snap := svc.Queue(context.Background())
	require.Len(t, snap.Queue, 2)
	assert.Equal(t, b.ID, snap.Queue[0].ID)
	assert.Equal(t, 1, snap.Queue[0].Position)
	assert.Equal(t, 1-testSettings().PriorityOffset, snap.Queue[0].PriorityOrder)
}

func TestReorder_KeepsCallerSuppliedOrder(t *testing.T) {
	repo := memory.New()
	a := seed(t, repo, "Ana")
	svc := newTestService(t, repo, testSettings())

	require.NoError(t, svc.Reorder(context.Background(), a.ID, 42))
	settle(svc)

	durable, err := repo.GetSignup(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, 42, durable.PriorityOrder)
}

func TestDelete_RemovesRecord(t *testing.T) {
	repo := memory.New()
	a := seed(t, repo, "Ana")
	svc := newTestService(t, repo, testSettings())

	require.NoError(t, svc.Delete(context.Background(), a.ID))
	settle(svc)

	_, ok := svc.view.Get(a.ID)
	assert.False(t, ok)
	_, err := repo.GetSignup(context.Background(), a.ID)
	assert.True(t, apperrors.IsNotFound(err))

	err = svc.Delete(context.Background(), a.ID)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestQueueSnapshot_DerivedFields(t *testing.T) {
	repo := memory.New()
	seed(t, repo, "Stage", domain.StatusNext, domain.StatusSinging)
	deck := seed(t, repo, "Deck", domain.StatusNext)
	seed(t, repo, "Ana")
	svc := newTestService(t, repo, testSettings())

	snap := svc.Queue(context.Background())

	require.NotNil(t, snap.Current)
	assert.Equal(t, "Stage", snap.Current.Name)
	require.NotNil(t, snap.Next)
	assert.Equal(t, deck.ID, snap.Next.ID)

	require.Len(t, snap.Queue, 2)
	assert.Equal(t, 1, snap.Queue[0].Position)
	assert.Equal(t, "next", snap.Queue[0].WaitEstimate)
	assert.Equal(t, 2, snap.Queue[1].Position)
	assert.Equal(t, 2*210, snap.Queue[1].WaitSeconds)

	assert.Equal(t, 2, snap.QueueLength)
	assert.Equal(t, ordering.HealthLight, snap.Health)
	assert.False(t, snap.Stale)
}
