package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmiclive/lineup/internal/domain"
	apperrors "github.com/openmiclive/lineup/internal/errors"
)

func TestCreateSignup_AssignsIDAndArrivalOrder(t *testing.T) {
	repo := New()
	ctx := context.Background()

	first, err := repo.CreateSignup(ctx, &domain.Signup{EventID: "ev", Name: "Ana"})
	require.NoError(t, err)
	second, err := repo.CreateSignup(ctx, &domain.Signup{EventID: "ev", Name: "Ben"})
	require.NoError(t, err)

	assert.NotEmpty(t, first.ID)
	assert.Equal(t, domain.StatusQueued, first.Status)
	assert.Less(t, first.PriorityOrder, second.PriorityOrder, "arrival order is monotonic")
	assert.False(t, first.CreatedAt.IsZero())
}

func TestUpdateStatus_IllegalMoveIsConflict(t *testing.T) {
	repo := New()
	ctx := context.Background()

	su, err := repo.CreateSignup(ctx, &domain.Signup{EventID: "ev", Name: "Ana"})
	require.NoError(t, err)

	_, err = repo.UpdateStatus(ctx, su.ID, domain.StatusCompleted, "")
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))

	// Unchanged on the failed write.
	got, err := repo.GetSignup(ctx, su.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, got.Status)
}

func TestUpdateStatus_SingleStagePerEvent(t *testing.T) {
	repo := New()
	ctx := context.Background()

	a, _ := repo.CreateSignup(ctx, &domain.Signup{EventID: "ev", Name: "Ana"})
	b, _ := repo.CreateSignup(ctx, &domain.Signup{EventID: "ev", Name: "Ben"})

	for _, id := range []string{a.ID, b.ID} {
		_, err := repo.UpdateStatus(ctx, id, domain.StatusNext, "")
		require.NoError(t, err)
	}

	first, err := repo.UpdateStatus(ctx, a.ID, domain.StatusSinging, "")
	require.NoError(t, err)
	assert.NotNil(t, first.StartedAt, "store stamps started_at")

	_, err = repo.UpdateStatus(ctx, b.ID, domain.StatusSinging, "")
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))

	// A different event is unaffected.
	c, _ := repo.CreateSignup(ctx, &domain.Signup{EventID: "other", Name: "Cy"})
	_, err = repo.UpdateStatus(ctx, c.ID, domain.StatusNext, "")
	require.NoError(t, err)
	_, err = repo.UpdateStatus(ctx, c.ID, domain.StatusSinging, "")
	require.NoError(t, err)
}

func TestUpdateStatus_NotFound(t *testing.T) {
	repo := New()
	_, err := repo.UpdateStatus(context.Background(), "missing", domain.StatusNext, "")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestDeleteSignup_AlwaysPermitted(t *testing.T) {
	repo := New()
	ctx := context.Background()

	su, _ := repo.CreateSignup(ctx, &domain.Signup{EventID: "ev", Name: "Ana"})
	_, err := repo.UpdateStatus(ctx, su.ID, domain.StatusNext, "")
	require.NoError(t, err)
	_, err = repo.UpdateStatus(ctx, su.ID, domain.StatusSinging, "")
	require.NoError(t, err)

	require.NoError(t, repo.DeleteSignup(ctx, su.ID))
	assert.True(t, apperrors.IsNotFound(repo.DeleteSignup(ctx, su.ID)))
}

func TestFailNext_IsOneShot(t *testing.T) {
	repo := New()
	ctx := context.Background()

	repo.FailNext(OpList, apperrors.NewTransientIOError("list", assert.AnError))
	_, err := repo.ListSignups(ctx, "ev")
	assert.True(t, apperrors.IsTransient(err))

	_, err = repo.ListSignups(ctx, "ev")
	assert.NoError(t, err)
}

func TestListSignups_ScopedToEvent(t *testing.T) {
	repo := New()
	ctx := context.Background()

	repo.CreateSignup(ctx, &domain.Signup{EventID: "ev", Name: "Ana"})
	repo.CreateSignup(ctx, &domain.Signup{EventID: "other", Name: "Ben"})

	signups, err := repo.ListSignups(ctx, "ev")
	require.NoError(t, err)
	require.Len(t, signups, 1)
	assert.Equal(t, "Ana", signups[0].Name)
}
