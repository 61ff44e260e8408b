package ordering

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmiclive/lineup/internal/domain"
)

func named(id, name string) domain.Signup {
	return domain.Signup{ID: id, Name: name, Status: domain.StatusQueued}
}

func TestRotationGuard_FiltersRecentCompletions(t *testing.T) {
	g := NewRotationGuard(3, true)
	g.RecordCompletion("X")
	g.RecordCompletion("Y")
	g.RecordCompletion("Z")

	eligible := g.Eligible([]domain.Signup{named("1", "Y"), named("2", "W")})
	require.Len(t, eligible, 1)
	assert.Equal(t, "W", eligible[0].Name)
}

func TestRotationGuard_WindowSlides(t *testing.T) {
	g := NewRotationGuard(2, true)
	g.RecordCompletion("X")
	g.RecordCompletion("Y")
	g.RecordCompletion("Z") // X falls out of the window

	assert.False(t, g.Blocked("X"))
	assert.True(t, g.Blocked("Y"))
	assert.True(t, g.Blocked("Z"))
	assert.Equal(t, []string{"Z", "Y"}, g.Recent())
}

func TestRotationGuard_RepeatCompletionStaysDistinct(t *testing.T) {
	g := NewRotationGuard(3, true)
	g.RecordCompletion("X")
	g.RecordCompletion("Y")
	g.RecordCompletion("X") // moves to front, no second entry

	assert.Equal(t, []string{"X", "Y"}, g.Recent())
}

func TestRotationGuard_StarvationWaiver(t *testing.T) {
	g := NewRotationGuard(3, true)
	g.RecordCompletion("X")
	g.RecordCompletion("Y")

	// Everyone waiting is a repeat: the filter waives itself.
	candidates := []domain.Signup{named("1", "X"), named("2", "Y")}
	eligible := g.Eligible(candidates)
	assert.Equal(t, candidates, eligible)
}

func TestRotationGuard_Disabled(t *testing.T) {
	g := NewRotationGuard(3, false)
	g.RecordCompletion("X")

	assert.False(t, g.Blocked("X"))
	candidates := []domain.Signup{named("1", "X")}
	assert.Equal(t, candidates, g.Eligible(candidates))
}

func TestRotationGuard_ZeroWindowNeverBlocks(t *testing.T) {
	g := NewRotationGuard(0, true)
	g.RecordCompletion("X")
	assert.False(t, g.Blocked("X"))
	assert.Empty(t, g.Recent())
}
