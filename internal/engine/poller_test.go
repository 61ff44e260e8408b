package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmiclive/lineup/internal/domain"
	apperrors "github.com/openmiclive/lineup/internal/errors"
	"github.com/openmiclive/lineup/internal/repository"
	"github.com/openmiclive/lineup/pkg/logger"
)

// listFunc adapts a closure to the repository interface for poller tests;
// the poller only ever lists.
type listFunc func(ctx context.Context, eventID string) ([]domain.Signup, error)

func (f listFunc) ListSignups(ctx context.Context, eventID string) ([]domain.Signup, error) {
	return f(ctx, eventID)
}

func (listFunc) GetSignup(context.Context, string) (*domain.Signup, error) {
	panic("not used")
}

func (listFunc) CreateSignup(context.Context, *domain.Signup) (*domain.Signup, error) {
	panic("not used")
}

func (listFunc) UpdateStatus(context.Context, string, domain.Status, string) (*domain.Signup, error) {
	panic("not used")
}

func (listFunc) Reorder(context.Context, string, int) (*domain.Signup, error) {
	panic("not used")
}

func (listFunc) RecordNotification(context.Context, string, time.Time, string) (*domain.Signup, error) {
	panic("not used")
}

func (listFunc) DeleteSignup(context.Context, string) error {
	panic("not used")
}

var _ repository.SignupRepository = listFunc(nil)

func TestPoller_RefreshReplacesViewWholesale(t *testing.T) {
	v := seedView(t, queued("stale-local"))

	fresh := []domain.Signup{queued("a"), queued("b")}
	p := NewPoller(v, listFunc(func(ctx context.Context, eventID string) ([]domain.Signup, error) {
		assert.Equal(t, "ev-1", eventID)
		return fresh, nil
	}), time.Minute, 3, logger.NewNop(), nil)

	require.NoError(t, p.Refresh(context.Background()))

	assert.Equal(t, 2, v.Len())
	_, ok := v.Get("stale-local")
	assert.False(t, ok, "unconfirmed local state is superseded")
}

func TestPoller_TransientFailuresSwallowedThenSurfaced(t *testing.T) {
	v := NewView("ev-1")

	var staleMu sync.Mutex
	var staleCalls int
	p := NewPoller(v, listFunc(func(ctx context.Context, eventID string) ([]domain.Signup, error) {
		return nil, apperrors.NewTransientIOError("list signups", assert.AnError)
	}), time.Minute, 3, logger.NewNop(), func(err error) {
		staleMu.Lock()
		staleCalls++
		staleMu.Unlock()
	})

	ctx := context.Background()
	p.tick(ctx)
	p.tick(ctx)
	assert.False(t, p.Stale(), "two failures are within tolerance")

	staleMu.Lock()
	assert.Equal(t, 0, staleCalls)
	staleMu.Unlock()

	p.tick(ctx)
	assert.True(t, p.Stale())

	staleMu.Lock()
	assert.Equal(t, 1, staleCalls)
	staleMu.Unlock()
}

func TestPoller_SuccessResetsFailureCount(t *testing.T) {
	v := NewView("ev-1")

	fail := true
	p := NewPoller(v, listFunc(func(ctx context.Context, eventID string) ([]domain.Signup, error) {
		if fail {
			return nil, apperrors.NewTransientIOError("list signups", assert.AnError)
		}
		return nil, nil
	}), time.Minute, 3, logger.NewNop(), nil)

	ctx := context.Background()
	p.tick(ctx)
	p.tick(ctx)

	fail = false
	p.tick(ctx)
	assert.False(t, p.Stale())

	fail = true
	p.tick(ctx)
	assert.False(t, p.Stale(), "the counter restarted after the good tick")
}

func TestPoller_OverlappingRefreshCoalesces(t *testing.T) {
	v := NewView("ev-1")

	started := make(chan struct{})
	release := make(chan struct{})
	var listMu sync.Mutex
	listCalls := 0
	p := NewPoller(v, listFunc(func(ctx context.Context, eventID string) ([]domain.Signup, error) {
		listMu.Lock()
		listCalls++
		listMu.Unlock()
		close(started)
		<-release
		return nil, nil
	}), time.Minute, 3, logger.NewNop(), nil)

	done := make(chan error)
	go func() { done <- p.Refresh(context.Background()) }()
	<-started

	// Second call returns immediately without hitting the repository.
	require.NoError(t, p.Refresh(context.Background()))
	listMu.Lock()
	assert.Equal(t, 1, listCalls)
	listMu.Unlock()

	close(release)
	require.NoError(t, <-done)
}

func TestPoller_StartStop(t *testing.T) {
	v := NewView("ev-1")

	var listMu sync.Mutex
	listCalls := 0
	p := NewPoller(v, listFunc(func(ctx context.Context, eventID string) ([]domain.Signup, error) {
		listMu.Lock()
		listCalls++
		listMu.Unlock()
		return nil, nil
	}), 10*time.Millisecond, 3, logger.NewNop(), nil)

	require.NoError(t, p.Start(context.Background()))
	assert.Error(t, p.Start(context.Background()), "double start is rejected")

	assert.Eventually(t, func() bool {
		listMu.Lock()
		defer listMu.Unlock()
		return listCalls >= 2
	}, time.Second, 5*time.Millisecond)

	p.Stop()
	listMu.Lock()
	after := listCalls
	listMu.Unlock()

	time.Sleep(30 * time.Millisecond)
	listMu.Lock()
	assert.Equal(t, after, listCalls, "no ticks after stop")
	listMu.Unlock()

	// Stopping twice is harmless.
	p.Stop()
}

func TestPoller_PauseSkipsTicks(t *testing.T) {
	v := NewView("ev-1")

	var listMu sync.Mutex
	listCalls := 0
	p := NewPoller(v, listFunc(func(ctx context.Context, eventID string) ([]domain.Signup, error) {
		listMu.Lock()
		listCalls++
		listMu.Unlock()
		return nil, nil
	}), 10*time.Millisecond, 3, logger.NewNop(), nil)

	p.Pause()
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	time.Sleep(50 * time.Millisecond)
	listMu.Lock()
	assert.Equal(t, 0, listCalls, "paused poller must not refresh")
	listMu.Unlock()

	p.Resume()
	assert.Eventually(t, func() bool {
		listMu.Lock()
		defer listMu.Unlock()
		return listCalls > 0
	}, time.Second, 5*time.Millisecond)
}
