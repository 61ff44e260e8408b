// Package service exposes the staff-facing operations of the queue
// engine: reading the derived queue and moving signups through the status
// machine via the optimistic update coordinator.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/openmiclive/lineup/internal/domain"
	"github.com/openmiclive/lineup/internal/engine"
	apperrors "github.com/openmiclive/lineup/internal/errors"
	"github.com/openmiclive/lineup/internal/notify"
	"github.com/openmiclive/lineup/internal/ordering"
	"github.com/openmiclive/lineup/internal/repository"
	"github.com/openmiclive/lineup/internal/transition"
	"github.com/openmiclive/lineup/pkg/logger"
)

const maxNotices = 20

// LineupService manages one event's lineup. Mutations apply to the local
// view immediately; durable outcomes settle in the background and rejected
// writes surface as notices on the next snapshot.
type LineupService interface {
	EventID() string
	Queue(ctx context.Context) QueueSnapshot
	Promote(ctx context.Context, id string, override bool) error
	StartTurn(ctx context.Context, id string) error
	Complete(ctx context.Context, id string) error
	Skip(ctx context.Context, id string) error
	Cancel(ctx context.Context, id string) error
	Advance(ctx context.Context) (AdvanceOutput, error)
	Reorder(ctx context.Context, id string, priorityOrder int) error
	Prioritize(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	Refresh(ctx context.Context) error
	PausePolling()
	ResumePolling()
	Close()
}

type lineupService struct {
	eventID   string
	repo      repository.SignupRepository
	notifier  notify.Notifier
	settings  Settings
	view      *engine.View
	coord     *engine.Coordinator
	poller    *engine.Poller
	guard     *ordering.RotationGuard
	estimator ordering.Estimator
	l         logger.Logger

	noticeMu sync.Mutex
	notices  []Notice

	effectWg sync.WaitGroup
}

// NewLineupService builds the engine for one event and primes the view
// with an initial refresh. The poller keeps it fresh until Close.
func NewLineupService(
	ctx context.Context,
	eventID string,
	repo repository.SignupRepository,
	notifier notify.Notifier,
	settings Settings,
	l logger.Logger,
) (LineupService, error) {
	s := &lineupService{
		eventID:   eventID,
		repo:      repo,
		notifier:  notifier,
		settings:  settings,
		guard:     ordering.NewRotationGuard(settings.RotationWindow, settings.RotationEnabled),
		estimator: ordering.NewEstimator(settings.AverageTurn),
		l:         l.With("event_id", eventID),
	}
	s.view = engine.NewView(eventID)
	s.coord = engine.NewCoordinator(s.view, s.l, s.addNotice)
	s.poller = engine.NewPoller(
		s.view,
		repo,
		settings.PollInterval,
		settings.FailureTolerance,
		s.l,
		func(err error) {
			s.addNotice("", apperrors.NewTransientIOError("refresh", err))
		},
	)

	if err := s.poller.Refresh(ctx); err != nil {
		return nil, err
	}
	if err := s.poller.Start(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *lineupService) EventID() string {
	return s.eventID
}

// Queue derives the ordered active queue, current and next performer, wait
// estimates and queue health from the local view. Nothing here is cached.
func (s *lineupService) Queue(_ context.Context) QueueSnapshot {
	all := s.view.Snapshot()
	active := ordering.ActiveQueue(all)

	queue := make([]QueueEntry, 0, len(active))
	for i := range active {
		pos := i + 1
		queue = append(queue, QueueEntry{
			Signup:       active[i],
			Position:     pos,
			WaitEstimate: s.estimator.FormatWait(pos),
			WaitSeconds:  int(s.estimator.Wait(pos).Seconds()),
		})
	}

	return QueueSnapshot{
		EventID:     s.eventID,
		Current:     ordering.Current(all),
		Next:        ordering.Next(all),
		Queue:       queue,
		QueueLength: len(active),
		Health:      ordering.Health(len(active)),
		Stale:       s.poller.Stale(),
		Notices:     s.recentNotices(),
	}
}

// Promote moves a queued signup into the next slot. With rotation enabled
// a participant who performed within the window is deferred while a
// non-repeat candidate is still waiting; override bypasses the guard.
func (s *lineupService) Promote(ctx context.Context, id string, override bool) error {
	if !override {
		if err := s.checkRotation(id); err != nil {
			return err
		}
	}
	_, err := s.transition(ctx, id, domain.StatusNext, "")
	return err
}

func (s *lineupService) StartTurn(ctx context.Context, id string) error {
	_, err := s.transition(ctx, id, domain.StatusSinging, "")
	return err
}

func (s *lineupService) Complete(ctx context.Context, id string) error {
	_, err := s.transition(ctx, id, domain.StatusCompleted, "")
	return err
}

func (s *lineupService) Skip(ctx context.Context, id string) error {
	_, err := s.transition(ctx, id, domain.StatusSkipped, "")
	return err
}

func (s *lineupService) Cancel(ctx context.Context, id string) error {
	_, err := s.transition(ctx, id, domain.StatusCancelled, "")
	return err
}

// Advance completes the current performer, then starts the next one. The
// two steps are sequential, not transactional: when the second fails the
// completion stays committed and the event simply has no current
// performer. With nobody singing and nobody on deck it is a no-op.
func (s *lineupService) Advance(ctx context.Context) (AdvanceOutput, error) {
	var out AdvanceOutput

	if cur := ordering.Current(s.view.Snapshot()); cur != nil {
		ch, err := s.transition(ctx, cur.ID, domain.StatusCompleted, "")
		if err != nil {
			return out, err
		}
		res := <-ch
		if res.Err != nil {
			return out, res.Err
		}
		out.Completed = res.Signup
	}

	next := ordering.Next(s.view.Snapshot())
	if next == nil {
		return out, nil
	}

	ch, err := s.transition(ctx, next.ID, domain.StatusSinging, "")
	if err != nil {
		return out, err
	}
	res := <-ch
	if res.Err != nil {
		return out, res.Err
	}
	out.Started = res.Signup
	return out, nil
}

// Reorder assigns a caller-supplied priority_order. No renormalization;
// the created_at tie-break keeps relative order stable on collisions.
func (s *lineupService) Reorder(ctx context.Context, id string, priorityOrder int) error {
	ch, err := s.coord.Mutate(ctx, id,
		func(su *domain.Signup) {
			su.PriorityOrder = priorityOrder
		},
		func(ctx context.Context) (*domain.Signup, error) {
			return s.repo.Reorder(ctx, id, priorityOrder)
		},
	)
	if err != nil {
		return err
	}
	s.drain(ch)
	return nil
}

// Prioritize moves the signup ahead of every standard arrival by assigning
// a priority_order below the current active minimum. Payment collection
// happens elsewhere; this is the ordering half of a priority purchase.
func (s *lineupService) Prioritize(ctx context.Context, id string) error {
	active := ordering.ActiveQueue(s.view.Snapshot())
	newOrder := -s.settings.PriorityOffset
	if len(active) > 0 {
		newOrder = active[0].PriorityOrder - s.settings.PriorityOffset
	}
	return s.Reorder(ctx, id, newOrder)
}

// Delete destroys the record. Always permitted; not a status transition.
func (s *lineupService) Delete(ctx context.Context, id string) error {
	ch, err := s.coord.Remove(ctx, id, func(ctx context.Context) error {
		return s.repo.DeleteSignup(ctx, id)
	})
	if err != nil {
		return err
	}
	s.drain(ch)
	return nil
}

// Refresh forces an immediate re-sync outside the poll cadence.
func (s *lineupService) Refresh(ctx context.Context) error {
	return s.poller.Refresh(ctx)
}

func (s *lineupService) PausePolling() {
	s.poller.Pause()
}

func (s *lineupService) ResumePolling() {
	s.poller.Resume()
}

// Close stops the poller and waits for in-flight writes and effects.
func (s *lineupService) Close() {
	s.poller.Stop()
	s.coord.Wait()
	s.effectWg.Wait()
}

// transition validates the move against the local view, then hands it to
// the coordinator. Validation failures are returned synchronously before
// anything touches the view.
func (s *lineupService) transition(ctx context.Context, id string, to domain.Status, note string) (<-chan engine.Result, error) {
	su, ok := s.view.Get(id)
	if !ok {
		return nil, apperrors.NewNotFoundError(id)
	}
	if err := transition.ValidateAgainstSet(s.view.Snapshot(), su, to); err != nil {
		return nil, err
	}
	rule, _ := transition.Lookup(su.Status, to)

	ch, err := s.coord.Mutate(ctx, id,
		func(opt *domain.Signup) {
			opt.Status = to
			if to == domain.StatusSinging {
				t := time.Now()
				opt.StartedAt = &t
			}
			if note != "" {
				opt.Note = note
			}
		},
		func(ctx context.Context) (*domain.Signup, error) {
			return s.repo.UpdateStatus(ctx, id, to, note)
		},
	)
	if err != nil {
		return nil, err
	}

	// Fan the settled result out to the caller and the effect runner.
	outCh := make(chan engine.Result, 1)
	s.effectWg.Add(1)
	go func() {
		defer s.effectWg.Done()
		res := <-ch
		if res.Err == nil && res.Signup != nil {
			s.runEffects(rule, *res.Signup)
		}
		outCh <- res
	}()
	return outCh, nil
}

func (s *lineupService) runEffects(rule transition.Rule, su domain.Signup) {
	for _, effect := range rule.Effects {
		switch effect {
		case transition.EffectRecordRotation:
			s.guard.RecordCompletion(su.Name)
		case transition.EffectNotifyUpNext:
			s.notifyUpNext(su)
		}
	}
}

// notifyUpNext invokes the external notifier and records the outcome on
// the signup. A delivery failure never unwinds the promotion.
func (s *lineupService) notifyUpNext(su domain.Signup) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	notifyErr := ""
	if err := s.notifier.NotifyUpNext(ctx, su); err != nil {
		notifyErr = err.Error()
		s.l.Warn("up-next notification failed", "id", su.ID, "error", err)
	}
	if _, err := s.repo.RecordNotification(ctx, su.ID, time.Now(), notifyErr); err != nil {
		s.l.Warn("failed to record notification outcome", "id", su.ID, "error", err)
	}
}

// checkRotation defers a repeat promotion while a non-repeat candidate is
// still waiting. With nothing but repeats in the queue the restriction is
// waived so the queue never starves.
func (s *lineupService) checkRotation(id string) error {
	if !s.guard.Enabled() {
		return nil
	}
	su, ok := s.view.Get(id)
	if !ok {
		return apperrors.NewNotFoundError(id)
	}
	if !s.guard.Blocked(su.Name) {
		return nil
	}
	for _, candidate := range ordering.ActiveQueue(s.view.Snapshot()) {
		if candidate.ID != su.ID && candidate.Status == domain.StatusQueued && !s.guard.Blocked(candidate.Name) {
			return apperrors.NewValidationError(
				"%s performed recently; promote someone else or override", su.Name)
		}
	}
	return nil
}

// drain consumes a settle channel in the background so mutation calls stay
// non-blocking.
func (s *lineupService) drain(ch <-chan engine.Result) {
	s.effectWg.Add(1)
	go func() {
		defer s.effectWg.Done()
		<-ch
	}()
}

func (s *lineupService) addNotice(id string, err error) {
	s.noticeMu.Lock()
	defer s.noticeMu.Unlock()
	s.notices = append(s.notices, Notice{
		SignupID: id,
		Reason:   err.Error(),
		At:       time.Now(),
	})
	if len(s.notices) > maxNotices {
		s.notices = s.notices[len(s.notices)-maxNotices:]
	}
}

func (s *lineupService) recentNotices() []Notice {
	s.noticeMu.Lock()
	defer s.noticeMu.Unlock()
	return append([]Notice(nil), s.notices...)
}
