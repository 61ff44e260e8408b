package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/openmiclive/lineup/internal/errors"
	"github.com/openmiclive/lineup/internal/repository"
	"github.com/openmiclive/lineup/pkg/logger"
)

const (
	DefaultPollInterval     = 5 * time.Second
	DefaultFailureTolerance = 3
)

// StaleFunc is called when the poller can no longer vouch for the view: a
// silently stale queue is the worst failure mode, so after a bounded run
// of transient failures the staleness is surfaced instead of swallowed.
type StaleFunc func(err error)

// Poller re-fetches the full record set on a fixed interval and replaces
// the local view wholesale. It is the only way changes from other staff
// sessions or the public signup surface become visible; there is no push
// channel.
type Poller struct {
	view      *View
	repo      repository.SignupRepository
	interval  time.Duration
	tolerance int
	l         logger.Logger
	onStale   StaleFunc

	mu      sync.Mutex
	running bool
	paused  bool
	stopCh  chan struct{}
	ticker  *time.Ticker
	wg      sync.WaitGroup

	refreshing atomic.Bool
	failures   int
}

func NewPoller(
	view *View,
	repo repository.SignupRepository,
	interval time.Duration,
	tolerance int,
	l logger.Logger,
	onStale StaleFunc,
) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if tolerance <= 0 {
		tolerance = DefaultFailureTolerance
	}
	return &Poller{
		view:      view,
		repo:      repo,
		interval:  interval,
		tolerance: tolerance,
		l:         l,
		onStale:   onStale,
	}
}

func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return errors.New("poller is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.ticker = time.NewTicker(p.interval)

	p.wg.Add(1)
	go p.loop(ctx)

	p.l.Info("refresh poller started",
		"event_id", p.view.EventID(),
		"interval", p.interval,
	)
	return nil
}

// Stop halts polling and waits for an in-flight tick to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	p.ticker.Stop()
	p.mu.Unlock()

	p.wg.Wait()
	p.l.Info("refresh poller stopped", "event_id", p.view.EventID())
}

// Pause suspends ticks without tearing the poller down, e.g. while a
// detail view is open.
func (p *Poller) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
}

func (p *Poller) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
}

// Stale reports whether refreshes have failed long enough that the view
// can no longer be trusted.
func (p *Poller) Stale() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures >= p.tolerance
}

func (p *Poller) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *Poller) loop(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-p.ticker.C:
			if p.Paused() {
				continue
			}
			p.tick(ctx)
		}
	}
}

// tick runs one refresh, tolerating a bounded run of transient failures.
func (p *Poller) tick(ctx context.Context) {
	err := p.Refresh(ctx)
	if err == nil {
		return
	}

	p.mu.Lock()
	p.failures++
	failures := p.failures
	p.mu.Unlock()

	if apperrors.IsTransient(err) && failures < p.tolerance {
		p.l.Warn("refresh failed, view may be stale",
			"event_id", p.view.EventID(),
			"consecutive_failures", failures,
			"error", err,
		)
		return
	}

	p.l.Error("refresh failing, surfacing stale view",
		"event_id", p.view.EventID(),
		"consecutive_failures", failures,
		"error", err,
	)
	if p.onStale != nil {
		p.onStale(err)
	}
}

// Refresh fetches the record set once and replaces the view. Overlapping
// calls are coalesced: a second caller returns immediately while the first
// is still in flight.
func (p *Poller) Refresh(ctx context.Context) error {
	if !p.refreshing.CompareAndSwap(false, true) {
		return nil
	}
	defer p.refreshing.Store(false)

	signups, err := p.repo.ListSignups(ctx, p.view.EventID())
	if err != nil {
		return err
	}
	p.view.ReplaceAll(signups)

	p.mu.Lock()
	p.failures = 0
	p.mu.Unlock()

	p.l.Debug("view refreshed",
		"event_id", p.view.EventID(),
		"records", len(signups),
	)
	return nil
}
