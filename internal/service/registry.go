package service

import (
	"context"
	"sync"

	"github.com/openmiclive/lineup/internal/notify"
	"github.com/openmiclive/lineup/internal/repository"
	"github.com/openmiclive/lineup/pkg/logger"
)

// Registry hands out one LineupService per event, created lazily on first
// use. Each service owns its view, coordinator and poller.
type Registry struct {
	repo     repository.SignupRepository
	notifier notify.Notifier
	settings Settings
	l        logger.Logger

	mu       sync.Mutex
	services map[string]LineupService
	closed   bool
}

func NewRegistry(
	repo repository.SignupRepository,
	notifier notify.Notifier,
	settings Settings,
	l logger.Logger,
) *Registry {
	return &Registry{
		repo:     repo,
		notifier: notifier,
		settings: settings,
		l:        l,
		services: make(map[string]LineupService),
	}
}

// Get returns the service for the event, starting one if needed.
func (r *Registry) Get(ctx context.Context, eventID string) (LineupService, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if svc, ok := r.services[eventID]; ok {
		return svc, nil
	}

	svc, err := NewLineupService(ctx, eventID, r.repo, r.notifier, r.settings, r.l)
	if err != nil {
		return nil, err
	}
	r.services[eventID] = svc
	r.l.Info("lineup service started", "event_id", eventID)
	return svc, nil
}

// Close tears down every service: pollers stop, in-flight writes settle.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	services := make([]LineupService, 0, len(r.services))
	for _, svc := range r.services {
		services = append(services, svc)
	}
	r.mu.Unlock()

	for _, svc := range services {
		svc.Close()
	}
}
