package ordering

import (
	"sync"

	"github.com/openmiclive/lineup/internal/domain"
)

// RotationGuard defers re-promotion of participants who performed within
// the last Window distinct completions. It is a filter over candidates,
// not a hard block: when no eligible non-repeat candidate remains the
// restriction is waived so the queue never starves, and staff override
// bypasses it entirely.
//
// Participants are keyed by signup name, since one person re-enters the
// pool under a fresh signup record each time.
type RotationGuard struct {
	mu      sync.Mutex
	window  int
	enabled bool
	recent  []string // most recent first, distinct keys
}

func NewRotationGuard(window int, enabled bool) *RotationGuard {
	if window < 0 {
		window = 0
	}
	return &RotationGuard{window: window, enabled: enabled && window > 0}
}

// RecordCompletion notes that the participant just finished a turn. A
// repeat completion moves the key to the front rather than widening the
// window.
func (g *RotationGuard) RecordCompletion(key string) {
	if key == "" || g.window == 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	out := g.recent[:0]
	for _, k := range g.recent {
		if k != key {
			out = append(out, k)
		}
	}
	g.recent = append([]string{key}, out...)
	if len(g.recent) > g.window {
		g.recent = g.recent[:g.window]
	}
}

// Blocked reports whether the participant completed within the window.
func (g *RotationGuard) Blocked(key string) bool {
	if !g.enabled {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, k := range g.recent {
		if k == key {
			return true
		}
	}
	return false
}

// Eligible filters promotion candidates down to those outside the window.
// When every candidate is a recent repeat, the full candidate list is
// returned unchanged so the queue keeps moving.
func (g *RotationGuard) Eligible(candidates []domain.Signup) []domain.Signup {
	if !g.enabled || len(candidates) == 0 {
		return candidates
	}
	var out []domain.Signup
	for i := range candidates {
		if !g.Blocked(candidates[i].Name) {
			out = append(out, candidates[i])
		}
	}
	if len(out) == 0 {
		return candidates
	}
	return out
}

// Recent returns the current window, most recent completion first.
func (g *RotationGuard) Recent() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.recent...)
}

func (g *RotationGuard) Enabled() bool {
	return g.enabled
}
