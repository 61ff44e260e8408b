package service

import (
	"time"

	"github.com/openmiclive/lineup/internal/domain"
)

// Settings carries the engine knobs supplied by the external settings
// store. Consumed read-only.
type Settings struct {
	AverageTurn      time.Duration
	RotationWindow   int
	RotationEnabled  bool
	PriorityOffset   int
	PollInterval     time.Duration
	FailureTolerance int
}

// QueueEntry is one active-queue row with its derived position and wait
// estimate. Position and estimate are recomputed on every read.
type QueueEntry struct {
	domain.Signup
	Position     int    `json:"position"`
	WaitEstimate string `json:"wait_estimate"`
	WaitSeconds  int    `json:"wait_seconds"`
}

// QueueSnapshot is the full derived state of one event's lineup.
type QueueSnapshot struct {
	EventID     string         `json:"event_id"`
	Current     *domain.Signup `json:"current,omitempty"`
	Next        *domain.Signup `json:"next,omitempty"`
	Queue       []QueueEntry   `json:"queue"`
	QueueLength int            `json:"queue_length"`
	Health      string         `json:"health"`
	Stale       bool           `json:"stale"`
	Notices     []Notice       `json:"notices,omitempty"`
}

// Notice is a short, user-visible report of a rejected mutation. The view
// has already been restored when a notice appears.
type Notice struct {
	SignupID string    `json:"signup_id,omitempty"`
	Reason   string    `json:"reason"`
	At       time.Time `json:"at"`
}

// AdvanceOutput reports what the advance shortcut did. The two steps are
// not atomic: Completed may be set while Started is nil when the second
// step failed or no next performer existed.
type AdvanceOutput struct {
	Completed *domain.Signup `json:"completed,omitempty"`
	Started   *domain.Signup `json:"started,omitempty"`
}
