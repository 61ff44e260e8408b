package domain

import "time"

// Signup is one participant entry in an event's lineup. Records are created
// by the public signup surface in StatusQueued and only leave the active
// queue through an explicit status transition or deletion.
type Signup struct {
	ID            string     `json:"id"`
	EventID       string     `json:"event_id"`
	Name          string     `json:"name"`
	SongTitle     string     `json:"song_title,omitempty"`
	PartySize     int        `json:"party_size,omitempty"`
	Members       []string   `json:"members,omitempty"`
	Status        Status     `json:"status"`
	PriorityOrder int        `json:"priority_order"`
	IsPriority    bool       `json:"is_priority"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	NotifiedAt    *time.Time `json:"notified_at,omitempty"`
	NotifyError   string     `json:"notify_error,omitempty"`
	Note          string     `json:"note,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type Status string

const (
	StatusQueued    Status = "queued"
	StatusNext      Status = "next"
	StatusSinging   Status = "singing"
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusCancelled Status = "cancelled"
)

// IsActive reports whether the signup belongs to the active queue.
func (s *Signup) IsActive() bool {
	return s.Status == StatusQueued || s.Status == StatusNext
}

func (s *Signup) IsTerminal() bool {
	return s.Status == StatusCompleted ||
		s.Status == StatusSkipped ||
		s.Status == StatusCancelled
}

func (s *Signup) IsCurrent() bool {
	return s.Status == StatusSinging
}

// Clone returns a deep copy, used for pre-mutation snapshots.
func (s *Signup) Clone() *Signup {
	cp := *s
	if s.StartedAt != nil {
		t := *s.StartedAt
		cp.StartedAt = &t
	}
	if s.NotifiedAt != nil {
		t := *s.NotifiedAt
		cp.NotifiedAt = &t
	}
	if s.Members != nil {
		cp.Members = append([]string(nil), s.Members...)
	}
	return &cp
}

func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusNext, StatusSinging, StatusCompleted, StatusSkipped, StatusCancelled:
		return true
	}
	return false
}
