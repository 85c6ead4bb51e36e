// Package broadcast fans out circle events to subscribed members with
// per-circle total ordering.
package broadcast

import (
	"time"
)

// EventType discriminates stream payloads.
type EventType string

const (
	TypeMemberTransition EventType = "member_transition"
	TypeMemberCounts     EventType = "member_counts"
	TypePhaseTransition  EventType = "phase_transition"
	TypeTimerSync        EventType = "timer_sync"
	TypeEnforcement      EventType = "enforcement"
)

// MemberTransition is a committed status change visible to the circle.
type MemberTransition struct {
	MemberID    string `json:"member_id"`
	DisplayName string `json:"display_name"`
	FromStatus  string `json:"from_status"`
	ToStatus    string `json:"to_status"`
}

// MemberCounts replaces individual focus updates when the circle hides
// them; subscribers only learn aggregates.
type MemberCounts struct {
	Present int `json:"present"`
	Focused int `json:"focused"`
	Paused  int `json:"paused"`
	Left    int `json:"left"`
}

// PhaseTransition is a committed circle phase change.
type PhaseTransition struct {
	FromPhase       string     `json:"from_phase"`
	ToPhase         string     `json:"to_phase"`
	ActivatedAt     *time.Time `json:"activated_at,omitempty"`
	DurationSeconds int64      `json:"duration_seconds"`
}

// TimerSync carries the authoritative countdown state. Clients derive
// displayed time from it instead of trusting local elapsed time.
type TimerSync struct {
	ActivatedAt      *time.Time `json:"activated_at,omitempty"`
	DurationSeconds  int64      `json:"duration_seconds"`
	RemainingSeconds int64      `json:"remaining_seconds"`
}

// Enforcement instructs one member's device agent. The coordinator
// never assumes the device obeyed.
type Enforcement struct {
	MemberID  string     `json:"member_id"`
	Enforce   bool       `json:"enforce"`
	AppList   []string   `json:"app_list,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Event is one entry in a circle's totally ordered stream. Seq is
// assigned at publish time, under the circle lock, so stream order
// equals commit order. Exactly one payload field is set per type.
type Event struct {
	Seq      uint64    `json:"seq"`
	Type     EventType `json:"type"`
	CircleID string    `json:"circle_id"`
	At       time.Time `json:"at"`

	Member      *MemberTransition `json:"member,omitempty"`
	Counts      *MemberCounts     `json:"counts,omitempty"`
	Phase       *PhaseTransition  `json:"phase,omitempty"`
	Timer       *TimerSync        `json:"timer,omitempty"`
	Enforcement *Enforcement      `json:"enforcement,omitempty"`
}

// MemberView is one member row in a snapshot, post visibility filtering.
type MemberView struct {
	MemberID    string `json:"member_id"`
	DisplayName string `json:"display_name"`
	Status      string `json:"status"`
}

// CircleView is the circle configuration a subscriber may see.
type CircleView struct {
	CircleID        string     `json:"circle_id"`
	Name            string     `json:"name"`
	Phase           string     `json:"phase"`
	CommitmentLevel string     `json:"commitment_level"`
	DurationSeconds int64      `json:"duration_seconds"`
	ScheduledStart  *time.Time `json:"scheduled_start,omitempty"`
	ActivatedAt     *time.Time `json:"activated_at,omitempty"`
}

// Snapshot is the full current state delivered before the live stream,
// so subscribers never reconstruct state from event history alone. Seq
// is the stream watermark the snapshot reflects; live delivery resumes
// strictly after it.
type Snapshot struct {
	Seq     uint64       `json:"seq"`
	Circle  CircleView   `json:"circle"`
	Members []MemberView `json:"members,omitempty"`
	Counts  MemberCounts `json:"counts"`
	Mood    string       `json:"mood,omitempty"`
}
