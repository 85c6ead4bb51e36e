// Package domain contains persistence models and contracts for circles.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Phase represents circle lifecycle states.
type Phase string

const (
	PhaseScheduled Phase = "scheduled"
	PhaseActive    Phase = "active"
	PhaseCompleted Phase = "completed"
	PhaseCancelled Phase = "cancelled"
)

// Terminal reports whether a phase has no outgoing transitions.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseCancelled
}

// CommitmentLevel controls enforcement strictness and exit visibility.
type CommitmentLevel string

const (
	CommitmentChill    CommitmentLevel = "chill"
	CommitmentLockedIn CommitmentLevel = "locked_in"
	CommitmentHardcore CommitmentLevel = "hardcore"
)

// ValidCommitmentLevel reports whether the value is a known level.
func ValidCommitmentLevel(level CommitmentLevel) bool {
	switch level {
	case CommitmentChill, CommitmentLockedIn, CommitmentHardcore:
		return true
	default:
		return false
	}
}

// BlockingPreset names the app list a circle blocks.
type BlockingPreset string

const (
	PresetDefault  BlockingPreset = "default"
	PresetPersonal BlockingPreset = "personal"
	PresetCustom   BlockingPreset = "custom"
)

// ValidBlockingPreset reports whether the value is a known preset.
func ValidBlockingPreset(preset BlockingPreset) bool {
	switch preset {
	case PresetDefault, PresetPersonal, PresetCustom:
		return true
	default:
		return false
	}
}

// Visibility holds the creator-chosen disclosure flags. Immutable after
// creation; evaluated circle-wide, never per recipient pair.
type Visibility struct {
	ShowFocusedMembers bool `gorm:"not null;default:true" json:"show_focused_members"`
	ShowEarlyLeavers   bool `gorm:"not null;default:true" json:"show_early_leavers"`
	ShowExitsToGroup   bool `gorm:"not null;default:true" json:"show_exits_to_group"`
}

// Circle is the durable record of a focus session.
type Circle struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	Name            string       `gorm:"not null" json:"name"`
	InviteCode      string       `gorm:"not null;index" json:"invite_code"`
	DurationSeconds int64        `gorm:"not null" json:"duration_seconds"`
	ScheduledStart  *time.Time   `json:"scheduled_start,omitempty"`
	Phase           Phase        `gorm:"type:text;not null;index" json:"phase"`
	ActivatedAt     *time.Time   `json:"activated_at,omitempty"`
	// ExpiresAt is materialized at activation so due-for-completion
	// sweeps stay a plain indexed comparison on every dialect.
	ExpiresAt       *time.Time                  `gorm:"index" json:"expires_at,omitempty"`
	EndedAt         *time.Time                  `json:"ended_at,omitempty"`
	CommitmentLevel CommitmentLevel             `gorm:"type:text;not null" json:"commitment_level"`
	BlockingEnabled bool                        `gorm:"not null;default:false" json:"blocking_enabled"`
	BlockingPreset  BlockingPreset              `gorm:"type:text" json:"blocking_preset,omitempty"`
	BlockedApps     datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"blocked_apps,omitempty"`
	Visibility      Visibility                  `gorm:"embedded" json:"visibility"`
	CreatedBy       string                      `gorm:"not null;index" json:"created_by"`
	CreatedAt       time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Circle) TableName() string { return "circles" }

// EndsAt returns the scheduled completion instant, zero if not active yet.
func (c Circle) EndsAt() time.Time {
	if c.ActivatedAt == nil {
		return time.Time{}
	}
	return c.ActivatedAt.Add(time.Duration(c.DurationSeconds) * time.Second)
}

// Remaining returns the countdown clamped at zero.
func (c Circle) Remaining(now time.Time) time.Duration {
	if c.ActivatedAt == nil {
		return time.Duration(c.DurationSeconds) * time.Second
	}
	left := c.EndsAt().Sub(now)
	if left < 0 {
		return 0
	}
	return left
}
