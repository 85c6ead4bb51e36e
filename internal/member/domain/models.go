// Package domain contains persistence models and contracts for circle
// memberships.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Status represents member presence states within a circle.
type Status string

const (
	StatusInvited Status = "invited"
	StatusJoined  Status = "joined"
	StatusFocused Status = "focused"
	StatusPaused  Status = "paused"
	StatusLeft    Status = "left"
)

// Present reports whether the member currently holds a seat.
func (s Status) Present() bool {
	switch s {
	case StatusJoined, StatusFocused, StatusPaused:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the status graph permits the edge.
// left is terminal; focused and paused are mutually reversible.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusInvited:
		return next == StatusJoined
	case StatusJoined:
		return next == StatusFocused || next == StatusLeft
	case StatusFocused:
		return next == StatusPaused || next == StatusLeft
	case StatusPaused:
		return next == StatusFocused || next == StatusLeft
	default:
		return false
	}
}

// LeaveReason distinguishes why a member left, for analytics only. The
// public event shape never carries it.
type LeaveReason string

const (
	LeaveReasonExplicit         LeaveReason = "explicit"
	LeaveReasonHeartbeatTimeout LeaveReason = "heartbeat_timeout"
)

// Member is the durable record of one membership in one circle.
type Member struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	CircleID        snowflake.ID `gorm:"not null;index" json:"circle_id"`
	UserID          string       `gorm:"not null;index" json:"user_id"`
	DisplayName     string       `gorm:"not null" json:"display_name"`
	Status          Status       `gorm:"type:text;not null" json:"status"`
	LeaveReason     LeaveReason  `gorm:"type:text" json:"-"`
	JoinedAt        time.Time    `gorm:"not null" json:"joined_at"`
	LeftAt          *time.Time   `json:"left_at,omitempty"`
	LastHeartbeatAt time.Time    `gorm:"not null;index" json:"last_heartbeat_at"`
	CreatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Member) TableName() string { return "members" }
