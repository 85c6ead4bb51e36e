package domain

import (
	"context"
	"errors"

	"github.com/shellbound/focuscircle/internal/broadcast"
)

type JoinCircleRequest struct {
	InviteCode  string
	UserID      string
	DisplayName string
}

type JoinCircleResponse struct {
	CircleID string             `json:"circle_id"`
	MemberID string             `json:"member_id"`
	Status   Status             `json:"status"`
	Snapshot broadcast.Snapshot `json:"snapshot"`
}

type SetStatusRequest struct {
	MemberID string
	Status   Status
	// RequestedBy must match the membership's user; members only move
	// their own status.
	RequestedBy string
}

// Service owns membership lifecycle within circles.
type Service interface {
	// Join admits a user through an invite code. Joining a circle the
	// user already occupies returns the current membership unchanged.
	Join(ctx context.Context, req JoinCircleRequest) (JoinCircleResponse, error)
	// SetStatus applies focused/paused/left transitions. Leaving an
	// already-left membership is a no-op returning success.
	SetStatus(ctx context.Context, req SetStatusRequest) (Member, error)
	// Heartbeat resets the missed-heartbeat timer for a membership.
	Heartbeat(ctx context.Context, memberID, requestedBy string) error
	GetByID(ctx context.Context, id string) (Member, error)
	// Snapshot returns the policy-filtered current state of a circle,
	// stamped with the event stream watermark it reflects.
	Snapshot(ctx context.Context, circleID string) (broadcast.Snapshot, error)
}

var (
	ErrNotFound          = errors.New("member_not_found")
	ErrInvalidUser       = errors.New("invalid_user")
	ErrInvalidStatus     = errors.New("invalid_status")
	ErrCircleNotJoinable = errors.New("circle_not_joinable")
	ErrCircleNotActive   = errors.New("circle_not_active")
	ErrRejoinNotAllowed  = errors.New("rejoin_not_allowed")
	ErrForbidden         = errors.New("member_forbidden")
)
