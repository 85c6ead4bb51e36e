package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shellbound/focuscircle/pkg/db/pagination"
)

// NameMaxLen bounds the free-text circle label.
const NameMaxLen = 30

type CreateCircleRequest struct {
	Name            string
	DurationSeconds int64
	ScheduledStart  *time.Time
	CommitmentLevel CommitmentLevel
	BlockingEnabled bool
	BlockingPreset  BlockingPreset
	BlockedApps     []string
	Visibility      Visibility
	CreatedBy       string
}

type CreateCircleResponse struct {
	Circle     Circle `json:"circle"`
	InviteCode string `json:"invite_code"`
}

type ListCircleRequest struct {
	PageToken string
	PageSize  int
	CreatedBy string
}

type ListCircleResponse struct {
	pagination.PageInfo
	Circles []Circle `json:"circles"`
}

// Service owns circle creation and read paths. Phase transitions after
// creation belong to the timer authority, the single phase writer.
type Service interface {
	Create(ctx context.Context, req CreateCircleRequest) (CreateCircleResponse, error)
	GetByID(ctx context.Context, id string) (Circle, error)
	List(ctx context.Context, req ListCircleRequest) (ListCircleResponse, error)
}

var (
	ErrInvalidName        = errors.New("invalid_name")
	ErrInvalidDuration    = errors.New("invalid_duration")
	ErrInvalidCommitment  = errors.New("invalid_commitment_level")
	ErrInvalidPreset      = errors.New("invalid_blocking_preset")
	ErrInvalidSchedule    = errors.New("invalid_scheduled_start")
	ErrInvalidID          = errors.New("invalid_id")
	ErrNotFound           = errors.New("circle_not_found")
	ErrCodeSpaceExhausted = errors.New("code_space_exhausted")
)
