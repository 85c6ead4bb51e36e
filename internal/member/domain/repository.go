package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the durable member store. Mutating methods are only
// called from code paths holding the owning circle's lock.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, member *Member) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Member, error)
	// FindByCircleUser returns the most recent membership for the pair,
	// regardless of status.
	FindByCircleUser(ctx context.Context, db *gorm.DB, circleID snowflake.ID, userID string) (*Member, error)
	ListByCircle(ctx context.Context, db *gorm.DB, circleID snowflake.ID) ([]*Member, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, reason LeaveReason, leftAt *time.Time, now time.Time) error
	UpdateHeartbeat(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
	// ListSilent returns present members of active circles whose last
	// heartbeat predates the cutoff.
	ListSilent(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]*Member, error)
}
