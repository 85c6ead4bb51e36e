package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shellbound/focuscircle/pkg/db/pagination"
	"gorm.io/gorm"
)

// Repository is the durable circle store. Mutating methods are only
// called from code paths holding the per-circle lock.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, circle *Circle) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Circle, error)
	// FindByInviteCode resolves a code against non-terminal circles and
	// terminal circles still inside the reuse grace window.
	FindByInviteCode(ctx context.Context, db *gorm.DB, code string, graceCutoff time.Time) (*Circle, error)
	// CodeInUse reports whether a code is held by any circle the grace
	// window has not released yet.
	CodeInUse(ctx context.Context, db *gorm.DB, code string, graceCutoff time.Time) (bool, error)
	UpdatePhase(ctx context.Context, db *gorm.DB, id snowflake.ID, phase Phase, activatedAt, expiresAt, endedAt *time.Time, now time.Time) error
	ListByCreator(ctx context.Context, db *gorm.DB, createdBy string, page pagination.Pagination) ([]*Circle, error)
	// DueForActivation returns scheduled circles whose start time has passed.
	DueForActivation(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]*Circle, error)
	// DueForCompletion returns active circles whose countdown has expired.
	DueForCompletion(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]*Circle, error)
	ListActive(ctx context.Context, db *gorm.DB, limit int) ([]*Circle, error)
}
