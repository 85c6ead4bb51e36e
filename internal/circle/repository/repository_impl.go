package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shellbound/focuscircle/internal/circle/domain"
	"github.com/shellbound/focuscircle/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, circle *domain.Circle) error {
	return db.WithContext(ctx).Create(circle).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Circle, error) {
	var circle domain.Circle
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&circle).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &circle, nil
}

// reservedCodePredicate matches circles still holding their invite
// code: every non-terminal circle, plus terminal circles whose grace
// window has not elapsed.
func reservedCodePredicate(db *gorm.DB, code string, graceCutoff time.Time) *gorm.DB {
	return db.
		Where("invite_code = ?", code).
		Where(
			db.Session(&gorm.Session{NewDB: true}).
				Where("phase IN ?", []domain.Phase{domain.PhaseScheduled, domain.PhaseActive}).
				Or("ended_at > ?", graceCutoff),
		)
}

func (r *repo) FindByInviteCode(ctx context.Context, db *gorm.DB, code string, graceCutoff time.Time) (*domain.Circle, error) {
	var circle domain.Circle
	err := reservedCodePredicate(db.WithContext(ctx).Model(&domain.Circle{}), code, graceCutoff).
		Order("created_at desc").
		First(&circle).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &circle, nil
}

func (r *repo) CodeInUse(ctx context.Context, db *gorm.DB, code string, graceCutoff time.Time) (bool, error) {
	var count int64
	err := reservedCodePredicate(db.WithContext(ctx).Model(&domain.Circle{}), code, graceCutoff).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) UpdatePhase(ctx context.Context, db *gorm.DB, id snowflake.ID, phase domain.Phase, activatedAt, expiresAt, endedAt *time.Time, now time.Time) error {
	updates := map[string]any{
		"phase":      phase,
		"updated_at": now,
	}
	if activatedAt != nil {
		updates["activated_at"] = *activatedAt
	}
	if expiresAt != nil {
		updates["expires_at"] = *expiresAt
	}
	if endedAt != nil {
		updates["ended_at"] = *endedAt
	}
	return db.WithContext(ctx).
		Model(&domain.Circle{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repo) ListByCreator(ctx context.Context, db *gorm.DB, createdBy string, page pagination.Pagination) ([]*domain.Circle, error) {
	var circles []*domain.Circle
	stmt := db.WithContext(ctx).
		Model(&domain.Circle{}).
		Where("created_by = ?", createdBy)

	limit := page.Limit()
	if cursor, err := pagination.DecodeCursor(page.PageToken); err == nil && cursor != nil && cursor.ID != "" {
		if lastID, err := strconv.ParseInt(cursor.ID, 10, 64); err == nil {
			stmt = stmt.Where("id < ?", lastID)
		}
	}
	err := stmt.
		Order("id desc").
		Limit(limit + 1).
		Find(&circles).Error
	if err != nil {
		return nil, err
	}
	return circles, nil
}

func (r *repo) DueForActivation(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]*domain.Circle, error) {
	var circles []*domain.Circle
	err := db.WithContext(ctx).
		Model(&domain.Circle{}).
		Where("phase = ?", domain.PhaseScheduled).
		Where("scheduled_start IS NOT NULL AND scheduled_start <= ?", now).
		Order("scheduled_start asc").
		Limit(limit).
		Find(&circles).Error
	if err != nil {
		return nil, err
	}
	return circles, nil
}

func (r *repo) DueForCompletion(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]*domain.Circle, error) {
	var circles []*domain.Circle
	err := db.WithContext(ctx).
		Model(&domain.Circle{}).
		Where("phase = ?", domain.PhaseActive).
		Where("expires_at IS NOT NULL AND expires_at <= ?", now).
		Order("expires_at asc").
		Limit(limit).
		Find(&circles).Error
	if err != nil {
		return nil, err
	}
	return circles, nil
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB, limit int) ([]*domain.Circle, error) {
	var circles []*domain.Circle
	err := db.WithContext(ctx).
		Model(&domain.Circle{}).
		Where("phase = ?", domain.PhaseActive).
		Order("activated_at asc").
		Limit(limit).
		Find(&circles).Error
	if err != nil {
		return nil, err
	}
	return circles, nil
}
