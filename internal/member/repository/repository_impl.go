package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	circledomain "github.com/shellbound/focuscircle/internal/circle/domain"
	"github.com/shellbound/focuscircle/internal/member/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, member *domain.Member) error {
	return db.WithContext(ctx).Create(member).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Member, error) {
	var member domain.Member
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *repo) FindByCircleUser(ctx context.Context, db *gorm.DB, circleID snowflake.ID, userID string) (*domain.Member, error) {
	var member domain.Member
	err := db.WithContext(ctx).
		Where("circle_id = ? AND user_id = ?", circleID, userID).
		Order("created_at desc").
		First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *repo) ListByCircle(ctx context.Context, db *gorm.DB, circleID snowflake.ID) ([]*domain.Member, error) {
	var members []*domain.Member
	err := db.WithContext(ctx).
		Where("circle_id = ?", circleID).
		Order("joined_at asc, id asc").
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.Status, reason domain.LeaveReason, leftAt *time.Time, now time.Time) error {
	updates := map[string]any{
		"status":     status,
		"updated_at": now,
	}
	if reason != "" {
		updates["leave_reason"] = reason
	}
	if leftAt != nil {
		updates["left_at"] = *leftAt
	}
	return db.WithContext(ctx).
		Model(&domain.Member{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repo) UpdateHeartbeat(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Member{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_heartbeat_at": at,
			"updated_at":        at,
		}).Error
}

func (r *repo) ListSilent(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]*domain.Member, error) {
	var members []*domain.Member
	err := db.WithContext(ctx).
		Model(&domain.Member{}).
		Joins("JOIN circles ON circles.id = members.circle_id").
		Where("circles.phase = ?", circledomain.PhaseActive).
		Where("members.status IN ?", []domain.Status{domain.StatusFocused, domain.StatusPaused}).
		Where("members.last_heartbeat_at <= ?", cutoff).
		Order("members.last_heartbeat_at asc").
		Limit(limit).
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}
