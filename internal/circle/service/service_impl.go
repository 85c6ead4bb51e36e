package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shellbound/focuscircle/internal/circle/domain"
	"github.com/shellbound/focuscircle/internal/clock"
	"github.com/shellbound/focuscircle/internal/config"
	"github.com/shellbound/focuscircle/internal/invitecode"
	"github.com/shellbound/focuscircle/internal/observability/metrics"
	pkgdb "github.com/shellbound/focuscircle/pkg/db"
	"github.com/shellbound/focuscircle/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// codeRetries bounds invite code generation attempts before the service
// reports the code space as exhausted.
const codeRetries = 5

// defaultBlockedApps is the built-in distraction list applied when the
// creator picks the default preset.
var defaultBlockedApps = []string{
	"instagram",
	"tiktok",
	"twitter",
	"youtube",
	"reddit",
	"facebook",
	"snapchat",
}

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Config  config.Config
	Metrics *metrics.Metrics
	Repo    domain.Repository
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	cfg     config.Config
	metrics *metrics.Metrics
	repo    domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("circle.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		cfg:     p.Config,
		metrics: p.Metrics,
		repo:    p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateCircleRequest) (domain.CreateCircleResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > domain.NameMaxLen {
		return domain.CreateCircleResponse{}, domain.ErrInvalidName
	}
	if req.DurationSeconds <= 0 {
		return domain.CreateCircleResponse{}, domain.ErrInvalidDuration
	}
	if !domain.ValidCommitmentLevel(req.CommitmentLevel) {
		return domain.CreateCircleResponse{}, domain.ErrInvalidCommitment
	}

	now := s.clock.Now()
	if req.ScheduledStart != nil && !req.ScheduledStart.After(now) {
		return domain.CreateCircleResponse{}, domain.ErrInvalidSchedule
	}

	blockedApps, err := resolveBlockedApps(req)
	if err != nil {
		return domain.CreateCircleResponse{}, err
	}

	circle := domain.Circle{
		ID:              s.genID.Generate(),
		Name:            name,
		DurationSeconds: req.DurationSeconds,
		ScheduledStart:  req.ScheduledStart,
		Phase:           domain.PhaseScheduled,
		CommitmentLevel: req.CommitmentLevel,
		BlockingEnabled: req.BlockingEnabled,
		BlockingPreset:  req.BlockingPreset,
		BlockedApps:     datatypes.NewJSONSlice(blockedApps),
		Visibility:      req.Visibility,
		CreatedBy:       req.CreatedBy,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	// A circle with no scheduled start begins counting down immediately,
	// so it never observably passes through scheduled.
	if req.ScheduledStart == nil {
		activatedAt := now
		expiresAt := now.Add(circle.Remaining(now))
		circle.Phase = domain.PhaseActive
		circle.ActivatedAt = &activatedAt
		circle.ExpiresAt = &expiresAt
	}

	graceCutoff := now.Add(-s.cfg.CodeGrace)
	for attempt := 0; attempt < codeRetries; attempt++ {
		code, err := invitecode.Generate()
		if err != nil {
			return domain.CreateCircleResponse{}, err
		}

		inUse, err := s.repo.CodeInUse(ctx, s.db, code, graceCutoff)
		if err != nil {
			return domain.CreateCircleResponse{}, err
		}
		if inUse {
			continue
		}

		circle.InviteCode = code
		if err := s.repo.Insert(ctx, s.db, &circle); err != nil {
			// Two creates can draw the same code between the CodeInUse
			// check and the insert; treat the collision as a retry.
			if pkgdb.IsDuplicateKeyErr(err) {
				continue
			}
			return domain.CreateCircleResponse{}, err
		}

		s.metrics.IncCirclesCreated()
		s.log.Info("circle created",
			zap.String("circle_id", circle.ID.String()),
			zap.String("phase", string(circle.Phase)),
			zap.Int64("duration_seconds", circle.DurationSeconds),
		)
		return domain.CreateCircleResponse{Circle: circle, InviteCode: code}, nil
	}

	s.log.Warn("invite code generation exhausted retries",
		zap.Int("attempts", codeRetries),
	)
	return domain.CreateCircleResponse{}, domain.ErrCodeSpaceExhausted
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Circle, error) {
	circleID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return domain.Circle{}, domain.ErrInvalidID
	}

	circle, err := s.repo.FindByID(ctx, s.db, circleID)
	if err != nil {
		return domain.Circle{}, err
	}
	if circle == nil {
		return domain.Circle{}, domain.ErrNotFound
	}
	return *circle, nil
}

func (s *Service) List(ctx context.Context, req domain.ListCircleRequest) (domain.ListCircleResponse, error) {
	page := pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  req.PageSize,
	}

	circles, err := s.repo.ListByCreator(ctx, s.db, req.CreatedBy, page)
	if err != nil {
		return domain.ListCircleResponse{}, err
	}

	limit := page.Limit()
	resp := domain.ListCircleResponse{}
	if len(circles) > limit {
		circles = circles[:limit]
		last := circles[len(circles)-1]
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: last.ID.String()})
		if err != nil {
			return domain.ListCircleResponse{}, err
		}
		resp.NextPageToken = token
		resp.HasMore = true
	}

	resp.Circles = make([]domain.Circle, 0, len(circles))
	for _, c := range circles {
		resp.Circles = append(resp.Circles, *c)
	}
	return resp, nil
}

func resolveBlockedApps(req domain.CreateCircleRequest) ([]string, error) {
	if !req.BlockingEnabled {
		return nil, nil
	}
	if !domain.ValidBlockingPreset(req.BlockingPreset) {
		return nil, domain.ErrInvalidPreset
	}

	switch req.BlockingPreset {
	case domain.PresetDefault:
		apps := make([]string, len(defaultBlockedApps))
		copy(apps, defaultBlockedApps)
		return apps, nil
	default:
		// personal and custom presets carry the caller-supplied list.
		if len(req.BlockedApps) == 0 {
			return nil, domain.ErrInvalidPreset
		}
		return req.BlockedApps, nil
	}
}
