package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shellbound/focuscircle/internal/broadcast"
	circledomain "github.com/shellbound/focuscircle/internal/circle/domain"
	"github.com/shellbound/focuscircle/internal/circlelock"
	"github.com/shellbound/focuscircle/internal/clock"
	"github.com/shellbound/focuscircle/internal/config"
	"github.com/shellbound/focuscircle/internal/invitecode"
	"github.com/shellbound/focuscircle/internal/member/domain"
	"github.com/shellbound/focuscircle/internal/mood"
	"github.com/shellbound/focuscircle/internal/observability/metrics"
	"github.com/shellbound/focuscircle/internal/policy"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Config  config.Config
	Metrics *metrics.Metrics
	Repo    domain.Repository
	Circles circledomain.Repository
	Hub     *broadcast.Hub
	Locks   *circlelock.Registry
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	cfg     config.Config
	metrics *metrics.Metrics
	repo    domain.Repository
	circles circledomain.Repository
	hub     *broadcast.Hub
	locks   *circlelock.Registry
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("member.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		cfg:     p.Config,
		metrics: p.Metrics,
		repo:    p.Repo,
		circles: p.Circles,
		hub:     p.Hub,
		locks:   p.Locks,
	}
}

func (s *Service) Join(ctx context.Context, req domain.JoinCircleRequest) (domain.JoinCircleResponse, error) {
	code := invitecode.Normalize(req.InviteCode)
	if err := invitecode.Validate(code); err != nil {
		return domain.JoinCircleResponse{}, err
	}
	userID := strings.TrimSpace(req.UserID)
	displayName := strings.TrimSpace(req.DisplayName)
	if userID == "" || displayName == "" {
		return domain.JoinCircleResponse{}, domain.ErrInvalidUser
	}

	now := s.clock.Now()
	graceCutoff := now.Add(-s.cfg.CodeGrace)
	circle, err := s.circles.FindByInviteCode(ctx, s.db, code, graceCutoff)
	if err != nil {
		return domain.JoinCircleResponse{}, err
	}
	if circle == nil {
		return domain.JoinCircleResponse{}, circledomain.ErrNotFound
	}

	release, err := s.acquireLock(ctx, circle.ID)
	if err != nil {
		s.metrics.IncJoinRejection("lock_busy")
		return domain.JoinCircleResponse{}, err
	}
	defer release()

	// Re-read under the lock; the phase may have flipped while waiting.
	circle, err = s.circles.FindByID(ctx, s.db, circle.ID)
	if err != nil {
		return domain.JoinCircleResponse{}, err
	}
	if circle == nil {
		return domain.JoinCircleResponse{}, circledomain.ErrNotFound
	}
	if circle.Phase.Terminal() {
		s.metrics.IncJoinRejection("not_joinable")
		return domain.JoinCircleResponse{}, domain.ErrCircleNotJoinable
	}

	existing, err := s.repo.FindByCircleUser(ctx, s.db, circle.ID, userID)
	if err != nil {
		return domain.JoinCircleResponse{}, err
	}
	if existing != nil {
		if existing.Status.Present() {
			// Joining a circle the user already occupies is idempotent.
			return s.joinResponse(ctx, *circle, *existing)
		}
		s.metrics.IncJoinRejection("rejoin")
		return domain.JoinCircleResponse{}, domain.ErrRejoinNotAllowed
	}

	member := domain.Member{
		ID:              s.genID.Generate(),
		CircleID:        circle.ID,
		UserID:          userID,
		DisplayName:     displayName,
		Status:          domain.StatusJoined,
		JoinedAt:        now,
		LastHeartbeatAt: now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	// joined flips to focused immediately in an active circle; in a
	// scheduled circle the timer authority flips it at activation.
	focusOnJoin := circle.Phase == circledomain.PhaseActive

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &member); err != nil {
			return err
		}
		if focusOnJoin {
			return s.repo.UpdateStatus(ctx, tx, member.ID, domain.StatusFocused, "", nil, now)
		}
		return nil
	})
	if err != nil {
		return domain.JoinCircleResponse{}, err
	}

	members, err := s.repo.ListByCircle(ctx, s.db, circle.ID)
	if err != nil {
		return domain.JoinCircleResponse{}, err
	}
	counts := policy.CountMembers(members)

	s.publishTransition(*circle, policy.Transition{
		Member:     member,
		FromStatus: domain.StatusInvited,
		ToStatus:   domain.StatusJoined,
		Counts:     counts,
		At:         now,
	})
	if focusOnJoin {
		member.Status = domain.StatusFocused
		s.publishTransition(*circle, policy.Transition{
			Member:     member,
			FromStatus: domain.StatusJoined,
			ToStatus:   domain.StatusFocused,
			Counts:     counts,
			At:         now,
		})
	}

	s.log.Info("member joined",
		zap.String("circle_id", circle.ID.String()),
		zap.String("member_id", member.ID.String()),
		zap.String("status", string(member.Status)),
	)
	return s.joinResponse(ctx, *circle, member)
}

func (s *Service) SetStatus(ctx context.Context, req domain.SetStatusRequest) (domain.Member, error) {
	memberID, err := snowflake.ParseString(strings.TrimSpace(req.MemberID))
	if err != nil {
		return domain.Member{}, domain.ErrNotFound
	}
	switch req.Status {
	case domain.StatusFocused, domain.StatusPaused, domain.StatusLeft:
	default:
		return domain.Member{}, domain.ErrInvalidStatus
	}

	member, err := s.repo.FindByID(ctx, s.db, memberID)
	if err != nil {
		return domain.Member{}, err
	}
	if member == nil {
		return domain.Member{}, domain.ErrNotFound
	}
	if member.UserID != req.RequestedBy {
		return domain.Member{}, domain.ErrForbidden
	}

	release, err := s.acquireLock(ctx, member.CircleID)
	if err != nil {
		return domain.Member{}, err
	}
	defer release()

	member, err = s.repo.FindByID(ctx, s.db, memberID)
	if err != nil {
		return domain.Member{}, err
	}
	if member == nil {
		return domain.Member{}, domain.ErrNotFound
	}

	// Leaving twice is a no-op, not an error.
	if member.Status == domain.StatusLeft && req.Status == domain.StatusLeft {
		return *member, nil
	}
	if !member.Status.CanTransitionTo(req.Status) {
		return domain.Member{}, domain.ErrInvalidStatus
	}

	circle, err := s.circles.FindByID(ctx, s.db, member.CircleID)
	if err != nil {
		return domain.Member{}, err
	}
	if circle == nil {
		return domain.Member{}, circledomain.ErrNotFound
	}

	// focused and paused only make sense inside an active countdown;
	// leaving is allowed in any phase.
	if req.Status != domain.StatusLeft && circle.Phase != circledomain.PhaseActive {
		return domain.Member{}, domain.ErrCircleNotActive
	}

	now := s.clock.Now()
	from := member.Status
	var reason domain.LeaveReason
	var leftAt *time.Time
	if req.Status == domain.StatusLeft {
		reason = domain.LeaveReasonExplicit
		leftAt = &now
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.UpdateStatus(ctx, tx, member.ID, req.Status, reason, leftAt, now)
	})
	if err != nil {
		return domain.Member{}, err
	}

	member.Status = req.Status
	member.LeaveReason = reason
	member.LeftAt = leftAt
	member.UpdatedAt = now

	members, err := s.repo.ListByCircle(ctx, s.db, circle.ID)
	if err != nil {
		return domain.Member{}, err
	}

	s.publishTransition(*circle, policy.Transition{
		Member:     *member,
		FromStatus: from,
		ToStatus:   req.Status,
		// Leaving a circle that already ended is not an early exit and
		// is never filtered from the feed.
		AtCompletion: req.Status == domain.StatusLeft && circle.Phase.Terminal(),
		Counts:       policy.CountMembers(members),
		At:           now,
	})
	return *member, nil
}

func (s *Service) Heartbeat(ctx context.Context, memberID, requestedBy string) error {
	id, err := snowflake.ParseString(strings.TrimSpace(memberID))
	if err != nil {
		return domain.ErrNotFound
	}

	member, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return err
	}
	if member == nil {
		return domain.ErrNotFound
	}
	if member.UserID != requestedBy {
		return domain.ErrForbidden
	}

	release, err := s.acquireLock(ctx, member.CircleID)
	if err != nil {
		return err
	}
	defer release()

	member, err = s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return err
	}
	if member == nil || !member.Status.Present() {
		// The heartbeat sweep may have already evicted the member; a
		// late beat does not resurrect the seat.
		return nil
	}
	return s.repo.UpdateHeartbeat(ctx, s.db, id, s.clock.Now())
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Member, error) {
	memberID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return domain.Member{}, domain.ErrNotFound
	}
	member, err := s.repo.FindByID(ctx, s.db, memberID)
	if err != nil {
		return domain.Member{}, err
	}
	if member == nil {
		return domain.Member{}, domain.ErrNotFound
	}
	return *member, nil
}

func (s *Service) Snapshot(ctx context.Context, circleID string) (broadcast.Snapshot, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(circleID))
	if err != nil {
		return broadcast.Snapshot{}, circledomain.ErrInvalidID
	}

	circle, err := s.circles.FindByID(ctx, s.db, id)
	if err != nil {
		return broadcast.Snapshot{}, err
	}
	if circle == nil {
		return broadcast.Snapshot{}, circledomain.ErrNotFound
	}

	members, err := s.repo.ListByCircle(ctx, s.db, circle.ID)
	if err != nil {
		return broadcast.Snapshot{}, err
	}

	snapshot := policy.BuildSnapshot(*circle, members, mood.Line(circle.Phase, policy.CountMembers(members)))
	snapshot.Seq = s.hub.LastSeq(circle.ID)
	return snapshot, nil
}

func (s *Service) acquireLock(ctx context.Context, circleID snowflake.ID) (func(), error) {
	start := time.Now()
	release, err := s.locks.Acquire(ctx, circleID)
	s.metrics.ObserveLockWait(time.Since(start).Seconds())
	return release, err
}

// publishTransition runs one committed transition through the policy
// rules and fans out whatever the group may observe. Callers hold the
// circle lock, so publish order matches commit order.
func (s *Service) publishTransition(circle circledomain.Circle, t policy.Transition) {
	decision := policy.EvaluateTransition(circle, t)
	if decision.Observable != nil {
		published := s.hub.Publish(circle.ID, *decision.Observable)
		s.metrics.IncEventPublished(string(published.Type))
	}
	if decision.Enforcement != nil {
		published := s.hub.Publish(circle.ID, broadcast.Event{
			Type:        broadcast.TypeEnforcement,
			At:          t.At,
			Enforcement: decision.Enforcement,
		})
		s.metrics.IncEventPublished(string(published.Type))
	}
	s.metrics.IncMemberTransition(string(t.FromStatus), string(t.ToStatus))
}

func (s *Service) joinResponse(ctx context.Context, circle circledomain.Circle, member domain.Member) (domain.JoinCircleResponse, error) {
	members, err := s.repo.ListByCircle(ctx, s.db, circle.ID)
	if err != nil {
		return domain.JoinCircleResponse{}, err
	}

	snapshot := policy.BuildSnapshot(circle, members, mood.Line(circle.Phase, policy.CountMembers(members)))
	snapshot.Seq = s.hub.LastSeq(circle.ID)

	return domain.JoinCircleResponse{
		CircleID: circle.ID.String(),
		MemberID: member.ID.String(),
		Status:   member.Status,
		Snapshot: snapshot,
	}, nil
}
