// Package timer is the single writer of circle phase. Every phase edge,
// scheduled activation, countdown completion, early end, cancellation,
// and the heartbeat eviction sweep runs through the Authority, always
// under the per-circle lock, so the manual and automatic paths can
// never both apply.
package timer

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shellbound/focuscircle/internal/broadcast"
	circledomain "github.com/shellbound/focuscircle/internal/circle/domain"
	"github.com/shellbound/focuscircle/internal/circlelock"
	"github.com/shellbound/focuscircle/internal/clock"
	memberdomain "github.com/shellbound/focuscircle/internal/member/domain"
	"github.com/shellbound/focuscircle/internal/observability/metrics"
	"github.com/shellbound/focuscircle/internal/policy"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidConfig  = errors.New("timer_invalid_config")
	ErrNotCreator     = errors.New("not_circle_creator")
	ErrNotActive      = errors.New("circle_not_active")
	ErrNotCancellable = errors.New("circle_not_cancellable")
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Config  Config `optional:"true"`
	Metrics *metrics.Metrics
	Circles circledomain.Repository
	Members memberdomain.Repository
	Hub     *broadcast.Hub
	Locks   *circlelock.Registry
}

type Authority struct {
	db      *gorm.DB
	log     *zap.Logger
	cfg     Config
	clock   clock.Clock
	metrics *metrics.Metrics
	circles circledomain.Repository
	members memberdomain.Repository
	hub     *broadcast.Hub
	locks   *circlelock.Registry

	lastSync time.Time
}

func New(p Params) (*Authority, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.Circles == nil || p.Members == nil || p.Hub == nil || p.Locks == nil {
		return nil, ErrInvalidConfig
	}
	return &Authority{
		db:      p.DB,
		log:     p.Log.Named("timer").With(zap.String("component", "timer_authority")),
		cfg:     p.Config.withDefaults(),
		clock:   p.Clock,
		metrics: p.Metrics,
		circles: p.Circles,
		members: p.Members,
		hub:     p.Hub,
		locks:   p.Locks,
	}, nil
}

func (a *Authority) RunForever(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Tick)
	defer ticker.Stop()

	for {
		if err := a.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("timer sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs one sweep: activate due circles, complete expired
// ones, evict silent members, and periodically rebroadcast the
// authoritative countdown.
func (a *Authority) RunOnce(ctx context.Context) error {
	start := time.Now()
	defer func() {
		a.metrics.ObserveSweepDuration(time.Since(start).Seconds())
	}()

	now := a.clock.Now()
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	record(a.activateDue(ctx, now))
	record(a.completeDue(ctx, now))
	record(a.sweepHeartbeats(ctx, now))

	if now.Sub(a.lastSync) >= a.cfg.SyncEvery {
		record(a.emitTimerSync(ctx, now))
		a.lastSync = now
	}
	return firstErr
}

func (a *Authority) activateDue(ctx context.Context, now time.Time) error {
	due, err := a.circles.DueForActivation(ctx, a.db, now, a.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, circle := range due {
		if err := a.activate(ctx, circle.ID, now); err != nil {
			a.log.Warn("activation failed",
				zap.String("circle_id", circle.ID.String()),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (a *Authority) activate(ctx context.Context, circleID snowflake.ID, now time.Time) error {
	release, err := a.locks.Acquire(ctx, circleID)
	if err != nil {
		return err
	}
	defer release()

	circle, err := a.circles.FindByID(ctx, a.db, circleID)
	if err != nil {
		return err
	}
	if circle == nil || circle.Phase != circledomain.PhaseScheduled {
		// Cancelled or already activated while waiting on the lock.
		return nil
	}

	activatedAt := now
	expiresAt := now.Add(time.Duration(circle.DurationSeconds) * time.Second)

	members, err := a.members.ListByCircle(ctx, a.db, circle.ID)
	if err != nil {
		return err
	}

	err = a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := a.circles.UpdatePhase(ctx, tx, circle.ID, circledomain.PhaseActive, &activatedAt, &expiresAt, nil, now); err != nil {
			return err
		}
		for _, m := range members {
			if m.Status != memberdomain.StatusJoined {
				continue
			}
			if err := a.members.UpdateStatus(ctx, tx, m.ID, memberdomain.StatusFocused, "", nil, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	from := circle.Phase
	circle.Phase = circledomain.PhaseActive
	circle.ActivatedAt = &activatedAt
	circle.ExpiresAt = &expiresAt

	a.publishPhase(*circle, from, now)

	counts := policy.CountMembers(members)
	for _, m := range members {
		if m.Status != memberdomain.StatusJoined {
			continue
		}
		joined := *m
		joined.Status = memberdomain.StatusFocused
		counts.Focused++
		a.publishTransition(*circle, policy.Transition{
			Member:     joined,
			FromStatus: memberdomain.StatusJoined,
			ToStatus:   memberdomain.StatusFocused,
			Counts:     counts,
			At:         now,
		})
	}

	a.log.Info("circle activated",
		zap.String("circle_id", circle.ID.String()),
		zap.Time("expires_at", expiresAt),
	)
	return nil
}

func (a *Authority) completeDue(ctx context.Context, now time.Time) error {
	due, err := a.circles.DueForCompletion(ctx, a.db, now, a.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, circle := range due {
		if err := a.completeLocked(ctx, circle.ID, now); err != nil {
			a.log.Warn("completion failed",
				zap.String("circle_id", circle.ID.String()),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (a *Authority) completeLocked(ctx context.Context, circleID snowflake.ID, now time.Time) error {
	release, err := a.locks.Acquire(ctx, circleID)
	if err != nil {
		return err
	}
	defer release()

	circle, err := a.circles.FindByID(ctx, a.db, circleID)
	if err != nil {
		return err
	}
	if circle == nil || circle.Phase != circledomain.PhaseActive {
		// An early end won the race while this sweep waited on the lock.
		return nil
	}
	return a.complete(ctx, circle, now)
}

// complete flips an active circle to completed and lifts blocking for
// every still-present member. Member statuses are deliberately left
// as-is for history; only the enforcement is revoked. Caller holds the
// circle lock.
func (a *Authority) complete(ctx context.Context, circle *circledomain.Circle, now time.Time) error {
	endedAt := now
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return a.circles.UpdatePhase(ctx, tx, circle.ID, circledomain.PhaseCompleted, nil, nil, &endedAt, now)
	})
	if err != nil {
		return err
	}

	from := circle.Phase
	circle.Phase = circledomain.PhaseCompleted
	circle.EndedAt = &endedAt

	a.publishPhase(*circle, from, now)

	members, err := a.members.ListByCircle(ctx, a.db, circle.ID)
	if err != nil {
		return err
	}
	for _, event := range policy.CompletionRevocations(*circle, members, now) {
		a.publish(circle.ID, event)
	}
	a.retireStream(circle.ID)

	a.log.Info("circle completed",
		zap.String("circle_id", circle.ID.String()),
	)
	return nil
}

// EndEarly completes an active circle before its countdown expires.
// Only the creator may end a circle.
func (a *Authority) EndEarly(ctx context.Context, circleID snowflake.ID, requestedBy string) (circledomain.Circle, error) {
	release, err := a.locks.Acquire(ctx, circleID)
	if err != nil {
		return circledomain.Circle{}, err
	}
	defer release()

	circle, err := a.circles.FindByID(ctx, a.db, circleID)
	if err != nil {
		return circledomain.Circle{}, err
	}
	if circle == nil {
		return circledomain.Circle{}, circledomain.ErrNotFound
	}
	if circle.CreatedBy != requestedBy {
		return circledomain.Circle{}, ErrNotCreator
	}
	if circle.Phase != circledomain.PhaseActive {
		return circledomain.Circle{}, ErrNotActive
	}

	if err := a.complete(ctx, circle, a.clock.Now()); err != nil {
		return circledomain.Circle{}, err
	}
	return *circle, nil
}

// Cancel aborts a circle that never started. Only reachable from
// scheduled, only by the creator.
func (a *Authority) Cancel(ctx context.Context, circleID snowflake.ID, requestedBy string) (circledomain.Circle, error) {
	release, err := a.locks.Acquire(ctx, circleID)
	if err != nil {
		return circledomain.Circle{}, err
	}
	defer release()

	circle, err := a.circles.FindByID(ctx, a.db, circleID)
	if err != nil {
		return circledomain.Circle{}, err
	}
	if circle == nil {
		return circledomain.Circle{}, circledomain.ErrNotFound
	}
	if circle.CreatedBy != requestedBy {
		return circledomain.Circle{}, ErrNotCreator
	}
	if circle.Phase != circledomain.PhaseScheduled {
		return circledomain.Circle{}, ErrNotCancellable
	}

	now := a.clock.Now()
	endedAt := now
	err = a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return a.circles.UpdatePhase(ctx, tx, circle.ID, circledomain.PhaseCancelled, nil, nil, &endedAt, now)
	})
	if err != nil {
		return circledomain.Circle{}, err
	}

	from := circle.Phase
	circle.Phase = circledomain.PhaseCancelled
	circle.EndedAt = &endedAt
	a.publishPhase(*circle, from, now)
	a.retireStream(circle.ID)

	a.log.Info("circle cancelled",
		zap.String("circle_id", circle.ID.String()),
	)
	return *circle, nil
}

func (a *Authority) sweepHeartbeats(ctx context.Context, now time.Time) error {
	cutoff := now.Add(-a.cfg.HeartbeatTimeout)
	silent, err := a.members.ListSilent(ctx, a.db, cutoff, a.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, m := range silent {
		if err := a.evict(ctx, m.CircleID, m.ID, cutoff); err != nil {
			a.log.Warn("heartbeat eviction failed",
				zap.String("member_id", m.ID.String()),
				zap.Error(err),
			)
		}
	}
	return nil
}

// evict transitions a silent member to left with the internal timeout
// reason. The public event shape is an ordinary leave.
func (a *Authority) evict(ctx context.Context, circleID, memberID snowflake.ID, cutoff time.Time) error {
	release, err := a.locks.Acquire(ctx, circleID)
	if err != nil {
		return err
	}
	defer release()

	member, err := a.members.FindByID(ctx, a.db, memberID)
	if err != nil {
		return err
	}
	if member == nil || !member.Status.Present() {
		return nil
	}
	// A heartbeat may have landed between the sweep query and the lock.
	if member.LastHeartbeatAt.After(cutoff) {
		return nil
	}

	circle, err := a.circles.FindByID(ctx, a.db, circleID)
	if err != nil {
		return err
	}
	if circle == nil {
		return nil
	}

	now := a.clock.Now()
	leftAt := now
	err = a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return a.members.UpdateStatus(ctx, tx, member.ID, memberdomain.StatusLeft, memberdomain.LeaveReasonHeartbeatTimeout, &leftAt, now)
	})
	if err != nil {
		return err
	}

	from := member.Status
	member.Status = memberdomain.StatusLeft
	member.LeaveReason = memberdomain.LeaveReasonHeartbeatTimeout
	member.LeftAt = &leftAt

	members, err := a.members.ListByCircle(ctx, a.db, circleID)
	if err != nil {
		return err
	}
	a.publishTransition(*circle, policy.Transition{
		Member:     *member,
		FromStatus: from,
		ToStatus:   memberdomain.StatusLeft,
		Counts:     policy.CountMembers(members),
		At:         now,
	})
	a.metrics.IncHeartbeatTimeout()

	a.log.Info("member evicted after missed heartbeats",
		zap.String("circle_id", circleID.String()),
		zap.String("member_id", member.ID.String()),
	)
	return nil
}

// retireStream frees a terminal circle's event stream after the
// retention window, leaving reconnecting members time to catch the
// final events.
func (a *Authority) retireStream(circleID snowflake.ID) {
	time.AfterFunc(a.cfg.Retention, func() {
		a.hub.Drop(circleID)
	})
}

// emitTimerSync rebroadcasts the authoritative countdown for every
// active circle so clients correct local drift. The payload is derived
// state, so no lock is needed.
func (a *Authority) emitTimerSync(ctx context.Context, now time.Time) error {
	active, err := a.circles.ListActive(ctx, a.db, a.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, circle := range active {
		a.publish(circle.ID, broadcast.Event{
			Type: broadcast.TypeTimerSync,
			At:   now,
			Timer: &broadcast.TimerSync{
				ActivatedAt:      circle.ActivatedAt,
				DurationSeconds:  circle.DurationSeconds,
				RemainingSeconds: int64(circle.Remaining(now).Seconds()),
			},
		})
	}
	return nil
}

func (a *Authority) publishPhase(circle circledomain.Circle, from circledomain.Phase, now time.Time) {
	a.publish(circle.ID, broadcast.Event{
		Type: broadcast.TypePhaseTransition,
		At:   now,
		Phase: &broadcast.PhaseTransition{
			FromPhase:       string(from),
			ToPhase:         string(circle.Phase),
			ActivatedAt:     circle.ActivatedAt,
			DurationSeconds: circle.DurationSeconds,
		},
	})
	a.metrics.IncPhaseTransition(string(from), string(circle.Phase))
}

func (a *Authority) publishTransition(circle circledomain.Circle, t policy.Transition) {
	decision := policy.EvaluateTransition(circle, t)
	if decision.Observable != nil {
		a.publish(circle.ID, *decision.Observable)
	}
	if decision.Enforcement != nil {
		a.publish(circle.ID, broadcast.Event{
			Type:        broadcast.TypeEnforcement,
			At:          t.At,
			Enforcement: decision.Enforcement,
		})
	}
	a.metrics.IncMemberTransition(string(t.FromStatus), string(t.ToStatus))
}

func (a *Authority) publish(circleID snowflake.ID, event broadcast.Event) {
	published := a.hub.Publish(circleID, event)
	a.metrics.IncEventPublished(string(published.Type))
}
