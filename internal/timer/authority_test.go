package timer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shellbound/focuscircle/internal/broadcast"
	circledomain "github.com/shellbound/focuscircle/internal/circle/domain"
	circlerepository "github.com/shellbound/focuscircle/internal/circle/repository"
	"github.com/shellbound/focuscircle/internal/circlelock"
	"github.com/shellbound/focuscircle/internal/clock"
	memberdomain "github.com/shellbound/focuscircle/internal/member/domain"
	memberrepository "github.com/shellbound/focuscircle/internal/member/repository"
	"github.com/shellbound/focuscircle/internal/observability/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	authority *Authority
	db        *gorm.DB
	node      *snowflake.Node
	clk       *clock.FakeClock
	hub       *broadcast.Hub
	circles   circledomain.Repository
	members   memberdomain.Repository
}

func setup(t *testing.T) *fixture {
	t.Helper()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	require.NoError(t, db.AutoMigrate(&circledomain.Circle{}, &memberdomain.Member{}))

	clk := clock.NewFakeClock(testStart)
	hub := broadcast.NewHub()
	circles := circlerepository.Provide()
	members := memberrepository.Provide()

	authority, err := New(Params{
		DB:      db,
		Log:     zap.NewNop(),
		Clock:   clk,
		Config:  Config{Tick: time.Second, SyncEvery: 15 * time.Second, HeartbeatTimeout: 90 * time.Second},
		Metrics: metrics.New(),
		Circles: circles,
		Members: members,
		Hub:     hub,
		Locks:   circlelock.NewRegistry(time.Second),
	})
	require.NoError(t, err)

	return &fixture{
		authority: authority,
		db:        db,
		node:      node,
		clk:       clk,
		hub:       hub,
		circles:   circles,
		members:   members,
	}
}

func (f *fixture) seedCircle(t *testing.T, phase circledomain.Phase, mutate func(*circledomain.Circle)) circledomain.Circle {
	t.Helper()

	circle := circledomain.Circle{
		ID:              f.node.Generate(),
		Name:            "deep work",
		InviteCode:      "BRQWZX",
		DurationSeconds: 1800,
		Phase:           phase,
		CommitmentLevel: circledomain.CommitmentLockedIn,
		BlockingEnabled: true,
		BlockingPreset:  circledomain.PresetCustom,
		BlockedApps:     datatypes.NewJSONSlice([]string{"instagram", "tiktok"}),
		Visibility: circledomain.Visibility{
			ShowFocusedMembers: true,
			ShowEarlyLeavers:   true,
			ShowExitsToGroup:   true,
		},
		CreatedBy: "creator",
		CreatedAt: testStart,
		UpdatedAt: testStart,
	}
	switch phase {
	case circledomain.PhaseScheduled:
		start := testStart.Add(10 * time.Minute)
		circle.ScheduledStart = &start
	case circledomain.PhaseActive:
		activatedAt := testStart
		expiresAt := testStart.Add(30 * time.Minute)
		circle.ActivatedAt = &activatedAt
		circle.ExpiresAt = &expiresAt
	}
	if mutate != nil {
		mutate(&circle)
	}
	require.NoError(t, f.circles.Insert(context.Background(), f.db, &circle))
	return circle
}

func (f *fixture) seedMember(t *testing.T, circleID snowflake.ID, userID string, status memberdomain.Status) memberdomain.Member {
	t.Helper()

	member := memberdomain.Member{
		ID:              f.node.Generate(),
		CircleID:        circleID,
		UserID:          userID,
		DisplayName:     userID,
		Status:          status,
		JoinedAt:        testStart,
		LastHeartbeatAt: f.clk.Now(),
		CreatedAt:       testStart,
		UpdatedAt:       testStart,
	}
	require.NoError(t, f.members.Insert(context.Background(), f.db, &member))
	return member
}

func drain(t *testing.T, sub *broadcast.Subscription, n int) []broadcast.Event {
	t.Helper()

	events := make([]broadcast.Event, 0, n)
	for i := 0; i < n; i++ {
		select {
		case event := <-sub.Events():
			events = append(events, event)
		case <-time.After(time.Second):
			t.Fatalf("expected %d events, got %d", n, len(events))
		}
	}
	return events
}

func TestActivationFlipsJoinedMembersToFocused(t *testing.T) {
	f := setup(t)
	circle := f.seedCircle(t, circledomain.PhaseScheduled, nil)
	f.seedMember(t, circle.ID, "user-1", memberdomain.StatusJoined)
	f.seedMember(t, circle.ID, "user-2", memberdomain.StatusJoined)

	sub, _, err := f.hub.Subscribe(circle.ID, 0)
	require.NoError(t, err)
	defer sub.Close()

	f.clk.Advance(10 * time.Minute)
	require.NoError(t, f.db.Model(&memberdomain.Member{}).
		Where("circle_id = ?", circle.ID).
		Update("last_heartbeat_at", f.clk.Now()).Error)
	require.NoError(t, f.authority.RunOnce(context.Background()))

	updated, err := f.circles.FindByID(context.Background(), f.db, circle.ID)
	require.NoError(t, err)
	assert.Equal(t, circledomain.PhaseActive, updated.Phase)
	require.NotNil(t, updated.ActivatedAt)
	require.NotNil(t, updated.ExpiresAt)
	assert.True(t, updated.ExpiresAt.Equal(f.clk.Now().Add(30*time.Minute)))

	members, err := f.members.ListByCircle(context.Background(), f.db, circle.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	for _, m := range members {
		assert.Equal(t, memberdomain.StatusFocused, m.Status)
	}

	// Phase edge first, then one transition and one blocking instruction
	// per member, then the periodic timer sync.
	events := drain(t, sub, 6)
	assert.Equal(t, broadcast.TypePhaseTransition, events[0].Type)
	assert.Equal(t, "scheduled", events[0].Phase.FromPhase)
	assert.Equal(t, "active", events[0].Phase.ToPhase)

	var transitions, enforcements int
	for _, event := range events[1:5] {
		switch event.Type {
		case broadcast.TypeMemberTransition:
			transitions++
			assert.Equal(t, "focused", event.Member.ToStatus)
		case broadcast.TypeEnforcement:
			enforcements++
			assert.True(t, event.Enforcement.Enforce)
			assert.Equal(t, []string{"instagram", "tiktok"}, event.Enforcement.AppList)
		}
	}
	assert.Equal(t, 2, transitions)
	assert.Equal(t, 2, enforcements)
	assert.Equal(t, broadcast.TypeTimerSync, events[5].Type)
}

func TestActivationSkipsWhenNotDue(t *testing.T) {
	f := setup(t)
	circle := f.seedCircle(t, circledomain.PhaseScheduled, nil)

	require.NoError(t, f.authority.RunOnce(context.Background()))

	updated, err := f.circles.FindByID(context.Background(), f.db, circle.ID)
	require.NoError(t, err)
	assert.Equal(t, circledomain.PhaseScheduled, updated.Phase)
}

func TestCountdownExpiryCompletesAndRevokesBlocking(t *testing.T) {
	f := setup(t)
	circle := f.seedCircle(t, circledomain.PhaseActive, nil)
	f.seedMember(t, circle.ID, "user-1", memberdomain.StatusFocused)
	f.seedMember(t, circle.ID, "user-2", memberdomain.StatusPaused)

	sub, _, err := f.hub.Subscribe(circle.ID, 0)
	require.NoError(t, err)
	defer sub.Close()

	// 30 minute countdown plus one tick of slack, members stay silent but
	// inside the heartbeat window right up to expiry.
	f.clk.Advance(30*time.Minute + time.Second)
	require.NoError(t, f.db.Model(&memberdomain.Member{}).
		Where("circle_id = ?", circle.ID).
		Update("last_heartbeat_at", f.clk.Now()).Error)
	require.NoError(t, f.authority.RunOnce(context.Background()))

	updated, err := f.circles.FindByID(context.Background(), f.db, circle.ID)
	require.NoError(t, err)
	assert.Equal(t, circledomain.PhaseCompleted, updated.Phase)
	require.NotNil(t, updated.EndedAt)
	assert.True(t, updated.EndedAt.Equal(f.clk.Now()))

	events := drain(t, sub, 3)
	assert.Equal(t, broadcast.TypePhaseTransition, events[0].Type)
	assert.Equal(t, "completed", events[0].Phase.ToPhase)
	for _, event := range events[1:] {
		require.Equal(t, broadcast.TypeEnforcement, event.Type)
		assert.False(t, event.Enforcement.Enforce)
	}

	// Member statuses are preserved for history.
	members, err := f.members.ListByCircle(context.Background(), f.db, circle.ID)
	require.NoError(t, err)
	for _, m := range members {
		assert.NotEqual(t, memberdomain.StatusLeft, m.Status)
	}
}

func TestEndEarly(t *testing.T) {
	f := setup(t)
	circle := f.seedCircle(t, circledomain.PhaseActive, nil)

	t.Run("creator only", func(t *testing.T) {
		_, err := f.authority.EndEarly(context.Background(), circle.ID, "stranger")
		assert.ErrorIs(t, err, ErrNotCreator)
	})

	t.Run("completes the circle", func(t *testing.T) {
		ended, err := f.authority.EndEarly(context.Background(), circle.ID, "creator")
		require.NoError(t, err)
		assert.Equal(t, circledomain.PhaseCompleted, ended.Phase)
		require.NotNil(t, ended.EndedAt)
	})

	t.Run("second end is rejected", func(t *testing.T) {
		_, err := f.authority.EndEarly(context.Background(), circle.ID, "creator")
		assert.ErrorIs(t, err, ErrNotActive)
	})
}

func TestEndEarlyWinsOverExpirySweep(t *testing.T) {
	f := setup(t)
	circle := f.seedCircle(t, circledomain.PhaseActive, nil)

	f.clk.Advance(31 * time.Minute)
	_, err := f.authority.EndEarly(context.Background(), circle.ID, "creator")
	require.NoError(t, err)

	sub, _, err := f.hub.Subscribe(circle.ID, f.hub.LastSeq(circle.ID))
	require.NoError(t, err)
	defer sub.Close()

	// The circle already expired on the wall clock, but the sweep must
	// not complete it a second time.
	require.NoError(t, f.authority.RunOnce(context.Background()))

	select {
	case event := <-sub.Events():
		assert.NotEqual(t, broadcast.TypePhaseTransition, event.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCancel(t *testing.T) {
	f := setup(t)

	t.Run("scheduled circle", func(t *testing.T) {
		circle := f.seedCircle(t, circledomain.PhaseScheduled, nil)

		cancelled, err := f.authority.Cancel(context.Background(), circle.ID, "creator")
		require.NoError(t, err)
		assert.Equal(t, circledomain.PhaseCancelled, cancelled.Phase)
		require.NotNil(t, cancelled.EndedAt)
	})

	t.Run("active circle is not cancellable", func(t *testing.T) {
		circle := f.seedCircle(t, circledomain.PhaseActive, func(c *circledomain.Circle) {
			c.InviteCode = "CDFGHJ"
		})

		_, err := f.authority.Cancel(context.Background(), circle.ID, "creator")
		assert.ErrorIs(t, err, ErrNotCancellable)
	})

	t.Run("creator only", func(t *testing.T) {
		circle := f.seedCircle(t, circledomain.PhaseScheduled, func(c *circledomain.Circle) {
			c.InviteCode = "KLMNPQ"
		})

		_, err := f.authority.Cancel(context.Background(), circle.ID, "stranger")
		assert.ErrorIs(t, err, ErrNotCreator)
	})
}

func TestHeartbeatSweepEvictsSilentMembers(t *testing.T) {
	f := setup(t)
	circle := f.seedCircle(t, circledomain.PhaseActive, nil)
	silent := f.seedMember(t, circle.ID, "silent", memberdomain.StatusFocused)
	healthy := f.seedMember(t, circle.ID, "healthy", memberdomain.StatusFocused)

	f.clk.Advance(2 * time.Minute)
	require.NoError(t, f.members.UpdateHeartbeat(context.Background(), f.db, healthy.ID, f.clk.Now()))

	sub, _, err := f.hub.Subscribe(circle.ID, f.hub.LastSeq(circle.ID))
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, f.authority.RunOnce(context.Background()))

	evicted, err := f.members.FindByID(context.Background(), f.db, silent.ID)
	require.NoError(t, err)
	assert.Equal(t, memberdomain.StatusLeft, evicted.Status)
	assert.Equal(t, memberdomain.LeaveReasonHeartbeatTimeout, evicted.LeaveReason)
	require.NotNil(t, evicted.LeftAt)

	kept, err := f.members.FindByID(context.Background(), f.db, healthy.ID)
	require.NoError(t, err)
	assert.Equal(t, memberdomain.StatusFocused, kept.Status)

	// The feed sees an ordinary leave plus the blocking revocation; the
	// timeout reason stays internal.
	events := drain(t, sub, 2)
	require.Equal(t, broadcast.TypeMemberTransition, events[0].Type)
	assert.Equal(t, silent.ID.String(), events[0].Member.MemberID)
	assert.Equal(t, "left", events[0].Member.ToStatus)
	require.Equal(t, broadcast.TypeEnforcement, events[1].Type)
	assert.False(t, events[1].Enforcement.Enforce)
}

func TestHeartbeatSweepIgnoresScheduledCircles(t *testing.T) {
	f := setup(t)
	circle := f.seedCircle(t, circledomain.PhaseScheduled, func(c *circledomain.Circle) {
		start := testStart.Add(24 * time.Hour)
		c.ScheduledStart = &start
	})
	member := f.seedMember(t, circle.ID, "user-1", memberdomain.StatusJoined)

	f.clk.Advance(time.Hour)
	require.NoError(t, f.authority.RunOnce(context.Background()))

	found, err := f.members.FindByID(context.Background(), f.db, member.ID)
	require.NoError(t, err)
	assert.Equal(t, memberdomain.StatusJoined, found.Status)
}

func TestTimerSyncCadence(t *testing.T) {
	f := setup(t)
	circle := f.seedCircle(t, circledomain.PhaseActive, nil)

	sub, _, err := f.hub.Subscribe(circle.ID, 0)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, f.authority.RunOnce(context.Background()))
	events := drain(t, sub, 1)
	require.Equal(t, broadcast.TypeTimerSync, events[0].Type)
	assert.Equal(t, int64(1800), events[0].Timer.RemainingSeconds)

	// Within the sync interval nothing is rebroadcast.
	f.clk.Advance(time.Second)
	require.NoError(t, f.authority.RunOnce(context.Background()))
	select {
	case event := <-sub.Events():
		t.Fatalf("unexpected event %s", event.Type)
	case <-time.After(50 * time.Millisecond):
	}

	f.clk.Advance(15 * time.Second)
	require.NoError(t, f.authority.RunOnce(context.Background()))
	events = drain(t, sub, 1)
	require.Equal(t, broadcast.TypeTimerSync, events[0].Type)
	assert.Equal(t, int64(1784), events[0].Timer.RemainingSeconds)
}
