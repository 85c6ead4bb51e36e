package policy

import (
	"testing"
	"time"

	"github.com/shellbound/focuscircle/internal/broadcast"
	circledomain "github.com/shellbound/focuscircle/internal/circle/domain"
	memberdomain "github.com/shellbound/focuscircle/internal/member/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func activeCircle(level circledomain.CommitmentLevel, blocking bool, vis circledomain.Visibility) circledomain.Circle {
	activatedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return circledomain.Circle{
		ID:              1,
		Name:            "deep work",
		Phase:           circledomain.PhaseActive,
		DurationSeconds: 1800,
		ActivatedAt:     &activatedAt,
		CommitmentLevel: level,
		BlockingEnabled: blocking,
		BlockedApps:     datatypes.NewJSONSlice([]string{"instagram", "tiktok"}),
		Visibility:      vis,
	}
}

func allVisible() circledomain.Visibility {
	return circledomain.Visibility{
		ShowFocusedMembers: true,
		ShowEarlyLeavers:   true,
		ShowExitsToGroup:   true,
	}
}

func transition(from, to memberdomain.Status) Transition {
	return Transition{
		Member: memberdomain.Member{
			ID:          42,
			DisplayName: "ada",
			Status:      to,
		},
		FromStatus: from,
		ToStatus:   to,
		At:         time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC),
	}
}

func TestFocusIssuesBlockingInstruction(t *testing.T) {
	c := activeCircle(circledomain.CommitmentLockedIn, true, allVisible())

	d := EvaluateTransition(c, transition(memberdomain.StatusJoined, memberdomain.StatusFocused))

	require.NotNil(t, d.Enforcement)
	assert.True(t, d.Enforcement.Enforce)
	assert.Equal(t, []string{"instagram", "tiktok"}, d.Enforcement.AppList)
	require.NotNil(t, d.Enforcement.ExpiresAt)
	assert.Equal(t, c.EndsAt(), *d.Enforcement.ExpiresAt)
}

func TestChillNeverBlocks(t *testing.T) {
	c := activeCircle(circledomain.CommitmentChill, true, allVisible())

	d := EvaluateTransition(c, transition(memberdomain.StatusJoined, memberdomain.StatusFocused))

	assert.Nil(t, d.Enforcement)
	require.NotNil(t, d.Observable)
	assert.Equal(t, broadcast.TypeMemberTransition, d.Observable.Type)
}

func TestBlockingDisabledIssuesNothing(t *testing.T) {
	c := activeCircle(circledomain.CommitmentLockedIn, false, allVisible())

	d := EvaluateTransition(c, transition(memberdomain.StatusJoined, memberdomain.StatusFocused))

	assert.Nil(t, d.Enforcement)
}

func TestLeaveRevokesBlocking(t *testing.T) {
	c := activeCircle(circledomain.CommitmentHardcore, true, allVisible())

	d := EvaluateTransition(c, transition(memberdomain.StatusFocused, memberdomain.StatusLeft))

	require.NotNil(t, d.Enforcement)
	assert.False(t, d.Enforcement.Enforce)
	assert.Empty(t, d.Enforcement.AppList)
}

func TestLeaveVisibility(t *testing.T) {
	cases := []struct {
		name         string
		level        circledomain.CommitmentLevel
		vis          circledomain.Visibility
		atCompletion bool
		observable   bool
	}{
		{
			name:       "hardcore always discloses",
			level:      circledomain.CommitmentHardcore,
			vis:        circledomain.Visibility{ShowFocusedMembers: true},
			observable: true,
		},
		{
			name:       "chill never discloses",
			level:      circledomain.CommitmentChill,
			vis:        allVisible(),
			observable: false,
		},
		{
			name:       "locked_in honors flags",
			level:      circledomain.CommitmentLockedIn,
			vis:        allVisible(),
			observable: true,
		},
		{
			name:       "locked_in hides early leavers",
			level:      circledomain.CommitmentLockedIn,
			vis:        circledomain.Visibility{ShowFocusedMembers: true, ShowExitsToGroup: true},
			observable: false,
		},
		{
			name:       "locked_in hides exits entirely",
			level:      circledomain.CommitmentLockedIn,
			vis:        circledomain.Visibility{ShowFocusedMembers: true, ShowEarlyLeavers: true},
			observable: false,
		},
		{
			name:         "completion leave is never early",
			level:        circledomain.CommitmentLockedIn,
			vis:          circledomain.Visibility{ShowFocusedMembers: true},
			atCompletion: true,
			observable:   true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := activeCircle(tc.level, false, tc.vis)
			tr := transition(memberdomain.StatusFocused, memberdomain.StatusLeft)
			tr.AtCompletion = tc.atCompletion

			d := EvaluateTransition(c, tr)

			if tc.observable {
				require.NotNil(t, d.Observable)
				assert.Equal(t, broadcast.TypeMemberTransition, d.Observable.Type)
			} else {
				assert.Nil(t, d.Observable)
			}
		})
	}
}

func TestHiddenFocusFallsBackToCounts(t *testing.T) {
	c := activeCircle(circledomain.CommitmentLockedIn, false, circledomain.Visibility{
		ShowFocusedMembers: false,
		ShowEarlyLeavers:   true,
		ShowExitsToGroup:   true,
	})
	tr := transition(memberdomain.StatusJoined, memberdomain.StatusFocused)
	tr.Counts = broadcast.MemberCounts{Present: 3, Focused: 2}

	d := EvaluateTransition(c, tr)

	require.NotNil(t, d.Observable)
	assert.Equal(t, broadcast.TypeMemberCounts, d.Observable.Type)
	require.NotNil(t, d.Observable.Counts)
	assert.Equal(t, 3, d.Observable.Counts.Present)
	assert.Nil(t, d.Observable.Member)
}

func TestCompletionRevocations(t *testing.T) {
	c := activeCircle(circledomain.CommitmentLockedIn, true, allVisible())
	at := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	members := []*memberdomain.Member{
		{ID: 1, Status: memberdomain.StatusFocused},
		{ID: 2, Status: memberdomain.StatusPaused},
		{ID: 3, Status: memberdomain.StatusLeft},
		{ID: 4, Status: memberdomain.StatusJoined},
	}

	events := CompletionRevocations(c, members, at)

	require.Len(t, events, 2)
	for _, e := range events {
		assert.Equal(t, broadcast.TypeEnforcement, e.Type)
		require.NotNil(t, e.Enforcement)
		assert.False(t, e.Enforcement.Enforce)
	}
}

func TestCompletionRevocationsSkipChill(t *testing.T) {
	c := activeCircle(circledomain.CommitmentChill, true, allVisible())
	members := []*memberdomain.Member{{ID: 1, Status: memberdomain.StatusFocused}}

	assert.Empty(t, CompletionRevocations(c, members, time.Now()))
}

func TestCountMembers(t *testing.T) {
	counts := CountMembers([]*memberdomain.Member{
		{Status: memberdomain.StatusJoined},
		{Status: memberdomain.StatusFocused},
		{Status: memberdomain.StatusFocused},
		{Status: memberdomain.StatusPaused},
		{Status: memberdomain.StatusLeft},
	})

	assert.Equal(t, broadcast.MemberCounts{Present: 4, Focused: 2, Paused: 1, Left: 1}, counts)
}

func TestSnapshotHidesMembersWhenFocusHidden(t *testing.T) {
	c := activeCircle(circledomain.CommitmentLockedIn, false, circledomain.Visibility{ShowFocusedMembers: false})
	members := []*memberdomain.Member{
		{ID: 1, DisplayName: "ada", Status: memberdomain.StatusFocused},
	}

	snapshot := BuildSnapshot(c, members, "")

	assert.Empty(t, snapshot.Members)
	assert.Equal(t, 1, snapshot.Counts.Focused)
}

func TestSnapshotKeepsCompletionLeavers(t *testing.T) {
	endedAt := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	leftAt := endedAt.Add(time.Minute)
	earlyAt := endedAt.Add(-time.Minute)

	c := activeCircle(circledomain.CommitmentLockedIn, false, circledomain.Visibility{
		ShowFocusedMembers: true,
	})
	c.Phase = circledomain.PhaseCompleted
	c.EndedAt = &endedAt

	members := []*memberdomain.Member{
		{ID: 1, DisplayName: "ada", Status: memberdomain.StatusLeft, LeftAt: &leftAt},
		{ID: 2, DisplayName: "bob", Status: memberdomain.StatusLeft, LeftAt: &earlyAt},
	}

	snapshot := BuildSnapshot(c, members, "")

	// Leaving after the circle ended is not an early exit; the exit
	// that predates completion stays filtered.
	require.Len(t, snapshot.Members, 1)
	assert.Equal(t, "ada", snapshot.Members[0].DisplayName)
}

func TestSnapshotFiltersUnobservableLeavers(t *testing.T) {
	c := activeCircle(circledomain.CommitmentLockedIn, false, circledomain.Visibility{
		ShowFocusedMembers: true,
	})
	members := []*memberdomain.Member{
		{ID: 1, DisplayName: "ada", Status: memberdomain.StatusFocused},
		{ID: 2, DisplayName: "bob", Status: memberdomain.StatusLeft},
	}

	snapshot := BuildSnapshot(c, members, "")

	require.Len(t, snapshot.Members, 1)
	assert.Equal(t, "ada", snapshot.Members[0].DisplayName)
	assert.Equal(t, 1, snapshot.Counts.Left)
}
