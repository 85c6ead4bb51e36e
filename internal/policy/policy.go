// Package policy maps a circle's commitment level and visibility flags
// onto device enforcement instructions and the event feed other members
// may observe. Everything here is a pure function of its inputs.
package policy

import (
	"time"

	"github.com/shellbound/focuscircle/internal/broadcast"
	circledomain "github.com/shellbound/focuscircle/internal/circle/domain"
	memberdomain "github.com/shellbound/focuscircle/internal/member/domain"
)

// Transition describes one committed member status change plus the
// context the rules need.
type Transition struct {
	Member     memberdomain.Member
	FromStatus memberdomain.Status
	ToStatus   memberdomain.Status
	// AtCompletion marks a leave that coincides with normal circle
	// completion; such leaves are never filtered from the feed.
	AtCompletion bool
	Counts       broadcast.MemberCounts
	At           time.Time
}

// Decision is the policy outcome for one transition. Either field may
// be nil: no instruction to issue, or nothing the group may observe.
type Decision struct {
	Enforcement *broadcast.Enforcement
	Observable  *broadcast.Event
}

// blockingApplies reports whether the circle issues device blocking at
// all. chill never blocks, regardless of the blocking toggle.
func blockingApplies(c circledomain.Circle) bool {
	if c.CommitmentLevel == circledomain.CommitmentChill {
		return false
	}
	return c.BlockingEnabled
}

// EvaluateTransition computes the enforcement instruction and the
// group-observable event for a committed transition.
func EvaluateTransition(c circledomain.Circle, t Transition) Decision {
	var d Decision

	if blockingApplies(c) && c.Phase == circledomain.PhaseActive {
		switch {
		case t.ToStatus == memberdomain.StatusFocused && t.FromStatus == memberdomain.StatusJoined:
			expires := c.EndsAt()
			d.Enforcement = &broadcast.Enforcement{
				MemberID:  t.Member.ID.String(),
				Enforce:   true,
				AppList:   []string(c.BlockedApps),
				ExpiresAt: &expires,
			}
		case t.ToStatus == memberdomain.StatusLeft && t.FromStatus.Present():
			d.Enforcement = &broadcast.Enforcement{
				MemberID: t.Member.ID.String(),
				Enforce:  false,
			}
		}
	}

	if observable := observableEvent(c, t); observable != nil {
		d.Observable = observable
	}
	return d
}

func observableEvent(c circledomain.Circle, t Transition) *broadcast.Event {
	if t.ToStatus == memberdomain.StatusLeft {
		if !leaveObservable(c, t.AtCompletion) {
			return nil
		}
		return transitionEvent(t)
	}

	// Presence updates: joined, focused, paused. When individual focus
	// status is hidden the group still learns aggregate counts.
	if c.Visibility.ShowFocusedMembers {
		return transitionEvent(t)
	}
	return &broadcast.Event{
		Type:   broadcast.TypeMemberCounts,
		At:     t.At,
		Counts: &t.Counts,
	}
}

// leaveObservable applies the exit disclosure rules: hardcore always
// discloses, chill never does, locked_in honors the creator's flags.
// Leaves at normal completion are never treated as early exits.
func leaveObservable(c circledomain.Circle, atCompletion bool) bool {
	switch c.CommitmentLevel {
	case circledomain.CommitmentHardcore:
		return true
	case circledomain.CommitmentChill:
		return false
	}
	if atCompletion {
		return true
	}
	return c.Visibility.ShowExitsToGroup && c.Visibility.ShowEarlyLeavers
}

// leaveAtCompletion reports whether a recorded leave coincided with the
// circle reaching a terminal phase rather than being an early exit.
func leaveAtCompletion(c circledomain.Circle, m *memberdomain.Member) bool {
	if !c.Phase.Terminal() || m.LeftAt == nil || c.EndedAt == nil {
		return false
	}
	return !m.LeftAt.Before(*c.EndedAt)
}

func transitionEvent(t Transition) *broadcast.Event {
	return &broadcast.Event{
		Type: broadcast.TypeMemberTransition,
		At:   t.At,
		Member: &broadcast.MemberTransition{
			MemberID:    t.Member.ID.String(),
			DisplayName: t.Member.DisplayName,
			FromStatus:  string(t.FromStatus),
			ToStatus:    string(t.ToStatus),
		},
	}
}

// CompletionRevocations returns the enforce=false instructions lifting
// blocking for every still-present member when a circle completes.
func CompletionRevocations(c circledomain.Circle, members []*memberdomain.Member, at time.Time) []broadcast.Event {
	if !blockingApplies(c) {
		return nil
	}
	var events []broadcast.Event
	for _, m := range members {
		if m.Status != memberdomain.StatusFocused && m.Status != memberdomain.StatusPaused {
			continue
		}
		events = append(events, broadcast.Event{
			Type: broadcast.TypeEnforcement,
			At:   at,
			Enforcement: &broadcast.Enforcement{
				MemberID: m.ID.String(),
				Enforce:  false,
			},
		})
	}
	return events
}

// CountMembers aggregates member statuses for counts events and
// snapshots.
func CountMembers(members []*memberdomain.Member) broadcast.MemberCounts {
	var counts broadcast.MemberCounts
	for _, m := range members {
		switch m.Status {
		case memberdomain.StatusFocused:
			counts.Focused++
			counts.Present++
		case memberdomain.StatusPaused:
			counts.Paused++
			counts.Present++
		case memberdomain.StatusJoined:
			counts.Present++
		case memberdomain.StatusLeft:
			counts.Left++
		}
	}
	return counts
}

// BuildSnapshot assembles the policy-filtered view of current state a
// late-joining subscriber receives before the live stream. Seq is left
// for the caller to stamp from the stream watermark.
func BuildSnapshot(c circledomain.Circle, members []*memberdomain.Member, mood string) broadcast.Snapshot {
	snapshot := broadcast.Snapshot{
		Circle: broadcast.CircleView{
			CircleID:        c.ID.String(),
			Name:            c.Name,
			Phase:           string(c.Phase),
			CommitmentLevel: string(c.CommitmentLevel),
			DurationSeconds: c.DurationSeconds,
			ScheduledStart:  c.ScheduledStart,
			ActivatedAt:     c.ActivatedAt,
		},
		Counts: CountMembers(members),
		Mood:   mood,
	}

	if !c.Visibility.ShowFocusedMembers {
		return snapshot
	}
	for _, m := range members {
		if m.Status == memberdomain.StatusLeft && !leaveObservable(c, leaveAtCompletion(c, m)) {
			continue
		}
		snapshot.Members = append(snapshot.Members, broadcast.MemberView{
			MemberID:    m.ID.String(),
			DisplayName: m.DisplayName,
			Status:      string(m.Status),
		})
	}
	return snapshot
}
