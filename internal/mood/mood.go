// Package mood projects current member statuses into the flavor line
// shown on the session screen. It is a read-only projection; nothing
// here is persisted or ordered.
package mood

import (
	"github.com/shellbound/focuscircle/internal/broadcast"
	circledomain "github.com/shellbound/focuscircle/internal/circle/domain"
)

// Line picks a flavor line from the circle phase and aggregate counts.
func Line(phase circledomain.Phase, counts broadcast.MemberCounts) string {
	switch phase {
	case circledomain.PhaseScheduled:
		return "the circle is gathering"
	case circledomain.PhaseCompleted:
		return "session complete, shells intact"
	case circledomain.PhaseCancelled:
		return "this one never got going"
	}

	switch {
	case counts.Present == 0:
		return "an empty circle is a quiet circle"
	case counts.Paused == 0 && counts.Left == 0:
		return "everyone is locked in"
	case counts.Focused >= counts.Paused:
		return "most of the circle is holding the line"
	case counts.Left > 0 && counts.Present == 0:
		return "the tide went out"
	default:
		return "focus is wavering"
	}
}
