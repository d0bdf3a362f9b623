package episodic

import (
	"time"

	"github.com/layeredmemory/engine/internal/store"
	"github.com/layeredmemory/engine/internal/types"
)

// windowPolicy names the per-source windowing bounds (spec.md §4.E:
// "Windowed by source: SuperChat uses a 6-hour wall-clock window and a cap
// of 50 messages; DeepDive uses 6 hours and 30 messages").
type windowPolicy struct {
	window  time.Duration
	idleGap time.Duration
	cap     int
}

func policyFor(kind types.ConversationKind, window, idleGap time.Duration, superChatCap, deepDiveCap int) windowPolicy {
	p := windowPolicy{window: window, idleGap: idleGap, cap: superChatCap}
	if kind == types.SourceDeepDive {
		p.cap = deepDiveCap
	}
	return p
}

// groupMessages partitions msgs (already sorted ascending by CreatedAt) into
// groups per the windowing policy (spec.md §4.E): a group closes when either
// bound is reached, or a 2-minute idle gap follows the last message.
// Minimum group size is 1. Only groups that are definitively closed as of
// now are returned — a trailing group that has neither hit a bound nor aged
// past the idle gap is still accumulating and is left for the next run, so
// a conversation mid-exchange is never split mid-turn.
func groupMessages(msgs []store.Row, p windowPolicy, now time.Time) [][]store.Row {
	if len(msgs) == 0 {
		return nil
	}
	var groups [][]store.Row
	current := []store.Row{msgs[0]}
	groupStart := msgs[0].CreatedAt
	last := msgs[0].CreatedAt

	for i := 1; i < len(msgs); i++ {
		msg := msgs[i]
		gap := msg.CreatedAt.Sub(last)
		span := msg.CreatedAt.Sub(groupStart)

		closes := gap > p.idleGap || span > p.window || len(current) >= p.cap
		if closes {
			groups = append(groups, current)
			current = []store.Row{msg}
			groupStart = msg.CreatedAt
		} else {
			current = append(current, msg)
		}
		last = msg.CreatedAt
	}

	// The trailing group closes now only if it already satisfies a bound.
	if now.Sub(last) > p.idleGap || now.Sub(groupStart) > p.window || len(current) >= p.cap {
		groups = append(groups, current)
	}
	return groups
}
