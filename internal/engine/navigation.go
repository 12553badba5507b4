// Package engine implements the stories playback orchestration core: pure
// index navigation, the per-story progress timer, the playback state
// machine, the event sequencer that serializes their side effects, and the
// Engine facade tying them together.
package engine

import (
	"fmt"

	"github.com/mbecker/reel/internal/domain"
)

// Advance computes the result of one forward navigation step. It is a pure
// function of its inputs: no timers, no I/O, no mutation.
func Advance(groups []domain.StoryGroup, pos domain.StoryPosition) domain.NavigationResult {
	if reason, ok := checkPosition(groups, pos); !ok {
		return domain.NavigationResult{Kind: domain.NavFailed, Reason: reason}
	}

	if pos.Item+1 < len(groups[pos.Group].Stories) {
		return domain.NavigationResult{
			Kind:     domain.NavWithinGroup,
			Position: domain.StoryPosition{Group: pos.Group, Item: pos.Item + 1},
		}
	}
	if pos.Group+1 < len(groups) {
		return domain.NavigationResult{
			Kind:     domain.NavNextGroup,
			Position: domain.StoryPosition{Group: pos.Group + 1, Item: 0},
		}
	}
	return domain.NavigationResult{Kind: domain.NavCompleted}
}

// Retreat computes the result of one backward navigation step. Crossing a
// group boundary lands on the previous group's last story.
func Retreat(groups []domain.StoryGroup, pos domain.StoryPosition) domain.NavigationResult {
	if reason, ok := checkPosition(groups, pos); !ok {
		return domain.NavigationResult{Kind: domain.NavFailed, Reason: reason}
	}

	if pos.Item-1 >= 0 {
		return domain.NavigationResult{
			Kind:     domain.NavWithinGroup,
			Position: domain.StoryPosition{Group: pos.Group, Item: pos.Item - 1},
		}
	}
	if pos.Group-1 >= 0 {
		prev := groups[pos.Group-1]
		return domain.NavigationResult{
			Kind:     domain.NavPreviousGroup,
			Position: domain.StoryPosition{Group: pos.Group - 1, Item: len(prev.Stories) - 1},
		}
	}
	return domain.NavigationResult{Kind: domain.NavAtBeginning}
}

// JumpTo validates a direct jump target. Out-of-range targets produce a
// failed result rather than a panic or a bare error.
func JumpTo(groups []domain.StoryGroup, target domain.StoryPosition) domain.NavigationResult {
	if reason, ok := checkPosition(groups, target); !ok {
		return domain.NavigationResult{Kind: domain.NavFailed, Reason: reason}
	}
	return domain.NavigationResult{Kind: domain.NavWithinGroup, Position: target}
}

// checkPosition validates that a position addresses an existing story.
func checkPosition(groups []domain.StoryGroup, pos domain.StoryPosition) (string, bool) {
	if len(groups) == 0 {
		return "no story groups", false
	}
	if pos.Group < 0 || pos.Group >= len(groups) {
		return fmt.Sprintf("group index %d out of range [0,%d)", pos.Group, len(groups)), false
	}
	if pos.Item < 0 || pos.Item >= len(groups[pos.Group].Stories) {
		return fmt.Sprintf("story index %d out of range [0,%d) in group %d",
			pos.Item, len(groups[pos.Group].Stories), pos.Group), false
	}
	return "", true
}

// StoryAt returns the story at a position. The second return is false when
// the position is out of range.
func StoryAt(groups []domain.StoryGroup, pos domain.StoryPosition) (domain.Story, bool) {
	if _, ok := checkPosition(groups, pos); !ok {
		return nil, false
	}
	return groups[pos.Group].Stories[pos.Item], true
}
