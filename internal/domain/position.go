package domain

import "fmt"

// StoryPosition addresses one story in the two-dimensional
// (group, item) index space. Positions are immutable values; every
// navigation step produces a new one.
type StoryPosition struct {
	Group int // Index into the group list
	Item  int // Index into the group's story list
}

// String returns the position as "group/item" for logs.
func (p StoryPosition) String() string {
	return fmt.Sprintf("%d/%d", p.Group, p.Item)
}

// Direction indicates which way a navigation step moves.
type Direction int

const (
	DirectionForward Direction = iota
	DirectionBackward
)

// String returns a human-readable representation of the direction
func (d Direction) String() string {
	if d == DirectionBackward {
		return "backward"
	}
	return "forward"
}

// NavigationKind enumerates the exhaustive outcomes of one navigation step.
type NavigationKind int

const (
	// NavWithinGroup moves to another story in the same group.
	NavWithinGroup NavigationKind = iota
	// NavNextGroup crosses forward into the next group's first story.
	NavNextGroup
	// NavPreviousGroup crosses backward into the previous group's last story.
	NavPreviousGroup
	// NavCompleted means the last story of the last group was advanced past.
	NavCompleted
	// NavAtBeginning means the first story of the first group was retreated past.
	NavAtBeginning
	// NavFailed means the requested position was out of range.
	NavFailed
)

// String returns a human-readable representation of the navigation kind
func (k NavigationKind) String() string {
	switch k {
	case NavWithinGroup:
		return "within-group"
	case NavNextGroup:
		return "next-group"
	case NavPreviousGroup:
		return "previous-group"
	case NavCompleted:
		return "completed"
	case NavAtBeginning:
		return "at-beginning"
	case NavFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// NavigationResult is the outcome of one navigation step. Position is
// meaningful only for the three positional kinds; Reason only for NavFailed.
type NavigationResult struct {
	Kind     NavigationKind
	Position StoryPosition
	Reason   string
}

// Moved reports whether the result lands on a new valid position.
func (r NavigationResult) Moved() bool {
	switch r.Kind {
	case NavWithinGroup, NavNextGroup, NavPreviousGroup:
		return true
	default:
		return false
	}
}
