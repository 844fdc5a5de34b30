// Package notify turns successive snapshots of the user-relevant item set
// into discrete notification events: one event per item that became newly
// assigned or newly requested for review, and nothing else.
package notify

import (
	"github.com/nardoguy14/pr-helper/internal/model"
)

// Reason says why an item triggered a notification. Assignment takes
// priority when both flags flip in the same snapshot.
type Reason string

const (
	ReasonAssigned        Reason = "assigned"
	ReasonReviewRequested Reason = "review_requested"
)

// Event is a single emitted notification.
type Event struct {
	Item   *model.ReviewItem
	Reason Reason
}

type relevance struct {
	assignee bool
	reviewer bool
}

// Engine diffs snapshots of the relevant item subset. The first non-empty
// snapshot after (re)initialization is stored as the baseline and emits
// nothing, so pre-existing items never notify on startup or login.
type Engine struct {
	baseline map[model.ItemKey]relevance
	primed   bool
}

// NewEngine returns an unprimed engine.
func NewEngine() *Engine {
	return &Engine{baseline: make(map[model.ItemKey]relevance)}
}

// Reset drops the baseline; the next non-empty snapshot primes silently.
// Called when the authenticated user changes.
func (e *Engine) Reset() {
	e.baseline = make(map[model.ItemKey]relevance)
	e.primed = false
}

// Observe processes a snapshot and returns the events it produced. The new
// snapshot replaces the baseline unconditionally.
func (e *Engine) Observe(snapshot []*model.ReviewItem) []Event {
	next := make(map[model.ItemKey]relevance, len(snapshot))
	for _, it := range snapshot {
		next[it.Key()] = relevance{
			assignee: it.UserIsAssignee,
			reviewer: it.UserIsRequestedReviewer,
		}
	}

	if !e.primed {
		if len(snapshot) == 0 {
			return nil
		}
		e.baseline = next
		e.primed = true
		return nil
	}

	var events []Event
	for _, it := range snapshot {
		cur := next[it.Key()]
		prev, existed := e.baseline[it.Key()]

		switch {
		case !existed:
			// Brand-new item: notify if either relevance flag is set.
			if cur.assignee {
				events = append(events, Event{Item: it, Reason: ReasonAssigned})
			} else if cur.reviewer {
				events = append(events, Event{Item: it, Reason: ReasonReviewRequested})
			}
		case cur.assignee && !prev.assignee:
			events = append(events, Event{Item: it, Reason: ReasonAssigned})
		case cur.reviewer && !prev.reviewer:
			events = append(events, Event{Item: it, Reason: ReasonReviewRequested})
		}
		// Flags dropping back to false, or items disappearing entirely,
		// never notify.
	}

	e.baseline = next
	return events
}
