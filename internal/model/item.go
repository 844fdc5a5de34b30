package model

import (
	"time"
)

// ReviewState is the state of a single submitted review.
type ReviewState string

const (
	ReviewPending          ReviewState = "pending"
	ReviewCommented        ReviewState = "commented"
	ReviewApproved         ReviewState = "approved"
	ReviewChangesRequested ReviewState = "changes_requested"
	ReviewDismissed        ReviewState = "dismissed"
)

// ItemStatus is the derived status of a review item.
type ItemStatus string

const (
	StatusOpen              ItemStatus = "open"
	StatusNeedsReview       ItemStatus = "needs_review"
	StatusReviewed          ItemStatus = "reviewed"
	StatusWaitingForChanges ItemStatus = "waiting_for_changes"
	StatusReadyToMerge      ItemStatus = "ready_to_merge"
)

// String returns the string representation of the status.
func (s ItemStatus) String() string {
	return string(s)
}

// User identifies a review participant.
type User struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url,omitempty"`
	HTMLURL   string `json:"html_url,omitempty"`
}

// Review is a single submitted review on an item.
type Review struct {
	ID          int64       `json:"id"`
	User        User        `json:"user"`
	State       ReviewState `json:"state"`
	SubmittedAt *time.Time  `json:"submitted_at,omitempty"`
}

// ItemKey uniquely identifies a review item within the cache.
type ItemKey struct {
	SubscriptionID string
	Number         int
}

// ReviewItem is a pull-request-like unit of work with reviewers, assignees,
// and a derived status.
type ReviewItem struct {
	SubscriptionID     string     `json:"subscription_id"`
	RepoName           string     `json:"repository,omitempty"`
	Number             int        `json:"number"`
	Title              string     `json:"title"`
	HTMLURL            string     `json:"html_url,omitempty"`
	Author             User       `json:"author"`
	Assignees          []User     `json:"assignees,omitempty"`
	RequestedReviewers []User     `json:"requested_reviewers,omitempty"`
	Reviews            []Review   `json:"reviews,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	ClosedAt           *time.Time `json:"closed_at,omitempty"`
	Draft              bool       `json:"draft"`

	// Derived relevance flags, computed against the current user.
	UserIsAssignee          bool `json:"user_is_assignee"`
	UserIsRequestedReviewer bool `json:"user_is_requested_reviewer"`
	UserHasReviewed         bool `json:"user_has_reviewed"`

	Status ItemStatus `json:"status"`
}

// Key returns the cache key for the item.
func (it *ReviewItem) Key() ItemKey {
	return ItemKey{SubscriptionID: it.SubscriptionID, Number: it.Number}
}

// Relevant reports whether the item is in the user-relevant subset.
func (it *ReviewItem) Relevant() bool {
	return it.UserIsAssignee || it.UserIsRequestedReviewer
}

// DeriveUserFlags recomputes the three user-relative flags for the given login.
func (it *ReviewItem) DeriveUserFlags(login string) {
	it.UserIsAssignee = containsUser(it.Assignees, login)
	it.UserIsRequestedReviewer = containsUser(it.RequestedReviewers, login)
	it.UserHasReviewed = false
	for _, r := range it.Reviews {
		if r.User.Login == login {
			it.UserHasReviewed = true
			break
		}
	}
}

func containsUser(users []User, login string) bool {
	for _, u := range users {
		if u.Login == login {
			return true
		}
	}
	return false
}

// DeriveStatus computes the status enum from the reviews and user flags.
// Only the latest review per reviewer counts.
func (it *ReviewItem) DeriveStatus() ItemStatus {
	latest := make(map[int64]ReviewState, len(it.Reviews))
	for _, r := range it.Reviews {
		latest[r.User.ID] = r.State
	}

	if it.UserHasReviewed {
		return StatusReviewed
	}

	if it.UserIsRequestedReviewer || it.UserIsAssignee {
		for _, state := range latest {
			if state == ReviewChangesRequested {
				return StatusWaitingForChanges
			}
		}
		return StatusNeedsReview
	}

	// Not relevant to the user: approved all around means ready, otherwise
	// the item is simply open.
	if len(latest) > 0 {
		ready := true
		for _, state := range latest {
			if state != ReviewApproved {
				ready = false
				break
			}
		}
		if ready {
			return StatusReadyToMerge
		}
	}
	return StatusOpen
}

// Equal reports whether two items carry identical data. Used by the sync
// controller to keep the old object reference when a fetch returns an
// unchanged record.
func (it *ReviewItem) Equal(other *ReviewItem) bool {
	if it == other {
		return true
	}
	if it == nil || other == nil {
		return false
	}
	if it.SubscriptionID != other.SubscriptionID ||
		it.RepoName != other.RepoName ||
		it.Number != other.Number ||
		it.Title != other.Title ||
		it.HTMLURL != other.HTMLURL ||
		it.Author != other.Author ||
		it.Draft != other.Draft ||
		it.Status != other.Status ||
		it.UserIsAssignee != other.UserIsAssignee ||
		it.UserIsRequestedReviewer != other.UserIsRequestedReviewer ||
		it.UserHasReviewed != other.UserHasReviewed {
		return false
	}
	if !it.CreatedAt.Equal(other.CreatedAt) || !it.UpdatedAt.Equal(other.UpdatedAt) {
		return false
	}
	if !equalTimePtr(it.ClosedAt, other.ClosedAt) {
		return false
	}
	if !equalUsers(it.Assignees, other.Assignees) ||
		!equalUsers(it.RequestedReviewers, other.RequestedReviewers) {
		return false
	}
	return equalReviews(it.Reviews, other.Reviews)
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func equalUsers(a, b []User) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalReviews(a, b []Review) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].User != b[i].User || a[i].State != b[i].State {
			return false
		}
		if !equalTimePtr(a[i].SubmittedAt, b[i].SubmittedAt) {
			return false
		}
	}
	return true
}
