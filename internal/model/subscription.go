package model

import (
	"fmt"
	"time"
)

// SubscriptionKind distinguishes watched teams from watched repositories.
type SubscriptionKind string

const (
	KindTeam       SubscriptionKind = "team"
	KindRepository SubscriptionKind = "repository"
)

// String returns the string representation of the kind.
func (k SubscriptionKind) String() string {
	return string(k)
}

// IsValid checks whether the kind is a known value.
func (k SubscriptionKind) IsValid() bool {
	switch k {
	case KindTeam, KindRepository:
		return true
	}
	return false
}

// SubscriptionStats holds the aggregate counters for a subscription,
// recomputed by the server on every poll.
type SubscriptionStats struct {
	TotalOpen      int       `json:"total_open"`
	AssignedToUser int       `json:"assigned_to_user"`
	ReviewRequests int       `json:"review_requests"`
	LastUpdated    time.Time `json:"last_updated"`
}

// Subscription is a watched team or repository plus its aggregate counters.
type Subscription struct {
	ID   string           `json:"id"`
	Kind SubscriptionKind `json:"kind"`

	// Team subscriptions.
	Organization string `json:"organization,omitempty"`
	TeamName     string `json:"team_name,omitempty"`

	// Repository subscriptions.
	Owner string `json:"owner,omitempty"`
	Repo  string `json:"repo,omitempty"`

	Enabled   bool              `json:"enabled"`
	Stats     SubscriptionStats `json:"stats"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// TeamSubscriptionID derives the canonical id for a team subscription.
func TeamSubscriptionID(org, team string) string {
	return org + "/" + team
}

// RepoSubscriptionID derives the canonical id for a repository subscription.
func RepoSubscriptionID(owner, repo string) string {
	if owner == "" {
		return repo
	}
	return owner + "/" + repo
}

// CanonicalID returns the id derived from the subscription's identity fields.
func (s *Subscription) CanonicalID() string {
	if s.Kind == KindTeam {
		return TeamSubscriptionID(s.Organization, s.TeamName)
	}
	return RepoSubscriptionID(s.Owner, s.Repo)
}

// Label is the short human-readable name shown on graph nodes.
func (s *Subscription) Label() string {
	if s.Kind == KindTeam {
		return s.TeamName
	}
	return s.Repo
}

// Validate checks that the identity fields required for the kind are present.
func (s *Subscription) Validate() error {
	switch s.Kind {
	case KindTeam:
		if s.Organization == "" || s.TeamName == "" {
			return fmt.Errorf("team subscription requires organization and team name")
		}
	case KindRepository:
		if s.Repo == "" {
			return fmt.Errorf("repository subscription requires a repository name")
		}
	default:
		return fmt.Errorf("unknown subscription kind %q", s.Kind)
	}
	return nil
}
