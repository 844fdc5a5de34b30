// Package client provides a transport-agnostic interface for the pr-helper
// gateway service and an HTTP/JSON implementation that talks to its REST API.
package client

import (
	"context"

	"github.com/nardoguy14/pr-helper/internal/model"
)

// API is the surface the CLI and the monitor session use to talk to the
// gateway. It is implemented by HTTPClient and can be backed by any
// transport (tests use in-memory fakes).
type API interface {
	// Subscriptions
	ListSubscriptions(ctx context.Context) ([]*model.Subscription, error)
	Subscribe(ctx context.Context, req *SubscribeRequest) (*model.Subscription, error)
	Unsubscribe(ctx context.Context, subscriptionID string) error

	// Items
	ListItems(ctx context.Context, subscriptionID string) ([]*model.ReviewItem, error)
	RelevantItems(ctx context.Context) ([]*model.ReviewItem, error)
	Refresh(ctx context.Context, subscriptionID string) error

	// Users and sessions
	CurrentUser(ctx context.Context) (*model.User, error)
	OpenSession(ctx context.Context) (*Session, error)

	// Health
	Health(ctx context.Context) (string, error)

	// Lifecycle
	Close() error
}

// SubscribeRequest holds parameters for creating a subscription.
type SubscribeRequest struct {
	Kind         model.SubscriptionKind `json:"kind"`
	Organization string                 `json:"organization,omitempty"`
	TeamName     string                 `json:"team_name,omitempty"`
	Owner        string                 `json:"owner,omitempty"`
	Repo         string                 `json:"repo,omitempty"`
}

// Session identifies a push-channel session opened for this client.
type Session struct {
	SessionID string `json:"session_id"`
	StreamURL string `json:"stream_url"`
}

// ListSubscriptionsResponse is the payload of GET /api/v1/subscriptions.
type ListSubscriptionsResponse struct {
	Subscriptions []*model.Subscription `json:"subscriptions"`
	Total         int                   `json:"total"`
}

// ListItemsResponse is the payload of the item listing endpoints.
type ListItemsResponse struct {
	Items []*model.ReviewItem `json:"items"`
	Total int                 `json:"total"`
}
