package store

import (
	"context"
	"errors"
	"time"

	"github.com/nardoguy14/pr-helper/internal/model"
)

// ErrNotFound is returned when a subscription does not exist.
var ErrNotFound = errors.New("store: not found")

// Store defines the persistence interface for the gateway: the subscription
// registry plus the notification rate-limit log. Review items themselves are
// never persisted; they are re-fetched from GitHub on demand.
type Store interface {
	// Subscription CRUD
	CreateSubscription(ctx context.Context, sub *model.Subscription) error
	GetSubscription(ctx context.Context, id string) (*model.Subscription, error)
	ListSubscriptions(ctx context.Context) ([]*model.Subscription, error)
	UpdateSubscription(ctx context.Context, sub *model.Subscription) error
	UpdateStats(ctx context.Context, id string, stats model.SubscriptionStats) error
	DeleteSubscription(ctx context.Context, id string) error

	// Notification rate limiting. Keys identify one notifiable fact
	// (e.g. "review_requested:acme/lib-a#12").
	LastNotified(ctx context.Context, key string) (*time.Time, error)
	MarkNotified(ctx context.Context, key string, at time.Time) error
	PruneNotifications(ctx context.Context, olderThan time.Time) error

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}
