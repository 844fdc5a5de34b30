package events

import (
	"context"

	"github.com/nardoguy14/pr-helper/internal/model"
)

// Event topic constants. The gateway publishes these whenever a poll cycle
// detects a change; the websocket hub fans them out to connected sessions.
const (
	TopicSubscriptionCreated = "pr.subscription.created"
	TopicSubscriptionDeleted = "pr.subscription.deleted"

	TopicItemNew     = "pr.item.new"
	TopicItemUpdated = "pr.item.updated"
	TopicItemClosed  = "pr.item.closed"

	TopicStatsUpdated = "pr.stats.updated"
)

// Event types

type SubscriptionCreated struct {
	Subscription *model.Subscription `json:"subscription"`
}

type SubscriptionDeleted struct {
	SubscriptionID string `json:"subscription_id"`
}

// ItemChanged is published on all three item topics; ChangeType repeats the
// topic so consumers of a wildcard subscription do not need to parse subjects.
type ItemChanged struct {
	SubscriptionID string           `json:"subscription_id"`
	ChangeType     model.ChangeType `json:"change_type"`
	Item           *model.ReviewItem `json:"item"`
}

type StatsUpdated struct {
	SubscriptionID string                  `json:"subscription_id"`
	Stats          model.SubscriptionStats `json:"stats"`
}

// ItemTopic maps a change type to its publish topic.
func ItemTopic(ct model.ChangeType) string {
	switch ct {
	case model.ChangeNew:
		return TopicItemNew
	case model.ChangeUpdated:
		return TopicItemUpdated
	case model.ChangeClosed:
		return TopicItemClosed
	}
	return TopicItemUpdated
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
