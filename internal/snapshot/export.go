// Package snapshot periodically exports the gateway's subscriptions and
// cached review items as JSONL, for backup and for offline inspection.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/nardoguy14/pr-helper/internal/model"
	"github.com/nardoguy14/pr-helper/internal/store"
)

// ItemLister serves the cached items for one subscription. It is implemented
// by *poller.Poller.
type ItemLister interface {
	Items(subscriptionID string) []*model.ReviewItem
}

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version           string    `json:"version"`
	Type              string    `json:"type"`
	Timestamp         time.Time `json:"timestamp"`
	SubscriptionCount int       `json:"subscription_count"`
	ItemCount         int       `json:"item_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ExportJSONL writes all subscriptions and their cached items to w.
// Subscriptions are sorted by id; items follow their subscription, ordered
// by number.
func ExportJSONL(ctx context.Context, st store.Store, items ItemLister, w io.Writer) error {
	subs, err := st.ListSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}
	sort.Slice(subs, func(i, j int) bool {
		return subs[i].ID < subs[j].ID
	})

	cached := make(map[string][]*model.ReviewItem, len(subs))
	itemCount := 0
	for _, sub := range subs {
		its := items.Items(sub.ID)
		cached[sub.ID] = its
		itemCount += len(its)
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:           "1",
		Type:              "header",
		Timestamp:         time.Now().UTC(),
		SubscriptionCount: len(subs),
		ItemCount:         itemCount,
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, sub := range subs {
		if err := enc.Encode(record{Type: "subscription", Data: sub}); err != nil {
			return fmt.Errorf("encode subscription %s: %w", sub.ID, err)
		}
		for _, it := range cached[sub.ID] {
			if err := enc.Encode(record{Type: "item", Data: it}); err != nil {
				return fmt.Errorf("encode item %s#%d: %w", sub.ID, it.Number, err)
			}
		}
	}

	return nil
}
