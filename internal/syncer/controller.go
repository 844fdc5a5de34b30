// Package syncer is the single authoritative pipeline for moving review-item
// data into the caches, regardless of source: initial load, periodic poll,
// push message, or user-relevant refresh. Nothing else mutates the store.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nardoguy14/pr-helper/internal/model"
	"github.com/nardoguy14/pr-helper/internal/state"
)

// ErrFetchInFlight is returned when a refresh is dropped because a fetch for
// the same subscription is already running. Benign: the running fetch will
// deliver equally fresh data.
var ErrFetchInFlight = errors.New("syncer: fetch already in flight for subscription")

const (
	defaultPollInterval     = 30 * time.Second
	defaultRelevantInterval = 2 * time.Minute
)

// Fetcher is the slice of the gateway API the controller consumes.
type Fetcher interface {
	ListSubscriptions(ctx context.Context) ([]*model.Subscription, error)
	ListItems(ctx context.Context, subscriptionID string) ([]*model.ReviewItem, error)
	RelevantItems(ctx context.Context) ([]*model.ReviewItem, error)
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithIntervals overrides the poll and relevant-refresh intervals.
func WithIntervals(poll, relevant time.Duration) Option {
	return func(c *Controller) {
		c.pollInterval = poll
		c.relevantInterval = relevant
	}
}

// WithRelevantObserver registers the callback fed with each fresh snapshot
// of the user-relevant item set.
func WithRelevantObserver(fn func([]*model.ReviewItem)) Option {
	return func(c *Controller) { c.onRelevant = fn }
}

// Controller owns all writes to the state store.
type Controller struct {
	api    Fetcher
	store  *state.Store
	logger *slog.Logger

	pollInterval     time.Duration
	relevantInterval time.Duration
	onRelevant       func([]*model.ReviewItem)

	mu       sync.Mutex
	inflight map[string]bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewController creates a controller writing into the given store.
func NewController(api Fetcher, store *state.Store, opts ...Option) *Controller {
	c := &Controller{
		api:              api,
		store:            store,
		logger:           slog.Default(),
		pollInterval:     defaultPollInterval,
		relevantInterval: defaultRelevantInterval,
		inflight:         make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LoadInitial fetches the subscription list and then every subscription's
// items. Item fetches for distinct subscriptions run concurrently.
func (c *Controller) LoadInitial(ctx context.Context) error {
	subs, err := c.api.ListSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("listing subscriptions: %w", err)
	}
	c.store.SetSubscriptions(subs)

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := c.RefreshSubscription(ctx, id); err != nil && !errors.Is(err, ErrFetchInFlight) {
				c.logger.Warn("initial item fetch failed", "subscription", id, "error", err)
			}
		}(sub.ID)
	}
	wg.Wait()
	return nil
}

// Start runs the periodic poll and relevant-refresh loops until Stop.
func (c *Controller) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx)
	}()
}

// Stop cancels the loops and waits for in-flight work to unwind. Fetches
// abandoned by cancellation never write into the store.
func (c *Controller) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

func (c *Controller) run(ctx context.Context) {
	poll := time.NewTicker(c.pollInterval)
	defer poll.Stop()
	relevant := time.NewTicker(c.relevantInterval)
	defer relevant.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
			c.RefreshAll(ctx)
		case <-relevant.C:
			if err := c.RefreshRelevant(ctx); err != nil {
				c.logger.Warn("relevant item refresh failed", "error", err)
			}
		}
	}
}

// RefreshAll refreshes every known subscription, concurrently.
func (c *Controller) RefreshAll(ctx context.Context) {
	for _, sub := range c.store.Subscriptions() {
		c.wg.Add(1)
		go func(id string) {
			defer c.wg.Done()
			if err := c.RefreshSubscription(ctx, id); err != nil && !errors.Is(err, ErrFetchInFlight) {
				c.logger.Warn("poll fetch failed", "subscription", id, "error", err)
			}
		}(sub.ID)
	}
}

// RefreshSubscription fetches one subscription's items and applies them.
// At most one fetch per subscription is in flight; a second concurrent call
// is dropped with ErrFetchInFlight so partial writes never interleave. A
// failed fetch leaves the previous cache entry untouched.
func (c *Controller) RefreshSubscription(ctx context.Context, subscriptionID string) error {
	c.mu.Lock()
	if c.inflight[subscriptionID] {
		c.mu.Unlock()
		return ErrFetchInFlight
	}
	c.inflight[subscriptionID] = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inflight, subscriptionID)
		c.mu.Unlock()
	}()

	items, err := c.api.ListItems(ctx, subscriptionID)
	if err != nil {
		return fmt.Errorf("fetching items for %s: %w", subscriptionID, err)
	}
	if ctx.Err() != nil {
		// Torn down while the fetch was in flight: discard the result.
		return ctx.Err()
	}
	c.ApplyFetchResult(subscriptionID, items)
	return nil
}

// RefreshRelevant fetches the user-relevant item set and hands it to the
// registered observer.
func (c *Controller) RefreshRelevant(ctx context.Context) error {
	items, err := c.api.RelevantItems(ctx)
	if err != nil {
		return fmt.Errorf("fetching relevant items: %w", err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if c.onRelevant != nil {
		c.onRelevant(items)
	}
	return nil
}

// ApplyFetchResult replaces a subscription's item list, merging by number so
// records that did not change keep their previous object reference.
// Downstream consumers rely on reference equality as a fast no-op check.
func (c *Controller) ApplyFetchResult(subscriptionID string, items []*model.ReviewItem) {
	merged := MergeItems(c.store.Items(subscriptionID), items)
	c.store.SetItems(subscriptionID, merged)
}

// ApplyPush applies a single push-channel item update. Updates for unknown
// subscriptions are ignored: the item may belong to a subscription whose
// initial load has not landed yet.
func (c *Controller) ApplyPush(upd model.PRUpdate) {
	if c.store.Subscription(upd.SubscriptionID) == nil {
		c.logger.Debug("ignoring push for unknown subscription", "subscription", upd.SubscriptionID)
		return
	}

	old := c.store.Items(upd.SubscriptionID)
	switch upd.ChangeType {
	case model.ChangeNew, model.ChangeUpdated:
		if upd.Item == nil {
			c.logger.Warn("dropping push update without an item", "subscription", upd.SubscriptionID)
			return
		}
		next := upsertItem(old, upd.Item)
		c.store.SetItems(upd.SubscriptionID, next)
	case model.ChangeClosed:
		if upd.Item == nil {
			return
		}
		next := removeItem(old, upd.Item.Number)
		if len(next) == len(old) {
			// Removing an item we never had is a no-op, not an error.
			return
		}
		c.store.SetItems(upd.SubscriptionID, next)
	default:
		c.logger.Warn("dropping push update with unknown change type", "change_type", string(upd.ChangeType))
	}
}

// MergeItems merges a freshly fetched list against the previous one: any
// new record deep-equal to its predecessor is replaced by the old pointer,
// preserving referential identity for unchanged items.
func MergeItems(old, fresh []*model.ReviewItem) []*model.ReviewItem {
	prev := make(map[int]*model.ReviewItem, len(old))
	for _, it := range old {
		prev[it.Number] = it
	}
	out := make([]*model.ReviewItem, 0, len(fresh))
	for _, it := range fresh {
		if existing, ok := prev[it.Number]; ok && existing.Equal(it) {
			out = append(out, existing)
			continue
		}
		out = append(out, it)
	}
	return out
}

// upsertItem replaces the entry with the same number (keeping the old
// pointer when nothing changed) or appends.
func upsertItem(old []*model.ReviewItem, it *model.ReviewItem) []*model.ReviewItem {
	out := make([]*model.ReviewItem, 0, len(old)+1)
	replaced := false
	for _, existing := range old {
		if existing.Number == it.Number {
			replaced = true
			if existing.Equal(it) {
				out = append(out, existing)
			} else {
				out = append(out, it)
			}
			continue
		}
		out = append(out, existing)
	}
	if !replaced {
		out = append(out, it)
	}
	return out
}

func removeItem(old []*model.ReviewItem, number int) []*model.ReviewItem {
	out := make([]*model.ReviewItem, 0, len(old))
	for _, existing := range old {
		if existing.Number != number {
			out = append(out, existing)
		}
	}
	return out
}
