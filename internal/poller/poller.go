// Package poller drives the upstream side of the gateway: it periodically
// fetches open pull requests for every enabled subscription, diffs them
// against the previous cycle, publishes change events, recomputes aggregate
// stats, and rate-limits repeat notifications through the durable log.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nardoguy14/pr-helper/internal/events"
	"github.com/nardoguy14/pr-helper/internal/model"
	"github.com/nardoguy14/pr-helper/internal/store"
)

const (
	defaultInterval  = 30 * time.Second
	defaultRateLimit = time.Hour
)

// Fetcher is the GitHub surface the poller consumes.
type Fetcher interface {
	CurrentUser(ctx context.Context) (*model.User, error)
	TeamRepos(ctx context.Context, org, team string) ([]string, error)
	OpenItems(ctx context.Context, subscriptionID, owner, repo, login string) ([]*model.ReviewItem, error)
}

// NotifyFunc receives rate-limited user notifications.
type NotifyFunc func(item *model.ReviewItem, reason string)

// Option configures a Poller.
type Option func(*Poller)

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Poller) { p.logger = l }
}

// WithInterval overrides the poll interval.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) { p.interval = d }
}

// WithNotifyRateLimit overrides the minimum delay between repeat
// notifications for the same fact.
func WithNotifyRateLimit(d time.Duration) Option {
	return func(p *Poller) { p.rateLimit = d }
}

// WithNotifier registers the sink for rate-limited notifications.
func WithNotifier(fn NotifyFunc) Option {
	return func(p *Poller) { p.notify = fn }
}

// Poller owns the item cache on the gateway side. Everything the REST API
// serves for items comes out of here.
type Poller struct {
	gh     Fetcher
	store  store.Store
	pub    events.Publisher
	logger *slog.Logger

	interval  time.Duration
	rateLimit time.Duration
	notify    NotifyFunc

	login string

	mu    sync.Mutex
	prev  map[string]map[int]*model.ReviewItem
	cache map[string][]*model.ReviewItem

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a poller. Call Start to begin polling.
func New(gh Fetcher, st store.Store, pub events.Publisher, opts ...Option) *Poller {
	p := &Poller{
		gh:        gh,
		store:     st,
		pub:       pub,
		logger:    slog.Default(),
		interval:  defaultInterval,
		rateLimit: defaultRateLimit,
		prev:      make(map[string]map[int]*model.ReviewItem),
		cache:     make(map[string][]*model.ReviewItem),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start resolves the authenticated login and begins the periodic loop.
// With a zero interval the loop is disabled and only explicit refreshes run.
func (p *Poller) Start(ctx context.Context) error {
	user, err := p.gh.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("resolving authenticated user: %w", err)
	}
	p.login = user.Login

	if p.interval <= 0 {
		return nil
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				p.PollAll(loopCtx)
			}
		}
	}()
	return nil
}

// Stop halts the loop and waits for an in-flight cycle to finish.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// Login returns the authenticated login resolved at Start.
func (p *Poller) Login() string { return p.login }

// PollAll runs one poll cycle over every enabled subscription.
func (p *Poller) PollAll(ctx context.Context) {
	subs, err := p.store.ListSubscriptions(ctx)
	if err != nil {
		p.logger.Error("listing subscriptions for poll", "error", err)
		return
	}
	for _, sub := range subs {
		if !sub.Enabled {
			continue
		}
		if err := p.PollSubscription(ctx, sub); err != nil {
			p.logger.Warn("poll failed", "subscription", sub.ID, "error", err)
		}
	}
}

// PollSubscription fetches one subscription's items, diffs against the
// previous cycle, and publishes the resulting events. A failed fetch leaves
// the cache and the previous snapshot untouched.
func (p *Poller) PollSubscription(ctx context.Context, sub *model.Subscription) error {
	items, err := p.fetchItems(ctx, sub)
	if err != nil {
		return err
	}

	p.mu.Lock()
	old := p.prev[sub.ID]
	cur := make(map[int]*model.ReviewItem, len(items))
	for _, it := range items {
		cur[it.Number] = it
	}
	p.prev[sub.ID] = cur
	sorted := make([]*model.ReviewItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Number < sorted[j].Number })
	p.cache[sub.ID] = sorted
	p.mu.Unlock()

	p.publishDiff(ctx, sub.ID, old, cur)
	p.sendNotifications(ctx, items)

	stats := ComputeStats(items)
	if err := p.store.UpdateStats(ctx, sub.ID, stats); err != nil {
		p.logger.Warn("updating stats", "subscription", sub.ID, "error", err)
	}
	if err := p.pub.Publish(ctx, events.TopicStatsUpdated, events.StatsUpdated{
		SubscriptionID: sub.ID,
		Stats:          stats,
	}); err != nil {
		p.logger.Warn("publishing stats update", "subscription", sub.ID, "error", err)
	}
	return nil
}

// Items returns the cached items for a subscription, ordered by number.
func (p *Poller) Items(subscriptionID string) []*model.ReviewItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	cached := p.cache[subscriptionID]
	out := make([]*model.ReviewItem, len(cached))
	copy(out, cached)
	return out
}

// HasPolled reports whether the subscription has completed at least one poll.
func (p *Poller) HasPolled(subscriptionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.prev[subscriptionID]
	return ok
}

// Forget drops the cached state of an unsubscribed id.
func (p *Poller) Forget(subscriptionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.prev, subscriptionID)
	delete(p.cache, subscriptionID)
}

// RelevantItems returns every cached item relevant to the authenticated
// user, across all subscriptions.
func (p *Poller) RelevantItems() []*model.ReviewItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.cache))
	for id := range p.cache {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var out []*model.ReviewItem
	for _, id := range ids {
		for _, it := range p.cache[id] {
			if it.Relevant() {
				out = append(out, it)
			}
		}
	}
	return out
}

func (p *Poller) fetchItems(ctx context.Context, sub *model.Subscription) ([]*model.ReviewItem, error) {
	if sub.Kind == model.KindTeam {
		repos, err := p.gh.TeamRepos(ctx, sub.Organization, sub.TeamName)
		if err != nil {
			return nil, err
		}
		var items []*model.ReviewItem
		for _, repo := range repos {
			batch, err := p.gh.OpenItems(ctx, sub.ID, sub.Organization, repo, p.login)
			if err != nil {
				return nil, err
			}
			items = append(items, batch...)
		}
		return items, nil
	}
	return p.gh.OpenItems(ctx, sub.ID, sub.Owner, sub.Repo, p.login)
}

// publishDiff emits new/updated/closed events for one cycle. Identity is the
// item number; an item counts as updated when its UpdatedAt moved.
func (p *Poller) publishDiff(ctx context.Context, subID string, old, cur map[int]*model.ReviewItem) {
	// First cycle for a subscription publishes nothing: connected clients
	// get the full set through the items endpoint.
	if old == nil {
		return
	}
	for number, it := range cur {
		prev, existed := old[number]
		switch {
		case !existed:
			p.publishItem(ctx, subID, model.ChangeNew, it)
		case !prev.UpdatedAt.Equal(it.UpdatedAt):
			p.publishItem(ctx, subID, model.ChangeUpdated, it)
		}
	}
	for number, it := range old {
		if _, still := cur[number]; !still {
			p.publishItem(ctx, subID, model.ChangeClosed, it)
		}
	}
}

func (p *Poller) publishItem(ctx context.Context, subID string, ct model.ChangeType, it *model.ReviewItem) {
	if err := p.pub.Publish(ctx, events.ItemTopic(ct), events.ItemChanged{
		SubscriptionID: subID,
		ChangeType:     ct,
		Item:           it,
	}); err != nil {
		p.logger.Warn("publishing item change",
			"subscription", subID, "change_type", string(ct), "error", err)
	}
}

// sendNotifications pushes rate-limited notifications for relevant items.
// One fact (item plus reason) notifies at most once per rate-limit window,
// tracked durably so restarts do not re-notify.
func (p *Poller) sendNotifications(ctx context.Context, items []*model.ReviewItem) {
	if p.notify == nil {
		return
	}
	now := time.Now()
	for _, it := range items {
		var reason string
		switch {
		case it.UserIsAssignee:
			reason = "assigned"
		case it.UserIsRequestedReviewer:
			reason = "review_requested"
		default:
			continue
		}
		key := NotificationKey(reason, it)
		last, err := p.store.LastNotified(ctx, key)
		if err != nil {
			p.logger.Warn("reading notification log", "key", key, "error", err)
			continue
		}
		if last != nil && now.Sub(*last) < p.rateLimit {
			continue
		}
		if err := p.store.MarkNotified(ctx, key, now); err != nil {
			p.logger.Warn("writing notification log", "key", key, "error", err)
			continue
		}
		p.notify(it, reason)
	}
}

// NotificationKey is the durable rate-limit key for one notifiable fact.
func NotificationKey(reason string, it *model.ReviewItem) string {
	return fmt.Sprintf("%s:%s/%s#%d", reason, it.SubscriptionID, it.RepoName, it.Number)
}

// ComputeStats aggregates the counters served with a subscription.
func ComputeStats(items []*model.ReviewItem) model.SubscriptionStats {
	stats := model.SubscriptionStats{
		TotalOpen:   len(items),
		LastUpdated: time.Now(),
	}
	for _, it := range items {
		if it.UserIsAssignee {
			stats.AssignedToUser++
		}
		if it.UserIsRequestedReviewer {
			stats.ReviewRequests++
		}
	}
	return stats
}
