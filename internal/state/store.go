// Package state holds the client-side caches: the subscription store and the
// per-subscription item cache. The store is an explicit object with a
// subscribe/notify interface; every mutation funnels through the data sync
// controller (single-writer), while the graph and notification engines are
// read-only observers.
package state

import (
	"sort"
	"sync"

	"github.com/nardoguy14/pr-helper/internal/model"
)

// ChangeKind classifies a store notification.
type ChangeKind string

const (
	ChangeSubscriptions ChangeKind = "subscriptions"
	ChangeItems         ChangeKind = "items"
)

// Change describes one completed store mutation. Observers never see the
// store mid-update; notifications fire after the mutation is committed.
type Change struct {
	Kind           ChangeKind
	SubscriptionID string // set for item changes
}

// Store is the authoritative in-memory cache of subscriptions and review
// items. No durable state: it is rebuilt from the server on process start.
type Store struct {
	mu        sync.RWMutex
	subs      map[string]*model.Subscription
	order     []string // subscription ids in arrival order (drives root layout)
	items     map[string][]*model.ReviewItem
	listeners map[int]func(Change)
	nextID    int
}

// New returns an empty store.
func New() *Store {
	return &Store{
		subs:      make(map[string]*model.Subscription),
		items:     make(map[string][]*model.ReviewItem),
		listeners: make(map[int]func(Change)),
	}
}

// OnChange registers a listener invoked after every mutation. The returned
// cancel function removes the listener.
func (s *Store) OnChange(fn func(Change)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store) notify(c Change) {
	s.mu.RLock()
	fns := make([]func(Change), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(c)
	}
}

// SetSubscriptions replaces the full subscription set, keeping the given
// order. Items cached for subscriptions that disappeared are dropped.
func (s *Store) SetSubscriptions(subs []*model.Subscription) {
	s.mu.Lock()
	s.subs = make(map[string]*model.Subscription, len(subs))
	s.order = s.order[:0]
	for _, sub := range subs {
		if _, dup := s.subs[sub.ID]; dup {
			continue
		}
		s.subs[sub.ID] = sub
		s.order = append(s.order, sub.ID)
	}
	for id := range s.items {
		if _, ok := s.subs[id]; !ok {
			delete(s.items, id)
		}
	}
	s.mu.Unlock()
	s.notify(Change{Kind: ChangeSubscriptions})
}

// UpsertSubscription adds or replaces one subscription, appending new ids to
// the ordering.
func (s *Store) UpsertSubscription(sub *model.Subscription) {
	s.mu.Lock()
	if _, ok := s.subs[sub.ID]; !ok {
		s.order = append(s.order, sub.ID)
	}
	s.subs[sub.ID] = sub
	s.mu.Unlock()
	s.notify(Change{Kind: ChangeSubscriptions})
}

// RemoveSubscription drops a subscription and its cached items. Removing an
// unknown id is a no-op.
func (s *Store) RemoveSubscription(id string) {
	s.mu.Lock()
	if _, ok := s.subs[id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.subs, id)
	delete(s.items, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	s.notify(Change{Kind: ChangeSubscriptions})
}

// Subscription returns the subscription with the given id, or nil.
func (s *Store) Subscription(id string) *model.Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subs[id]
}

// Subscriptions returns the current subscriptions in arrival order.
func (s *Store) Subscriptions() []*model.Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Subscription, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.subs[id])
	}
	return out
}

// SetItems replaces the item list for a subscription. The caller (the sync
// controller) is responsible for merging against the previous list first so
// unchanged records keep referential identity. Setting items for an unknown
// subscription is a no-op: the fetch may have raced with an unsubscribe.
func (s *Store) SetItems(subscriptionID string, items []*model.ReviewItem) {
	s.mu.Lock()
	if _, ok := s.subs[subscriptionID]; !ok {
		s.mu.Unlock()
		return
	}
	sorted := make([]*model.ReviewItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Number < sorted[j].Number })
	s.items[subscriptionID] = sorted
	s.mu.Unlock()
	s.notify(Change{Kind: ChangeItems, SubscriptionID: subscriptionID})
}

// Items returns the cached items for a subscription, ordered by number.
func (s *Store) Items(subscriptionID string) []*model.ReviewItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cached := s.items[subscriptionID]
	out := make([]*model.ReviewItem, len(cached))
	copy(out, cached)
	return out
}

// RelevantItems returns every cached item the user is assigned to or
// requested to review, across all subscriptions, in subscription order.
func (s *Store) RelevantItems() []*model.ReviewItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.ReviewItem
	for _, id := range s.order {
		for _, it := range s.items[id] {
			if it.Relevant() {
				out = append(out, it)
			}
		}
	}
	return out
}
