// Package monitor wires the client-side pieces into one running session: the
// gateway API client feeds the sync controller, the push channel streams
// incremental updates, and the graph and notification engines observe the
// shared caches. All state transitions run on a single event loop goroutine,
// so expansion state, filters, and rebuilds never race.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nardoguy14/pr-helper/internal/client"
	"github.com/nardoguy14/pr-helper/internal/graph"
	"github.com/nardoguy14/pr-helper/internal/model"
	"github.com/nardoguy14/pr-helper/internal/notify"
	"github.com/nardoguy14/pr-helper/internal/push"
	"github.com/nardoguy14/pr-helper/internal/state"
	"github.com/nardoguy14/pr-helper/internal/syncer"
)

// Channel is the push-channel surface the session drives. *push.Client
// implements it; tests substitute scripted channels.
type Channel interface {
	OnMessage(msgType string, h push.Handler)
	OnStateChange(fn func(push.State)) func()
	Connect(ctx context.Context) error
	Disconnect() error
	State() push.State
}

// ChannelFactory builds the push channel for a stream URL.
type ChannelFactory func(streamURL string) Channel

// Option configures a Session.
type Option func(*Session)

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithScheduler overrides the graph phase scheduler.
func WithScheduler(sched graph.Scheduler) Option {
	return func(s *Session) { s.sched = sched }
}

// WithChannelFactory overrides how the push channel is constructed.
func WithChannelFactory(f ChannelFactory) Option {
	return func(s *Session) { s.channelFor = f }
}

// WithIntervals overrides the poll and relevant-refresh intervals.
func WithIntervals(poll, relevant time.Duration) Option {
	return func(s *Session) {
		s.pollInterval = poll
		s.relevantInterval = relevant
	}
}

// Session is one running monitor instance for one authenticated user.
type Session struct {
	api    client.API
	logger *slog.Logger
	sched  graph.Scheduler

	pollInterval     time.Duration
	relevantInterval time.Duration
	channelFor       ChannelFactory

	store    *state.Store
	ctrl     *syncer.Controller
	engine   *graph.Engine
	notifier *notify.Engine
	channel  Channel

	// Owned by the event loop goroutine after Start.
	expansion model.ExpansionState
	filter    model.ItemFilter

	mu   sync.Mutex
	user *model.User

	onGraph        func(graph.Diff)
	onNotification func(notify.Event)
	onState        func(push.State)

	cmds           chan func()
	dirty          chan struct{}
	closed         chan struct{}
	closeOnce      sync.Once
	cancelStoreSub func()
	cancelStateSub func()
	wg             sync.WaitGroup
}

// NewSession creates a session around the given gateway API. Callbacks must
// be registered before Start.
func NewSession(api client.API, opts ...Option) *Session {
	s := &Session{
		api:              api,
		logger:           slog.Default(),
		pollInterval:     30 * time.Second,
		relevantInterval: 2 * time.Minute,
		expansion:        make(model.ExpansionState),
		cmds:             make(chan func(), 64),
		dirty:            make(chan struct{}, 1),
		closed:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.channelFor == nil {
		s.channelFor = func(streamURL string) Channel {
			return push.NewClient(streamURL, push.WithLogger(s.logger))
		}
	}

	s.store = state.New()
	s.notifier = notify.NewEngine()
	s.engine = graph.NewEngine(s.sched, func() {
		// Phase transitions change rendering, not structure; surface them as
		// an empty diff so observers redraw.
		s.post(func() { s.emitGraph(graph.Diff{}) })
	})
	s.ctrl = syncer.NewController(api, s.store,
		syncer.WithLogger(s.logger),
		syncer.WithIntervals(s.pollInterval, s.relevantInterval),
		syncer.WithRelevantObserver(func(items []*model.ReviewItem) {
			s.post(func() { s.emitNotifications(s.notifier.Observe(items)) })
		}),
	)
	return s
}

// OnGraphChange registers the graph observer. An empty diff means positions
// and structure are unchanged but a phase transition occurred.
func (s *Session) OnGraphChange(fn func(graph.Diff)) { s.onGraph = fn }

// OnNotification registers the notification observer.
func (s *Session) OnNotification(fn func(notify.Event)) { s.onNotification = fn }

// OnConnectionState registers the push channel state observer.
func (s *Session) OnConnectionState(fn func(push.State)) { s.onState = fn }

// Start authenticates, loads the initial data set, opens the push channel,
// and starts the polling loops and the event loop. A failed push connection
// is not fatal: polling keeps the caches fresh while the channel reconnects.
func (s *Session) Start(ctx context.Context) error {
	user, err := s.api.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("resolving current user: %w", err)
	}
	s.mu.Lock()
	s.user = user
	s.mu.Unlock()

	if err := s.ctrl.LoadInitial(ctx); err != nil {
		return fmt.Errorf("loading initial state: %w", err)
	}

	sess, err := s.api.OpenSession(ctx)
	if err != nil {
		return fmt.Errorf("opening push session: %w", err)
	}
	s.channel = s.channelFor(sess.StreamURL)
	s.registerChannelHandlers()
	s.cancelStateSub = s.channel.OnStateChange(func(st push.State) {
		if s.onState != nil {
			s.onState(st)
		}
	})
	if err := s.channel.Connect(ctx); err != nil {
		s.logger.Warn("push channel connect failed, polling only for now", "error", err)
	}

	s.cancelStoreSub = s.store.OnChange(func(state.Change) { s.markDirty() })
	s.ctrl.Start()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()

	// Prime relevant notifications and build the first graph.
	if err := s.ctrl.RefreshRelevant(ctx); err != nil {
		s.logger.Warn("initial relevant fetch failed", "error", err)
	}
	s.markDirty()
	return nil
}

// Close tears the session down: the push channel closes cleanly, polling
// stops, pending graph timers are cancelled, and in-flight fetches are
// abandoned without writing into the caches.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.cancelStoreSub != nil {
			s.cancelStoreSub()
		}
		if s.cancelStateSub != nil {
			s.cancelStateSub()
		}
		if s.channel != nil {
			_ = s.channel.Disconnect()
		}
		s.ctrl.Stop()
		s.engine.Stop()
		close(s.closed)
		s.wg.Wait()
	})
	return nil
}

// ToggleExpansion flips the expansion of a graph node. Collapsing also
// forgets the expansion of every descendant.
func (s *Session) ToggleExpansion(nodeID string) {
	s.post(func() {
		if open := s.expansion.Toggle(nodeID); !open {
			s.expansion.CollapseSubtree(nodeID)
		}
		s.rebuild()
	})
}

// SetFilter replaces the item filter and rebuilds the graph.
func (s *Session) SetFilter(f model.ItemFilter) {
	s.post(func() {
		s.filter = f
		s.rebuild()
	})
}

// Refresh asks the gateway to re-poll a subscription upstream, then refetches
// its items.
func (s *Session) Refresh(ctx context.Context, subscriptionID string) error {
	if err := s.api.Refresh(ctx, subscriptionID); err != nil {
		return fmt.Errorf("requesting refresh: %w", err)
	}
	return s.ctrl.RefreshSubscription(ctx, subscriptionID)
}

// ReloadUser re-resolves the authenticated user. A login change resets the
// notification baseline so the new user's pre-existing items stay silent.
func (s *Session) ReloadUser(ctx context.Context) error {
	user, err := s.api.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("resolving current user: %w", err)
	}
	s.mu.Lock()
	changed := s.user == nil || s.user.Login != user.Login
	s.user = user
	s.mu.Unlock()
	if changed {
		s.post(func() { s.notifier.Reset() })
	}
	return nil
}

// User returns the authenticated user resolved at startup.
func (s *Session) User() *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// Snapshot returns copies of the current graph nodes and edges.
func (s *Session) Snapshot() ([]*model.GraphNode, []*model.GraphEdge) {
	return s.engine.Snapshot()
}

// Store exposes the read side of the caches.
func (s *Session) Store() *state.Store { return s.store }

// ConnectionState returns the push channel state.
func (s *Session) ConnectionState() push.State {
	if s.channel == nil {
		return push.StateDisconnected
	}
	return s.channel.State()
}

func (s *Session) registerChannelHandlers() {
	s.channel.OnMessage(model.MsgConnectionEstablished, func(p model.Payload, _ *model.StreamMessage) {
		if est, ok := p.(model.ConnectionEstablished); ok {
			s.logger.Info("push channel established", "session", est.SessionID)
		}
	})
	s.channel.OnMessage(model.MsgPRUpdate, func(p model.Payload, _ *model.StreamMessage) {
		upd, ok := p.(model.PRUpdate)
		if !ok {
			return
		}
		s.post(func() { s.ctrl.ApplyPush(upd) })
	})
	s.channel.OnMessage(model.MsgStatsUpdate, func(p model.Payload, _ *model.StreamMessage) {
		upd, ok := p.(model.StatsUpdate)
		if !ok {
			return
		}
		s.post(func() { s.applyStats(upd) })
	})
	s.channel.OnMessage(model.MsgError, func(p model.Payload, _ *model.StreamMessage) {
		if se, ok := p.(model.StreamError); ok {
			s.logger.Warn("push channel error", "error_type", se.ErrorType, "message", se.Message)
		}
	})
}

func (s *Session) applyStats(upd model.StatsUpdate) {
	sub := s.store.Subscription(upd.SubscriptionID)
	if sub == nil {
		return
	}
	cp := *sub
	cp.Stats = upd.Stats
	s.store.UpsertSubscription(&cp)
}

// post schedules fn on the event loop; after Close it is a no-op.
func (s *Session) post(fn func()) {
	select {
	case s.cmds <- fn:
	case <-s.closed:
	}
}

// markDirty coalesces rebuild requests.
func (s *Session) markDirty() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

func (s *Session) loop() {
	for {
		select {
		case <-s.closed:
			return
		case fn := <-s.cmds:
			fn()
		case <-s.dirty:
			s.rebuild()
		}
	}
}

// rebuild reconciles the graph against the caches. Runs on the event loop.
func (s *Session) rebuild() {
	diff := s.engine.Rebuild(graph.Inputs{
		Subscriptions: s.store.Subscriptions(),
		ItemsOf:       s.store.Items,
		Expansion:     s.expansion,
		Filter:        s.filter,
	})
	if !diff.Empty() {
		s.emitGraph(diff)
	}
}

func (s *Session) emitGraph(diff graph.Diff) {
	if s.onGraph != nil {
		s.onGraph(diff)
	}
}

func (s *Session) emitNotifications(events []notify.Event) {
	if s.onNotification == nil {
		return
	}
	for _, ev := range events {
		s.onNotification(ev)
	}
}
