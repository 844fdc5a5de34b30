package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nardoguy14/pr-helper/internal/client"
	"github.com/nardoguy14/pr-helper/internal/model"
	"github.com/nardoguy14/pr-helper/internal/notify"
	"github.com/nardoguy14/pr-helper/internal/push"
)

type fakeAPI struct {
	mu       sync.Mutex
	user     *model.User
	subs     []*model.Subscription
	items    map[string][]*model.ReviewItem
	refreshs []string
}

func (f *fakeAPI) ListSubscriptions(ctx context.Context) ([]*model.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs, nil
}

func (f *fakeAPI) Subscribe(ctx context.Context, req *client.SubscribeRequest) (*model.Subscription, error) {
	return nil, nil
}

func (f *fakeAPI) Unsubscribe(ctx context.Context, id string) error { return nil }

func (f *fakeAPI) ListItems(ctx context.Context, id string) ([]*model.ReviewItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[id], nil
}

func (f *fakeAPI) RelevantItems(ctx context.Context) ([]*model.ReviewItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.ReviewItem
	for _, items := range f.items {
		for _, it := range items {
			if it.Relevant() {
				out = append(out, it)
			}
		}
	}
	return out, nil
}

func (f *fakeAPI) Refresh(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshs = append(f.refreshs, id)
	return nil
}

func (f *fakeAPI) CurrentUser(ctx context.Context) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.user, nil
}

func (f *fakeAPI) OpenSession(ctx context.Context) (*client.Session, error) {
	return &client.Session{SessionID: "sess-test", StreamURL: "ws://example/stream/sess-test"}, nil
}

func (f *fakeAPI) Health(ctx context.Context) (string, error) { return "ok", nil }

func (f *fakeAPI) Close() error { return nil }

// fakeChannel records registered handlers so tests can inject stream messages.
type fakeChannel struct {
	mu           sync.Mutex
	handlers     map[string][]push.Handler
	state        push.State
	disconnected bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{handlers: make(map[string][]push.Handler), state: push.StateDisconnected}
}

func (f *fakeChannel) OnMessage(msgType string, h push.Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[msgType] = append(f.handlers[msgType], h)
}

func (f *fakeChannel) OnStateChange(fn func(push.State)) func() { return func() {} }

func (f *fakeChannel) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = push.StateConnected
	return nil
}

func (f *fakeChannel) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = true
	f.state = push.StateDisconnected
	return nil
}

func (f *fakeChannel) State() push.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeChannel) inject(msgType string, payload model.Payload) {
	f.mu.Lock()
	hs := append([]push.Handler(nil), f.handlers[msgType]...)
	f.mu.Unlock()
	msg := &model.StreamMessage{Type: msgType, Timestamp: time.Now()}
	for _, h := range hs {
		h(payload, msg)
	}
}

func testItem(subID string, number int, repo string, relevant bool) *model.ReviewItem {
	return &model.ReviewItem{
		SubscriptionID: subID,
		RepoName:       repo,
		Number:         number,
		Title:          "change",
		UserIsAssignee: relevant,
	}
}

func newTestAPI() *fakeAPI {
	subID := model.TeamSubscriptionID("acme", "core")
	return &fakeAPI{
		user: &model.User{ID: 1, Login: "octo"},
		subs: []*model.Subscription{{
			ID:           subID,
			Kind:         model.KindTeam,
			Organization: "acme",
			TeamName:     "core",
			Enabled:      true,
		}},
		items: map[string][]*model.ReviewItem{
			subID: {
				testItem(subID, 1, "lib-a", false),
				testItem(subID, 2, "lib-a", true),
			},
		},
	}
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func startSession(t *testing.T, api *fakeAPI, ch *fakeChannel) *Session {
	t.Helper()
	s := NewSession(api,
		WithChannelFactory(func(string) Channel { return ch }),
		WithIntervals(time.Hour, time.Hour),
	)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSession_StartBuildsCollapsedGraph(t *testing.T) {
	api := newTestAPI()
	ch := newFakeChannel()
	s := startSession(t, api, ch)

	if got := s.User().Login; got != "octo" {
		t.Errorf("user = %q", got)
	}
	if got := s.ConnectionState(); got != push.StateConnected {
		t.Errorf("connection state = %q", got)
	}
	waitFor(t, func() bool {
		nodes, _ := s.Snapshot()
		return len(nodes) == 1
	}, "collapsed root node")
}

func TestSession_ToggleExpansionGrowsAndShrinksGraph(t *testing.T) {
	api := newTestAPI()
	s := startSession(t, api, newFakeChannel())
	rootID := api.subs[0].ID

	s.ToggleExpansion(rootID)
	waitFor(t, func() bool {
		nodes, edges := s.Snapshot()
		return len(nodes) == 2 && len(edges) == 1 // root + lib-a repo node
	}, "expanded team")

	s.ToggleExpansion(model.RepoNodeID(rootID, "lib-a"))
	waitFor(t, func() bool {
		nodes, _ := s.Snapshot()
		return len(nodes) == 4 // + two item nodes
	}, "expanded repository")

	s.ToggleExpansion(rootID)
	waitFor(t, func() bool {
		nodes, edges := s.Snapshot()
		return len(nodes) == 1 && len(edges) == 0
	}, "collapsed subtree")
}

func TestSession_PushUpdateLandsInGraph(t *testing.T) {
	api := newTestAPI()
	ch := newFakeChannel()
	s := startSession(t, api, ch)
	rootID := api.subs[0].ID

	s.ToggleExpansion(rootID)
	s.ToggleExpansion(model.RepoNodeID(rootID, "lib-a"))
	waitFor(t, func() bool {
		nodes, _ := s.Snapshot()
		return len(nodes) == 4
	}, "expanded graph")

	ch.inject(model.MsgPRUpdate, model.PRUpdate{
		SubscriptionID: rootID,
		ChangeType:     model.ChangeNew,
		Item:           testItem(rootID, 3, "lib-a", false),
	})
	waitFor(t, func() bool {
		nodes, _ := s.Snapshot()
		return len(nodes) == 5
	}, "pushed item node")

	ch.inject(model.MsgPRUpdate, model.PRUpdate{
		SubscriptionID: rootID,
		ChangeType:     model.ChangeClosed,
		Item:           testItem(rootID, 1, "lib-a", false),
	})
	waitFor(t, func() bool {
		nodes, _ := s.Snapshot()
		return len(nodes) == 4
	}, "closed item removed")
}

func TestSession_StatsUpdateReplacesCounters(t *testing.T) {
	api := newTestAPI()
	ch := newFakeChannel()
	s := startSession(t, api, ch)
	rootID := api.subs[0].ID

	ch.inject(model.MsgStatsUpdate, model.StatsUpdate{
		SubscriptionID: rootID,
		Stats:          model.SubscriptionStats{TotalOpen: 9, ReviewRequests: 4},
	})
	waitFor(t, func() bool {
		sub := s.Store().Subscription(rootID)
		return sub != nil && sub.Stats.TotalOpen == 9 && sub.Stats.ReviewRequests == 4
	}, "stats update applied")
}

func TestSession_NotificationsFireAfterBaseline(t *testing.T) {
	api := newTestAPI()
	ch := newFakeChannel()

	var mu sync.Mutex
	var events []notify.Event
	s := NewSession(api,
		WithChannelFactory(func(string) Channel { return ch }),
		WithIntervals(time.Hour, time.Hour),
	)
	s.OnNotification(func(ev notify.Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	// Startup relevant snapshot primes the baseline silently.
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	if len(events) != 0 {
		mu.Unlock()
		t.Fatalf("baseline emitted %d events", len(events))
	}
	mu.Unlock()

	// A new relevant item arrives; the next relevant refresh notifies once.
	subID := api.subs[0].ID
	api.mu.Lock()
	api.items[subID] = append(api.items[subID], testItem(subID, 7, "lib-a", true))
	api.mu.Unlock()
	if err := s.ctrl.RefreshRelevant(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 1
	}, "notification event")
	mu.Lock()
	if events[0].Item.Number != 7 || events[0].Reason != notify.ReasonAssigned {
		t.Errorf("event = #%d %q", events[0].Item.Number, events[0].Reason)
	}
	mu.Unlock()
}

func TestSession_RefreshHitsGatewayThenRefetches(t *testing.T) {
	api := newTestAPI()
	s := startSession(t, api, newFakeChannel())
	rootID := api.subs[0].ID

	api.mu.Lock()
	api.items[rootID] = append(api.items[rootID], testItem(rootID, 4, "lib-b", false))
	api.mu.Unlock()

	if err := s.Refresh(context.Background(), rootID); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	api.mu.Lock()
	refreshed := len(api.refreshs) == 1 && api.refreshs[0] == rootID
	api.mu.Unlock()
	if !refreshed {
		t.Error("gateway refresh endpoint was not called")
	}
	waitFor(t, func() bool {
		return len(s.Store().Items(rootID)) == 3
	}, "refetched items")
}

func TestSession_CloseIsIdempotentAndDisconnects(t *testing.T) {
	api := newTestAPI()
	ch := newFakeChannel()
	s := startSession(t, api, ch)

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if !ch.disconnected {
		t.Error("push channel was not disconnected on close")
	}
}
