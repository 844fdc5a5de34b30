package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestSubscription_CanonicalID(t *testing.T) {
	team := &Subscription{Kind: KindTeam, Organization: "acme", TeamName: "core"}
	if got := team.CanonicalID(); got != "acme/core" {
		t.Errorf("team id = %q, want %q", got, "acme/core")
	}

	repo := &Subscription{Kind: KindRepository, Owner: "acme", Repo: "lib-a"}
	if got := repo.CanonicalID(); got != "acme/lib-a" {
		t.Errorf("repo id = %q, want %q", got, "acme/lib-a")
	}

	bare := &Subscription{Kind: KindRepository, Repo: "lib-a"}
	if got := bare.CanonicalID(); got != "lib-a" {
		t.Errorf("bare repo id = %q, want %q", got, "lib-a")
	}
}

func TestSubscription_Validate(t *testing.T) {
	cases := []struct {
		name    string
		sub     Subscription
		wantErr bool
	}{
		{"valid team", Subscription{Kind: KindTeam, Organization: "acme", TeamName: "core"}, false},
		{"team missing org", Subscription{Kind: KindTeam, TeamName: "core"}, true},
		{"valid repo", Subscription{Kind: KindRepository, Repo: "lib-a"}, false},
		{"repo missing name", Subscription{Kind: KindRepository}, true},
		{"unknown kind", Subscription{Kind: "group"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.sub.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestNodeIDs_ParentChain(t *testing.T) {
	team := TeamNodeID("acme", "core")
	repo := RepoNodeID(team, "lib-a")
	item := ItemNodeID(repo, 7)

	if repo != "acme/core#lib-a" {
		t.Errorf("repo node id = %q", repo)
	}
	if item != "acme/core#lib-a#item:7" {
		t.Errorf("item node id = %q", item)
	}
	if !DescendantOf(item, team) {
		t.Error("item should be a descendant of the team node")
	}
	if !DescendantOf(item, repo) {
		t.Error("item should be a descendant of the repo node")
	}
	if DescendantOf(team, item) {
		t.Error("team is not a descendant of the item")
	}
	// A root repo sharing the team id prefix without the separator is not
	// a descendant.
	if DescendantOf("acme/core-extras", team) {
		t.Error("sibling root with shared prefix must not match")
	}
}

func TestExpansionState_CollapseSubtree(t *testing.T) {
	e := ExpansionState{}
	e.Toggle("acme/core")
	e.Toggle("acme/core#lib-a")
	e.Toggle("other/team")

	e.CollapseSubtree("acme/core")

	if e.Expanded("acme/core") || e.Expanded("acme/core#lib-a") {
		t.Error("collapse must remove the node and its descendants")
	}
	if !e.Expanded("other/team") {
		t.Error("collapse must not disturb unrelated branches")
	}
}

func TestReviewItem_DeriveStatus(t *testing.T) {
	submitted := time.Now()
	cases := []struct {
		name string
		item ReviewItem
		want ItemStatus
	}{
		{
			name: "user already reviewed",
			item: ReviewItem{UserHasReviewed: true, UserIsRequestedReviewer: true},
			want: StatusReviewed,
		},
		{
			name: "requested reviewer with changes outstanding",
			item: ReviewItem{
				UserIsRequestedReviewer: true,
				Reviews: []Review{
					{ID: 1, User: User{ID: 9, Login: "dana"}, State: ReviewChangesRequested, SubmittedAt: &submitted},
				},
			},
			want: StatusWaitingForChanges,
		},
		{
			name: "requested reviewer, no blocking reviews",
			item: ReviewItem{UserIsRequestedReviewer: true},
			want: StatusNeedsReview,
		},
		{
			name: "not relevant, fully approved",
			item: ReviewItem{
				Reviews: []Review{
					{ID: 1, User: User{ID: 9, Login: "dana"}, State: ReviewApproved},
				},
			},
			want: StatusReadyToMerge,
		},
		{
			name: "not relevant, no reviews",
			item: ReviewItem{},
			want: StatusOpen,
		},
		{
			name: "only latest review per reviewer counts",
			item: ReviewItem{
				UserIsAssignee: true,
				Reviews: []Review{
					{ID: 1, User: User{ID: 9, Login: "dana"}, State: ReviewChangesRequested},
					{ID: 2, User: User{ID: 9, Login: "dana"}, State: ReviewApproved},
				},
			},
			want: StatusNeedsReview,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.item.DeriveStatus(); got != tc.want {
				t.Errorf("DeriveStatus() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestReviewItem_DeriveUserFlags(t *testing.T) {
	it := ReviewItem{
		Assignees:          []User{{ID: 1, Login: "mira"}},
		RequestedReviewers: []User{{ID: 2, Login: "joss"}},
		Reviews:            []Review{{ID: 10, User: User{ID: 3, Login: "pat"}, State: ReviewApproved}},
	}

	it.DeriveUserFlags("mira")
	if !it.UserIsAssignee || it.UserIsRequestedReviewer || it.UserHasReviewed {
		t.Errorf("mira flags = %v/%v/%v", it.UserIsAssignee, it.UserIsRequestedReviewer, it.UserHasReviewed)
	}

	it.DeriveUserFlags("pat")
	if it.UserIsAssignee || it.UserIsRequestedReviewer || !it.UserHasReviewed {
		t.Errorf("pat flags = %v/%v/%v", it.UserIsAssignee, it.UserIsRequestedReviewer, it.UserHasReviewed)
	}
}

func TestReviewItem_Equal(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	base := func() *ReviewItem {
		return &ReviewItem{
			SubscriptionID: "acme/lib-a",
			Number:         7,
			Title:          "fix flaky retry",
			Author:         User{ID: 1, Login: "mira"},
			Assignees:      []User{{ID: 2, Login: "joss"}},
			CreatedAt:      now,
			UpdatedAt:      now,
			Status:         StatusNeedsReview,
		}
	}

	a, b := base(), base()
	if !a.Equal(b) {
		t.Error("identical items must compare equal")
	}

	b.Title = "fix flaky retry, again"
	if a.Equal(b) {
		t.Error("changed title must not compare equal")
	}

	c := base()
	c.Assignees = append(c.Assignees, User{ID: 3, Login: "pat"})
	if a.Equal(c) {
		t.Error("changed assignees must not compare equal")
	}

	if a.Equal(nil) {
		t.Error("nil never equals a non-nil item")
	}
}

func TestItemFilter_Matches(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	earlier := now.Add(-48 * time.Hour)
	it := &ReviewItem{Author: User{Login: "mira"}, UpdatedAt: now}

	if !(ItemFilter{}).Matches(it) {
		t.Error("zero filter must match everything")
	}
	if !(ItemFilter{Since: &earlier}).Matches(it) {
		t.Error("item updated after Since must match")
	}
	if (ItemFilter{Until: &earlier}).Matches(it) {
		t.Error("item updated after Until must not match")
	}
	if !(ItemFilter{Authors: []string{"joss", "mira"}}).Matches(it) {
		t.Error("author in set must match")
	}
	if (ItemFilter{Authors: []string{"joss"}}).Matches(it) {
		t.Error("author outside set must not match")
	}
}

func TestDecodePayload(t *testing.T) {
	pr := &StreamMessage{
		Type: MsgPRUpdate,
		Data: json.RawMessage(`{"subscription_id":"acme/lib-a","change_type":"new","item":{"subscription_id":"acme/lib-a","number":7}}`),
	}
	p, err := DecodePayload(pr)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	upd, ok := p.(PRUpdate)
	if !ok {
		t.Fatalf("payload type = %T, want PRUpdate", p)
	}
	if upd.SubscriptionID != "acme/lib-a" || upd.ChangeType != ChangeNew || upd.Item.Number != 7 {
		t.Errorf("unexpected payload: %+v", upd)
	}

	unknown := &StreamMessage{Type: "totally_new", Data: json.RawMessage(`{}`)}
	p, err = DecodePayload(unknown)
	if err != nil {
		t.Fatalf("unknown type must not error: %v", err)
	}
	if d, ok := p.(Dropped); !ok || d.Type != "totally_new" {
		t.Errorf("payload = %#v, want Dropped", p)
	}

	malformed := &StreamMessage{Type: MsgPRUpdate, Data: json.RawMessage(`{"change_type":`)}
	if _, err := DecodePayload(malformed); err == nil {
		t.Error("malformed recognized payload must error")
	}
}
