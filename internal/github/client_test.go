package github

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	gh "github.com/google/go-github/v68/github"

	"github.com/nardoguy14/pr-helper/internal/model"
)

// newTestClient points a client at an httptest server speaking the REST API.
func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := gh.NewClient(nil)
	base, err := url.Parse(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	c.BaseURL = base
	return NewClientFrom(c)
}

func TestClient_CurrentUser(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": 7, "login": "octo", "avatar_url": "https://example/a.png"}`))
	})

	c := newTestClient(t, mux)
	u, err := c.CurrentUser(context.Background())
	if err != nil {
		t.Fatalf("CurrentUser: %v", err)
	}
	if u.ID != 7 || u.Login != "octo" {
		t.Errorf("user = %+v", u)
	}
}

func TestClient_TeamReposSkipsArchived(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/orgs/acme/teams/core/repos", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"name": "lib-a", "archived": false},
			{"name": "lib-old", "archived": true},
			{"name": "lib-b", "archived": false}
		]`))
	})

	c := newTestClient(t, mux)
	repos, err := c.TeamRepos(context.Background(), "acme", "core")
	if err != nil {
		t.Fatalf("TeamRepos: %v", err)
	}
	if len(repos) != 2 || repos[0] != "lib-a" || repos[1] != "lib-b" {
		t.Errorf("repos = %v", repos)
	}
}

func TestClient_OpenItemsDerivesFlagsAndStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/lib-a/pulls", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("state"); got != "open" {
			t.Errorf("state = %q", got)
		}
		w.Write([]byte(`[
			{
				"number": 1,
				"title": "add retries",
				"html_url": "https://example/pr/1",
				"user": {"id": 2, "login": "alice"},
				"requested_reviewers": [{"id": 7, "login": "octo"}],
				"draft": false
			},
			{
				"number": 2,
				"title": "drop legacy path",
				"user": {"id": 3, "login": "bob"},
				"assignees": [{"id": 7, "login": "octo"}]
			}
		]`))
	})
	mux.HandleFunc("/repos/acme/lib-a/pulls/1/reviews", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	mux.HandleFunc("/repos/acme/lib-a/pulls/2/reviews", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"id": 10, "user": {"id": 4, "login": "carol"}, "state": "CHANGES_REQUESTED"}
		]`))
	})

	c := newTestClient(t, mux)
	items, err := c.OpenItems(context.Background(), "acme/core", "acme", "lib-a", "octo")
	if err != nil {
		t.Fatalf("OpenItems: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}

	first := items[0]
	if first.SubscriptionID != "acme/core" || first.RepoName != "lib-a" {
		t.Errorf("item identity = %q %q", first.SubscriptionID, first.RepoName)
	}
	if !first.UserIsRequestedReviewer || first.UserIsAssignee {
		t.Errorf("flags = %+v", first)
	}
	if first.Status != model.StatusNeedsReview {
		t.Errorf("status = %q, want needs_review", first.Status)
	}

	second := items[1]
	if !second.UserIsAssignee {
		t.Error("expected assignee flag on #2")
	}
	if second.Status != model.StatusWaitingForChanges {
		t.Errorf("status = %q, want waiting_for_changes", second.Status)
	}
	if len(second.Reviews) != 1 || second.Reviews[0].State != model.ReviewChangesRequested {
		t.Errorf("reviews = %+v", second.Reviews)
	}
}

func TestReviewStateFrom(t *testing.T) {
	cases := map[string]model.ReviewState{
		"APPROVED":          model.ReviewApproved,
		"approved":          model.ReviewApproved,
		"CHANGES_REQUESTED": model.ReviewChangesRequested,
		"COMMENTED":         model.ReviewCommented,
		"DISMISSED":         model.ReviewDismissed,
		"PENDING":           model.ReviewPending,
		"":                  model.ReviewPending,
	}
	for in, want := range cases {
		if got := reviewStateFrom(in); got != want {
			t.Errorf("reviewStateFrom(%q) = %q, want %q", in, got, want)
		}
	}
}
