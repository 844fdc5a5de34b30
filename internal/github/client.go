// Package github fetches review items from the GitHub REST API and converts
// them into the model types. All user-relative flags and the derived status
// are computed here, at the edge, so the rest of the system never needs the
// raw review history.
package github

import (
	"context"
	"fmt"
	"strings"

	gh "github.com/google/go-github/v68/github"

	"github.com/nardoguy14/pr-helper/internal/model"
)

const perPage = 100

// Client wraps the GitHub REST API.
type Client struct {
	gh *gh.Client
}

// NewClient creates an authenticated client. apiURL overrides the API base
// for GitHub Enterprise; pass "" or the public API URL for github.com.
func NewClient(token, apiURL string) (*Client, error) {
	c := gh.NewClient(nil).WithAuthToken(token)
	if apiURL != "" && apiURL != "https://api.github.com" {
		var err error
		c, err = c.WithEnterpriseURLs(apiURL, apiURL)
		if err != nil {
			return nil, fmt.Errorf("configuring enterprise API URL: %w", err)
		}
	}
	return &Client{gh: c}, nil
}

// NewClientFrom wraps an existing go-github client. Tests use it to point at
// an httptest server.
func NewClientFrom(c *gh.Client) *Client {
	return &Client{gh: c}
}

// CurrentUser returns the authenticated user.
func (c *Client) CurrentUser(ctx context.Context) (*model.User, error) {
	u, _, err := c.gh.Users.Get(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("fetching authenticated user: %w", err)
	}
	user := userFrom(u)
	return &user, nil
}

// CheckRepo verifies that a repository exists and is accessible.
func (c *Client) CheckRepo(ctx context.Context, owner, repo string) error {
	if _, _, err := c.gh.Repositories.Get(ctx, owner, repo); err != nil {
		return fmt.Errorf("repository %s/%s not accessible: %w", owner, repo, err)
	}
	return nil
}

// CheckTeam verifies that a team exists and is accessible.
func (c *Client) CheckTeam(ctx context.Context, org, team string) error {
	if _, _, err := c.gh.Teams.GetTeamBySlug(ctx, org, team); err != nil {
		return fmt.Errorf("team %s/%s not accessible: %w", org, team, err)
	}
	return nil
}

// TeamRepos lists the repository names a team has access to.
func (c *Client) TeamRepos(ctx context.Context, org, team string) ([]string, error) {
	var names []string
	opts := &gh.ListOptions{PerPage: perPage}
	for {
		repos, resp, err := c.gh.Teams.ListTeamReposBySlug(ctx, org, team, opts)
		if err != nil {
			return nil, fmt.Errorf("listing repos for team %s/%s: %w", org, team, err)
		}
		for _, r := range repos {
			if r.GetArchived() {
				continue
			}
			names = append(names, r.GetName())
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return names, nil
}

// OpenItems fetches the open pull requests of one repository together with
// their reviews, converted to review items relative to the given login.
// subscriptionID is stamped onto every item.
func (c *Client) OpenItems(ctx context.Context, subscriptionID, owner, repo, login string) ([]*model.ReviewItem, error) {
	var items []*model.ReviewItem
	opts := &gh.PullRequestListOptions{
		State:       "open",
		Sort:        "created",
		Direction:   "asc",
		ListOptions: gh.ListOptions{PerPage: perPage},
	}
	for {
		prs, resp, err := c.gh.PullRequests.List(ctx, owner, repo, opts)
		if err != nil {
			return nil, fmt.Errorf("listing pull requests for %s/%s: %w", owner, repo, err)
		}
		for _, pr := range prs {
			reviews, err := c.listReviews(ctx, owner, repo, pr.GetNumber())
			if err != nil {
				return nil, err
			}
			items = append(items, itemFrom(subscriptionID, repo, pr, reviews, login))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return items, nil
}

func (c *Client) listReviews(ctx context.Context, owner, repo string, number int) ([]model.Review, error) {
	var reviews []model.Review
	opts := &gh.ListOptions{PerPage: perPage}
	for {
		rs, resp, err := c.gh.PullRequests.ListReviews(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("listing reviews for %s/%s#%d: %w", owner, repo, number, err)
		}
		for _, r := range rs {
			rv := model.Review{
				ID:    r.GetID(),
				User:  userFrom(r.GetUser()),
				State: reviewStateFrom(r.GetState()),
			}
			if t := r.GetSubmittedAt(); !t.IsZero() {
				submitted := t.Time
				rv.SubmittedAt = &submitted
			}
			reviews = append(reviews, rv)
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return reviews, nil
}

// itemFrom converts a pull request plus its reviews into a review item with
// flags and status derived for the given login.
func itemFrom(subscriptionID, repo string, pr *gh.PullRequest, reviews []model.Review, login string) *model.ReviewItem {
	it := &model.ReviewItem{
		SubscriptionID: subscriptionID,
		RepoName:       repo,
		Number:         pr.GetNumber(),
		Title:          pr.GetTitle(),
		HTMLURL:        pr.GetHTMLURL(),
		Author:         userFrom(pr.GetUser()),
		Reviews:        reviews,
		CreatedAt:      pr.GetCreatedAt().Time,
		UpdatedAt:      pr.GetUpdatedAt().Time,
		Draft:          pr.GetDraft(),
	}
	for _, u := range pr.Assignees {
		it.Assignees = append(it.Assignees, userFrom(u))
	}
	for _, u := range pr.RequestedReviewers {
		it.RequestedReviewers = append(it.RequestedReviewers, userFrom(u))
	}
	if t := pr.GetClosedAt(); !t.IsZero() {
		closed := t.Time
		it.ClosedAt = &closed
	}
	it.DeriveUserFlags(login)
	it.Status = it.DeriveStatus()
	return it
}

func userFrom(u *gh.User) model.User {
	if u == nil {
		return model.User{Login: "unknown"}
	}
	return model.User{
		ID:        u.GetID(),
		Login:     u.GetLogin(),
		AvatarURL: u.GetAvatarURL(),
		HTMLURL:   u.GetHTMLURL(),
	}
}

// reviewStateFrom maps the API's uppercase review states onto the model enum.
func reviewStateFrom(s string) model.ReviewState {
	switch strings.ToUpper(s) {
	case "APPROVED":
		return model.ReviewApproved
	case "CHANGES_REQUESTED":
		return model.ReviewChangesRequested
	case "COMMENTED":
		return model.ReviewCommented
	case "DISMISSED":
		return model.ReviewDismissed
	default:
		return model.ReviewPending
	}
}
