package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/nardoguy14/pr-helper/internal/events"
	"github.com/nardoguy14/pr-helper/internal/model"
	"github.com/nardoguy14/pr-helper/internal/store"
)

// subscribeRequest is the body of POST /api/v1/subscriptions.
type subscribeRequest struct {
	Kind         model.SubscriptionKind `json:"kind"`
	Organization string                 `json:"organization"`
	TeamName     string                 `json:"team_name"`
	Owner        string                 `json:"owner"`
	Repo         string                 `json:"repo"`
}

// listSubscriptionsResponse is the payload of GET /api/v1/subscriptions.
type listSubscriptionsResponse struct {
	Subscriptions []*model.Subscription `json:"subscriptions"`
	Total         int                   `json:"total"`
}

// handleListSubscriptions handles GET /api/v1/subscriptions.
func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.store.ListSubscriptions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list subscriptions: "+err.Error())
		return
	}
	if subs == nil {
		subs = []*model.Subscription{}
	}
	writeJSON(w, http.StatusOK, listSubscriptionsResponse{Subscriptions: subs, Total: len(subs)})
}

// handleCreateSubscription handles POST /api/v1/subscriptions. The target is
// validated against GitHub before it is persisted, and the first poll runs
// synchronously so the items endpoint has data immediately.
func (s *Server) handleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	now := time.Now().UTC()
	sub := &model.Subscription{
		Kind:         req.Kind,
		Organization: req.Organization,
		TeamName:     req.TeamName,
		Owner:        req.Owner,
		Repo:         req.Repo,
		Enabled:      true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := sub.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sub.ID = sub.CanonicalID()

	ctx := r.Context()
	if _, err := s.store.GetSubscription(ctx, sub.ID); err == nil {
		writeError(w, http.StatusConflict, "already subscribed to "+sub.ID)
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "failed to check subscription: "+err.Error())
		return
	}

	var checkErr error
	if sub.Kind == model.KindTeam {
		checkErr = s.gh.CheckTeam(ctx, sub.Organization, sub.TeamName)
	} else {
		checkErr = s.gh.CheckRepo(ctx, sub.Owner, sub.Repo)
	}
	if checkErr != nil {
		writeError(w, http.StatusUnprocessableEntity, "github rejected target: "+checkErr.Error())
		return
	}

	if err := s.store.CreateSubscription(ctx, sub); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create subscription: "+err.Error())
		return
	}

	if err := s.items.PollSubscription(ctx, sub); err != nil {
		s.logger.Warn("initial poll failed", "subscription", sub.ID, "error", err)
	}
	s.publish(ctx, events.TopicSubscriptionCreated, events.SubscriptionCreated{Subscription: sub})

	writeJSON(w, http.StatusCreated, sub)
}

// handleDeleteSubscription handles DELETE /api/v1/subscriptions/{id}.
func (s *Server) handleDeleteSubscription(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx := r.Context()

	if err := s.store.DeleteSubscription(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "subscription not found: "+id)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete subscription: "+err.Error())
		return
	}

	s.items.Forget(id)
	s.publish(ctx, events.TopicSubscriptionDeleted, events.SubscriptionDeleted{SubscriptionID: id})

	w.WriteHeader(http.StatusNoContent)
}
