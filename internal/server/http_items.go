package server

import (
	"errors"
	"net/http"

	"github.com/nardoguy14/pr-helper/internal/model"
	"github.com/nardoguy14/pr-helper/internal/store"
)

// listItemsResponse is the payload of the item listing endpoints.
type listItemsResponse struct {
	Items []*model.ReviewItem `json:"items"`
	Total int                 `json:"total"`
}

// handleListItems handles GET /api/v1/subscriptions/{id}/items. Items come
// from the poll cache; a subscription that has never been polled is polled
// synchronously first so the first read is never empty by accident.
func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx := r.Context()

	sub, err := s.store.GetSubscription(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "subscription not found: "+id)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get subscription: "+err.Error())
		return
	}

	if !s.items.HasPolled(id) {
		if err := s.items.PollSubscription(ctx, sub); err != nil {
			writeError(w, http.StatusBadGateway, "fetching items from github: "+err.Error())
			return
		}
	}

	items := s.items.Items(id)
	if items == nil {
		items = []*model.ReviewItem{}
	}
	writeJSON(w, http.StatusOK, listItemsResponse{Items: items, Total: len(items)})
}

// handleRefresh handles POST /api/v1/subscriptions/{id}/refresh: a
// synchronous out-of-cycle poll of one subscription.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx := r.Context()

	sub, err := s.store.GetSubscription(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "subscription not found: "+id)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get subscription: "+err.Error())
		return
	}

	if err := s.items.PollSubscription(ctx, sub); err != nil {
		writeError(w, http.StatusBadGateway, "refreshing from github: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}
