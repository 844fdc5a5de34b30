// Package server implements the gateway's HTTP surface: the subscription
// REST API and the websocket stream endpoint that pushes item and stats
// updates to connected monitor sessions.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/nardoguy14/pr-helper/internal/events"
	"github.com/nardoguy14/pr-helper/internal/model"
	"github.com/nardoguy14/pr-helper/internal/store"
)

// GitHub is the slice of the GitHub client the server needs: resolving the
// authenticated user and validating subscription targets before persisting.
type GitHub interface {
	CurrentUser(ctx context.Context) (*model.User, error)
	CheckTeam(ctx context.Context, org, team string) error
	CheckRepo(ctx context.Context, owner, repo string) error
}

// ItemSource serves cached review items and runs on-demand polls. It is
// implemented by *poller.Poller.
type ItemSource interface {
	PollSubscription(ctx context.Context, sub *model.Subscription) error
	Items(subscriptionID string) []*model.ReviewItem
	HasPolled(subscriptionID string) bool
	Forget(subscriptionID string)
	RelevantItems() []*model.ReviewItem
	Login() string
}

// Server handles the gateway REST API and owns the websocket hub.
type Server struct {
	store     store.Store
	gh        GitHub
	items     ItemSource
	publisher events.Publisher
	hub       *Hub
	logger    *slog.Logger
}

// NewServer returns a Server backed by the given store, GitHub client,
// item source, and publisher.
func NewServer(st store.Store, gh GitHub, items ItemSource, pub events.Publisher) *Server {
	return &Server{
		store:     st,
		gh:        gh,
		items:     items,
		publisher: pub,
		hub:       NewHub(slog.Default()),
		logger:    slog.Default(),
	}
}

// Hub exposes the websocket hub so the poller's publisher can be teed into it.
func (s *Server) Hub() *Hub { return s.hub }

// publish is best-effort; failures are logged but do not block the caller.
func (s *Server) publish(ctx context.Context, topic string, event any) {
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		s.logger.Warn("failed to publish event", "topic", topic, "error", err)
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
