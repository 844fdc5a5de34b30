package server

import "net/http"

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests must include a valid
// Authorization: Bearer <token> header. GET /healthz is always exempt, and
// so is the stream endpoint: the unguessable session id issued by
// POST /api/v1/sessions is what admits a websocket client.
func (s *Server) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/subscriptions", s.handleListSubscriptions)
	mux.HandleFunc("POST /api/v1/subscriptions", s.handleCreateSubscription)
	mux.HandleFunc("DELETE /api/v1/subscriptions/{id}", s.handleDeleteSubscription)
	mux.HandleFunc("GET /api/v1/subscriptions/{id}/items", s.handleListItems)
	mux.HandleFunc("POST /api/v1/subscriptions/{id}/refresh", s.handleRefresh)
	mux.HandleFunc("GET /api/v1/users/me", s.handleCurrentUser)
	mux.HandleFunc("GET /api/v1/users/me/relevant-items", s.handleRelevantItems)
	mux.HandleFunc("POST /api/v1/sessions", s.handleOpenSession)
	mux.HandleFunc("GET /stream/{session}", s.hub.ServeStream)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return AuthMiddleware(authToken, mux)
}

// handleHealth handles GET /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
