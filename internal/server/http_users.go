package server

import (
	"net/http"

	"github.com/nardoguy14/pr-helper/internal/idgen"
	"github.com/nardoguy14/pr-helper/internal/model"
)

// sessionResponse is the payload of POST /api/v1/sessions.
type sessionResponse struct {
	SessionID string `json:"session_id"`
	StreamURL string `json:"stream_url"`
}

// handleCurrentUser handles GET /api/v1/users/me.
func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.gh.CurrentUser(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "resolving authenticated user: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleRelevantItems handles GET /api/v1/users/me/relevant-items.
func (s *Server) handleRelevantItems(w http.ResponseWriter, r *http.Request) {
	items := s.items.RelevantItems()
	if items == nil {
		items = []*model.ReviewItem{}
	}
	writeJSON(w, http.StatusOK, listItemsResponse{Items: items, Total: len(items)})
}

// handleOpenSession handles POST /api/v1/sessions. The returned session id
// admits one websocket connection at a time on the stream endpoint; the
// stream URL is absolute so clients can dial it as returned.
func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	id, err := idgen.Generate()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "generating session id: "+err.Error())
		return
	}
	s.hub.OpenSession(id)

	scheme := "ws"
	if r.TLS != nil {
		scheme = "wss"
	}
	writeJSON(w, http.StatusCreated, sessionResponse{
		SessionID: id,
		StreamURL: scheme + "://" + r.Host + "/stream/" + id,
	})
}
