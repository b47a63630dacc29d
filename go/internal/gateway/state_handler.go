package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mcdev12/planningpoker/go/internal/models"
	"github.com/mcdev12/planningpoker/go/internal/poker"
	"github.com/rs/zerolog/log"
)

// StateProvider defines how the state handler reads sessions
type StateProvider interface {
	Snapshot(ctx context.Context, sessionID string) (models.Snapshot, error)
}

// StateHandler serves the public view of a session over HTTP
type StateHandler struct {
	stateProvider StateProvider
	scale         poker.Scale
}

// NewStateHandler creates a new state handler
func NewStateHandler(provider StateProvider, scale poker.Scale) *StateHandler {
	if len(scale) == 0 {
		scale = poker.DefaultScale
	}
	return &StateHandler{
		stateProvider: provider,
		scale:         scale,
	}
}

// HandleGetSessionState handles GET /api/sessions/{id}/state. Votes stay
// masked until revealed.
func (h *StateHandler) HandleGetSessionState(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if !validSessionID(sessionID) {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	}

	snap, err := h.stateProvider.Snapshot(r.Context(), sessionID)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("failed to get session state")
		http.Error(w, "Failed to get session state", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(poker.RenderView(snap, nil, h.scale)); err != nil {
		log.Error().Err(err).Msg("failed to encode session state response")
	}
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sessions/{id}/state", h.HandleGetSessionState)
}
