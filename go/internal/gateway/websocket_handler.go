package gateway

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/clockd/go/internal/game"
	"github.com/rs/zerolog/log"
)

// SessionLookup finds the game a watcher wants to follow
type SessionLookup interface {
	Get(id uuid.UUID) (*game.Session, error)
}

// WebSocketHandler handles WebSocket upgrade requests for game clock streams
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	games             SessionLookup
	clock             clockwork.Clock
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager, games SessionLookup, clk clockwork.Clock) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		games:             games,
		clock:             clk,
	}
}

// HandleGameConnection handles GET /ws/game?game_id=...
func (h *WebSocketHandler) HandleGameConnection(w http.ResponseWriter, r *http.Request) {
	gameIDStr := r.URL.Query().Get("game_id")
	if gameIDStr == "" {
		http.Error(w, "game_id is required", http.StatusBadRequest)
		return
	}

	gameID, err := uuid.Parse(gameIDStr)
	if err != nil {
		http.Error(w, "invalid game_id format", http.StatusBadRequest)
		return
	}

	session, err := h.games.Get(gameID)
	if errors.Is(err, game.ErrGameNotFound) {
		http.Error(w, "game not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "failed to load game", http.StatusInternalServerError)
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = "anonymous"
	}

	// On failure the upgrader has already written the HTTP error response.
	conn, err := h.connectionManager.UpgradeConnection(w, r, userID, gameID)
	if err != nil {
		log.Error().
			Err(err).
			Str("game_id", gameID.String()).
			Str("user_id", userID).
			Msg("failed to upgrade WebSocket connection")
		return
	}

	// The snapshot is taken after registration so no later change is missed.
	initial, err := stateEvent(session, h.clock.Now())
	if err != nil {
		log.Error().Err(err).Str("game_id", gameID.String()).Msg("failed to build initial state")
		return
	}
	h.connectionManager.SendToConnection(conn, initial)
}

// HandleConnectionStats handles GET /ws/stats
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.connectionManager.GetConnectionStats())
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/game", h.HandleGameConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}
