package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/mcdev12/clockd/go/internal/clock"
	"github.com/mcdev12/clockd/go/internal/game"
	"github.com/rs/zerolog/log"
)

// GameService is what the HTTP surface needs from the game registry
type GameService interface {
	CreateGame(ctx context.Context, minutes float64) (*game.Session, error)
	Get(id uuid.UUID) (*game.Session, error)
	List() []*game.Session
	State(id uuid.UUID) (game.State, error)
	Press(ctx context.Context, id uuid.UUID, side clock.Side) error
	Pause(ctx context.Context, id uuid.UUID) error
	Reset(ctx context.Context, id uuid.UUID) error
	Remove(ctx context.Context, id uuid.UUID) error
}

// CreateGameRequest is the body of POST /api/games. Minutes may be omitted to
// use the server default.
type CreateGameRequest struct {
	Minutes float64 `json:"minutes"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// GameHandler serves the JSON API that drives game clocks
type GameHandler struct {
	games GameService
}

// NewGameHandler creates a new game handler
func NewGameHandler(games GameService) *GameHandler {
	return &GameHandler{games: games}
}

// RegisterRoutes registers the game API routes with an HTTP mux
func (h *GameHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/games", h.HandleCreateGame)
	mux.HandleFunc("GET /api/games", h.HandleListGames)
	mux.HandleFunc("GET /api/games/{id}", h.HandleGetGame)
	mux.HandleFunc("DELETE /api/games/{id}", h.HandleRemoveGame)
	mux.HandleFunc("POST /api/games/{id}/start", h.HandleStart)
	mux.HandleFunc("POST /api/games/{id}/stop", h.HandleStop)
	mux.HandleFunc("POST /api/games/{id}/reset", h.HandleReset)
}

// HandleCreateGame handles POST /api/games
func (h *GameHandler) HandleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req CreateGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.games.CreateGame(r.Context(), req.Minutes)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, session.State())
}

// HandleListGames handles GET /api/games
func (h *GameHandler) HandleListGames(w http.ResponseWriter, r *http.Request) {
	sessions := h.games.List()
	states := make([]game.State, 0, len(sessions))
	for _, session := range sessions {
		states = append(states, session.State())
	}
	writeJSON(w, http.StatusOK, states)
}

// HandleGetGame handles GET /api/games/{id}
func (h *GameHandler) HandleGetGame(w http.ResponseWriter, r *http.Request) {
	id, ok := parseGameID(w, r.PathValue("id"))
	if !ok {
		return
	}
	h.writeState(w, id)
}

// HandleRemoveGame handles DELETE /api/games/{id}
func (h *GameHandler) HandleRemoveGame(w http.ResponseWriter, r *http.Request) {
	id, ok := parseGameID(w, r.PathValue("id"))
	if !ok {
		return
	}
	if err := h.games.Remove(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleStart handles POST /api/games/{id}/start?side=white|black
func (h *GameHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	id, ok := parseGameID(w, r.PathValue("id"))
	if !ok {
		return
	}

	side, err := clock.ParseSide(r.URL.Query().Get("side"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "side must be white or black")
		return
	}

	if err := h.games.Press(r.Context(), id, side); err != nil {
		writeServiceError(w, err)
		return
	}
	h.writeState(w, id)
}

// HandleStop handles POST /api/games/{id}/stop
func (h *GameHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	id, ok := parseGameID(w, r.PathValue("id"))
	if !ok {
		return
	}
	if err := h.games.Pause(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	h.writeState(w, id)
}

// HandleReset handles POST /api/games/{id}/reset
func (h *GameHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	id, ok := parseGameID(w, r.PathValue("id"))
	if !ok {
		return
	}
	if err := h.games.Reset(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	h.writeState(w, id)
}

func (h *GameHandler) writeState(w http.ResponseWriter, id uuid.UUID) {
	state, err := h.games.State(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func parseGameID(w http.ResponseWriter, raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid game ID format")
		return uuid.Nil, false
	}
	return id, true
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrGameNotFound):
		writeError(w, http.StatusNotFound, "game not found")
	case errors.Is(err, clock.ErrInvalidSide), errors.Is(err, clock.ErrInvalidAllotment):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Error().Err(err).Msg("game request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
