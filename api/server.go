package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/wricardo/mcp-training/solarfarm/game/engine"
	"github.com/wricardo/mcp-training/solarfarm/game/service"
	"github.com/wricardo/mcp-training/solarfarm/transport/websocket"
)

// Server represents the REST API server
type Server struct {
	service service.SimService
	hub     *websocket.Hub
	router  *mux.Router
}

// NewServer creates a new API server
func NewServer(simService service.SimService, hub *websocket.Hub) *Server {
	s := &Server{
		service: simService,
		hub:     hub,
		router:  mux.NewRouter(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Session management
	api.HandleFunc("/sessions", s.handleCreateSession).Methods("POST")
	api.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods("DELETE")

	// Simulation
	api.HandleFunc("/sessions/{id}/state", s.handleGetState).Methods("GET")
	api.HandleFunc("/sessions/{id}/observation", s.handleObserve).Methods("GET")
	api.HandleFunc("/sessions/{id}/step", s.handleStep).Methods("POST")
	api.HandleFunc("/sessions/{id}/autoplay", s.handleAutoplay).Methods("POST")
	api.HandleFunc("/sessions/{id}/reset", s.handleReset).Methods("POST")
	api.HandleFunc("/sessions/{id}/history", s.handleGetHistory).Methods("GET")

	// Editing
	api.HandleFunc("/sessions/{id}/robots", s.handleAddRobot).Methods("POST")
	api.HandleFunc("/sessions/{id}/edit", s.handleEdit).Methods("POST")
	api.HandleFunc("/sessions/{id}/cells", s.handleSetCell).Methods("PUT")

	// Scenarios
	api.HandleFunc("/scenarios", s.handleListScenarios).Methods("GET")
	api.HandleFunc("/scenarios", s.handleCreateScenario).Methods("POST")
	api.HandleFunc("/scenarios/{name}", s.handleGetScenario).Methods("GET")

	// Results
	api.HandleFunc("/episodes", s.handleListEpisodes).Methods("GET")

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// WebSocket
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Static files (if needed)
	s.router.PathPrefix("/").Handler(http.FileServer(http.Dir("./static/")))
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError picks the status code from the error chain
func respondServiceError(w http.ResponseWriter, err error) {
	respondError(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	var uninit *engine.UninitializedStateError
	switch {
	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, service.ErrConfigNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrOutOfBounds),
		errors.Is(err, engine.ErrInvalidLayer),
		errors.Is(err, engine.ErrInvalidTool),
		errors.Is(err, engine.ErrInvalidConfig),
		errors.Is(err, engine.ErrInvalidLayout),
		errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.As(err, &uninit):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) broadcast(sessionID string, state *engine.SimState) {
	if s.hub != nil && state != nil {
		s.hub.BroadcastToSession(sessionID, state)
	}
}

// Session Handlers

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id,omitempty"`
		ConfigID   string `json:"config_id,omitempty"` // alias of scenario_id
	}

	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	scenarioID := req.ScenarioID
	if scenarioID == "" {
		scenarioID = req.ConfigID
	}

	session, err := s.service.CreateSession(r.Context(), scenarioID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, session)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.service.ListSessions(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	total := len(sessions)

	query := r.URL.Query()
	sortBy := query.Get("sort")    // "created", "accessed" (default)
	order := query.Get("order")    // "asc", "desc" (default: "desc")
	limitStr := query.Get("limit") // number of sessions to return

	if sortBy == "" {
		sortBy = "accessed"
	}
	if order == "" {
		order = "desc"
	}

	sort.Slice(sessions, func(i, j int) bool {
		var ti, tj time.Time
		if sortBy == "created" {
			ti, tj = sessions[i].CreatedAt, sessions[j].CreatedAt
		} else {
			ti, tj = sessions[i].LastAccessedAt, sessions[j].LastAccessedAt
		}

		if order == "asc" {
			return ti.Before(tj)
		}
		return ti.After(tj)
	})

	limit := len(sessions)
	if limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l < len(sessions) {
			limit = l
		}
	}
	sessions = sessions[:limit]

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(sessions),
		"total":    total,
		"sessions": sessions,
		"sort":     sortBy,
		"order":    order,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	session, err := s.service.GetSession(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, session)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	if err := s.service.DeleteSession(r.Context(), sessionID); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Session %s deleted", sessionID),
	})
}

// Simulation Handlers

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	state, err := s.service.GetState(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, state)
}

func (s *Server) handleObserve(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	obs, err := s.service.Observe(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"observation": obs,
		"size":        len(obs),
	})
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req struct {
		Actions []int `json:"actions"`
		Reset   bool  `json:"reset,omitempty"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	outcome, err := s.service.Step(r.Context(), sessionID, engine.ActionsFromCodes(req.Actions), req.Reset)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	s.broadcast(sessionID, outcome.State)
	if outcome.EpisodeEnded && s.hub != nil {
		s.hub.BroadcastEvent(sessionID, websocket.EventEpisodeDone, map[string]interface{}{
			"episode": outcome.Episode,
			"score":   outcome.State.Score,
			"steps":   outcome.State.StepCount,
		})
	}

	respondJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleAutoplay(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req struct {
		Ticks int `json:"ticks"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := s.service.Autoplay(r.Context(), sessionID, req.Ticks)
	if err != nil {
		if result != nil {
			s.broadcast(sessionID, result.State)
		}
		respondServiceError(w, err)
		return
	}

	s.broadcast(sessionID, result.State)
	if result.EpisodesEnded > 0 && s.hub != nil {
		s.hub.BroadcastEvent(sessionID, websocket.EventEpisodeDone, map[string]interface{}{
			"episodes_ended": result.EpisodesEnded,
		})
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req struct {
		Seed *int64 `json:"seed,omitempty"`
	}

	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	state, err := s.service.Reset(r.Context(), sessionID, req.Seed)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	s.broadcast(sessionID, state)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Simulation reset successfully",
		"state":   state,
	})
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	opts := service.HistoryOptions{
		Page:  1,
		Limit: 20,
		Order: "desc",
	}

	query := r.URL.Query()
	if pageStr := query.Get("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			opts.Page = p
		}
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			opts.Limit = l
		}
	}

	if order := query.Get("order"); order == "asc" || order == "desc" {
		opts.Order = order
	}

	history, err := s.service.GetTickHistory(r.Context(), sessionID, opts)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, history)
}

// Editing Handlers

type cellRequest struct {
	Row   *int   `json:"row"`
	Col   *int   `json:"col"`
	Tool  string `json:"tool,omitempty"`
	Layer string `json:"layer,omitempty"`
	Value *bool  `json:"value,omitempty"`
}

func decodeCell(r *http.Request) (*cellRequest, error) {
	var req cellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.New("Invalid request body")
	}
	if req.Row == nil || req.Col == nil {
		return nil, errors.New("row and col are required")
	}
	return &req, nil
}

func (s *Server) handleAddRobot(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	req, err := decodeCell(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	state, err := s.service.AddRobot(r.Context(), sessionID, *req.Row, *req.Col)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	s.broadcast(sessionID, state)
	respondJSON(w, http.StatusOK, state)
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	req, err := decodeCell(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Tool == "" {
		respondError(w, http.StatusBadRequest, "tool is required")
		return
	}

	tool := engine.EditTool(strings.ToLower(req.Tool))
	state, err := s.service.EditCell(r.Context(), sessionID, tool, *req.Row, *req.Col)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	s.broadcast(sessionID, state)
	respondJSON(w, http.StatusOK, state)
}

func (s *Server) handleSetCell(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	req, err := decodeCell(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Layer == "" || req.Value == nil {
		respondError(w, http.StatusBadRequest, "layer and value are required")
		return
	}

	layer := engine.LayerKind(strings.ToLower(req.Layer))
	state, err := s.service.SetCell(r.Context(), sessionID, layer, *req.Row, *req.Col, *req.Value)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	s.broadcast(sessionID, state)
	respondJSON(w, http.StatusOK, state)
}

// Scenario Handlers

func (s *Server) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	scenarios, err := s.service.ListConfigs(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, scenarios)
}

func (s *Server) handleGetScenario(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	config, err := s.service.LoadConfig(r.Context(), name)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, config)
}

func (s *Server) handleCreateScenario(w http.ResponseWriter, r *http.Request) {
	var config engine.SimConfig

	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if config.Name == "" {
		respondError(w, http.StatusBadRequest, "Scenario name is required")
		return
	}

	if err := s.service.SaveConfig(r.Context(), config.Name, &config); err != nil {
		respondError(w, statusFor(err), fmt.Sprintf("Failed to save scenario: %v", err))
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message":     "Scenario saved successfully",
		"scenario_id": config.Name,
	})
}

// Results

func (s *Server) handleListEpisodes(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = l
	}

	episodes, err := s.service.ListEpisodes(r.Context(), limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(episodes),
		"episodes": episodes,
	})
}

// WebSocket Handler

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "session parameter required", http.StatusBadRequest)
		return
	}

	info, err := s.service.GetSession(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "Invalid session", http.StatusNotFound)
		return
	}

	s.hub.ServeWS(w, r, info.ID)
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}
