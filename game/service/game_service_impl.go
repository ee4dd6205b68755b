package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wricardo/mcp-training/solarfarm/agent"
	"github.com/wricardo/mcp-training/solarfarm/game/engine"
)

// MaxAutoplayTicks caps a single autoplay call
const MaxAutoplayTicks = 10000

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrConfigNotFound  = errors.New("configuration not found")
	ErrInvalidInput    = errors.New("invalid input")
)

// Option configures a simService
type Option func(*simService)

// WithLedger records finished episodes in l
func WithLedger(l EpisodeLedger) Option {
	return func(s *simService) { s.ledger = l }
}

// WithTrace appends every executed tick to sink
func WithTrace(sink TraceSink) Option {
	return func(s *simService) { s.trace = sink }
}

// WithPolicy replaces the random agent used by Autoplay
func WithPolicy(factory func(robots int) agent.Policy) Option {
	return func(s *simService) { s.newPolicy = factory }
}

// simService implements the SimService interface
type simService struct {
	sessions  SessionManager
	configs   ConfigManager
	ledger    EpisodeLedger
	trace     TraceSink
	newPolicy func(robots int) agent.Policy
	mu        sync.RWMutex
}

// NewSimService creates a new simulation service instance
func NewSimService(sessions SessionManager, configs ConfigManager, opts ...Option) SimService {
	s := &simService{
		sessions: sessions,
		configs:  configs,
		newPolicy: func(robots int) agent.Policy {
			return agent.NewTimeSeededAgent(robots)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// getConfigID returns the config_id for a given scenario name, used for consistent API responses
func (s *simService) getConfigID(configName string) string {
	available, err := s.configs.ListConfigs()
	if err == nil {
		for _, cfg := range available {
			if cfg.Name == configName {
				return cfg.ConfigID
			}
		}
	}
	if configName == "" {
		return "default"
	}
	return configName
}

func (s *simService) sessionInfo(sess *Session, configID string) *SessionInfo {
	if configID == "" {
		configID = s.getConfigID(sess.Config.Name)
	}
	return &SessionInfo{
		ID:             sess.ID,
		ConfigName:     configID,
		CreatedAt:      sess.CreatedAt,
		LastAccessedAt: sess.LastAccessedAt,
		Episode:        sess.Episode,
		State:          sess.Engine.GetState(),
		Config:         sess.Config,
	}
}

// CreateSession creates a new simulation session
func (s *simService) CreateSession(ctx context.Context, configName string) (*SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var config *engine.SimConfig
	var err error
	if configName != "" {
		config, err = s.configs.LoadConfig(configName)
		if err != nil {
			if errors.Is(err, ErrConfigNotFound) || strings.Contains(err.Error(), "configuration not found") {
				available, listErr := s.configs.ListConfigs()
				if listErr == nil && len(available) > 0 {
					var ids []string
					for _, cfg := range available {
						ids = append(ids, cfg.ConfigID)
					}
					return nil, fmt.Errorf("%w: scenario '%s' not found. Available scenarios: %v", ErrConfigNotFound, configName, ids)
				}
				return nil, fmt.Errorf("%w: scenario '%s' not found. Use /api/scenarios to list available scenarios", ErrConfigNotFound, configName)
			}
			return nil, fmt.Errorf("failed to load scenario %s: %w", configName, err)
		}
	} else {
		config = s.configs.GetDefault()
	}

	sess, err := s.sessions.Create("", config)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	log.Printf("[SESSION] created session=%s scenario=%s grid=%d max_steps=%d", sess.ID, config.Name, config.GridSize, config.MaxSteps)
	return s.sessionInfo(sess, configName), nil
}

// GetSession retrieves session information
func (s *simService) GetSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	// Write lock: touching the access time mutates the session.
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}
	s.sessions.UpdateLastAccessed(sessionID)

	return s.sessionInfo(sess, ""), nil
}

// ListSessions returns all active sessions
func (s *simService) ListSessions(ctx context.Context) ([]*SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := s.sessions.List()
	result := make([]*SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		result = append(result, s.sessionInfo(sess, ""))
	}
	return result, nil
}

// DeleteSession removes a session
func (s *simService) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.sessions.Delete(sessionID); err != nil {
		return err
	}
	log.Printf("[SESSION] deleted session=%s", sessionID)
	return nil
}

// Step executes one tick for a session, optionally resetting first
func (s *simService) Step(ctx context.Context, sessionID string, actions []engine.Action, reset bool) (*StepOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}
	s.sessions.UpdateLastAccessed(sessionID)

	var events []SimEvent
	if reset {
		s.resetSession(sess, nil)
		events = append(events, SimEvent{
			Type:      "reset",
			Message:   fmt.Sprintf("Episode %d started", sess.Episode),
			Timestamp: time.Now(),
		})
	}

	result, ended, err := s.stepSession(ctx, sess, actions)
	if err != nil {
		return nil, err
	}
	events = append(events, stepEvents(result, ended)...)

	return &StepOutcome{
		Result:       result,
		State:        sess.Engine.GetState(),
		Reset:        reset,
		Episode:      sess.Episode,
		EpisodeEnded: ended,
		Events:       events,
	}, nil
}

// Autoplay drives the session with the random agent for up to ticks ticks,
// starting a new episode whenever one finishes.
func (s *simService) Autoplay(ctx context.Context, sessionID string, ticks int) (*AutoplayResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}
	s.sessions.UpdateLastAccessed(sessionID)

	if ticks <= 0 {
		return nil, fmt.Errorf("%w: ticks must be positive, got %d", ErrInvalidInput, ticks)
	}

	out := &AutoplayResult{RequestedTicks: ticks}
	if ticks > MaxAutoplayTicks {
		ticks = MaxAutoplayTicks
		out.Truncated = true
		out.Limit = MaxAutoplayTicks
	}

	eng := sess.Engine
	if !eng.IsInitialized() || eng.IsDone() {
		s.resetSession(sess, nil)
		out.Events = append(out.Events, SimEvent{
			Type:      "reset",
			Message:   fmt.Sprintf("Episode %d started", sess.Episode),
			Timestamp: time.Now(),
		})
	}

	policy := s.newPolicy(len(eng.Robots()))
	step := func(actions []engine.Action) (*engine.StepResult, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, ended, err := s.stepSession(ctx, sess, actions)
		if ended {
			out.Events = append(out.Events, SimEvent{
				Type:      "episode_done",
				Message:   fmt.Sprintf("Episode %d finished with score %.2f", sess.Episode, sess.Engine.Score()),
				Timestamp: time.Now(),
			})
		}
		return result, err
	}
	onDone := func(*engine.StepResult) engine.Observation {
		s.resetSession(sess, nil)
		policy = s.newPolicy(len(eng.Robots()))
		return eng.Observe()
	}

	run, err := agent.Run(policyFunc(func(obs engine.Observation) []engine.Action {
		return policy.Predict(obs)
	}), eng.Observe(), ticks, step, onDone)
	if run != nil {
		out.TicksExecuted = run.Ticks
		out.EpisodesEnded = run.Episodes
		out.TotalReward = run.TotalReward
	}
	out.State = eng.GetState()
	if err != nil {
		return out, fmt.Errorf("autoplay stopped after %d ticks: %w", out.TicksExecuted, err)
	}

	log.Printf("[AUTOPLAY] session=%s ticks=%d episodes_ended=%d reward=%.2f", sess.ID, out.TicksExecuted, out.EpisodesEnded, out.TotalReward)
	return out, nil
}

// Reset starts a new episode. A nil seed follows the scenario (its layout,
// then its seed, then the clock).
func (s *simService) Reset(ctx context.Context, sessionID string, seed *int64) (*engine.SimState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}
	s.sessions.UpdateLastAccessed(sessionID)

	s.resetSession(sess, seed)
	return sess.Engine.GetState(), nil
}

// Observe returns the current observation vector
func (s *simService) Observe(ctx context.Context, sessionID string) (engine.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}
	return sess.Engine.Observe(), nil
}

// AddRobot appends a robot to the session's grid
func (s *simService) AddRobot(ctx context.Context, sessionID string, row, col int) (*engine.SimState, error) {
	return s.edit(sessionID, "add_robot", row, col, func(eng *engine.SimEngine) error {
		return eng.AddRobot(row, col)
	})
}

// EditCell applies an editor tool at a cell
func (s *simService) EditCell(ctx context.Context, sessionID string, tool engine.EditTool, row, col int) (*engine.SimState, error) {
	return s.edit(sessionID, string(tool), row, col, func(eng *engine.SimEngine) error {
		return eng.ApplyEdit(tool, row, col)
	})
}

// SetCell sets a single layer at a cell without touching the others
func (s *simService) SetCell(ctx context.Context, sessionID string, layer engine.LayerKind, row, col int, value bool) (*engine.SimState, error) {
	return s.edit(sessionID, "set_"+string(layer), row, col, func(eng *engine.SimEngine) error {
		return eng.SetCell(layer, row, col, value)
	})
}

func (s *simService) edit(sessionID, op string, row, col int, apply func(*engine.SimEngine) error) (*engine.SimState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}
	s.sessions.UpdateLastAccessed(sessionID)

	if err := apply(sess.Engine); err != nil {
		return nil, err
	}

	log.Printf("[EDIT] session=%s op=%s row=%d col=%d", sess.ID, op, row, col)
	return sess.Engine.GetState(), nil
}

// GetState returns the current simulation snapshot
func (s *simService) GetState(ctx context.Context, sessionID string) (*engine.SimState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}
	s.sessions.UpdateLastAccessed(sessionID)

	return sess.Engine.GetState(), nil
}

// GetTickHistory returns paginated tick history for the current episode
func (s *simService) GetTickHistory(ctx context.Context, sessionID string, opts HistoryOptions) (*HistoryResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}

	history := sess.Engine.GetTickHistory()
	total := len(history)

	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Limit > 100 {
		opts.Limit = 100
	}
	if opts.Order == "" {
		opts.Order = "desc"
	}

	totalPages := (total + opts.Limit - 1) / opts.Limit
	if totalPages == 0 {
		totalPages = 1
	}

	start := (opts.Page - 1) * opts.Limit
	end := start + opts.Limit
	if end > total {
		end = total
	}

	ticks := []engine.TickRecord{}
	if start < total {
		if opts.Order == "desc" {
			for i := total - 1 - start; i >= total-end; i-- {
				ticks = append(ticks, history[i])
			}
		} else {
			ticks = append(ticks, history[start:end]...)
		}
	}

	return &HistoryResponse{
		Ticks:       ticks,
		TotalTicks:  total,
		Page:        opts.Page,
		PageSize:    opts.Limit,
		TotalPages:  totalPages,
		HasNext:     opts.Page < totalPages,
		HasPrevious: opts.Page > 1,
	}, nil
}

// ListConfigs returns available scenarios
func (s *simService) ListConfigs(ctx context.Context) ([]*ScenarioInfo, error) {
	return s.configs.ListConfigs()
}

// LoadConfig loads a specific scenario
func (s *simService) LoadConfig(ctx context.Context, configName string) (*engine.SimConfig, error) {
	return s.configs.LoadConfig(configName)
}

// SaveConfig saves a scenario
func (s *simService) SaveConfig(ctx context.Context, configName string, config *engine.SimConfig) error {
	return s.configs.SaveConfig(configName, config)
}

// ListEpisodes returns the most recent finished episodes, newest first
func (s *simService) ListEpisodes(ctx context.Context, limit int) ([]*EpisodeSummary, error) {
	if s.ledger == nil {
		return []*EpisodeSummary{}, nil
	}
	return s.ledger.ListEpisodes(ctx, limit)
}

// resetSession starts the next episode. Callers hold s.mu.
func (s *simService) resetSession(sess *Session, seed *int64) {
	if seed != nil {
		sess.Engine.ResetWithSeed(*seed)
	} else {
		sess.Engine.ResetFromConfig()
	}
	sess.Episode++

	log.Printf("[RESET] session=%s episode=%d robots=%d", sess.ID, sess.Episode, len(sess.Engine.Robots()))
}

// stepSession runs one tick and records its trace and, on the finishing
// tick, the episode summary. Callers hold s.mu.
func (s *simService) stepSession(ctx context.Context, sess *Session, actions []engine.Action) (*engine.StepResult, bool, error) {
	wasDone := sess.Engine.IsDone()

	result, err := sess.Engine.Step(actions)
	if err != nil {
		return nil, false, err
	}
	ended := result.Done && !wasDone

	log.Printf("[STEP] session=%s tick=%d reward=%.2f score=%.2f done=%t", sess.ID, sess.Engine.StepCount(), result.Reward, sess.Engine.Score(), result.Done)

	if s.trace != nil {
		entry := &TickEntry{
			SessionID:   sess.ID,
			Episode:     sess.Episode,
			Step:        sess.Engine.StepCount(),
			Actions:     actions,
			Reward:      result.Reward,
			Electricity: result.Electricity,
			Score:       sess.Engine.Score(),
			Done:        result.Done,
			Time:        time.Now().UTC(),
		}
		if err := s.trace.Append(entry); err != nil {
			log.Printf("Warning: Failed to trace tick for session %s: %v", sess.ID, err)
		}
	}

	if ended {
		s.recordEpisode(ctx, sess, result)
	}
	return result, ended, nil
}

func (s *simService) recordEpisode(ctx context.Context, sess *Session, result *engine.StepResult) {
	state := sess.Engine.GetState()
	summary := &EpisodeSummary{
		ID:                 uuid.NewString(),
		SessionID:          sess.ID,
		Scenario:           sess.Config.Name,
		Episode:            sess.Episode,
		Steps:              state.StepCount,
		Score:              state.Score,
		ResourcesCollected: state.ResourcesCollected,
		PanelsStanding:     engine.CountSet(state.Panels),
		Robots:             len(state.Robots),
		Seed:               state.Seed,
		FinishedAt:         time.Now().UTC(),
	}

	log.Printf("[EPISODE] session=%s episode=%d steps=%d score=%.2f panels=%d", sess.ID, summary.Episode, summary.Steps, summary.Score, summary.PanelsStanding)

	if s.ledger == nil {
		return
	}
	if err := s.ledger.RecordEpisode(ctx, summary); err != nil {
		log.Printf("Warning: Failed to record episode for session %s: %v", sess.ID, err)
	}
}

// stepEvents extracts notable per-robot outcomes from a tick
func stepEvents(result *engine.StepResult, ended bool) []SimEvent {
	now := time.Now()
	var events []SimEvent
	for _, r := range result.Robots {
		switch {
		case r.Collected:
			events = append(events, SimEvent{
				Type:      "collect",
				Message:   fmt.Sprintf("Robot %d collected a resource", r.Index),
				Timestamp: now,
				Robot:     r.Index,
				Position:  r.To,
			})
		case r.Built:
			events = append(events, SimEvent{
				Type:      "build",
				Message:   fmt.Sprintf("Robot %d built a panel", r.Index),
				Timestamp: now,
				Robot:     r.Index,
				Position:  r.To,
			})
		case r.Blocked:
			events = append(events, SimEvent{
				Type:      "blocked",
				Message:   fmt.Sprintf("Robot %d was blocked moving %s", r.Index, r.Action),
				Timestamp: now,
				Robot:     r.Index,
				Position:  r.From,
			})
		}
	}
	if ended {
		events = append(events, SimEvent{
			Type:      "episode_done",
			Message:   "Episode finished",
			Timestamp: now,
		})
	}
	return events
}

type policyFunc func(obs engine.Observation) []engine.Action

func (f policyFunc) Predict(obs engine.Observation) []engine.Action { return f(obs) }
