package service

import (
	"context"
	"time"

	"github.com/wricardo/mcp-training/solarfarm/game/engine"
)

// SimService defines all simulation operations exposed to transports
type SimService interface {
	// Session Management
	CreateSession(ctx context.Context, configName string) (*SessionInfo, error)
	GetSession(ctx context.Context, sessionID string) (*SessionInfo, error)
	ListSessions(ctx context.Context) ([]*SessionInfo, error)
	DeleteSession(ctx context.Context, sessionID string) error

	// Simulation
	Step(ctx context.Context, sessionID string, actions []engine.Action, reset bool) (*StepOutcome, error)
	Autoplay(ctx context.Context, sessionID string, ticks int) (*AutoplayResult, error)
	Reset(ctx context.Context, sessionID string, seed *int64) (*engine.SimState, error)
	Observe(ctx context.Context, sessionID string) (engine.Observation, error)

	// Editing
	AddRobot(ctx context.Context, sessionID string, row, col int) (*engine.SimState, error)
	EditCell(ctx context.Context, sessionID string, tool engine.EditTool, row, col int) (*engine.SimState, error)
	SetCell(ctx context.Context, sessionID string, layer engine.LayerKind, row, col int, value bool) (*engine.SimState, error)

	// State
	GetState(ctx context.Context, sessionID string) (*engine.SimState, error)
	GetTickHistory(ctx context.Context, sessionID string, opts HistoryOptions) (*HistoryResponse, error)

	// Scenarios
	ListConfigs(ctx context.Context) ([]*ScenarioInfo, error)
	LoadConfig(ctx context.Context, configName string) (*engine.SimConfig, error)
	SaveConfig(ctx context.Context, configName string, config *engine.SimConfig) error

	// Results
	ListEpisodes(ctx context.Context, limit int) ([]*EpisodeSummary, error)
}

// SessionManager defines session storage operations
type SessionManager interface {
	Create(id string, config *engine.SimConfig) (*Session, error)
	Get(id string) (*Session, error)
	GetOrCreate(id string, config *engine.SimConfig) (*Session, error)
	List() []*Session
	Delete(id string) error
	UpdateLastAccessed(id string) error
}

// ConfigManager handles scenario loading
type ConfigManager interface {
	LoadConfig(name string) (*engine.SimConfig, error)
	ListConfigs() ([]*ScenarioInfo, error)
	GetDefault() *engine.SimConfig
	SaveConfig(name string, config *engine.SimConfig) error
}

// EpisodeLedger stores summaries of finished episodes
type EpisodeLedger interface {
	RecordEpisode(ctx context.Context, summary *EpisodeSummary) error
	ListEpisodes(ctx context.Context, limit int) ([]*EpisodeSummary, error)
	Close() error
}

// TraceSink receives one entry per executed tick
type TraceSink interface {
	Append(entry *TickEntry) error
	Close() error
}

// Session represents an active simulation session
type Session struct {
	ID             string
	Engine         *engine.SimEngine
	Config         *engine.SimConfig
	CreatedAt      time.Time
	LastAccessedAt time.Time
	Episode        int // 1 for the first episode, incremented on every reset
}
