package service

import (
	"time"

	"github.com/wricardo/mcp-training/solarfarm/game/engine"
)

// SessionInfo provides information about a simulation session
type SessionInfo struct {
	ID             string            `json:"id"`
	ConfigName     string            `json:"config_name"`
	CreatedAt      time.Time         `json:"created_at"`
	LastAccessedAt time.Time         `json:"last_accessed_at"`
	Episode        int               `json:"episode"`
	State          *engine.SimState  `json:"state"`
	Config         *engine.SimConfig `json:"config"`
}

// StepOutcome contains the result of a single tick
type StepOutcome struct {
	Result       *engine.StepResult `json:"result"`
	State        *engine.SimState   `json:"state"`
	Reset        bool               `json:"reset,omitempty"`
	Episode      int                `json:"episode"`
	EpisodeEnded bool               `json:"episode_ended,omitempty"` // set on the tick that reached max steps
	Events       []SimEvent         `json:"events,omitempty"`
}

// AutoplayResult summarises a batch of ticks driven by the random agent
type AutoplayResult struct {
	TicksExecuted  int              `json:"ticks_executed"`
	RequestedTicks int              `json:"requested_ticks"`
	Truncated      bool             `json:"truncated,omitempty"`
	Limit          int              `json:"limit,omitempty"`
	EpisodesEnded  int              `json:"episodes_ended"`
	TotalReward    float64          `json:"total_reward"`
	State          *engine.SimState `json:"state"`
	Events         []SimEvent       `json:"events,omitempty"`
}

// SimEvent represents something notable that happened during a tick
type SimEvent struct {
	Type      string          `json:"type"` // "reset", "collect", "build", "blocked", "episode_done"
	Message   string          `json:"message"`
	Timestamp time.Time       `json:"timestamp"`
	Robot     int             `json:"robot,omitempty"`
	Position  engine.Position `json:"position,omitempty"`
}

// HistoryOptions configures tick history retrieval
type HistoryOptions struct {
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
	Order string `json:"order"` // "asc" or "desc"
}

// HistoryResponse contains paginated tick history
type HistoryResponse struct {
	Ticks       []engine.TickRecord `json:"ticks"`
	TotalTicks  int                 `json:"total_ticks"`
	Page        int                 `json:"page"`
	PageSize    int                 `json:"page_size"`
	TotalPages  int                 `json:"total_pages"`
	HasNext     bool                `json:"has_next"`
	HasPrevious bool                `json:"has_previous"`
}

// ScenarioInfo provides information about a scenario file
type ScenarioInfo struct {
	Filename    string `json:"filename"`
	ConfigID    string `json:"config_id"` // The identifier to use for session creation
	Name        string `json:"name"`      // Display name
	Description string `json:"description"`
	GridSize    int    `json:"grid_size"`
	MaxSteps    int    `json:"max_steps"`
	Seeded      bool   `json:"seeded"`
	HasLayout   bool   `json:"has_layout"`
}

// EpisodeSummary is the result of one finished episode. It records outcomes
// only and cannot restore a simulation.
type EpisodeSummary struct {
	ID                 string    `json:"id"`
	SessionID          string    `json:"session_id"`
	Scenario           string    `json:"scenario"`
	Episode            int       `json:"episode"`
	Steps              int       `json:"steps"`
	Score              float64   `json:"score"`
	ResourcesCollected int       `json:"resources_collected"`
	PanelsStanding     int       `json:"panels_standing"`
	Robots             int       `json:"robots"`
	Seed               *int64    `json:"seed,omitempty"`
	FinishedAt         time.Time `json:"finished_at"`
}

// TickEntry is one line of the tick trace
type TickEntry struct {
	SessionID   string          `json:"session"`
	Episode     int             `json:"episode"`
	Step        int             `json:"step"`
	Actions     []engine.Action `json:"actions"`
	Reward      float64         `json:"reward"`
	Electricity int             `json:"electricity"`
	Score       float64         `json:"score"`
	Done        bool            `json:"done"`
	Time        time.Time       `json:"time"`
}
