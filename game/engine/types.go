package engine

// Action is a per-robot action code supplied to Step
type Action int

const (
	ActionUp Action = iota
	ActionRight
	ActionDown
	ActionLeft
	ActionBuildPanel
)

// LayerKind identifies one of the three boolean grids
type LayerKind string

const (
	LayerObstacle LayerKind = "obstacle"
	LayerResource LayerKind = "resource"
	LayerPanel    LayerKind = "panel"
)

const (
	// Validation constants
	MinGridSize = 2
	MaxGridSize = 64
	MinMaxSteps = 1

	DefaultGridSize = 8
	DefaultMaxSteps = 300

	// Reset placement
	InitialRobots   = 2
	MinResources    = 5
	MaxResources    = 8
	ElectricityRate = 0.1
	PickupReward    = 1.0

	// MaxObservedRobots caps the robot window at the head of an Observation.
	MaxObservedRobots = 4
)

// Position is a (row, col) grid coordinate
type Position struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Layer is a boolean mask over the grid stored row-major
type Layer []bool

// Observation is the flat numeric encoding returned by Reset, Step and Observe:
// 8 robot slots, three row-major layers, step count, score.
type Observation []float64

// SimConfig describes one scenario
type SimConfig struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	GridSize    int      `json:"grid_size" yaml:"grid_size"`
	MaxSteps    int      `json:"max_steps" yaml:"max_steps"`
	Seed        *int64   `json:"seed,omitempty" yaml:"seed,omitempty"`
	Layout      []string `json:"layout,omitempty" yaml:"layout,omitempty"`
}

// RobotOutcome records what happened to one robot during a tick
type RobotOutcome struct {
	Index     int      `json:"index"`
	Action    Action   `json:"action"`
	From      Position `json:"from"`
	To        Position `json:"to"`
	Blocked   bool     `json:"blocked,omitempty"`
	Built     bool     `json:"built,omitempty"`
	Collected bool     `json:"collected,omitempty"`
}

// StepResult is the outcome of one tick
type StepResult struct {
	Observation        Observation    `json:"observation"`
	Reward             float64        `json:"reward"`
	Done               bool           `json:"done"`
	Electricity        int            `json:"electricity"`
	ResourcesCollected int            `json:"resources_collected"`
	PanelsBuilt        int            `json:"panels_built"`
	Robots             []RobotOutcome `json:"robots"`
}

// TickRecord is one entry of the current episode's history
type TickRecord struct {
	Step        int      `json:"step"`
	Actions     []Action `json:"actions"`
	Reward      float64  `json:"reward"`
	Electricity int      `json:"electricity"`
	Collected   int      `json:"collected"`
	Score       float64  `json:"score"`
	Done        bool     `json:"done"`
}

// SimState is a read-only snapshot of the engine for renderers and API clients
type SimState struct {
	ConfigName  string     `json:"config_name"`
	GridSize    int        `json:"grid_size"`
	MaxSteps    int        `json:"max_steps"`
	Robots      []Position `json:"robots"`
	Obstacles   Layer      `json:"obstacles"`
	Resources   Layer      `json:"resources"`
	Panels      Layer      `json:"panels"`
	StepCount   int        `json:"step_count"`
	Score       float64    `json:"score"`
	Done        bool       `json:"done"`
	Initialized bool       `json:"initialized"`
	Seed        *int64     `json:"seed,omitempty"`

	// Episode totals
	ResourcesCollected int     `json:"resources_collected"`
	LastReward         float64 `json:"last_reward"`
	LastElectricity    int     `json:"last_electricity"`

	// Computed helper view
	Board []string `json:"board,omitempty"`
}
