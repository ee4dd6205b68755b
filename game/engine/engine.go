package engine

import (
	"math/rand"
	"time"
)

// Engine provides the main interface for simulation operations
type Engine interface {
	// Episode lifecycle
	Reset() Observation
	ResetWithSeed(seed int64) Observation
	ResetFromConfig() Observation
	ApplyLayout(rows []string) error
	Step(actions []Action) (*StepResult, error)
	Observe() Observation

	// Editing
	AddRobot(row, col int) error
	SetCell(layer LayerKind, row, col int, on bool) error
	ApplyEdit(tool EditTool, row, col int) error

	// Read-only views
	GetState() *SimState
	GetConfig() *SimConfig
	GridSize() int
	MaxSteps() int
	StepCount() int
	Score() float64
	IsDone() bool
	IsInitialized() bool
	Robots() []Position
	Cell(layer LayerKind, row, col int) bool
	GetTickHistory() []TickRecord
}

// SimEngine implements the Engine interface. It is not safe for concurrent use.
type SimEngine struct {
	config *SimConfig
	rng    *rand.Rand
	seed   *int64

	size      int
	maxSteps  int
	obstacles Layer
	resources Layer
	panels    Layer
	robots    []Position

	stepCount   int
	score       float64
	initialized bool

	collected       int
	lastReward      float64
	lastElectricity int
	history         []TickRecord
}

// NewEngine creates an engine for the given configuration. The engine starts
// fresh: Step fails until one of the reset operations has run.
func NewEngine(config *SimConfig) (*SimEngine, error) {
	if err := ValidateSimConfig(config); err != nil {
		return nil, err
	}
	return newEngine(config, rand.New(rand.NewSource(time.Now().UnixNano()))), nil
}

// NewEngineWithDefaults creates an engine on an 8x8 grid with 300-step episodes
func NewEngineWithDefaults() *SimEngine {
	return newEngine(DefaultSimConfig(), rand.New(rand.NewSource(time.Now().UnixNano())))
}

func newEngine(config *SimConfig, rng *rand.Rand) *SimEngine {
	n := config.GridSize
	return &SimEngine{
		config:    config,
		rng:       rng,
		size:      n,
		maxSteps:  config.MaxSteps,
		obstacles: make(Layer, n*n),
		resources: make(Layer, n*n),
		panels:    make(Layer, n*n),
		robots:    []Position{},
	}
}

// Reset randomises the layout using the engine's generator
func (e *SimEngine) Reset() Observation {
	e.clear()

	for i := 0; i < InitialRobots; i++ {
		row := e.rng.Intn(e.size)
		col := e.rng.Intn(e.size)
		e.robots = append(e.robots, Position{Row: row, Col: col})
	}

	numObstacles := randInclusive(e.rng, e.size/3, e.size/2)
	for i := 0; i < numObstacles; i++ {
		row := e.rng.Intn(e.size)
		col := e.rng.Intn(e.size)
		e.obstacles[e.index(row, col)] = true
	}

	numResources := randInclusive(e.rng, MinResources, MaxResources)
	for i := 0; i < numResources; i++ {
		row := e.rng.Intn(e.size)
		col := e.rng.Intn(e.size)
		e.resources[e.index(row, col)] = true
	}

	e.initialized = true
	return e.Observe()
}

// ResetWithSeed reseeds the generator and resets, so equal seeds give equal layouts
func (e *SimEngine) ResetWithSeed(seed int64) Observation {
	e.rng = rand.New(rand.NewSource(seed))
	obs := e.Reset()
	e.seed = &seed
	return obs
}

// ResetFromConfig resets the way the configuration asks for: a fixed layout,
// a fixed seed, or the engine's own generator. A layout that no longer parses
// (the config was changed after validation) falls through to random placement.
func (e *SimEngine) ResetFromConfig() Observation {
	if len(e.config.Layout) > 0 {
		if err := e.ApplyLayout(e.config.Layout); err == nil {
			return e.Observe()
		}
	}
	if e.config.Seed != nil {
		return e.ResetWithSeed(*e.config.Seed)
	}
	return e.Reset()
}

// ApplyLayout replaces the grid contents with a parsed layout and starts a new episode
func (e *SimEngine) ApplyLayout(rows []string) error {
	layout, err := ParseLayout(rows, e.size)
	if err != nil {
		return err
	}

	e.clear()
	copy(e.obstacles, layout.Obstacles)
	copy(e.resources, layout.Resources)
	copy(e.panels, layout.Panels)
	e.robots = append(e.robots, layout.Robots...)
	e.initialized = true
	return nil
}

// clear empties every layer and the robot list and zeroes the episode counters
func (e *SimEngine) clear() {
	for i := range e.obstacles {
		e.obstacles[i] = false
		e.resources[i] = false
		e.panels[i] = false
	}
	e.robots = []Position{}
	e.seed = nil
	e.stepCount = 0
	e.score = 0
	e.collected = 0
	e.lastReward = 0
	e.lastElectricity = 0
	e.history = []TickRecord{}
}

// Observe encodes the current state as a flat vector
func (e *SimEngine) Observe() Observation {
	cells := e.size * e.size
	obs := make(Observation, 0, 2*MaxObservedRobots+3*cells+2)

	for i := 0; i < MaxObservedRobots; i++ {
		if i < len(e.robots) {
			obs = append(obs, float64(e.robots[i].Row), float64(e.robots[i].Col))
		} else {
			obs = append(obs, 0, 0)
		}
	}

	for _, layer := range []Layer{e.obstacles, e.resources, e.panels} {
		for _, set := range layer {
			obs = append(obs, boolToFloat(set))
		}
	}

	obs = append(obs, float64(e.stepCount), e.score)
	return obs
}

// ObservationSize returns the length of an Observation for the given grid size
func ObservationSize(gridSize int) int {
	return 2*MaxObservedRobots + 3*gridSize*gridSize + 2
}

// AddRobot appends a robot; it does not check for other robots on the cell
func (e *SimEngine) AddRobot(row, col int) error {
	if !e.InBounds(row, col) {
		return outOfBounds(row, col, e.size)
	}
	e.robots = append(e.robots, Position{Row: row, Col: col})
	return nil
}

// SetCell sets or clears one layer at one cell, leaving the other layers untouched
func (e *SimEngine) SetCell(layer LayerKind, row, col int, on bool) error {
	l, err := e.layer(layer)
	if err != nil {
		return err
	}
	if !e.InBounds(row, col) {
		return outOfBounds(row, col, e.size)
	}
	l[e.index(row, col)] = on
	return nil
}

// SetObstacle sets or clears the obstacle layer at a cell
func (e *SimEngine) SetObstacle(row, col int, on bool) error {
	return e.SetCell(LayerObstacle, row, col, on)
}

// SetResource sets or clears the resource layer at a cell
func (e *SimEngine) SetResource(row, col int, on bool) error {
	return e.SetCell(LayerResource, row, col, on)
}

// SetPanel sets or clears the panel layer at a cell
func (e *SimEngine) SetPanel(row, col int, on bool) error {
	return e.SetCell(LayerPanel, row, col, on)
}

// Cell reports whether a layer is set at a cell; out-of-bounds cells read as unset
func (e *SimEngine) Cell(layer LayerKind, row, col int) bool {
	l, err := e.layer(layer)
	if err != nil || !e.InBounds(row, col) {
		return false
	}
	return l[e.index(row, col)]
}

// InBounds reports whether (row, col) lies on the grid
func (e *SimEngine) InBounds(row, col int) bool {
	return row >= 0 && row < e.size && col >= 0 && col < e.size
}

// GetState returns a snapshot that does not alias engine memory
func (e *SimEngine) GetState() *SimState {
	state := &SimState{
		ConfigName:         e.config.Name,
		GridSize:           e.size,
		MaxSteps:           e.maxSteps,
		Robots:             append([]Position{}, e.robots...),
		Obstacles:          append(Layer{}, e.obstacles...),
		Resources:          append(Layer{}, e.resources...),
		Panels:             append(Layer{}, e.panels...),
		StepCount:          e.stepCount,
		Score:              e.score,
		Done:               e.IsDone(),
		Initialized:        e.initialized,
		ResourcesCollected: e.collected,
		LastReward:         e.lastReward,
		LastElectricity:    e.lastElectricity,
	}
	if e.seed != nil {
		s := *e.seed
		state.Seed = &s
	}
	state.Board = Render(state)
	return state
}

// GetConfig returns the engine configuration
func (e *SimEngine) GetConfig() *SimConfig {
	return e.config
}

// GridSize returns the side length of the grid
func (e *SimEngine) GridSize() int {
	return e.size
}

// MaxSteps returns the episode length
func (e *SimEngine) MaxSteps() int {
	return e.maxSteps
}

// StepCount returns the number of ticks since the last reset
func (e *SimEngine) StepCount() int {
	return e.stepCount
}

// Score returns the accumulated score
func (e *SimEngine) Score() float64 {
	return e.score
}

// IsDone reports whether the episode has reached its step limit
func (e *SimEngine) IsDone() bool {
	return e.initialized && e.stepCount >= e.maxSteps
}

// IsInitialized reports whether a reset has run
func (e *SimEngine) IsInitialized() bool {
	return e.initialized
}

// Robots returns a copy of the robot positions in index order
func (e *SimEngine) Robots() []Position {
	return append([]Position{}, e.robots...)
}

// GetTickHistory returns a copy of the ticks of the current episode
func (e *SimEngine) GetTickHistory() []TickRecord {
	return append([]TickRecord(nil), e.history...)
}

func (e *SimEngine) index(row, col int) int {
	return row*e.size + col
}

func (e *SimEngine) layer(kind LayerKind) (Layer, error) {
	switch kind {
	case LayerObstacle:
		return e.obstacles, nil
	case LayerResource:
		return e.resources, nil
	case LayerPanel:
		return e.panels, nil
	}
	return nil, invalidLayer(kind)
}
