// Package agent holds placeholder policies that turn observations into
// per-robot actions.
package agent

import (
	"math/rand"
	"sync"
	"time"

	"github.com/wricardo/mcp-training/solarfarm/game/engine"
)

// Policy picks one action per robot from an observation
type Policy interface {
	Predict(obs engine.Observation) []engine.Action
}

// DefaultRobots is the action count a RandomAgent emits when none is given
const DefaultRobots = engine.InitialRobots

// RandomAgent draws uniform action codes in [0, 4] and ignores the observation
type RandomAgent struct {
	robots int
	rng    *rand.Rand
	mu     sync.Mutex
}

// NewRandomAgent creates an agent emitting robots actions per call. A
// non-positive count falls back to DefaultRobots.
func NewRandomAgent(robots int, seed int64) *RandomAgent {
	if robots <= 0 {
		robots = DefaultRobots
	}
	return &RandomAgent{
		robots: robots,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// NewTimeSeededAgent creates a RandomAgent seeded from the clock
func NewTimeSeededAgent(robots int) *RandomAgent {
	return NewRandomAgent(robots, time.Now().UnixNano())
}

// Predict returns one uniformly random action per robot
func (a *RandomAgent) Predict(obs engine.Observation) []engine.Action {
	a.mu.Lock()
	defer a.mu.Unlock()

	actions := make([]engine.Action, a.robots)
	for i := range actions {
		actions[i] = engine.Action(a.rng.Intn(int(engine.ActionBuildPanel) + 1))
	}
	return actions
}

// Robots reports how many actions Predict emits
func (a *RandomAgent) Robots() int {
	return a.robots
}
