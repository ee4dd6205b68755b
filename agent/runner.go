package agent

import (
	"github.com/wricardo/mcp-training/solarfarm/game/engine"
)

// RunResult summarises a run of ticks driven by a policy
type RunResult struct {
	Ticks       int                `json:"ticks"`
	Episodes    int                `json:"episodes"`
	TotalReward float64            `json:"total_reward"`
	LastResult  *engine.StepResult `json:"last_result,omitempty"`
}

// StepFunc advances the simulation by one tick
type StepFunc func(actions []engine.Action) (*engine.StepResult, error)

// Run drives ticks steps of policy. When a step reports done, onDone is
// called (it usually resets the engine) and the next tick starts a new
// episode. obs seeds the first prediction.
func Run(policy Policy, obs engine.Observation, ticks int, step StepFunc, onDone func(*engine.StepResult) engine.Observation) (*RunResult, error) {
	result := &RunResult{}
	for i := 0; i < ticks; i++ {
		res, err := step(policy.Predict(obs))
		if err != nil {
			return result, err
		}
		result.Ticks++
		result.TotalReward += res.Reward
		result.LastResult = res
		obs = res.Observation

		if res.Done {
			result.Episodes++
			if onDone != nil {
				obs = onDone(res)
			}
		}
	}
	return result, nil
}
