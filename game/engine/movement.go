package engine

// Step applies one action per robot, in robot index order, then scores the
// panels. Robots past the end of actions do nothing; extra actions are ignored.
func (e *SimEngine) Step(actions []Action) (*StepResult, error) {
	if !e.initialized {
		return nil, &UninitializedStateError{Op: "step"}
	}

	result := &StepResult{
		Robots: make([]RobotOutcome, 0, len(e.robots)),
	}

	// Later robots see what earlier robots did this tick, so this must stay a
	// sequential loop.
	for i := range e.robots {
		if i >= len(actions) {
			break
		}
		outcome := e.applyAction(i, actions[i])
		if outcome.Built {
			result.PanelsBuilt++
		}
		if outcome.Collected {
			result.ResourcesCollected++
		}
		result.Robots = append(result.Robots, outcome)
	}

	electricity := e.Electricity()
	reward := float64(electricity) * ElectricityRate
	e.score += reward
	e.stepCount++

	e.collected += result.ResourcesCollected
	e.lastReward = reward
	e.lastElectricity = electricity

	result.Electricity = electricity
	result.Reward = reward
	result.Done = e.stepCount >= e.maxSteps
	result.Observation = e.Observe()

	e.history = append(e.history, TickRecord{
		Step:        e.stepCount,
		Actions:     append([]Action{}, actions...),
		Reward:      reward,
		Electricity: electricity,
		Collected:   result.ResourcesCollected,
		Score:       e.score,
		Done:        result.Done,
	})
	// Stepping past the end of an episode keeps only the latest maxSteps ticks.
	if len(e.history) > e.maxSteps {
		e.history = e.history[len(e.history)-e.maxSteps:]
	}

	return result, nil
}

// applyAction runs one robot's action against the current layers
func (e *SimEngine) applyAction(i int, action Action) RobotOutcome {
	from := e.robots[i]
	outcome := RobotOutcome{Index: i, Action: action, From: from, To: from}

	switch {
	case action.IsMove():
		to := e.clampedMove(from, action)
		if e.obstacles[e.index(to.Row, to.Col)] {
			outcome.Blocked = true
			to = from
		}
		e.robots[i] = to
		outcome.To = to

		idx := e.index(to.Row, to.Col)
		if e.resources[idx] {
			e.resources[idx] = false
			e.score += PickupReward
			outcome.Collected = true
		}

	case action == ActionBuildPanel:
		idx := e.index(from.Row, from.Col)
		if !e.obstacles[idx] && !e.panels[idx] {
			e.panels[idx] = true
			outcome.Built = true
		}
	}

	return outcome
}

// clampedMove returns the neighbouring cell in the action's direction. Moving
// off an edge leaves that coordinate at the edge.
func (e *SimEngine) clampedMove(from Position, action Action) Position {
	to := from
	switch action {
	case ActionUp:
		to.Row = max(0, from.Row-1)
	case ActionRight:
		to.Col = min(e.size-1, from.Col+1)
	case ActionDown:
		to.Row = min(e.size-1, from.Row+1)
	case ActionLeft:
		to.Col = max(0, from.Col-1)
	}
	return to
}
