// Package engine provides the core simulation for the Solar Farm game.
//
// A square grid holds robots, obstacles, harvestable resources and solar
// panels. A controller supplies one action per robot per tick; the engine
// moves robots, collects resources, builds panels and scores the electricity
// the panels generate.
//
// Core Types:
//
// The Engine interface defines the main contract, implemented by SimEngine.
// SimState is a read-only snapshot for renderers, SimConfig describes a
// scenario and Observation is the flat vector handed to decision makers.
//
// Usage:
//
//	eng, err := engine.NewEngine(engine.DefaultSimConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	obs := eng.ResetWithSeed(42)
//	result, err := eng.Step([]engine.Action{engine.ActionRight, engine.ActionBuildPanel})
//
// Rules:
//
// Actions are 0=up, 1=right, 2=down, 3=left, 4=build panel; anything else is a
// no-op. Movement is clamped at the grid edge and blocked by obstacles.
// Stepping onto a resource collects it for one point. Building places a panel
// under the robot unless the cell is an obstacle or already a panel. After
// all robots act, each panel yields 1, or 2 if an orthogonal neighbour is also
// a panel, and a tenth of the total is added to the score and returned as the
// reward. The episode is done once the step count reaches MaxSteps.
//
// An engine is not safe for concurrent use; callers serialise access.
package engine
