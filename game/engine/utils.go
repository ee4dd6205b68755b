package engine

import (
	"fmt"
	"math/rand"
	"strings"
)

var orthogonal = []Position{
	{Row: -1, Col: 0},
	{Row: 1, Col: 0},
	{Row: 0, Col: -1},
	{Row: 0, Col: 1},
}

// Electricity returns this tick's yield: one per panel, plus one more for a
// panel with at least one orthogonal panel neighbour.
func (e *SimEngine) Electricity() int {
	total := 0
	for row := 0; row < e.size; row++ {
		for col := 0; col < e.size; col++ {
			if !e.panels[e.index(row, col)] {
				continue
			}
			total++
			if e.hasPanelNeighbor(row, col) {
				total++
			}
		}
	}
	return total
}

func (e *SimEngine) hasPanelNeighbor(row, col int) bool {
	for _, d := range orthogonal {
		r, c := row+d.Row, col+d.Col
		if e.InBounds(r, c) && e.panels[e.index(r, c)] {
			return true
		}
	}
	return false
}

// IsMove reports whether the action is one of the four movement codes
func (a Action) IsMove() bool {
	return a >= ActionUp && a <= ActionLeft
}

// String returns the lower-case name of the action, or its code if unknown
func (a Action) String() string {
	switch a {
	case ActionUp:
		return "up"
	case ActionRight:
		return "right"
	case ActionDown:
		return "down"
	case ActionLeft:
		return "left"
	case ActionBuildPanel:
		return "build"
	}
	return fmt.Sprintf("noop(%d)", int(a))
}

// ParseAction accepts a name ("up", "right", "down", "left", "build") and
// returns its code
func ParseAction(name string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "up", "u":
		return ActionUp, nil
	case "right", "r":
		return ActionRight, nil
	case "down", "d":
		return ActionDown, nil
	case "left", "l":
		return ActionLeft, nil
	case "build", "b", "build_panel":
		return ActionBuildPanel, nil
	}
	return 0, fmt.Errorf("unknown action %q", name)
}

// ActionsFromCodes converts raw integer codes. Codes outside 0..4 are kept and
// act as no-ops.
func ActionsFromCodes(codes []int) []Action {
	actions := make([]Action, len(codes))
	for i, c := range codes {
		actions[i] = Action(c)
	}
	return actions
}

// CountSet counts the cells set in a layer
func CountSet(l Layer) int {
	n := 0
	for _, set := range l {
		if set {
			n++
		}
	}
	return n
}

// Render draws a state as rows of characters: R robot, P panel, # obstacle,
// * resource, . empty. The characters match ParseLayout.
func Render(state *SimState) []string {
	n := state.GridSize
	if n == 0 || len(state.Obstacles) != n*n {
		return nil
	}

	rows := make([][]byte, n)
	for row := 0; row < n; row++ {
		rows[row] = make([]byte, n)
		for col := 0; col < n; col++ {
			idx := row*n + col
			switch {
			case state.Panels[idx]:
				rows[row][col] = CharPanel
			case state.Obstacles[idx]:
				rows[row][col] = CharObstacle
			case state.Resources[idx]:
				rows[row][col] = CharResource
			default:
				rows[row][col] = CharEmpty
			}
		}
	}
	for _, p := range state.Robots {
		if p.Row >= 0 && p.Row < n && p.Col >= 0 && p.Col < n {
			rows[p.Row][p.Col] = CharRobot
		}
	}

	out := make([]string, n)
	for i, r := range rows {
		out[i] = string(r)
	}
	return out
}

// randInclusive draws uniformly from [lo, hi]
func randInclusive(rng *rand.Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rng.Intn(hi-lo+1)
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
