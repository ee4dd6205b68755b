package engine

import "fmt"

// EditTool is an editor click: it places one kind of thing and clears the
// other layers so each cell keeps a single terrain.
type EditTool string

const (
	ToolRobot    EditTool = "robot"
	ToolObstacle EditTool = "obstacle"
	ToolResource EditTool = "resource"
	ToolPanel    EditTool = "panel"
	ToolClear    EditTool = "clear"
)

// ApplyEdit performs an editor action at a cell. Obstacle toggles; resource
// and panel always set.
func (e *SimEngine) ApplyEdit(tool EditTool, row, col int) error {
	if !e.InBounds(row, col) {
		return outOfBounds(row, col, e.size)
	}
	idx := e.index(row, col)

	switch tool {
	case ToolRobot:
		return e.AddRobot(row, col)
	case ToolObstacle:
		e.obstacles[idx] = !e.obstacles[idx]
		e.resources[idx] = false
		e.panels[idx] = false
	case ToolResource:
		e.resources[idx] = true
		e.obstacles[idx] = false
		e.panels[idx] = false
	case ToolPanel:
		e.panels[idx] = true
		e.obstacles[idx] = false
		e.resources[idx] = false
	case ToolClear:
		e.obstacles[idx] = false
		e.resources[idx] = false
		e.panels[idx] = false
	default:
		return fmt.Errorf("%w: %q", ErrInvalidTool, tool)
	}
	return nil
}
