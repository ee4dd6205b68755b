// Command validate checks the scenario files in a directory (../configs by
// default, or the first argument). For each .json, .yaml or .yml file it checks:
//   - the embedded scenario schema (field types, ranges, layout characters)
//   - the engine's own rules (grid size, max steps, layout shape)
//   - for fixed layouts, that at least one robot is placed
//   - for fixed layouts, that every resource is reachable from a robot
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wricardo/mcp-training/solarfarm/game/config"
	"github.com/wricardo/mcp-training/solarfarm/game/engine"
)

// ValidationResult captures the outcome of validating a single file.
// If Valid is true, Errors contains informational messages; otherwise it
// accumulates the validation errors that were found.
type ValidationResult struct {
	File   string
	Valid  bool
	Errors []string
}

// validateScenario loads and validates a single scenario file.
func validateScenario(filePath string) ValidationResult {
	result := ValidationResult{
		File:   filepath.Base(filePath),
		Valid:  true,
		Errors: []string{},
	}

	scenario, err := config.ReadFile(filePath)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	start := "random placement (clock seeded)"
	if scenario.Seed != nil {
		start = fmt.Sprintf("random placement (seed %d)", *scenario.Seed)
	}

	if len(scenario.Layout) > 0 {
		start = "fixed layout"
		layout, err := engine.ParseLayout(scenario.Layout, scenario.GridSize)
		if err != nil {
			result.Valid = false
			result.Errors = append(result.Errors, err.Error())
			return result
		}

		if len(layout.Robots) == 0 {
			result.Valid = false
			result.Errors = append(result.Errors, "Layout places no robots (R)")
		}

		reach := validateReachability(layout, scenario.GridSize)
		result.Errors = append(result.Errors, reach.Errors...)
		if !reach.Valid {
			result.Valid = false
		}

		if result.Valid {
			result.Errors = append(result.Errors,
				fmt.Sprintf("✓ Robots: %d", len(layout.Robots)),
				fmt.Sprintf("✓ Obstacles: %d", engine.CountSet(layout.Obstacles)),
				fmt.Sprintf("✓ Resources: %d", engine.CountSet(layout.Resources)),
				fmt.Sprintf("✓ Panels: %d", engine.CountSet(layout.Panels)),
			)
		}
	}

	if result.Valid {
		result.Errors = append(result.Errors,
			fmt.Sprintf("✓ Name: %s", scenario.Name),
			fmt.Sprintf("✓ Grid: %dx%d", scenario.GridSize, scenario.GridSize),
			fmt.Sprintf("✓ Max steps: %d", scenario.MaxSteps),
			fmt.Sprintf("✓ Start: %s", start),
		)
	}

	return result
}

// validateReachability flood-fills from every robot over non-obstacle cells
// with 4-directional movement and reports resources no robot can reach.
func validateReachability(layout *engine.ParsedLayout, gridSize int) ValidationResult {
	result := ValidationResult{
		Valid:  true,
		Errors: []string{},
	}

	total := engine.CountSet(layout.Resources)
	if total == 0 {
		result.Errors = append(result.Errors, "✓ Reachability: no resources to collect")
		return result
	}

	visited := make([]bool, gridSize*gridSize)
	queue := make([]engine.Position, 0, len(layout.Robots))
	for _, r := range layout.Robots {
		queue = append(queue, r)
	}

	passable := func(p engine.Position) bool {
		if p.Row < 0 || p.Col < 0 || p.Row >= gridSize || p.Col >= gridSize {
			return false
		}
		return !layout.Obstacles[p.Row*gridSize+p.Col]
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		idx := current.Row*gridSize + current.Col
		if visited[idx] {
			continue
		}
		visited[idx] = true

		directions := []engine.Position{{Row: -1}, {Row: 1}, {Col: -1}, {Col: 1}}
		for _, d := range directions {
			next := engine.Position{Row: current.Row + d.Row, Col: current.Col + d.Col}
			if passable(next) && !visited[next.Row*gridSize+next.Col] {
				queue = append(queue, next)
			}
		}
	}

	var unreachable []string
	for i, hasResource := range layout.Resources {
		if hasResource && !visited[i] {
			unreachable = append(unreachable, fmt.Sprintf("Resource at (%d,%d)", i/gridSize, i%gridSize))
		}
	}

	if len(unreachable) > 0 {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("Reachability failure: %d/%d resources unreachable from any robot", len(unreachable), total))
		for _, r := range unreachable {
			result.Errors = append(result.Errors, fmt.Sprintf("Unreachable: %s", r))
		}
	} else {
		result.Errors = append(result.Errors, fmt.Sprintf("✓ Reachability: all %d resources reachable", total))
	}

	return result
}

// scenarioFiles lists every scenario file in dir, sorted by name.
func scenarioFiles(dir string) ([]string, error) {
	var files []string
	for _, ext := range config.Extensions {
		matches, err := filepath.Glob(filepath.Join(dir, "*"+ext))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	sort.Strings(files)
	return files, nil
}

// main validates each scenario file, printing a concise report and exiting
// with non-zero status if any are invalid.
func main() {
	configDir := "../configs"
	if len(os.Args) > 1 {
		configDir = os.Args[1]
	}

	files, err := scenarioFiles(configDir)
	if err != nil {
		fmt.Printf("Error finding scenario files: %v\n", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Printf("No scenario files found in %s\n", configDir)
		os.Exit(1)
	}

	allValid := true
	for _, file := range files {
		result := validateScenario(file)

		fmt.Printf("\n%s %s\n", strings.Repeat("=", 20), result.File)

		if result.Valid {
			fmt.Println("✅ VALID")
			for _, info := range result.Errors {
				fmt.Println("  " + info)
			}
		} else {
			fmt.Println("❌ INVALID")
			allValid = false
			for _, err := range result.Errors {
				if !strings.HasPrefix(err, "✓") {
					fmt.Println("  ❌ " + err)
				}
			}
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 40))
	if allValid {
		fmt.Println("✅ All scenarios are valid!")
	} else {
		fmt.Println("❌ Some scenarios have errors")
		os.Exit(1)
	}
}
