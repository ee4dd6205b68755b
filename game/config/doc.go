// Package config loads and caches Solar Farm scenarios.
//
// Scenarios live as JSON or YAML files in a config directory. Each file is
// checked against an embedded JSON schema before it is decoded, then
// validated by the engine. A scenario names a grid size and tick budget and
// may pin a seed or supply an explicit layout:
//
//	name: courtyard
//	grid_size: 4
//	max_steps: 120
//	layout:
//	  - "R..R"
//	  - ".*#."
//	  - ".#*."
//	  - "...."
//
// Layout characters are '.' empty, '#' obstacle, '*' resource, 'P' panel and
// 'R' robot.
//
// Usage:
//
//	manager, err := config.NewManager("configs")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	scenario, err := manager.LoadConfig("courtyard")
//	infos, err := manager.ListConfigs()
//
// The default scenario is "classic" when present, otherwise the first valid
// file, otherwise a small built-in layout.
package config
