package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Layout characters
const (
	CharEmpty    = '.'
	CharObstacle = '#'
	CharResource = '*'
	CharPanel    = 'P'
	CharRobot    = 'R'
)

// ParsedLayout is the result of ParseLayout
type ParsedLayout struct {
	Obstacles Layer
	Resources Layer
	Panels    Layer
	Robots    []Position
}

// ValidateSimConfig validates a scenario configuration
func ValidateSimConfig(config *SimConfig) error {
	if config == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}
	if config.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}
	if config.GridSize < MinGridSize || config.GridSize > MaxGridSize {
		return fmt.Errorf("%w: grid_size must be between %d and %d, got %d",
			ErrInvalidConfig, MinGridSize, MaxGridSize, config.GridSize)
	}
	if config.MaxSteps < MinMaxSteps {
		return fmt.Errorf("%w: max_steps must be at least %d, got %d", ErrInvalidConfig, MinMaxSteps, config.MaxSteps)
	}
	if len(config.Layout) > 0 {
		if _, err := ParseLayout(config.Layout, config.GridSize); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}

// ParseLayout reads rows of layout characters into layers. Robots are
// numbered in row-major order.
func ParseLayout(rows []string, gridSize int) (*ParsedLayout, error) {
	if len(rows) != gridSize {
		return nil, fmt.Errorf("%w: layout must have %d rows to match grid_size, got %d",
			ErrInvalidLayout, gridSize, len(rows))
	}

	cells := gridSize * gridSize
	layout := &ParsedLayout{
		Obstacles: make(Layer, cells),
		Resources: make(Layer, cells),
		Panels:    make(Layer, cells),
		Robots:    []Position{},
	}

	for row, line := range rows {
		if len(line) != gridSize {
			return nil, fmt.Errorf("%w: row %d must have %d characters, got %d",
				ErrInvalidLayout, row+1, gridSize, len(line))
		}
		for col := 0; col < gridSize; col++ {
			idx := row*gridSize + col
			switch line[col] {
			case CharEmpty:
			case CharObstacle:
				layout.Obstacles[idx] = true
			case CharResource:
				layout.Resources[idx] = true
			case CharPanel:
				layout.Panels[idx] = true
			case CharRobot:
				layout.Robots = append(layout.Robots, Position{Row: row, Col: col})
			default:
				return nil, fmt.Errorf("%w: invalid character '%c' at row %d, col %d",
					ErrInvalidLayout, line[col], row+1, col+1)
			}
		}
	}

	return layout, nil
}

// DefaultSimConfig returns the classic 8x8, 300-step random scenario
func DefaultSimConfig() *SimConfig {
	return &SimConfig{
		Name:        "classic",
		Description: "Random 8x8 solar farm, 300 ticks",
		GridSize:    DefaultGridSize,
		MaxSteps:    DefaultMaxSteps,
	}
}

// LoadSimConfig loads a scenario from a JSON or YAML file, chosen by extension
func LoadSimConfig(filename string) (*SimConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	config, err := DecodeSimConfig(filepath.Ext(filename), data)
	if err != nil {
		return nil, err
	}

	if err := ValidateSimConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

// DecodeSimConfig decodes scenario bytes; ext is ".json", ".yaml" or ".yml"
func DecodeSimConfig(ext string, data []byte) (*SimConfig, error) {
	var config SimConfig
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse json: %w", err)
		}
	}
	return &config, nil
}
