package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/wricardo/mcp-training/solarfarm/game/engine"
	"github.com/wricardo/mcp-training/solarfarm/game/service"
)

var (
	ErrConfigNotFound = service.ErrConfigNotFound
	ErrInvalidConfig  = engine.ErrInvalidConfig
)

// DefaultName is the scenario used when none is requested
const DefaultName = "classic"

// Extensions lists recognised scenario file extensions in lookup order
var Extensions = []string{".json", ".yaml", ".yml"}

//go:embed scenario.schema.json
var schemaText string

var scenarioSchema = jsonschema.MustCompileString("scenario.schema.json", schemaText)

// Manager handles scenario loading and caching
type Manager struct {
	configDir     string
	defaultConfig *engine.SimConfig
	configs       map[string]*engine.SimConfig
	mu            sync.RWMutex
}

// NewManager creates a new configuration manager
func NewManager(configDir string) (*Manager, error) {
	if _, err := os.Stat(configDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("config directory does not exist: %s", configDir)
	}

	m := &Manager{
		configDir: configDir,
		configs:   make(map[string]*engine.SimConfig),
	}

	m.setDefault(m.resolveDefault())
	return m, nil
}

// LoadConfig loads a scenario by name. The name may carry an extension;
// without one, .json, .yaml and .yml are tried in turn.
func (m *Manager) LoadConfig(name string) (*engine.SimConfig, error) {
	key := configID(name)

	m.mu.RLock()
	if config, exists := m.configs[key]; exists {
		m.mu.RUnlock()
		return config, nil
	}
	m.mu.RUnlock()

	path, err := m.findFile(name)
	if err != nil {
		return nil, err
	}

	config, err := ReadFile(path)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cached, exists := m.configs[key]; exists {
		return cached, nil
	}
	m.configs[key] = config
	return config, nil
}

// ListConfigs returns information about every valid scenario file
func (m *Manager) ListConfigs() ([]*service.ScenarioInfo, error) {
	entries, err := os.ReadDir(m.configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read config directory: %w", err)
	}

	var infos []*service.ScenarioInfo
	seen := make(map[string]bool)

	for _, entry := range entries {
		if entry.IsDir() || !isScenarioFile(entry.Name()) {
			continue
		}

		id := configID(entry.Name())
		if seen[id] {
			continue
		}

		config, err := m.LoadConfig(entry.Name())
		if err != nil {
			// Skip invalid configs
			continue
		}
		seen[id] = true

		infos = append(infos, &service.ScenarioInfo{
			Filename:    entry.Name(),
			ConfigID:    id,
			Name:        config.Name,
			Description: config.Description,
			GridSize:    config.GridSize,
			MaxSteps:    config.MaxSteps,
			Seeded:      config.Seed != nil,
			HasLayout:   len(config.Layout) > 0,
		})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].ConfigID < infos[j].ConfigID })
	return infos, nil
}

// GetDefault returns the default configuration
func (m *Manager) GetDefault() *engine.SimConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultConfig
}

// SetDefault sets the default configuration by name
func (m *Manager) SetDefault(name string) error {
	config, err := m.LoadConfig(name)
	if err != nil {
		return err
	}
	m.setDefault(config)
	return nil
}

// RefreshCache drops cached scenarios and re-resolves the default
func (m *Manager) RefreshCache() error {
	m.mu.Lock()
	m.configs = make(map[string]*engine.SimConfig)
	m.mu.Unlock()

	m.setDefault(m.resolveDefault())
	return nil
}

// SaveConfig validates and writes a scenario. A .yaml or .yml suffix on the
// name selects YAML; anything else is written as JSON.
func (m *Manager) SaveConfig(name string, config *engine.SimConfig) error {
	if err := engine.ValidateSimConfig(config); err != nil {
		return err
	}

	filename := name
	ext := strings.ToLower(filepath.Ext(name))
	if !isScenarioExt(ext) {
		ext = ".json"
		filename = name + ext
	}
	if strings.ContainsAny(configID(name), `/\`) || configID(name) == "" {
		return fmt.Errorf("%w: bad scenario name %q", ErrInvalidConfig, name)
	}

	var data []byte
	var err error
	if ext == ".json" {
		data, err = json.MarshalIndent(config, "", "  ")
	} else {
		data, err = yaml.Marshal(config)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filepath.Join(m.configDir, filename), data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	m.mu.Lock()
	m.configs[configID(name)] = config
	m.mu.Unlock()

	return nil
}

func (m *Manager) setDefault(config *engine.SimConfig) {
	m.mu.Lock()
	m.defaultConfig = config
	m.mu.Unlock()
}

// resolveDefault prefers classic, then the first valid scenario on disk, then
// the built-in minimal scenario.
func (m *Manager) resolveDefault() *engine.SimConfig {
	if config, err := m.LoadConfig(DefaultName); err == nil {
		return config
	}

	infos, err := m.ListConfigs()
	if err != nil || len(infos) == 0 {
		return createMinimalConfig()
	}

	config, err := m.LoadConfig(infos[0].Filename)
	if err != nil {
		return createMinimalConfig()
	}
	return config
}

func (m *Manager) findFile(name string) (string, error) {
	if isScenarioExt(strings.ToLower(filepath.Ext(name))) {
		path := filepath.Join(m.configDir, name)
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				return "", ErrConfigNotFound
			}
			return "", fmt.Errorf("failed to read config file: %w", err)
		}
		return path, nil
	}

	for _, ext := range Extensions {
		path := filepath.Join(m.configDir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", ErrConfigNotFound
}

// ReadFile reads, schema-checks and validates a single scenario file
func ReadFile(path string) (*engine.SimConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Decode(filepath.Ext(path), data)
}

// Decode schema-checks raw scenario bytes and returns the validated config
func Decode(ext string, data []byte) (*engine.SimConfig, error) {
	if err := ValidateDocument(ext, data); err != nil {
		return nil, err
	}

	config, err := engine.DecodeSimConfig(ext, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if err := engine.ValidateSimConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

// ValidateDocument checks raw scenario bytes against the scenario schema
func ValidateDocument(ext string, data []byte) error {
	doc, err := toJSONDocument(ext, data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := scenarioSchema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// toJSONDocument normalises JSON or YAML into the generic form the schema
// validator walks.
func toJSONDocument(ext string, data []byte) (any, error) {
	raw := data
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		var v any
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("failed to parse yaml: %w", err)
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to convert yaml: %w", err)
		}
		raw = b
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse json: %w", err)
	}
	return doc, nil
}

func configID(name string) string {
	ext := filepath.Ext(name)
	if isScenarioExt(strings.ToLower(ext)) {
		return strings.TrimSuffix(name, ext)
	}
	return name
}

func isScenarioFile(name string) bool {
	return isScenarioExt(strings.ToLower(filepath.Ext(name)))
}

func isScenarioExt(ext string) bool {
	for _, e := range Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// createMinimalConfig creates a minimal valid configuration
func createMinimalConfig() *engine.SimConfig {
	return &engine.SimConfig{
		Name:        "default",
		Description: "Default minimal configuration",
		GridSize:    5,
		MaxSteps:    100,
		Layout: []string{
			"R...R",
			".*.*.",
			"..#..",
			".*.*.",
			".....",
		},
	}
}
