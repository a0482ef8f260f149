package dock

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultConfig returns the configuration used when no YAML file is given:
// default match parameters, no surfaces, MQTT disabled, HTTP on 8080.
func DefaultConfig() *Config {
	return &Config{
		HTTP:    HTTPConfig{Port: 8080},
		Logging: LoggingConfig{Level: "info"},
		DataDir: "data",
	}
}

// LoadConfig loads the unified configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	// Validate match parameters after defaults are applied
	resolved := config.Match.Resolve()
	if resolved.NBestPairs < 1 {
		return nil, fmt.Errorf("match.n_best_pairs must be at least 1, got %d", resolved.NBestPairs)
	}
	if resolved.GeodesicThreshold < 0 {
		return nil, fmt.Errorf("match.geodesic_threshold must not be negative, got %g", resolved.GeodesicThreshold)
	}

	// Validate surface configs
	seen := make(map[string]bool)
	targets := 0
	for i, sc := range config.Surfaces {
		if sc.ID == "" {
			return nil, fmt.Errorf("surfaces[%d].id is required", i)
		}
		if seen[sc.ID] {
			return nil, fmt.Errorf("surfaces[%d]: duplicate id %q", i, sc.ID)
		}
		seen[sc.ID] = true
		switch sc.Role {
		case RoleTarget:
			targets++
		case RoleLigand:
		default:
			return nil, fmt.Errorf("surfaces[%d].role must be %q or %q, got %q", i, RoleTarget, RoleLigand, sc.Role)
		}
	}
	if len(config.Surfaces) > 0 && targets == 0 {
		return nil, fmt.Errorf("exactly one surface must have role %q", RoleTarget)
	}
	if targets > 1 {
		return nil, fmt.Errorf("only one surface may have role %q, got %d", RoleTarget, targets)
	}

	if config.DataDir == "" {
		config.DataDir = "data"
	}
	if config.HTTP.Port == 0 {
		config.HTTP.Port = 8080
	}
	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	return &config, nil
}

// LoadConfigOrDefault loads the configuration from path, or returns
// DefaultConfig when path is empty. The file-based CLI modes run without a
// config file; the service modes need one.
func LoadConfigOrDefault(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	return LoadConfig(path)
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
