package session

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadConfigFile reads a YAML config file into a Config. Fields the file
// doesn't set (credentials provider, KMS/STS client overrides, SDK option
// hooks) keep their Go zero value; callers typically overlay those in code
// after loading.
func LoadConfigFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pocodynamo: reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("pocodynamo: parsing config file: %w", err)
	}
	return cfg, nil
}
