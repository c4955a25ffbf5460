package distro

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Reads a configuration file in YAML or JSON.
func Load(path string) (BuildConfiguration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return BuildConfiguration{}, fmt.Errorf("failed to read configuration: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return BuildConfiguration{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Decodes and validates a configuration.
//
// The document is checked against the schema, merged over [Default] so that
// omitted fields keep their wizard defaults, and then validated.
func Parse(data []byte) (BuildConfiguration, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return BuildConfiguration{}, fmt.Errorf("%w: empty document", ErrInvalidConfiguration)
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return BuildConfiguration{}, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}
	if err := ValidateDocument(doc); err != nil {
		return BuildConfiguration{}, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return BuildConfiguration{}, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}
	if cfg.SelectedPackages == nil {
		cfg.SelectedPackages = map[string]bool{}
	}

	if err := Validate(cfg); err != nil {
		return BuildConfiguration{}, err
	}
	return cfg, nil
}
