package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML configuration file over the defaults. Environment
// variable references (${VAR}) in the file are expanded before parsing.
// Unknown keys are rejected so typos fail loudly instead of being ignored.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		expanded := os.ExpandEnv(string(data))

		decoder := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil && err != io.EOF {
			return Config{}, fmt.Errorf("parse config: %w", err)
		} else if err == nil {
			if err := decoder.Decode(&struct{}{}); err != io.EOF {
				return Config{}, fmt.Errorf("parse config: expected single document")
			}
		}
	}
	cfg.Session = cfg.Session.applyEnv()
	return cfg, nil
}
