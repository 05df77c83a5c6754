package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Load reads a run file from disk. See Parse.
func Load(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data, path)
}

// Parse decodes a run file. Files ending in .json are read as JSON,
// anything else as YAML. The document is checked against the schema
// before decoding, defaults are applied afterwards. Parse does not call
// Validate so that callers can overlay flags first.
func Parse(data []byte, path string) (*RunConfig, error) {
	isJSON := strings.EqualFold(filepath.Ext(path), ".json")

	var doc interface{}
	if isJSON {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}
	if doc == nil {
		doc = map[string]interface{}{}
	}

	if err := validateDocument(doc); err != nil {
		return nil, err
	}

	cfg := &RunConfig{}
	if isJSON {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode JSON config: %w", err)
		}
	} else if len(strings.TrimSpace(string(data))) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode YAML config: %w", err)
		}
	}

	ApplyDefaults(cfg)
	return cfg, nil
}
