package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SafetyThresholds maps a harm category to its blocking threshold. Categories
// and thresholds use the snake_case names from moderation.yml; the classifier
// package translates them into provider-specific values.
type SafetyThresholds map[string]string

// DefaultSafetyThresholds mirrors the shipped moderation.yml and is used when
// no thresholds file is present.
func DefaultSafetyThresholds() SafetyThresholds {
	return SafetyThresholds{
		"hate_speech":       "block_only_high",
		"dangerous_content": "block_none",
		"harassment":        "block_medium_and_above",
		"sexually_explicit": "block_low_and_above",
	}
}

type moderationFile struct {
	Categories map[string]string `yaml:"categories"`
}

// LoadSafetyThresholds reads per-category sensitivity thresholds from the
// given YAML file. A missing file falls back to defaults; a present but
// unreadable or malformed file is an error, since silently running with the
// wrong sensitivity would defeat the point of configuring it.
func LoadSafetyThresholds(path string) (SafetyThresholds, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSafetyThresholds(), nil
		}
		return nil, fmt.Errorf("failed to read moderation config %s: %w", path, err)
	}

	var file moderationFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse moderation config %s: %w", path, err)
	}
	if len(file.Categories) == 0 {
		return nil, fmt.Errorf("moderation config %s defines no categories", path)
	}

	return SafetyThresholds(file.Categories), nil
}
