// Package config reads and validates the repository's Lightkeeper
// configuration document.
package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// DefaultType is the event type a configuration targets when it names none.
const DefaultType = "check"

// Config is the configuration document committed to the repository.
type Config struct {
	BaseURL        string         `mapstructure:"baseUrl" json:"baseUrl"`
	CI             string         `mapstructure:"ci" json:"ci"`
	Type           string         `mapstructure:"type" json:"type,omitempty"`
	Lighthouse     any            `mapstructure:"lighthouse" json:"lighthouse,omitempty"`
	Routes         []any          `mapstructure:"routes" json:"routes,omitempty"`
	Settings       map[string]any `mapstructure:"settings" json:"settings,omitempty"`
	SharedSettings map[string]any `mapstructure:"sharedSettings" json:"sharedSettings,omitempty"`
}

// Empty reports whether the document is missing or was rejected, in which
// case the run stops without touching the pull request.
func (c *Config) Empty() bool {
	return c == nil || c.BaseURL == ""
}

// ValidationError lists the required keys that are absent or not strings.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return "Missing required keys or invalid types: " + strings.Join(e.Missing, ", ")
}

var requiredKeys = []string{"baseUrl", "ci"}

// Parse decodes a JSON configuration document.
func Parse(data []byte) (*Config, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid configuration JSON: %w", err)
	}
	if raw == nil {
		return nil, &ValidationError{Missing: requiredKeys}
	}
	return FromMap(raw)
}

// FromMap validates and decodes an already parsed document, e.g. one read from
// YAML.
func FromMap(raw map[string]any) (*Config, error) {
	var missing []string
	for _, key := range requiredKeys {
		if s, ok := raw[key].(string); !ok || s == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Missing: missing}
	}

	var cfg struct {
		Config        `mapstructure:",squash"`
		NamedSettings map[string]any `mapstructure:"namedSettings"`
	}
	if err := mapstructure.Decode(raw, &cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	out := cfg.Config
	if out.SharedSettings == nil {
		out.SharedSettings = cfg.NamedSettings
	}
	if out.Type == "" {
		out.Type = DefaultType
	}
	out.CI = strings.ToLower(out.CI)
	return &out, nil
}
