package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Set overrides a single field addressed as "section.key", e.g.
// "risk.max_open_positions". The value is parsed as a YAML scalar so numbers
// and booleans keep their type. The config is left untouched on error.
func (c *Config) Set(key, value string) error {
	section, field, ok := strings.Cut(key, ".")
	if !ok || section == "" || field == "" {
		return fmt.Errorf("key must be section.param, e.g. risk.max_open_positions")
	}

	raw, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	doc := map[string]map[string]any{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}

	sec, ok := doc[section]
	if !ok {
		return fmt.Errorf("unknown config section %q", section)
	}
	if _, ok := sec[field]; !ok {
		return fmt.Errorf("unknown config key %q", key)
	}

	var parsed any
	if err := yaml.Unmarshal([]byte(value), &parsed); err != nil {
		return fmt.Errorf("parse value %q: %w", value, err)
	}
	sec[field] = parsed

	raw, err = yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	next := Default()
	if err := yaml.Unmarshal(raw, next); err != nil {
		return fmt.Errorf("apply %s: %w", key, err)
	}
	if err := next.Validate(); err != nil {
		return err
	}

	*c = *next
	return nil
}
