package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// GetPath retrieves a value from the configuration using a dot-notation
// path of YAML keys, e.g. "dispatch.deadline".
func (c *Config) GetPath(path string) (any, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return getValue(m, path)
}

func getValue(m map[string]any, path string) (any, error) {
	var current any = m
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			continue
		}
		node, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("path %q breaks at %q (not a map)", path, part)
		}
		val, exists := node[part]
		if !exists {
			return nil, fmt.Errorf("path %q: key %q not found", path, part)
		}
		current = val
	}
	return current, nil
}

// Redacted returns a copy with secrets masked, suitable for printing.
func (c *Config) Redacted() *Config {
	out := *c
	out.API.Auth.Tokens = make([]APIToken, len(c.API.Auth.Tokens))
	for i, tok := range c.API.Auth.Tokens {
		out.API.Auth.Tokens[i] = APIToken{Token: mask(tok.Token), Scopes: tok.Scopes}
	}
	out.API.Auth.APIKey = mask(c.API.Auth.APIKey)
	out.Delegate.CallbackSecret = mask(c.Delegate.CallbackSecret)
	return &out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
