package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SubscriberEntry is one entry of the subscribers file.
type SubscriberEntry struct {
	Address string `yaml:"address"`
	Name    string `yaml:"name"`
}

type subscribersFile struct {
	Subscribers []SubscriberEntry `yaml:"subscribers"`
}

// LoadSubscribers reads the subscriber list at filePath. If the file does not
// exist, an empty list is returned (not an error). Values may reference
// environment variables as ${ENV:VAR_NAME}.
func LoadSubscribers(filePath string) ([]SubscriberEntry, error) {
	data, err := os.ReadFile(filePath) //nolint:gosec // path is admin-configured
	if err != nil {
		if os.IsNotExist(err) {
			return []SubscriberEntry{}, nil
		}
		return nil, fmt.Errorf("reading subscribers file %q: %w", filePath, err)
	}

	var raw subscribersFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing subscribers file %q: %w", filePath, err)
	}

	seen := make(map[string]bool, len(raw.Subscribers))
	out := make([]SubscriberEntry, 0, len(raw.Subscribers))
	for i, entry := range raw.Subscribers {
		address, err := interpolateEnv(entry.Address)
		if err != nil {
			return nil, fmt.Errorf("subscriber %d address: %w", i, err)
		}
		name, err := interpolateEnv(entry.Name)
		if err != nil {
			return nil, fmt.Errorf("subscriber %d name: %w", i, err)
		}
		address = strings.TrimSpace(address)
		if address == "" {
			return nil, fmt.Errorf("subscriber %d: address is required", i)
		}
		if seen[address] {
			return nil, fmt.Errorf("subscriber %d: duplicate address %q", i, address)
		}
		seen[address] = true
		out = append(out, SubscriberEntry{Address: address, Name: name})
	}
	return out, nil
}

// interpolateEnv replaces all ${ENV:VAR_NAME} patterns in s with the corresponding
// environment variable values. Returns an error if a referenced variable is not set.
func interpolateEnv(s string) (string, error) {
	result := s
	for {
		start := strings.Index(result, "${ENV:")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}")
		if end == -1 {
			break
		}
		end += start
		varName := result[start+6 : end]
		value := os.Getenv(varName)
		if value == "" {
			return "", fmt.Errorf("required env var %q is not set", varName)
		}
		result = result[:start] + value + result[end+1:]
	}
	return result, nil
}
