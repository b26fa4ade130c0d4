package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ScheduleEntry is one recurring notification. Exactly one of Cron or Every
// must be set.
type ScheduleEntry struct {
	Name    string        `yaml:"name"`
	Cron    string        `yaml:"cron"`
	Every   time.Duration `yaml:"every"`
	Subject string        `yaml:"subject"`
	Body    string        `yaml:"body"`
}

type schedulesFile struct {
	Schedules []ScheduleEntry `yaml:"schedules"`
}

// LoadSchedules reads the schedule list at filePath. A missing file yields an
// empty list. Subject and body may reference ${ENV:VAR_NAME}.
func LoadSchedules(filePath string) ([]ScheduleEntry, error) {
	data, err := os.ReadFile(filePath) //nolint:gosec // path is admin-configured
	if err != nil {
		if os.IsNotExist(err) {
			return []ScheduleEntry{}, nil
		}
		return nil, fmt.Errorf("reading schedules file %q: %w", filePath, err)
	}

	var raw schedulesFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing schedules file %q: %w", filePath, err)
	}

	seen := make(map[string]bool, len(raw.Schedules))
	out := make([]ScheduleEntry, 0, len(raw.Schedules))
	for i, entry := range raw.Schedules {
		entry.Name = strings.TrimSpace(entry.Name)
		if entry.Name == "" {
			return nil, fmt.Errorf("schedule %d: name is required", i)
		}
		if seen[entry.Name] {
			return nil, fmt.Errorf("schedule %d: duplicate name %q", i, entry.Name)
		}
		seen[entry.Name] = true

		hasCron := strings.TrimSpace(entry.Cron) != ""
		if hasCron == (entry.Every > 0) {
			return nil, fmt.Errorf("schedule %q: exactly one of cron or every is required", entry.Name)
		}
		if entry.Subject, err = interpolateEnv(entry.Subject); err != nil {
			return nil, fmt.Errorf("schedule %q subject: %w", entry.Name, err)
		}
		if entry.Body, err = interpolateEnv(entry.Body); err != nil {
			return nil, fmt.Errorf("schedule %q body: %w", entry.Name, err)
		}
		out = append(out, entry)
	}
	return out, nil
}
