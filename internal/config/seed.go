package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServiceTypeSeed is the YAML file that pre-populates team service types.
type ServiceTypeSeed struct {
	Teams []TeamSeed `yaml:"teams"`
}

// TeamSeed lists the service types of one team.
type TeamSeed struct {
	TeamID       string            `yaml:"team_id"`
	ServiceTypes []ServiceTypeSpec `yaml:"service_types"`
}

// ServiceTypeSpec is one seeded service type.
type ServiceTypeSpec struct {
	ID             string   `yaml:"id"`
	Name           string   `yaml:"name"`
	ScheduleType   string   `yaml:"schedule_type"`
	DefaultWeekday *Weekday `yaml:"default_weekday"`
	ServiceTime    string   `yaml:"service_time"`
	RehearsalType  string   `yaml:"rehearsal_type"`
	RehearsalTime  string   `yaml:"rehearsal_time"`
	Order          *int     `yaml:"order"`
	Primary        bool     `yaml:"primary"`
}

// Weekday accepts either 0-6 (Sunday first) or an English day name.
type Weekday time.Weekday

// UnmarshalYAML implements yaml.Unmarshaler.
func (w *Weekday) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: weekday must be a scalar", node.Line)
	}
	value := strings.ToLower(strings.TrimSpace(node.Value))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if value == name || value == name[:3] || value == fmt.Sprint(int(d)) {
			*w = Weekday(d)
			return nil
		}
	}
	return fmt.Errorf("line %d: unknown weekday %q", node.Line, node.Value)
}

// Time returns the weekday as a time.Weekday pointer, or nil when unset.
func (w *Weekday) Time() *time.Weekday {
	if w == nil {
		return nil
	}
	d := time.Weekday(*w)
	return &d
}

// LoadServiceTypeSeed reads a service type seed file. An empty path returns
// an empty seed.
func LoadServiceTypeSeed(path string) (ServiceTypeSeed, error) {
	var seed ServiceTypeSeed
	if strings.TrimSpace(path) == "" {
		return seed, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return seed, fmt.Errorf("read service type seed: %w", err)
	}
	return ParseServiceTypeSeed(data)
}

// ParseServiceTypeSeed decodes a seed document. Unknown fields are rejected
// and every team must name its id.
func ParseServiceTypeSeed(data []byte) (ServiceTypeSeed, error) {
	var seed ServiceTypeSeed
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		if errors.Is(err, io.EOF) {
			return ServiceTypeSeed{}, nil
		}
		return ServiceTypeSeed{}, fmt.Errorf("decode service type seed: %w", err)
	}
	for i, team := range seed.Teams {
		if strings.TrimSpace(team.TeamID) == "" {
			return ServiceTypeSeed{}, fmt.Errorf("decode service type seed: teams[%d].team_id is required", i)
		}
	}
	return seed, nil
}
