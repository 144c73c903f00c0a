package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"pipelined.dev/conveyor"
	"pipelined.dev/conveyor/frame"
	"pipelined.dev/conveyor/log"
)

// ErrDefinition is returned for invalid line definitions.
var ErrDefinition = errors.New("invalid line definition")

// Line describes a processing line.
type Line struct {
	Name string `yaml:"name"`
	// Capacity overrides the capacity from settings if positive.
	Capacity int     `yaml:"capacity,omitempty"`
	Stages   []Stage `yaml:"stages"`
}

// Stage describes a single stage of the line.
type Stage struct {
	Name      string       `yaml:"name"`
	Processor string       `yaml:"processor"`
	Params    frame.Params `yaml:"params,omitempty"`
	// Disabled stages are created in disabled state.
	Disabled bool `yaml:"disabled,omitempty"`
	// OnDisabled is either "pass" or "drop".
	OnDisabled string `yaml:"on_disabled,omitempty"`
}

// ParseLine decodes and validates YAML line definition.
func ParseLine(data []byte) (*Line, error) {
	var l Line
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parse line YAML: %w", err)
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return &l, nil
}

// LoadLine reads line definition from file.
func LoadLine(path string) (*Line, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read line %s: %w", path, err)
	}
	return ParseLine(data)
}

// Validate checks that stages have unique names, processors and known
// disabled policies.
func (l *Line) Validate() error {
	if l.Name == "" {
		return fmt.Errorf("name is required: %w", ErrDefinition)
	}
	if l.Capacity < 0 {
		return fmt.Errorf("line %s: negative capacity: %w", l.Name, ErrDefinition)
	}
	names := make(map[string]struct{}, len(l.Stages))
	for i, s := range l.Stages {
		if s.Name == "" {
			return fmt.Errorf("line %s: stage %d has no name: %w", l.Name, i, ErrDefinition)
		}
		if _, ok := names[s.Name]; ok {
			return fmt.Errorf("line %s: stage %s is duplicated: %w", l.Name, s.Name, ErrDefinition)
		}
		names[s.Name] = struct{}{}
		if s.Processor == "" {
			return fmt.Errorf("line %s: stage %s has no processor: %w", l.Name, s.Name, ErrDefinition)
		}
		if _, err := parsePolicy(s.OnDisabled); err != nil {
			return fmt.Errorf("line %s: stage %s: %w", l.Name, s.Name, err)
		}
	}
	return nil
}

// Marshal encodes the line back to YAML.
func (l *Line) Marshal() ([]byte, error) {
	return yaml.Marshal(l)
}

// Build creates stages with processors from the registry.
func (l *Line) Build(r frame.Registry, s *Settings, logger log.Logger) ([]*conveyor.Stage[*frame.Frame], error) {
	if s == nil {
		s = Default()
	}
	stages := make([]*conveyor.Stage[*frame.Frame], 0, len(l.Stages))
	for _, def := range l.Stages {
		proc, err := r.New(def.Processor, def.Params)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", def.Name, err)
		}
		// validated before
		proc.Disabled, _ = parsePolicy(def.OnDisabled)

		opts := []conveyor.StageOption{conveyor.WithPollInterval(s.PollInterval)}
		if logger != nil {
			opts = append(opts, conveyor.WithStageLogger(logger))
		}
		if def.Disabled {
			opts = append(opts, conveyor.StartDisabled())
		}
		stages = append(stages, conveyor.NewStage(def.Name, proc, opts...))
	}
	return stages, nil
}

// Options returns pipe options of the line.
func (l *Line) Options(s *Settings) []conveyor.Option {
	capacity := l.Capacity
	if capacity == 0 && s != nil {
		capacity = s.Capacity
	}
	opts := []conveyor.Option{conveyor.WithName(l.Name)}
	if capacity > 0 {
		opts = append(opts, conveyor.WithCapacity(capacity))
	}
	return opts
}

func parsePolicy(s string) (conveyor.DisabledPolicy, error) {
	switch s {
	case "", "pass":
		return conveyor.PassThrough, nil
	case "drop":
		return conveyor.Drop, nil
	default:
		return conveyor.PassThrough, fmt.Errorf("unknown disabled policy %q: %w", s, ErrDefinition)
	}
}
