package frame

import (
	"errors"
	"fmt"
	"slices"
	"strconv"

	"pipelined.dev/conveyor"
)

// ErrUnknownProcessor is returned when processor name isn't registered.
var ErrUnknownProcessor = errors.New("unknown processor")

// Params are processor parameters from line definition.
type Params map[string]string

// String returns the parameter or def if it's not set.
func (p Params) String(key, def string) string {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

// Float parses the float parameter.
func (p Params) Float(key string, def float64) (float64, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parameter %s: %w", key, err)
	}
	return f, nil
}

// Uint16 parses the pixel value parameter.
func (p Params) Uint16(key string, def uint16) (uint16, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	u, err := strconv.ParseUint(v, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("parameter %s: %w", key, err)
	}
	return uint16(u), nil
}

// Constructor creates a processor from parameters.
type Constructor func(Params) (conveyor.Processor[*Frame], error)

// Registry maps processor names to constructors.
type Registry map[string]Constructor

// DefaultRegistry returns registry with all processors of this package.
func DefaultRegistry() Registry {
	return Registry{
		"identity": func(Params) (conveyor.Processor[*Frame], error) {
			return Identity(), nil
		},
		"invert": func(p Params) (conveyor.Processor[*Frame], error) {
			limit, err := p.Uint16("max", MaxValue)
			if err != nil {
				return conveyor.Processor[*Frame]{}, err
			}
			return Invert(limit), nil
		},
		"scale": func(p Params) (conveyor.Processor[*Frame], error) {
			factor, err := p.Float("factor", 1)
			if err != nil {
				return conveyor.Processor[*Frame]{}, err
			}
			return Scale(factor), nil
		},
		"threshold": func(p Params) (conveyor.Processor[*Frame], error) {
			level, err := p.Uint16("level", MaxValue/2)
			if err != nil {
				return conveyor.Processor[*Frame]{}, err
			}
			return Threshold(level), nil
		},
		"background": func(p Params) (conveyor.Processor[*Frame], error) {
			path, ok := p["dark"]
			if !ok {
				return conveyor.Processor[*Frame]{}, errors.New("parameter dark is required")
			}
			_, frames, err := ReadRecordingFile(path)
			if err != nil {
				return conveyor.Processor[*Frame]{}, err
			}
			if len(frames) == 0 {
				return conveyor.Processor[*Frame]{}, fmt.Errorf("dark recording %s has no frames", path)
			}
			return Background(frames[0]), nil
		},
		"tag": func(p Params) (conveyor.Processor[*Frame], error) {
			key, ok := p["key"]
			if !ok {
				return conveyor.Processor[*Frame]{}, errors.New("parameter key is required")
			}
			return Tag(key, p.String("value", "")), nil
		},
		"record": func(p Params) (conveyor.Processor[*Frame], error) {
			path, ok := p["file"]
			if !ok {
				return conveyor.Processor[*Frame]{}, errors.New("parameter file is required")
			}
			return RecordFile(path), nil
		},
	}
}

// Register adds the constructor. Existing one is replaced.
func (r Registry) Register(name string, c Constructor) {
	r[name] = c
}

// New creates a processor by name.
func (r Registry) New(name string, p Params) (conveyor.Processor[*Frame], error) {
	c, ok := r[name]
	if !ok {
		return conveyor.Processor[*Frame]{}, fmt.Errorf("%s: %w", name, ErrUnknownProcessor)
	}
	proc, err := c(p)
	if err != nil {
		return conveyor.Processor[*Frame]{}, fmt.Errorf("processor %s: %w", name, err)
	}
	return proc, nil
}

// Names returns sorted processor names.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
