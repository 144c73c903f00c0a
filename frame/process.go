package frame

import (
	"context"
	"errors"
	"fmt"
	"math"

	"pipelined.dev/conveyor"
)

// ErrInvalid is returned when a processed frame has no pixels or its
// buffer doesn't match the size.
var ErrInvalid = errors.New("invalid frame")

// Identity forwards frames unchanged.
func Identity() conveyor.Processor[*Frame] {
	return conveyor.Identity[*Frame]()
}

// Invert mirrors pixel values against limit. Values above limit become zero.
func Invert(limit uint16) conveyor.Processor[*Frame] {
	return pixels(func(v uint16) uint16 {
		if v > limit {
			return 0
		}
		return limit - v
	})
}

// Scale multiplies pixel values by factor. Results saturate at MaxValue.
func Scale(factor float64) conveyor.Processor[*Frame] {
	return pixels(func(v uint16) uint16 {
		return saturate(float64(v) * factor)
	})
}

// Threshold sets pixels below level to zero and others to MaxValue.
func Threshold(level uint16) conveyor.Processor[*Frame] {
	return pixels(func(v uint16) uint16 {
		if v < level {
			return 0
		}
		return MaxValue
	})
}

// Background subtracts the dark frame. Frames of other size are faulted.
func Background(dark *Frame) conveyor.Processor[*Frame] {
	return conveyor.Processor[*Frame]{
		ProcessFunc: func(_ context.Context, in *Frame) (*Frame, error) {
			if err := validate(in); err != nil {
				return nil, err
			}
			if dark == nil {
				return in, nil
			}
			if in.Width != dark.Width || in.Height != dark.Height {
				return nil, fmt.Errorf("%v and dark %v: %w", in, dark, ErrSize)
			}
			out := in.Clone()
			for i, v := range out.Pix {
				if d := dark.Pix[i]; v > d {
					out.Pix[i] = v - d
				} else {
					out.Pix[i] = 0
				}
			}
			return out, nil
		},
	}
}

// Tag sets the tag on every frame.
func Tag(key, value string) conveyor.Processor[*Frame] {
	return conveyor.Processor[*Frame]{
		ProcessFunc: func(_ context.Context, in *Frame) (*Frame, error) {
			if in == nil {
				return nil, ErrInvalid
			}
			out := in.Clone()
			if out.Tags == nil {
				out.Tags = make(map[string]string)
			}
			out.Tags[key] = value
			return out, nil
		},
	}
}

// pixels returns processor that applies fn to a copy of every pixel.
// Frames are copied because stages upstream may keep references.
func pixels(fn func(uint16) uint16) conveyor.Processor[*Frame] {
	return conveyor.Processor[*Frame]{
		ProcessFunc: func(_ context.Context, in *Frame) (*Frame, error) {
			if err := validate(in); err != nil {
				return nil, err
			}
			out := in.Clone()
			for i, v := range out.Pix {
				out.Pix[i] = fn(v)
			}
			return out, nil
		},
	}
}

func validate(f *Frame) error {
	if f == nil {
		return fmt.Errorf("nil frame: %w", ErrInvalid)
	}
	if len(f.Pix) != f.Size() {
		return fmt.Errorf("%v has %d pixels: %w", f, len(f.Pix), ErrInvalid)
	}
	return nil
}

func saturate(v float64) uint16 {
	switch {
	case v <= 0 || math.IsNaN(v):
		return 0
	case v >= MaxValue:
		return MaxValue
	default:
		return uint16(math.Round(v))
	}
}
