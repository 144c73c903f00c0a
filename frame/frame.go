// Package frame provides camera frames and processors to build imaging
// lines with conveyor.
package frame

import (
	"errors"
	"fmt"
	"maps"
)

// MaxValue is the maximum value of 16-bit pixel.
const MaxValue = 1<<16 - 1

var (
	// ErrBounds is returned when pixel coordinates are outside of frame.
	ErrBounds = errors.New("out of bounds")
	// ErrSize is returned when frames of different size are combined.
	ErrSize = errors.New("size mismatch")
)

// Frame is a single monochrome 16-bit image. Pixels are stored row by
// row.
type Frame struct {
	ID     uint64            `msgpack:"id"`
	Width  int               `msgpack:"width"`
	Height int               `msgpack:"height"`
	Pix    []uint16          `msgpack:"pix"`
	Tags   map[string]string `msgpack:"tags,omitempty"`
}

// New allocates a black frame.
func New(id uint64, width, height int) *Frame {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Frame{
		ID:     id,
		Width:  width,
		Height: height,
		Pix:    make([]uint16, width*height),
	}
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	return &Frame{
		ID:     f.ID,
		Width:  f.Width,
		Height: f.Height,
		Pix:    append([]uint16(nil), f.Pix...),
		Tags:   maps.Clone(f.Tags),
	}
}

// At returns the pixel value.
func (f *Frame) At(x, y int) (uint16, error) {
	i, err := f.index(x, y)
	if err != nil {
		return 0, err
	}
	return f.Pix[i], nil
}

// Set sets the pixel value.
func (f *Frame) Set(x, y int, v uint16) error {
	i, err := f.index(x, y)
	if err != nil {
		return err
	}
	f.Pix[i] = v
	return nil
}

// Size returns the number of pixels.
func (f *Frame) Size() int {
	return f.Width * f.Height
}

func (f *Frame) index(x, y int) (int, error) {
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return 0, fmt.Errorf("pixel %d,%d of %dx%d frame: %w", x, y, f.Width, f.Height, ErrBounds)
	}
	return y*f.Width + x, nil
}

func (f *Frame) String() string {
	return fmt.Sprintf("frame %d %dx%d", f.ID, f.Width, f.Height)
}
