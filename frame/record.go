package frame

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
	"github.com/vmihailenco/msgpack/v5"

	"pipelined.dev/conveyor"
)

// Header starts every recording.
type Header struct {
	ID      string    `msgpack:"id"`
	Created time.Time `msgpack:"created"`
}

// Recorder encodes frames that pass through it into the writer. The
// recording is a msgpack stream of header followed by frames. Frames are
// forwarded unchanged. ID and Frames can be called while the line is
// running.
type Recorder struct {
	w   io.Writer
	enc *msgpack.Encoder

	mu     sync.Mutex
	header Header
	frames atomic.Int64
}

// NewRecorder returns recorder that writes into w.
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{w: w}
}

// ID returns the id of the last started recording.
func (r *Recorder) ID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.header.ID
}

// Frames returns the number of frames written since start.
func (r *Recorder) Frames() int {
	return int(r.frames.Load())
}

// Processor returns processor that writes the header on start and every
// frame it receives.
func (r *Recorder) Processor() conveyor.Processor[*Frame] {
	return conveyor.Processor[*Frame]{
		StartFunc:   r.start,
		ProcessFunc: r.record,
	}
}

func (r *Recorder) start(context.Context) error {
	r.enc = msgpack.NewEncoder(r.w)
	r.frames.Store(0)
	h := Header{
		ID:      xid.New().String(),
		Created: time.Now().UTC(),
	}
	r.mu.Lock()
	r.header = h
	r.mu.Unlock()
	if err := r.enc.Encode(&h); err != nil {
		return fmt.Errorf("error writing recording header: %w", err)
	}
	return nil
}

func (r *Recorder) record(_ context.Context, f *Frame) (*Frame, error) {
	if err := validate(f); err != nil {
		return nil, err
	}
	if err := r.enc.Encode(f); err != nil {
		return nil, fmt.Errorf("error recording %v: %w", f, err)
	}
	r.frames.Add(1)
	return f, nil
}

// Record returns recorder processor for provided writer.
func Record(w io.Writer) conveyor.Processor[*Frame] {
	return NewRecorder(w).Processor()
}

// RecordFile returns recorder processor that creates the file on start
// and closes it on flush.
func RecordFile(path string) conveyor.Processor[*Frame] {
	var (
		f *os.File
		r *Recorder
	)
	return conveyor.Processor[*Frame]{
		StartFunc: func(ctx context.Context) error {
			var err error
			if f, err = os.Create(path); err != nil {
				return err
			}
			r = NewRecorder(f)
			return r.start(ctx)
		},
		ProcessFunc: func(ctx context.Context, in *Frame) (*Frame, error) {
			return r.record(ctx, in)
		},
		FlushFunc: func(context.Context) error {
			if f == nil {
				return nil
			}
			err := f.Close()
			f = nil
			return err
		},
	}
}

// ReadRecording decodes the header and all frames of the recording.
func ReadRecording(rd io.Reader) (Header, []*Frame, error) {
	dec := msgpack.NewDecoder(rd)
	var h Header
	if err := dec.Decode(&h); err != nil {
		return Header{}, nil, fmt.Errorf("error reading recording header: %w", err)
	}
	var frames []*Frame
	for {
		var f Frame
		err := dec.Decode(&f)
		if errors.Is(err, io.EOF) {
			return h, frames, nil
		}
		if err != nil {
			return h, frames, fmt.Errorf("error reading frame %d of recording %s: %w", len(frames), h.ID, err)
		}
		frames = append(frames, &f)
	}
}

// ReadRecordingFile reads the recording from file.
func ReadRecordingFile(path string) (Header, []*Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, nil, err
	}
	defer f.Close()
	return ReadRecording(f)
}
