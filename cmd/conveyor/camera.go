package main

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"pipelined.dev/conveyor"
	"pipelined.dev/conveyor/frame"
	"pipelined.dev/conveyor/queue"
)

// camera simulates a sensor in live mode. It produces frames at the
// limiter rate while streaming is on.
type camera struct {
	width, height int
	limiter       *rate.Limiter
	pool          *frame.Pool

	mu        sync.Mutex
	streaming bool
	resumed   chan struct{}

	pauses atomic.Int64
}

func newCamera(fps float64, width, height int) *camera {
	width, height = max(width, 1), max(height, 1)
	return &camera{
		width:   width,
		height:  height,
		limiter: rate.NewLimiter(rate.Limit(fps), 1),
		pool:    frame.GetPool(width, height),
		resumed: make(chan struct{}),
	}
}

// IsStreaming implements conveyor.LiveMode.
func (c *camera) IsStreaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streaming
}

// SetStreaming implements conveyor.LiveMode.
func (c *camera) SetStreaming(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.streaming == on {
		return
	}
	c.streaming = on
	if on {
		close(c.resumed)
		return
	}
	c.resumed = make(chan struct{})
	c.pauses.Add(1)
}

// Pauses returns how many times streaming was turned off.
func (c *camera) Pauses() int {
	return int(c.pauses.Load())
}

// wait blocks while streaming is off.
func (c *camera) wait(ctx context.Context) error {
	c.mu.Lock()
	resumed, on := c.resumed, c.streaming
	c.mu.Unlock()
	if on {
		return nil
	}
	select {
	case <-resumed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stream pushes n frames and the sentinel into the queue.
func (c *camera) stream(ctx context.Context, in *queue.Queue[conveyor.Message[*frame.Frame]], n int) error {
	for id := 1; id <= n; id++ {
		if err := c.wait(ctx); err != nil {
			return err
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := in.Push(conveyor.Send(c.capture(uint64(id)))); err != nil {
			return err
		}
	}
	return in.Push(conveyor.EOS[*frame.Frame]())
}

// capture returns a frame with a diagonal gradient that moves with id.
// Frames should be returned with release after use.
func (c *camera) capture(id uint64) *frame.Frame {
	f := c.pool.Get(id)
	span := c.width + c.height
	for y := 0; y < c.height; y++ {
		for x := 0; x < c.width; x++ {
			v := (x + y + int(id)) % span
			f.Pix[y*c.width+x] = uint16(v * frame.MaxValue / span)
		}
	}
	f.Tags = map[string]string{"captured": time.Now().UTC().Format(time.RFC3339Nano)}
	return f
}

func (c *camera) release(f *frame.Frame) {
	c.pool.Put(f)
}
