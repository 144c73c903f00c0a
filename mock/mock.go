// Package mock provides mocks for pipeline components and allows to
// execute integration tests.
package mock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"pipelined.dev/conveyor"
	"pipelined.dev/conveyor/queue"
)

// Processor mocks a stage processor. By default it forwards items
// unchanged.
type Processor[T any] struct {
	Counter
	Hooks
	// Interval is the duration of every processing call.
	Interval time.Duration
	// Fn transforms the items.
	Fn func(T) T
	// ErrorOnCall is returned for items that match FailOn. If FailOn is
	// nil, it's returned for every item.
	ErrorOnCall error
	FailOn      func(T) bool
	// PanicOn makes the processor panic on matching items.
	PanicOn func(T) bool
	// Disabled sets the policy of a disabled stage.
	Disabled conveyor.DisabledPolicy
}

// Processor returns processor closures.
func (m *Processor[T]) Processor() conveyor.Processor[T] {
	return conveyor.Processor[T]{
		ProcessFunc: func(_ context.Context, in T) (T, error) {
			time.Sleep(m.Interval)
			m.advance()
			if m.PanicOn != nil && m.PanicOn(in) {
				panic("mock processor panic")
			}
			if m.ErrorOnCall != nil && (m.FailOn == nil || m.FailOn(in)) {
				return in, m.ErrorOnCall
			}
			if m.Fn != nil {
				return m.Fn(in), nil
			}
			return in, nil
		},
		StartFunc: m.start,
		FlushFunc: m.flush,
		Disabled:  m.Disabled,
	}
}

// Hooks allows to mock processor hooks.
type Hooks struct {
	started atomic.Bool
	flushed atomic.Bool

	ErrorOnStart error
	ErrorOnFlush error
}

// Started reports whether start hook was called.
func (h *Hooks) Started() bool {
	return h.started.Load()
}

// Flushed reports whether flush hook was called.
func (h *Hooks) Flushed() bool {
	return h.flushed.Load()
}

func (h *Hooks) start(context.Context) error {
	h.started.Store(true)
	return h.ErrorOnStart
}

func (h *Hooks) flush(context.Context) error {
	h.flushed.Store(true)
	return h.ErrorOnFlush
}

// Counter counts processing calls.
type Counter struct {
	calls atomic.Int64
}

// Calls returns the number of processing calls.
func (c *Counter) Calls() int {
	return int(c.calls.Load())
}

func (c *Counter) advance() {
	c.calls.Add(1)
}

// LiveMode mocks the live streaming switch and records every change.
type LiveMode struct {
	mu          sync.Mutex
	streaming   bool
	transitions []bool
}

// Streaming returns live mode that is on.
func Streaming() *LiveMode {
	return &LiveMode{streaming: true}
}

// IsStreaming implements conveyor.LiveMode.
func (m *LiveMode) IsStreaming() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streaming
}

// SetStreaming implements conveyor.LiveMode.
func (m *LiveMode) SetStreaming(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streaming = on
	m.transitions = append(m.transitions, on)
}

// Transitions returns all values passed to SetStreaming.
func (m *LiveMode) Transitions() []bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]bool(nil), m.transitions...)
}

// Collect reads the queue until the sentinel is received or no message
// arrives within timeout. The sentinel is included into the result.
func Collect[T any](q *queue.Queue[conveyor.Message[T]], timeout time.Duration) []conveyor.Message[T] {
	var result []conveyor.Message[T]
	for {
		m, ok := q.Pop(timeout)
		if !ok {
			return result
		}
		result = append(result, m)
		if m.IsEOS() {
			return result
		}
	}
}

// Payloads returns payloads of messages, skipping sentinels.
func Payloads[T any](ms []conveyor.Message[T]) []T {
	result := make([]T, 0, len(ms))
	for _, m := range ms {
		if !m.IsEOS() {
			result = append(result, m.Payload)
		}
	}
	return result
}

// Feed pushes values and the sentinel to the queue.
func Feed[T any](q *queue.Queue[conveyor.Message[T]], values ...T) error {
	for _, v := range values {
		if err := q.Push(conveyor.Send(v)); err != nil {
			return err
		}
	}
	return q.Push(conveyor.EOS[T]())
}
