package conveyor

import (
	"pipelined.dev/conveyor/log"
	"pipelined.dev/conveyor/metric"
)

// DefaultCapacity is the capacity of queues allocated by the pipe.
const DefaultCapacity = 8

// Option provides a way to set parameters to pipe.
type Option func(*options)

type options struct {
	name      string
	capacity  int
	logger    log.Logger
	metrics   *metric.Metrics
	listeners []func(EnabledEvent)
}

// WithName sets name to pipe.
func WithName(n string) Option {
	return func(o *options) {
		o.name = n
	}
}

// WithCapacity sets the capacity of queues between stages.
func WithCapacity(c int) Option {
	return func(o *options) {
		o.capacity = c
	}
}

// WithLogger sets logger to pipe. Stages without own logger use it too.
func WithLogger(l log.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics adds metrics for this pipe and all its stages.
func WithMetrics(m *metric.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithListener registers a function that is called after the enable state
// of a stage has changed. Listeners are called while live streaming is
// paused and must not toggle stages themselves.
func WithListener(fn func(EnabledEvent)) Option {
	return func(o *options) {
		o.listeners = append(o.listeners, fn)
	}
}
