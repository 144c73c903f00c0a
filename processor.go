package conveyor

import "context"

// DisabledPolicy defines what a disabled stage does with items.
type DisabledPolicy int

const (
	// PassThrough forwards items unchanged while the stage is disabled.
	PassThrough DisabledPolicy = iota
	// Drop discards items while the stage is disabled. The end-of-stream
	// sentinel is still forwarded.
	Drop
)

func (p DisabledPolicy) String() string {
	switch p {
	case PassThrough:
		return "pass-through"
	case Drop:
		return "drop"
	}
	return "unknown"
}

type (
	// Processor is the transformation logic of a stage.
	Processor[T any] struct {
		ProcessFunc[T]
		StartFunc HookFunc
		FlushFunc HookFunc
		Disabled  DisabledPolicy
	}

	// ProcessFunc transforms a single item. Context is done when the stop
	// of the stage is requested, but the stage never interrupts the call.
	// Return ErrSkip to drop the item without reporting a fault.
	ProcessFunc[T any] func(ctx context.Context, in T) (T, error)

	// HookFunc is a closure that triggers a stage hook function.
	HookFunc func(ctx context.Context) error
)

func (fn HookFunc) call(ctx context.Context) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

// Identity returns a processor that forwards items unchanged.
func Identity[T any]() Processor[T] {
	return Processor[T]{
		ProcessFunc: func(_ context.Context, in T) (T, error) {
			return in, nil
		},
	}
}

// Map returns a processor that applies fn to every item.
func Map[T any](fn func(T) T) Processor[T] {
	return Processor[T]{
		ProcessFunc: func(_ context.Context, in T) (T, error) {
			return fn(in), nil
		},
	}
}

// Filter returns a processor that drops items that don't match keep.
func Filter[T any](keep func(T) bool) Processor[T] {
	return Processor[T]{
		ProcessFunc: func(_ context.Context, in T) (T, error) {
			if !keep(in) {
				return in, ErrSkip
			}
			return in, nil
		},
	}
}
