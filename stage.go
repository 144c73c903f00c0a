package conveyor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"pipelined.dev/conveyor/log"
	"pipelined.dev/conveyor/metric"
	"pipelined.dev/conveyor/queue"
)

// DefaultPollInterval is the maximum time a stage waits for the next item
// before it checks for a stop request.
const DefaultPollInterval = 100 * time.Millisecond

// Stage runs a processor in its own goroutine. It polls the input queue,
// transforms items and pushes results to the output queue. Either queue
// may be nil: a stage without input idles, a stage without output
// discards results.
type Stage[T any] struct {
	id           string
	name         string
	processor    Processor[T]
	pollInterval time.Duration
	logger       log.Logger
	loggerSet    bool
	meter        *metric.Meter

	// mu guards queue references, ownership and the run handles. Queues
	// are only replaced while the loop is not running.
	mu       sync.Mutex
	in       *queue.Queue[Message[T]]
	out      *queue.Queue[Message[T]]
	owner    *Pipe[T]
	done     chan struct{}
	cancelFn context.CancelFunc
	err      error

	state   atomic.Int32
	running atomic.Bool
	stop    atomic.Bool
	enabled atomic.Bool
}

// StageOption configures a stage.
type StageOption func(*stageOptions)

type stageOptions struct {
	pollInterval time.Duration
	logger       log.Logger
	disabled     bool
}

// WithPollInterval sets how long the stage waits for an item before it
// checks the stop request again.
func WithPollInterval(d time.Duration) StageOption {
	return func(o *stageOptions) {
		o.pollInterval = d
	}
}

// WithStageLogger sets the logger of the stage. Otherwise the logger of
// the pipe is used.
func WithStageLogger(l log.Logger) StageOption {
	return func(o *stageOptions) {
		o.logger = l
	}
}

// StartDisabled creates the stage in disabled state.
func StartDisabled() StageOption {
	return func(o *stageOptions) {
		o.disabled = true
	}
}

// NewStage returns an idle stage. Stages are enabled unless StartDisabled
// option is provided.
func NewStage[T any](name string, p Processor[T], opts ...StageOption) *Stage[T] {
	o := stageOptions{
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.pollInterval <= 0 {
		o.pollInterval = DefaultPollInterval
	}
	s := &Stage[T]{
		id:           xid.New().String(),
		name:         name,
		processor:    p,
		pollInterval: o.pollInterval,
		logger:       o.logger,
		loggerSet:    o.logger != nil,
		done:         make(chan struct{}),
	}
	if s.logger == nil {
		s.logger = log.GetLogger()
	}
	close(s.done)
	s.enabled.Store(!o.disabled)
	return s
}

// ID returns the unique id of the stage.
func (s *Stage[T]) ID() string {
	return s.id
}

// Name returns the name of the stage.
func (s *Stage[T]) Name() string {
	return s.name
}

func (s *Stage[T]) String() string {
	return fmt.Sprintf("%s %s", s.name, s.id)
}

// Activate sets input and output queues and starts the loop.
func (s *Stage[T]) Activate(in, out *queue.Queue[Message[T]]) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running.Load() {
		return fmt.Errorf("stage %s: %w", s.name, ErrAlreadyActive)
	}
	if State(s.state.Load()) == Terminated && in == s.in && out == s.out {
		return fmt.Errorf("stage %s: %w", s.name, ErrTerminated)
	}

	ctx, cancelFn := context.WithCancel(context.Background())
	s.in, s.out = in, out
	s.err = nil
	s.cancelFn = cancelFn
	s.done = make(chan struct{})
	s.stop.Store(false)
	s.running.Store(true)
	s.state.Store(int32(Active))
	go s.run(ctx, s.done, in, out)
	return nil
}

// RequestStop asks the stage to exit after the current item. It doesn't
// block.
func (s *Stage[T]) RequestStop() {
	s.stop.Store(true)
	s.state.CompareAndSwap(int32(Active), int32(StopRequested))
	s.mu.Lock()
	if s.cancelFn != nil {
		s.cancelFn()
	}
	s.mu.Unlock()
}

// IsRunning reports whether the loop is executing. Queues must not be
// replaced while it's true.
func (s *Stage[T]) IsRunning() bool {
	return s.running.Load()
}

// State returns the current state of the stage.
func (s *Stage[T]) State() State {
	return State(s.state.Load())
}

// Done is closed when the loop exits. For idle stage it's closed.
func (s *Stage[T]) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Err returns the first hook error of the last run.
func (s *Stage[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Input returns the input queue of the stage.
func (s *Stage[T]) Input() *queue.Queue[Message[T]] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.in
}

// Output returns the output queue of the stage.
func (s *Stage[T]) Output() *queue.Queue[Message[T]] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out
}

// IsEnabled reports whether the stage transforms items.
func (s *Stage[T]) IsEnabled() bool {
	return s.enabled.Load()
}

// SetEnabled toggles the transformation of items. Disabled stage handles
// items according to its DisabledPolicy. If the stage belongs to a pipe,
// the pipe applies the change so it can pause live streaming.
func (s *Stage[T]) SetEnabled(enabled bool) {
	if s.enabled.Load() == enabled {
		return
	}
	s.mu.Lock()
	owner := s.owner
	s.mu.Unlock()
	if owner != nil {
		owner.toggle(s, enabled)
		return
	}
	s.enabled.Store(enabled)
}

// attach binds the stage to the pipe. Must be called while the stage is
// not running.
func (s *Stage[T]) attach(p *Pipe[T], logger log.Logger, meter *metric.Meter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner != nil && s.owner != p {
		return fmt.Errorf("stage %s belongs to another pipe: %w", s.name, ErrInvalidState)
	}
	s.owner = p
	if !s.loggerSet && logger != nil {
		s.logger = logger
	}
	s.meter = meter
	return nil
}

func (s *Stage[T]) detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owner = nil
	s.meter = nil
}

func (s *Stage[T]) ownedBy(p *Pipe[T]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner == p
}

func (s *Stage[T]) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *Stage[T]) run(ctx context.Context, done chan struct{}, in, out *queue.Queue[Message[T]]) {
	logger := s.logger.WithFields(logrus.Fields{
		"stage": s.name,
		"id":    s.id,
	})
	s.meter.Started()
	logger.Debug("stage started")
	defer s.exit(ctx, logger, done, in)

	process := true
	if err := s.processor.StartFunc.call(ctx); err != nil {
		s.setErr(fmt.Errorf("error starting stage %s: %w", s.name, err))
		logger.WithError(err).Error("start failed, items pass through")
		process = false
	}

	for !s.stop.Load() {
		m, ok, err := s.poll(in)
		if err != nil {
			logger.WithError(err).Info("input closed")
			return
		}
		if !ok {
			continue
		}
		if m.IsEOS() {
			s.produce(logger, out, m)
			logger.Debug("end of stream")
			return
		}
		if m, ok = s.handle(ctx, logger, m, process); ok {
			if !s.produce(logger, out, m) {
				return
			}
		}
	}
}

// poll waits for the next item. If there is no input, it sleeps for the
// poll interval. Error is returned when input is closed and empty.
func (s *Stage[T]) poll(in *queue.Queue[Message[T]]) (Message[T], bool, error) {
	if in == nil {
		time.Sleep(s.pollInterval)
		return Message[T]{}, false, nil
	}
	m, ok := in.Pop(s.pollInterval)
	if !ok && in.Closed() && in.Len() == 0 {
		return m, false, queue.ErrCancelled
	}
	s.meter.Backlog(in.Len())
	return m, ok, nil
}

// handle applies the processor to the message. False is returned if
// message must not be forwarded.
func (s *Stage[T]) handle(ctx context.Context, logger log.Logger, m Message[T], process bool) (Message[T], bool) {
	if !process {
		s.meter.Observe(metric.Passed, 0)
		return m, true
	}
	if !s.enabled.Load() {
		if s.processor.Disabled == Drop {
			s.meter.Observe(metric.Dropped, 0)
			return m, false
		}
		s.meter.Observe(metric.Passed, 0)
		return m, true
	}

	start := time.Now()
	v, err := s.transform(ctx, m.Payload)
	elapsed := time.Since(start)
	switch {
	case err == nil:
		s.meter.Observe(metric.Processed, elapsed)
		return Send(v), true
	case errors.Is(err, ErrSkip):
		s.meter.Observe(metric.Skipped, elapsed)
		return m, false
	default:
		s.meter.Observe(metric.Faulted, elapsed)
		logger.WithError(&FaultError{Stage: s.name, Err: err}).Error("item dropped")
		return m, false
	}
}

func (s *Stage[T]) transform(ctx context.Context, in T) (out T, err error) {
	if s.processor.ProcessFunc == nil {
		return in, nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.processor.ProcessFunc(ctx, in)
}

// produce pushes the message to the output. It blocks while the output is
// full. False is returned if output is closed.
func (s *Stage[T]) produce(logger log.Logger, out *queue.Queue[Message[T]], m Message[T]) bool {
	if out == nil {
		return true
	}
	if err := out.Push(m); err != nil {
		logger.WithError(err).Info("output closed")
		return false
	}
	return true
}

// exit closes the input to release the producer, calls flush hook and
// marks the stage terminated.
func (s *Stage[T]) exit(ctx context.Context, logger log.Logger, done chan struct{}, in *queue.Queue[Message[T]]) {
	if in != nil {
		in.Close()
	}
	if err := s.processor.FlushFunc.call(context.WithoutCancel(ctx)); err != nil {
		s.setErr(fmt.Errorf("error flushing stage %s: %w", s.name, err))
		logger.WithError(err).Error("flush failed")
	}
	s.meter.Stopped()

	s.mu.Lock()
	s.cancelFn()
	s.running.Store(false)
	s.state.Store(int32(Terminated))
	s.mu.Unlock()
	close(done)
	logger.Debug("stage terminated")
}
