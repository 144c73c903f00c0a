package conveyor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"pipelined.dev/conveyor/log"
	"pipelined.dev/conveyor/metric"
	"pipelined.dev/conveyor/queue"
)

// ErrPosition is returned if stage position is out of range.
var ErrPosition = errors.New("position out of range")

// Pipe is an ordered line of stages. It wires stages with queues, starts
// and stops them and applies enable toggles while live streaming is
// paused.
//
// Queue i is the input of stage i, the last queue is the output of the
// last stage. The first queue is fed by the external producer with In and
// the last one is read by the external consumer with Out.
type Pipe[T any] struct {
	name      string
	live      LiveMode
	capacity  int
	logger    log.Logger
	metrics   *metric.Metrics
	listeners []func(EnabledEvent)

	mu     sync.Mutex
	stages []*Stage[T]
	queues []*queue.Queue[Message[T]]

	// toggleMu serializes enable toggles and live mode changes.
	toggleMu sync.Mutex
}

// New creates an empty pipe. Live may be nil if there is no live
// streaming to coordinate with.
func New[T any](live LiveMode, opts ...Option) *Pipe[T] {
	o := options{
		capacity: DefaultCapacity,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.name == "" {
		o.name = xid.New().String()
	}
	if o.capacity < 1 {
		o.capacity = 1
	}
	logger := o.logger
	if logger == nil {
		logger = log.GetLogger()
	}
	return &Pipe[T]{
		name:      o.name,
		live:      live,
		capacity:  o.capacity,
		logger:    logger.WithField("pipe", o.name),
		metrics:   o.metrics,
		listeners: o.listeners,
	}
}

// Name returns the name of the pipe.
func (p *Pipe[T]) Name() string {
	return p.name
}

func (p *Pipe[T]) String() string {
	return p.name
}

// Wire replaces the stages of the pipe and allocates fresh queues for
// them. It fails if any current or provided stage is running.
func (p *Pipe[T]) Wire(stages ...*Stage[T]) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running() {
		return fmt.Errorf("wire: pipe is running: %w", ErrInvalidState)
	}
	seen := make(map[*Stage[T]]struct{}, len(stages))
	for _, s := range stages {
		if s == nil {
			return fmt.Errorf("wire: nil stage: %w", ErrInvalidState)
		}
		if err := p.canAttach(s); err != nil {
			return fmt.Errorf("wire: %w", err)
		}
		if _, ok := seen[s]; ok {
			return fmt.Errorf("wire: stage %s is duplicated: %w", s.name, ErrInvalidState)
		}
		seen[s] = struct{}{}
	}

	for _, s := range p.stages {
		if _, ok := seen[s]; !ok {
			s.detach()
		}
	}
	p.closeQueues()

	p.stages = make([]*Stage[T], 0, len(stages))
	p.queues = make([]*queue.Queue[Message[T]], 0, len(stages)+1)
	p.queues = append(p.queues, queue.New[Message[T]](p.capacity))
	for _, s := range stages {
		p.attach(s)
		p.stages = append(p.stages, s)
		p.queues = append(p.queues, queue.New[Message[T]](p.capacity))
	}
	p.logger.WithField("stages", len(stages)).Debug("pipe wired")
	return nil
}

// In returns the input queue of the first stage. It's nil if the pipe
// isn't wired. Queues are replaced on restart, so In must be called
// after StartAll.
//
// Nothing may be pushed after the sentinel. Such push fails with
// queue.ErrCancelled once the first stage has exited. Before that it
// succeeds, but the item never reaches the output and is only returned
// by Drain.
func (p *Pipe[T]) In() *queue.Queue[Message[T]] {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queues) == 0 {
		return nil
	}
	return p.queues[0]
}

// Out returns the output queue of the last stage.
func (p *Pipe[T]) Out() *queue.Queue[Message[T]] {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queues) == 0 {
		return nil
	}
	return p.queues[len(p.queues)-1]
}

// Stages returns the stages in pipe order.
func (p *Pipe[T]) Stages() []*Stage[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Stage[T](nil), p.stages...)
}

// Running reports whether any stage of the pipe is running.
func (p *Pipe[T]) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running()
}

func (p *Pipe[T]) running() bool {
	for _, s := range p.stages {
		if s.IsRunning() {
			return true
		}
	}
	return false
}

// StartAll activates stages from the head to the tail. If the previous
// run left terminated stages or closed queues, the pipe is rewired first
// and not yet consumed items are carried into the new queues.
func (p *Pipe[T]) StartAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queues == nil {
		return fmt.Errorf("start: pipe is not wired: %w", ErrInvalidState)
	}
	if p.running() {
		return fmt.Errorf("start: pipe is running: %w", ErrInvalidState)
	}
	if p.spent() {
		p.rewire()
	}
	for i, s := range p.stages {
		if err := s.Activate(p.queues[i], p.queues[i+1]); err != nil {
			for _, started := range p.stages[:i] {
				started.RequestStop()
			}
			return fmt.Errorf("start: %w", err)
		}
	}
	p.logger.WithField("stages", len(p.stages)).Info("pipe started")
	return nil
}

// StopAll injects the end-of-stream sentinel at the head and requests
// every stage to stop. It doesn't wait for stages, use Wait for that. If
// the head queue is full, it's closed instead, which releases a blocked
// producer.
//
// The last stage stays blocked while Out is full, so Wait returns only if
// Out is consumed. Use Close to stop the pipe without a consumer.
func (p *Pipe[T]) StopAll() {
	p.mu.Lock()
	stages := append([]*Stage[T](nil), p.stages...)
	var in *queue.Queue[Message[T]]
	if p.running() && len(p.queues) > 0 {
		in = p.queues[0]
	}
	p.mu.Unlock()

	if in != nil {
		if ok, err := in.TryPush(EOS[T]()); err == nil && !ok {
			in.Close()
		}
	}
	for _, s := range stages {
		s.RequestStop()
	}
	p.logger.Info("pipe stop requested")
}

// Wait blocks until all stages exit or the context is done. Hook errors
// of stages are returned.
func (p *Pipe[T]) Wait(ctx context.Context) error {
	stages := p.Stages()
	var g errgroup.Group
	for _, s := range stages {
		done := s.Done()
		g.Go(func() error {
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var errs execErrors
	for _, s := range stages {
		if err := s.Err(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs.ret()
}

// Close shuts the pipe down gracefully. The sentinel is sent through the
// pipe, so all queued items reach the output before stages exit. If
// context is done before that, stages are stopped and queues are closed.
// Remaining items can be read from Out and collected with Drain.
func (p *Pipe[T]) Close(ctx context.Context) error {
	p.mu.Lock()
	var in *queue.Queue[Message[T]]
	if p.running() && len(p.queues) > 0 {
		in = p.queues[0]
	}
	p.mu.Unlock()

	if in != nil {
		// released by closeQueues at the latest
		go func() {
			_ = in.Push(EOS[T]())
		}()
	}

	err := p.Wait(ctx)
	if err != nil && ctx.Err() != nil {
		p.logger.WithError(err).Warn("graceful close timed out, stopping stages")
		p.StopAll()
		p.mu.Lock()
		p.closeQueues()
		p.mu.Unlock()
		for _, s := range p.Stages() {
			<-s.Done()
		}
		return fmt.Errorf("close: %w", err)
	}

	p.mu.Lock()
	p.closeQueues()
	p.mu.Unlock()
	p.logger.Info("pipe closed")
	return err
}

// SetStageEnabled toggles the stage. If live streaming is on, it's
// paused for the time of the change.
func (p *Pipe[T]) SetStageEnabled(s *Stage[T], enabled bool) error {
	if s == nil || !s.ownedBy(p) {
		return fmt.Errorf("toggle: %w", ErrUnknownStage)
	}
	s.SetEnabled(enabled)
	return nil
}

// toggle applies the enable state of the stage. It's the only place that
// changes live streaming.
func (p *Pipe[T]) toggle(s *Stage[T], enabled bool) {
	p.toggleMu.Lock()
	defer p.toggleMu.Unlock()
	if s.enabled.Load() == enabled {
		return
	}

	paused := p.live != nil && p.live.IsStreaming()
	if paused {
		p.live.SetStreaming(false)
	}
	s.enabled.Store(enabled)
	p.metrics.Toggled(s.name, enabled)
	p.logger.WithFields(logrus.Fields{
		"stage":   s.name,
		"enabled": enabled,
		"paused":  paused,
	}).Info("stage toggled")
	e := EnabledEvent{
		Pipe:    p.name,
		StageID: s.id,
		Stage:   s.name,
		Enabled: enabled,
		Paused:  paused,
	}
	for _, fn := range p.listeners {
		fn(e)
	}
	if paused {
		p.live.SetStreaming(true)
	}
}

// Append adds the stage to the tail of the stopped pipe.
func (p *Pipe[T]) Append(s *Stage[T]) error {
	p.mu.Lock()
	pos := len(p.stages)
	p.mu.Unlock()
	return p.Insert(pos, s)
}

// Insert puts the stage at provided position of the stopped pipe. Only
// the queues around the new stage are replaced, items waiting in the
// replaced queue are carried over.
func (p *Pipe[T]) Insert(pos int, s *Stage[T]) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running() {
		return fmt.Errorf("insert: pipe is running: %w", ErrInvalidState)
	}
	if pos < 0 || pos > len(p.stages) {
		return fmt.Errorf("insert at %d: %w", pos, ErrPosition)
	}
	if s == nil {
		return fmt.Errorf("insert: nil stage: %w", ErrInvalidState)
	}
	if err := p.canAttach(s); err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	for _, existing := range p.stages {
		if existing == s {
			return fmt.Errorf("insert: stage %s is already in pipe: %w", s.name, ErrInvalidState)
		}
	}
	if p.queues == nil {
		p.queues = []*queue.Queue[Message[T]]{queue.New[Message[T]](p.capacity)}
	}

	p.attach(s)
	in := p.replace(p.queues[pos])
	out := queue.New[Message[T]](p.capacity)

	queues := make([]*queue.Queue[Message[T]], 0, len(p.queues)+1)
	queues = append(queues, p.queues[:pos]...)
	queues = append(queues, in, out)
	p.queues = append(queues, p.queues[pos+1:]...)

	stages := make([]*Stage[T], 0, len(p.stages)+1)
	stages = append(stages, p.stages[:pos]...)
	stages = append(stages, s)
	p.stages = append(stages, p.stages[pos:]...)
	p.logger.WithFields(logrus.Fields{
		"stage":    s.name,
		"position": pos,
	}).Debug("stage inserted")
	return nil
}

// Remove takes the stage at provided position out of the stopped pipe.
// Its input and output queues are merged into a new one.
func (p *Pipe[T]) Remove(pos int) (*Stage[T], error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running() {
		return nil, fmt.Errorf("remove: pipe is running: %w", ErrInvalidState)
	}
	if pos < 0 || pos >= len(p.stages) {
		return nil, fmt.Errorf("remove at %d: %w", pos, ErrPosition)
	}

	s := p.stages[pos]
	// output items are older than input items
	merged := p.replace(p.queues[pos+1], p.queues[pos])

	queues := make([]*queue.Queue[Message[T]], 0, len(p.queues)-1)
	queues = append(queues, p.queues[:pos]...)
	queues = append(queues, merged)
	p.queues = append(queues, p.queues[pos+2:]...)

	stages := make([]*Stage[T], 0, len(p.stages)-1)
	stages = append(stages, p.stages[:pos]...)
	p.stages = append(stages, p.stages[pos+1:]...)
	s.detach()
	p.logger.WithFields(logrus.Fields{
		"stage":    s.name,
		"position": pos,
	}).Debug("stage removed")
	return s, nil
}

// Drain removes all items left in queues of the stopped pipe. Element i
// holds items of the input queue of stage i, the last element holds
// items of the output queue.
func (p *Pipe[T]) Drain() ([][]Message[T], error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running() {
		return nil, fmt.Errorf("drain: pipe is running: %w", ErrInvalidState)
	}
	drained := make([][]Message[T], len(p.queues))
	for i, q := range p.queues {
		drained[i] = q.DrainAll()
	}
	return drained, nil
}

func (p *Pipe[T]) canAttach(s *Stage[T]) error {
	if s.IsRunning() {
		return fmt.Errorf("stage %s is running: %w", s.name, ErrInvalidState)
	}
	s.mu.Lock()
	owner := s.owner
	s.mu.Unlock()
	if owner != nil && owner != p {
		return fmt.Errorf("stage %s belongs to pipe %s: %w", s.name, owner.name, ErrInvalidState)
	}
	return nil
}

// attach must be called after canAttach succeeded.
func (p *Pipe[T]) attach(s *Stage[T]) {
	_ = s.attach(p, p.logger, p.metrics.Meter(s.name))
}

// spent reports whether the wiring was consumed by a previous run.
func (p *Pipe[T]) spent() bool {
	for _, s := range p.stages {
		if s.State() == Terminated {
			return true
		}
	}
	for _, q := range p.queues {
		if q.Closed() {
			return true
		}
	}
	return false
}

// rewire replaces every queue and carries the queued items over.
func (p *Pipe[T]) rewire() {
	for i := range p.queues {
		p.queues[i] = p.replace(p.queues[i])
	}
	p.logger.Debug("pipe rewired")
}

// replace closes provided queues and returns a new queue with their
// items in order. Sentinels of the previous run are discarded. The new
// queue is large enough to hold all carried items.
func (p *Pipe[T]) replace(old ...*queue.Queue[Message[T]]) *queue.Queue[Message[T]] {
	var carried []Message[T]
	for _, q := range old {
		q.Close()
		for _, m := range q.DrainAll() {
			if !m.IsEOS() {
				carried = append(carried, m)
			}
		}
	}
	q := queue.New[Message[T]](max(p.capacity, len(carried)))
	for _, m := range carried {
		_, _ = q.TryPush(m)
	}
	return q
}

func (p *Pipe[T]) closeQueues() {
	for _, q := range p.queues {
		q.Close()
	}
}
