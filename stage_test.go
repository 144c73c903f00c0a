package conveyor_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/conveyor"
	"pipelined.dev/conveyor/log"
	"pipelined.dev/conveyor/mock"
	"pipelined.dev/conveyor/queue"
)

const (
	pollInterval = 5 * time.Millisecond
	waitTimeout  = 2 * time.Second
)

func newStage[T any](name string, p conveyor.Processor[T], opts ...conveyor.StageOption) *conveyor.Stage[T] {
	opts = append([]conveyor.StageOption{
		conveyor.WithPollInterval(pollInterval),
		conveyor.WithStageLogger(log.Discard()),
	}, opts...)
	return conveyor.NewStage(name, p, opts...)
}

func newQueue() *queue.Queue[conveyor.Message[int]] {
	return queue.New[conveyor.Message[int]](4)
}

func awaitDone(t *testing.T, s interface{ Done() <-chan struct{} }) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(waitTimeout):
		t.Fatal("stage didn't exit")
	}
}

func TestStageSentinel(t *testing.T) {
	in, out := newQueue(), newQueue()
	s := newStage("double", conveyor.Map(func(v int) int { return v * 2 }))
	assert.Equal(t, conveyor.Idle, s.State())
	assert.False(t, s.IsRunning())

	require.NoError(t, s.Activate(in, out))
	assert.True(t, s.IsRunning())
	assert.Equal(t, conveyor.Active, s.State())
	assert.Same(t, in, s.Input())
	assert.Same(t, out, s.Output())

	require.NoError(t, mock.Feed(in, 1, 2, 3))
	ms := mock.Collect(out, waitTimeout)
	awaitDone(t, s)

	require.Len(t, ms, 4)
	assert.Equal(t, []int{2, 4, 6}, mock.Payloads(ms))
	assert.True(t, ms[3].IsEOS())
	assert.False(t, s.IsRunning())
	assert.Equal(t, conveyor.Terminated, s.State())
	// input is released when the stage exits
	assert.True(t, in.Closed())
	assert.NoError(t, s.Err())
}

func TestStageActivate(t *testing.T) {
	in, out := newQueue(), newQueue()
	s := newStage("identity", conveyor.Identity[int]())
	require.NoError(t, s.Activate(in, out))

	err := s.Activate(newQueue(), newQueue())
	assert.True(t, errors.Is(err, conveyor.ErrAlreadyActive))

	s.RequestStop()
	s.RequestStop()
	awaitDone(t, s)
	assert.Equal(t, conveyor.Terminated, s.State())

	err = s.Activate(in, out)
	assert.True(t, errors.Is(err, conveyor.ErrTerminated))

	// rewired stage can run again
	in, out = newQueue(), newQueue()
	require.NoError(t, s.Activate(in, out))
	require.NoError(t, mock.Feed(in, 7))
	assert.Equal(t, []int{7}, mock.Payloads(mock.Collect(out, waitTimeout)))
	awaitDone(t, s)
}

func TestStageWithoutQueues(t *testing.T) {
	proc := &mock.Processor[int]{}
	s := newStage("detached", proc.Processor())
	require.NoError(t, s.Activate(nil, nil))

	// no input, stage idles until stop is requested
	time.Sleep(3 * pollInterval)
	assert.True(t, s.IsRunning())
	s.RequestStop()
	assert.Contains(t, []conveyor.State{conveyor.StopRequested, conveyor.Terminated}, s.State())
	awaitDone(t, s)
	assert.Equal(t, 0, proc.Calls())
	assert.True(t, proc.Started())
	assert.True(t, proc.Flushed())
}

func TestStageWithoutOutput(t *testing.T) {
	in := newQueue()
	proc := &mock.Processor[int]{}
	s := newStage("tail", proc.Processor())
	require.NoError(t, s.Activate(in, nil))
	require.NoError(t, mock.Feed(in, 1, 2, 3))
	awaitDone(t, s)
	assert.Equal(t, 3, proc.Calls())
}

func TestStageFaults(t *testing.T) {
	errTest := errors.New("broken frame")
	proc := &mock.Processor[int]{
		ErrorOnCall: errTest,
		FailOn:      func(v int) bool { return v == 2 },
		PanicOn:     func(v int) bool { return v == 4 },
	}
	in, out := newQueue(), newQueue()
	s := newStage("faulty", proc.Processor())
	require.NoError(t, s.Activate(in, out))

	require.NoError(t, mock.Feed(in, 1, 2, 3, 4, 5))
	ms := mock.Collect(out, waitTimeout)
	awaitDone(t, s)

	assert.Equal(t, []int{1, 3, 5}, mock.Payloads(ms))
	assert.True(t, ms[len(ms)-1].IsEOS())
	assert.Equal(t, 5, proc.Calls())
	// faults are not hook errors
	assert.NoError(t, s.Err())
}

func TestStageSkip(t *testing.T) {
	in, out := newQueue(), newQueue()
	s := newStage("odd", conveyor.Filter(func(v int) bool { return v%2 == 1 }))
	require.NoError(t, s.Activate(in, out))
	require.NoError(t, mock.Feed(in, 1, 2, 3, 4))
	assert.Equal(t, []int{1, 3}, mock.Payloads(mock.Collect(out, waitTimeout)))
	awaitDone(t, s)
}

func TestStageDisabled(t *testing.T) {
	double := func(v int) int { return v * 2 }
	tests := []struct {
		description string
		policy      conveyor.DisabledPolicy
		expected    []int
	}{
		{
			description: "pass through",
			policy:      conveyor.PassThrough,
			expected:    []int{1, 2, 3},
		},
		{
			description: "drop",
			policy:      conveyor.Drop,
			expected:    []int{},
		},
	}
	for _, c := range tests {
		t.Run(c.description, func(t *testing.T) {
			proc := &mock.Processor[int]{Fn: double, Disabled: c.policy}
			s := newStage("double", proc.Processor(), conveyor.StartDisabled())
			assert.False(t, s.IsEnabled())

			in, out := newQueue(), newQueue()
			require.NoError(t, s.Activate(in, out))
			require.NoError(t, mock.Feed(in, 1, 2, 3))
			ms := mock.Collect(out, waitTimeout)
			awaitDone(t, s)

			assert.Equal(t, c.expected, mock.Payloads(ms))
			// sentinel is forwarded by disabled stage with any policy
			assert.True(t, ms[len(ms)-1].IsEOS())
			assert.Equal(t, 0, proc.Calls())
		})
	}
}

func TestStageSetEnabled(t *testing.T) {
	s := newStage("standalone", conveyor.Identity[int]())
	assert.True(t, s.IsEnabled())
	s.SetEnabled(false)
	assert.False(t, s.IsEnabled())
	s.SetEnabled(false)
	assert.False(t, s.IsEnabled())
	s.SetEnabled(true)
	assert.True(t, s.IsEnabled())
}

func TestStageHooks(t *testing.T) {
	errTest := errors.New("hook error")
	t.Run("start error", func(t *testing.T) {
		proc := &mock.Processor[int]{
			Fn:    func(v int) int { return -v },
			Hooks: mock.Hooks{ErrorOnStart: errTest},
		}
		in, out := newQueue(), newQueue()
		s := newStage("start", proc.Processor())
		require.NoError(t, s.Activate(in, out))
		require.NoError(t, mock.Feed(in, 1, 2))
		// items pass through unchanged
		assert.Equal(t, []int{1, 2}, mock.Payloads(mock.Collect(out, waitTimeout)))
		awaitDone(t, s)
		assert.True(t, errors.Is(s.Err(), errTest))
		assert.True(t, proc.Flushed())
	})
	t.Run("flush error", func(t *testing.T) {
		proc := &mock.Processor[int]{
			Hooks: mock.Hooks{ErrorOnFlush: errTest},
		}
		in, out := newQueue(), newQueue()
		s := newStage("flush", proc.Processor())
		require.NoError(t, s.Activate(in, out))
		require.NoError(t, mock.Feed(in, 1))
		mock.Collect(out, waitTimeout)
		awaitDone(t, s)
		assert.True(t, errors.Is(s.Err(), errTest))
	})
}

func TestStageOutputClosed(t *testing.T) {
	in, out := newQueue(), queue.New[conveyor.Message[int]](1)
	s := newStage("blocked", conveyor.Identity[int]())
	require.NoError(t, s.Activate(in, out))
	require.NoError(t, in.Push(conveyor.Send(1)))
	require.NoError(t, in.Push(conveyor.Send(2)))

	// second push blocks on full output until it's closed
	time.Sleep(3 * pollInterval)
	assert.True(t, s.IsRunning())
	out.Close()
	awaitDone(t, s)
	assert.Equal(t, conveyor.Terminated, s.State())
}
