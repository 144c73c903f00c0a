package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pipelined.dev/conveyor"
	"pipelined.dev/conveyor/config"
	"pipelined.dev/conveyor/frame"
	"pipelined.dev/conveyor/log"
	"pipelined.dev/conveyor/queue"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestInit(t *testing.T) {
	// check if commands are registered
	for _, name := range []string{"list", "run"} {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestList(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"list"})
	defer rootCmd.SetArgs(nil)
	require.NoError(t, rootCmd.Execute())
	for _, name := range frame.DefaultRegistry().Names() {
		assert.Contains(t, out.String(), name)
	}
}

func TestRunLine(t *testing.T) {
	l, err := config.ParseLine([]byte(`
name: test
stages:
  - name: boost
    processor: scale
    params: {factor: 2}
  - name: label
    processor: tag
    params: {key: line, value: test}
`))
	require.NoError(t, err)
	s := config.Default()
	s.FPS = 1000
	s.PollInterval = 5 * time.Millisecond

	var out bytes.Buffer
	err = runLine(context.Background(), &out, l, s, runOptions{
		frames:  20,
		toggle:  "boost",
		width:   4,
		height:  3,
		timeout: time.Second,
		logger:  log.Discard(),
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "line test: 20 frames requested, 20 received, 1 pauses")
	assert.Contains(t, out.String(), "passed")
	assert.Contains(t, out.String(), "processed")

	// shutdown doesn't count as a pause
	out.Reset()
	err = runLine(context.Background(), &out, l, s, runOptions{
		frames:  1,
		width:   4,
		height:  3,
		timeout: time.Second,
		logger:  log.Discard(),
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "line test: 1 frames requested, 1 received, 0 pauses")

	err = runLine(context.Background(), &out, l, s, runOptions{toggle: "blur", logger: log.Discard()})
	assert.True(t, errors.Is(err, conveyor.ErrUnknownStage))
}

func TestRunLineCancel(t *testing.T) {
	l, err := config.ParseLine([]byte(`
name: slow
stages:
  - {name: pass, processor: identity}
`))
	require.NoError(t, err)
	s := config.Default()
	s.FPS = 50
	s.PollInterval = 5 * time.Millisecond

	ctx, cancelFn := context.WithCancel(context.Background())
	defer cancelFn()
	time.AfterFunc(50*time.Millisecond, cancelFn)
	var out bytes.Buffer
	err = runLine(ctx, &out, l, s, runOptions{
		frames:  1000,
		width:   2,
		height:  2,
		timeout: time.Second,
		logger:  log.Discard(),
	})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestCamera(t *testing.T) {
	cam := newCamera(1000, 3, 2)
	assert.False(t, cam.IsStreaming())

	q := queue.New[conveyor.Message[*frame.Frame]](8)
	errc := make(chan error, 1)
	go func() {
		errc <- cam.stream(context.Background(), q, 3)
	}()
	// camera waits until streaming is on
	_, ok := q.Pop(20 * time.Millisecond)
	assert.False(t, ok)

	cam.SetStreaming(true)
	cam.SetStreaming(true)
	require.NoError(t, <-errc)
	assert.Equal(t, 4, q.Len())
	m, ok := q.Pop(0)
	require.True(t, ok)
	assert.Equal(t, uint64(1), m.Payload.ID)
	assert.Len(t, m.Payload.Pix, 6)

	cam.SetStreaming(false)
	cam.SetStreaming(false)
	assert.Equal(t, 1, cam.Pauses())
}
