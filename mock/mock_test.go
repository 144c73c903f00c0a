package mock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/conveyor"
	"pipelined.dev/conveyor/mock"
	"pipelined.dev/conveyor/queue"
)

func TestProcessor(t *testing.T) {
	errTest := errors.New("test error")
	m := &mock.Processor[int]{
		Fn:          func(v int) int { return v * 3 },
		ErrorOnCall: errTest,
		FailOn:      func(v int) bool { return v == 2 },
	}
	p := m.Processor()

	v, err := p.ProcessFunc(context.Background(), 1)
	assert.NoError(t, err)
	assert.Equal(t, 3, v)
	_, err = p.ProcessFunc(context.Background(), 2)
	assert.Equal(t, errTest, err)
	assert.Equal(t, 2, m.Calls())

	assert.NoError(t, p.StartFunc(context.Background()))
	assert.True(t, m.Started())
	assert.False(t, m.Flushed())
}

func TestLiveMode(t *testing.T) {
	live := mock.Streaming()
	assert.True(t, live.IsStreaming())
	live.SetStreaming(false)
	live.SetStreaming(true)
	assert.Equal(t, []bool{false, true}, live.Transitions())
	assert.Empty(t, (&mock.LiveMode{}).Transitions())
}

func TestFeedCollect(t *testing.T) {
	q := queue.New[conveyor.Message[string]](4)
	assert.NoError(t, mock.Feed(q, "a", "b"))
	ms := mock.Collect(q, 10*time.Millisecond)
	assert.Len(t, ms, 3)
	assert.True(t, ms[2].IsEOS())
	assert.Equal(t, []string{"a", "b"}, mock.Payloads(ms))
}
