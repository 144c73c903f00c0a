package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/conveyor"
	"pipelined.dev/conveyor/config"
	"pipelined.dev/conveyor/frame"
	"pipelined.dev/conveyor/log"
)

const lineYAML = `
name: inspection
capacity: 4
stages:
  - name: boost
    processor: scale
    params:
      factor: 1.5
  - name: mask
    processor: threshold
    params:
      level: 1000
    disabled: true
    on_disabled: drop
  - name: label
    processor: tag
    params:
      key: line
      value: inspection
`

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		s, err := config.Load()
		require.NoError(t, err)
		assert.Equal(t, config.Default(), s)
	})
	t.Run("environment", func(t *testing.T) {
		t.Setenv("CONVEYOR_CAPACITY", "2")
		t.Setenv("CONVEYOR_POLL_INTERVAL", "20ms")
		t.Setenv("CONVEYOR_FPS", "12.5")
		t.Setenv("CONVEYOR_LOG_LEVEL", "debug")
		s, err := config.Load()
		require.NoError(t, err)
		assert.Equal(t, &config.Settings{
			Capacity:     2,
			PollInterval: 20 * time.Millisecond,
			FPS:          12.5,
			LogLevel:     "debug",
		}, s)
	})
	t.Run("invalid", func(t *testing.T) {
		t.Setenv("CONVEYOR_CAPACITY", "0")
		_, err := config.Load()
		assert.Error(t, err)
	})
	t.Run("malformed", func(t *testing.T) {
		t.Setenv("CONVEYOR_POLL_INTERVAL", "often")
		_, err := config.Load()
		assert.Error(t, err)
	})
}

func TestParseLine(t *testing.T) {
	l, err := config.ParseLine([]byte(lineYAML))
	require.NoError(t, err)
	assert.Equal(t, "inspection", l.Name)
	assert.Equal(t, 4, l.Capacity)
	require.Len(t, l.Stages, 3)
	assert.Equal(t, config.Stage{
		Name:       "mask",
		Processor:  "threshold",
		Params:     frame.Params{"level": "1000"},
		Disabled:   true,
		OnDisabled: "drop",
	}, l.Stages[1])

	data, err := l.Marshal()
	require.NoError(t, err)
	again, err := config.ParseLine(data)
	require.NoError(t, err)
	assert.Equal(t, l, again)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		description string
		yaml        string
	}{
		{
			description: "no name",
			yaml:        "stages: []",
		},
		{
			description: "duplicate stage",
			yaml: `
name: dup
stages:
  - {name: a, processor: identity}
  - {name: a, processor: identity}`,
		},
		{
			description: "no processor",
			yaml: `
name: empty
stages:
  - {name: a}`,
		},
		{
			description: "unknown policy",
			yaml: `
name: policy
stages:
  - {name: a, processor: identity, on_disabled: block}`,
		},
	}
	for _, c := range tests {
		t.Run(c.description, func(t *testing.T) {
			_, err := config.ParseLine([]byte(c.yaml))
			assert.True(t, errors.Is(err, config.ErrDefinition))
		})
	}
	_, err := config.ParseLine([]byte("name: [broken"))
	assert.Error(t, err)
}

func TestBuild(t *testing.T) {
	path := filepath.Join(t.TempDir(), "line.yaml")
	require.NoError(t, os.WriteFile(path, []byte(lineYAML), 0o600))
	l, err := config.LoadLine(path)
	require.NoError(t, err)

	s := config.Default()
	stages, err := l.Build(frame.DefaultRegistry(), s, log.Discard())
	require.NoError(t, err)
	require.Len(t, stages, 3)
	assert.Equal(t, "boost", stages[0].Name())
	assert.True(t, stages[0].IsEnabled())
	assert.False(t, stages[1].IsEnabled())
	assert.Equal(t, conveyor.Idle, stages[2].State())

	p := conveyor.New[*frame.Frame](nil, l.Options(s)...)
	assert.Equal(t, "inspection", p.Name())
	require.NoError(t, p.Wire(stages...))
	assert.Equal(t, 4, p.In().Cap())

	l.Stages[0].Processor = "blur"
	_, err = l.Build(frame.DefaultRegistry(), s, nil)
	assert.True(t, errors.Is(err, frame.ErrUnknownProcessor))

	_, err = config.LoadLine(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
