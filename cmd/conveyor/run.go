package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"pipelined.dev/conveyor"
	"pipelined.dev/conveyor/config"
	"pipelined.dev/conveyor/frame"
	"pipelined.dev/conveyor/log"
	"pipelined.dev/conveyor/metric"
)

var runFlags struct {
	linePath string
	frames   int
	toggle   string
	width    int
	height   int
	timeout  time.Duration
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a line with simulated camera in live mode",
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := config.Load()
		if err != nil {
			return err
		}
		l, err := config.LoadLine(runFlags.linePath)
		if err != nil {
			return err
		}
		return runLine(cmd.Context(), cmd.OutOrStdout(), l, s, runOptions{
			frames:  runFlags.frames,
			toggle:  runFlags.toggle,
			width:   runFlags.width,
			height:  runFlags.height,
			timeout: runFlags.timeout,
			logger:  log.WithLevel(s.LogLevel),
		})
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runFlags.linePath, "file", "f", "", "line definition file (required)")
	f.IntVarP(&runFlags.frames, "frames", "n", 100, "number of frames to capture")
	f.StringVar(&runFlags.toggle, "toggle", "", "stage to toggle in the middle of the run, first stage by default")
	f.IntVar(&runFlags.width, "width", 64, "frame width")
	f.IntVar(&runFlags.height, "height", 48, "frame height")
	f.DurationVar(&runFlags.timeout, "close-timeout", 5*time.Second, "time to wait for the line to drain")

	_ = runCmd.MarkFlagRequired("file")
}

type runOptions struct {
	frames        int
	toggle        string
	width, height int
	timeout       time.Duration
	logger        log.Logger
}

// runLine streams frames through the line, toggles one stage after half
// of frames are received and prints the counts.
func runLine(ctx context.Context, w io.Writer, l *config.Line, s *config.Settings, o runOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	reg := prometheus.NewRegistry()
	stages, err := l.Build(frame.DefaultRegistry(), s, o.logger)
	if err != nil {
		return err
	}
	toggled, err := findStage(stages, o.toggle)
	if err != nil {
		return err
	}

	cam := newCamera(s.FPS, o.width, o.height)
	opts := append(l.Options(s),
		conveyor.WithLogger(o.logger),
		conveyor.WithMetrics(metric.New(reg)),
		conveyor.WithListener(func(e conveyor.EnabledEvent) {
			o.logger.WithFields(logrus.Fields{
				"stage":   e.Stage,
				"enabled": e.Enabled,
				"paused":  e.Paused,
			}).Debug("camera paused for toggle")
		}),
	)
	p := conveyor.New[*frame.Frame](cam, opts...)
	if err := p.Wire(stages...); err != nil {
		return err
	}
	if err := p.StartAll(); err != nil {
		return err
	}
	cam.SetStreaming(true)

	received := 0
	g, gctx := errgroup.WithContext(ctx)
	in, out := p.In(), p.Out()
	g.Go(func() error {
		return cam.stream(gctx, in, o.frames)
	})
	g.Go(func() error {
		for {
			m, err := out.PopContext(gctx)
			if err != nil {
				// releases the camera if it's blocked on full line
				p.StopAll()
				return err
			}
			if m.IsEOS() {
				return nil
			}
			received++
			cam.release(m.Payload)
			if toggled != nil && received == o.frames/2 {
				if err := p.SetStageEnabled(toggled, !toggled.IsEnabled()); err != nil {
					return err
				}
			}
		}
	})
	runErr := g.Wait()
	// only pauses caused by toggles are reported
	pauses := cam.Pauses()
	cam.SetStreaming(false)

	closeCtx, cancelFn := context.WithTimeout(context.Background(), o.timeout)
	defer cancelFn()
	if err := p.Close(closeCtx); err != nil && runErr == nil {
		runErr = err
	}

	fmt.Fprintf(w, "line %s: %d frames requested, %d received, %d pauses\n", l.Name, o.frames, received, pauses)
	counts, err := metric.Counts(reg)
	if err != nil {
		return err
	}
	for _, c := range counts {
		fmt.Fprintf(w, "  %-16s %-10s %.0f\n", c.Stage, c.Result, c.Value)
	}
	return runErr
}

func findStage(stages []*conveyor.Stage[*frame.Frame], name string) (*conveyor.Stage[*frame.Frame], error) {
	if name == "" {
		if len(stages) == 0 {
			return nil, nil
		}
		return stages[0], nil
	}
	for _, s := range stages {
		if s.Name() == name {
			return s, nil
		}
	}
	return nil, fmt.Errorf("stage %s: %w", name, conveyor.ErrUnknownStage)
}
