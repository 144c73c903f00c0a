// Package metric exposes prometheus collectors for pipeline stages.
//
// Metrics are registered on the provided registerer, so multiple pipes can
// share one registry and tests can use isolated ones. A nil *Metrics and a
// nil *Meter are valid and measure nothing.
package metric

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "conveyor"

// Result labels the outcome of a single stage iteration.
type Result string

const (
	// Processed means the item was transformed by an enabled stage.
	Processed Result = "processed"
	// Passed means the item was forwarded unchanged by a disabled stage.
	Passed Result = "passed"
	// Skipped means the processor deliberately dropped the item.
	Skipped Result = "skipped"
	// Dropped means a disabled stage discarded the item.
	Dropped Result = "dropped"
	// Faulted means the processor failed on the item.
	Faulted Result = "faulted"
)

// Metrics holds the collectors of all stages.
type Metrics struct {
	Items   *prometheus.CounterVec
	Latency *prometheus.HistogramVec
	Backlog *prometheus.GaugeVec
	Running prometheus.Gauge
	Toggles *prometheus.CounterVec
}

// New creates collectors and registers them.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Items: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_items_total",
				Help:      "Number of items handled by a stage, by result.",
			},
			[]string{"stage", "result"},
		),
		Latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_process_duration_seconds",
				Help:      "Duration of a single processing call.",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
			},
			[]string{"stage"},
		),
		Backlog: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "stage_backlog",
				Help:      "Items waiting in the input queue of a stage.",
			},
			[]string{"stage"},
		),
		Running: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "stages_running",
				Help:      "Number of stage loops currently running.",
			},
		),
		Toggles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_toggles_total",
				Help:      "Number of enable state changes of a stage.",
			},
			[]string{"stage", "enabled"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Items, m.Latency, m.Backlog, m.Running, m.Toggles)
	}
	return m
}

// Meter returns a meter bound to the stage label.
func (m *Metrics) Meter(stage string) *Meter {
	if m == nil {
		return nil
	}
	return &Meter{
		metrics: m,
		stage:   stage,
		latency: m.Latency.WithLabelValues(stage),
		backlog: m.Backlog.WithLabelValues(stage),
	}
}

// Toggled counts a change of the stage enable state.
func (m *Metrics) Toggled(stage string, enabled bool) {
	if m == nil {
		return
	}
	m.Toggles.WithLabelValues(stage, strconv.FormatBool(enabled)).Inc()
}

// Meter captures measurements of a single stage.
type Meter struct {
	metrics *Metrics
	stage   string
	latency prometheus.Observer
	backlog prometheus.Gauge
}

// Observe records the result of one iteration and its duration.
func (m *Meter) Observe(r Result, d time.Duration) {
	if m == nil {
		return
	}
	m.metrics.Items.WithLabelValues(m.stage, string(r)).Inc()
	if r == Processed || r == Faulted {
		m.latency.Observe(d.Seconds())
	}
}

// Backlog sets the number of items waiting for the stage.
func (m *Meter) Backlog(n int) {
	if m == nil {
		return
	}
	m.backlog.Set(float64(n))
}

// Started marks the stage loop as running.
func (m *Meter) Started() {
	if m == nil {
		return
	}
	m.metrics.Running.Inc()
}

// Stopped marks the stage loop as finished.
func (m *Meter) Stopped() {
	if m == nil {
		return
	}
	m.metrics.Running.Dec()
	m.backlog.Set(0)
}

// Count is the number of items of a stage with the same result.
type Count struct {
	Stage  string
	Result Result
	Value  float64
}

// Counts gathers item counters from g, ordered by stage and result.
func Counts(g prometheus.Gatherer) ([]Count, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, err
	}
	var counts []Count
	for _, mf := range families {
		if mf.GetName() != namespace+"_stage_items_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			var c Count
			for _, l := range m.GetLabel() {
				switch l.GetName() {
				case "stage":
					c.Stage = l.GetValue()
				case "result":
					c.Result = Result(l.GetValue())
				}
			}
			c.Value = m.GetCounter().GetValue()
			counts = append(counts, c)
		}
	}
	slices.SortFunc(counts, func(a, b Count) int {
		if n := strings.Compare(a.Stage, b.Stage); n != 0 {
			return n
		}
		return strings.Compare(string(a.Result), string(b.Result))
	})
	return counts, nil
}
