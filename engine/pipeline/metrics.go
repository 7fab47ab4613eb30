package pipeline

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors a pipeline reports to. A nil *Metrics records nothing.
type Metrics struct {
	steps       *prometheus.CounterVec
	stepSeconds *prometheus.HistogramVec
	evaluations *prometheus.CounterVec
	skips       *prometheus.CounterVec
	stages      *prometheus.GaugeVec
}

// NewMetrics creates the pipeline collectors and registers them with reg. Registering twice against the
// same registerer reuses the collectors already present, so several pipelines can share one registry.
//
// Parameters:
//   - reg: the registerer, typically prometheus.DefaultRegisterer or a fresh prometheus.NewRegistry()
//
// Returns:
//   - *Metrics: the collectors
//   - error: any registration error other than prometheus.AlreadyRegisteredError
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oxyflow",
			Subsystem: "pipeline",
			Name:      "steps_total",
			Help:      "Number of completed pipeline steps.",
		}, []string{"pipeline"}),
		stepSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "oxyflow",
			Subsystem: "pipeline",
			Name:      "step_seconds",
			Help:      "Wall time spent evaluating one pipeline step.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		}, []string{"pipeline"}),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oxyflow",
			Subsystem: "stage",
			Name:      "evaluations_total",
			Help:      "Number of committed stage evaluations.",
		}, []string{"pipeline", "stage"}),
		skips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oxyflow",
			Subsystem: "stage",
			Name:      "skips_total",
			Help:      "Number of stage evaluations that chose not to update.",
		}, []string{"pipeline", "stage"}),
		stages: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "oxyflow",
			Subsystem: "pipeline",
			Name:      "stages",
			Help:      "Number of stages in a built pipeline.",
		}, []string{"pipeline"}),
	}
	if reg == nil {
		return m, nil
	}

	var err error
	if m.steps, err = register(reg, m.steps); err != nil {
		return nil, err
	}
	if m.stepSeconds, err = register(reg, m.stepSeconds); err != nil {
		return nil, err
	}
	if m.evaluations, err = register(reg, m.evaluations); err != nil {
		return nil, err
	}
	if m.skips, err = register(reg, m.skips); err != nil {
		return nil, err
	}
	if m.stages, err = register(reg, m.stages); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) observeStep(pipeline string, d time.Duration) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues(pipeline).Inc()
	m.stepSeconds.WithLabelValues(pipeline).Observe(d.Seconds())
}

func (m *Metrics) observeEvaluation(pipeline, stage string) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(pipeline, stage).Inc()
}

func (m *Metrics) observeSkip(pipeline, stage string) {
	if m == nil {
		return
	}
	m.skips.WithLabelValues(pipeline, stage).Inc()
}

func (m *Metrics) observeStages(pipeline string, n int) {
	if m == nil {
		return
	}
	m.stages.WithLabelValues(pipeline).Set(float64(n))
}
