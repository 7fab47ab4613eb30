package profiler

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the gauges a Profiler publishes each report. A nil *Metrics records nothing.
type Metrics struct {
	fps       prometheus.Gauge
	stepMean  prometheus.Gauge
	stepMax   prometheus.Gauge
	heap      prometheus.Gauge
	allocRate prometheus.Gauge
}

// NewMetrics creates the profiler gauges and registers them with reg. Gauges already registered on
// reg are reused.
//
// Parameters:
//   - reg: the registerer, nil to skip registration
//
// Returns:
//   - *Metrics: the gauges
//   - error: any registration error other than prometheus.AlreadyRegisteredError
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "oxyflow", Subsystem: "profiler", Name: name, Help: help})
	}
	m := &Metrics{
		fps:       gauge("fps", "Frames per second over the last report window."),
		stepMean:  gauge("step_mean_seconds", "Mean pipeline step time over the last report window."),
		stepMax:   gauge("step_max_seconds", "Longest pipeline step in the last report window."),
		heap:      gauge("heap_bytes", "Live heap bytes at the last report."),
		allocRate: gauge("alloc_rate_bytes", "Heap allocation rate in bytes per second."),
	}
	if reg == nil {
		return m, nil
	}
	for _, g := range []*prometheus.Gauge{&m.fps, &m.stepMean, &m.stepMax, &m.heap, &m.allocRate} {
		if err := reg.Register(*g); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return nil, err
			}
			*g = are.ExistingCollector.(prometheus.Gauge)
		}
	}
	return m, nil
}

func (m *Metrics) observe(s Stats) {
	if m == nil {
		return
	}
	m.fps.Set(s.FPS)
	m.stepMean.Set(s.MeanStep.Seconds())
	m.stepMax.Set(s.MaxStep.Seconds())
	m.heap.Set(float64(s.HeapBytes))
	m.allocRate.Set(s.AllocRate)
}
