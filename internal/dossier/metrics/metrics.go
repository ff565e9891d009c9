package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the dossier module.
type Metrics struct {
	DossiersCreated    prometheus.Counter
	StepsAdvanced      prometheus.Counter
	ValidationFailures prometheus.Counter
	SaveStepDuration   prometheus.Histogram
}

// New creates a new Metrics instance with all dossier module metrics registered.
func New() *Metrics {
	return &Metrics{
		DossiersCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "formalitys_dossiers_created_total",
			Help: "Total number of dossiers created",
		}),
		StepsAdvanced: promauto.NewCounter(prometheus.CounterOpts{
			Name: "formalitys_dossier_steps_advanced_total",
			Help: "Total number of successful step advances",
		}),
		ValidationFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "formalitys_dossier_validation_failures_total",
			Help: "Total number of step saves rejected by validation",
		}),
		SaveStepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "formalitys_dossier_save_step_duration_seconds",
			Help:    "Duration of SaveStep operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// ObserveSaveStep records the duration of a SaveStep operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveSaveStep(start time.Time) {
	m.SaveStepDuration.Observe(time.Since(start).Seconds())
}
