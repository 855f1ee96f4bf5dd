// Package metrics counts what a conversion run did, in prometheus text format.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Box outcomes
const (
	OutcomeRetained = "retained"
	OutcomeExcluded = "excluded"
	OutcomeArea     = "area"
	OutcomeBounds   = "bounds" // Dropped by a serializer, eg darknet bounds
)

type Metrics struct {
	Registry *prometheus.Registry

	images   *prometheus.CounterVec
	boxes    *prometheus.CounterVec
	files    *prometheus.CounterVec
	maxDelta *prometheus.GaugeVec
	attempts prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		images: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dsprep_images_total",
			Help: "Images written, per split",
		}, []string{"split"}),
		boxes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dsprep_boxes_total",
			Help: "Bounding boxes read, per split and outcome",
		}, []string{"split", "outcome"}),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dsprep_output_files_total",
			Help: "Output files written, per format",
		}, []string{"format"}),
		maxDelta: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dsprep_split_max_delta_percent",
			Help: "Largest absolute deviation of a class fraction from the split weight",
		}, []string{"split"}),
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dsprep_split_search_attempts_total",
			Help: "Seeds tried by split search",
		}),
	}
	m.Registry.MustRegister(m.images, m.boxes, m.files, m.maxDelta, m.attempts)
	return m
}

func (m *Metrics) AddImages(split string, n int) {
	m.images.WithLabelValues(split).Add(float64(n))
}

func (m *Metrics) AddBoxes(split, outcome string, n int) {
	if n == 0 {
		return
	}
	m.boxes.WithLabelValues(split, outcome).Add(float64(n))
}

func (m *Metrics) AddFiles(format string, n int) {
	m.files.WithLabelValues(format).Add(float64(n))
}

func (m *Metrics) SetMaxDelta(split string, delta float64) {
	m.maxDelta.WithLabelValues(split).Set(delta)
}

func (m *Metrics) AddAttempt() {
	m.attempts.Inc()
}

// WriteFile writes all metrics in the textfile collector format
func (m *Metrics) WriteFile(filename string) error {
	return prometheus.WriteToTextfile(filename, m.Registry)
}
