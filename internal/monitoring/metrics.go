// Package monitoring holds the Prometheus metrics of the conversion pipeline.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Failure stages used as the "stage" label of ConversionErrors.
const (
	StageClassify   = "classify"
	StageFetch      = "fetch"
	StageSynthesize = "synthesize"
	StageUpload     = "upload"
)

// Metrics holds the collectors updated by the converter.
type Metrics struct {
	Conversions      *prometheus.CounterVec
	ConversionErrors *prometheus.CounterVec
	ValidationErrors prometheus.Counter
	SynthesisTime    prometheus.Histogram
	AudioBytes       prometheus.Histogram
}

// NewMetrics creates an unregistered set of metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		Conversions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tts",
			Subsystem: "converter",
			Name:      "conversions_total",
		}, []string{"trigger"}),
		ConversionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tts",
			Subsystem: "converter",
			Name:      "errors_total",
		}, []string{"stage"}),
		ValidationErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tts",
			Subsystem: "converter",
			Name:      "validation_errors_total",
		}),
		SynthesisTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tts",
			Subsystem: "synthesis",
			Name:      "request_seconds",
		}),
		AudioBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tts",
			Subsystem: "synthesis",
			Name:      "audio_bytes",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
		}),
	}
}

// Register adds every collector to reg. It panics on duplicate registration.
func (m *Metrics) Register(reg prometheus.Registerer) {
	reg.MustRegister(m.Conversions)
	reg.MustRegister(m.ConversionErrors)
	reg.MustRegister(m.ValidationErrors)
	reg.MustRegister(m.SynthesisTime)
	reg.MustRegister(m.AudioBytes)
}

// ObserveConversion counts a successful conversion. A nil receiver is a no-op,
// as for every Observe method.
func (m *Metrics) ObserveConversion(trigger string) {
	if m == nil {
		return
	}

	m.Conversions.WithLabelValues(trigger).Inc()
}

// ObserveError counts a failure at stage.
func (m *Metrics) ObserveError(stage string) {
	if m == nil {
		return
	}

	m.ConversionErrors.WithLabelValues(stage).Inc()
}

// ObserveValidationError counts a rejected direct request.
func (m *Metrics) ObserveValidationError() {
	if m == nil {
		return
	}

	m.ValidationErrors.Inc()
}

// ObserveSynthesis records the latency and size of one synthesized stream.
func (m *Metrics) ObserveSynthesis(seconds float64, audioBytes int64) {
	if m == nil {
		return
	}

	m.SynthesisTime.Observe(seconds)
	m.AudioBytes.Observe(float64(audioBytes))
}
