// Package metrics records bot activity as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder is the narrow interface the rest of the bot reports through.
type Recorder interface {
	// InboundEvent counts events from a frontend by kind (text, choice, command, duplicate, blocked).
	InboundEvent(frontend, kind string)
	// DialogueStep counts dialogue outcomes (started, advanced, invalid, expired, cancelled, completed).
	DialogueStep(step string)
	// ContentResult records a text backend call; outcome is "ok" or "fallback".
	ContentResult(backend, outcome string, duration time.Duration)
	// ImageResult records an image fetch; outcome is "ok" or "fallback".
	ImageResult(backend, outcome string)
	// Generation records a finished pipeline run.
	Generation(format, status string, duration time.Duration)
	// JobAttempt counts queue attempts by outcome (succeeded, retried, failed).
	JobAttempt(outcome string)
}

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	inboundTotal       *prometheus.CounterVec
	dialogueTotal      *prometheus.CounterVec
	contentTotal       *prometheus.CounterVec
	contentDuration    *prometheus.HistogramVec
	imagesTotal        *prometheus.CounterVec
	generationsTotal   *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	jobAttemptsTotal   *prometheus.CounterVec
}

// NewPrometheusRecorder registers the collectors with reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		inboundTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deckbot_inbound_events_total",
				Help: "Inbound events by frontend and kind",
			},
			[]string{"frontend", "kind"},
		),
		dialogueTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deckbot_dialogue_steps_total",
				Help: "Dialogue outcomes by step",
			},
			[]string{"step"},
		),
		contentTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deckbot_content_requests_total",
				Help: "Text generation calls by backend and outcome",
			},
			[]string{"backend", "outcome"},
		),
		contentDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deckbot_content_duration_seconds",
				Help:    "Duration of text generation calls",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
			},
			[]string{"backend"},
		),
		imagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deckbot_image_fetches_total",
				Help: "Image fetches by backend and outcome",
			},
			[]string{"backend", "outcome"},
		),
		generationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deckbot_generations_total",
				Help: "Finished document generations by format and status",
			},
			[]string{"format", "status"},
		),
		generationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deckbot_generation_duration_seconds",
				Help:    "Wall time of a pipeline run",
				Buckets: prometheus.ExponentialBuckets(1, 2, 9),
			},
			[]string{"format"},
		),
		jobAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deckbot_job_attempts_total",
				Help: "Queue job attempts by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// InboundEvent implements Recorder.
func (p *PrometheusRecorder) InboundEvent(frontend, kind string) {
	p.inboundTotal.WithLabelValues(frontend, kind).Inc()
}

// DialogueStep implements Recorder.
func (p *PrometheusRecorder) DialogueStep(step string) {
	p.dialogueTotal.WithLabelValues(step).Inc()
}

// ContentResult implements Recorder.
func (p *PrometheusRecorder) ContentResult(backend, outcome string, duration time.Duration) {
	p.contentTotal.WithLabelValues(backend, outcome).Inc()
	p.contentDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// ImageResult implements Recorder.
func (p *PrometheusRecorder) ImageResult(backend, outcome string) {
	p.imagesTotal.WithLabelValues(backend, outcome).Inc()
}

// Generation implements Recorder.
func (p *PrometheusRecorder) Generation(format, status string, duration time.Duration) {
	p.generationsTotal.WithLabelValues(format, status).Inc()
	p.generationDuration.WithLabelValues(format).Observe(duration.Seconds())
}

// JobAttempt implements Recorder.
func (p *PrometheusRecorder) JobAttempt(outcome string) {
	p.jobAttemptsTotal.WithLabelValues(outcome).Inc()
}

// Nop discards everything. Components default to it when no recorder is given.
type Nop struct{}

func (Nop) InboundEvent(string, string)                 {}
func (Nop) DialogueStep(string)                         {}
func (Nop) ContentResult(string, string, time.Duration) {}
func (Nop) ImageResult(string, string)                  {}
func (Nop) Generation(string, string, time.Duration)    {}
func (Nop) JobAttempt(string)                           {}

var (
	_ Recorder = (*PrometheusRecorder)(nil)
	_ Recorder = Nop{}
)
