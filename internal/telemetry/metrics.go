package telemetry

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/showloop/internal/playback"
)

const namespace = "showloop"

// Drop reasons used as the reason label. Kept low-cardinality.
const (
	reasonStale     = "stale_activation"
	reasonNotReady  = "not_in_content"
	reasonDuplicate = "duplicate_advance"
	reasonOther     = "other"
)

// Metrics holds the player's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	activations *prometheus.CounterVec
	dwell       *prometheus.HistogramVec
	dropped     *prometheus.CounterVec
	commands    *prometheus.CounterVec
	playing     prometheus.Gauge
	override    prometheus.Gauge
	sceneIndex  prometheus.Gauge
	remaining   prometheus.Gauge
}

// NewMetrics registers the player collectors on a fresh registry.
// droppedEvents reports events lost to slow subscribers; it may be nil.
func NewMetrics(playerID string, droppedEvents func() uint64) *Metrics {
	labels := prometheus.Labels{"player": playerID}
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		activations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "activations_total",
			Help:        "Scene phase activations by scene, phase, and cause.",
			ConstLabels: labels,
		}, []string{"scene", "phase", "cause"}),
		dwell: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "phase_dwell_seconds",
			Help:        "Time a scene phase was actually on screen.",
			ConstLabels: labels,
			Buckets:     []float64{1, 2, 5, 10, 15, 20, 30, 60, 120, 300},
		}, []string{"scene", "phase"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "signals_dropped_total",
			Help:        "Completion or settle signals ignored by the player.",
			ConstLabels: labels,
		}, []string{"reason"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "commands_total",
			Help:        "Commands received by kind and source.",
			ConstLabels: labels,
		}, []string{"command", "source"}),
		playing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "playing",
			Help:        "1 when autoplay is running.",
			ConstLabels: labels,
		}),
		override: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "manual_override",
			Help:        "1 when an operator has taken control.",
			ConstLabels: labels,
		}),
		sceneIndex: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "scene_index",
			Help:        "Index of the active scene.",
			ConstLabels: labels,
		}),
		remaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "phase_remaining_seconds",
			Help:        "Time left in the current phase.",
			ConstLabels: labels,
		}),
	}

	reg.MustRegister(
		m.activations, m.dwell, m.dropped, m.commands,
		m.playing, m.override, m.sceneIndex, m.remaining,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if droppedEvents != nil {
		reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "subscriber_events_dropped_total",
			Help:        "Player events dropped because a subscriber was full.",
			ConstLabels: labels,
		}, func() float64 { return float64(droppedEvents()) }))
	}

	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// observeState refreshes the state gauges from a snapshot.
func (m *Metrics) observeState(s playback.Snapshot) {
	m.playing.Set(boolToFloat(s.Playing))
	m.override.Set(boolToFloat(s.ManualOverride))
	m.sceneIndex.Set(float64(s.Index))
	m.remaining.Set(float64(s.RemainingMs) / 1000)
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, playback.ErrStaleActivation):
		return reasonStale
	case errors.Is(err, playback.ErrNotInContent):
		return reasonNotReady
	case errors.Is(err, playback.ErrDuplicateAdvance):
		return reasonDuplicate
	default:
		return reasonOther
	}
}
