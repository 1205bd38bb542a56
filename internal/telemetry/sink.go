package telemetry

import (
	"context"
	"time"

	"github.com/nerrad567/showloop/internal/infrastructure/influxdb"
	"github.com/nerrad567/showloop/internal/playback"
)

// PointWriter receives time-series points. *influxdb.Client implements it.
type PointWriter interface {
	WriteSceneActivation(a influxdb.SceneActivation)
	WritePlaybackState(playerID string, playing, override bool, at time.Time)
	WriteSignalDropped(playerID, sceneID, reason string, at time.Time)
}

// Sink feeds player events into Metrics and an optional PointWriter.
type Sink struct {
	metrics  *Metrics
	points   PointWriter
	playerID string

	// Current activation, closed out when the next one starts.
	current   *playback.Snapshot
	startedAt time.Time
}

// NewSink creates a sink. points may be nil when InfluxDB is disabled.
func NewSink(metrics *Metrics, points PointWriter, playerID string) *Sink {
	return &Sink{metrics: metrics, points: points, playerID: playerID}
}

// Run observes events until ctx is cancelled or events is closed.
func (s *Sink) Run(ctx context.Context, events <-chan playback.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			s.Observe(ev)
		}
	}
}

// Observe applies one event.
func (s *Sink) Observe(ev playback.Event) {
	st := ev.State
	s.metrics.observeState(st)

	switch ev.Kind {
	case playback.EventPhaseStarted:
		s.closeActivation(ev.At)
		s.metrics.activations.WithLabelValues(st.SceneID, string(st.Phase), string(ev.Cause)).Inc()
		s.current, s.startedAt = &st, ev.At

		if s.points != nil {
			s.points.WriteSceneActivation(influxdb.SceneActivation{
				PlayerID:   s.playerID,
				SceneID:    st.SceneID,
				Phase:      string(st.Phase),
				Cause:      string(ev.Cause),
				Index:      st.Index,
				Activation: st.Activation,
				PlannedMs:  st.TotalMs,
				At:         ev.At,
			})
		}

	case playback.EventPlaybackChanged:
		if s.points != nil {
			s.points.WritePlaybackState(s.playerID, st.Playing, st.ManualOverride, ev.At)
		}

	case playback.EventSignalDropped:
		reason := dropReason(ev.Err)
		s.metrics.dropped.WithLabelValues(reason).Inc()
		if s.points != nil {
			s.points.WriteSignalDropped(s.playerID, st.SceneID, reason, ev.At)
		}

	case playback.EventCommand:
		if ev.Command != nil {
			source := ev.Command.Source
			if source == "" {
				source = "unknown"
			}
			s.metrics.commands.WithLabelValues(string(ev.Command.Kind), source).Inc()
		}
	}
}

func (s *Sink) closeActivation(now time.Time) {
	if s.current == nil {
		return
	}
	if d := now.Sub(s.startedAt); d >= 0 {
		s.metrics.dwell.WithLabelValues(s.current.SceneID, string(s.current.Phase)).Observe(d.Seconds())
	}
	s.current = nil
}
