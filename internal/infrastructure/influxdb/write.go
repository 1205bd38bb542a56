package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementSceneActivation = "scene_activation"
	MeasurementPlaybackState   = "playback_state"
	MeasurementSignalDropped   = "signal_dropped"
)

// SceneActivation describes one (scene, phase) activation.
type SceneActivation struct {
	PlayerID   string
	SceneID    string
	Phase      string
	Cause      string
	Index      int
	Activation uint64
	PlannedMs  int64
	At         time.Time
}

// WriteSceneActivation records a scene activation.
//
// Tags: player, scene, phase, cause. Fields: index, activation, planned_ms.
// The write is non-blocking; points are batched and sent asynchronously.
//
// Example:
//
//	client.WriteSceneActivation(influxdb.SceneActivation{
//	    PlayerID: "lobby", SceneID: "dashboard", Phase: "content",
//	    Cause: "timer", Index: 1, Activation: 3, PlannedMs: 15000, At: time.Now(),
//	})
func (c *Client) WriteSceneActivation(a SceneActivation) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(sceneActivationPoint(a))
}

func sceneActivationPoint(a SceneActivation) *write.Point {
	return write.NewPoint(
		MeasurementSceneActivation,
		map[string]string{
			"player": a.PlayerID,
			"scene":  a.SceneID,
			"phase":  a.Phase,
			"cause":  a.Cause,
		},
		map[string]any{
			"index":      a.Index,
			"activation": a.Activation,
			"planned_ms": a.PlannedMs,
		},
		stamp(a.At),
	)
}

// WritePlaybackState records the playing and manual-override flags.
func (c *Client) WritePlaybackState(playerID string, playing, override bool, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(playbackStatePoint(playerID, playing, override, at))
}

func playbackStatePoint(playerID string, playing, override bool, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementPlaybackState,
		map[string]string{"player": playerID},
		map[string]any{"playing": playing, "manual_override": override},
		stamp(at),
	)
}

// WriteSignalDropped records a completion or settle signal that was ignored.
func (c *Client) WriteSignalDropped(playerID, sceneID, reason string, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(signalDroppedPoint(playerID, sceneID, reason, at))
}

func signalDroppedPoint(playerID, sceneID, reason string, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementSignalDropped,
		map[string]string{"player": playerID, "scene": sceneID},
		map[string]any{"reason": reason, "count": 1},
		stamp(at),
	)
}

// WritePoint writes a custom point with full control over tags and fields.
// A zero timestamp means now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, stamp(at)))
}

func stamp(at time.Time) time.Time {
	if at.IsZero() {
		return time.Now()
	}
	return at
}
