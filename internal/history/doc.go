// Package history records what the player actually showed.
//
// A Recorder subscribes to player events and writes phase starts, playback
// toggles, operator commands, and dropped signals to the playback_events
// table. Each activation row receives its real on-screen dwell once the
// next activation starts, so SceneStats reflects pauses and early
// completions rather than configured durations.
package history
