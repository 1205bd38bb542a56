// Package render connects scene content to the playback loop.
//
// Each scene's content kind selects a Renderer:
//
//   - static: announced to displays, ends when its timer does
//   - interactive: the display reports completion with the activation token
//   - scripted: timeline cues are announced as elapsed time reaches them,
//     and the completion cue ends the scene early
//
// The Dispatcher subscribes to player events, swaps renderers as
// activations change, and returns renderer completions to the player.
// Displays receive everything over the scene.activate, scene.intro and
// scene.cue WebSocket channels.
package render
