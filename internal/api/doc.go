// Package api implements the HTTP REST API and WebSocket server for showloop.
//
// This package provides:
//   - REST endpoints for reading playback state and the scene catalog
//   - Operator commands (play, pause, toggle, skip, jump, reload)
//   - Content completion for displays
//   - Playback history and per-scene statistics
//   - A WebSocket hub that pushes state, events, and renderer payloads
//   - Host metrics, the Prometheus endpoint, and the operator QR code
//
// # Security
//
// Protected routes take a bearer JWT minted by `showloop token`. The role
// in the token decides what the caller may do: operators steer playback,
// displays may only report completion. WebSocket connections pass the same
// token as a ?token= query parameter; without one the socket is read-only.
//
// # Graceful Degradation
//
// History, MQTT, and Prometheus are optional. Routes backed by a missing
// dependency answer 503 and the rest of the API keeps working.
package api
