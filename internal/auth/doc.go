// Package auth issues and verifies the bearer tokens used by showloop.
//
// There is no user database. Tokens are HS256 JWTs minted by the
// `showloop token` command (or by serve, for the supervised renderer) and
// carry one of three roles:
//   - operator: drives playback from the control panel or show control
//   - display: the kiosk page; may only report content completion
//   - viewer: read-only access to history and live events
//
// Permissions are a static role mapping checked by the API middleware.
package auth
