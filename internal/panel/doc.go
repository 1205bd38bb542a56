// Package panel serves the kiosk display page as an embedded asset.
//
// The page (web/index.html and web/app.js) connects to /api/v1/ws with the
// display token from its URL, renders the intro card or the scene content,
// and forwards completion messages posted by content iframes back to the
// player. Opened with #control it becomes a small operator remote that
// calls the REST API with an operator token.
package panel
