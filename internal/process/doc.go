// Package process supervises the kiosk renderer: the browser (or any other
// executable) that shows the display panel on the attached screen.
//
// A Manager starts the process in its own process group, logs its output,
// and restarts it with exponential backoff when it exits. A run that lasts
// longer than StableThreshold resets the backoff. An optional health check
// (for the renderer: "a display client is connected over WebSocket") kills
// the process after three consecutive failures so it gets relaunched.
// Shutdown sends SIGTERM to the group and SIGKILL after GracefulTimeout.
//
// Arguments may carry {{name}} placeholders, filled before every start:
//
//	mgr := process.NewManager(process.NewRendererConfig(cfg.Renderer, publicURL, mint, hub))
//	mgr.SetLogger(log)
//	return mgr.Run(ctx)
package process
