// Showloop plays a looping catalog of presentation scenes on a kiosk
// display and lets operators drive it over HTTP, WebSocket, and MQTT.
//
// Subcommands:
//
//	showloop serve             run the player, API, and renderer supervisor
//	showloop validate [file]   check a scene catalog
//	showloop token             mint an access token
//	showloop version           print build information
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// getConfigPath returns the configuration file path: the flag value if
// given, then SHOWLOOP_CONFIG, then the default.
func getConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if path := os.Getenv("SHOWLOOP_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
