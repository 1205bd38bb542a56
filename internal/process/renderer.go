package process

import (
	"context"
	"net/url"
	"strings"

	"github.com/nerrad567/showloop/internal/infrastructure/config"
)

// RendererName identifies the kiosk display process in logs and stats.
const RendererName = "renderer"

// DisplayCounter reports connected display clients.
type DisplayCounter interface {
	DisplayCount() int
}

// DisplayConnected returns a health check that fails while no display
// client is connected.
func DisplayConnected(c DisplayCounter) func(context.Context) error {
	return func(context.Context) error {
		if c.DisplayCount() == 0 {
			return ErrNoDisplay
		}
		return nil
	}
}

// PanelURL returns the display page URL carrying token.
func PanelURL(publicURL, token string) string {
	u := strings.TrimRight(publicURL, "/") + "/panel/"
	if token == "" {
		return u
	}
	return u + "?" + url.Values{"token": {token}}.Encode()
}

// NewRendererConfig builds the supervisor config for the kiosk display.
// mint is called before every start so each launch carries a fresh display
// token. displays backs the health check; nil disables it.
func NewRendererConfig(cfg config.RendererConfig, publicURL string, mint func() (string, error), displays DisplayCounter) Config {
	c := Config{
		Name:                RendererName,
		Binary:              cfg.Binary,
		Args:                cfg.Args,
		Env:                 cfg.Env,
		RestartOnFailure:    true,
		RestartDelay:        cfg.RestartDelay,
		MaxRestartDelay:     cfg.MaxRestartDelay,
		MaxRestartAttempts:  cfg.MaxRestartAttempts,
		StableThreshold:     cfg.StableThreshold,
		GracefulTimeout:     cfg.GracefulTimeout,
		HealthCheckInterval: cfg.HealthCheckInterval,
		Vars: func() (map[string]string, error) {
			var token string
			if mint != nil {
				t, err := mint()
				if err != nil {
					return nil, err
				}
				token = t
			}
			return map[string]string{
				"url":   PanelURL(publicURL, token),
				"token": token,
			}, nil
		},
	}
	if displays != nil {
		c.HealthCheckFunc = DisplayConnected(displays)
	}
	return c
}
