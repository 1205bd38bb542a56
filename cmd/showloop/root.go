package main

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "showloop",
		Short:         "Showloop runs a looping scene presentation on a kiosk display",
		Long:          `Showloop cycles through a catalog of timed scenes, renders them on an attached display, and accepts operator commands over HTTP, WebSocket, and MQTT.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default $SHOWLOOP_CONFIG or "+defaultConfigPath+")")

	cmd.AddCommand(
		newServeCmd(opts),
		newValidateCmd(opts),
		newTokenCmd(opts),
		newVersionCmd(),
	)
	return cmd
}
