package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/showloop/internal/catalog"
	"github.com/nerrad567/showloop/internal/infrastructure/config"
)

func newValidateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [catalog]",
		Short: "Check a scene catalog",
		Long:  `Loads the scene catalog (the argument, or playback.catalog_file from the config) and prints the resolved scenes together with any values that were clamped or defaulted.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				cfg, err := config.Load(getConfigPath(root.configPath))
				if err != nil {
					return fmt.Errorf("loading config: %w", err)
				}
				path = cfg.Playback.CatalogFile
			}
			return runValidate(cmd.OutOrStdout(), path)
		},
	}
}

func runValidate(out io.Writer, path string) error {
	cat, adjustments, err := catalog.Load(path)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tID\tKIND\tINTRO\tCONTENT\tCUES")
	for i, scene := range cat.Scenes() {
		intro := "-"
		if scene.HasIntro() {
			intro = ms(scene.Intro.DurationMs)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\n",
			i, scene.ID, scene.Content.Kind, intro, ms(scene.DurationMs), len(scene.Content.Timeline))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	for _, a := range adjustments {
		fmt.Fprintf(out, "adjusted: %s\n", a)
	}
	fmt.Fprintf(out, "%d scenes, loop length %s\n", cat.Len(), ms(cat.TotalDurationMs()))
	return nil
}

func ms(v int64) string {
	return (time.Duration(v) * time.Millisecond).String()
}
