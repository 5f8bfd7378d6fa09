package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/san-kum/posegen/internal/config"
)

func (a *app) presetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "list recording presets per scene",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SCENE\tPRESET\tCHUNKS\tFRAMES\tWORKERS\tCODEC\tCOMPRESSION")
			for _, sceneType := range a.scenes.List() {
				for _, name := range config.ListPresets(sceneType) {
					p := config.GetPreset(sceneType, name)
					fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n", sceneType, name,
						p.Chunks, p.FramesPerChunk, p.Workers, p.Frame.RGBCodec, p.Frame.Compression)
				}
			}
			return w.Flush()
		},
	}
}
