package cmd

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lowaak/smart-trainer/runbeat/internal/config"
	"github.com/lowaak/smart-trainer/runbeat/internal/store"
	"github.com/lowaak/smart-trainer/runbeat/internal/trainer"
	"github.com/lowaak/smart-trainer/runbeat/internal/zones"
)

func newZonesCommand(load settingsLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "zones [bpm...]",
		Short: "Print the effective zone boundaries.",
		Long: `Prints the zone boundaries in effect, using saved preferences over the settings seed.
Each BPM argument is classified into its zone.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, settings, err := load(cmd)
			if err != nil {
				return err
			}

			bpms := make([]int, 0, len(args))
			for _, arg := range args {
				bpm, err := strconv.Atoi(arg)
				if err != nil {
					return fmt.Errorf("bpm %q: %w", arg, err)
				}
				bpms = append(bpms, bpm)
			}

			log := zap.NewNop().Sugar()
			prefs := trainer.NewPreferences(store.NewFileStore(afero.NewOsFs(), settings.Preferences, log), log)
			cfg := prefs.ZoneConfig(settings.ZoneConfig())
			b := cfg.Effective()

			out := cmd.OutOrStdout()
			source := "manual"
			if cfg.UseAutoZones {
				source = fmt.Sprintf("auto (resting %d, max %d)", cfg.RestingHR, cfg.MaxHR)
			}
			_, _ = fmt.Fprintf(out, "zones: %s\n", source)

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintf(w, "zone\tfrom\tto\n")
			_, _ = fmt.Fprintf(w, "0\t-\t%d\n", b[0]-1)
			for z := 1; z < zones.BoundaryCount-1; z++ {
				_, _ = fmt.Fprintf(w, "%d\t%d\t%d\n", z, b[z-1], b[z]-1)
			}
			_, _ = fmt.Fprintf(w, "%d\t%d\t-\n", zones.MaxZone, b[zones.BoundaryCount-2])
			if err := w.Flush(); err != nil {
				return err
			}

			for _, bpm := range bpms {
				_, _ = fmt.Fprintf(out, "%d bpm: %s\n", bpm, zones.Lookup(bpm, b))
			}
			return nil
		},
	}
}

func newConfigCommand(load settingsLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective settings as YAML.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loader, settings, err := load(cmd)
			if err != nil {
				return err
			}
			out, err := config.Dump(settings)
			if err != nil {
				return err
			}
			if file := loader.ConfigFile(); file != "" {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", file)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
