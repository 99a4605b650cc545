package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/lowaak/smart-trainer/runbeat/internal/config"
)

// Version is the build version. It can be overridden via ldflags.
var Version = "0.1.0"

// Execute runs the runbeat CLI and exits with non-zero status on error.
func Execute() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "runbeat",
		Short: "Heart rate zone coaching for training sessions.",
		Long: `runbeat follows a heart rate source through a training session, tracks the
current heart rate zone and announces zone changes at most once per cooldown window.

Settings come from runbeat.yaml (working directory or ~/.runbeat), RUNBEAT_* environment
variables and flags, in increasing order of precedence.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the settings file")
	config.RegisterFlags(root.PersistentFlags())

	loadSettings := func(cmd *cobra.Command) (*config.Loader, *config.Settings, error) {
		loader, err := config.NewLoader(afero.NewOsFs(), configPath, cmd.Flags())
		if err != nil {
			return nil, nil, err
		}
		settings, err := loader.Load()
		if err != nil {
			return nil, nil, err
		}
		return loader, settings, nil
	}

	root.AddCommand(
		newRunCommand(loadSettings),
		newZonesCommand(loadSettings),
		newConfigCommand(loadSettings),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information.",
			Run: func(cmd *cobra.Command, _ []string) {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "runbeat", Version)
			},
		},
	)

	return root
}

type settingsLoader func(cmd *cobra.Command) (*config.Loader, *config.Settings, error)
