package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/lowaak/smart-trainer/runbeat/internal/app"
	"github.com/lowaak/smart-trainer/runbeat/internal/logger"
	"github.com/lowaak/smart-trainer/runbeat/internal/trainer"
)

func newRunCommand(load settingsLoader) *cobra.Command {
	var (
		modeName string
		duration time.Duration
	)

	names := make([]string, 0, len(trainer.AllModes))
	for _, info := range trainer.AllModes {
		names = append(names, info.Name)
	}

	run := &cobra.Command{
		Use:   "run",
		Short: "Run a training session.",
		Long: `Starts a session in the chosen mode, promotes it to active training and follows the
heart rate source until interrupted or until --duration elapses. Zone changes are announced
to the log and, when enabled, over MQTT. Editing the settings file re-applies the zones.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mode, ok := trainer.ParseMode(modeName)
			if !ok {
				return fmt.Errorf("%w: %q (want one of %s)", trainer.ErrUnknownMode, modeName, strings.Join(names, ", "))
			}

			loader, settings, err := load(cmd)
			if err != nil {
				return err
			}

			log, closeLog, err := logger.New(settings.LoggerOptions())
			if err != nil {
				return err
			}
			defer func() { _ = closeLog() }()

			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			session, err := app.NewSession(app.Options{
				Settings: settings,
				Mode:     mode,
				Duration: duration,
				Fs:       afero.NewOsFs(),
			}, log)
			if err != nil {
				return err
			}
			loader.Watch(log, session.ApplySettings)

			stats, err := session.Run(ctx)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "samples: %d, zone changes: %d\n", stats.Samples, stats.ZoneChanges)
			return nil
		},
	}

	run.Flags().StringVarP(&modeName, "mode", "m", trainer.ModeFree.String(),
		fmt.Sprintf("training mode (%s)", strings.Join(names, ", ")))
	run.Flags().DurationVarP(&duration, "duration", "d", 0, "end the session after this long, 0 to run until interrupted")

	return run
}
