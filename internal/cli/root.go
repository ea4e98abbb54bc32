package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"screenrec/internal/config"
	"screenrec/internal/logging"
)

// ServeFunc runs the recorder service until ctx ends.
type ServeFunc func(ctx context.Context, cfg config.Config, logger *slog.Logger) error

type loader func(cmd *cobra.Command) (config.Config, error)

// NewRootCmd builds the screenrec command tree. serve backs the serve command.
func NewRootCmd(serve ServeFunc) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "screenrec",
		Short:         "Headless screen and microphone recorder driven over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Path to the configuration file (default $XDG_CONFIG_HOME/screenrec/config.yaml)")
	flags.String("log-level", "", "Log level: trace|debug|info|warn|error")
	flags.String("host", "", "Address the recorder API listens on")
	flags.Int("port", 0, "Port the recorder API listens on")
	flags.String("token", "", "Bearer token required by the recorder API")

	load := func(cmd *cobra.Command) (config.Config, error) {
		return config.Load(configPath, cmd.Flags())
	}

	root.AddCommand(
		newServeCmd(load, serve),
		newStartCmd(load),
		newStopCmd(load),
		newPingCmd(load),
		newStatusCmd(load),
		newMergeCmd(load),
		newWatchCmd(load),
		newConfigCmd(load),
	)
	return root
}

func newServeCmd(load loader, serve ServeFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the recorder API and keep-alive watchdog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			logger := logging.New(os.Stderr, cfg.Log.Level)
			return serve(cmd.Context(), cfg, logger)
		},
	}
	cmd.Flags().String("recordings-folder", "", "Directory recordings are written to")
	cmd.Flags().String("capture-mode", "", "Screen capture backend: subprocess|native")
	cmd.Flags().String("display", "", "X11 display to capture")
	cmd.Flags().Int("keep-alive-timeout", 0, "Seconds without a keep-alive before capture is closed")
	return cmd
}

func newConfigCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			return config.Dump(cmd.OutOrStdout(), cfg)
		},
	}
}
