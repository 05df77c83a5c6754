package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/wesleyorama2/stressor/internal/logging"
)

var version = "0.1.0"

// envPrefix is the prefix of environment variables mirroring the flags,
// for example STRESSOR_CONCURRENCY or STRESSOR_MAX_RATE.
const envPrefix = "STRESSOR"

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "stressor",
		Short:   "A concurrent HTTP stress tester",
		Version: version,
		Long: `Stressor hammers one HTTP target with a fixed pool of workers for a
fixed duration, then reports latency percentiles, failure breakdowns,
anomalies and a per-second timeline.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			// If no subcommand is provided, print help
			cmd.Help()
		},
	}

	root.PersistentFlags().String("log-level", "warn", "Log level: debug, info, warn, error, none")
	root.PersistentFlags().String("log-format", logging.FormatConsole, "Log format: console, json")

	root.AddCommand(newRunCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newHistoryCmd())
	return root
}

// Execute runs the root command. Errors are printed by cobra.
func Execute() error {
	return NewRootCmd().Execute()
}

// newViper binds the command's flags and the STRESSOR_* environment.
// Flags win over the environment, which wins over the flag defaults.
func newViper(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	return v, nil
}

func newLogger(cmd *cobra.Command, v *viper.Viper) (*zap.Logger, error) {
	return logging.New(v.GetString("log-level"), v.GetString("log-format"), cmd.ErrOrStderr())
}
