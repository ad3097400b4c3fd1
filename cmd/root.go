package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flashctl/config"
	"github.com/michaelpento.lv/flashctl/utils"
)

var (
	cfgFile string
	envFile string
	debug   bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "flashctl",
	Short: "Drive a Balancer flash loan controller",
	Long: `flashctl simulates a flash loan controller end to end on an in-process chain
and operates a deployed controller over JSON-RPC: reading its state, requesting
flash loans and moving funds in and out of its treasury.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadEnv(envFile); err != nil {
			return err
		}
		loaded, err := config.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		log, err := utils.InitLogger(utils.LogOptions{
			Debug:   debug || loaded.Debug,
			Console: loaded.Log.Format == "console",
			File:    loaded.Log.File,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		loaded.Logger = log
		cfg = loaded

		return startMetricsServer(cmd.Context(), cfg.Metrics, cfg.Logger)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		stopMetricsServer(logger())
		utils.CleanupLogger()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.flashctl.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file with endpoints and keys")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func logger() *zap.Logger {
	if cfg != nil && cfg.Logger != nil {
		return cfg.Logger
	}
	return utils.GetLogger()
}
