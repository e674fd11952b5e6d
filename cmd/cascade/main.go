// cascade runs the adaptive gating cascade: an interactive chat loop, fixture
// replay, and inspection of learned pattern memory.
//
// Usage:
//
//	cascade chat [--offline] [--session id]
//	cascade replay <fixture.json> [--online] [--json]
//	cascade inspect [--versions N] [--json]
//	cascade trajectory <score>...
//	cascade rollback <version-id>
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/adaptive-cascade/internal/config"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	configPath string
	cfg        *config.Config
	logger     = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "cascade",
	Short: "Adaptive gating cascade for conversational turns",
	Long: `cascade passes each turn through state detectors, an exclusion score and
four sequential gates, and learns threshold adjustments from outcomes without
ever relaxing safety in crisis contexts.`,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	SilenceUsage:      true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		logger, err = config.NewLogger(cfg.Logging)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config (defaults apply when absent)")
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(trajectoryCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
