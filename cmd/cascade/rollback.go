package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-cascade/internal/detector"
	"github.com/danielpatrickdp/adaptive-cascade/internal/pattern"
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback <version-id>",
	Short: "Restore an earlier pattern memory version (sqlite backend)",
	Long: `rollback saves an earlier version as the new active one. Crisis threshold
adjustments and effectiveness ceilings keep their current values wherever those
are more conservative.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Storage.PatternBackend != pattern.BackendSQLite {
			return errors.New("rollback: only the sqlite pattern backend keeps versions")
		}
		p, err := pattern.NewSQLitePersister(cfg.Storage.PatternLocation())
		if err != nil {
			return err
		}
		defer p.Close()

		names := detector.NewSet(cfg.Detector, nil, logger).Names()
		store := pattern.NewStore(cfg.Pattern, names, p, logger)
		if err := store.Load(); err != nil && !errors.Is(err, pattern.ErrCorruptPersistedState) {
			return err
		}
		version, err := store.Rollback(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "restored %s as version %s\n", args[0], version)
		return nil
	},
}
