package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var trajectoryCmd = &cobra.Command{
	Use:   "trajectory <score>...",
	Short: "Classify a satisfaction series",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		series, err := parseScores(args)
		if err != nil {
			return err
		}
		r := cfg.Trajectory.Classify(series)
		fmt.Fprintf(cmd.OutOrStdout(), "archetype=%s quality_delta=%+.2f confidence=%.2f\n",
			r.Archetype, r.QualityDelta, r.Confidence)
		return nil
	},
}

// parseScores parses satisfaction scores, each in [0, 1].
func parseScores(args []string) ([]float64, error) {
	out := make([]float64, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("score %q: %w", a, err)
		}
		if v < 0 || v > 1 {
			return nil, fmt.Errorf("score %q: out of range [0, 1]", a)
		}
		out[i] = v
	}
	return out, nil
}
