package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/adaptive-cascade/internal/replay"
)

var (
	replayOnline bool
	replayJSON   bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <fixture.json>",
	Short: "Replay a fixture and check expected decisions",
	Args:  cobra.ExactArgs(1),
	RunE:  runReplay,
}

func init() {
	replayCmd.Flags().BoolVar(&replayOnline, "online", false, "embed through the codec service instead of the hashing embedder")
	replayCmd.Flags().BoolVar(&replayJSON, "json", false, "print results as JSON")
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := replay.LoadFixture(args[0])
	if err != nil {
		return err
	}
	cfg.Cascade = f.Config.Apply(cfg.Cascade)

	a, err := buildApp(cmd.Context(), cfg, logger, !replayOnline)
	if err != nil {
		return err
	}
	defer a.Close()

	sess := a.session("")
	results, sum := replay.RunFixture(cmd.Context(), sess, f)
	if err := sess.Close(context.Background()); err != nil {
		logger.Warn("session close", zap.Error(err))
	}

	out := cmd.OutOrStdout()
	if replayJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(struct {
			Results []replay.Result `json:"results"`
			Summary replay.Summary  `json:"summary"`
		}{results, sum}); err != nil {
			return err
		}
	} else {
		printReplay(out, f.Description, results, sum)
	}
	if n := len(sum.Mismatches); n > 0 {
		return fmt.Errorf("replay: %d expectation(s) failed", n)
	}
	return nil
}

func printReplay(w io.Writer, desc string, results []replay.Result, sum replay.Summary) {
	if desc != "" {
		fmt.Fprintf(w, "%s\n\n", desc)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TURN\tGATE\tTERMINAL\tVERDICT\tSCORE\tAGREEMENT\tCATEGORY\tFLAGS")
	for _, r := range results {
		flags := ""
		if r.DangerousBlending {
			flags += "blending "
		}
		if r.Degraded {
			flags += "degraded"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.2f\t%.2f\t%s\t%s\n",
			r.TurnID, r.TerminalGate, r.Terminal, r.Verdict, r.Score, r.Agreement, r.Category, flags)
	}
	tw.Flush()

	fmt.Fprintf(w, "\nturns=%d degraded=%d blending=%d trajectory=%s (%+.2f)\n",
		sum.TotalTurns, sum.Degraded, sum.Blending, sum.Trajectory.Archetype, sum.Trajectory.QualityDelta)
	for _, m := range sum.Mismatches {
		fmt.Fprintf(w, "MISMATCH %s\n", m)
	}
}
