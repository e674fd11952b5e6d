package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-cascade/internal/detector"
	"github.com/danielpatrickdp/adaptive-cascade/internal/ledger"
	"github.com/danielpatrickdp/adaptive-cascade/internal/pattern"
)

var (
	inspectJSON     bool
	inspectVersions int
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show learned pattern memory, its versions and the turn ledger",
	Args:  cobra.NoArgs,
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "print the raw snapshot as JSON")
	inspectCmd.Flags().IntVar(&inspectVersions, "versions", 5, "number of snapshot versions to list (sqlite backend)")
}

type inspection struct {
	Snapshot   pattern.Snapshot         `json:"snapshot"`
	Validation pattern.ValidationResult `json:"validation"`
	Versions   []pattern.VersionInfo    `json:"versions,omitempty"`
	Ledger     *ledger.Summary          `json:"ledger,omitempty"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	persister, err := pattern.OpenPersister(cfg.Storage.PatternBackend, cfg.Storage.PatternLocation())
	if err != nil {
		return err
	}
	if persister != nil {
		defer persister.Close()
	}

	names := detector.NewSet(cfg.Detector, nil, logger).Names()
	store := pattern.NewStore(cfg.Pattern, names, persister, logger)
	if err := store.Load(); err != nil {
		return err
	}

	var in inspection
	in.Snapshot = store.Snapshot()
	in.Validation = pattern.Validate(in.Snapshot, cfg.Pattern)
	if sp, ok := persister.(*pattern.SQLitePersister); ok && inspectVersions > 0 {
		if in.Versions, err = sp.ListVersions(inspectVersions); err != nil {
			return err
		}
	}
	if cfg.Storage.LedgerDSN != "" {
		l, err := ledger.Open(cfg.Storage.LedgerDSN, logger)
		if err != nil {
			return err
		}
		defer l.Close()
		sum, err := l.Summarize(cmd.Context())
		if err != nil {
			return err
		}
		in.Ledger = &sum
	}

	out := cmd.OutOrStdout()
	if inspectJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(in)
	}
	printInspection(out, in)
	return nil
}

func printInspection(w io.Writer, in inspection) {
	snap := in.Snapshot
	c := snap.Counters
	fmt.Fprintf(w, "updates=%d successes=%d failures=%d neutral=%d rejected=%d\n",
		c.Updates, c.Successes, c.Failures, c.Neutral, c.Rejected)
	if in.Validation.Passed {
		fmt.Fprintln(w, "validation: ok")
	} else {
		fmt.Fprintf(w, "validation: FAILED (%s)\n", in.Validation.Reason)
	}

	fmt.Fprintln(w, "\ncoupling:")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprint(tw, "\t")
	for _, n := range snap.Detectors {
		fmt.Fprintf(tw, "%s\t", n)
	}
	fmt.Fprintln(tw)
	for i, row := range snap.Coupling {
		fmt.Fprintf(tw, "%s\t", snap.Detectors[i])
		for _, v := range row {
			fmt.Fprintf(tw, "%.3f\t", v)
		}
		fmt.Fprintln(tw)
	}
	tw.Flush()

	fmt.Fprintln(w, "\nthreshold adjustments:")
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tADJ\tCEILING")
	for _, k := range sortedKeys(snap.Thresholds) {
		ceiling := "-"
		if v, ok := snap.Ceilings[k]; ok {
			ceiling = fmt.Sprintf("%.3f", v)
		}
		fmt.Fprintf(tw, "%s\t%+.3f\t%s\n", k, snap.Thresholds[k], ceiling)
	}
	tw.Flush()

	if len(snap.Effectiveness) > 0 {
		fmt.Fprintln(w, "\neffectiveness:")
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tSCORE\tUSES")
		keys := make([]string, 0, len(snap.Effectiveness))
		for k := range snap.Effectiveness {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			e := snap.Effectiveness[k]
			fmt.Fprintf(tw, "%s\t%.3f\t%d\n", k, e.Score, e.Uses)
		}
		tw.Flush()
	}

	if len(in.Versions) > 0 {
		fmt.Fprintln(w, "\nversions:")
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "VERSION\tPARENT\tUPDATES\tCREATED\tACTIVE")
		for _, v := range in.Versions {
			active := ""
			if v.Active {
				active = "*"
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", v.VersionID, v.ParentID, v.Updates, v.CreatedAt.Format("2006-01-02 15:04:05"), active)
		}
		tw.Flush()
	}

	if l := in.Ledger; l != nil {
		fmt.Fprintf(w, "\nledger: turns=%d degraded=%d blending=%d outcomes=%d rejected=%d\n",
			l.Turns, l.Degraded, l.Blending, l.Outcomes, l.Rejected)
		for _, k := range sortedIntKeys(l.ByTerminal) {
			fmt.Fprintf(w, "  %s=%d\n", k, l.ByTerminal[k])
		}
	}
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedIntKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
