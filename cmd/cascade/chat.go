package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/adaptive-cascade/internal/cascade"
)

var (
	chatOffline bool
	chatSession string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Run turns interactively from stdin",
	Long: `chat reads one turn per line and prints the cascade decision and response.

  /feedback <score>   rate the previous turn in [-1, 1]
  /trajectory         show the session's satisfaction trajectory
  quit | exit         end the session`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().BoolVar(&chatOffline, "offline", false, "use the local hashing embedder instead of the codec service")
	chatCmd.Flags().StringVar(&chatSession, "session", "", "session id (random when empty)")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx, cfg, logger, chatOffline)
	if err != nil {
		return err
	}
	defer a.Close()

	sess := a.session(chatSession)
	defer func() {
		if err := sess.Close(context.Background()); err != nil {
			logger.Warn("session close", zap.Error(err))
		}
	}()

	out := cmd.OutOrStdout()
	timeout := time.Duration(cfg.Upstream.TimeoutMS) * time.Millisecond
	fmt.Fprintf(out, "cascade ready (session %s). Type a message, or quit.\n", sess.ID)

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "quit" || line == "exit":
			return nil
		case strings.HasPrefix(line, "/feedback"):
			score, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(line, "/feedback")), 64)
			if err != nil || score < -1 || score > 1 {
				fmt.Fprintln(out, "usage: /feedback <score in [-1, 1]>")
				continue
			}
			if err := sess.Feedback(cascade.Feedback{Score: score}); err != nil {
				fmt.Fprintln(out, err)
			}
			continue
		case line == "/trajectory":
			tr := sess.Trajectory()
			fmt.Fprintf(out, "[trajectory] %s delta=%+.2f confidence=%.2f series=%v\n",
				tr.Archetype, tr.QualityDelta, tr.Confidence, formatSeries(sess.Series()))
			continue
		}

		turnCtx, cancel := ctx, context.CancelFunc(func() {})
		if timeout > 0 {
			turnCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		st, err := sess.Turn(turnCtx, line)
		cancel()
		printTurn(out, st)
		if err != nil {
			logger.Warn("turn degraded", zap.String("turn_id", st.TurnID), zap.Error(err))
		}
	}
	return scanner.Err()
}

func printTurn(w io.Writer, st cascade.CascadeState) {
	path := make([]string, len(st.VerdictPath))
	for i, s := range st.VerdictPath {
		path[i] = string(s.Gate) + ":" + string(s.Decision)
	}
	fmt.Fprintf(w, "[turn %d] decision=%s verdict=%s score=%.2f agreement=%.2f category=%s quality=%s\n",
		st.Turn, st.Terminal, st.Safety.Verdict, st.Safety.Score, st.OrganAgreement, st.Category, st.ResponseQuality)
	fmt.Fprintf(w, "[path] %s\n", strings.Join(path, " > "))
	if st.DangerousBlending {
		fmt.Fprintln(w, "[warn] dangerous blending")
	}
	if st.Degraded {
		fmt.Fprintln(w, "[warn] upstream unavailable; contained")
	}
	fmt.Fprintln(w, st.ResponseText)
}

func formatSeries(series []float64) string {
	parts := make([]string, len(series))
	for i, v := range series {
		parts[i] = strconv.FormatFloat(v, 'f', 2, 64)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
