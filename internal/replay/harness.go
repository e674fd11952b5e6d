package replay

import (
	"context"
	"fmt"

	"github.com/danielpatrickdp/adaptive-cascade/internal/cascade"
	"github.com/danielpatrickdp/adaptive-cascade/internal/trajectory"
)

// #region types

// Result captures one replayed turn.
type Result struct {
	TurnID            string  `json:"turn_id"`
	Terminal          string  `json:"terminal"`
	TerminalGate      string  `json:"terminal_gate"`
	Verdict           string  `json:"verdict"`
	Score             float64 `json:"score"`
	Agreement         float64 `json:"agreement"`
	Category          string  `json:"category"`
	DangerousBlending bool    `json:"dangerous_blending"`
	Degraded          bool    `json:"degraded"`
	Response          string  `json:"response"`
	Err               string  `json:"error,omitempty"`
}

// Mismatch is an expected result that did not hold.
type Mismatch struct {
	TurnID string `json:"turn_id"`
	Field  string `json:"field"`
	Want   string `json:"want"`
	Got    string `json:"got"`
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s: %s want %s, got %s", m.TurnID, m.Field, m.Want, m.Got)
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	TotalTurns int               `json:"total_turns"`
	ByTerminal map[string]int    `json:"by_terminal"`
	Degraded   int               `json:"degraded"`
	Blending   int               `json:"dangerous_blending"`
	Trajectory trajectory.Result `json:"trajectory"`
	Mismatches []Mismatch        `json:"mismatches,omitempty"`
}

// #endregion types

// #region replay

// Replay runs every interaction through session in order. Degraded turns are
// recorded with their error and the run continues.
func Replay(ctx context.Context, session *cascade.Session, interactions []FixtureInteraction) []Result {
	results := make([]Result, 0, len(interactions))
	for _, in := range interactions {
		st, err := session.TurnWith(ctx, in.ToTurnInput())
		r := Result{
			TurnID:            in.TurnID,
			Terminal:          string(st.Terminal),
			TerminalGate:      string(st.TerminalGate()),
			Verdict:           string(st.Safety.Verdict),
			Score:             st.Safety.Score,
			Agreement:         st.OrganAgreement,
			Category:          st.Category,
			DangerousBlending: st.DangerousBlending,
			Degraded:          st.Degraded,
			Response:          st.ResponseText,
		}
		if err != nil {
			r.Err = err.Error()
		} else if in.Feedback != nil {
			if ferr := session.Feedback(cascade.Feedback{Score: *in.Feedback}); ferr != nil {
				r.Err = ferr.Error()
			}
		}
		results = append(results, r)
	}
	return results
}

// Check compares results against expectations by turn ID.
func Check(results []Result, expected []FixtureExpectedResult) []Mismatch {
	byID := make(map[string]Result, len(results))
	for _, r := range results {
		byID[r.TurnID] = r
	}
	var out []Mismatch
	for _, e := range expected {
		r, ok := byID[e.TurnID]
		if !ok {
			out = append(out, Mismatch{TurnID: e.TurnID, Field: "turn", Want: "present", Got: "missing"})
			continue
		}
		if e.Terminal != "" && e.Terminal != r.Terminal {
			out = append(out, Mismatch{TurnID: e.TurnID, Field: "terminal", Want: e.Terminal, Got: r.Terminal})
		}
		if e.Verdict != "" && e.Verdict != r.Verdict {
			out = append(out, Mismatch{TurnID: e.TurnID, Field: "verdict", Want: e.Verdict, Got: r.Verdict})
		}
		if e.DangerousBlending != nil && *e.DangerousBlending != r.DangerousBlending {
			out = append(out, Mismatch{
				TurnID: e.TurnID, Field: "dangerous_blending",
				Want: fmt.Sprint(*e.DangerousBlending), Got: fmt.Sprint(r.DangerousBlending),
			})
		}
	}
	return out
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []Result, session *cascade.Session) Summary {
	s := Summary{TotalTurns: len(results), ByTerminal: map[string]int{}}
	for _, r := range results {
		s.ByTerminal[r.Terminal]++
		if r.Degraded {
			s.Degraded++
		}
		if r.DangerousBlending {
			s.Blending++
		}
	}
	if session != nil {
		s.Trajectory = session.Trajectory()
	}
	return s
}

// RunFixture replays f on session and checks its expectations.
func RunFixture(ctx context.Context, session *cascade.Session, f *Fixture) ([]Result, Summary) {
	results := Replay(ctx, session, f.Interactions)
	sum := Summarize(results, session)
	sum.Mismatches = Check(results, f.ExpectedResults)
	return results, sum
}

// #endregion replay
