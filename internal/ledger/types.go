package ledger

import "time"

// timeLayout is fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// #region turn-row
// TurnRow is one processed turn as stored in the turns table.
type TurnRow struct {
	TurnID       string   `db:"turn_id" json:"turn_id"`
	SessionID    string   `db:"session_id" json:"session_id"`
	Turn         int      `db:"turn" json:"turn"`
	Verdict      string   `db:"verdict" json:"verdict"`
	Score        float64  `db:"score" json:"score"`
	TerminalGate string   `db:"terminal_gate" json:"terminal_gate"`
	Terminal     string   `db:"terminal" json:"terminal"`
	Path         string   `db:"path" json:"path"` // gate:decision pairs joined by '>'
	Category     string   `db:"category" json:"category"`
	Bucket       string   `db:"bucket" json:"bucket"`
	Agreement    float64  `db:"agreement" json:"agreement"`
	Capacity     *float64 `db:"capacity" json:"capacity,omitempty"` // NULL for degraded turns
	Satisfaction float64  `db:"satisfaction" json:"satisfaction"`
	Dimension    string   `db:"dimension" json:"dimension"`
	Quality      string   `db:"quality" json:"quality"`
	Blending     int      `db:"blending" json:"blending"`
	Degraded     int      `db:"degraded" json:"degraded"`
	CreatedAt    string   `db:"created_at" json:"created_at"`
}

// #endregion turn-row

// #region outcome-row
// OutcomeRow is one applied pattern-memory update.
type OutcomeRow struct {
	ID        string  `db:"id" json:"id"`
	TurnID    string  `db:"turn_id" json:"turn_id"`
	SessionID string  `db:"session_id" json:"session_id"`
	Sign      string  `db:"sign" json:"sign"`
	Rule      string  `db:"rule" json:"rule"`
	Signal    float64 `db:"signal" json:"signal"`
	Changed   int     `db:"changed" json:"changed"`
	Rejected  int     `db:"rejected" json:"rejected"`
	Version   string  `db:"version" json:"version"`
	CreatedAt string  `db:"created_at" json:"created_at"`
}

// #endregion outcome-row

// #region summary
// Summary aggregates the ledger.
type Summary struct {
	Turns      int            `json:"turns"`
	ByTerminal map[string]int `json:"by_terminal"`
	Degraded   int            `json:"degraded"`
	Blending   int            `json:"dangerous_blending"`
	Outcomes   int            `json:"outcomes"`
	BySign     map[string]int `json:"by_sign"`
	Rejected   int            `json:"rejected"`
}

// #endregion summary

func stamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}
