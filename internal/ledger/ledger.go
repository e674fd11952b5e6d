package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/adaptive-cascade/internal/cascade"
	"github.com/danielpatrickdp/adaptive-cascade/internal/pattern"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

const schema = `
CREATE TABLE IF NOT EXISTS turns (
	turn_id       TEXT PRIMARY KEY,
	session_id    TEXT NOT NULL,
	turn          INTEGER NOT NULL,
	verdict       TEXT NOT NULL,
	score         DOUBLE PRECISION NOT NULL,
	terminal_gate TEXT NOT NULL,
	terminal      TEXT NOT NULL,
	path          TEXT NOT NULL,
	category      TEXT NOT NULL,
	bucket        TEXT NOT NULL,
	agreement     DOUBLE PRECISION NOT NULL,
	capacity      DOUBLE PRECISION,
	satisfaction  DOUBLE PRECISION NOT NULL,
	dimension     TEXT NOT NULL,
	quality       TEXT NOT NULL,
	blending      INTEGER NOT NULL,
	degraded      INTEGER NOT NULL,
	created_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, created_at);
CREATE TABLE IF NOT EXISTS outcomes (
	id         TEXT PRIMARY KEY,
	turn_id    TEXT NOT NULL,
	session_id TEXT NOT NULL,
	sign       TEXT NOT NULL,
	rule       TEXT NOT NULL,
	signal     DOUBLE PRECISION NOT NULL,
	changed    INTEGER NOT NULL,
	rejected   INTEGER NOT NULL,
	version    TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_outcomes_turn ON outcomes(turn_id);
`

// #region ledger

// Ledger is the append-only audit trail of turns and pattern updates. It
// implements cascade.Recorder.
type Ledger struct {
	db  *sqlx.DB
	log *zap.Logger
}

var _ cascade.Recorder = (*Ledger)(nil)

// Open connects to dsn and ensures the schema. postgres:// and postgresql://
// DSNs use lib/pq; anything else is a SQLite path.
func Open(dsn string, logger *zap.Logger) (*Ledger, error) {
	driver := "sqlite"
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver = "postgres"
	}
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	l, err := New(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

// New wraps an open database and ensures the schema.
func New(db *sqlx.DB, logger *zap.Logger) (*Ledger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("migrate ledger: %w", err)
		}
	}
	return &Ledger{db: db, log: logger.Named("ledger")}, nil
}

// Close closes the database.
func (l *Ledger) Close() error { return l.db.Close() }

// DB exposes the underlying handle.
func (l *Ledger) DB() *sqlx.DB { return l.db }

// #endregion ledger

// #region record

// RecordTurn appends one processed turn.
func (l *Ledger) RecordTurn(ctx context.Context, sessionID string, st cascade.CascadeState) error {
	row := TurnRow{
		TurnID:       st.TurnID,
		SessionID:    sessionID,
		Turn:         st.Turn,
		Verdict:      string(st.Safety.Verdict),
		Score:        st.Safety.Score,
		TerminalGate: string(st.TerminalGate()),
		Terminal:     string(st.Terminal),
		Path:         path(st.VerdictPath),
		Category:     st.Category,
		Bucket:       st.Bucket,
		Agreement:    st.OrganAgreement,
		Satisfaction: st.Satisfaction,
		Dimension:    st.Dimension,
		Quality:      string(st.ResponseQuality),
		Blending:     boolInt(st.DangerousBlending),
		Degraded:     boolInt(st.Degraded),
		CreatedAt:    stamp(st.CreatedAt),
	}
	if st.Capacity != nil {
		v := st.Capacity.Estimate
		row.Capacity = &v
	}
	_, err := l.db.NamedExecContext(ctx, `INSERT INTO turns (
		turn_id, session_id, turn, verdict, score, terminal_gate, terminal, path, category, bucket,
		agreement, capacity, satisfaction, dimension, quality, blending, degraded, created_at
	) VALUES (
		:turn_id, :session_id, :turn, :verdict, :score, :terminal_gate, :terminal, :path, :category, :bucket,
		:agreement, :capacity, :satisfaction, :dimension, :quality, :blending, :degraded, :created_at
	)`, row)
	if err != nil {
		return fmt.Errorf("record turn %s: %w", st.TurnID, err)
	}
	return nil
}

// RecordOutcome appends the stats of one pattern-memory update.
func (l *Ledger) RecordOutcome(ctx context.Context, sessionID string, st cascade.CascadeState, stats pattern.UpdateStats) error {
	row := OutcomeRow{
		ID:        uuid.New().String(),
		TurnID:    st.TurnID,
		SessionID: sessionID,
		Sign:      stats.Sign,
		Rule:      stats.Rule,
		Signal:    stats.Signal,
		Changed:   stats.Changed,
		Rejected:  stats.Rejected,
		Version:   stats.Version,
		CreatedAt: stamp(time.Time{}),
	}
	_, err := l.db.NamedExecContext(ctx, `INSERT INTO outcomes (
		id, turn_id, session_id, sign, rule, signal, changed, rejected, version, created_at
	) VALUES (
		:id, :turn_id, :session_id, :sign, :rule, :signal, :changed, :rejected, :version, :created_at
	)`, row)
	if err != nil {
		return fmt.Errorf("record outcome %s: %w", st.TurnID, err)
	}
	if stats.Rejected > 0 {
		l.log.Warn("outcome had rejected updates", zap.String("turn_id", st.TurnID), zap.Int("rejected", stats.Rejected))
	}
	return nil
}

// #endregion record

// #region query

// Turns returns the turns of a session in order. An empty sessionID returns
// the most recent turns across sessions. limit <= 0 means no limit.
func (l *Ledger) Turns(ctx context.Context, sessionID string, limit int) ([]TurnRow, error) {
	q := `SELECT * FROM turns`
	var args []any
	if sessionID != "" {
		q += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	q += ` ORDER BY created_at, turn`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	var rows []TurnRow
	if err := l.db.SelectContext(ctx, &rows, l.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	return rows, nil
}

// Outcomes returns the updates recorded for a turn.
func (l *Ledger) Outcomes(ctx context.Context, turnID string) ([]OutcomeRow, error) {
	var rows []OutcomeRow
	q := l.db.Rebind(`SELECT * FROM outcomes WHERE turn_id = ? ORDER BY created_at`)
	if err := l.db.SelectContext(ctx, &rows, q, turnID); err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	return rows, nil
}

// Summarize aggregates the whole ledger.
func (l *Ledger) Summarize(ctx context.Context) (Summary, error) {
	s := Summary{ByTerminal: map[string]int{}, BySign: map[string]int{}}

	var terminals []struct {
		Terminal string `db:"terminal"`
		N        int    `db:"n"`
	}
	if err := l.db.SelectContext(ctx, &terminals, `SELECT terminal, COUNT(*) AS n FROM turns GROUP BY terminal`); err != nil {
		return s, fmt.Errorf("summarize turns: %w", err)
	}
	for _, t := range terminals {
		s.ByTerminal[t.Terminal] = t.N
		s.Turns += t.N
	}
	if err := l.db.GetContext(ctx, &s.Degraded, `SELECT COUNT(*) FROM turns WHERE degraded = 1`); err != nil {
		return s, fmt.Errorf("summarize degraded: %w", err)
	}
	if err := l.db.GetContext(ctx, &s.Blending, `SELECT COUNT(*) FROM turns WHERE blending = 1`); err != nil {
		return s, fmt.Errorf("summarize blending: %w", err)
	}

	var signs []struct {
		Sign     string `db:"sign"`
		N        int    `db:"n"`
		Rejected int    `db:"rejected"`
	}
	if err := l.db.SelectContext(ctx, &signs, `SELECT sign, COUNT(*) AS n, COALESCE(SUM(rejected), 0) AS rejected FROM outcomes GROUP BY sign`); err != nil {
		return s, fmt.Errorf("summarize outcomes: %w", err)
	}
	for _, sg := range signs {
		s.BySign[sg.Sign] = sg.N
		s.Outcomes += sg.N
		s.Rejected += sg.Rejected
	}
	return s, nil
}

// #endregion query

// #region helpers
func path(steps []cascade.Step) string {
	parts := make([]string, len(steps))
	for i, s := range steps {
		parts[i] = string(s.Gate) + ":" + string(s.Decision)
	}
	return strings.Join(parts, ">")
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// #endregion helpers
