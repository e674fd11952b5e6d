package pattern

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zoobzio/capitan"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/adaptive-cascade/internal/events"
)

// #region store

// Store is the outcome-gated learning memory: a detector coupling matrix,
// per-context threshold adjustments, per-category effectiveness and label /
// dimension boosts. A single mutex serializes writers.
type Store struct {
	config    Config
	rules     []Rule
	detectors []string
	persister Persister
	log       *zap.Logger

	mu             sync.Mutex
	coupling       [][]float64
	thresholds     map[ContextKey]float64
	effectiveness  map[EffectivenessKey]Effectiveness
	ceilings       map[EffectivenessKey]float64
	labelBoost     map[string]float64
	dimensionBoost map[string]float64
	counters       Counters
	sinceSave      int
}

// NewStore creates a store with default parameters for the given detectors
// (coupling-matrix order). persister may be nil for an in-memory store.
func NewStore(config Config, detectors []string, persister Persister, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		config:    config,
		rules:     DefaultRules(config),
		detectors: append([]string(nil), detectors...),
		persister: persister,
		log:       logger.Named("pattern"),
	}
	s.reset()
	return s
}

// SetRules replaces the outcome rule chain.
func (s *Store) SetRules(rules []Rule) {
	s.mu.Lock()
	s.rules = rules
	s.mu.Unlock()
}

// Persistent reports whether the store has a persister.
func (s *Store) Persistent() bool { return s.persister != nil }

// Config returns the store configuration.
func (s *Store) Config() Config { return s.config }

// reset installs fresh defaults. Callers hold mu or own s exclusively.
func (s *Store) reset() {
	n := len(s.detectors)
	s.coupling = make([][]float64, n)
	for i := range s.coupling {
		s.coupling[i] = make([]float64, n)
		for j := range s.coupling[i] {
			if i == j {
				s.coupling[i][j] = s.config.CouplingBaseline
			} else {
				s.coupling[i][j] = s.config.CouplingInitial
			}
		}
	}
	s.thresholds = make(map[ContextKey]float64)
	s.effectiveness = make(map[EffectivenessKey]Effectiveness)
	s.ceilings = make(map[EffectivenessKey]float64)
	s.labelBoost = make(map[string]float64)
	s.dimensionBoost = make(map[string]float64)
	s.counters = Counters{}
	s.sinceSave = 0
}

// #endregion store

// #region read

// Read returns the threshold adjustment for key; unseen keys read as zero.
func (s *Store) Read(key ContextKey) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.thresholds[key]
}

// Coupling returns a copy of the coupling matrix.
func (s *Store) Coupling() [][]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyMatrix(s.coupling)
}

// CouplingBetween returns the learned coupling between two named detectors,
// or zero when either is unknown.
func (s *Store) CouplingBetween(a, b string) float64 {
	i, j := indexOf(s.detectors, a), indexOf(s.detectors, b)
	if i < 0 || j < 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coupling[i][j]
}

// EffectivenessOf returns the effectiveness entry for (category, subLabel).
func (s *Store) EffectivenessOf(category, subLabel string) Effectiveness {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.effectiveness[EffectivenessKey{Category: category, SubLabel: subLabel}]
}

// DimensionBoost returns the learned boost for a capacity dimension.
func (s *Store) DimensionBoost(dim string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dimensionBoost[dim]
}

// LabelBoost returns the learned confidence boost for a state label.
func (s *Store) LabelBoost(label string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.labelBoost[label]
}

// Counters returns the lifetime counters.
func (s *Store) Counters() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters
}

// #endregion read

// #region update

// Update classifies o and applies it. Invariant violations are dropped and
// reported in the stats; the returned error is only for a failed autosave.
func (s *Store) Update(o Outcome) (UpdateStats, error) {
	s.mu.Lock()
	stats := s.apply(o)
	s.counters.Updates++
	s.sinceSave++
	due := s.persister != nil && s.config.SaveEvery > 0 && s.sinceSave >= s.config.SaveEvery
	s.mu.Unlock()

	ctx := context.Background()
	for _, v := range stats.Violations {
		capitan.Emit(ctx, events.InvariantRejected,
			events.FieldTurnID.Field(o.TurnID),
			events.FieldError.Field(v),
		)
	}
	capitan.Emit(ctx, events.UpdateApplied,
		events.FieldTurnID.Field(o.TurnID),
		events.FieldSign.Field(stats.Sign),
		events.FieldRule.Field(stats.Rule),
		events.FieldChanged.Field(stats.Changed),
		events.FieldRejected.Field(stats.Rejected),
	)
	s.log.Debug("outcome applied",
		zap.String("turn_id", o.TurnID),
		zap.String("sign", stats.Sign),
		zap.String("rule", stats.Rule),
		zap.Float64("signal", stats.Signal),
		zap.Int("changed", stats.Changed),
		zap.Int("rejected", stats.Rejected),
	)

	if due {
		version, err := s.Save()
		if err != nil {
			return stats, fmt.Errorf("autosave: %w", err)
		}
		stats.Saved = true
		stats.Version = version
	}
	return stats, nil
}

func (s *Store) apply(o Outcome) UpdateStats {
	cls := ClassifyOutcome(s.rules, o)
	if o.DangerousBlending {
		s.pinCeilings(o)
		cls = Classification{Sign: Negative, Strength: 1, Rule: "dangerous_blending"}
	}
	stats := UpdateStats{TurnID: o.TurnID, Sign: cls.Sign.String(), Rule: cls.Rule}

	switch cls.Sign {
	case Positive:
		s.counters.Successes++
		signal := clamp01(cls.Strength + o.TrajectoryDelta)
		stats.Signal = signal
		if o.Danger {
			// DANGER-path positives only count.
			return stats
		}
		if signal > 0 {
			s.positive(o, signal, &stats)
		}
	case Negative:
		s.counters.Failures++
		stats.Signal = cls.Strength
		s.negative(o, &stats)
	default:
		s.counters.Neutral++
	}
	return stats
}

func (s *Store) positive(o Outcome, signal float64, stats *UpdateStats) {
	eta := s.config.LearningRate
	grow := func(x, scale float64) float64 { return x + eta*signal*scale*(1-x) }

	if o.StateLabel != "" {
		s.labelBoost[o.StateLabel] = grow(s.labelBoost[o.StateLabel], 1)
		stats.Changed++
	}
	if o.Dimension != "" {
		s.dimensionBoost[o.Dimension] = grow(s.dimensionBoost[o.Dimension], 1)
		key := EffectivenessKey{Category: o.Category, SubLabel: o.Dimension}
		e := s.effectiveness[key]
		e.Score = grow(e.Score, 1)
		e.Uses++
		if ceil, ok := s.ceilingFor(key); ok && e.Score > ceil {
			e.Score = ceil
		}
		s.effectiveness[key] = e
		stats.Changed += 2
	}
	if len(o.Coherences) == len(s.coupling) {
		for i := range s.coupling {
			for j := i + 1; j < len(s.coupling); j++ {
				v := grow(s.coupling[i][j], clamp01(o.Coherences[i])*clamp01(o.Coherences[j]))
				s.coupling[i][j], s.coupling[j][i] = v, v
			}
		}
		stats.Changed++
	}

	crisis := o.crisisContext(s.config.CrisisCategory)
	for _, gate := range o.Gates {
		key := ContextKey{Gate: gate, Category: o.Category, Bucket: o.Bucket}
		cur := s.thresholds[key]
		s.setThreshold(key, cur+eta*signal*(s.config.MaxAdjustment-cur), crisis, stats)
	}
}

func (s *Store) negative(o Outcome, stats *UpdateStats) {
	d := s.config.DecayRate
	decay := func(x float64) float64 { return x - d*x }

	if v, ok := s.labelBoost[o.StateLabel]; ok {
		s.labelBoost[o.StateLabel] = decay(v)
		stats.Changed++
	}
	if o.Dimension != "" {
		if v, ok := s.dimensionBoost[o.Dimension]; ok {
			s.dimensionBoost[o.Dimension] = decay(v)
			stats.Changed++
		}
		key := EffectivenessKey{Category: o.Category, SubLabel: o.Dimension}
		e := s.effectiveness[key]
		e.Score = decay(e.Score)
		e.Uses++
		s.effectiveness[key] = e
		stats.Changed++
	}
	for i := range s.coupling {
		for j := i + 1; j < len(s.coupling); j++ {
			v := decay(s.coupling[i][j])
			s.coupling[i][j], s.coupling[j][i] = v, v
		}
	}
	stats.Changed++

	crisis := o.crisisContext(s.config.CrisisCategory)
	for _, gate := range o.Gates {
		key := ContextKey{Gate: gate, Category: o.Category, Bucket: o.Bucket}
		cur := s.thresholds[key]
		next := decay(cur)
		if crisis {
			next = cur - d*(cur-s.config.MinAdjustment)
		}
		s.setThreshold(key, next, crisis, stats)
	}
}

// setThreshold stores a clamped adjustment, refusing any increase in a
// crisis context.
func (s *Store) setThreshold(key ContextKey, proposed float64, crisis bool, stats *UpdateStats) {
	cur := s.thresholds[key]
	proposed = clamp(proposed, s.config.MinAdjustment, s.config.MaxAdjustment)
	if crisis && proposed > cur {
		err := fmt.Errorf("threshold %s: %.4f -> %.4f: %w", key, cur, proposed, ErrInvariantViolation)
		s.counters.Rejected++
		stats.Rejected++
		stats.Violations = append(stats.Violations, err)
		s.log.Warn("update rejected", zap.String("key", key.String()), zap.Error(err))
		return
	}
	s.thresholds[key] = proposed
	stats.Changed++
}

// pinCeilings freezes every crisis effectiveness entry, plus the entry for
// this turn's dimension, at its current score. The category-wide entry caps
// sub-labels first seen later at zero, their score before the flag.
func (s *Store) pinCeilings(o Outcome) {
	pin := func(key EffectivenessKey) {
		score := s.effectiveness[key].Score
		if ceil, ok := s.ceilings[key]; !ok || score < ceil {
			s.ceilings[key] = score
		}
	}
	for key := range s.effectiveness {
		if key.Category == s.config.CrisisCategory {
			pin(key)
		}
	}
	if o.Dimension != "" {
		pin(EffectivenessKey{Category: s.config.CrisisCategory, SubLabel: o.Dimension})
	}
	s.ceilings[EffectivenessKey{Category: s.config.CrisisCategory, SubLabel: AnySubLabel}] = 0
	s.log.Warn("dangerous blending flagged", zap.String("turn_id", o.TurnID), zap.Int("ceilings", len(s.ceilings)))
}

// ceilingFor returns the ceiling on key: its own, else its category's.
func (s *Store) ceilingFor(key EffectivenessKey) (float64, bool) {
	return lookupCeiling(s.ceilings, key)
}

func lookupCeiling(ceilings map[EffectivenessKey]float64, key EffectivenessKey) (float64, bool) {
	if c, ok := ceilings[key]; ok {
		return c, true
	}
	c, ok := ceilings[EffectivenessKey{Category: key.Category, SubLabel: AnySubLabel}]
	return c, ok
}

// #endregion update

// #region snapshot

// Snapshot returns a deep copy of the store as a flat record.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Schema:         SchemaVersion,
		Hyper:          s.config.hyper(),
		Detectors:      append([]string(nil), s.detectors...),
		Coupling:       copyMatrix(s.coupling),
		Thresholds:     make(map[string]float64, len(s.thresholds)),
		Effectiveness:  make(map[string]Effectiveness, len(s.effectiveness)),
		Ceilings:       make(map[string]float64, len(s.ceilings)),
		LabelBoost:     copyMap(s.labelBoost),
		DimensionBoost: copyMap(s.dimensionBoost),
		Counters:       s.counters,
	}
	for k, v := range s.thresholds {
		snap.Thresholds[k.String()] = v
	}
	for k, v := range s.effectiveness {
		snap.Effectiveness[k.String()] = v
	}
	for k, v := range s.ceilings {
		snap.Ceilings[k.String()] = v
	}
	return snap
}

// Restore replaces the store contents with snap after checking schema,
// hyperparameters, detector layout and bounds. On error the store is unchanged.
func (s *Store) Restore(snap Snapshot) error {
	if snap.Schema != SchemaVersion {
		return fmt.Errorf("%w: schema %q, want %q", ErrCorruptPersistedState, snap.Schema, SchemaVersion)
	}
	if snap.Hyper != s.config.hyper() {
		return fmt.Errorf("%w: hyperparameters %+v do not match %+v", ErrCorruptPersistedState, snap.Hyper, s.config.hyper())
	}
	if !equalStrings(snap.Detectors, s.detectors) {
		return fmt.Errorf("%w: detectors %v, want %v", ErrCorruptPersistedState, snap.Detectors, s.detectors)
	}
	if res := Validate(snap, s.config); !res.Passed {
		return fmt.Errorf("%w: %s", ErrCorruptPersistedState, res.Reason)
	}

	thresholds := make(map[ContextKey]float64, len(snap.Thresholds))
	for k, v := range snap.Thresholds {
		key, err := ParseContextKey(k)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptPersistedState, err)
		}
		thresholds[key] = v
	}
	effectiveness := make(map[EffectivenessKey]Effectiveness, len(snap.Effectiveness))
	for k, v := range snap.Effectiveness {
		key, err := ParseEffectivenessKey(k)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptPersistedState, err)
		}
		effectiveness[key] = v
	}
	ceilings := make(map[EffectivenessKey]float64, len(snap.Ceilings))
	for k, v := range snap.Ceilings {
		key, err := ParseEffectivenessKey(k)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptPersistedState, err)
		}
		ceilings[key] = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.coupling = copyMatrix(snap.Coupling)
	s.thresholds = thresholds
	s.effectiveness = effectiveness
	s.ceilings = ceilings
	s.labelBoost = copyMap(snap.LabelBoost)
	s.dimensionBoost = copyMap(snap.DimensionBoost)
	s.counters = snap.Counters
	s.sinceSave = 0
	return nil
}

// #endregion snapshot

// #region persistence

// Save writes a snapshot through the persister and returns its version ID.
func (s *Store) Save() (string, error) {
	if s.persister == nil {
		return "", errors.New("pattern store has no persister")
	}
	s.mu.Lock()
	snap := s.snapshotLocked()
	s.sinceSave = 0
	s.mu.Unlock()
	snap.SavedAt = time.Now().UTC()

	version, err := s.persister.SaveSnapshot(snap)
	if err != nil {
		return "", fmt.Errorf("save snapshot: %w", err)
	}
	if res := Validate(snap, s.config); !res.Passed {
		s.log.Warn("saved snapshot failed validation", zap.String("version", version), zap.String("reason", res.Reason))
	}
	capitan.Emit(context.Background(), events.SnapshotSaved,
		events.FieldVersion.Field(version),
		events.FieldUpdates.Field(snap.Counters.Updates),
	)
	s.log.Info("snapshot saved", zap.String("version", version), zap.Int("updates", snap.Counters.Updates))
	return version, nil
}

// Load restores the persisted snapshot. A missing snapshot keeps defaults.
// A corrupt or mismatched one is replaced by defaults and reported as
// ErrCorruptPersistedState; the store stays usable either way.
func (s *Store) Load() error {
	if s.persister == nil {
		return nil
	}
	snap, err := s.persister.LoadSnapshot()
	if errors.Is(err, ErrNoSnapshot) {
		s.log.Info("no pattern snapshot; starting from defaults")
		return nil
	}
	if err == nil {
		err = s.Restore(snap)
	}
	if err == nil {
		s.log.Info("pattern snapshot loaded", zap.Int("updates", snap.Counters.Updates))
		return nil
	}
	if !errors.Is(err, ErrCorruptPersistedState) {
		return fmt.Errorf("load snapshot: %w", err)
	}

	s.mu.Lock()
	s.reset()
	s.mu.Unlock()
	s.log.Warn("pattern snapshot unusable; reset to defaults", zap.Error(err))
	capitan.Emit(context.Background(), events.StateReset, events.FieldError.Field(err))
	return err
}

// Rollback restores version id and saves it as a new version. Crisis
// threshold adjustments and effectiveness ceilings keep the tighter of the
// current and restored values, so rolling back never relaxes crisis handling.
func (s *Store) Rollback(id string) (string, error) {
	vp, ok := s.persister.(Versioned)
	if !ok {
		return "", errors.New("rollback: pattern backend keeps no versions")
	}
	target, err := vp.GetVersion(id)
	if err != nil {
		return "", fmt.Errorf("rollback: %w", err)
	}
	merged := s.tightened(target)
	if err := s.Restore(merged); err != nil {
		return "", fmt.Errorf("rollback %s: %w", id, err)
	}
	version, err := s.Save()
	if err != nil {
		return "", fmt.Errorf("rollback %s: %w", id, err)
	}
	s.log.Info("pattern memory rolled back", zap.String("from", id), zap.String("version", version))
	return version, nil
}

// tightened returns target with the current crisis thresholds and ceilings
// wherever they are more conservative.
func (s *Store) tightened(target Snapshot) Snapshot {
	s.mu.Lock()
	cur := s.snapshotLocked()
	s.mu.Unlock()

	out := target
	out.Thresholds = copyMap(target.Thresholds)
	for k, v := range cur.Thresholds {
		key, err := ParseContextKey(k)
		if err != nil || key.Category != s.config.CrisisCategory {
			continue
		}
		if tv, ok := out.Thresholds[k]; !ok || v < tv {
			out.Thresholds[k] = v
		}
	}

	out.Ceilings = copyMap(target.Ceilings)
	for k, v := range cur.Ceilings {
		if tv, ok := out.Ceilings[k]; !ok || v < tv {
			out.Ceilings[k] = v
		}
	}

	ceilings := make(map[EffectivenessKey]float64, len(out.Ceilings))
	for k, v := range out.Ceilings {
		if key, err := ParseEffectivenessKey(k); err == nil {
			ceilings[key] = v
		}
	}
	out.Effectiveness = make(map[string]Effectiveness, len(target.Effectiveness))
	for k, e := range target.Effectiveness {
		if key, err := ParseEffectivenessKey(k); err == nil {
			if ceil, ok := lookupCeiling(ceilings, key); ok && e.Score > ceil {
				e.Score = ceil
			}
		}
		out.Effectiveness[k] = e
	}
	return out
}

// #endregion persistence

// #region helpers
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func copyMatrix(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

func copyMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func indexOf(xs []string, x string) int {
	for i, v := range xs {
		if v == x {
			return i
		}
	}
	return -1
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// #endregion helpers
