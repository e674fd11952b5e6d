package pattern

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// #region errors
var (
	// ErrCorruptPersistedState marks a snapshot that failed decoding, schema or
	// hyperparameter checks. The store falls back to defaults when it sees one.
	ErrCorruptPersistedState = errors.New("corrupt persisted pattern state")

	// ErrInvariantViolation marks an update that would make a crisis or DANGER
	// context more permissive. Such updates are dropped.
	ErrInvariantViolation = errors.New("monotonic safety invariant violation")

	// ErrNoSnapshot is returned by a Persister that has nothing stored yet.
	ErrNoSnapshot = errors.New("no pattern snapshot")
)

// #endregion errors

// #region keys

// ContextKey addresses one threshold adjustment.
type ContextKey struct {
	Gate     string `json:"gate"`
	Category string `json:"category"`
	Bucket   string `json:"bucket"`
}

func (k ContextKey) String() string {
	return k.Gate + KeySeparator + k.Category + KeySeparator + k.Bucket
}

// ParseContextKey is the inverse of ContextKey.String.
func ParseContextKey(s string) (ContextKey, error) {
	parts := strings.Split(s, KeySeparator)
	if len(parts) != 3 {
		return ContextKey{}, fmt.Errorf("context key %q: want gate|category|bucket", s)
	}
	return ContextKey{Gate: parts[0], Category: parts[1], Bucket: parts[2]}, nil
}

// EffectivenessKey addresses one (category, sub-label) effectiveness entry.
type EffectivenessKey struct {
	Category string `json:"category"`
	SubLabel string `json:"sub_label"`
}

func (k EffectivenessKey) String() string {
	return k.Category + KeySeparator + k.SubLabel
}

// ParseEffectivenessKey is the inverse of EffectivenessKey.String.
func ParseEffectivenessKey(s string) (EffectivenessKey, error) {
	parts := strings.Split(s, KeySeparator)
	if len(parts) != 2 {
		return EffectivenessKey{}, fmt.Errorf("effectiveness key %q: want category|sub_label", s)
	}
	return EffectivenessKey{Category: parts[0], SubLabel: parts[1]}, nil
}

// AnySubLabel addresses every sub-label of a category in the ceiling table.
const AnySubLabel = "*"

// KeySeparator joins the fields of persisted context and effectiveness keys.
// Names used in keys must not contain it.
const KeySeparator = "|"

// Effectiveness accumulates how well a sub-label served a category.
type Effectiveness struct {
	Score float64 `json:"score"`
	Uses  int     `json:"uses"`
}

// #endregion keys

// #region sign
// Sign is the classified direction of an outcome.
type Sign int

const (
	Neutral Sign = iota
	Positive
	Negative
)

func (s Sign) String() string {
	switch s {
	case Positive:
		return "positive"
	case Negative:
		return "negative"
	default:
		return "neutral"
	}
}

// #endregion sign

// #region outcome

// Outcome is what the store learns from after a turn resolves. The caller
// fills the Next* fields once the following turn provides ground truth.
type Outcome struct {
	TurnID   string
	Decision string   // terminal decision of the turn
	Gates    []string // gates whose thresholds took part in the decision
	Danger   bool     // Gate 1 verdict was DANGER
	Crisis   bool     // crisis category was active

	Category   string // primary category, used for threshold and effectiveness keys
	Bucket     string // satisfaction bucket
	StateLabel string
	Dimension  string // dominant or selected capacity dimension
	Capacity   float64

	HasNext        bool
	NextStateLabel string
	NextCapacity   float64

	Coherences        []float64 // per detector, coupling-matrix order
	Feedback          *float64  // explicit user feedback in [-1, 1]
	TrajectoryDelta   float64   // archetype quality delta
	DangerousBlending bool
}

// crisisContext reports whether thresholds touched by o may only tighten.
func (o Outcome) crisisContext(crisisCategory string) bool {
	return o.Danger || o.Crisis || o.Category == crisisCategory
}

// #endregion outcome

// #region stats

// Counters are the lifetime update counters persisted with each snapshot.
type Counters struct {
	Updates   int `json:"updates"`
	Successes int `json:"successes"`
	Failures  int `json:"failures"`
	Neutral   int `json:"neutral"`
	Rejected  int `json:"rejected"`
}

// UpdateStats summarizes one Update call.
type UpdateStats struct {
	TurnID     string  `json:"turn_id"`
	Sign       string  `json:"sign"`
	Rule       string  `json:"rule"`
	Signal     float64 `json:"signal"`
	Changed    int     `json:"changed"`
	Rejected   int     `json:"rejected"`
	Saved      bool    `json:"saved"`
	Version    string  `json:"version,omitempty"`
	Violations []error `json:"-"`
}

// Err joins the invariant violations recorded during the update.
func (s UpdateStats) Err() error {
	return errors.Join(s.Violations...)
}

// #endregion stats

// #region config

// Config holds the pattern memory hyperparameters.
type Config struct {
	LearningRate        float64 `yaml:"learning_rate"`        // eta, positive step
	DecayRate           float64 `yaml:"decay_rate"`           // delta, negative step
	AcceptanceThreshold float64 `yaml:"acceptance_threshold"` // exemplar acceptance, persisted for compatibility checks
	CouplingBaseline    float64 `yaml:"coupling_baseline"`    // fixed diagonal
	CouplingInitial     float64 `yaml:"coupling_initial"`     // off-diagonal start value
	MinAdjustment       float64 `yaml:"min_adjustment"`
	MaxAdjustment       float64 `yaml:"max_adjustment"`
	SaveEvery           int     `yaml:"save_every"`

	CrisisCategory string         `yaml:"crisis_category"`
	LabelRank      map[string]int `yaml:"label_rank"` // higher is better

	FeedbackMin      float64 `yaml:"feedback_min"`       // |feedback| at or below is neutral
	CapacityDeltaMin float64 `yaml:"capacity_delta_min"` // |delta| below falls through
	DefaultStrength  float64 `yaml:"default_strength"`   // strength of the default rule
	RespondDecision  string  `yaml:"respond_decision"`
	ContainDecision  string  `yaml:"contain_decision"`
}

// DefaultConfig returns the default pattern memory configuration.
func DefaultConfig() Config {
	return Config{
		LearningRate:        0.1,
		DecayRate:           0.05,
		AcceptanceThreshold: 0.7,
		CouplingBaseline:    0.1,
		CouplingInitial:     0.5,
		MinAdjustment:       -0.3,
		MaxAdjustment:       0.3,
		SaveEvery:           10,
		CrisisCategory:      "crisis",
		LabelRank:           map[string]int{"shutdown": 0, "mobilized": 1, "calm": 2},
		FeedbackMin:         0.1,
		CapacityDeltaMin:    0.05,
		DefaultStrength:     0.5,
		RespondDecision:     "RESPOND",
		ContainDecision:     "CONTAIN",
	}
}

// #endregion config

// #region snapshot

// SchemaVersion tags every persisted snapshot.
const SchemaVersion = "pattern-memory/v1"

// Hyper is the subset of Config a snapshot must agree with to be loaded.
type Hyper struct {
	LearningRate        float64 `json:"eta"`
	DecayRate           float64 `json:"delta"`
	AcceptanceThreshold float64 `json:"acceptance_threshold"`
	CouplingBaseline    float64 `json:"coupling_baseline"`
	MinAdjustment       float64 `json:"min_adjustment"`
	MaxAdjustment       float64 `json:"max_adjustment"`
}

func (c Config) hyper() Hyper {
	return Hyper{
		LearningRate:        c.LearningRate,
		DecayRate:           c.DecayRate,
		AcceptanceThreshold: c.AcceptanceThreshold,
		CouplingBaseline:    c.CouplingBaseline,
		MinAdjustment:       c.MinAdjustment,
		MaxAdjustment:       c.MaxAdjustment,
	}
}

// Snapshot is the flat persisted record of the store.
type Snapshot struct {
	Schema         string                   `json:"schema"`
	Hyper          Hyper                    `json:"hyper"`
	Detectors      []string                 `json:"detectors"`
	Coupling       [][]float64              `json:"coupling"`
	Thresholds     map[string]float64       `json:"thresholds"`
	Effectiveness  map[string]Effectiveness `json:"effectiveness"`
	Ceilings       map[string]float64       `json:"ceilings"`
	LabelBoost     map[string]float64       `json:"label_boost"`
	DimensionBoost map[string]float64       `json:"dimension_boost"`
	Counters       Counters                 `json:"counters"`
	SavedAt        time.Time                `json:"saved_at"`
}

// VersionInfo describes one stored snapshot version.
type VersionInfo struct {
	VersionID string    `json:"version_id"`
	ParentID  string    `json:"parent_id,omitempty"`
	Updates   int       `json:"updates"`
	CreatedAt time.Time `json:"created_at"`
	Active    bool      `json:"active"`
}

// Persister stores and retrieves snapshots.
type Persister interface {
	SaveSnapshot(snap Snapshot) (string, error)
	LoadSnapshot() (Snapshot, error)
	Close() error
}

// Versioned is a Persister that keeps every saved snapshot.
type Versioned interface {
	Persister
	GetVersion(id string) (Snapshot, error)
}

// #endregion snapshot
