package exclusion

// #region verdict
// Verdict is the categorical outcome of the exclusion landscape.
type Verdict string

const (
	VerdictSafe    Verdict = "SAFE"
	VerdictCaution Verdict = "CAUTION"
	VerdictDanger  Verdict = "DANGER"
)

// #endregion verdict

// #region component
// Component names the parts of the exclusion score.
const (
	ComponentStateRisk    = "state_risk"
	ComponentCategoryRisk = "category_risk"
	ComponentDistance     = "distance"
)

// #endregion component

// #region distance-band
// DistanceBand maps distances below Upper to Risk. Bands are checked in order;
// the last band catches everything.
type DistanceBand struct {
	Upper float64 `yaml:"upper"`
	Risk  float64 `yaml:"risk"`
}

// #endregion distance-band

// #region config
// Config holds the exclusion weights and thresholds.
type Config struct {
	StateWeight    float64 `yaml:"state_weight"`
	CategoryWeight float64 `yaml:"category_weight"`
	DistanceWeight float64 `yaml:"distance_weight"`

	LabelPenalty     map[string]float64 `yaml:"label_penalty"`
	FullConfidence   float64            `yaml:"full_confidence"`    // below this, state risk is scaled down
	UnknownLabelRisk float64            `yaml:"unknown_label_risk"` // penalty for labels missing from LabelPenalty

	HighRiskCategory     string         `yaml:"high_risk_category"`
	SafeCoreCategory     string         `yaml:"safe_core_category"`
	HighRiskUnsupported  float64        `yaml:"high_risk_unsupported"`
	HighRiskWithSafeCore float64        `yaml:"high_risk_with_safe_core"`
	DistanceBands        []DistanceBand `yaml:"distance_bands"`

	DangerThreshold float64 `yaml:"danger_threshold"`
	SafeThreshold   float64 `yaml:"safe_threshold"`
	DangerLabel     string  `yaml:"danger_label"` // forces DANGER regardless of score
	SafeLabel       string  `yaml:"safe_label"`   // required for SAFE
}

// DefaultConfig returns the default exclusion configuration.
func DefaultConfig() Config {
	return Config{
		StateWeight:    0.4,
		CategoryWeight: 0.3,
		DistanceWeight: 0.3,
		LabelPenalty: map[string]float64{
			"calm":      0.1,
			"mobilized": 0.5,
			"shutdown":  0.9,
		},
		FullConfidence:       0.7,
		UnknownLabelRisk:     0.5,
		HighRiskCategory:     "crisis",
		SafeCoreCategory:     "connection",
		HighRiskUnsupported:  0.9,
		HighRiskWithSafeCore: 0.3,
		DistanceBands: []DistanceBand{
			{Upper: 0.25, Risk: 0},
			{Upper: 0.5, Risk: 0.2},
			{Upper: 0.75, Risk: 0.6},
			{Upper: 1, Risk: 0.9},
		},
		DangerThreshold: 0.7,
		SafeThreshold:   0.4,
		DangerLabel:     "shutdown",
		SafeLabel:       "calm",
	}
}

// #endregion config

// #region input
// Input is what Compute needs from a turn's detector readings.
type Input struct {
	StateLabel           string
	StateConfidence      float64
	ActiveCategories     []string
	DistanceFromSafeCore float64
}

// #endregion input

// #region result
// Result is the exclusion score with its components and verdict.
type Result struct {
	Score      float64            `json:"score"`
	Components map[string]float64 `json:"components"`
	Verdict    Verdict            `json:"verdict"`
}

// #endregion result
