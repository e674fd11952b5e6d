package cascade

import (
	"time"

	"github.com/danielpatrickdp/adaptive-cascade/internal/detector"
	"github.com/danielpatrickdp/adaptive-cascade/internal/exclusion"
)

// #region gate-name
// GateName identifies a stage of the cascade.
type GateName string

const (
	GateSafety    GateName = "GATE1_SAFETY"
	GateCoherence GateName = "GATE2_COHERENCE"
	GateCapacity  GateName = "GATE3_CAPACITY"
	GateResponse  GateName = "GATE4_RESPONSE"
	GateKnowledge GateName = "KNOWLEDGE"
)

// #endregion gate-name

// #region decision
// Decision is the outcome of a single gate.
type Decision string

const (
	DecisionProceed Decision = "PROCEED"
	DecisionContain Decision = "CONTAIN"
	DecisionClarify Decision = "CLARIFY"
	DecisionGround  Decision = "GROUND"
	DecisionRespond Decision = "RESPOND"
	DecisionBypass  Decision = "BYPASS"
)

// #endregion decision

// #region quality
// Quality tags the response of a turn.
type Quality string

const (
	QualityHigh     Quality = "HIGH"
	QualityMedium   Quality = "MEDIUM"
	QualityLow      Quality = "LOW"
	QualityFallback Quality = "FALLBACK"
)

// #endregion quality

// #region step
// Step is one entry of a turn's verdict path.
type Step struct {
	Gate     GateName `json:"gate"`
	Decision Decision `json:"decision"`
}

// #endregion step

// #region thresholds
// Thresholds records the effective thresholds used for a turn.
type Thresholds struct {
	Danger    float64 `json:"danger"`
	Coherence float64 `json:"coherence"`
	Capacity  float64 `json:"capacity"`
	Delta     float64 `json:"modulation_delta"`
}

// #endregion thresholds

// #region cascade-state

// CascadeState is the per-turn decision record. It is built once by the
// controller and treated as read-only afterwards.
type CascadeState struct {
	TurnID      string           `json:"turn_id"`
	Turn        int              `json:"turn"`
	Text        string           `json:"text"`
	VerdictPath []Step           `json:"verdict_path"`
	Safety      exclusion.Result `json:"safety"`

	OrganAgreement float64               `json:"organ_agreement"`
	State          detector.StateVector  `json:"state"`
	Capacity       *detector.StateVector `json:"capacity,omitempty"`
	CategoryVector detector.StateVector  `json:"category_vector"`
	Categories     []string              `json:"categories"`
	Category       string                `json:"category"`
	Satisfaction   float64               `json:"satisfaction"`
	Bucket         string                `json:"bucket"`
	Dimension      string                `json:"dimension,omitempty"`
	Knowledge      string                `json:"knowledge_source,omitempty"`

	ResponseText      string     `json:"response_text"`
	ResponseQuality   Quality    `json:"response_quality"`
	Terminal          Decision   `json:"terminal"`
	DangerousBlending bool       `json:"dangerous_blending"`
	Degraded          bool       `json:"degraded"`
	Thresholds        Thresholds `json:"thresholds"`
	CreatedAt         time.Time  `json:"created_at"`

	embedding []float32
}

// TerminalGate returns the gate that ended the turn.
func (s CascadeState) TerminalGate() GateName {
	if len(s.VerdictPath) == 0 {
		return ""
	}
	return s.VerdictPath[len(s.VerdictPath)-1].Gate
}

// Visited reports whether the turn reached gate g.
func (s CascadeState) Visited(g GateName) bool {
	for _, step := range s.VerdictPath {
		if step.Gate == g {
			return true
		}
	}
	return false
}

// Halted reports whether the turn stopped before response generation.
func (s CascadeState) Halted() bool {
	return s.Terminal != DecisionRespond
}

// Crisis reports whether the crisis category was active.
func (s CascadeState) Crisis() bool {
	for _, c := range s.Categories {
		if c == detector.CategoryCrisis {
			return true
		}
	}
	return false
}

// #endregion cascade-state

// #region turn-input

// TurnInput carries a turn's text with optional explicit signals.
type TurnInput struct {
	Text         string
	Satisfaction *float64 // overrides the estimate when set
	Modulation   Modulation
}

// Feedback is explicit user feedback on a completed turn.
type Feedback struct {
	Score float64 // in [-1, 1]
}

// #endregion turn-input

// #region config

// Config holds gate thresholds and response weights.
type Config struct {
	CoherenceThreshold float64 `yaml:"coherence_threshold"` // Gate 2 base
	CapacityThreshold  float64 `yaml:"capacity_threshold"`  // Gate 3 base

	BlendingSatisfaction float64 `yaml:"blending_satisfaction"`
	BlendingAgreement    float64 `yaml:"blending_agreement"`

	SubstantiveThreshold float64 `yaml:"substantive_threshold"` // knowledge hit similarity that bypasses Gates 2-3
	SearchK              int     `yaml:"search_k"`

	RerankWeight     float64 `yaml:"rerank_weight"`      // effectiveness weight in Gate 4, times capacity-category coupling
	BoostWeight      float64 `yaml:"boost_weight"`       // dimension boost weight in Gate 4
	LabelBoostWeight float64 `yaml:"label_boost_weight"` // state label boost added to the tier confidence

	HighTier   float64 `yaml:"high_tier"`
	MediumTier float64 `yaml:"medium_tier"`

	BucketLow  float64 `yaml:"bucket_low"`
	BucketHigh float64 `yaml:"bucket_high"`

	DefaultCategory string `yaml:"default_category"`
}

// DefaultConfig returns the default cascade configuration.
func DefaultConfig() Config {
	return Config{
		CoherenceThreshold:   0.5,
		CapacityThreshold:    0.3,
		BlendingSatisfaction: 0.7,
		BlendingAgreement:    0.6,
		SubstantiveThreshold: 0.75,
		SearchK:              3,
		RerankWeight:         0.6,
		BoostWeight:          0.1,
		LabelBoostWeight:     0.1,
		HighTier:             0.75,
		MediumTier:           0.5,
		BucketLow:            0.4,
		BucketHigh:           0.7,
		DefaultCategory:      "general",
	}
}

// #endregion config
