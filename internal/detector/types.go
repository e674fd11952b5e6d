package detector

import "errors"

// ErrNotBootstrapped is returned when a detector classifies before its seed centroids exist.
var ErrNotBootstrapped = errors.New("detector not bootstrapped")

// #region state-vector

// StateVector is one detector's reading of a single turn. It is built fresh per
// turn and never mutated after Detect returns.
type StateVector struct {
	Detector     string             `json:"detector"`
	Dominant     string             `json:"dominant_label"`
	Confidence   float64            `json:"confidence"`   // max probability
	Distribution map[string]float64 `json:"distribution"` // softmax, sums to 1
	Coherence    float64            `json:"coherence"`    // 1 - H/Hmax
	Activations  map[string]float64 `json:"activations"`  // clamped blended similarity per label
	Estimate     float64            `json:"estimate"`     // capacity scalar, or confidence
}

// Active returns labels whose activation reaches threshold, in detector label order.
func (v StateVector) Active(labels []string, threshold float64) []string {
	var out []string
	for _, l := range labels {
		if v.Activations[l] >= threshold {
			out = append(out, l)
		}
	}
	return out
}

// #endregion state-vector

// #region aggregation

// Aggregation selects how Estimate is derived from a detection.
type Aggregation string

const (
	// AggregateConfidence sets Estimate to the max probability.
	AggregateConfidence Aggregation = "confidence"
	// AggregateTopK sets Estimate to the mean of the top-K activations.
	AggregateTopK Aggregation = "top_k"
)

// #endregion aggregation

// #region spec

// LabelSeeds holds the seed phrases for one label.
type LabelSeeds struct {
	Label   string   `yaml:"label"`
	Phrases []string `yaml:"phrases"`
}

// Spec describes one detector: its labels (in order) and how to aggregate.
type Spec struct {
	Name      string       `yaml:"name"`
	Seeds     []LabelSeeds `yaml:"seeds"`
	Aggregate Aggregation  `yaml:"aggregate"`
}

// Labels returns the spec's labels in declaration order.
func (s Spec) Labels() []string {
	out := make([]string, len(s.Seeds))
	for i, ls := range s.Seeds {
		out[i] = ls.Label
	}
	return out
}

// #endregion spec

// #region config

// Config holds the tuning knobs shared by all detectors.
type Config struct {
	Temperature         float64 `yaml:"temperature"`          // softmax temperature
	ExemplarCap         int     `yaml:"exemplar_cap"`         // ring buffer size per label
	MaxLearnedWeight    float64 `yaml:"max_learned_weight"`   // learned share when the ring is full
	AcceptanceThreshold float64 `yaml:"acceptance_threshold"` // min satisfaction for Reinforce
	ActivationThreshold float64 `yaml:"activation_threshold"` // category activation to count as active
	TopK                int     `yaml:"top_k"`                // dimensions aggregated by AggregateTopK
	BootstrapParallel   int     `yaml:"bootstrap_parallel"`   // concurrent seed embeddings

	State    Spec `yaml:"state"`
	Capacity Spec `yaml:"capacity"`
	Category Spec `yaml:"category"`
}

// DefaultConfig returns the default detector configuration with built-in seeds.
func DefaultConfig() Config {
	return Config{
		Temperature:         0.1,
		ExemplarCap:         32,
		MaxLearnedWeight:    0.5,
		AcceptanceThreshold: 0.7,
		ActivationThreshold: 0.3,
		TopK:                3,
		BootstrapParallel:   8,
		State:               DefaultStateSpec(),
		Capacity:            DefaultCapacitySpec(),
		Category:            DefaultCategorySpec(),
	}
}

// #endregion config
