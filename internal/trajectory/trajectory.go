package trajectory

import "math"

// #region archetype
// Archetype is the shape of a short satisfaction history.
type Archetype string

const (
	Crisis      Archetype = "CRISIS"
	Concrescent Archetype = "CONCRESCENT"
	Restorative Archetype = "RESTORATIVE"
	Pull        Archetype = "PULL"
	Stable      Archetype = "STABLE"
)

// #endregion archetype

// #region config
// Config holds the classification thresholds and per-archetype quality deltas.
type Config struct {
	MinSamples   int                   `yaml:"min_samples"`
	Window       int                   `yaml:"window"`
	Step         float64               `yaml:"step"`  // diff magnitude for a directional move
	Swing        float64               `yaml:"swing"` // diff magnitude that counts as a pull
	QualityDelta map[Archetype]float64 `yaml:"quality_delta"`
}

// DefaultConfig returns the default trajectory configuration.
func DefaultConfig() Config {
	return Config{
		MinSamples: 3,
		Window:     6,
		Step:       0.05,
		Swing:      0.1,
		QualityDelta: map[Archetype]float64{
			Crisis:      -0.20,
			Concrescent: 0.10,
			Restorative: 0.15,
			Pull:        -0.05,
			Stable:      0,
		},
	}
}

// #endregion config

// #region result
// Result is a classified trajectory.
type Result struct {
	Archetype    Archetype `json:"archetype"`
	QualityDelta float64   `json:"quality_delta"`
	Confidence   float64   `json:"confidence"`
}

// #endregion result

// #region classify

// eps absorbs float error in diffs such as 0.3-0.4.
const eps = 1e-9

// Classify classifies a satisfaction series with the default configuration.
func Classify(series []float64) Result {
	return DefaultConfig().Classify(series)
}

// Classify assigns the first matching archetype in order CRISIS, CONCRESCENT,
// RESTORATIVE, PULL, STABLE. Series shorter than MinSamples are STABLE with
// zero confidence.
func (c Config) Classify(series []float64) Result {
	if len(series) < c.MinSamples || len(series) < 2 {
		return Result{Archetype: Stable, QualityDelta: c.QualityDelta[Stable]}
	}
	diffs := make([]float64, len(series)-1)
	for i := range diffs {
		diffs[i] = series[i+1] - series[i]
	}

	falling, rising := 0, 0
	maxSwing := 0.0
	for _, d := range diffs {
		if d <= -c.Step+eps {
			falling++
		}
		if d >= c.Step-eps {
			rising++
		}
		maxSwing = math.Max(maxSwing, math.Abs(d))
	}
	n := len(diffs)
	first, last := diffs[0], diffs[n-1]

	var a Archetype
	var conf float64
	switch {
	case falling == n:
		a, conf = Crisis, 1
	case rising == n:
		a, conf = Concrescent, 1
	case first <= -c.Step+eps && last >= c.Step-eps && series[len(series)-1] > series[0]:
		a = Restorative
		conf = clamp01(float64(falling+rising) / float64(n))
	case maxSwing > c.Swing+eps:
		a = Pull
		conf = clamp01(maxSwing / (2 * c.Swing))
	default:
		a = Stable
		conf = clamp01(1 - maxSwing/c.Swing)
	}
	return Result{Archetype: a, QualityDelta: c.QualityDelta[a], Confidence: conf * sampleWeight(len(series), c.Window)}
}

// sampleWeight scales confidence up to 1 as the series fills the window.
func sampleWeight(n, window int) float64 {
	if window <= 0 || n >= window {
		return 1
	}
	return float64(n) / float64(window)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// #endregion classify
