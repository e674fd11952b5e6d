package exclusion

// #region computer
// Computer scores how far a turn sits from safe ground. It holds no state
// beyond its configuration; Compute is a pure function of its input.
type Computer struct {
	config Config
}

// NewComputer creates a Computer with the given configuration.
func NewComputer(config Config) *Computer {
	return &Computer{config: config}
}

// Config returns the computer's configuration.
func (c *Computer) Config() Config { return c.config }

// WithDangerThreshold returns a copy using threshold t for DANGER. The
// threshold can only be lowered; a higher t leaves it unchanged.
func (c *Computer) WithDangerThreshold(t float64) *Computer {
	cfg := c.config
	if t < cfg.DangerThreshold {
		cfg.DangerThreshold = t
	}
	return &Computer{config: cfg}
}

// Compute combines state, category and distance risk into a weighted score
// and derives the verdict.
func (c *Computer) Compute(in Input) Result {
	stateRisk := c.stateRisk(in.StateLabel, in.StateConfidence)
	categoryRisk := c.categoryRisk(in.ActiveCategories)
	distance := c.distanceRisk(in.DistanceFromSafeCore)

	score := clamp01(c.config.StateWeight*stateRisk +
		c.config.CategoryWeight*categoryRisk +
		c.config.DistanceWeight*distance)

	return Result{
		Score: score,
		Components: map[string]float64{
			ComponentStateRisk:    stateRisk,
			ComponentCategoryRisk: categoryRisk,
			ComponentDistance:     distance,
		},
		Verdict: c.verdict(score, in.StateLabel),
	}
}

// #endregion computer

// #region components
func (c *Computer) stateRisk(label string, confidence float64) float64 {
	penalty, ok := c.config.LabelPenalty[label]
	if !ok {
		penalty = c.config.UnknownLabelRisk
	}
	if c.config.FullConfidence > 0 && confidence < c.config.FullConfidence {
		penalty *= clamp01(confidence) / c.config.FullConfidence
	}
	return penalty
}

func (c *Computer) categoryRisk(active []string) float64 {
	var highRisk, safeCore bool
	for _, cat := range active {
		switch cat {
		case c.config.HighRiskCategory:
			highRisk = true
		case c.config.SafeCoreCategory:
			safeCore = true
		}
	}
	switch {
	case highRisk && !safeCore:
		return c.config.HighRiskUnsupported
	case highRisk:
		return c.config.HighRiskWithSafeCore
	default:
		return 0
	}
}

func (c *Computer) distanceRisk(d float64) float64 {
	d = clamp01(d)
	bands := c.config.DistanceBands
	if len(bands) == 0 {
		return d
	}
	for _, b := range bands[:len(bands)-1] {
		if d < b.Upper {
			return b.Risk
		}
	}
	return bands[len(bands)-1].Risk
}

// verdict checks DANGER first: a score at or above the threshold, or the
// danger label at any score.
func (c *Computer) verdict(score float64, label string) Verdict {
	if score >= c.config.DangerThreshold || label == c.config.DangerLabel {
		return VerdictDanger
	}
	if score < c.config.SafeThreshold && label == c.config.SafeLabel {
		return VerdictSafe
	}
	return VerdictCaution
}

// #endregion components

// #region helpers
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// #endregion helpers
