package pattern

import "math"

// #region classification

// Classification is the verdict of the rule that decided an outcome.
type Classification struct {
	Sign     Sign
	Strength float64 // in [0, 1]
	Rule     string
}

// Rule inspects an outcome and either classifies it (ok = true) or defers to
// the next rule in the chain.
type Rule interface {
	Name() string
	Classify(o Outcome) (Classification, bool)
}

// DefaultRules returns the outcome rules in priority order.
func DefaultRules(c Config) []Rule {
	return []Rule{
		FeedbackRule{Min: c.FeedbackMin},
		LabelImprovementRule{Rank: c.LabelRank},
		CapacityDeltaRule{Min: c.CapacityDeltaMin},
		DefaultRule{
			Strength:       c.DefaultStrength,
			Respond:        c.RespondDecision,
			Contain:        c.ContainDecision,
			CrisisCategory: c.CrisisCategory,
		},
	}
}

// ClassifyOutcome runs rules in order and returns the first classification.
// When no rule applies the outcome is neutral.
func ClassifyOutcome(rules []Rule, o Outcome) Classification {
	for _, r := range rules {
		if c, ok := r.Classify(o); ok {
			return c
		}
	}
	return Classification{Sign: Neutral, Rule: "none"}
}

// #endregion classification

// #region rules

// FeedbackRule uses explicit feedback when present. Feedback too small to
// carry a direction is neutral rather than deferring.
type FeedbackRule struct {
	Min float64
}

func (FeedbackRule) Name() string { return "feedback" }

func (r FeedbackRule) Classify(o Outcome) (Classification, bool) {
	if o.Feedback == nil {
		return Classification{}, false
	}
	f := *o.Feedback
	if math.Abs(f) <= r.Min {
		return Classification{Sign: Neutral, Rule: r.Name()}, true
	}
	return Classification{Sign: signOf(f), Strength: clamp01(math.Abs(f)), Rule: r.Name()}, true
}

// LabelImprovementRule compares state label rank between this turn and the next.
type LabelImprovementRule struct {
	Rank map[string]int
}

func (LabelImprovementRule) Name() string { return "label_improvement" }

func (r LabelImprovementRule) Classify(o Outcome) (Classification, bool) {
	if !o.HasNext {
		return Classification{}, false
	}
	cur, ok1 := r.Rank[o.StateLabel]
	next, ok2 := r.Rank[o.NextStateLabel]
	if !ok1 || !ok2 || cur == next {
		return Classification{}, false
	}
	span := 0
	for _, v := range r.Rank {
		if v > span {
			span = v
		}
	}
	if span == 0 {
		span = 1
	}
	diff := float64(next - cur)
	return Classification{Sign: signOf(diff), Strength: clamp01(math.Abs(diff) / float64(span)), Rule: r.Name()}, true
}

// CapacityDeltaRule uses the change in capacity estimate between turns.
type CapacityDeltaRule struct {
	Min float64
}

func (CapacityDeltaRule) Name() string { return "capacity_delta" }

func (r CapacityDeltaRule) Classify(o Outcome) (Classification, bool) {
	if !o.HasNext {
		return Classification{}, false
	}
	d := o.NextCapacity - o.Capacity
	if math.Abs(d) < r.Min {
		return Classification{}, false
	}
	return Classification{Sign: signOf(d), Strength: clamp01(2 * math.Abs(d)), Rule: r.Name()}, true
}

// DefaultRule credits a completed non-crisis response and an appropriate
// containment. Everything else is neutral.
type DefaultRule struct {
	Strength       float64
	Respond        string
	Contain        string
	CrisisCategory string
}

func (DefaultRule) Name() string { return "default" }

func (r DefaultRule) Classify(o Outcome) (Classification, bool) {
	crisis := o.crisisContext(r.CrisisCategory)
	switch {
	case o.Decision == r.Respond && !crisis:
		return Classification{Sign: Positive, Strength: r.Strength, Rule: r.Name()}, true
	case o.Decision == r.Contain && crisis:
		return Classification{Sign: Positive, Strength: r.Strength, Rule: r.Name()}, true
	default:
		return Classification{Sign: Neutral, Rule: r.Name()}, true
	}
}

// #endregion rules

// #region helpers
func signOf(v float64) Sign {
	switch {
	case v > 0:
		return Positive
	case v < 0:
		return Negative
	default:
		return Neutral
	}
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

// #endregion helpers
