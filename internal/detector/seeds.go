package detector

// Label names referenced outside the detector package.
const (
	LabelCalm      = "calm"
	LabelMobilized = "mobilized"
	LabelShutdown  = "shutdown"

	CategoryCrisis     = "crisis"
	CategoryConnection = "connection"
)

// #region state-seeds

// DefaultStateSpec covers the three affective/safety states, ordered best to worst.
func DefaultStateSpec() Spec {
	return Spec{
		Name:      "state",
		Aggregate: AggregateConfidence,
		Seeds: []LabelSeeds{
			{Label: LabelCalm, Phrases: []string{
				"calm settled steady",
				"relaxed at ease peaceful",
				"safe grounded okay",
				"things are fine and manageable",
			}},
			{Label: LabelMobilized, Phrases: []string{
				"anxious on edge panicked",
				"heart racing cannot sit still restless",
				"angry frustrated furious",
				"overwhelmed stressed tense wired",
			}},
			{Label: LabelShutdown, Phrases: []string{
				"numb empty hollow",
				"hopeless nothing matters",
				"cannot get out of bed exhausted",
				"shut down frozen disconnected",
			}},
		},
	}
}

// #endregion state-seeds

// #region capacity-seeds

// DefaultCapacitySpec lists the eight capacity dimensions.
func DefaultCapacitySpec() Spec {
	return Spec{
		Name:      "capacity",
		Aggregate: AggregateTopK,
		Seeds: []LabelSeeds{
			{Label: "grounding", Phrases: []string{"breathing slowly feet on floor", "present body steady"}},
			{Label: "clarity", Phrases: []string{"clear thinking understand situation", "see plainly know next step"}},
			{Label: "agency", Phrases: []string{"choose act decide plan", "able handle control"}},
			{Label: "warmth", Phrases: []string{"kind gentle compassion", "care tenderness self kindness"}},
			{Label: "curiosity", Phrases: []string{"curious wonder explore", "interested learn notice"}},
			{Label: "resilience", Phrases: []string{"bounce back recover endure", "strong survived before"}},
			{Label: "reflection", Phrases: []string{"reflect notice pattern", "looking back realize insight"}},
			{Label: "openness", Phrases: []string{"open willing try", "accept new possibility"}},
		},
	}
}

// #endregion capacity-seeds

// #region category-seeds

// DefaultCategorySpec lists topic categories; crisis is the highest-risk category and
// connection is the safe-core category.
func DefaultCategorySpec() Spec {
	return Spec{
		Name:      "category",
		Aggregate: AggregateConfidence,
		Seeds: []LabelSeeds{
			{Label: CategoryCrisis, Phrases: []string{
				"end my life",
				"kill myself suicide",
				"hurt myself self harm",
				"not want alive anymore disappear forever",
			}},
			{Label: "loss", Phrases: []string{"grief died passed away", "lost miss mourning"}},
			{Label: "conflict", Phrases: []string{"argument fight yelling", "partner boss conflict blame"}},
			{Label: "isolation", Phrases: []string{"alone lonely nobody", "isolated no friends"}},
			{Label: "overwhelm", Phrases: []string{"too much pressure deadlines", "drowning work bills"}},
			{Label: CategoryConnection, Phrases: []string{
				"friends support family",
				"people trust talk",
				"therapist helps",
				"connected loved cared",
			}},
		},
	}
}

// #endregion category-seeds
