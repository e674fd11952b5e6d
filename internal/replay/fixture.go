package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/adaptive-cascade/internal/cascade"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description     string                  `json:"description"`
	Config          FixtureConfig           `json:"config"`
	Interactions    []FixtureInteraction    `json:"interactions"`
	ExpectedResults []FixtureExpectedResult `json:"expected_results"`
}

// FixtureInteraction is one user turn.
type FixtureInteraction struct {
	TurnID       string   `json:"turn_id"`
	Text         string   `json:"text"`
	Satisfaction *float64 `json:"satisfaction,omitempty"`
	Curiosity    float64  `json:"curiosity,omitempty"`
	Caution      float64  `json:"caution,omitempty"`
	Feedback     *float64 `json:"feedback,omitempty"` // attached after the turn
}

// FixtureExpectedResult captures the expected terminal decision per turn.
// Empty fields are not checked.
type FixtureExpectedResult struct {
	TurnID            string `json:"turn_id"`
	Terminal          string `json:"terminal"`
	Verdict           string `json:"verdict,omitempty"`
	DangerousBlending *bool  `json:"dangerous_blending,omitempty"`
}

// FixtureConfig overrides cascade thresholds for a run. Zero values keep
// the caller's configuration.
type FixtureConfig struct {
	CoherenceThreshold float64 `json:"coherence_threshold,omitempty"`
	CapacityThreshold  float64 `json:"capacity_threshold,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	seen := make(map[string]bool, len(f.Interactions))
	for i, in := range f.Interactions {
		if in.TurnID == "" {
			return nil, fmt.Errorf("fixture %s: interaction %d has no turn_id", path, i)
		}
		if seen[in.TurnID] {
			return nil, fmt.Errorf("fixture %s: duplicate turn_id %q", path, in.TurnID)
		}
		seen[in.TurnID] = true
	}
	return &f, nil
}

// ToTurnInput converts a fixture interaction to controller input.
func (fi FixtureInteraction) ToTurnInput() cascade.TurnInput {
	return cascade.TurnInput{
		Text:         fi.Text,
		Satisfaction: fi.Satisfaction,
		Modulation:   cascade.Modulation{Curiosity: fi.Curiosity, Caution: fi.Caution},
	}
}

// Apply overlays the fixture's overrides on c.
func (fc FixtureConfig) Apply(c cascade.Config) cascade.Config {
	if fc.CoherenceThreshold > 0 {
		c.CoherenceThreshold = fc.CoherenceThreshold
	}
	if fc.CapacityThreshold > 0 {
		c.CapacityThreshold = fc.CapacityThreshold
	}
	return c
}

// #endregion fixture-loader
