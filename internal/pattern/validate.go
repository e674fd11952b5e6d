package pattern

import (
	"fmt"
	"math"
)

// #region validation-types

// Check captures a single validation result.
type Check struct {
	Name  string
	Value float64
	Pass  bool
}

// ValidationResult is the output of Validate.
type ValidationResult struct {
	Passed bool
	Checks []Check
	Reason string
}

// #endregion validation-types

// #region validate

const symmetryTolerance = 1e-9

// Validate checks a snapshot's structural invariants: coupling shape,
// symmetry, bounds and diagonal; threshold bounds; crisis thresholds never
// permissive; effectiveness bounds and ceilings.
func Validate(snap Snapshot, config Config) ValidationResult {
	var checks []Check
	var failReasons []string
	add := func(name string, value float64, pass bool, reason string) {
		checks = append(checks, Check{Name: name, Value: value, Pass: pass})
		if !pass {
			failReasons = append(failReasons, reason)
		}
	}

	// 1. Coupling matrix shape
	n := len(snap.Detectors)
	shapeOK := len(snap.Coupling) == n && n > 0
	for _, row := range snap.Coupling {
		if len(row) != n {
			shapeOK = false
		}
	}
	add("coupling_shape", float64(len(snap.Coupling)), shapeOK,
		fmt.Sprintf("coupling matrix is not %dx%d", n, n))

	if shapeOK {
		var asym, outOfRange, diagErr float64
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				v := snap.Coupling[i][j]
				asym = math.Max(asym, math.Abs(v-snap.Coupling[j][i]))
				if v < 0 {
					outOfRange = math.Max(outOfRange, -v)
				} else if v > 1 {
					outOfRange = math.Max(outOfRange, v-1)
				}
			}
			diagErr = math.Max(diagErr, math.Abs(snap.Coupling[i][i]-config.CouplingBaseline))
		}
		add("coupling_symmetry", asym, asym <= symmetryTolerance,
			fmt.Sprintf("coupling asymmetry %.6f", asym))
		add("coupling_bounds", outOfRange, outOfRange == 0,
			fmt.Sprintf("coupling value outside [0,1] by %.6f", outOfRange))
		add("coupling_diagonal", diagErr, diagErr <= symmetryTolerance,
			fmt.Sprintf("coupling diagonal off baseline by %.6f", diagErr))
	}

	// 2. Threshold bounds and crisis conservativeness
	var boundErr, crisisMax float64
	badKeys := 0
	for k, v := range snap.Thresholds {
		key, err := ParseContextKey(k)
		if err != nil {
			badKeys++
			continue
		}
		if v < config.MinAdjustment {
			boundErr = math.Max(boundErr, config.MinAdjustment-v)
		} else if v > config.MaxAdjustment {
			boundErr = math.Max(boundErr, v-config.MaxAdjustment)
		}
		if key.Category == config.CrisisCategory && v > crisisMax {
			crisisMax = v
		}
	}
	add("threshold_keys", float64(badKeys), badKeys == 0,
		fmt.Sprintf("%d malformed threshold keys", badKeys))
	add("threshold_bounds", boundErr, boundErr == 0,
		fmt.Sprintf("threshold outside [%.2f,%.2f] by %.6f", config.MinAdjustment, config.MaxAdjustment, boundErr))
	add("crisis_thresholds_conservative", crisisMax, crisisMax <= 0,
		fmt.Sprintf("crisis threshold adjustment %.6f is permissive", crisisMax))

	// 3. Effectiveness bounds and ceilings
	var effErr, ceilErr float64
	for k, e := range snap.Effectiveness {
		if e.Score < 0 || e.Score > 1 || e.Uses < 0 {
			effErr = math.Max(effErr, math.Max(-e.Score, e.Score-1))
			if e.Uses < 0 {
				effErr = math.Max(effErr, 1)
			}
		}
		ceil, ok := snap.Ceilings[k]
		if !ok {
			if key, err := ParseEffectivenessKey(k); err == nil {
				ceil, ok = snap.Ceilings[EffectivenessKey{Category: key.Category, SubLabel: AnySubLabel}.String()]
			}
		}
		if ok && e.Score > ceil+symmetryTolerance {
			ceilErr = math.Max(ceilErr, e.Score-ceil)
		}
	}
	add("effectiveness_bounds", effErr, effErr == 0,
		fmt.Sprintf("effectiveness outside [0,1] by %.6f", effErr))
	add("effectiveness_ceilings", ceilErr, ceilErr == 0,
		fmt.Sprintf("effectiveness above ceiling by %.6f", ceilErr))

	reason := "all checks passed"
	if len(failReasons) == 1 {
		reason = fmt.Sprintf("validation failed: %s", failReasons[0])
	} else if len(failReasons) > 1 {
		reason = fmt.Sprintf("validation failed: %d checks: %s", len(failReasons), failReasons[0])
	}
	return ValidationResult{
		Passed: len(failReasons) == 0,
		Checks: checks,
		Reason: reason,
	}
}

// #endregion validate
