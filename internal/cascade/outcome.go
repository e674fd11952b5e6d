package cascade

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/adaptive-cascade/internal/exclusion"
	"github.com/danielpatrickdp/adaptive-cascade/internal/pattern"
)

// ErrNoPatternStore is returned when outcomes are recorded on a controller
// built without a pattern store.
var ErrNoPatternStore = errors.New("no pattern store configured")

// SkippedSign marks stats for a turn that was not learned from.
const SkippedSign = "skipped"

// #region recorder

// Recorder receives every processed turn and every applied outcome. The
// ledger package implements it.
type Recorder interface {
	RecordTurn(ctx context.Context, sessionID string, st CascadeState) error
	RecordOutcome(ctx context.Context, sessionID string, st CascadeState, stats pattern.UpdateStats) error
}

// #endregion recorder

// #region outcome

// Resolution is a completed turn together with what happened after it.
type Resolution struct {
	State           CascadeState
	Next            *CascadeState // following turn, nil if the session ended
	Feedback        *Feedback
	TrajectoryDelta float64
}

// RecordOutcome feeds a completed turn back into pattern memory. Degraded
// turns are skipped, since nothing was classified.
func (c *Controller) RecordOutcome(st CascadeState, fb *Feedback) (pattern.UpdateStats, error) {
	return c.Resolve(Resolution{State: st, Feedback: fb})
}

// Resolve is RecordOutcome with next-turn ground truth and trajectory.
func (c *Controller) Resolve(r Resolution) (pattern.UpdateStats, error) {
	if r.State.Degraded {
		return pattern.UpdateStats{TurnID: r.State.TurnID, Sign: SkippedSign}, nil
	}
	if c.store == nil {
		return pattern.UpdateStats{}, ErrNoPatternStore
	}
	stats, err := c.store.Update(c.outcome(r))
	if err != nil {
		return stats, fmt.Errorf("record outcome %s: %w", r.State.TurnID, err)
	}
	return stats, nil
}

func (c *Controller) outcome(r Resolution) pattern.Outcome {
	st := r.State
	o := pattern.Outcome{
		TurnID:            st.TurnID,
		Decision:          string(st.Terminal),
		Danger:            st.Safety.Verdict == exclusion.VerdictDanger,
		Crisis:            st.Crisis(),
		Category:          st.Category,
		Bucket:            st.Bucket,
		StateLabel:        st.State.Dominant,
		Dimension:         st.Dimension,
		TrajectoryDelta:   r.TrajectoryDelta,
		DangerousBlending: st.DangerousBlending,
	}
	for _, g := range []GateName{GateSafety, GateCoherence, GateCapacity} {
		if st.Visited(g) {
			o.Gates = append(o.Gates, string(g))
		}
	}
	if st.Capacity != nil {
		o.Capacity = st.Capacity.Estimate
		o.Coherences = []float64{st.State.Coherence, st.Capacity.Coherence, st.CategoryVector.Coherence}
	}
	if r.Next != nil && !r.Next.Degraded && r.Next.Capacity != nil {
		o.HasNext = true
		o.NextStateLabel = r.Next.State.Dominant
		o.NextCapacity = r.Next.Capacity.Estimate
	}
	if r.Feedback != nil {
		f := r.Feedback.Score
		o.Feedback = &f
	}
	return o
}

// #endregion outcome

// #region reinforce

// Reinforce adds the turn's embedding as a learned exemplar for each
// detector's dominant label. Only positive, satisfied, non-dangerous turns
// qualify; the detectors apply their own acceptance threshold.
func (c *Controller) Reinforce(st CascadeState, stats pattern.UpdateStats) (int, error) {
	if stats.Sign != pattern.Positive.String() || st.embedding == nil || st.Capacity == nil {
		return 0, nil
	}
	if st.Safety.Verdict == exclusion.VerdictDanger || st.DangerousBlending {
		return 0, nil
	}
	accepted := 0
	var errs []error
	labels := []string{st.State.Dominant, st.Capacity.Dominant, st.CategoryVector.Dominant}
	for i, d := range c.detectors.All() {
		ok, err := d.ReinforceVector(st.embedding, labels[i], st.Satisfaction)
		if err != nil {
			errs = append(errs, err)
		}
		if ok {
			accepted++
		}
	}
	if accepted > 0 {
		c.log.Debug("exemplars reinforced", zap.String("turn_id", st.TurnID), zap.Int("accepted", accepted))
	}
	return accepted, errors.Join(errs...)
}

// #endregion reinforce
