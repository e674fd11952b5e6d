package cascade

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/capitan"

	"github.com/danielpatrickdp/adaptive-cascade/internal/detector"
	"github.com/danielpatrickdp/adaptive-cascade/internal/embed"
	"github.com/danielpatrickdp/adaptive-cascade/internal/events"
	"github.com/danielpatrickdp/adaptive-cascade/internal/exclusion"
	"github.com/danielpatrickdp/adaptive-cascade/internal/pattern"
)

// #region fixtures

var (
	stateLabels    = []string{"calm", "mobilized", "shutdown"}
	capacityLabels = []string{"grounding", "clarity", "agency", "warmth", "curiosity", "resilience", "reflection", "openness"}
	categoryLabels = []string{"crisis", "loss", "conflict", "isolation", "overwhelm", "connection"}
)

const (
	textRespond  = "calm grounding clarity agency connection"
	textClarify  = "mobilized"
	textGround   = "calm connection warmth"
	textBlending = "calm crisis connection warmth"
	textDanger   = "shutdown crisis"
)

// vocabEmbedder maps every known label word to its own axis, so each seed
// centroid is a basis vector and similarities are exact.
type vocabEmbedder struct {
	index map[string]int
	dim   int
	fail  bool
}

func newVocabEmbedder() *vocabEmbedder {
	v := &vocabEmbedder{index: map[string]int{}}
	for _, group := range [][]string{stateLabels, capacityLabels, categoryLabels} {
		for _, w := range group {
			v.index[w] = v.dim
			v.dim++
		}
	}
	return v
}

func (v *vocabEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v.fail {
		return nil, errors.New("connection refused")
	}
	out := make([]float32, v.dim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if i, ok := v.index[w]; ok {
			out[i]++
		}
	}
	var norm float64
	for _, x := range out {
		norm += float64(x * x)
	}
	if norm > 0 {
		n := float32(math.Sqrt(norm))
		for i := range out {
			out[i] /= n
		}
	}
	return out, nil
}

type fakeSearcher struct {
	hits []embed.Hit
	err  error
}

func (f fakeSearcher) Search(context.Context, []float32, int) ([]embed.Hit, error) {
	return f.hits, f.err
}

func labelSpec(name string, labels []string, agg detector.Aggregation) detector.Spec {
	spec := detector.Spec{Name: name, Aggregate: agg}
	for _, l := range labels {
		spec.Seeds = append(spec.Seeds, detector.LabelSeeds{Label: l, Phrases: []string{l}})
	}
	return spec
}

type harness struct {
	ctrl  *Controller
	store *pattern.Store
	emb   *vocabEmbedder

	mu    sync.Mutex
	gates []GateName
}

func (h *harness) observed() []GateName {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := append([]GateName(nil), h.gates...)
	h.gates = nil
	return out
}

type harnessOpts struct {
	config    func(*Config)
	exclusion func(*exclusion.Config)
	opts      []Option
}

func newHarness(t *testing.T, o harnessOpts) *harness {
	t.Helper()
	emb := newVocabEmbedder()

	dcfg := detector.DefaultConfig()
	dcfg.State = labelSpec("state", stateLabels, detector.AggregateConfidence)
	dcfg.Capacity = labelSpec("capacity", capacityLabels, detector.AggregateTopK)
	dcfg.Category = labelSpec("category", categoryLabels, detector.AggregateConfidence)
	set := detector.NewSet(dcfg, emb, nil)
	require.NoError(t, set.Bootstrap(context.Background()))

	ecfg := exclusion.DefaultConfig()
	if o.exclusion != nil {
		o.exclusion(&ecfg)
	}
	cfg := DefaultConfig()
	if o.config != nil {
		o.config(&cfg)
	}

	h := &harness{emb: emb}
	h.store = pattern.NewStore(pattern.DefaultConfig(), set.Names(), nil, nil)
	opts := append([]Option{WithGateObserver(func(g GateName) {
		h.mu.Lock()
		h.gates = append(h.gates, g)
		h.mu.Unlock()
	})}, o.opts...)
	h.ctrl = NewController(cfg, set, exclusion.NewComputer(ecfg), h.store, emb, opts...)
	return h
}

func terminals(path []Step) []Decision {
	out := make([]Decision, len(path))
	for i, s := range path {
		out[i] = s.Decision
	}
	return out
}

// #endregion fixtures

// #region gates

func TestProcessTurn_Respond(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	st, err := h.ctrl.ProcessTurn(context.Background(), textRespond)
	require.NoError(t, err)

	assert.Equal(t, exclusion.VerdictSafe, st.Safety.Verdict)
	assert.Equal(t, DecisionRespond, st.Terminal)
	assert.Equal(t, GateResponse, st.TerminalGate())
	assert.Equal(t, []Decision{DecisionProceed, DecisionProceed, DecisionProceed, DecisionRespond}, terminals(st.VerdictPath))
	assert.Equal(t, []GateName{GateSafety, GateCoherence, GateCapacity, GateResponse}, h.observed())

	assert.Equal(t, "connection", st.Category)
	assert.Equal(t, "high", st.Bucket)
	assert.InDelta(t, 0.684, st.OrganAgreement, 0.01)
	require.NotNil(t, st.Capacity)
	assert.InDelta(t, 0.447, st.Capacity.Estimate, 0.01)
	assert.Equal(t, "grounding", st.Dimension)
	assert.Equal(t, QualityLow, st.ResponseQuality)
	assert.Equal(t, DefaultPhraseBook().Respond("grounding", "connection", st.Turn), st.ResponseText)
	assert.False(t, st.Halted())
	assert.NotEmpty(t, st.TurnID)
}

func TestProcessTurn_ClarifyOnLowAgreement(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	st, err := h.ctrl.ProcessTurn(context.Background(), textClarify)
	require.NoError(t, err)

	assert.Equal(t, exclusion.VerdictCaution, st.Safety.Verdict)
	assert.Equal(t, DecisionClarify, st.Terminal)
	assert.Equal(t, GateCoherence, st.TerminalGate())
	assert.Equal(t, "general", st.Category)
	assert.InDelta(t, 0.26, st.OrganAgreement, 0.01)
	assert.Equal(t, []GateName{GateSafety, GateCoherence}, h.observed())
	assert.Equal(t, QualityFallback, st.ResponseQuality)
	assert.NotEmpty(t, st.ResponseText)
}

func TestProcessTurn_GroundOnLowCapacity(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	st, err := h.ctrl.ProcessTurn(context.Background(), textGround)
	require.NoError(t, err)

	assert.Equal(t, exclusion.VerdictSafe, st.Safety.Verdict)
	assert.Equal(t, DecisionGround, st.Terminal)
	assert.Equal(t, GateCapacity, st.TerminalGate())
	assert.Equal(t, "warmth", st.Dimension)
	assert.False(t, st.DangerousBlending)
	assert.Equal(t, []GateName{GateSafety, GateCoherence, GateCapacity}, h.observed())
}

func TestProcessTurn_DangerousBlending(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	st, err := h.ctrl.ProcessTurn(context.Background(), textBlending)
	require.NoError(t, err)

	assert.Equal(t, exclusion.VerdictSafe, st.Safety.Verdict)
	assert.Equal(t, "crisis", st.Category)
	assert.True(t, st.Crisis())
	assert.Equal(t, DecisionGround, st.Terminal)
	assert.True(t, st.DangerousBlending)
	assert.GreaterOrEqual(t, st.Satisfaction, 0.7)
	assert.GreaterOrEqual(t, st.OrganAgreement, 0.6)
}

func TestProcessTurn_DangerStopsCascade(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	st, err := h.ctrl.ProcessTurn(context.Background(), textDanger)
	require.NoError(t, err)

	assert.Equal(t, exclusion.VerdictDanger, st.Safety.Verdict)
	assert.Equal(t, DecisionContain, st.Terminal)
	assert.Equal(t, []Step{{Gate: GateSafety, Decision: DecisionContain}}, st.VerdictPath)
	assert.Equal(t, []GateName{GateSafety}, h.observed())
	assert.Equal(t, ContainMessage, st.ResponseText)
	assert.Zero(t, st.OrganAgreement)
	assert.Empty(t, st.Dimension)
}

func TestProcessTurn_TurnCounterAdvances(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	for i := 0; i < 3; i++ {
		st, err := h.ctrl.ProcessTurn(context.Background(), textRespond)
		require.NoError(t, err)
		assert.Equal(t, i, st.Turn)
	}
}

// #endregion gates

// #region modulation

func TestModulation_CautionTightensCoherence(t *testing.T) {
	h := newHarness(t, harnessOpts{config: func(c *Config) { c.CoherenceThreshold = 0.6 }})
	ctx := context.Background()

	st, err := h.ctrl.ProcessTurn(ctx, textRespond)
	require.NoError(t, err)
	assert.Equal(t, DecisionRespond, st.Terminal)

	st, err = h.ctrl.ProcessTurnWith(ctx, TurnInput{Text: textRespond, Modulation: Modulation{Caution: 1}})
	require.NoError(t, err)
	assert.Equal(t, DecisionClarify, st.Terminal)
	assert.InDelta(t, 0.7, st.Thresholds.Coherence, 1e-9)
	assert.InDelta(t, 0.6, st.Thresholds.Danger, 1e-9)
}

func TestModulation_CautionTightensSafety(t *testing.T) {
	h := newHarness(t, harnessOpts{exclusion: func(c *exclusion.Config) { c.DangerThreshold = 0.65 }})
	ctx := context.Background()

	st, err := h.ctrl.ProcessTurn(ctx, "calm crisis")
	require.NoError(t, err)
	assert.Equal(t, exclusion.VerdictCaution, st.Safety.Verdict)
	assert.InDelta(t, 0.58, st.Safety.Score, 0.01)

	st, err = h.ctrl.ProcessTurnWith(ctx, TurnInput{Text: "calm crisis", Modulation: Modulation{Caution: 1}})
	require.NoError(t, err)
	assert.Equal(t, exclusion.VerdictDanger, st.Safety.Verdict)
	assert.Equal(t, DecisionContain, st.Terminal)
}

func TestModulation_NeverLoosensSafety(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	for _, m := range []Modulation{{Curiosity: 1}, {Curiosity: 50}, {Curiosity: 1, Caution: math.NaN()}} {
		st, err := h.ctrl.ProcessTurnWith(context.Background(), TurnInput{Text: textDanger, Modulation: m})
		require.NoError(t, err)
		assert.Equal(t, exclusion.VerdictDanger, st.Safety.Verdict)
		assert.InDelta(t, 0.7, st.Thresholds.Danger, 1e-9)
		assert.LessOrEqual(t, st.Thresholds.Delta, MaxModulation)
	}
}

func TestModulation_Bounds(t *testing.T) {
	cases := []struct {
		m     Modulation
		delta float64
		tight float64
	}{
		{Modulation{}, 0, 0},
		{Modulation{Curiosity: 1}, 0.1, 0},
		{Modulation{Caution: 1}, -0.1, -0.1},
		{Modulation{Curiosity: 0.5, Caution: 0.5}, 0, 0},
		{Modulation{Curiosity: 9, Caution: -3}, 0.1, 0},
		{Modulation{Caution: math.Inf(1)}, -0.1, -0.1},
	}
	for _, tc := range cases {
		assert.InDelta(t, tc.delta, tc.m.Delta(), 1e-12, "%+v", tc.m)
		assert.InDelta(t, tc.tight, tc.m.Tightening(), 1e-12, "%+v", tc.m)
	}
}

// #endregion modulation

// #region knowledge

func TestKnowledgeBypass(t *testing.T) {
	hit := embed.Hit{Text: "Grounding means noticing your feet on the floor.", Similarity: 0.9, Source: "kb:grounding"}
	h := newHarness(t, harnessOpts{opts: []Option{WithSearcher(fakeSearcher{hits: []embed.Hit{
		{Text: "weak", Similarity: 0.5},
		hit,
	}})}})

	st, err := h.ctrl.ProcessTurn(context.Background(), textGround)
	require.NoError(t, err)
	assert.Equal(t, DecisionRespond, st.Terminal)
	assert.True(t, st.Visited(GateKnowledge))
	assert.False(t, st.Visited(GateCoherence))
	assert.Equal(t, hit.Text, st.ResponseText)
	assert.Equal(t, "kb:grounding", st.Knowledge)
	assert.Equal(t, QualityHigh, st.ResponseQuality)
	assert.Equal(t, []GateName{GateSafety, GateKnowledge, GateResponse}, h.observed())
}

func TestKnowledgeBypass_OnlyWhenSafe(t *testing.T) {
	h := newHarness(t, harnessOpts{opts: []Option{WithSearcher(fakeSearcher{hits: []embed.Hit{{Text: "x", Similarity: 0.99}}})}})
	st, err := h.ctrl.ProcessTurn(context.Background(), textClarify)
	require.NoError(t, err)
	assert.Equal(t, DecisionClarify, st.Terminal)
	assert.False(t, st.Visited(GateKnowledge))
}

func TestKnowledgeBypass_WeakHitsFallThrough(t *testing.T) {
	h := newHarness(t, harnessOpts{opts: []Option{WithSearcher(fakeSearcher{hits: []embed.Hit{{Text: "x", Similarity: 0.6}}})}})
	st, err := h.ctrl.ProcessTurn(context.Background(), textGround)
	require.NoError(t, err)
	assert.Equal(t, DecisionGround, st.Terminal)
	assert.False(t, st.Visited(GateKnowledge))
}

func TestKnowledgeSearchFailureDegrades(t *testing.T) {
	h := newHarness(t, harnessOpts{opts: []Option{WithSearcher(fakeSearcher{err: errors.New("timeout")})}})
	st, err := h.ctrl.ProcessTurn(context.Background(), textRespond)
	require.Error(t, err)
	assert.ErrorIs(t, err, embed.ErrUpstreamUnavailable)
	assert.True(t, st.Degraded)
}

// #endregion knowledge

// #region degraded

func TestUpstreamFailureDegrades(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	h.emb.fail = true

	st, err := h.ctrl.ProcessTurn(context.Background(), textRespond)
	require.Error(t, err)
	assert.ErrorIs(t, err, embed.ErrUpstreamUnavailable)
	assert.True(t, st.Degraded)
	assert.Equal(t, DecisionContain, st.Terminal)
	assert.Equal(t, ContainMessage, st.ResponseText)
	assert.Nil(t, st.Capacity)
	assert.Empty(t, st.State.Dominant)
	assert.Empty(t, h.observed())

	stats, err := h.ctrl.RecordOutcome(st, &Feedback{Score: 1})
	require.NoError(t, err)
	assert.Equal(t, SkippedSign, stats.Sign)
	assert.Zero(t, h.store.Counters().Updates)
}

func TestDegradedTurnEmitsEvent(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	h.emb.fail = true

	got := make(chan string, 16)
	l := capitan.Hook(events.TurnDegraded, func(_ context.Context, e *capitan.Event) {
		id, _ := events.FieldTurnID.From(e)
		select {
		case got <- id:
		default:
		}
	})
	defer l.Close()

	st, _ := h.ctrl.ProcessTurn(context.Background(), textRespond)
	deadline := time.After(2 * time.Second)
	for {
		select {
		case id := <-got:
			if id == st.TurnID {
				return
			}
		case <-deadline:
			t.Fatal("no degraded event for turn")
		}
	}
}

// #endregion degraded

// #region learning

func TestRecordOutcome_PositiveLoosensNonCrisis(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	ctx := context.Background()

	st, err := h.ctrl.ProcessTurn(ctx, textRespond)
	require.NoError(t, err)
	stats, err := h.ctrl.RecordOutcome(st, nil)
	require.NoError(t, err)
	assert.Equal(t, "positive", stats.Sign)
	assert.Equal(t, "default", stats.Rule)

	key := pattern.ContextKey{Gate: string(GateCoherence), Category: "connection", Bucket: "high"}
	assert.InDelta(t, 0.015, h.store.Read(key), 1e-9)

	next, err := h.ctrl.ProcessTurn(ctx, textRespond)
	require.NoError(t, err)
	assert.InDelta(t, 0.485, next.Thresholds.Coherence, 1e-9)
	assert.InDelta(t, 0.7, next.Thresholds.Danger, 1e-9)
	assert.Greater(t, h.store.EffectivenessOf("connection", "grounding").Score, 0.0)
}

func TestRecordOutcome_CrisisNeverLoosensSafety(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		st, err := h.ctrl.ProcessTurn(ctx, "calm crisis")
		require.NoError(t, err)
		assert.LessOrEqual(t, st.Thresholds.Danger, 0.7)
		assert.LessOrEqual(t, st.Thresholds.Coherence, 0.5)

		stats, err := h.ctrl.RecordOutcome(st, &Feedback{Score: 1})
		require.NoError(t, err)
		assert.Equal(t, "positive", stats.Sign)
		assert.Positive(t, stats.Rejected)
		assert.ErrorIs(t, stats.Err(), pattern.ErrInvariantViolation)
	}
	for _, g := range []GateName{GateSafety, GateCoherence, GateCapacity} {
		assert.LessOrEqual(t, h.store.Read(pattern.ContextKey{Gate: string(g), Category: "crisis", Bucket: "high"}), 0.0)
	}
}

func TestRecordOutcome_BlendingPinsCeiling(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	ctx := context.Background()

	st, err := h.ctrl.ProcessTurn(ctx, textBlending)
	require.NoError(t, err)
	require.True(t, st.DangerousBlending)

	stats, err := h.ctrl.RecordOutcome(st, &Feedback{Score: 1})
	require.NoError(t, err)
	assert.Equal(t, "negative", stats.Sign)
	assert.Equal(t, "dangerous_blending", stats.Rule)

	before := h.store.EffectivenessOf("crisis", "warmth").Score
	for i := 0; i < 5; i++ {
		_, err := h.ctrl.RecordOutcome(st, &Feedback{Score: 1})
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, h.store.EffectivenessOf("crisis", "warmth").Score, before)
}

func TestRecordOutcome_OutcomeGates(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	ctx := context.Background()

	danger, err := h.ctrl.ProcessTurn(ctx, textDanger)
	require.NoError(t, err)
	o := h.ctrl.outcome(Resolution{State: danger})
	assert.Equal(t, []string{string(GateSafety)}, o.Gates)
	assert.True(t, o.Danger)
	assert.True(t, o.Crisis)

	respond, err := h.ctrl.ProcessTurn(ctx, textRespond)
	require.NoError(t, err)
	o = h.ctrl.outcome(Resolution{State: respond, Next: &danger, TrajectoryDelta: 0.1})
	assert.Equal(t, []string{string(GateSafety), string(GateCoherence), string(GateCapacity)}, o.Gates)
	assert.True(t, o.HasNext)
	assert.Equal(t, "shutdown", o.NextStateLabel)
	assert.Equal(t, "grounding", o.Dimension)
	assert.Len(t, o.Coherences, 3)
	assert.InDelta(t, 0.1, o.TrajectoryDelta, 1e-12)
}

func TestRecordOutcome_NoStore(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	ctrl := NewController(h.ctrl.Config(), h.ctrl.Detectors(), exclusion.NewComputer(exclusion.DefaultConfig()), nil, h.emb)

	st, err := ctrl.ProcessTurn(context.Background(), textRespond)
	require.NoError(t, err)
	assert.Equal(t, DecisionRespond, st.Terminal)
	_, err = ctrl.RecordOutcome(st, nil)
	assert.ErrorIs(t, err, ErrNoPatternStore)
}

// #endregion learning

// #region helpers-test

func TestAgreement(t *testing.T) {
	assert.InDelta(t, 1.0, agreement([]float64{1, 1, 1}), 1e-12)
	assert.InDelta(t, 0.0, agreement(nil), 1e-12)
	// mean 0.5, variance 0.25
	assert.InDelta(t, 0.375, agreement([]float64{0, 1}), 1e-12)
	// mean 0.5, variance 0.08
	assert.InDelta(t, 0.46, agreement([]float64{0.9, 0.3, 0.3}), 1e-12)
}

func TestProcessTurn_AgreementIgnoresCoupling(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	before, err := h.ctrl.ProcessTurn(context.Background(), textRespond)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		_, err := h.store.Update(pattern.Outcome{TurnID: "c", Coherences: []float64{1, 0, 1}, Feedback: ptr(1)})
		require.NoError(t, err)
	}
	names := h.ctrl.Detectors().Names()
	require.Greater(t, h.store.CouplingBetween(names[0], names[2]), 0.5)

	after, err := h.ctrl.ProcessTurn(context.Background(), textRespond)
	require.NoError(t, err)
	assert.InDelta(t, before.OrganAgreement, after.OrganAgreement, 1e-12)
	assert.Equal(t, before.Terminal, after.Terminal)
}

func TestSelectDimension_EffectivenessScaledByCoupling(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	capacity := detector.StateVector{
		Dominant:    "grounding",
		Activations: map[string]float64{"grounding": 0.5, "warmth": 0.45},
	}
	pick := func(pcfg pattern.Config) string {
		store := pattern.NewStore(pcfg, h.ctrl.Detectors().Names(), nil, nil)
		for i := 0; i < 10; i++ {
			_, err := store.Update(pattern.Outcome{TurnID: "w", Category: "connection", Dimension: "warmth", Feedback: ptr(1)})
			require.NoError(t, err)
		}
		cfg := DefaultConfig()
		cfg.BoostWeight = 0
		c := &Controller{config: cfg, detectors: h.ctrl.Detectors(), store: store}
		return c.selectDimension(capacity, "connection")
	}

	// 0.6 * 0.5 * 0.651 lifts warmth over grounding
	assert.Equal(t, "warmth", pick(pattern.DefaultConfig()))

	uncoupled := pattern.DefaultConfig()
	uncoupled.CouplingInitial = 0
	assert.Equal(t, "grounding", pick(uncoupled))
}

func TestProcessTurn_LabelBoostRaisesTier(t *testing.T) {
	h := newHarness(t, harnessOpts{config: func(c *Config) { c.LabelBoostWeight = 1 }})
	st, err := h.ctrl.ProcessTurn(context.Background(), textRespond)
	require.NoError(t, err)
	require.Equal(t, "calm", st.State.Dominant)
	require.Equal(t, QualityLow, st.ResponseQuality)

	for i := 0; i < 25; i++ {
		_, err := h.store.Update(pattern.Outcome{TurnID: "b", StateLabel: "calm", Feedback: ptr(1)})
		require.NoError(t, err)
	}
	require.Greater(t, h.store.LabelBoost("calm"), 0.9)

	st, err = h.ctrl.ProcessTurn(context.Background(), textRespond)
	require.NoError(t, err)
	assert.Equal(t, DecisionRespond, st.Terminal)
	assert.Equal(t, "grounding", st.Dimension)
	assert.Equal(t, QualityHigh, st.ResponseQuality)
}

func TestEstimateSatisfaction(t *testing.T) {
	sv := detector.StateVector{Distribution: map[string]float64{"calm": 0.8}, Coherence: 0.5}
	assert.InDelta(t, 0.6, estimateSatisfaction(nil, sv), 1e-12)
	over := 1.4
	assert.InDelta(t, 1.0, estimateSatisfaction(&over, sv), 1e-12)
}

func TestBucketAndTier(t *testing.T) {
	c := &Controller{config: DefaultConfig()}
	assert.Equal(t, "low", c.bucket(0.39))
	assert.Equal(t, "mid", c.bucket(0.4))
	assert.Equal(t, "high", c.bucket(0.7))
	assert.Equal(t, QualityHigh, c.tier(0.75))
	assert.Equal(t, QualityMedium, c.tier(0.5))
	assert.Equal(t, QualityLow, c.tier(0.49))
}

func TestPhraseBook(t *testing.T) {
	pb := DefaultPhraseBook()
	a := pb.Respond("warmth", "loss", 0)
	b := pb.Respond("warmth", "loss", 1)
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, pb.Respond("warmth", "loss", len(pb.Dimensions["warmth"])))
	assert.Equal(t, ContainMessage, pb.Fallback(DecisionContain, "loss"))
	assert.NotEmpty(t, pb.Fallback(DecisionClarify, "no-such-category"))
}

// #endregion helpers-test
