package cascade

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/capitan"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/adaptive-cascade/internal/detector"
	"github.com/danielpatrickdp/adaptive-cascade/internal/embed"
	"github.com/danielpatrickdp/adaptive-cascade/internal/events"
	"github.com/danielpatrickdp/adaptive-cascade/internal/exclusion"
	"github.com/danielpatrickdp/adaptive-cascade/internal/pattern"
)

// #region controller

// Controller runs each turn through the four gates. It reads pattern memory
// while deciding and writes to it only through RecordOutcome.
type Controller struct {
	config    Config
	detectors *detector.Set
	exclusion *exclusion.Computer
	store     *pattern.Store
	embedder  embed.Embedder
	searcher  embed.Searcher
	renderer  Renderer
	observe   func(GateName)
	log       *zap.Logger

	turns atomic.Int64
}

// Option configures a Controller.
type Option func(*Controller)

// WithSearcher enables the knowledge bypass.
func WithSearcher(s embed.Searcher) Option {
	return func(c *Controller) { c.searcher = s }
}

// WithRenderer replaces the default phrase book.
func WithRenderer(r Renderer) Option {
	return func(c *Controller) { c.renderer = r }
}

// WithGateObserver registers fn to be called as each gate is entered.
func WithGateObserver(fn func(GateName)) Option {
	return func(c *Controller) { c.observe = fn }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// NewController wires a controller. store may be nil, in which case no
// learned adjustments are read and outcomes are not recorded.
func NewController(
	config Config,
	detectors *detector.Set,
	excl *exclusion.Computer,
	store *pattern.Store,
	embedder embed.Embedder,
	opts ...Option,
) *Controller {
	c := &Controller{
		config:    config,
		detectors: detectors,
		exclusion: excl,
		store:     store,
		embedder:  embedder,
		renderer:  DefaultPhraseBook(),
		observe:   func(GateName) {},
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.Named("cascade")
	return c
}

// Config returns the controller configuration.
func (c *Controller) Config() Config { return c.config }

// Detectors returns the detector set.
func (c *Controller) Detectors() *detector.Set { return c.detectors }

// Store returns the pattern store, which may be nil.
func (c *Controller) Store() *pattern.Store { return c.store }

// #endregion controller

// #region process-turn

// ProcessTurn runs text through the cascade with estimated satisfaction and no modulation.
func (c *Controller) ProcessTurn(ctx context.Context, text string) (CascadeState, error) {
	return c.ProcessTurnWith(ctx, TurnInput{Text: text})
}

// ProcessTurnWith runs one turn. On an upstream failure it returns a degraded
// CONTAIN state together with the wrapped error.
func (c *Controller) ProcessTurnWith(ctx context.Context, in TurnInput) (CascadeState, error) {
	st := CascadeState{
		TurnID:    uuid.New().String(),
		Turn:      int(c.turns.Add(1) - 1),
		Text:      in.Text,
		CreatedAt: time.Now().UTC(),
	}

	vec, err := c.embedder.Embed(ctx, in.Text)
	if err != nil {
		return c.degrade(ctx, st, upstream(err))
	}
	reading, err := c.detectors.Read(vec)
	if err != nil {
		return c.degrade(ctx, st, err)
	}

	st.embedding = vec
	st.State = reading.State
	capacity := reading.Capacity
	st.Capacity = &capacity
	st.CategoryVector = reading.Category
	st.Categories = c.detectors.ActiveCategories(reading)
	st.Category = c.primaryCategory(reading.Category, st.Categories)
	st.Satisfaction = estimateSatisfaction(in.Satisfaction, reading.State)
	st.Bucket = c.bucket(st.Satisfaction)
	delta := in.Modulation.Delta()
	st.Thresholds.Delta = delta

	// Gate 1: learned adjustments and modulation can only tighten.
	c.observe(GateSafety)
	danger := c.exclusion.Config().DangerThreshold + math.Min(c.adjustment(GateSafety, st), 0) + in.Modulation.Tightening()
	st.Thresholds.Danger = danger
	st.Safety = c.exclusion.WithDangerThreshold(danger).Compute(exclusion.Input{
		StateLabel:           reading.State.Dominant,
		StateConfidence:      reading.State.Confidence,
		ActiveCategories:     st.Categories,
		DistanceFromSafeCore: c.detectors.DistanceFromSafeCore(reading),
	})
	if st.Safety.Verdict == exclusion.VerdictDanger {
		return c.halt(ctx, st, GateSafety, DecisionContain), nil
	}
	st.VerdictPath = append(st.VerdictPath, Step{Gate: GateSafety, Decision: DecisionProceed})

	if st.Safety.Verdict == exclusion.VerdictSafe && c.searcher != nil {
		hit, ok, err := c.search(ctx, vec)
		if err != nil {
			return c.degrade(ctx, st, err)
		}
		if ok {
			c.observe(GateKnowledge)
			st.VerdictPath = append(st.VerdictPath, Step{Gate: GateKnowledge, Decision: DecisionBypass})
			return c.respond(ctx, st, reading.Capacity, &hit), nil
		}
	}

	// Gate 2
	c.observe(GateCoherence)
	st.OrganAgreement = agreement(reading.Coherences())
	st.Thresholds.Coherence = c.config.CoherenceThreshold - c.adjustment(GateCoherence, st) - delta
	if st.OrganAgreement < st.Thresholds.Coherence {
		return c.halt(ctx, st, GateCoherence, DecisionClarify), nil
	}
	st.VerdictPath = append(st.VerdictPath, Step{Gate: GateCoherence, Decision: DecisionProceed})

	// Gate 3
	c.observe(GateCapacity)
	st.Thresholds.Capacity = c.config.CapacityThreshold - c.adjustment(GateCapacity, st) - delta
	if reading.Capacity.Estimate < st.Thresholds.Capacity {
		st.Dimension = reading.Capacity.Dominant
		st.DangerousBlending = st.Satisfaction >= c.config.BlendingSatisfaction &&
			st.OrganAgreement >= c.config.BlendingAgreement &&
			st.Crisis()
		if st.DangerousBlending {
			c.log.Warn("dangerous blending",
				zap.String("turn_id", st.TurnID),
				zap.Float64("satisfaction", st.Satisfaction),
				zap.Float64("agreement", st.OrganAgreement),
				zap.Float64("capacity", reading.Capacity.Estimate),
			)
		}
		return c.halt(ctx, st, GateCapacity, DecisionGround), nil
	}
	st.VerdictPath = append(st.VerdictPath, Step{Gate: GateCapacity, Decision: DecisionProceed})

	return c.respond(ctx, st, reading.Capacity, nil), nil
}

// #endregion process-turn

// #region terminals

func (c *Controller) halt(ctx context.Context, st CascadeState, gate GateName, d Decision) CascadeState {
	st.VerdictPath = append(st.VerdictPath, Step{Gate: gate, Decision: d})
	st.Terminal = d
	st.ResponseText = c.renderer.Fallback(d, st.Category)
	st.ResponseQuality = QualityFallback

	capitan.Emit(ctx, events.TurnHalted,
		events.FieldTurnID.Field(st.TurnID),
		events.FieldGate.Field(string(gate)),
		events.FieldDecision.Field(string(d)),
		events.FieldVerdict.Field(string(st.Safety.Verdict)),
		events.FieldCategory.Field(st.Category),
		events.FieldScore.Field(float32(st.Safety.Score)),
	)
	c.log.Info("turn halted",
		zap.String("turn_id", st.TurnID),
		zap.String("gate", string(gate)),
		zap.String("decision", string(d)),
		zap.String("verdict", string(st.Safety.Verdict)),
		zap.Float64("score", st.Safety.Score),
		zap.Float64("agreement", st.OrganAgreement),
		zap.Bool("dangerous_blending", st.DangerousBlending),
	)
	return st
}

func (c *Controller) respond(ctx context.Context, st CascadeState, capacity detector.StateVector, hit *embed.Hit) CascadeState {
	c.observe(GateResponse)
	if hit != nil {
		st.Dimension = capacity.Dominant
		st.ResponseText = hit.Text
		st.Knowledge = hit.Source
		st.ResponseQuality = c.tier(float64(hit.Similarity))
	} else {
		st.Dimension = c.selectDimension(capacity, st.Category)
		st.ResponseText = c.renderer.Respond(st.Dimension, st.Category, st.Turn)
		st.ResponseQuality = c.tier(capacity.Confidence + c.config.LabelBoostWeight*c.labelBoost(st.State.Dominant))
	}
	st.VerdictPath = append(st.VerdictPath, Step{Gate: GateResponse, Decision: DecisionRespond})
	st.Terminal = DecisionRespond

	capitan.Emit(ctx, events.TurnResponded,
		events.FieldTurnID.Field(st.TurnID),
		events.FieldGate.Field(string(st.TerminalGate())),
		events.FieldDecision.Field(string(DecisionRespond)),
		events.FieldCategory.Field(st.Category),
		events.FieldScore.Field(float32(st.OrganAgreement)),
	)
	c.log.Info("turn responded",
		zap.String("turn_id", st.TurnID),
		zap.String("dimension", st.Dimension),
		zap.String("quality", string(st.ResponseQuality)),
		zap.Bool("knowledge", hit != nil),
	)
	return st
}

// degrade replaces the turn with the containment message. It never
// fabricates a classification.
func (c *Controller) degrade(ctx context.Context, st CascadeState, err error) (CascadeState, error) {
	st.Degraded = true
	st.VerdictPath = []Step{{Gate: GateSafety, Decision: DecisionContain}}
	st.Terminal = DecisionContain
	st.ResponseText = ContainMessage
	st.ResponseQuality = QualityFallback
	st.Capacity = nil

	capitan.Error(ctx, events.TurnDegraded,
		events.FieldTurnID.Field(st.TurnID),
		events.FieldError.Field(err),
	)
	c.log.Error("turn degraded", zap.String("turn_id", st.TurnID), zap.Error(err))
	return st, fmt.Errorf("process turn: %w", err)
}

// #endregion terminals

// #region helpers

func (c *Controller) search(ctx context.Context, vec []float32) (embed.Hit, bool, error) {
	hits, err := c.searcher.Search(ctx, vec, c.config.SearchK)
	if err != nil {
		return embed.Hit{}, false, upstream(err)
	}
	var best embed.Hit
	found := false
	for _, h := range hits {
		if float64(h.Similarity) >= c.config.SubstantiveThreshold && (!found || h.Similarity > best.Similarity) {
			best, found = h, true
		}
	}
	return best, found, nil
}

func (c *Controller) adjustment(gate GateName, st CascadeState) float64 {
	if c.store == nil {
		return 0
	}
	return c.store.Read(pattern.ContextKey{Gate: string(gate), Category: st.Category, Bucket: st.Bucket})
}

func (c *Controller) labelBoost(label string) float64 {
	if c.store == nil {
		return 0
	}
	return c.store.LabelBoost(label)
}

// selectDimension ranks capacity dimensions by activation, re-ranked by learned
// effectiveness for the category and by dimension boosts. Effectiveness counts
// in proportion to the learned capacity-category coupling.
func (c *Controller) selectDimension(capacity detector.StateVector, category string) string {
	var coupling float64
	if c.store != nil {
		coupling = c.store.CouplingBetween(c.detectors.Capacity.Name(), c.detectors.Category.Name())
	}
	best, bestScore := capacity.Dominant, math.Inf(-1)
	for _, dim := range c.detectors.Capacity.Labels() {
		score := capacity.Activations[dim]
		if c.store != nil {
			score += c.config.RerankWeight * coupling * c.store.EffectivenessOf(category, dim).Score
			score += c.config.BoostWeight * c.store.DimensionBoost(dim)
		}
		if score > bestScore {
			best, bestScore = dim, score
		}
	}
	return best
}

func (c *Controller) primaryCategory(v detector.StateVector, active []string) string {
	best, bestAct := "", -1.0
	for _, cat := range active {
		if cat == detector.CategoryCrisis {
			return cat
		}
		if v.Activations[cat] > bestAct {
			best, bestAct = cat, v.Activations[cat]
		}
	}
	if best == "" {
		return c.config.DefaultCategory
	}
	return best
}

func (c *Controller) bucket(satisfaction float64) string {
	switch {
	case satisfaction < c.config.BucketLow:
		return "low"
	case satisfaction < c.config.BucketHigh:
		return "mid"
	default:
		return "high"
	}
}

func (c *Controller) tier(confidence float64) Quality {
	switch {
	case confidence >= c.config.HighTier:
		return QualityHigh
	case confidence >= c.config.MediumTier:
		return QualityMedium
	default:
		return QualityLow
	}
}

// estimateSatisfaction uses the supplied value, or P(calm) scaled by how
// decisive the state reading is.
func estimateSatisfaction(supplied *float64, state detector.StateVector) float64 {
	if supplied != nil {
		return clamp01(*supplied)
	}
	return clamp01(state.Distribution[detector.LabelCalm] * (0.5 + 0.5*state.Coherence))
}

// agreement is mean(coherence) * (1 - variance(coherence)).
func agreement(coherences []float64) float64 {
	if len(coherences) == 0 {
		return 0
	}
	var mean float64
	for _, c := range coherences {
		mean += c
	}
	mean /= float64(len(coherences))
	var variance float64
	for _, c := range coherences {
		variance += (c - mean) * (c - mean)
	}
	variance /= float64(len(coherences))
	return clamp01(mean * (1 - variance))
}

func upstream(err error) error {
	if errors.Is(err, embed.ErrUpstreamUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", embed.ErrUpstreamUnavailable, err)
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
