package detector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/adaptive-cascade/internal/embed"
)

// #region sink

// ExemplarSink persists accepted exemplars. ExemplarStore implements it.
type ExemplarSink interface {
	Append(detector, label string, vec []float32, satisfaction float64) error
}

// #endregion sink

// #region detector

// Detector maps embeddings to a StateVector by blending similarity to seed
// centroids with similarity to learned exemplars.
type Detector struct {
	spec     Spec
	labels   []string
	config   Config
	embedder embed.Embedder
	log      *zap.Logger

	centroids map[string][]float64 // written once by Bootstrap

	mu      sync.RWMutex
	learned map[string]*ring
	sink    ExemplarSink
}

// New creates a Detector. Call Bootstrap before classifying.
func New(spec Spec, config Config, embedder embed.Embedder, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	labels := spec.Labels()
	learned := make(map[string]*ring, len(labels))
	for _, l := range labels {
		learned[l] = newRing(config.ExemplarCap)
	}
	return &Detector{
		spec:     spec,
		labels:   labels,
		config:   config,
		embedder: embedder,
		log:      logger.Named("detector").With(zap.String("detector", spec.Name)),
		learned:  learned,
	}
}

// Name returns the detector name.
func (d *Detector) Name() string { return d.spec.Name }

// Labels returns the label set in declaration order.
func (d *Detector) Labels() []string {
	out := make([]string, len(d.labels))
	copy(out, d.labels)
	return out
}

// SetSink attaches a persistence sink for accepted exemplars.
func (d *Detector) SetSink(sink ExemplarSink) {
	d.mu.Lock()
	d.sink = sink
	d.mu.Unlock()
}

// #endregion detector

// #region bootstrap

// Bootstrap embeds every seed phrase and computes one centroid per label.
// Seeds are embedded concurrently; the first failure cancels the rest.
func (d *Detector) Bootstrap(ctx context.Context) error {
	type job struct {
		label string
		idx   int
		text  string
	}
	var jobs []job
	vectors := make(map[string][][]float32, len(d.labels))
	for _, ls := range d.spec.Seeds {
		if len(ls.Phrases) == 0 {
			return fmt.Errorf("bootstrap %s: label %q has no seed phrases", d.spec.Name, ls.Label)
		}
		vectors[ls.Label] = make([][]float32, len(ls.Phrases))
		for i, p := range ls.Phrases {
			jobs = append(jobs, job{label: ls.Label, idx: i, text: p})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if d.config.BootstrapParallel > 0 {
		g.SetLimit(d.config.BootstrapParallel)
	}
	for _, j := range jobs {
		slot := vectors[j.label]
		g.Go(func() error {
			vec, err := d.embedder.Embed(gctx, j.text)
			if err != nil {
				return fmt.Errorf("embed seed %q: %w", j.text, err)
			}
			slot[j.idx] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("bootstrap %s: %w", d.spec.Name, err)
	}

	centroids := make(map[string][]float64, len(d.labels))
	for label, vecs := range vectors {
		centroids[label] = centroid(vecs)
	}
	d.centroids = centroids
	d.log.Debug("bootstrapped", zap.Int("labels", len(centroids)), zap.Int("seeds", len(jobs)))
	return nil
}

// #endregion bootstrap

// #region detect

// Detect embeds text and classifies it. Embedding failures are returned wrapped,
// never replaced by a default classification.
func (d *Detector) Detect(ctx context.Context, text string) (StateVector, error) {
	vec, err := d.embedder.Embed(ctx, text)
	if err != nil {
		return StateVector{}, fmt.Errorf("detect %s: %w", d.spec.Name, err)
	}
	return d.DetectVector(vec)
}

// DetectVector classifies a precomputed embedding against a snapshot of the
// learned exemplars. With no intervening Reinforce, repeated calls are bit-identical.
func (d *Detector) DetectVector(vec []float32) (StateVector, error) {
	if d.centroids == nil {
		return StateVector{}, ErrNotBootstrapped
	}
	x := toFloat64(vec)
	learned := d.snapshot()

	sims := make([]float64, len(d.labels))
	activations := make(map[string]float64, len(d.labels))
	for i, label := range d.labels {
		sims[i] = d.similarity(x, d.centroids[label], learned[label])
		activations[label] = clamp01(sims[i])
	}

	probs := softmax(sims, d.config.Temperature)
	distribution := make(map[string]float64, len(d.labels))
	best := 0
	for i, label := range d.labels {
		distribution[label] = probs[i]
		if probs[i] > probs[best] {
			best = i
		}
	}

	sv := StateVector{
		Detector:     d.spec.Name,
		Dominant:     d.labels[best],
		Confidence:   probs[best],
		Distribution: distribution,
		Coherence:    coherence(probs),
		Activations:  activations,
	}
	switch d.spec.Aggregate {
	case AggregateTopK:
		sv.Estimate = topKMean(sims, d.config.TopK)
	default:
		sv.Estimate = sv.Confidence
	}
	return sv, nil
}

// similarity blends seed-centroid similarity with the best learned-exemplar
// similarity. The learned share grows with the number of stored exemplars.
func (d *Detector) similarity(x, seed []float64, learned [][]float64) float64 {
	seedSim := cosine(x, seed)
	if len(learned) == 0 {
		return seedSim
	}
	maxLearned := -1.0
	for _, e := range learned {
		if s := cosine(x, e); s > maxLearned {
			maxLearned = s
		}
	}
	capacity := d.config.ExemplarCap
	if capacity < 1 {
		capacity = 1
	}
	w := d.config.MaxLearnedWeight * float64(len(learned)) / float64(capacity)
	if w > d.config.MaxLearnedWeight {
		w = d.config.MaxLearnedWeight
	}
	return (1-w)*seedSim + w*maxLearned
}

func (d *Detector) snapshot() map[string][][]float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string][][]float64, len(d.learned))
	for label, r := range d.learned {
		out[label] = r.snapshot()
	}
	return out
}

// #endregion detect

// #region reinforce

// Reinforce embeds text and appends it as a learned exemplar for label when
// satisfaction exceeds the acceptance threshold.
func (d *Detector) Reinforce(ctx context.Context, text, label string, satisfaction float64) (bool, error) {
	if satisfaction <= d.config.AcceptanceThreshold {
		return false, nil
	}
	vec, err := d.embedder.Embed(ctx, text)
	if err != nil {
		return false, fmt.Errorf("reinforce %s: %w", d.spec.Name, err)
	}
	return d.ReinforceVector(vec, label, satisfaction)
}

// ReinforceVector is Reinforce for a precomputed embedding.
func (d *Detector) ReinforceVector(vec []float32, label string, satisfaction float64) (bool, error) {
	if satisfaction <= d.config.AcceptanceThreshold {
		return false, nil
	}
	d.mu.Lock()
	r, ok := d.learned[label]
	if !ok {
		d.mu.Unlock()
		return false, fmt.Errorf("reinforce %s: unknown label %q", d.spec.Name, label)
	}
	r.push(toFloat64(vec))
	sink := d.sink
	n := r.len()
	d.mu.Unlock()

	d.log.Debug("exemplar accepted", zap.String("label", label),
		zap.Float64("satisfaction", satisfaction), zap.Int("stored", n))

	if sink != nil {
		if err := sink.Append(d.spec.Name, label, vec, satisfaction); err != nil {
			return true, fmt.Errorf("persist exemplar: %w", err)
		}
	}
	return true, nil
}

// Restore loads previously persisted exemplars without re-persisting them.
func (d *Detector) Restore(label string, vecs [][]float32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.learned[label]
	if !ok {
		return fmt.Errorf("restore %s: unknown label %q", d.spec.Name, label)
	}
	for _, v := range vecs {
		r.push(toFloat64(v))
	}
	return nil
}

// LearnedCount returns how many exemplars are stored for label.
func (d *Detector) LearnedCount(label string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if r, ok := d.learned[label]; ok {
		return r.len()
	}
	return 0
}

// #endregion reinforce

// #region math

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

func centroid(vecs [][]float32) []float64 {
	if len(vecs) == 0 {
		return nil
	}
	out := make([]float64, len(vecs[0]))
	for _, v := range vecs {
		for i := range out {
			if i < len(v) {
				out[i] += float64(v[i])
			}
		}
	}
	n := float64(len(vecs))
	for i := range out {
		out[i] /= n
	}
	return out
}

// cosine returns 0 for zero-length, zero-norm or mismatched vectors.
func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	denom := math.Sqrt(na) * math.Sqrt(nb)
	if denom == 0 {
		return 0
	}
	return dot / denom
}

func softmax(xs []float64, temperature float64) []float64 {
	if temperature <= 0 {
		temperature = 1
	}
	maxX := math.Inf(-1)
	for _, x := range xs {
		if x > maxX {
			maxX = x
		}
	}
	out := make([]float64, len(xs))
	var sum float64
	for i, x := range xs {
		out[i] = math.Exp((x - maxX) / temperature)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// coherence is 1 - normalized Shannon entropy.
func coherence(probs []float64) float64 {
	if len(probs) < 2 {
		return 1
	}
	var h float64
	for _, p := range probs {
		if p > 0 {
			h -= p * math.Log(p)
		}
	}
	return clamp01(1 - h/math.Log(float64(len(probs))))
}

// topKMean averages the k strongest activations; strong presence of a few
// dimensions counts, uniform weak presence does not.
func topKMean(sims []float64, k int) float64 {
	if k <= 0 || len(sims) == 0 {
		return 0
	}
	act := make([]float64, len(sims))
	for i, s := range sims {
		act[i] = clamp01(s)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(act)))
	if k > len(act) {
		k = len(act)
	}
	var sum float64
	for _, a := range act[:k] {
		sum += a
	}
	return sum / float64(k)
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

// #endregion math
