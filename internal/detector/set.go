package detector

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/adaptive-cascade/internal/embed"
)

// #region set

// Set bundles the three detectors a turn runs through. Order is fixed and
// matches the coupling matrix rows: state, capacity, category.
type Set struct {
	State    *Detector
	Capacity *Detector
	Category *Detector
	config   Config
}

// NewSet builds all detectors from config.
func NewSet(config Config, embedder embed.Embedder, logger *zap.Logger) *Set {
	return &Set{
		State:    New(config.State, config, embedder, logger),
		Capacity: New(config.Capacity, config, embedder, logger),
		Category: New(config.Category, config, embedder, logger),
		config:   config,
	}
}

// All returns the detectors in coupling-matrix order.
func (s *Set) All() []*Detector {
	return []*Detector{s.State, s.Capacity, s.Category}
}

// Names returns detector names in coupling-matrix order.
func (s *Set) Names() []string {
	all := s.All()
	out := make([]string, len(all))
	for i, d := range all {
		out[i] = d.Name()
	}
	return out
}

// Config returns the detector configuration the set was built with.
func (s *Set) Config() Config { return s.config }

// Bootstrap bootstraps every detector concurrently.
func (s *Set) Bootstrap(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, d := range s.All() {
		g.Go(func() error { return d.Bootstrap(gctx) })
	}
	return g.Wait()
}

// SetSink attaches the same exemplar sink to every detector.
func (s *Set) SetSink(sink ExemplarSink) {
	for _, d := range s.All() {
		d.SetSink(sink)
	}
}

// #endregion set

// #region reading

// Reading is the result of running every detector on one embedding.
type Reading struct {
	State    StateVector
	Capacity StateVector
	Category StateVector
}

// Coherences returns per-detector coherence in coupling-matrix order.
func (r Reading) Coherences() []float64 {
	return []float64{r.State.Coherence, r.Capacity.Coherence, r.Category.Coherence}
}

// Read runs all detectors on a precomputed embedding.
func (s *Set) Read(vec []float32) (Reading, error) {
	var r Reading
	var err error
	if r.State, err = s.State.DetectVector(vec); err != nil {
		return Reading{}, fmt.Errorf("state: %w", err)
	}
	if r.Capacity, err = s.Capacity.DetectVector(vec); err != nil {
		return Reading{}, fmt.Errorf("capacity: %w", err)
	}
	if r.Category, err = s.Category.DetectVector(vec); err != nil {
		return Reading{}, fmt.Errorf("category: %w", err)
	}
	return r, nil
}

// ActiveCategories returns the categories at or above the activation threshold.
func (s *Set) ActiveCategories(r Reading) []string {
	return r.Category.Active(s.Category.labels, s.config.ActivationThreshold)
}

// DistanceFromSafeCore maps the safe-core category activation to a distance in [0,1].
func (s *Set) DistanceFromSafeCore(r Reading) float64 {
	return clamp01(1 - r.Category.Activations[CategoryConnection])
}

// #endregion reading

// #region restore

// RestoreFrom loads persisted exemplars for every detector. Labels a detector
// no longer has are skipped with a warning.
func (s *Set) RestoreFrom(store *ExemplarStore, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	total := 0
	for _, d := range s.All() {
		byLabel, err := store.Load(d.Name(), s.config.ExemplarCap)
		if err != nil {
			return total, err
		}
		for label, vecs := range byLabel {
			if err := d.Restore(label, vecs); err != nil {
				logger.Warn("skipping persisted exemplars", zap.String("detector", d.Name()), zap.Error(err))
				continue
			}
			total += len(vecs)
		}
	}
	return total, nil
}

// #endregion restore
