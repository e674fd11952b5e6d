package detector

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/adaptive-cascade/internal/embed"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// #region helpers

type countingEmbedder struct {
	inner embed.Embedder
	calls atomic.Int64
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	return c.inner.Embed(ctx, text)
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("dial: %w", embed.ErrUpstreamUnavailable)
}

func newSet(t *testing.T, mutate func(*Config)) *Set {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	s := NewSet(cfg, embed.NewHashEmbedder(384), nil)
	require.NoError(t, s.Bootstrap(context.Background()))
	return s
}

func sum(m map[string]float64) float64 {
	var s float64
	for _, v := range m {
		s += v
	}
	return s
}

// #endregion helpers

// #region detect-tests

func TestDetect_SeedPhraseDominates(t *testing.T) {
	s := newSet(t, nil)
	ctx := context.Background()

	cases := map[string]string{
		"numb empty hollow":              LabelShutdown,
		"anxious on edge panicked":       LabelMobilized,
		"calm settled steady":            LabelCalm,
		"hopeless nothing matters":       LabelShutdown,
		"relaxed at ease peaceful today": LabelCalm,
	}
	for text, want := range cases {
		t.Run(text, func(t *testing.T) {
			sv, err := s.State.Detect(ctx, text)
			require.NoError(t, err)
			assert.Equal(t, want, sv.Dominant)
			assert.Greater(t, sv.Confidence, 0.8)
			assert.InDelta(t, 1.0, sum(sv.Distribution), 1e-9)
			assert.GreaterOrEqual(t, sv.Coherence, 0.0)
			assert.LessOrEqual(t, sv.Coherence, 1.0)
			assert.Equal(t, sv.Confidence, sv.Estimate)
		})
	}
}

func TestDetect_Idempotent(t *testing.T) {
	s := newSet(t, nil)
	ctx := context.Background()

	for _, d := range s.All() {
		a, err := d.Detect(ctx, "my heart is racing and I feel so alone")
		require.NoError(t, err)
		b, err := d.Detect(ctx, "my heart is racing and I feel so alone")
		require.NoError(t, err)
		assert.Equal(t, a, b, d.Name())
	}
}

func TestDetect_UpstreamFailurePropagates(t *testing.T) {
	d := New(DefaultStateSpec(), DefaultConfig(), failingEmbedder{}, nil)
	err := d.Bootstrap(context.Background())
	require.ErrorIs(t, err, embed.ErrUpstreamUnavailable)

	_, err = d.Detect(context.Background(), "anything")
	require.ErrorIs(t, err, embed.ErrUpstreamUnavailable)
}

func TestDetectVector_NotBootstrapped(t *testing.T) {
	d := New(DefaultStateSpec(), DefaultConfig(), embed.NewHashEmbedder(8), nil)
	_, err := d.DetectVector(make([]float32, 8))
	require.ErrorIs(t, err, ErrNotBootstrapped)
}

func TestDetect_CapacityAggregatesTopThree(t *testing.T) {
	s := newSet(t, nil)
	ctx := context.Background()

	rich, err := s.Capacity.Detect(ctx, "breathing slowly feet on floor, clear thinking understand situation, choose act decide plan")
	require.NoError(t, err)
	poor, err := s.Capacity.Detect(ctx, "numb empty hollow")
	require.NoError(t, err)

	assert.Greater(t, rich.Estimate, 0.3)
	assert.Less(t, poor.Estimate, 0.15)
	assert.Len(t, rich.Activations, 8)
}

func TestSet_CategoriesAndDistance(t *testing.T) {
	s := newSet(t, nil)
	vec, _ := embed.NewHashEmbedder(384).Embed(context.Background(), "I want to end my life")
	r, err := s.Read(vec)
	require.NoError(t, err)

	assert.Contains(t, s.ActiveCategories(r), CategoryCrisis)
	assert.NotContains(t, s.ActiveCategories(r), CategoryConnection)
	assert.Greater(t, s.DistanceFromSafeCore(r), 0.8)
	assert.Len(t, r.Coherences(), 3)
}

// #endregion detect-tests

// #region reinforce-tests

func TestReinforce_BelowAcceptanceIsNoop(t *testing.T) {
	s := newSet(t, nil)
	ok, err := s.State.Reinforce(context.Background(), "garden walk sunshine", LabelCalm, 0.7)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, s.State.LearnedCount(LabelCalm))
}

func TestReinforce_UnknownLabel(t *testing.T) {
	s := newSet(t, nil)
	_, err := s.State.Reinforce(context.Background(), "garden walk", "ecstatic", 0.9)
	require.Error(t, err)
}

func TestReinforce_BoundaryDriftsTowardLearned(t *testing.T) {
	s := newSet(t, func(c *Config) { c.ExemplarCap = 4 })
	ctx := context.Background()
	text := "garden walk sunshine"

	before, err := s.State.Detect(ctx, text)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		ok, err := s.State.Reinforce(ctx, text, LabelCalm, 0.9)
		require.NoError(t, err)
		require.True(t, ok)
	}
	after, err := s.State.Detect(ctx, text)
	require.NoError(t, err)

	assert.Equal(t, LabelCalm, after.Dominant)
	assert.Greater(t, after.Distribution[LabelCalm], before.Distribution[LabelCalm])
	assert.Greater(t, after.Coherence, before.Coherence)
}

func TestReinforce_RingIsCapped(t *testing.T) {
	s := newSet(t, func(c *Config) { c.ExemplarCap = 3 })
	for i := 0; i < 10; i++ {
		_, err := s.State.ReinforceVector(make([]float32, 384), LabelMobilized, 0.95)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, s.State.LearnedCount(LabelMobilized))
}

func TestRing_OverwritesOldest(t *testing.T) {
	r := newRing(2)
	r.push([]float64{1})
	r.push([]float64{2})
	r.push([]float64{3})
	snap := r.snapshot()
	require.Len(t, snap, 2)
	assert.ElementsMatch(t, [][]float64{{3}, {2}}, snap)

	r.push([]float64{4})
	assert.ElementsMatch(t, [][]float64{{3}, {4}}, r.snapshot())
}

// #endregion reinforce-tests

// #region bootstrap-tests

func TestBootstrap_EmbedsEverySeedOnce(t *testing.T) {
	cfg := DefaultConfig()
	emb := &countingEmbedder{inner: embed.NewHashEmbedder(64)}
	s := NewSet(cfg, emb, nil)
	require.NoError(t, s.Bootstrap(context.Background()))

	want := 0
	for _, spec := range []Spec{cfg.State, cfg.Capacity, cfg.Category} {
		for _, ls := range spec.Seeds {
			want += len(ls.Phrases)
		}
	}
	assert.Equal(t, int64(want), emb.calls.Load())
}

func TestBootstrap_EmptyLabelRejected(t *testing.T) {
	spec := Spec{Name: "bad", Seeds: []LabelSeeds{{Label: "x"}}}
	d := New(spec, DefaultConfig(), embed.NewHashEmbedder(8), nil)
	require.Error(t, d.Bootstrap(context.Background()))
}

// #endregion bootstrap-tests

// #region math-tests

func TestTopKMean(t *testing.T) {
	strongFew := []float64{0.9, 0.9, 0.9, 0, 0, 0, 0, 0}
	weakAll := []float64{0.3, 0.3, 0.3, 0.3, 0.3, 0.3, 0.3, 0.3}
	assert.InDelta(t, 0.9, topKMean(strongFew, 3), 1e-12)
	assert.InDelta(t, 0.3, topKMean(weakAll, 3), 1e-12)
	assert.InDelta(t, 0.5, topKMean([]float64{0.5}, 3), 1e-12)
	assert.Zero(t, topKMean(nil, 3))
}

func TestCoherenceBounds(t *testing.T) {
	assert.InDelta(t, 0.0, coherence([]float64{0.25, 0.25, 0.25, 0.25}), 1e-12)
	assert.InDelta(t, 1.0, coherence([]float64{1, 0, 0}), 1e-12)
	assert.Equal(t, 1.0, coherence([]float64{1}))
}

func TestSoftmaxSumsToOne(t *testing.T) {
	p := softmax([]float64{0.5, 0.1, -0.2}, 0.1)
	var s float64
	for _, v := range p {
		s += v
	}
	assert.InDelta(t, 1.0, s, 1e-12)
	assert.Greater(t, p[0], p[1])
}

// #endregion math-tests

// #region exemplar-store-tests

func TestExemplarStore_RoundTripAndRestore(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "exemplars.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewExemplarStore(db)
	require.NoError(t, err)

	s := newSet(t, func(c *Config) { c.ExemplarCap = 2 })
	s.SetSink(store)

	h := embed.NewHashEmbedder(384)
	for _, text := range []string{"garden walk", "sunshine picnic", "river stroll"} {
		vec, _ := h.Embed(context.Background(), text)
		ok, err := s.State.ReinforceVector(vec, LabelCalm, 0.9)
		require.NoError(t, err)
		require.True(t, ok)
	}
	n, err := store.Count("state")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	loaded, err := store.Load("state", 2)
	require.NoError(t, err)
	require.Len(t, loaded[LabelCalm], 2)
	want, _ := h.Embed(context.Background(), "river stroll")
	assert.Equal(t, want, loaded[LabelCalm][1])

	fresh := newSet(t, func(c *Config) { c.ExemplarCap = 2 })
	restored, err := fresh.RestoreFrom(store, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, restored)
	assert.Equal(t, 2, fresh.State.LearnedCount(LabelCalm))
}

func TestVectorRoundTrip(t *testing.T) {
	original := []float32{0, 0.1, -2.5, 3.75}
	assert.Equal(t, original, decodeVector(encodeVector(original)))
}

// #endregion exemplar-store-tests
