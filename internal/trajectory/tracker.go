package trajectory

import "sync"

// Tracker keeps the most recent satisfaction scores for one session.
type Tracker struct {
	config Config

	mu     sync.Mutex
	series []float64
}

// NewTracker creates an empty tracker.
func NewTracker(config Config) *Tracker {
	return &Tracker{config: config}
}

// Observe appends a score and returns the classification of the windowed
// series.
func (t *Tracker) Observe(score float64) Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.series = append(t.series, score)
	if w := t.config.Window; w > 0 && len(t.series) > w {
		t.series = append(t.series[:0], t.series[len(t.series)-w:]...)
	}
	return t.config.Classify(t.series)
}

// Current classifies the series without adding a sample.
func (t *Tracker) Current() Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.config.Classify(t.series)
}

// Series returns a copy of the tracked scores, oldest first.
func (t *Tracker) Series() []float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]float64, len(t.series))
	copy(out, t.series)
	return out
}

// Reset clears the series.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.series = t.series[:0]
	t.mu.Unlock()
}
