package embed

import (
	"context"
	"errors"
)

// #region errors

// ErrUpstreamUnavailable marks a failed call to the embedding or knowledge service.
// A turn that hits it is a hard failure; callers must not substitute a default classification.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// #endregion errors

// #region interfaces

// Embedder turns text into a fixed-length normalized vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher queries the semantic knowledge store. An empty result is not an error.
type Searcher interface {
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)
}

// #endregion interfaces

// #region hit

// Hit is a single knowledge-store result.
type Hit struct {
	Text       string  `json:"text"`
	Similarity float32 `json:"similarity"` // [0,1]
	Source     string  `json:"source"`
}

// #endregion hit
