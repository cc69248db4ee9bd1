package deduplication

import (
	"context"
	"time"

	"hush/pkg/models"
)

// Embedder turns message text into a vector. Implementations bound the call
// by the context deadline.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Result is the outcome of a duplicate check. HistoryErr and EmbeddingErr
// record skipped sub-checks; the check itself never fails.
type Result struct {
	Kind        models.DuplicateKind
	Score       float64
	Fingerprint string
	Embedding   []float32

	// Claimed is set when this check holds the fingerprint claim.
	Claimed bool

	// DigestKey is set when a near-duplicate from the same source can be
	// folded into a pending digest flushed at DigestAt.
	DigestKey string
	DigestAt  time.Time

	HistoryErr   error
	EmbeddingErr error
}

func (r Result) IsDuplicate() bool {
	return r.Kind == models.DuplicateExact || r.Kind == models.DuplicateNear
}

// recentEntry is one element of the per-user recent-send list.
type recentEntry struct {
	Fingerprint string    `json:"fingerprint"`
	Embedding   []float32 `json:"embedding"`
	Source      string    `json:"source"`
	SentAt      time.Time `json:"sent_at"`
}
