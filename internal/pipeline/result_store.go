package pipeline

import (
	"context"

	"threatchain/internal/analyzer"
)

// ResultStore persists whole analysis results for later lookup.
type ResultStore interface {
	Save(ctx context.Context, res *analyzer.Result) (string, error)
	Close() error
}

// BatchSource yields raw event payloads in batches.
type BatchSource interface {
	PopBatch(ctx context.Context, max int) ([][]byte, error)
	Close() error
}
