package plugin

import (
	"context"

	"dvsorder/internal/cvr"
	"dvsorder/internal/search"
)

// Detector is the interface every dvsorder detector must implement.
type Detector interface {
	// Name returns the detector's canonical short identifier (e.g. "shuffle").
	Name() string

	// Detect analyzes one batch and returns the best explanation of its
	// order. Errors describe why the batch could not be explained; the
	// returned Result still carries whatever statistics were gathered.
	// Detect must be safe to call concurrently for different batches.
	Detect(ctx context.Context, b *cvr.Batch) (search.Result, error)
}
