package interfaces

import (
	"context"

	"github.com/mailvault/mailvault/internal/models"
)

// PrefetchOptions tune a prefetch batch.
type PrefetchOptions struct {
	Limit       int
	Concurrency int
	Folder      string
	Prioritize  bool
}

// PrefetchService warms message bodies in the background, priority-ordered
// and quota-aware.
type PrefetchService interface {
	PrefetchBodies(ctx context.Context, messages []models.Message, opts PrefetchOptions) (fetched int, err error)
}
