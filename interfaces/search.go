package interfaces

import (
	"context"

	"github.com/mailvault/mailvault/internal/models"
)

// SearchIndex is the best-effort full-text index. Callers retry a failed
// call at most once and otherwise swallow errors.
type SearchIndex interface {
	IndexMessages(ctx context.Context, messages []models.Message) error
	RemoveFromIndex(ctx context.Context, accountID string, ids []string) error
}
