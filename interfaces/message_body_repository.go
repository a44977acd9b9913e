package interfaces

import (
	"context"

	"github.com/mailvault/mailvault/internal/models"
)

type MessageBodyRepository interface {
	Get(ctx context.Context, accountID, messageID string) (*models.MessageBody, error)

	// CompleteSet is the bulk existence check used by the prefetch scheduler:
	// it returns the subset of ids whose cache entry is already complete.
	CompleteSet(ctx context.Context, accountID string, messageIDs []string) (map[string]bool, error)

	Save(ctx context.Context, body *models.MessageBody) error
	Delete(ctx context.Context, accountID, messageID string) error
	BulkDelete(ctx context.Context, accountID string, messageIDs []string) error

	// DeleteOldest removes the n least recently updated complete entries,
	// used by the quota eviction sweep.
	DeleteOldest(ctx context.Context, accountID string, n int) (int64, error)

	// InvalidateAccount drops every cache entry for the account, used when
	// encryption keys change or the account signs out.
	InvalidateAccount(ctx context.Context, accountID string) error
}
