package interfaces

import (
	"context"

	"github.com/mailvault/mailvault/internal/models"
)

type SyncStateRepository interface {
	Get(ctx context.Context, accountID, folder string) (*models.FolderSyncState, error)
	Save(ctx context.Context, state *models.FolderSyncState) error
	DeleteByAccount(ctx context.Context, accountID string) error

	// DeleteOrphans removes states whose account is no longer configured.
	DeleteOrphans(ctx context.Context, activeAccountIDs []string) (int64, error)
}
