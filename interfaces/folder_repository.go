package interfaces

import (
	"context"

	"github.com/mailvault/mailvault/internal/models"
)

type FolderRepository interface {
	GetAll(ctx context.Context, accountID string) ([]models.Folder, error)
	Upsert(ctx context.Context, folder *models.Folder) error
	BulkUpsert(ctx context.Context, folders []models.Folder) error

	// UpdateCounts refreshes the derived unread/total counters.
	UpdateCounts(ctx context.Context, accountID string, unread, total map[string]int64) error
}
