package interfaces

import (
	"context"

	"github.com/mailvault/mailvault/internal/models"
)

type MessageRepository interface {
	GetByID(ctx context.Context, accountID, id string) (*models.Message, error)
	GetByUID(ctx context.Context, accountID string, uid uint32) (*models.Message, error)
	GetByMessageID(ctx context.Context, accountID, messageID string) (*models.Message, error)
	GetByIDs(ctx context.Context, accountID string, ids []string) ([]models.Message, error)

	// GetPage serves the persistent read of the list sync engine: an ordered
	// range query when the sort can use the (account, folder, date) index,
	// a scan-and-sort otherwise. Filters from the query apply.
	GetPage(ctx context.Context, accountID string, query models.ListQuery) ([]models.Message, error)
	CountByFolder(ctx context.Context, accountID, folder string) (int64, error)
	IDsByFolder(ctx context.Context, accountID, folder string) ([]string, error)

	Upsert(ctx context.Context, message *models.Message) error
	BulkUpsert(ctx context.Context, messages []models.Message) error
	Delete(ctx context.Context, accountID, id string) error
	BulkDelete(ctx context.Context, accountID string, ids []string) error
	DeleteByAccount(ctx context.Context, accountID string) error

	UnreadCountsByFolder(ctx context.Context, accountID string) (map[string]int64, error)
	TotalCountsByFolder(ctx context.Context, accountID string) (map[string]int64, error)
}
