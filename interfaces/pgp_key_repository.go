package interfaces

import (
	"context"

	"github.com/mailvault/mailvault/internal/models"
)

type PgpKeyRepository interface {
	GetByAccount(ctx context.Context, accountID string) ([]models.PgpKey, error)
	GetByName(ctx context.Context, accountID, name string) (*models.PgpKey, error)
	Save(ctx context.Context, key *models.PgpKey) error
	Delete(ctx context.Context, accountID, id string) error
}
