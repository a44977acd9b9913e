package interfaces

import (
	"context"

	"github.com/mailvault/mailvault/internal/models"
)

type AccountRepository interface {
	GetAll(ctx context.Context) ([]models.Account, error)
	GetByID(ctx context.Context, id string) (*models.Account, error)
	Save(ctx context.Context, account *models.Account) error
}
