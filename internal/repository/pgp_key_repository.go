package repository

import (
	"context"
	"errors"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mailvault/mailvault/interfaces"
	"github.com/mailvault/mailvault/internal/models"
	"github.com/mailvault/mailvault/internal/tracing"
	"github.com/mailvault/mailvault/internal/utils"
)

type pgpKeyRepository struct {
	db *gorm.DB
}

func NewPgpKeyRepository(db *gorm.DB) interfaces.PgpKeyRepository {
	return &pgpKeyRepository{db: db}
}

func (r *pgpKeyRepository) GetByAccount(ctx context.Context, accountID string) ([]models.PgpKey, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "pgpKeyRepository.GetByAccount")
	defer span.Finish()
	tracing.TagComponentRepository(span)

	var keys []models.PgpKey
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at ASC").
		Find(&keys).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return keys, nil
}

func (r *pgpKeyRepository) GetByName(ctx context.Context, accountID, name string) (*models.PgpKey, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "pgpKeyRepository.GetByName")
	defer span.Finish()
	tracing.TagComponentRepository(span)

	var key models.PgpKey
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND name = ?", accountID, name).
		First(&key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &key, nil
}

func (r *pgpKeyRepository) Save(ctx context.Context, key *models.PgpKey) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "pgpKeyRepository.Save")
	defer span.Finish()
	tracing.TagComponentRepository(span)

	key.UpdatedAt = utils.Now()
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(key).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *pgpKeyRepository) Delete(ctx context.Context, accountID, id string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "pgpKeyRepository.Delete")
	defer span.Finish()
	tracing.TagComponentRepository(span)

	err := r.db.WithContext(ctx).
		Where("account_id = ? AND id = ?", accountID, id).
		Delete(&models.PgpKey{}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}
