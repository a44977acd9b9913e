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
)

type syncStateRepository struct {
	db *gorm.DB
}

func NewSyncStateRepository(db *gorm.DB) interfaces.SyncStateRepository {
	return &syncStateRepository{db: db}
}

func (r *syncStateRepository) Get(ctx context.Context, accountID, folder string) (*models.FolderSyncState, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncStateRepository.Get")
	defer span.Finish()
	tracing.TagComponentRepository(span)

	var state models.FolderSyncState
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND folder = ?", accountID, folder).
		First(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &state, nil
}

func (r *syncStateRepository) Save(ctx context.Context, state *models.FolderSyncState) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncStateRepository.Save")
	defer span.Finish()
	tracing.TagComponentRepository(span)

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}, {Name: "folder"}},
			UpdateAll: true,
		}).
		Create(state).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *syncStateRepository) DeleteByAccount(ctx context.Context, accountID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncStateRepository.DeleteByAccount")
	defer span.Finish()
	tracing.TagComponentRepository(span)

	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Delete(&models.FolderSyncState{}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *syncStateRepository) DeleteOrphans(ctx context.Context, activeAccountIDs []string) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncStateRepository.DeleteOrphans")
	defer span.Finish()
	tracing.TagComponentRepository(span)

	tx := r.db.WithContext(ctx)
	if len(activeAccountIDs) > 0 {
		tx = tx.Where("account_id NOT IN ?", activeAccountIDs)
	} else {
		tx = tx.Where("1 = 1")
	}

	result := tx.Delete(&models.FolderSyncState{})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
