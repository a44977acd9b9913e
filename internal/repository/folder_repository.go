package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mailvault/mailvault/interfaces"
	"github.com/mailvault/mailvault/internal/models"
	"github.com/mailvault/mailvault/internal/tracing"
	"github.com/mailvault/mailvault/internal/utils"
)

type folderRepository struct {
	db *gorm.DB
}

func NewFolderRepository(db *gorm.DB) interfaces.FolderRepository {
	return &folderRepository{db: db}
}

func (r *folderRepository) GetAll(ctx context.Context, accountID string) ([]models.Folder, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "folderRepository.GetAll")
	defer span.Finish()
	tracing.TagComponentRepository(span)

	var folders []models.Folder
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("depth ASC, path ASC").
		Find(&folders).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return folders, nil
}

func (r *folderRepository) Upsert(ctx context.Context, folder *models.Folder) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "folderRepository.Upsert")
	defer span.Finish()
	tracing.TagComponentRepository(span)

	folder.UpdatedAt = utils.Now()
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}, {Name: "path"}},
			UpdateAll: true,
		}).
		Create(folder).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *folderRepository) BulkUpsert(ctx context.Context, folders []models.Folder) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "folderRepository.BulkUpsert")
	defer span.Finish()
	tracing.TagComponentRepository(span)
	span.SetTag("count", len(folders))

	if len(folders) == 0 {
		return nil
	}

	now := utils.Now()
	for i := range folders {
		folders[i].UpdatedAt = now
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}, {Name: "path"}},
			UpdateAll: true,
		}).
		CreateInBatches(folders, 50).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *folderRepository) UpdateCounts(ctx context.Context, accountID string, unread, total map[string]int64) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "folderRepository.UpdateCounts")
	defer span.Finish()
	tracing.TagComponentRepository(span)

	folders, err := r.GetAll(ctx, accountID)
	if err != nil {
		return err
	}

	for i := range folders {
		f := &folders[i]
		newUnread := unread[f.Path]
		newTotal := total[f.Path]
		if f.UnreadCount == newUnread && f.TotalCount == newTotal {
			continue
		}
		err := r.db.WithContext(ctx).Model(&models.Folder{}).
			Where("account_id = ? AND path = ?", accountID, f.Path).
			Updates(map[string]interface{}{
				"unread_count": newUnread,
				"total_count":  newTotal,
				"updated_at":   utils.Now(),
			}).Error
		if err != nil {
			tracing.TraceErr(span, err)
			return err
		}
	}
	return nil
}
