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

type messageBodyRepository struct {
	db *gorm.DB
}

func NewMessageBodyRepository(db *gorm.DB) interfaces.MessageBodyRepository {
	return &messageBodyRepository{db: db}
}

func (r *messageBodyRepository) Get(ctx context.Context, accountID, messageID string) (*models.MessageBody, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageBodyRepository.Get")
	defer span.Finish()
	tracing.TagComponentRepository(span)

	var body models.MessageBody
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND message_id = ?", accountID, messageID).
		First(&body).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &body, nil
}

// CompleteSet returns, for the given ids, which ones already have a complete
// cache entry. One query, not per-item lookups; completeness still applies
// the encrypted-signature rule in memory.
func (r *messageBodyRepository) CompleteSet(ctx context.Context, accountID string, messageIDs []string) (map[string]bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageBodyRepository.CompleteSet")
	defer span.Finish()
	tracing.TagComponentRepository(span)
	span.SetTag("count", len(messageIDs))

	result := make(map[string]bool, len(messageIDs))
	if len(messageIDs) == 0 {
		return result, nil
	}

	var bodies []models.MessageBody
	err := r.db.WithContext(ctx).
		Select("account_id", "message_id", "body").
		Where("account_id = ? AND message_id IN ?", accountID, messageIDs).
		Find(&bodies).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	for i := range bodies {
		if bodies[i].Complete() {
			result[bodies[i].MessageID] = true
		}
	}
	return result, nil
}

func (r *messageBodyRepository) Save(ctx context.Context, body *models.MessageBody) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageBodyRepository.Save")
	defer span.Finish()
	tracing.TagComponentRepository(span)

	now := utils.Now()
	if body.CreatedAt.IsZero() {
		body.CreatedAt = now
	}
	body.UpdatedAt = now

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}, {Name: "message_id"}},
			UpdateAll: true,
		}).
		Create(body).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *messageBodyRepository) Delete(ctx context.Context, accountID, messageID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageBodyRepository.Delete")
	defer span.Finish()
	tracing.TagComponentRepository(span)

	err := r.db.WithContext(ctx).
		Where("account_id = ? AND message_id = ?", accountID, messageID).
		Delete(&models.MessageBody{}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *messageBodyRepository) BulkDelete(ctx context.Context, accountID string, messageIDs []string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageBodyRepository.BulkDelete")
	defer span.Finish()
	tracing.TagComponentRepository(span)
	span.SetTag("count", len(messageIDs))

	if len(messageIDs) == 0 {
		return nil
	}

	err := r.db.WithContext(ctx).
		Where("account_id = ? AND message_id IN ?", accountID, messageIDs).
		Delete(&models.MessageBody{}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *messageBodyRepository) DeleteOldest(ctx context.Context, accountID string, n int) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageBodyRepository.DeleteOldest")
	defer span.Finish()
	tracing.TagComponentRepository(span)
	span.SetTag("count", n)

	if n <= 0 {
		return 0, nil
	}

	var ids []string
	err := r.db.WithContext(ctx).Model(&models.MessageBody{}).
		Where("account_id = ?", accountID).
		Order("updated_at ASC").
		Limit(n).
		Pluck("message_id", &ids).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	result := r.db.WithContext(ctx).
		Where("account_id = ? AND message_id IN ?", accountID, ids).
		Delete(&models.MessageBody{})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *messageBodyRepository) InvalidateAccount(ctx context.Context, accountID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageBodyRepository.InvalidateAccount")
	defer span.Finish()
	tracing.TagComponentRepository(span)

	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Delete(&models.MessageBody{}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}
