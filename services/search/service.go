package search

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mailvault/mailvault/interfaces"
	"github.com/mailvault/mailvault/internal/logger"
	"github.com/mailvault/mailvault/internal/models"
	"github.com/mailvault/mailvault/internal/tracing"
	"github.com/mailvault/mailvault/internal/utils"
)

// Service maintains the best-effort local search index. Failures here never
// fail a sync; the list engine retries once and moves on.
type Service struct {
	db  *gorm.DB
	log logger.Logger
}

func NewService(db *gorm.DB, log logger.Logger) *Service {
	return &Service{db: db, log: log}
}

func (s *Service) IndexMessages(ctx context.Context, messages []models.Message) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "search.Service.IndexMessages")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("count", len(messages))

	if len(messages) == 0 {
		return nil
	}

	entries := make([]models.SearchEntry, 0, len(messages))
	for i := range messages {
		msg := &messages[i]
		if msg.ID == "" || msg.AccountID == "" {
			continue
		}
		entries = append(entries, models.SearchEntry{
			AccountID:   msg.AccountID,
			MessageID:   msg.ID,
			Subject:     utils.NormalizeEmailSubject(msg.Subject),
			FromName:    msg.FromName,
			FromAddress: msg.FromAddress,
			Folder:      msg.Folder,
			UpdatedAt:   utils.Now(),
		})
	}
	if len(entries) == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&entries).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "indexing messages")
	}
	return nil
}

func (s *Service) RemoveFromIndex(ctx context.Context, accountID string, ids []string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "search.Service.RemoveFromIndex")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("count", len(ids))

	if len(ids) == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).
		Where("account_id = ? AND message_id IN ?", accountID, ids).
		Delete(&models.SearchEntry{}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "removing messages from index")
	}
	return nil
}

var _ interfaces.SearchIndex = (*Service)(nil)
