package repository

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mailvault/mailvault/interfaces"
	"github.com/mailvault/mailvault/internal/enum"
	"github.com/mailvault/mailvault/internal/models"
	"github.com/mailvault/mailvault/internal/tracing"
	"github.com/mailvault/mailvault/internal/utils"
)

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) interfaces.MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) GetByID(ctx context.Context, accountID, id string) (*models.Message, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentRepository(span)

	var message models.Message
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND id = ?", accountID, id).
		First(&message).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &message, nil
}

func (r *messageRepository) GetByUID(ctx context.Context, accountID string, uid uint32) (*models.Message, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.GetByUID")
	defer span.Finish()
	tracing.TagComponentRepository(span)

	var message models.Message
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND uid = ?", accountID, uid).
		First(&message).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &message, nil
}

func (r *messageRepository) GetByMessageID(ctx context.Context, accountID, messageID string) (*models.Message, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.GetByMessageID")
	defer span.Finish()
	tracing.TagComponentRepository(span)

	var message models.Message
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND message_id = ?", accountID, utils.NormalizeMessageID(messageID)).
		First(&message).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &message, nil
}

func (r *messageRepository) GetByIDs(ctx context.Context, accountID string, ids []string) ([]models.Message, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.GetByIDs")
	defer span.Finish()
	tracing.TagComponentRepository(span)

	if len(ids) == 0 {
		return nil, nil
	}

	var messages []models.Message
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND id IN ?", accountID, ids).
		Find(&messages).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return messages, nil
}

// GetPage serves the persistent list read. Date orders use the
// (account, folder, sent_at) index directly; any other order falls back to
// loading the folder and sorting in memory.
func (r *messageRepository) GetPage(ctx context.Context, accountID string, query models.ListQuery) ([]models.Message, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.GetPage")
	defer span.Finish()
	tracing.TagComponentRepository(span)
	span.SetTag("folder", query.Folder)
	span.SetTag("page", query.Page)

	tx := r.db.WithContext(ctx).
		Where("account_id = ? AND folder = ?", accountID, query.Folder)

	if query.Search != "" {
		like := "%" + strings.ToLower(query.Search) + "%"
		tx = tx.Where(
			"LOWER(subject) LIKE ? OR LOWER(from_address) LIKE ? OR LOWER(from_name) LIKE ?",
			like, like, like,
		)
	}
	if query.HasAttachment {
		tx = tx.Where("has_attachment = ?", true)
	}

	indexed := query.Sort.ByDate() && !query.UnreadOnly
	if indexed {
		order := "sent_at DESC"
		if query.Sort == enum.SortDateAsc {
			order = "sent_at ASC"
		}
		var messages []models.Message
		err := tx.Order(order).
			Offset(query.Offset()).
			Limit(query.Limit).
			Find(&messages).Error
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
		return messages, nil
	}

	// Unread filtering inspects the JSON flags column and non-date orders
	// have no covering index, so scan the folder and page in memory.
	var all []models.Message
	if err := tx.Find(&all).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	if query.UnreadOnly {
		filtered := all[:0]
		for _, m := range all {
			if m.IsUnread() {
				filtered = append(filtered, m)
			}
		}
		all = filtered
	}

	sortMessages(all, query.Sort)

	start := query.Offset()
	if start >= len(all) {
		return nil, nil
	}
	end := start + query.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], nil
}

func sortMessages(messages []models.Message, order enum.SortOrder) {
	sort.SliceStable(messages, func(i, j int) bool {
		a, b := messages[i], messages[j]
		switch order {
		case enum.SortDateAsc:
			return utils.GetOrDefault(a.SentAt, zeroTime).Before(utils.GetOrDefault(b.SentAt, zeroTime))
		case enum.SortSubjectAsc:
			return strings.ToLower(a.Subject) < strings.ToLower(b.Subject)
		case enum.SortSubjectDesc:
			return strings.ToLower(a.Subject) > strings.ToLower(b.Subject)
		case enum.SortFromAsc:
			return strings.ToLower(a.FromAddress) < strings.ToLower(b.FromAddress)
		default: // date desc
			return utils.GetOrDefault(a.SentAt, zeroTime).After(utils.GetOrDefault(b.SentAt, zeroTime))
		}
	})
}

func (r *messageRepository) CountByFolder(ctx context.Context, accountID, folder string) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.CountByFolder")
	defer span.Finish()
	tracing.TagComponentRepository(span)

	var count int64
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("account_id = ? AND folder = ?", accountID, folder).
		Count(&count).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}
	return count, nil
}

func (r *messageRepository) IDsByFolder(ctx context.Context, accountID, folder string) ([]string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.IDsByFolder")
	defer span.Finish()
	tracing.TagComponentRepository(span)

	var ids []string
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("account_id = ? AND folder = ?", accountID, folder).
		Pluck("id", &ids).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return ids, nil
}

func (r *messageRepository) Upsert(ctx context.Context, message *models.Message) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.Upsert")
	defer span.Finish()
	tracing.TagComponentRepository(span)

	message.UpdatedAt = utils.Now()
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}, {Name: "id"}},
			UpdateAll: true,
		}).
		Create(message).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *messageRepository) BulkUpsert(ctx context.Context, messages []models.Message) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.BulkUpsert")
	defer span.Finish()
	tracing.TagComponentRepository(span)
	span.SetTag("count", len(messages))

	if len(messages) == 0 {
		return nil
	}

	now := utils.Now()
	for i := range messages {
		messages[i].UpdatedAt = now
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}, {Name: "id"}},
			UpdateAll: true,
		}).
		CreateInBatches(messages, 100).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *messageRepository) Delete(ctx context.Context, accountID, id string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.Delete")
	defer span.Finish()
	tracing.TagComponentRepository(span)

	err := r.db.WithContext(ctx).
		Where("account_id = ? AND id = ?", accountID, id).
		Delete(&models.Message{}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *messageRepository) BulkDelete(ctx context.Context, accountID string, ids []string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.BulkDelete")
	defer span.Finish()
	tracing.TagComponentRepository(span)
	span.SetTag("count", len(ids))

	if len(ids) == 0 {
		return nil
	}

	err := r.db.WithContext(ctx).
		Where("account_id = ? AND id IN ?", accountID, ids).
		Delete(&models.Message{}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *messageRepository) DeleteByAccount(ctx context.Context, accountID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.DeleteByAccount")
	defer span.Finish()
	tracing.TagComponentRepository(span)

	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Delete(&models.Message{}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *messageRepository) UnreadCountsByFolder(ctx context.Context, accountID string) (map[string]int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.UnreadCountsByFolder")
	defer span.Finish()
	tracing.TagComponentRepository(span)

	// Flags are a JSON text column; unread is the absence of \Seen. The
	// folder set is small so counting in memory beats a LIKE over JSON.
	var all []models.Message
	err := r.db.WithContext(ctx).
		Select("folder", "flags").
		Where("account_id = ?", accountID).
		Find(&all).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	counts := make(map[string]int64)
	for _, m := range all {
		if m.IsUnread() {
			counts[m.Folder]++
		}
	}
	return counts, nil
}

func (r *messageRepository) TotalCountsByFolder(ctx context.Context, accountID string) (map[string]int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.TotalCountsByFolder")
	defer span.Finish()
	tracing.TagComponentRepository(span)

	type row struct {
		Folder string
		Total  int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Select("folder, COUNT(*) as total").
		Where("account_id = ?", accountID).
		Group("folder").
		Scan(&rows).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Folder] = r.Total
	}
	return counts, nil
}

var zeroTime time.Time
