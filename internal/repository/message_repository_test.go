package repository

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mailvault/mailvault/internal/enum"
	"github.com/mailvault/mailvault/internal/models"
)

var dbCounter atomic.Int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:repotest%d?mode=memory&cache=shared", dbCounter.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, MigrateDB(db))
	return db
}

func seedMessage(id, folder, subject string, sentAt time.Time, seen bool) models.Message {
	flags := models.StringList{}
	if seen {
		flags = models.StringList{"\\Seen"}
	}
	return models.Message{
		ID:        id,
		AccountID: "acct-1",
		Folder:    folder,
		Subject:   subject,
		Flags:     flags,
		SentAt:    &sentAt,
	}
}

func TestMessageRepository_UpsertAndGet(t *testing.T) {
	repo := NewMessageRepository(newTestDB(t))
	ctx := context.Background()

	msg := seedMessage("m1", "INBOX", "first", time.Now(), false)
	msg.UID = 42
	msg.MessageID = "abc@mail.example"
	require.NoError(t, repo.Upsert(ctx, &msg))

	byID, err := repo.GetByID(ctx, "acct-1", "m1")
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "first", byID.Subject)

	byUID, err := repo.GetByUID(ctx, "acct-1", 42)
	require.NoError(t, err)
	require.NotNil(t, byUID)
	assert.Equal(t, "m1", byUID.ID)

	// Lookup normalizes the angle-bracket form.
	byMessageID, err := repo.GetByMessageID(ctx, "acct-1", "<abc@mail.example>")
	require.NoError(t, err)
	require.NotNil(t, byMessageID)
	assert.Equal(t, "m1", byMessageID.ID)

	// Second upsert on the same key updates in place.
	msg.Subject = "updated"
	require.NoError(t, repo.Upsert(ctx, &msg))

	again, err := repo.GetByID(ctx, "acct-1", "m1")
	require.NoError(t, err)
	assert.Equal(t, "updated", again.Subject)

	count, err := repo.CountByFolder(ctx, "acct-1", "INBOX")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMessageRepository_GetMissingIsNilNil(t *testing.T) {
	repo := NewMessageRepository(newTestDB(t))

	msg, err := repo.GetByID(context.Background(), "acct-1", "absent")
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestMessageRepository_AccountIsolation(t *testing.T) {
	repo := NewMessageRepository(newTestDB(t))
	ctx := context.Background()

	mine := seedMessage("m1", "INBOX", "mine", time.Now(), false)
	require.NoError(t, repo.Upsert(ctx, &mine))

	other, err := repo.GetByID(ctx, "acct-2", "m1")
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestMessageRepository_GetPage_DateOrderAndPaging(t *testing.T) {
	repo := NewMessageRepository(newTestDB(t))
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	var batch []models.Message
	for i := 0; i < 5; i++ {
		batch = append(batch, seedMessage(
			fmt.Sprintf("m%d", i), "INBOX", fmt.Sprintf("subject %d", i),
			base.Add(time.Duration(i)*time.Hour), false,
		))
	}
	require.NoError(t, repo.BulkUpsert(ctx, batch))

	page1, err := repo.GetPage(ctx, "acct-1", models.ListQuery{Folder: "INBOX", Page: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.Equal(t, "m4", page1[0].ID)
	assert.Equal(t, "m3", page1[1].ID)

	page2, err := repo.GetPage(ctx, "acct-1", models.ListQuery{Folder: "INBOX", Page: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.Equal(t, "m2", page2[0].ID)

	asc, err := repo.GetPage(ctx, "acct-1", models.ListQuery{
		Folder: "INBOX", Page: 1, Limit: 2, Sort: enum.SortDateAsc,
	})
	require.NoError(t, err)
	require.Len(t, asc, 2)
	assert.Equal(t, "m0", asc[0].ID)
}

func TestMessageRepository_GetPage_UnreadScanPath(t *testing.T) {
	repo := NewMessageRepository(newTestDB(t))
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.BulkUpsert(ctx, []models.Message{
		seedMessage("seen-1", "INBOX", "a", base.Add(3*time.Hour), true),
		seedMessage("unread-1", "INBOX", "b", base.Add(2*time.Hour), false),
		seedMessage("unread-2", "INBOX", "c", base.Add(time.Hour), false),
	}))

	unread, err := repo.GetPage(ctx, "acct-1", models.ListQuery{
		Folder: "INBOX", Page: 1, Limit: 10, UnreadOnly: true,
	})
	require.NoError(t, err)
	require.Len(t, unread, 2)
	assert.Equal(t, "unread-1", unread[0].ID)
	assert.Equal(t, "unread-2", unread[1].ID)

	beyond, err := repo.GetPage(ctx, "acct-1", models.ListQuery{
		Folder: "INBOX", Page: 5, Limit: 10, UnreadOnly: true,
	})
	require.NoError(t, err)
	assert.Empty(t, beyond)
}

func TestMessageRepository_GetPage_SearchFilter(t *testing.T) {
	repo := NewMessageRepository(newTestDB(t))
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	invoice := seedMessage("m1", "INBOX", "Your Invoice #42", base, false)
	newsletter := seedMessage("m2", "INBOX", "Weekly digest", base.Add(time.Hour), false)
	newsletter.FromAddress = "news@example.com"
	require.NoError(t, repo.BulkUpsert(ctx, []models.Message{invoice, newsletter}))

	bySubject, err := repo.GetPage(ctx, "acct-1", models.ListQuery{
		Folder: "INBOX", Page: 1, Limit: 10, Search: "invoice",
	})
	require.NoError(t, err)
	require.Len(t, bySubject, 1)
	assert.Equal(t, "m1", bySubject[0].ID)

	bySender, err := repo.GetPage(ctx, "acct-1", models.ListQuery{
		Folder: "INBOX", Page: 1, Limit: 10, Search: "NEWS@",
	})
	require.NoError(t, err)
	require.Len(t, bySender, 1)
	assert.Equal(t, "m2", bySender[0].ID)
}

func TestMessageRepository_GetPage_SubjectSort(t *testing.T) {
	repo := NewMessageRepository(newTestDB(t))
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.BulkUpsert(ctx, []models.Message{
		seedMessage("m1", "INBOX", "banana", base, false),
		seedMessage("m2", "INBOX", "Apple", base.Add(time.Hour), false),
		seedMessage("m3", "INBOX", "cherry", base.Add(2*time.Hour), false),
	}))

	sorted, err := repo.GetPage(ctx, "acct-1", models.ListQuery{
		Folder: "INBOX", Page: 1, Limit: 10, Sort: enum.SortSubjectAsc,
	})
	require.NoError(t, err)
	require.Len(t, sorted, 3)
	assert.Equal(t, "Apple", sorted[0].Subject)
	assert.Equal(t, "banana", sorted[1].Subject)
	assert.Equal(t, "cherry", sorted[2].Subject)
}

func TestMessageRepository_BulkDeleteAndIDs(t *testing.T) {
	repo := NewMessageRepository(newTestDB(t))
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.BulkUpsert(ctx, []models.Message{
		seedMessage("m1", "INBOX", "a", base, false),
		seedMessage("m2", "INBOX", "b", base, false),
		seedMessage("m3", "Archive", "c", base, false),
	}))

	require.NoError(t, repo.BulkDelete(ctx, "acct-1", []string{"m1"}))

	ids, err := repo.IDsByFolder(ctx, "acct-1", "INBOX")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"m2"}, ids)

	require.NoError(t, repo.DeleteByAccount(ctx, "acct-1"))
	count, err := repo.CountByFolder(ctx, "acct-1", "Archive")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestMessageRepository_CountsByFolder(t *testing.T) {
	repo := NewMessageRepository(newTestDB(t))
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.BulkUpsert(ctx, []models.Message{
		seedMessage("m1", "INBOX", "a", base, false),
		seedMessage("m2", "INBOX", "b", base, true),
		seedMessage("m3", "Archive", "c", base, false),
	}))

	unread, err := repo.UnreadCountsByFolder(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread["INBOX"])
	assert.Equal(t, int64(1), unread["Archive"])

	totals, err := repo.TotalCountsByFolder(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), totals["INBOX"])
	assert.Equal(t, int64(1), totals["Archive"])
}
