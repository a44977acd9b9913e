package repository

import (
	"gorm.io/gorm"

	"github.com/mailvault/mailvault/interfaces"
	"github.com/mailvault/mailvault/internal/models"
)

type Repositories struct {
	AccountRepository     interfaces.AccountRepository
	MessageRepository     interfaces.MessageRepository
	MessageBodyRepository interfaces.MessageBodyRepository
	FolderRepository      interfaces.FolderRepository
	PgpKeyRepository      interfaces.PgpKeyRepository
	SyncStateRepository   interfaces.SyncStateRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		AccountRepository:     NewAccountRepository(db),
		MessageRepository:     NewMessageRepository(db),
		MessageBodyRepository: NewMessageBodyRepository(db),
		FolderRepository:      NewFolderRepository(db),
		PgpKeyRepository:      NewPgpKeyRepository(db),
		SyncStateRepository:   NewSyncStateRepository(db),
	}
}

func MigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Account{},
		&models.Message{},
		&models.MessageBody{},
		&models.Folder{},
		&models.PgpKey{},
		&models.FolderSyncState{},
		&models.SearchEntry{},
	)
}
