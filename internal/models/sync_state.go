package models

import "time"

// FolderSyncState tracks the last reconciliation of a folder.
type FolderSyncState struct {
	AccountID string `gorm:"column:account_id;type:varchar(50);primaryKey"`
	Folder    string `gorm:"column:folder;type:varchar(255);primaryKey"`

	LastSyncAt time.Time `gorm:"column:last_sync_at"`
	LastTotal  int64     `gorm:"column:last_total;default:0"`
}

func (FolderSyncState) TableName() string {
	return "folder_sync_states"
}
