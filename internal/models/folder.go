package models

import (
	"strings"
	"time"
)

// Folder is a mailbox folder. Unread and total counts are derived from the
// local message set after first sync, not taken from the server.
type Folder struct {
	AccountID string `gorm:"column:account_id;type:varchar(50);primaryKey"`
	Path      string `gorm:"column:path;type:varchar(255);primaryKey"`
	Name      string `gorm:"column:name;type:varchar(255)"`
	Depth     int    `gorm:"column:depth;default:0"`

	UnreadCount int64 `gorm:"column:unread_count;default:0"`
	TotalCount  int64 `gorm:"column:total_count;default:0"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (Folder) TableName() string {
	return "folders"
}

const InboxPath = "INBOX"

// IsInbox reports whether this folder is the primary inbox.
func (f *Folder) IsInbox() bool {
	return strings.EqualFold(f.Path, InboxPath)
}
