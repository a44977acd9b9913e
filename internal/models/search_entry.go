package models

import "time"

// SearchEntry is one row of the best-effort local search index. It mirrors
// the searchable header fields of a cached message so filtered list queries
// can match without scanning message bodies.
type SearchEntry struct {
	AccountID string `gorm:"column:account_id;type:varchar(50);primaryKey"`
	MessageID string `gorm:"column:message_id;type:varchar(191);primaryKey"`

	Subject     string `gorm:"column:subject;type:varchar(1000);index"`
	FromName    string `gorm:"column:from_name;type:varchar(255)"`
	FromAddress string `gorm:"column:from_address;type:varchar(255);index"`
	Folder      string `gorm:"column:folder;type:varchar(255);index"`

	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (SearchEntry) TableName() string {
	return "search_index"
}
