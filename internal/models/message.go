package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/mailvault/mailvault/internal/utils"
)

// Message is the lightweight metadata record for a single mail message.
// It is keyed by (account_id, id) and range-queried by (account_id, folder, sent_at).
type Message struct {
	ID        string `gorm:"column:id;type:varchar(191);primaryKey"`
	AccountID string `gorm:"column:account_id;type:varchar(50);primaryKey;index:idx_messages_folder_date,priority:1"`
	Folder    string `gorm:"column:folder;type:varchar(255);index:idx_messages_folder_date,priority:2"`
	UID       uint32 `gorm:"column:uid;index"`
	MessageID string `gorm:"column:message_id;type:varchar(255);index"`

	Subject     string     `gorm:"column:subject;type:varchar(1000)"`
	FromName    string     `gorm:"column:from_name;type:varchar(255)"`
	FromAddress string     `gorm:"column:from_address;type:varchar(255);index"`
	ToAddresses StringList `gorm:"column:to_addresses;type:text"`
	CcAddresses StringList `gorm:"column:cc_addresses;type:text"`

	Flags  StringList `gorm:"column:flags;type:text"`
	Labels StringList `gorm:"column:labels;type:text"`

	HasAttachment bool `gorm:"column:has_attachment;default:false"`

	SentAt     *time.Time `gorm:"column:sent_at;index:idx_messages_folder_date,priority:3"`
	ReceivedAt *time.Time `gorm:"column:received_at"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (Message) TableName() string {
	return "messages"
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = utils.GenerateNanoIDWithPrefix("msg", 24)
	}
	m.CreatedAt = utils.Now()
	return nil
}

// Identity returns the stable value used to deduplicate this message
// across cache, server and UI: primary id, then header message-id, then UID.
func (m *Message) Identity() string {
	if m.ID != "" {
		return m.ID
	}
	if m.MessageID != "" {
		return utils.NormalizeMessageID(m.MessageID)
	}
	if m.UID != 0 {
		return fmt.Sprintf("uid:%d", m.UID)
	}
	return ""
}

func (m *Message) IsUnread() bool {
	return !m.Flags.Contains("\\Seen")
}

func (m *Message) IsStarred() bool {
	return m.Flags.Contains("\\Flagged")
}

// MetadataComplete reports whether the record carries enough header data to
// render a detail view without a metadata refresh.
func (m *Message) MetadataComplete() bool {
	return m.Subject != "" && m.FromAddress != "" && m.SentAt != nil
}

// CacheKey is the per-message resource key used by the in-flight registry
// and the debounce map.
func (m *Message) CacheKey() string {
	return fmt.Sprintf("%s:%s", m.AccountID, m.Identity())
}
