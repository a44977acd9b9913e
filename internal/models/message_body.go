package models

import (
	"database/sql/driver"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/mailvault/mailvault/internal/utils"
)

// Attachment describes a single attachment of a cached body. Content bytes
// are not stored here; descriptors are enough to render the list.
type Attachment struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	ContentID   string `json:"contentId,omitempty"`
	Inline      bool   `json:"inline,omitempty"`
}

type AttachmentList []Attachment

func (l AttachmentList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]Attachment{})
	}
	return json.Marshal([]Attachment(l))
}

func (l *AttachmentList) Scan(value interface{}) error {
	if value == nil {
		*l = AttachmentList{}
		return nil
	}

	bytes, ok := normalizeToBytes(value)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, l)
}

// MessageBody is the derived cache entry for a message detail view:
// sanitized rendered body, raw source, extracted text, attachment
// descriptors and sanitization counters.
type MessageBody struct {
	AccountID string `gorm:"column:account_id;type:varchar(50);primaryKey"`
	MessageID string `gorm:"column:message_id;type:varchar(191);primaryKey"`

	Body        string         `gorm:"column:body;type:text"`
	RawSource   string         `gorm:"column:raw_source;type:text"`
	TextContent string         `gorm:"column:text_content;type:text"`
	Attachments AttachmentList `gorm:"column:attachments;type:text"`

	TrackingPixelCount int  `gorm:"column:tracking_pixel_count;default:0"`
	BlockedImageCount  int  `gorm:"column:blocked_image_count;default:0"`
	Decrypted          bool `gorm:"column:decrypted;default:false"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (MessageBody) TableName() string {
	return "message_bodies"
}

// Corrupted reports whether the body carries double-encoded content, the
// footprint of a write that serialized an already-serialized render: a body
// stored as a JSON string literal, or markup whose entities were escaped
// twice. Readers treat such entries as cache misses and delete them.
func (b *MessageBody) Corrupted() bool {
	if b == nil {
		return false
	}
	body := strings.TrimSpace(b.Body)
	if body == "" {
		return false
	}
	if strings.HasPrefix(body, `"`) && strings.HasSuffix(body, `"`) && len(body) > 1 {
		if inner, err := strconv.Unquote(body); err == nil && inner != body {
			return true
		}
	}
	return strings.Contains(body, "&amp;lt;") && !strings.ContainsRune(body, '<')
}

// Complete reports whether the entry can be served as a final render.
// A body carrying the encrypted-message signature is never complete,
// regardless of how it got persisted.
func (b *MessageBody) Complete() bool {
	if b == nil || b.Body == "" {
		return false
	}
	return !utils.IsEncryptedContent(b.Body)
}

// EncryptedSource returns the armored text to feed the decrypt pipeline.
// The raw source takes precedence over a body column that was miscategorized
// as rendered output by an earlier defect.
func (b *MessageBody) EncryptedSource() string {
	if b == nil {
		return ""
	}
	if utils.IsEncryptedContent(b.RawSource) {
		return b.RawSource
	}
	if utils.IsEncryptedContent(b.Body) {
		return b.Body
	}
	return ""
}
