package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/mailvault/mailvault/internal/utils"
)

// PgpKey holds an armored private key configured for an account.
// Passphrases are never persisted here; see the session passphrase cache
// and the keyring-backed passphrase store.
type PgpKey struct {
	ID        string `gorm:"column:id;type:varchar(50);primaryKey"`
	AccountID string `gorm:"column:account_id;type:varchar(50);index"`
	Name      string `gorm:"column:name;type:varchar(255)"`

	PublicKey  string `gorm:"column:public_key;type:text"`
	PrivateKey string `gorm:"column:private_key;type:text"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (PgpKey) TableName() string {
	return "pgp_keys"
}

func (k *PgpKey) BeforeCreate(tx *gorm.DB) error {
	if k.ID == "" {
		k.ID = utils.GenerateNanoIDWithPrefix("key", 16)
	}
	k.CreatedAt = utils.Now()
	return nil
}
