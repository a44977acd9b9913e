package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/mailvault/mailvault/internal/utils"
)

// Account is a configured mail account.
type Account struct {
	ID       string `gorm:"column:id;type:varchar(50);primaryKey"`
	Email    string `gorm:"column:email;type:varchar(255);uniqueIndex"`
	APIToken string `gorm:"column:api_token;type:varchar(255)"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = utils.GenerateNanoIDWithPrefix("acct", 16)
	}
	a.CreatedAt = utils.Now()
	return nil
}
