package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID                string    `gorm:"type:uuid;primaryKey" json:"id"`
	Email             string    `gorm:"uniqueIndex;not null" json:"email"`
	Password          string    `json:"-"`
	DisplayName       string    `json:"display_name"`
	PreferredCurrency string    `gorm:"size:3;default:USD" json:"preferred_currency"`
	Timezone          string    `gorm:"default:UTC" json:"timezone"`
	DateFormat        string    `gorm:"default:YYYY-MM-DD" json:"date_format"`
	IsStaff           bool      `gorm:"default:false" json:"is_staff"`
	IsActive          bool      `gorm:"default:true" json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// PasswordResetToken is single-use and expires one hour after creation.
type PasswordResetToken struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	UserID    string `gorm:"type:uuid;index;not null"`
	User      User
	Token     string `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time
	UsedAt    *time.Time
}

func (t *PasswordResetToken) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}
