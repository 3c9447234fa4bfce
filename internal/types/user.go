package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID           uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	BID          string         `gorm:"column:bid;not null;uniqueIndex" json:"bid"`
	Email        string         `gorm:"column:email;index" json:"email"`
	Mobile       string         `gorm:"column:mobile;index" json:"mobile"`
	PasswordHash string         `gorm:"column:password_hash" json:"-"`
	Paid         bool           `gorm:"column:paid;not null;default:false" json:"paid"`
	CreatedAt    time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (User) TableName() string { return "user" }
