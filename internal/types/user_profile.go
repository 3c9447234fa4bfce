package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserProfile is one learner variable scoped to a shifu; the variable store
// read by templates and goto blocks and written by input/options blocks.
type UserProfile struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserBID   string         `gorm:"column:user_bid;not null;index:idx_profile_key,unique" json:"user_bid"`
	ShifuBID  string         `gorm:"column:shifu_bid;not null;index:idx_profile_key,unique" json:"shifu_bid"`
	Key       string         `gorm:"column:key;not null;index:idx_profile_key,unique" json:"key"`
	Value     string         `gorm:"column:value" json:"value"`
	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (UserProfile) TableName() string { return "user_profile" }
