package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	BlockTypeContent   = "content"
	BlockTypeInput     = "input"
	BlockTypeOptions   = "options"
	BlockTypeGoto      = "goto"
	BlockTypeButton    = "button"
	BlockTypeLogin     = "login"
	BlockTypePhone     = "phone"
	BlockTypeCheckcode = "checkcode"
	BlockTypePayment   = "payment"
)

// Block is the smallest schedulable unit of interaction inside a leaf
// outline item. Payload holds the type-specific configuration.
type Block struct {
	ID         uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	BID        string         `gorm:"column:bid;not null;index:idx_block_bid_variant,unique" json:"bid"`
	Variant    string         `gorm:"column:variant;not null;index:idx_block_bid_variant,unique" json:"variant"`
	OutlineBID string         `gorm:"column:outline_bid;not null;index" json:"outline_bid"`
	Position   int            `gorm:"column:position;not null" json:"position"`
	Type       string         `gorm:"column:type;not null" json:"type"`
	Payload    datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`
	CreatedAt  time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Block) TableName() string { return "block" }
