package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Variant discriminates the editable draft rows from the learner-facing
// published rows. One resolution never mixes variants.
const (
	VariantDraft     = "draft"
	VariantPublished = "published"
)

type Shifu struct {
	ID            uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	BID           string         `gorm:"column:bid;not null;index:idx_shifu_bid_variant,unique" json:"bid"`
	Variant       string         `gorm:"column:variant;not null;index:idx_shifu_bid_variant,unique" json:"variant"`
	Title         string         `gorm:"column:title;not null" json:"title"`
	Description   string         `gorm:"column:description" json:"description"`
	Price         int64          `gorm:"column:price;not null;default:0" json:"price"`
	Model         string         `gorm:"column:model" json:"model"`
	Temperature   float64        `gorm:"column:temperature;not null;default:0.3" json:"temperature"`
	AskPrompt     string         `gorm:"column:ask_prompt" json:"ask_prompt"`
	AskModel      string         `gorm:"column:ask_model" json:"ask_model"`
	AskHistoryLen int            `gorm:"column:ask_history_len;not null;default:0" json:"ask_history_len"`
	CreatedAt     time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Shifu) TableName() string { return "shifu" }
