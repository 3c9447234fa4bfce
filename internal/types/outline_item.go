package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	OutlineTypeNormal = "normal"
	OutlineTypeTrial  = "trial"
	OutlineTypeHidden = "hidden"
)

// OutlineItem is one node of the course tree. Position is a dotted path
// ("01", "01.02", ...) imposing sibling order; children of a node are either
// more outline items or, at a leaf, a linear sequence of blocks, never both.
type OutlineItem struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	BID         string         `gorm:"column:bid;not null;index:idx_outline_bid_variant,unique" json:"bid"`
	Variant     string         `gorm:"column:variant;not null;index:idx_outline_bid_variant,unique" json:"variant"`
	ShifuBID    string         `gorm:"column:shifu_bid;not null;index" json:"shifu_bid"`
	ParentBID   string         `gorm:"column:parent_bid;index" json:"parent_bid"`
	Position    string         `gorm:"column:position;not null" json:"position"`
	Title       string         `gorm:"column:title;not null" json:"title"`
	Type        string         `gorm:"column:type;not null;default:'normal'" json:"type"`
	Model       string         `gorm:"column:model" json:"model"`
	Temperature *float64       `gorm:"column:temperature" json:"temperature,omitempty"`
	AskPrompt   string         `gorm:"column:ask_prompt" json:"ask_prompt"`
	Summary     string         `gorm:"column:summary" json:"summary"`
	CreatedAt   time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (OutlineItem) TableName() string { return "outline_item" }
