package types

import (
	"time"

	"github.com/google/uuid"
)

// BranchLink records that a goto block redirected a learner from one
// progress record to another, for traceability.
type BranchLink struct {
	ID                uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SourceProgressBID string    `gorm:"column:source_progress_bid;not null;index" json:"source_progress_bid"`
	TargetProgressBID string    `gorm:"column:target_progress_bid;not null;index" json:"target_progress_bid"`
	BlockBID          string    `gorm:"column:block_bid;not null" json:"block_bid"`
	CreatedAt         time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (BranchLink) TableName() string { return "branch_link" }
