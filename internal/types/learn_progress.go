package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ProgressNotStarted = "not_started"
	ProgressInProgress = "in_progress"
	ProgressCompleted  = "completed"
	ProgressBranched   = "branched"
	ProgressLocked     = "locked"
	ProgressReset      = "reset"
)

// LearnProgressRecord is the durable cursor tracking one learner's
// advancement through one outline item. BlockCursor is the 1-based position
// of the next block to execute. A reset flips Status to reset and a fresh
// row is created lazily on next access; rows are never hard-deleted.
type LearnProgressRecord struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	BID         string         `gorm:"column:bid;not null;uniqueIndex" json:"bid"`
	UserBID     string         `gorm:"column:user_bid;not null;index:idx_progress_user_outline" json:"user_bid"`
	ShifuBID    string         `gorm:"column:shifu_bid;not null;index" json:"shifu_bid"`
	OutlineBID  string         `gorm:"column:outline_bid;not null;index:idx_progress_user_outline" json:"outline_bid"`
	Status      string         `gorm:"column:status;not null;default:'not_started'" json:"status"`
	BlockCursor int            `gorm:"column:block_cursor;not null;default:1" json:"block_cursor"`
	CreatedAt   time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (LearnProgressRecord) TableName() string { return "learn_progress_record" }
