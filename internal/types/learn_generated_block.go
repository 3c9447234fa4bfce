package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
)

const (
	GeneratedActive     = "active"
	GeneratedSuperseded = "superseded"
)

const (
	LikedNone    = 0
	LikedUp      = 1
	LikedDown    = -1
)

// LearnGeneratedBlock is one immutable transcript entry per block execution
// instance. Only Liked and Status (superseded on reload) are ever updated in
// place; Position is the insertion ordinal used for transcript replay.
type LearnGeneratedBlock struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	BID         string         `gorm:"column:bid;not null;uniqueIndex" json:"bid"`
	ProgressBID string         `gorm:"column:progress_bid;not null;index" json:"progress_bid"`
	OutlineBID  string         `gorm:"column:outline_bid;not null;index" json:"outline_bid"`
	BlockBID    string         `gorm:"column:block_bid;not null;index" json:"block_bid"`
	Role        string         `gorm:"column:role;not null" json:"role"`
	Content     string         `gorm:"column:content" json:"content"`
	UI          datatypes.JSON `gorm:"column:ui;type:jsonb" json:"ui,omitempty"`
	Liked       int            `gorm:"column:liked;not null;default:0" json:"liked"`
	Status      string         `gorm:"column:status;not null;default:'active'" json:"status"`
	Position    int            `gorm:"column:position;not null" json:"position"`
	CreatedAt   time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (LearnGeneratedBlock) TableName() string { return "learn_generated_block" }
