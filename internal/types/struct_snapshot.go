package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// StructSnapshot is an append-only capture of the full shifu → outline →
// block identity tree as of one draft edit or publish. Rows are never
// mutated; a new edit appends a new row. Tree is a StructNode JSON document
// referencing rows by surrogate id.
type StructSnapshot struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ShifuBID  string         `gorm:"column:shifu_bid;not null;index" json:"shifu_bid"`
	Variant   string         `gorm:"column:variant;not null;index" json:"variant"`
	Tree      datatypes.JSON `gorm:"column:tree;type:jsonb;not null" json:"tree"`
	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
}

func (StructSnapshot) TableName() string { return "struct_snapshot" }

// StructNode is one node of the snapshot tree. For outline nodes BlockIDs
// lists the leaf's block rows in position order; Children lists child outline
// nodes. Exactly one of the two is non-empty for any node.
type StructNode struct {
	OutlineID uuid.UUID    `json:"outline_id"`
	BlockIDs  []uuid.UUID  `json:"block_ids,omitempty"`
	Children  []StructNode `json:"children,omitempty"`
}
