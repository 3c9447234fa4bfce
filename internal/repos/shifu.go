package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ai-shifu/shifu-backend/internal/logger"
	"github.com/ai-shifu/shifu-backend/internal/types"
)

type ShifuRepo interface {
	GetByBID(ctx context.Context, tx *gorm.DB, bid, variant string) (*types.Shifu, error)
	GetDefault(ctx context.Context, tx *gorm.DB, variant string) (*types.Shifu, error)
	Create(ctx context.Context, tx *gorm.DB, row *types.Shifu) error
	DeleteByBID(ctx context.Context, tx *gorm.DB, bid, variant string) error

	GetOutlineByBID(ctx context.Context, tx *gorm.DB, bid, variant string) (*types.OutlineItem, error)
	GetOutlinesByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.OutlineItem, error)
	GetOutlinesByShifu(ctx context.Context, tx *gorm.DB, shifuBID, variant string) ([]*types.OutlineItem, error)
	CreateOutlines(ctx context.Context, tx *gorm.DB, rows []*types.OutlineItem) error
	DeleteOutlinesByShifu(ctx context.Context, tx *gorm.DB, shifuBID, variant string) error

	GetBlocksByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Block, error)
	GetBlocksByOutline(ctx context.Context, tx *gorm.DB, outlineBID, variant string) ([]*types.Block, error)
	CreateBlocks(ctx context.Context, tx *gorm.DB, rows []*types.Block) error
	DeleteBlocksByOutlines(ctx context.Context, tx *gorm.DB, outlineBIDs []string, variant string) error

	LatestSnapshot(ctx context.Context, tx *gorm.DB, shifuBID, variant string) (*types.StructSnapshot, error)
	AppendSnapshot(ctx context.Context, tx *gorm.DB, row *types.StructSnapshot) error
}

type shifuRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewShifuRepo(db *gorm.DB, baseLog *logger.Logger) ShifuRepo {
	repoLog := baseLog.With("repo", "ShifuRepo")
	return &shifuRepo{db: db, log: repoLog}
}

func (r *shifuRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *shifuRepo) GetByBID(ctx context.Context, tx *gorm.DB, bid, variant string) (*types.Shifu, error) {
	var row types.Shifu
	if err := r.conn(tx).WithContext(ctx).
		Where("bid = ? AND variant = ?", bid, variant).
		First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *shifuRepo) GetDefault(ctx context.Context, tx *gorm.DB, variant string) (*types.Shifu, error) {
	var row types.Shifu
	if err := r.conn(tx).WithContext(ctx).
		Where("variant = ?", variant).
		Order("created_at ASC").
		First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *shifuRepo) Create(ctx context.Context, tx *gorm.DB, row *types.Shifu) error {
	if row == nil {
		return nil
	}
	return r.conn(tx).WithContext(ctx).Create(row).Error
}

func (r *shifuRepo) DeleteByBID(ctx context.Context, tx *gorm.DB, bid, variant string) error {
	return r.conn(tx).WithContext(ctx).
		Where("bid = ? AND variant = ?", bid, variant).
		Delete(&types.Shifu{}).Error
}

func (r *shifuRepo) GetOutlineByBID(ctx context.Context, tx *gorm.DB, bid, variant string) (*types.OutlineItem, error) {
	var row types.OutlineItem
	if err := r.conn(tx).WithContext(ctx).
		Where("bid = ? AND variant = ?", bid, variant).
		First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *shifuRepo) GetOutlinesByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.OutlineItem, error) {
	var results []*types.OutlineItem
	if len(ids) == 0 {
		return results, nil
	}
	if err := r.conn(tx).WithContext(ctx).
		Where("id IN ?", ids).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *shifuRepo) GetOutlinesByShifu(ctx context.Context, tx *gorm.DB, shifuBID, variant string) ([]*types.OutlineItem, error) {
	var results []*types.OutlineItem
	if err := r.conn(tx).WithContext(ctx).
		Where("shifu_bid = ? AND variant = ?", shifuBID, variant).
		Order("position ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *shifuRepo) CreateOutlines(ctx context.Context, tx *gorm.DB, rows []*types.OutlineItem) error {
	if len(rows) == 0 {
		return nil
	}
	return r.conn(tx).WithContext(ctx).Create(&rows).Error
}

func (r *shifuRepo) DeleteOutlinesByShifu(ctx context.Context, tx *gorm.DB, shifuBID, variant string) error {
	return r.conn(tx).WithContext(ctx).
		Where("shifu_bid = ? AND variant = ?", shifuBID, variant).
		Delete(&types.OutlineItem{}).Error
}

func (r *shifuRepo) GetBlocksByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Block, error) {
	var results []*types.Block
	if len(ids) == 0 {
		return results, nil
	}
	if err := r.conn(tx).WithContext(ctx).
		Where("id IN ?", ids).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *shifuRepo) GetBlocksByOutline(ctx context.Context, tx *gorm.DB, outlineBID, variant string) ([]*types.Block, error) {
	var results []*types.Block
	if err := r.conn(tx).WithContext(ctx).
		Where("outline_bid = ? AND variant = ?", outlineBID, variant).
		Order("position ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *shifuRepo) CreateBlocks(ctx context.Context, tx *gorm.DB, rows []*types.Block) error {
	if len(rows) == 0 {
		return nil
	}
	return r.conn(tx).WithContext(ctx).Create(&rows).Error
}

func (r *shifuRepo) DeleteBlocksByOutlines(ctx context.Context, tx *gorm.DB, outlineBIDs []string, variant string) error {
	if len(outlineBIDs) == 0 {
		return nil
	}
	return r.conn(tx).WithContext(ctx).
		Where("outline_bid IN ? AND variant = ?", outlineBIDs, variant).
		Delete(&types.Block{}).Error
}

func (r *shifuRepo) LatestSnapshot(ctx context.Context, tx *gorm.DB, shifuBID, variant string) (*types.StructSnapshot, error) {
	var row types.StructSnapshot
	if err := r.conn(tx).WithContext(ctx).
		Where("shifu_bid = ? AND variant = ?", shifuBID, variant).
		Order("created_at DESC").
		First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *shifuRepo) AppendSnapshot(ctx context.Context, tx *gorm.DB, row *types.StructSnapshot) error {
	if row == nil {
		return nil
	}
	return r.conn(tx).WithContext(ctx).Create(row).Error
}
