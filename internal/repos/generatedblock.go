package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/ai-shifu/shifu-backend/internal/logger"
	"github.com/ai-shifu/shifu-backend/internal/types"
)

type GeneratedBlockRepo interface {
	Append(ctx context.Context, tx *gorm.DB, row *types.LearnGeneratedBlock) error
	GetByBID(ctx context.Context, tx *gorm.DB, bid string) (*types.LearnGeneratedBlock, error)
	// ListActive returns the live transcript for a progress record in
	// insertion order.
	ListActive(ctx context.Context, tx *gorm.DB, progressBID string) ([]*types.LearnGeneratedBlock, error)
	// SupersedeAfter marks every active row at or after the given position as
	// superseded; used by reload, never deletes.
	SupersedeAfter(ctx context.Context, tx *gorm.DB, progressBID string, position int) error
	SetLiked(ctx context.Context, tx *gorm.DB, bid string, liked int) error
	// NextPosition returns the next insertion ordinal for a progress record.
	NextPosition(ctx context.Context, tx *gorm.DB, progressBID string) (int, error)
}

type generatedBlockRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGeneratedBlockRepo(db *gorm.DB, baseLog *logger.Logger) GeneratedBlockRepo {
	repoLog := baseLog.With("repo", "GeneratedBlockRepo")
	return &generatedBlockRepo{db: db, log: repoLog}
}

func (r *generatedBlockRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *generatedBlockRepo) Append(ctx context.Context, tx *gorm.DB, row *types.LearnGeneratedBlock) error {
	if row == nil {
		return nil
	}
	return r.conn(tx).WithContext(ctx).Create(row).Error
}

func (r *generatedBlockRepo) GetByBID(ctx context.Context, tx *gorm.DB, bid string) (*types.LearnGeneratedBlock, error) {
	var row types.LearnGeneratedBlock
	if err := r.conn(tx).WithContext(ctx).
		Where("bid = ?", bid).
		First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *generatedBlockRepo) ListActive(ctx context.Context, tx *gorm.DB, progressBID string) ([]*types.LearnGeneratedBlock, error) {
	var results []*types.LearnGeneratedBlock
	if err := r.conn(tx).WithContext(ctx).
		Where("progress_bid = ? AND status = ?", progressBID, types.GeneratedActive).
		Order("position ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *generatedBlockRepo) SupersedeAfter(ctx context.Context, tx *gorm.DB, progressBID string, position int) error {
	return r.conn(tx).WithContext(ctx).
		Model(&types.LearnGeneratedBlock{}).
		Where("progress_bid = ? AND position >= ? AND status = ?", progressBID, position, types.GeneratedActive).
		Update("status", types.GeneratedSuperseded).Error
}

func (r *generatedBlockRepo) SetLiked(ctx context.Context, tx *gorm.DB, bid string, liked int) error {
	return r.conn(tx).WithContext(ctx).
		Model(&types.LearnGeneratedBlock{}).
		Where("bid = ?", bid).
		Update("liked", liked).Error
}

func (r *generatedBlockRepo) NextPosition(ctx context.Context, tx *gorm.DB, progressBID string) (int, error) {
	var max int
	if err := r.conn(tx).WithContext(ctx).
		Model(&types.LearnGeneratedBlock{}).
		Where("progress_bid = ?", progressBID).
		Select("COALESCE(MAX(position), 0)").
		Scan(&max).Error; err != nil {
		return 0, err
	}
	return max + 1, nil
}
