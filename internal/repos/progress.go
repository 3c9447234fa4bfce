package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/ai-shifu/shifu-backend/internal/logger"
	"github.com/ai-shifu/shifu-backend/internal/types"
)

type ProgressRepo interface {
	Create(ctx context.Context, tx *gorm.DB, row *types.LearnProgressRecord) error
	GetByBID(ctx context.Context, tx *gorm.DB, bid string) (*types.LearnProgressRecord, error)
	// GetLive returns the learner's non-reset record for an outline item, or
	// nil when none exists yet.
	GetLive(ctx context.Context, tx *gorm.DB, userBID, outlineBID string) (*types.LearnProgressRecord, error)
	GetByUserAndShifu(ctx context.Context, tx *gorm.DB, userBID, shifuBID string) ([]*types.LearnProgressRecord, error)
	Update(ctx context.Context, tx *gorm.DB, row *types.LearnProgressRecord) error
	// BulkSetStatus flips every live record for the given outline items to
	// the target status in one statement.
	BulkSetStatus(ctx context.Context, tx *gorm.DB, userBID string, outlineBIDs []string, status string) error
}

type progressRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProgressRepo(db *gorm.DB, baseLog *logger.Logger) ProgressRepo {
	repoLog := baseLog.With("repo", "ProgressRepo")
	return &progressRepo{db: db, log: repoLog}
}

func (r *progressRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *progressRepo) Create(ctx context.Context, tx *gorm.DB, row *types.LearnProgressRecord) error {
	if row == nil {
		return nil
	}
	return r.conn(tx).WithContext(ctx).Create(row).Error
}

func (r *progressRepo) GetByBID(ctx context.Context, tx *gorm.DB, bid string) (*types.LearnProgressRecord, error) {
	var row types.LearnProgressRecord
	if err := r.conn(tx).WithContext(ctx).
		Where("bid = ?", bid).
		First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *progressRepo) GetLive(ctx context.Context, tx *gorm.DB, userBID, outlineBID string) (*types.LearnProgressRecord, error) {
	var row types.LearnProgressRecord
	err := r.conn(tx).WithContext(ctx).
		Where("user_bid = ? AND outline_bid = ? AND status <> ?", userBID, outlineBID, types.ProgressReset).
		Order("created_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *progressRepo) GetByUserAndShifu(ctx context.Context, tx *gorm.DB, userBID, shifuBID string) ([]*types.LearnProgressRecord, error) {
	var results []*types.LearnProgressRecord
	if err := r.conn(tx).WithContext(ctx).
		Where("user_bid = ? AND shifu_bid = ? AND status <> ?", userBID, shifuBID, types.ProgressReset).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *progressRepo) Update(ctx context.Context, tx *gorm.DB, row *types.LearnProgressRecord) error {
	if row == nil {
		return nil
	}
	return r.conn(tx).WithContext(ctx).Save(row).Error
}

func (r *progressRepo) BulkSetStatus(ctx context.Context, tx *gorm.DB, userBID string, outlineBIDs []string, status string) error {
	if len(outlineBIDs) == 0 {
		return nil
	}
	return r.conn(tx).WithContext(ctx).
		Model(&types.LearnProgressRecord{}).
		Where("user_bid = ? AND outline_bid IN ? AND status <> ?", userBID, outlineBIDs, types.ProgressReset).
		Update("status", status).Error
}
