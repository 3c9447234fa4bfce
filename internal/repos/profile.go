package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/ai-shifu/shifu-backend/internal/logger"
	"github.com/ai-shifu/shifu-backend/internal/types"
)

type ProfileRepo interface {
	Get(ctx context.Context, tx *gorm.DB, userBID, shifuBID string, keys []string) (map[string]string, error)
	GetAll(ctx context.Context, tx *gorm.DB, userBID, shifuBID string) (map[string]string, error)
	Set(ctx context.Context, tx *gorm.DB, userBID, shifuBID string, vars map[string]string) error
}

type profileRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProfileRepo(db *gorm.DB, baseLog *logger.Logger) ProfileRepo {
	repoLog := baseLog.With("repo", "ProfileRepo")
	return &profileRepo{db: db, log: repoLog}
}

func (r *profileRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *profileRepo) Get(ctx context.Context, tx *gorm.DB, userBID, shifuBID string, keys []string) (map[string]string, error) {
	out := map[string]string{}
	if len(keys) == 0 {
		return out, nil
	}
	var rows []*types.UserProfile
	if err := r.conn(tx).WithContext(ctx).
		Where("user_bid = ? AND shifu_bid = ? AND key IN ?", userBID, shifuBID, keys).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.Key] = row.Value
	}
	return out, nil
}

func (r *profileRepo) GetAll(ctx context.Context, tx *gorm.DB, userBID, shifuBID string) (map[string]string, error) {
	var rows []*types.UserProfile
	if err := r.conn(tx).WithContext(ctx).
		Where("user_bid = ? AND shifu_bid = ?", userBID, shifuBID).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Value
	}
	return out, nil
}

func (r *profileRepo) Set(ctx context.Context, tx *gorm.DB, userBID, shifuBID string, vars map[string]string) error {
	if len(vars) == 0 {
		return nil
	}
	conn := r.conn(tx).WithContext(ctx)
	for k, v := range vars {
		row := &types.UserProfile{UserBID: userBID, ShifuBID: shifuBID, Key: k, Value: v}
		if err := conn.
			Where("user_bid = ? AND shifu_bid = ? AND key = ?", userBID, shifuBID, k).
			Assign(map[string]any{"value": v}).
			FirstOrCreate(row).Error; err != nil {
			return err
		}
	}
	return nil
}
