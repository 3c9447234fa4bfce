package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/ai-shifu/shifu-backend/internal/logger"
	"github.com/ai-shifu/shifu-backend/internal/types"
)

type UserRepo interface {
	Create(ctx context.Context, tx *gorm.DB, row *types.User) error
	GetByBID(ctx context.Context, tx *gorm.DB, bid string) (*types.User, error)
	GetByEmail(ctx context.Context, tx *gorm.DB, email string) (*types.User, error)
	EmailExists(ctx context.Context, tx *gorm.DB, email string) (bool, error)
	SetPaid(ctx context.Context, tx *gorm.DB, bid string, paid bool) error
	SetMobile(ctx context.Context, tx *gorm.DB, bid, mobile string) error
}

type userRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo {
	repoLog := baseLog.With("repo", "UserRepo")
	return &userRepo{db: db, log: repoLog}
}

func (r *userRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *userRepo) Create(ctx context.Context, tx *gorm.DB, row *types.User) error {
	if row == nil {
		return nil
	}
	return r.conn(tx).WithContext(ctx).Create(row).Error
}

func (r *userRepo) GetByBID(ctx context.Context, tx *gorm.DB, bid string) (*types.User, error) {
	var row types.User
	if err := r.conn(tx).WithContext(ctx).
		Where("bid = ?", bid).
		First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *userRepo) GetByEmail(ctx context.Context, tx *gorm.DB, email string) (*types.User, error) {
	var row types.User
	if err := r.conn(tx).WithContext(ctx).
		Where("email = ?", email).
		First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *userRepo) EmailExists(ctx context.Context, tx *gorm.DB, email string) (bool, error) {
	_, err := r.GetByEmail(ctx, tx, email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *userRepo) SetPaid(ctx context.Context, tx *gorm.DB, bid string, paid bool) error {
	return r.conn(tx).WithContext(ctx).
		Model(&types.User{}).
		Where("bid = ?", bid).
		Update("paid", paid).Error
}

func (r *userRepo) SetMobile(ctx context.Context, tx *gorm.DB, bid, mobile string) error {
	return r.conn(tx).WithContext(ctx).
		Model(&types.User{}).
		Where("bid = ?", bid).
		Update("mobile", mobile).Error
}
