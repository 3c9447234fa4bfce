package runner

import (
	"context"

	"gorm.io/gorm"

	"github.com/ai-shifu/shifu-backend/internal/logger"
	"github.com/ai-shifu/shifu-backend/internal/repos"
	"github.com/ai-shifu/shifu-backend/internal/types"
)

// Store is the narrow persistence surface the state machine drives. The
// production implementation wraps the gorm repos; tests substitute an
// in-memory fake.
type Store interface {
	// Transaction runs fn against a transaction-scoped store. Writes inside
	// one block execution go through it so they commit or roll back as one,
	// except the learner's own input which is flushed outside so it survives
	// a later failure.
	Transaction(ctx context.Context, fn func(tx Store) error) error

	GetLiveProgress(ctx context.Context, userBID, outlineBID string) (*types.LearnProgressRecord, error)
	GetProgressByBID(ctx context.Context, bid string) (*types.LearnProgressRecord, error)
	CreateProgress(ctx context.Context, row *types.LearnProgressRecord) error
	UpdateProgress(ctx context.Context, row *types.LearnProgressRecord) error
	BulkResetProgress(ctx context.Context, userBID string, outlineBIDs []string) error

	AppendGenerated(ctx context.Context, row *types.LearnGeneratedBlock) error
	GetGenerated(ctx context.Context, bid string) (*types.LearnGeneratedBlock, error)
	ListActiveGenerated(ctx context.Context, progressBID string) ([]*types.LearnGeneratedBlock, error)
	SupersedeGeneratedAfter(ctx context.Context, progressBID string, position int) error
	NextGeneratedPosition(ctx context.Context, progressBID string) (int, error)
	SetGeneratedLiked(ctx context.Context, bid string, liked int) error

	CreateBranchLink(ctx context.Context, row *types.BranchLink) error
}

type gormStore struct {
	db        *gorm.DB
	tx        *gorm.DB
	progress  repos.ProgressRepo
	generated repos.GeneratedBlockRepo
	log       *logger.Logger
}

func NewStore(db *gorm.DB, progress repos.ProgressRepo, generated repos.GeneratedBlockRepo, baseLog *logger.Logger) Store {
	return &gormStore{
		db:        db,
		progress:  progress,
		generated: generated,
		log:       baseLog.With("component", "RunStore"),
	}
}

func (s *gormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	if s.tx != nil {
		// Already inside a transaction; reuse the scope.
		return fn(s)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		scoped := *s
		scoped.tx = tx
		return fn(&scoped)
	})
}

func (s *gormStore) GetLiveProgress(ctx context.Context, userBID, outlineBID string) (*types.LearnProgressRecord, error) {
	return s.progress.GetLive(ctx, s.tx, userBID, outlineBID)
}

func (s *gormStore) GetProgressByBID(ctx context.Context, bid string) (*types.LearnProgressRecord, error) {
	return s.progress.GetByBID(ctx, s.tx, bid)
}

func (s *gormStore) CreateProgress(ctx context.Context, row *types.LearnProgressRecord) error {
	return s.progress.Create(ctx, s.tx, row)
}

func (s *gormStore) UpdateProgress(ctx context.Context, row *types.LearnProgressRecord) error {
	return s.progress.Update(ctx, s.tx, row)
}

func (s *gormStore) BulkResetProgress(ctx context.Context, userBID string, outlineBIDs []string) error {
	return s.progress.BulkSetStatus(ctx, s.tx, userBID, outlineBIDs, types.ProgressReset)
}

func (s *gormStore) AppendGenerated(ctx context.Context, row *types.LearnGeneratedBlock) error {
	return s.generated.Append(ctx, s.tx, row)
}

func (s *gormStore) GetGenerated(ctx context.Context, bid string) (*types.LearnGeneratedBlock, error) {
	return s.generated.GetByBID(ctx, s.tx, bid)
}

func (s *gormStore) ListActiveGenerated(ctx context.Context, progressBID string) ([]*types.LearnGeneratedBlock, error) {
	return s.generated.ListActive(ctx, s.tx, progressBID)
}

func (s *gormStore) SupersedeGeneratedAfter(ctx context.Context, progressBID string, position int) error {
	return s.generated.SupersedeAfter(ctx, s.tx, progressBID, position)
}

func (s *gormStore) NextGeneratedPosition(ctx context.Context, progressBID string) (int, error) {
	return s.generated.NextPosition(ctx, s.tx, progressBID)
}

func (s *gormStore) SetGeneratedLiked(ctx context.Context, bid string, liked int) error {
	return s.generated.SetLiked(ctx, s.tx, bid, liked)
}

func (s *gormStore) CreateBranchLink(ctx context.Context, row *types.BranchLink) error {
	conn := s.tx
	if conn == nil {
		conn = s.db
	}
	return conn.WithContext(ctx).Create(row).Error
}
