package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ai-shifu/shifu-backend/internal/apierr"
	"github.com/ai-shifu/shifu-backend/internal/logger"
	"github.com/ai-shifu/shifu-backend/internal/repos"
	"github.com/ai-shifu/shifu-backend/internal/types"
)

// ShifuService owns the draft → published lifecycle: publishing deep-copies
// the draft outline items and blocks into the published variant and appends a
// struct snapshot; draft edits append draft snapshots.
type ShifuService interface {
	Publish(ctx context.Context, shifuBID string) error
	// SnapshotDraft appends a struct snapshot of the current draft rows.
	// Called after every draft edit so runs resolve against what existed at
	// edit time.
	SnapshotDraft(ctx context.Context, shifuBID string) error
}

type shifuService struct {
	db   *gorm.DB
	repo repos.ShifuRepo
	log  *logger.Logger
}

func NewShifuService(db *gorm.DB, repo repos.ShifuRepo, baseLog *logger.Logger) ShifuService {
	return &shifuService{
		db:   db,
		repo: repo,
		log:  baseLog.With("service", "ShifuService"),
	}
}

func (s *shifuService) Publish(ctx context.Context, shifuBID string) error {
	draft, err := s.repo.GetByBID(ctx, nil, shifuBID, types.VariantDraft)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apierr.NotFound("SHIFU_NOT_FOUND", err)
	}
	if err != nil {
		return err
	}

	outlines, err := s.repo.GetOutlinesByShifu(ctx, nil, shifuBID, types.VariantDraft)
	if err != nil {
		return err
	}
	blocksByOutline := map[string][]*types.Block{}
	outlineBIDs := make([]string, 0, len(outlines))
	for _, o := range outlines {
		outlineBIDs = append(outlineBIDs, o.BID)
		blocks, err := s.repo.GetBlocksByOutline(ctx, nil, o.BID, types.VariantDraft)
		if err != nil {
			return err
		}
		blocksByOutline[o.BID] = blocks
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Replace the previous published copy wholesale.
		if err := s.repo.DeleteBlocksByOutlines(ctx, tx, outlineBIDs, types.VariantPublished); err != nil {
			return err
		}
		if err := s.repo.DeleteOutlinesByShifu(ctx, tx, shifuBID, types.VariantPublished); err != nil {
			return err
		}
		if err := s.repo.DeleteByBID(ctx, tx, shifuBID, types.VariantPublished); err != nil {
			return err
		}

		pubShifu := *draft
		pubShifu.ID = uuid.New()
		pubShifu.Variant = types.VariantPublished
		if err := s.repo.Create(ctx, tx, &pubShifu); err != nil {
			return err
		}

		pubOutlines := make([]*types.OutlineItem, 0, len(outlines))
		pubBlocksByOutline := map[string][]*types.Block{}
		for _, o := range outlines {
			cp := *o
			cp.ID = uuid.New()
			cp.Variant = types.VariantPublished
			pubOutlines = append(pubOutlines, &cp)

			for _, b := range blocksByOutline[o.BID] {
				bc := *b
				bc.ID = uuid.New()
				bc.Variant = types.VariantPublished
				pubBlocksByOutline[o.BID] = append(pubBlocksByOutline[o.BID], &bc)
			}
		}
		if err := s.repo.CreateOutlines(ctx, tx, pubOutlines); err != nil {
			return err
		}
		for _, blocks := range pubBlocksByOutline {
			if err := s.repo.CreateBlocks(ctx, tx, blocks); err != nil {
				return err
			}
		}

		return s.appendSnapshot(ctx, tx, shifuBID, types.VariantPublished, pubOutlines, pubBlocksByOutline)
	})
}

func (s *shifuService) SnapshotDraft(ctx context.Context, shifuBID string) error {
	if _, err := s.repo.GetByBID(ctx, nil, shifuBID, types.VariantDraft); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apierr.NotFound("SHIFU_NOT_FOUND", err)
		}
		return err
	}
	outlines, err := s.repo.GetOutlinesByShifu(ctx, nil, shifuBID, types.VariantDraft)
	if err != nil {
		return err
	}
	blocksByOutline := map[string][]*types.Block{}
	for _, o := range outlines {
		blocks, err := s.repo.GetBlocksByOutline(ctx, nil, o.BID, types.VariantDraft)
		if err != nil {
			return err
		}
		blocksByOutline[o.BID] = blocks
	}
	return s.appendSnapshot(ctx, nil, shifuBID, types.VariantDraft, outlines, blocksByOutline)
}

func (s *shifuService) appendSnapshot(ctx context.Context, tx *gorm.DB, shifuBID, variant string, outlines []*types.OutlineItem, blocksByOutline map[string][]*types.Block) error {
	nodes := buildStructNodes(outlines, blocksByOutline)
	raw, err := json.Marshal(nodes)
	if err != nil {
		return fmt.Errorf("encode struct snapshot: %w", err)
	}
	return s.repo.AppendSnapshot(ctx, tx, &types.StructSnapshot{
		ShifuBID: shifuBID,
		Variant:  variant,
		Tree:     raw,
	})
}

// buildStructNodes assembles the snapshot tree from flat outline rows,
// grouping by parent bid and ordering siblings by dotted position path.
func buildStructNodes(outlines []*types.OutlineItem, blocksByOutline map[string][]*types.Block) []types.StructNode {
	children := map[string][]*types.OutlineItem{}
	for _, o := range outlines {
		children[o.ParentBID] = append(children[o.ParentBID], o)
	}
	for _, siblings := range children {
		sort.SliceStable(siblings, func(i, j int) bool {
			return positionLess(siblings[i].Position, siblings[j].Position)
		})
	}

	var build func(parentBID string) []types.StructNode
	build = func(parentBID string) []types.StructNode {
		var out []types.StructNode
		for _, o := range children[parentBID] {
			node := types.StructNode{OutlineID: o.ID}
			node.Children = build(o.BID)
			if len(node.Children) == 0 {
				for _, b := range blocksByOutline[o.BID] {
					node.BlockIDs = append(node.BlockIDs, b.ID)
				}
			}
			out = append(out, node)
		}
		return out
	}
	return build("")
}

// positionLess compares dotted position paths segment by segment, numeric
// when both segments parse as ints.
func positionLess(a, b string) bool {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		ai, aErr := strconv.Atoi(as[i])
		bi, bErr := strconv.Atoi(bs[i])
		if aErr == nil && bErr == nil {
			if ai != bi {
				return ai < bi
			}
			continue
		}
		if as[i] != bs[i] {
			return as[i] < bs[i]
		}
	}
	return len(as) < len(bs)
}
