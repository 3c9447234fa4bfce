package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/ai-shifu/shifu-backend/internal/apierr"
	"github.com/ai-shifu/shifu-backend/internal/logger"
	"github.com/ai-shifu/shifu-backend/internal/repos"
	"github.com/ai-shifu/shifu-backend/internal/types"
)

// StructTree is the immutable, version-snapshotted view of one shifu's
// outline/block tree. Callers must not mutate it for the duration of a run.
type StructTree struct {
	Shifu *types.Shifu
	Roots []*OutlineNode

	leaves []*OutlineNode
}

// NewStructTree assembles a tree from already-materialized nodes and
// computes its leaf order.
func NewStructTree(shifu *types.Shifu, roots []*OutlineNode) *StructTree {
	return &StructTree{Shifu: shifu, Roots: roots, leaves: flattenLeaves(roots)}
}

// OutlineNode wraps one outline item. For leaves Blocks is the ordered block
// sequence; otherwise Children holds the ordered child nodes. Locked marks
// items gated behind an unpaid purchase; the run loop never enters them.
type OutlineNode struct {
	Item     *types.OutlineItem
	Blocks   []*types.Block
	Children []*OutlineNode
	Locked   bool
}

// Leaves returns the leaf outline items in tree order.
func (t *StructTree) Leaves() []*OutlineNode { return t.leaves }

// FirstLeaf returns the first unlocked leaf, or nil.
func (t *StructTree) FirstLeaf() *OutlineNode {
	for _, n := range t.leaves {
		if !n.Locked {
			return n
		}
	}
	return nil
}

// FindLeaf returns the leaf with the given outline bid, or nil.
func (t *StructTree) FindLeaf(outlineBID string) *OutlineNode {
	for _, n := range t.leaves {
		if n.Item.BID == outlineBID {
			return n
		}
	}
	return nil
}

// NextLeaf returns the unlocked leaf following the given one in tree order,
// or nil when the tree is exhausted.
func (t *StructTree) NextLeaf(outlineBID string) *OutlineNode {
	seen := false
	for _, n := range t.leaves {
		if seen && !n.Locked {
			return n
		}
		if n.Item.BID == outlineBID {
			seen = true
		}
	}
	return nil
}

// SubtreeLeafBIDs returns the leaf outline bids under the given node, or of
// the whole tree when outlineBID is empty.
func (t *StructTree) SubtreeLeafBIDs(outlineBID string) []string {
	var nodes []*OutlineNode
	if outlineBID == "" {
		nodes = t.Roots
	} else {
		if n := findNode(t.Roots, outlineBID); n != nil {
			nodes = []*OutlineNode{n}
		}
	}
	var bids []string
	for _, leaf := range flattenLeaves(nodes) {
		bids = append(bids, leaf.Item.BID)
	}
	return bids
}

func findNode(nodes []*OutlineNode, outlineBID string) *OutlineNode {
	for _, n := range nodes {
		if n.Item.BID == outlineBID {
			return n
		}
		if found := findNode(n.Children, outlineBID); found != nil {
			return found
		}
	}
	return nil
}

// StructResolver resolves the snapshot tree for a shifu. preview=true reads
// the draft variant, false the published one; a single resolution never mixes
// variants. Pure read.
type StructResolver interface {
	GetShifu(ctx context.Context, shifuBID string, preview bool) (*types.Shifu, error)
	GetDefaultShifu(ctx context.Context, preview bool) (*types.Shifu, error)
	GetOutlineItem(ctx context.Context, outlineBID string, preview bool) (*types.OutlineItem, error)
	// GetStruct resolves the full tree. paid marks trial gating: when the
	// shifu has a price and paid is false, non-trial items come back Locked.
	GetStruct(ctx context.Context, shifuBID string, preview bool, paid bool) (*StructTree, error)
}

type structResolver struct {
	repo repos.ShifuRepo
	log  *logger.Logger
}

func NewStructResolver(repo repos.ShifuRepo, baseLog *logger.Logger) StructResolver {
	return &structResolver{
		repo: repo,
		log:  baseLog.With("service", "StructResolver"),
	}
}

func variantFor(preview bool) string {
	if preview {
		return types.VariantDraft
	}
	return types.VariantPublished
}

func (s *structResolver) GetShifu(ctx context.Context, shifuBID string, preview bool) (*types.Shifu, error) {
	row, err := s.repo.GetByBID(ctx, nil, shifuBID, variantFor(preview))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.NotFound("SHIFU_NOT_FOUND", fmt.Errorf("shifu %s (%s): %w", shifuBID, variantFor(preview), err))
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (s *structResolver) GetDefaultShifu(ctx context.Context, preview bool) (*types.Shifu, error) {
	row, err := s.repo.GetDefault(ctx, nil, variantFor(preview))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.NotFound("SHIFU_NOT_FOUND", err)
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (s *structResolver) GetOutlineItem(ctx context.Context, outlineBID string, preview bool) (*types.OutlineItem, error) {
	row, err := s.repo.GetOutlineByBID(ctx, nil, outlineBID, variantFor(preview))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.NotFound("OUTLINE_NOT_FOUND", fmt.Errorf("outline %s (%s): %w", outlineBID, variantFor(preview), err))
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (s *structResolver) GetStruct(ctx context.Context, shifuBID string, preview bool, paid bool) (*StructTree, error) {
	variant := variantFor(preview)

	shifu, err := s.GetShifu(ctx, shifuBID, preview)
	if err != nil {
		return nil, err
	}

	snap, err := s.repo.LatestSnapshot(ctx, nil, shifuBID, variant)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.NotFound("STRUCT_NOT_FOUND", fmt.Errorf("no struct snapshot for shifu %s (%s)", shifuBID, variant))
	}
	if err != nil {
		return nil, err
	}

	var rootNodes []types.StructNode
	if err := json.Unmarshal(snap.Tree, &rootNodes); err != nil {
		return nil, fmt.Errorf("decode struct snapshot: %w", err)
	}

	outlineIDs, blockIDs := collectIDs(rootNodes)

	var (
		outlines []*types.OutlineItem
		blocks   []*types.Block
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		outlines, err = s.repo.GetOutlinesByIDs(gctx, nil, outlineIDs)
		return err
	})
	g.Go(func() error {
		var err error
		blocks, err = s.repo.GetBlocksByIDs(gctx, nil, blockIDs)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	outlineByID := make(map[string]*types.OutlineItem, len(outlines))
	for _, o := range outlines {
		outlineByID[o.ID.String()] = o
	}
	blockByID := make(map[string]*types.Block, len(blocks))
	for _, b := range blocks {
		blockByID[b.ID.String()] = b
	}

	gated := shifu.Price > 0 && !paid

	tree := &StructTree{Shifu: shifu}
	for _, n := range rootNodes {
		node := s.buildNode(n, outlineByID, blockByID, gated)
		if node != nil {
			tree.Roots = append(tree.Roots, node)
		}
	}
	tree.leaves = flattenLeaves(tree.Roots)
	return tree, nil
}

// buildNode materializes one snapshot node, pruning outline items whose
// current-variant row is missing or hidden.
func (s *structResolver) buildNode(n types.StructNode, outlineByID map[string]*types.OutlineItem, blockByID map[string]*types.Block, gated bool) *OutlineNode {
	item, ok := outlineByID[n.OutlineID.String()]
	if !ok {
		s.log.Debug("Pruning outline item missing from current variant", "outline_id", n.OutlineID)
		return nil
	}
	if item.Type == types.OutlineTypeHidden {
		return nil
	}

	node := &OutlineNode{Item: item}
	if gated && item.Type != types.OutlineTypeTrial {
		node.Locked = true
	}
	for _, id := range n.BlockIDs {
		if b, ok := blockByID[id.String()]; ok {
			node.Blocks = append(node.Blocks, b)
		}
	}
	for _, child := range n.Children {
		if c := s.buildNode(child, outlineByID, blockByID, gated); c != nil {
			node.Children = append(node.Children, c)
		}
	}
	return node
}

func collectIDs(nodes []types.StructNode) (outlineIDs, blockIDs []uuid.UUID) {
	for _, n := range nodes {
		outlineIDs = append(outlineIDs, n.OutlineID)
		blockIDs = append(blockIDs, n.BlockIDs...)
		co, cb := collectIDs(n.Children)
		outlineIDs = append(outlineIDs, co...)
		blockIDs = append(blockIDs, cb...)
	}
	return outlineIDs, blockIDs
}

func flattenLeaves(nodes []*OutlineNode) []*OutlineNode {
	var out []*OutlineNode
	for _, n := range nodes {
		if len(n.Children) == 0 {
			out = append(out, n)
			continue
		}
		out = append(out, flattenLeaves(n.Children)...)
	}
	return out
}
