package runner

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ai-shifu/shifu-backend/internal/apierr"
	"github.com/ai-shifu/shifu-backend/internal/clients/openai"
	"github.com/ai-shifu/shifu-backend/internal/logger"
	"github.com/ai-shifu/shifu-backend/internal/services"
	"github.com/ai-shifu/shifu-backend/internal/types"
)

const (
	InputKindStart  = "start"
	InputKindText   = "text"
	InputKindSelect = "select"
	InputKindClick  = "click"
)

// Input is the learner's staged input for the current block.
type Input struct {
	Value string
	Kind  string
}

// Deps bundles the collaborators the run engine drives. Everything is an
// interface so tests substitute fakes; there is no ambient global state.
type Deps struct {
	Log       *logger.Logger
	Resolver  services.StructResolver
	LLM       openai.Client
	Moderator services.ModerationService
	Profile   services.ProfileService
	Store     Store
	Config    *Config
}

// StepResult reports one state-machine step. Done is true once the tree is
// exhausted and the run is complete.
type StepResult struct {
	Outcome BlockOutcome
	Done    bool
}

// RunContext owns "where is the learner now": it decides the next block,
// advances position on success and exposes HasNext / Step / Reload. One
// RunContext serves one run under one lock; it is not safe for concurrent
// use.
type RunContext struct {
	deps    Deps
	user    *types.User
	preview bool
	tree    *services.StructTree
	node    *services.OutlineNode
	record  *types.LearnProgressRecord
	input   *Input
	emit    func(Event)
	done    bool
}

// NewRunContext resolves the struct tree and positions the learner: at the
// requested outline item, or at their current in-progress item, or at the
// first leaf of the course.
func NewRunContext(ctx context.Context, deps Deps, user *types.User, shifuBID, outlineBID string, preview bool) (*RunContext, error) {
	if user == nil {
		return nil, fmt.Errorf("user required")
	}

	var (
		shifu *types.Shifu
		err   error
	)
	if shifuBID == "" {
		shifu, err = deps.Resolver.GetDefaultShifu(ctx, preview)
	} else {
		shifu, err = deps.Resolver.GetShifu(ctx, shifuBID, preview)
	}
	if err != nil {
		return nil, err
	}

	tree, err := deps.Resolver.GetStruct(ctx, shifu.BID, preview, user.Paid)
	if err != nil {
		return nil, err
	}

	rc := &RunContext{
		deps:    deps,
		user:    user,
		preview: preview,
		tree:    tree,
		emit:    func(Event) {},
	}

	if outlineBID != "" {
		node := tree.FindLeaf(outlineBID)
		if node == nil {
			return nil, apierr.NotFound("OUTLINE_NOT_FOUND", fmt.Errorf("outline %s not in struct tree", outlineBID))
		}
		if node.Locked {
			return nil, apierr.New(403, "OUTLINE_LOCKED", fmt.Errorf("outline %s is locked", outlineBID))
		}
		rc.node = node
		return rc, nil
	}

	node, err := rc.currentPosition(ctx)
	if err != nil {
		return nil, err
	}
	rc.node = node
	if node == nil {
		rc.done = true
	}
	return rc, nil
}

// currentPosition finds the learner's in-progress leaf, falling back to the
// first unlocked leaf of the course.
func (rc *RunContext) currentPosition(ctx context.Context) (*services.OutlineNode, error) {
	for _, leaf := range rc.tree.Leaves() {
		if leaf.Locked {
			continue
		}
		rec, err := rc.deps.Store.GetLiveProgress(ctx, rc.user.BID, leaf.Item.BID)
		if err != nil {
			return nil, err
		}
		if rec != nil && (rec.Status == types.ProgressInProgress || rec.Status == types.ProgressNotStarted) {
			return leaf, nil
		}
	}
	// Nothing in flight: resume at the first leaf without a terminal record.
	for _, leaf := range rc.tree.Leaves() {
		if leaf.Locked {
			continue
		}
		rec, err := rc.deps.Store.GetLiveProgress(ctx, rc.user.BID, leaf.Item.BID)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return leaf, nil
		}
	}
	return nil, nil
}

// SetEmitter installs the event sink. Must be set before Step.
func (rc *RunContext) SetEmitter(emit func(Event)) {
	if emit == nil {
		emit = func(Event) {}
	}
	rc.emit = emit
}

// SetInput stages the learner's pending input for the current block.
func (rc *RunContext) SetInput(value, kind string) {
	rc.input = &Input{Value: value, Kind: kind}
}

// Shifu returns the resolved course definition.
func (rc *RunContext) Shifu() *types.Shifu { return rc.tree.Shifu }

// OutlineBID returns the current outline item's bid, or empty once done.
func (rc *RunContext) OutlineBID() string {
	if rc.node == nil {
		return ""
	}
	return rc.node.Item.BID
}

// ensureRecord lazily creates the progress record the first time the learner
// reaches an outline item.
func (rc *RunContext) ensureRecord(ctx context.Context) error {
	if rc.record != nil && rc.record.OutlineBID == rc.node.Item.BID {
		return nil
	}
	rec, err := rc.deps.Store.GetLiveProgress(ctx, rc.user.BID, rc.node.Item.BID)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = &types.LearnProgressRecord{
			BID:         uuid.NewString(),
			UserBID:     rc.user.BID,
			ShifuBID:    rc.tree.Shifu.BID,
			OutlineBID:  rc.node.Item.BID,
			Status:      types.ProgressNotStarted,
			BlockCursor: 1,
		}
		if err := rc.deps.Store.CreateProgress(ctx, rec); err != nil {
			return err
		}
	}
	rc.record = rec
	return nil
}

// HasNext reports whether another block exists at or after the current
// cursor. Creates the current progress record on first touch, like Step
// would, but never moves the cursor.
func (rc *RunContext) HasNext(ctx context.Context) (bool, error) {
	if rc.done || rc.node == nil {
		return false, nil
	}
	if err := rc.ensureRecord(ctx); err != nil {
		return false, err
	}
	if rc.record.BlockCursor <= len(rc.node.Blocks) {
		return true, nil
	}
	return rc.tree.NextLeaf(rc.node.Item.BID) != nil, nil
}

// currentBlock returns the block under the cursor, rolling over to the next
// outline item when the current one is exhausted. Returns nil when the tree
// is exhausted.
func (rc *RunContext) currentBlock(ctx context.Context) (*types.Block, error) {
	for {
		if rc.node == nil {
			return nil, nil
		}
		if err := rc.ensureRecord(ctx); err != nil {
			return nil, err
		}
		if rc.record.BlockCursor <= len(rc.node.Blocks) {
			return rc.node.Blocks[rc.record.BlockCursor-1], nil
		}
		if err := rc.finishCurrentItem(ctx); err != nil {
			return nil, err
		}
	}
}

// finishCurrentItem marks the current item completed and moves to the next
// leaf in tree order, or flags the whole run done.
func (rc *RunContext) finishCurrentItem(ctx context.Context) error {
	if rc.record.Status != types.ProgressCompleted {
		rc.record.Status = types.ProgressCompleted
		if err := rc.deps.Store.UpdateProgress(ctx, rc.record); err != nil {
			return err
		}
		rc.emit(outlineEvent(rc.node.Item.BID, types.ProgressCompleted))
	}
	next := rc.tree.NextLeaf(rc.node.Item.BID)
	if next == nil {
		rc.node = nil
		rc.record = nil
		rc.done = true
		return nil
	}
	rc.node = next
	rc.record = nil
	return nil
}

// Step executes exactly one block through the executor and advances state on
// success.
func (rc *RunContext) Step(ctx context.Context) (StepResult, error) {
	if err := ctx.Err(); err != nil {
		return StepResult{}, err
	}

	blk, err := rc.currentBlock(ctx)
	if err != nil {
		return StepResult{}, err
	}
	if blk == nil {
		return StepResult{Done: true}, nil
	}

	if rc.record.Status == types.ProgressNotStarted {
		rc.record.Status = types.ProgressInProgress
		if err := rc.deps.Store.UpdateProgress(ctx, rc.record); err != nil {
			return StepResult{}, err
		}
		rc.emit(outlineEvent(rc.node.Item.BID, types.ProgressInProgress))
	}

	var outcome BlockOutcome
	err = rc.deps.Store.Transaction(ctx, func(tx Store) error {
		var execErr error
		outcome, execErr = executeBlock(ctx, rc, tx, blk)
		return execErr
	})
	rc.input = nil
	if err != nil {
		return StepResult{}, err
	}

	switch outcome.Kind {
	case OutcomeAdvance:
		rc.record.BlockCursor++
		if err := rc.deps.Store.UpdateProgress(ctx, rc.record); err != nil {
			return StepResult{}, err
		}
		if rc.record.BlockCursor > len(rc.node.Blocks) {
			if err := rc.finishCurrentItem(ctx); err != nil {
				return StepResult{}, err
			}
		}
		return StepResult{Outcome: outcome, Done: rc.done}, nil
	case OutcomeBranch:
		target := rc.tree.FindLeaf(outcome.TargetOutlineBID)
		if target == nil {
			return StepResult{}, apierr.NotFound("OUTLINE_NOT_FOUND", fmt.Errorf("branch target %s not in struct tree", outcome.TargetOutlineBID))
		}
		rc.node = target
		rc.record = nil
		return StepResult{Outcome: outcome}, nil
	default:
		return StepResult{Outcome: outcome}, nil
	}
}

// Reload repositions the cursor at a historical generated block, supersedes
// the transcript rows after it, and leaves the context ready to re-run the
// same block in place.
func (rc *RunContext) Reload(ctx context.Context, generatedBID string) error {
	gen, err := rc.deps.Store.GetGenerated(ctx, generatedBID)
	if err != nil {
		return apierr.NotFound("GENERATED_BLOCK_NOT_FOUND", err)
	}
	rec, err := rc.deps.Store.GetProgressByBID(ctx, gen.ProgressBID)
	if err != nil {
		return err
	}
	if rec.UserBID != rc.user.BID {
		return apierr.New(403, "FORBIDDEN", fmt.Errorf("generated block %s belongs to another learner", generatedBID))
	}
	node := rc.tree.FindLeaf(gen.OutlineBID)
	if node == nil {
		return apierr.NotFound("OUTLINE_NOT_FOUND", fmt.Errorf("outline %s not in struct tree", gen.OutlineBID))
	}

	blockPos := 0
	for _, b := range node.Blocks {
		if b.BID == gen.BlockBID {
			blockPos = b.Position
			break
		}
	}
	if blockPos == 0 {
		return apierr.NotFound("BLOCK_NOT_FOUND", fmt.Errorf("block %s not in outline %s", gen.BlockBID, gen.OutlineBID))
	}

	if err := rc.deps.Store.SupersedeGeneratedAfter(ctx, rec.BID, gen.Position); err != nil {
		return err
	}

	rec.BlockCursor = blockPos
	if rec.Status == types.ProgressCompleted {
		rec.Status = types.ProgressInProgress
	}
	if err := rc.deps.Store.UpdateProgress(ctx, rec); err != nil {
		return err
	}

	rc.node = node
	rc.record = rec
	rc.done = false
	return nil
}
