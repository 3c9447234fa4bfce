package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ai-shifu/shifu-backend/internal/services"
	"github.com/ai-shifu/shifu-backend/internal/types"
)

// executeBlock dispatches one block to its handler. The switch is closed
// over the known block types; an unknown type is a hard error, not a silent
// skip.
func executeBlock(ctx context.Context, rc *RunContext, tx Store, blk *types.Block) (BlockOutcome, error) {
	switch blk.Type {
	case types.BlockTypeContent:
		return runContentBlock(ctx, rc, tx, blk)
	case types.BlockTypeInput:
		return runInputBlock(ctx, rc, tx, blk)
	case types.BlockTypeOptions:
		return runOptionsBlock(ctx, rc, tx, blk)
	case types.BlockTypeGoto:
		return runGotoBlock(ctx, rc, tx, blk)
	case types.BlockTypeButton:
		return runButtonBlock(ctx, rc, tx, blk)
	case types.BlockTypeLogin:
		return runLoginBlock(ctx, rc, blk)
	case types.BlockTypePhone:
		return runPhoneBlock(ctx, rc, blk)
	case types.BlockTypeCheckcode:
		return runCheckcodeBlock(ctx, rc, blk)
	case types.BlockTypePayment:
		return runPaymentBlock(ctx, rc, blk)
	default:
		return BlockOutcome{}, fmt.Errorf("unknown block type %q (block %s)", blk.Type, blk.BID)
	}
}

// effectiveModel resolves the model/temperature override chain:
// block → outline item → shifu default.
func (rc *RunContext) effectiveModel(blockModel string, blockTemp *float64) (string, float64) {
	model := strings.TrimSpace(blockModel)
	if model == "" {
		model = strings.TrimSpace(rc.node.Item.Model)
	}
	if model == "" {
		model = rc.tree.Shifu.Model
	}
	temp := rc.tree.Shifu.Temperature
	if rc.node.Item.Temperature != nil {
		temp = *rc.node.Item.Temperature
	}
	if blockTemp != nil {
		temp = *blockTemp
	}
	return model, temp
}

// appendGenerated appends one transcript row through the given store scope
// and returns its bid.
func appendGenerated(ctx context.Context, rc *RunContext, st Store, blk *types.Block, role, content string, ui *UIDescriptor) (string, error) {
	pos, err := st.NextGeneratedPosition(ctx, rc.record.BID)
	if err != nil {
		return "", err
	}
	row := &types.LearnGeneratedBlock{
		BID:         uuid.NewString(),
		ProgressBID: rc.record.BID,
		OutlineBID:  rc.node.Item.BID,
		BlockBID:    blk.BID,
		Role:        role,
		Content:     content,
		Status:      types.GeneratedActive,
		Position:    pos,
	}
	if ui != nil {
		raw, err := json.Marshal(ui)
		if err != nil {
			return "", err
		}
		row.UI = raw
	}
	if err := st.AppendGenerated(ctx, row); err != nil {
		return "", err
	}
	return row.BID, nil
}

// ---- content ----

func runContentBlock(ctx context.Context, rc *RunContext, tx Store, blk *types.Block) (BlockOutcome, error) {
	payload, err := blk.ContentPayload()
	if err != nil {
		return BlockOutcome{}, fmt.Errorf("content payload (block %s): %w", blk.BID, err)
	}

	// Fetch only the variables the template names; most blocks name none.
	var vars map[string]string
	if names := templateVarNames(payload.Text); len(names) > 0 {
		vars, err = rc.deps.Profile.Get(ctx, rc.user.BID, rc.tree.Shifu.BID, names)
		if err != nil {
			return BlockOutcome{}, err
		}
	}
	text := renderTemplate(payload.Text, vars)

	var full string
	if payload.LLMEnabled {
		model, temp := rc.effectiveModel(payload.Model, payload.Temperature)
		full, err = rc.deps.LLM.StreamText(ctx, model, "", text, temp, func(delta string) {
			rc.emit(contentEvent(delta))
		})
		if err != nil {
			return BlockOutcome{}, err
		}
	} else {
		// Static text is chunked to mimic token delivery so lessons feel
		// uniform whether or not a model produced them.
		full = text
		for _, chunk := range chunkRunes(text, rc.deps.Config.SimulateStreaming.ChunkRunes) {
			rc.emit(contentEvent(chunk))
			simulateStreamingSleep(rc.deps.Config.SimulateStreaming.MaxSleepMS)
		}
	}

	if _, err := appendGenerated(ctx, rc, tx, blk, types.RoleTeacher, full, nil); err != nil {
		return BlockOutcome{}, err
	}
	rc.emit(breakEvent())
	return advance(), nil
}

// ---- input ----

func runInputBlock(ctx context.Context, rc *RunContext, tx Store, blk *types.Block) (BlockOutcome, error) {
	payload, err := blk.InputPayload()
	if err != nil {
		return BlockOutcome{}, fmt.Errorf("input payload (block %s): %w", blk.BID, err)
	}

	if rc.input == nil || rc.input.Kind != InputKindText || strings.TrimSpace(rc.input.Value) == "" {
		rc.emit(interactionEvent(&UIDescriptor{Kind: UIInput, Placeholder: payload.Placeholder}))
		rc.emit(breakEvent())
		return suspend(), nil
	}
	answer := rc.input.Value

	// Flush the learner's own words through the root store, outside the
	// block transaction, so they survive any failure after this point.
	if _, err := appendGenerated(ctx, rc, rc.deps.Store, blk, types.RoleStudent, answer, nil); err != nil {
		return BlockOutcome{}, err
	}

	mod, err := rc.deps.Moderator.Check(ctx, answer, rc.user.BID, rc.record.BID)
	if err != nil {
		return BlockOutcome{}, err
	}
	if mod.Verdict == services.VerdictReject {
		rejection := "INPUT_REJECTED"
		if _, err := appendGenerated(ctx, rc, tx, blk, types.RoleTeacher, rejection, nil); err != nil {
			return BlockOutcome{}, err
		}
		rc.emit(errorEvent(rejection))
		rc.emit(breakEvent())
		return retry(rejection), nil
	}

	model, temp := rc.effectiveModel(payload.Model, payload.Temperature)
	vars, err := rc.deps.Profile.GetAll(ctx, rc.user.BID, rc.tree.Shifu.BID)
	if err != nil {
		return BlockOutcome{}, err
	}
	user := fmt.Sprintf("%s\n\nExpected variables: %s\nStudent answer: %s",
		renderTemplate(payload.Prompt, vars), strings.Join(payload.Vars, ", "), answer)

	obj, err := rc.deps.LLM.GenerateJSON(ctx, model, rc.deps.Config.Input.SystemPrompt, user, temp)
	if err != nil {
		return BlockOutcome{}, err
	}

	result, _ := obj["result"].(string)
	if result != "ok" {
		reason, _ := obj["reason"].(string)
		if reason == "" {
			reason = "INPUT_PARSE_FAILED"
		}
		if _, err := appendGenerated(ctx, rc, tx, blk, types.RoleTeacher, reason, nil); err != nil {
			return BlockOutcome{}, err
		}
		rc.emit(contentEvent(reason))
		rc.emit(breakEvent())
		return retry(reason), nil
	}

	parsed, _ := obj["parse_vars"].(map[string]any)
	if len(parsed) == 0 {
		reason := "INPUT_PARSE_FAILED"
		rc.emit(contentEvent(reason))
		rc.emit(breakEvent())
		return retry(reason), nil
	}

	wanted := map[string]bool{}
	for _, name := range payload.Vars {
		wanted[name] = true
	}
	toSet := map[string]string{}
	for k, v := range parsed {
		if len(wanted) > 0 && !wanted[k] {
			continue
		}
		toSet[k] = fmt.Sprintf("%v", v)
	}
	if err := rc.deps.Profile.Set(ctx, rc.user.BID, rc.tree.Shifu.BID, toSet); err != nil {
		return BlockOutcome{}, err
	}
	for k, v := range toSet {
		rc.emit(variableEvent(k, v))
	}
	rc.emit(breakEvent())
	return advance(), nil
}

// ---- options ----

func runOptionsBlock(ctx context.Context, rc *RunContext, tx Store, blk *types.Block) (BlockOutcome, error) {
	payload, err := blk.OptionsPayload()
	if err != nil {
		return BlockOutcome{}, fmt.Errorf("options payload (block %s): %w", blk.BID, err)
	}

	if rc.input == nil || rc.input.Kind != InputKindSelect {
		rc.emit(interactionEvent(&UIDescriptor{Kind: UIOptions, Options: payload.Options}))
		rc.emit(breakEvent())
		return suspend(), nil
	}

	chosen := rc.input.Value
	valid := false
	for _, opt := range payload.Options {
		if opt.Value == chosen {
			valid = true
			break
		}
	}
	if !valid {
		rc.emit(interactionEvent(&UIDescriptor{Kind: UIOptions, Options: payload.Options}))
		rc.emit(breakEvent())
		return retry("OPTION_INVALID"), nil
	}

	if _, err := appendGenerated(ctx, rc, tx, blk, types.RoleStudent, chosen, nil); err != nil {
		return BlockOutcome{}, err
	}
	if err := rc.deps.Profile.Set(ctx, rc.user.BID, rc.tree.Shifu.BID, map[string]string{payload.Var: chosen}); err != nil {
		return BlockOutcome{}, err
	}
	rc.emit(variableEvent(payload.Var, chosen))
	rc.emit(breakEvent())
	return advance(), nil
}

// ---- goto ----

func runGotoBlock(ctx context.Context, rc *RunContext, tx Store, blk *types.Block) (BlockOutcome, error) {
	payload, err := blk.GotoPayload()
	if err != nil {
		return BlockOutcome{}, fmt.Errorf("goto payload (block %s): %w", blk.BID, err)
	}

	vals, err := rc.deps.Profile.Get(ctx, rc.user.BID, rc.tree.Shifu.BID, []string{payload.Var})
	if err != nil {
		return BlockOutcome{}, err
	}
	current := vals[payload.Var]

	// First match wins; exact string equality, no wildcards.
	var target string
	for _, rule := range payload.Rules {
		if rule.Value == current {
			target = rule.OutlineBID
			break
		}
	}
	if target == "" {
		rc.deps.Log.Warn("Goto block matched no rule",
			"block", blk.BID, "var", payload.Var, "value", current)
		rc.emit(interactionEvent(&UIDescriptor{Kind: UIButton, Label: "continue"}))
		rc.emit(breakEvent())
		return halt("GOTO_NO_MATCH"), nil
	}

	targetNode := rc.tree.FindLeaf(target)
	if targetNode == nil {
		return BlockOutcome{}, fmt.Errorf("goto target %s not in struct tree (block %s)", target, blk.BID)
	}

	targetRec, err := tx.GetLiveProgress(ctx, rc.user.BID, target)
	if err != nil {
		return BlockOutcome{}, err
	}
	if targetRec == nil {
		targetRec = &types.LearnProgressRecord{
			BID:         uuid.NewString(),
			UserBID:     rc.user.BID,
			ShifuBID:    rc.tree.Shifu.BID,
			OutlineBID:  target,
			Status:      types.ProgressInProgress,
			BlockCursor: 1,
		}
		if err := tx.CreateProgress(ctx, targetRec); err != nil {
			return BlockOutcome{}, err
		}
	} else if targetRec.Status != types.ProgressInProgress {
		targetRec.Status = types.ProgressInProgress
		if err := tx.UpdateProgress(ctx, targetRec); err != nil {
			return BlockOutcome{}, err
		}
	}

	rc.record.Status = types.ProgressBranched
	if err := tx.UpdateProgress(ctx, rc.record); err != nil {
		return BlockOutcome{}, err
	}

	if err := tx.CreateBranchLink(ctx, &types.BranchLink{
		SourceProgressBID: rc.record.BID,
		TargetProgressBID: targetRec.BID,
		BlockBID:          blk.BID,
	}); err != nil {
		return BlockOutcome{}, err
	}

	rc.emit(outlineEvent(rc.node.Item.BID, types.ProgressBranched))
	rc.emit(outlineEvent(target, types.ProgressInProgress))
	rc.emit(breakEvent())
	return branch(target), nil
}

// ---- button ----

func runButtonBlock(ctx context.Context, rc *RunContext, tx Store, blk *types.Block) (BlockOutcome, error) {
	if rc.input != nil && (rc.input.Kind == InputKindClick || rc.input.Kind == InputKindStart) {
		rc.emit(breakEvent())
		return advance(), nil
	}
	label := "continue"
	var payload types.ButtonPayload
	if len(blk.Payload) > 0 {
		if err := json.Unmarshal(blk.Payload, &payload); err == nil && payload.Label != "" {
			label = payload.Label
		}
	}
	rc.emit(interactionEvent(&UIDescriptor{Kind: UIButton, Label: label}))
	rc.emit(breakEvent())
	return suspend(), nil
}

// ---- gates ----
// Gates never loop internally: they suspend and the HTTP layer re-enters the
// same block once the out-of-band action completed.

func runLoginBlock(ctx context.Context, rc *RunContext, blk *types.Block) (BlockOutcome, error) {
	if rc.user.Email != "" || rc.user.Mobile != "" {
		rc.emit(breakEvent())
		return advance(), nil
	}
	rc.emit(interactionEvent(&UIDescriptor{Kind: UILogin}))
	rc.emit(breakEvent())
	return suspend(), nil
}

func runPhoneBlock(ctx context.Context, rc *RunContext, blk *types.Block) (BlockOutcome, error) {
	if rc.user.Mobile != "" {
		rc.emit(breakEvent())
		return advance(), nil
	}
	rc.emit(interactionEvent(&UIDescriptor{Kind: UIPhone}))
	rc.emit(breakEvent())
	return suspend(), nil
}

func runCheckcodeBlock(ctx context.Context, rc *RunContext, blk *types.Block) (BlockOutcome, error) {
	if rc.user.Mobile != "" {
		rc.emit(breakEvent())
		return advance(), nil
	}
	rc.emit(interactionEvent(&UIDescriptor{Kind: UICheckcode}))
	rc.emit(breakEvent())
	return suspend(), nil
}

func runPaymentBlock(ctx context.Context, rc *RunContext, blk *types.Block) (BlockOutcome, error) {
	if rc.user.Paid || rc.tree.Shifu.Price == 0 {
		rc.emit(breakEvent())
		return advance(), nil
	}
	price := rc.tree.Shifu.Price
	var payload types.PaymentPayload
	if len(blk.Payload) > 0 {
		if err := json.Unmarshal(blk.Payload, &payload); err == nil && payload.Price > 0 {
			price = payload.Price
		}
	}
	rc.emit(interactionEvent(&UIDescriptor{Kind: UIPayment, Price: price}))
	rc.emit(breakEvent())
	return suspend(), nil
}
