package services

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/ai-shifu/shifu-backend/internal/logger"
	"github.com/ai-shifu/shifu-backend/internal/types"
)

type askResolver struct {
	tree *StructTree
}

func (f *askResolver) GetShifu(ctx context.Context, shifuBID string, preview bool) (*types.Shifu, error) {
	return f.tree.Shifu, nil
}

func (f *askResolver) GetDefaultShifu(ctx context.Context, preview bool) (*types.Shifu, error) {
	return f.tree.Shifu, nil
}

func (f *askResolver) GetOutlineItem(ctx context.Context, outlineBID string, preview bool) (*types.OutlineItem, error) {
	for _, leaf := range f.tree.Leaves() {
		if leaf.Item.BID == outlineBID {
			return leaf.Item, nil
		}
	}
	return nil, fmt.Errorf("outline %s not found", outlineBID)
}

func (f *askResolver) GetStruct(ctx context.Context, shifuBID string, preview bool, paid bool) (*StructTree, error) {
	return f.tree, nil
}

type recordingLLM struct {
	model  string
	system string
	user   string
	reply  string
}

func (f *recordingLLM) StreamText(ctx context.Context, model, system, user string, temperature float64, onDelta func(delta string)) (string, error) {
	f.model, f.system, f.user = model, system, user
	onDelta(f.reply)
	return f.reply, nil
}

func (f *recordingLLM) GenerateJSON(ctx context.Context, model, system, user string, temperature float64) (map[string]any, error) {
	return nil, fmt.Errorf("not used")
}

func askTree(askHistoryLen int) *StructTree {
	shifu := &types.Shifu{
		BID: "shifu-1", Title: "Course", Model: "gpt-base", AskModel: "gpt-ask",
		AskPrompt: "You are the course tutor.", AskHistoryLen: askHistoryLen,
	}
	leaves := []*OutlineNode{
		{Item: &types.OutlineItem{BID: "lesson-1", Title: "Intro", Summary: "What the course covers"}},
		{Item: &types.OutlineItem{BID: "lesson-2", Title: "Loops", Summary: "for and while"}},
		{Item: &types.OutlineItem{BID: "lesson-3", Title: "Maps", Summary: "key lookups"}},
	}
	return NewStructTree(shifu, leaves)
}

func TestAskBuildsContextUpToCurrentLesson(t *testing.T) {
	tree := askTree(0)
	llm := &recordingLLM{reply: "Because loops repeat."}
	svc := NewAskService(&askResolver{tree: tree}, llm, logger.NewNop())

	var streamed string
	full, err := svc.Ask(context.Background(), AskRequest{
		User: &types.User{BID: "user-1"}, ShifuBID: "shifu-1", OutlineBID: "lesson-2",
		Question: "Why loops?",
	}, func(delta string) { streamed += delta })
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if full != "Because loops repeat." || streamed != full {
		t.Fatalf("answer = %q, streamed %q", full, streamed)
	}
	if llm.model != "gpt-ask" {
		t.Fatalf("model = %q, want ask model", llm.model)
	}
	if !strings.Contains(llm.system, "Intro: What the course covers") ||
		!strings.Contains(llm.system, "Loops: for and while") {
		t.Fatalf("system missing lesson summaries: %q", llm.system)
	}
	if strings.Contains(llm.system, "Maps") {
		t.Fatalf("system leaks lessons past the learner's position: %q", llm.system)
	}
	if !strings.HasSuffix(llm.user, "student: Why loops?") {
		t.Fatalf("user prompt = %q", llm.user)
	}
}

func TestAskOutlinePromptOverride(t *testing.T) {
	tree := askTree(0)
	tree.Leaves()[1].Item.AskPrompt = "Answer only about loops."
	llm := &recordingLLM{reply: "ok"}
	svc := NewAskService(&askResolver{tree: tree}, llm, logger.NewNop())

	if _, err := svc.Ask(context.Background(), AskRequest{
		User: &types.User{BID: "user-1"}, ShifuBID: "shifu-1", OutlineBID: "lesson-2",
		Question: "q",
	}, func(string) {}); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !strings.HasPrefix(llm.system, "Answer only about loops.") {
		t.Fatalf("system = %q, want outline override", llm.system)
	}
}

func TestAskCapsHistory(t *testing.T) {
	tree := askTree(2)
	llm := &recordingLLM{reply: "ok"}
	svc := NewAskService(&askResolver{tree: tree}, llm, logger.NewNop())

	history := []AskTurn{
		{Role: "student", Content: "first"},
		{Role: "teacher", Content: "second"},
		{Role: "student", Content: "third"},
	}
	if _, err := svc.Ask(context.Background(), AskRequest{
		User: &types.User{BID: "user-1"}, ShifuBID: "shifu-1",
		Question: "q", History: history,
	}, func(string) {}); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if strings.Contains(llm.user, "first") {
		t.Fatalf("history not capped: %q", llm.user)
	}
	if !strings.Contains(llm.user, "second") || !strings.Contains(llm.user, "third") {
		t.Fatalf("recent history dropped: %q", llm.user)
	}
}
