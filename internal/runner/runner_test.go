package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ai-shifu/shifu-backend/internal/logger"
	"github.com/ai-shifu/shifu-backend/internal/services"
	"github.com/ai-shifu/shifu-backend/internal/types"
)

// ---- in-memory store ----

type fakeStore struct {
	mu        sync.Mutex
	progress  map[string]*types.LearnProgressRecord
	generated []*types.LearnGeneratedBlock
	branches  []*types.BranchLink
	writes    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{progress: map[string]*types.LearnProgressRecord{}}
}

func (s *fakeStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return fn(s)
}

func (s *fakeStore) GetLiveProgress(ctx context.Context, userBID, outlineBID string) (*types.LearnProgressRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.progress {
		if rec.UserBID == userBID && rec.OutlineBID == outlineBID && rec.Status != types.ProgressReset {
			return rec, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) GetProgressByBID(ctx context.Context, bid string) (*types.LearnProgressRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.progress[bid]
	if !ok {
		return nil, fmt.Errorf("progress %s not found", bid)
	}
	return rec, nil
}

func (s *fakeStore) CreateProgress(ctx context.Context, row *types.LearnProgressRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	s.progress[row.BID] = row
	return nil
}

func (s *fakeStore) UpdateProgress(ctx context.Context, row *types.LearnProgressRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	s.progress[row.BID] = row
	return nil
}

func (s *fakeStore) BulkResetProgress(ctx context.Context, userBID string, outlineBIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	want := map[string]bool{}
	for _, bid := range outlineBIDs {
		want[bid] = true
	}
	for _, rec := range s.progress {
		if rec.UserBID == userBID && want[rec.OutlineBID] {
			rec.Status = types.ProgressReset
		}
	}
	return nil
}

func (s *fakeStore) AppendGenerated(ctx context.Context, row *types.LearnGeneratedBlock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	s.generated = append(s.generated, row)
	return nil
}

func (s *fakeStore) GetGenerated(ctx context.Context, bid string) (*types.LearnGeneratedBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.generated {
		if g.BID == bid {
			return g, nil
		}
	}
	return nil, fmt.Errorf("generated %s not found", bid)
}

func (s *fakeStore) ListActiveGenerated(ctx context.Context, progressBID string) ([]*types.LearnGeneratedBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.LearnGeneratedBlock
	for _, g := range s.generated {
		if g.ProgressBID == progressBID && g.Status == types.GeneratedActive {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *fakeStore) SupersedeGeneratedAfter(ctx context.Context, progressBID string, position int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	for _, g := range s.generated {
		if g.ProgressBID == progressBID && g.Position >= position {
			g.Status = types.GeneratedSuperseded
		}
	}
	return nil
}

func (s *fakeStore) NextGeneratedPosition(ctx context.Context, progressBID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	max := 0
	for _, g := range s.generated {
		if g.ProgressBID == progressBID && g.Position > max {
			max = g.Position
		}
	}
	return max + 1, nil
}

func (s *fakeStore) SetGeneratedLiked(ctx context.Context, bid string, liked int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	for _, g := range s.generated {
		if g.BID == bid {
			g.Liked = liked
			return nil
		}
	}
	return fmt.Errorf("generated %s not found", bid)
}

func (s *fakeStore) CreateBranchLink(ctx context.Context, row *types.BranchLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	s.branches = append(s.branches, row)
	return nil
}

func (s *fakeStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *fakeStore) progressFor(userBID, outlineBID string) *types.LearnProgressRecord {
	rec, _ := s.GetLiveProgress(context.Background(), userBID, outlineBID)
	return rec
}

// ---- resolver ----

type fakeResolver struct {
	tree *services.StructTree
}

func (f *fakeResolver) GetShifu(ctx context.Context, shifuBID string, preview bool) (*types.Shifu, error) {
	return f.tree.Shifu, nil
}

func (f *fakeResolver) GetDefaultShifu(ctx context.Context, preview bool) (*types.Shifu, error) {
	return f.tree.Shifu, nil
}

func (f *fakeResolver) GetOutlineItem(ctx context.Context, outlineBID string, preview bool) (*types.OutlineItem, error) {
	if n := f.tree.FindLeaf(outlineBID); n != nil {
		return n.Item, nil
	}
	return nil, fmt.Errorf("outline %s not found", outlineBID)
}

func (f *fakeResolver) GetStruct(ctx context.Context, shifuBID string, preview bool, paid bool) (*services.StructTree, error) {
	return f.tree, nil
}

// ---- llm ----

type fakeLLM struct {
	mu         sync.Mutex
	streamText string
	streamErr  error
	jsonObj    map[string]any
	jsonErr    error
	calls      int
	delay      time.Duration
}

func (f *fakeLLM) StreamText(ctx context.Context, model, system, user string, temperature float64, onDelta func(delta string)) (string, error) {
	f.mu.Lock()
	f.calls++
	text, err, delay := f.streamText, f.streamErr, f.delay
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return "", err
	}
	for _, chunk := range chunkRunes(text, 4) {
		onDelta(chunk)
	}
	return text, nil
}

func (f *fakeLLM) GenerateJSON(ctx context.Context, model, system, user string, temperature float64) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.jsonErr != nil {
		return nil, f.jsonErr
	}
	return f.jsonObj, nil
}

// ---- moderation ----

type fakeModerator struct {
	verdict string
}

func (f *fakeModerator) Check(ctx context.Context, content, userBID, contextID string) (services.ModerationResult, error) {
	verdict := f.verdict
	if verdict == "" {
		verdict = services.VerdictPass
	}
	return services.ModerationResult{Verdict: verdict}, nil
}

// ---- profile ----

type fakeProfile struct {
	mu   sync.Mutex
	vars map[string]string
	gets [][]string
}

func newFakeProfile() *fakeProfile { return &fakeProfile{vars: map[string]string{}} }

func (f *fakeProfile) Get(ctx context.Context, userBID, shifuBID string, keys []string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets = append(f.gets, keys)
	out := map[string]string{}
	for _, k := range keys {
		if v, ok := f.vars[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (f *fakeProfile) GetAll(ctx context.Context, userBID, shifuBID string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]string{}
	for k, v := range f.vars {
		out[k] = v
	}
	return out, nil
}

func (f *fakeProfile) Set(ctx context.Context, userBID, shifuBID string, vars map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, v := range vars {
		f.vars[k] = v
	}
	return nil
}

// ---- lock ----

type fakeLock struct {
	mu   sync.Mutex
	held map[string]string
	next int
}

func newFakeLock() *fakeLock { return &fakeLock{held: map[string]string{}} }

func (f *fakeLock) Acquire(ctx context.Context, key string, ttl, wait time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.held[key]; ok {
		return "", nil
	}
	f.next++
	token := fmt.Sprintf("tok-%d", f.next)
	f.held[key] = token
	return token, nil
}

func (f *fakeLock) Release(ctx context.Context, key, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[key] == token {
		delete(f.held, key)
	}
	return nil
}

func (f *fakeLock) IsLocked(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.held[key]
	return ok, nil
}

func (f *fakeLock) Close() error { return nil }

// ---- builders ----

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.SimulateStreaming.MaxSleepMS = 0
	return cfg
}

func testShifu() *types.Shifu {
	return &types.Shifu{BID: "shifu-1", Title: "Test Course", Model: "gpt-test", Temperature: 0.3}
}

func leafNode(bid string, blocks ...*types.Block) *services.OutlineNode {
	return &services.OutlineNode{
		Item:   &types.OutlineItem{BID: bid, ShifuBID: "shifu-1", Title: bid, Type: types.OutlineTypeNormal},
		Blocks: blocks,
	}
}

func testTree(roots ...*services.OutlineNode) *services.StructTree {
	return services.NewStructTree(testShifu(), roots)
}

func mustPayload(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return raw
}

func contentBlock(t *testing.T, bid string, pos int, text string, llm bool) *types.Block {
	return &types.Block{
		BID:      bid,
		Position: pos,
		Type:     types.BlockTypeContent,
		Payload:  mustPayload(t, types.ContentPayload{Text: text, LLMEnabled: llm}),
	}
}

func testUser() *types.User {
	return &types.User{BID: "user-1", Email: "learner@example.com"}
}

type testEnv struct {
	deps    Deps
	store   *fakeStore
	llm     *fakeLLM
	profile *fakeProfile
	mod     *fakeModerator
}

func newTestEnv(t *testing.T, tree *services.StructTree) *testEnv {
	t.Helper()
	env := &testEnv{
		store:   newFakeStore(),
		llm:     &fakeLLM{},
		profile: newFakeProfile(),
		mod:     &fakeModerator{},
	}
	env.deps = Deps{
		Log:       logger.NewNop(),
		Resolver:  &fakeResolver{tree: tree},
		LLM:       env.llm,
		Moderator: env.mod,
		Profile:   env.profile,
		Store:     env.store,
		Config:    testConfig(t),
	}
	return env
}

func collectEvents(rc *RunContext) *[]Event {
	var events []Event
	rc.SetEmitter(func(ev Event) { events = append(events, ev) })
	return &events
}

func eventTypes(events []Event) []EventType {
	out := make([]EventType, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

func joinedContent(events []Event) string {
	var s string
	for _, ev := range events {
		if ev.Type == EventContent {
			s += ev.Text
		}
	}
	return s
}
