package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ai-shifu/shifu-backend/internal/apierr"
	"github.com/ai-shifu/shifu-backend/internal/logger"
	"github.com/ai-shifu/shifu-backend/internal/types"
)

func drainStream(t *testing.T, stream *RunStream) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-stream.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("stream did not close; got %v", eventTypes(events))
		}
	}
}

func waitDone(t *testing.T, stream *RunStream) {
	t.Helper()
	select {
	case <-stream.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("stream did not tear down")
	}
}

func TestStreamCompleteRun(t *testing.T) {
	tree := testTree(leafNode("leaf-1", contentBlock(t, "blk-1", 1, "hello world", false)))
	env := newTestEnv(t, tree)
	lock := newFakeLock()
	c := NewStudyController(env.deps, lock, logger.NewNop())

	stream, err := c.Stream(context.Background(), RunRequest{User: testUser(), ShifuBID: "shifu-1", OutlineBID: "leaf-1"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	events := drainStream(t, stream)
	waitDone(t, stream)

	if len(events) == 0 || events[len(events)-1].Type != EventEnd {
		t.Fatalf("events = %v, want trailing end", eventTypes(events))
	}
	if events[len(events)-1].Reason != EndReasonComplete {
		t.Fatalf("end reason = %q, want complete", events[len(events)-1].Reason)
	}
	if got := joinedContent(events); got != "hello world" {
		t.Fatalf("content = %q", got)
	}
	if held, _ := lock.IsLocked(context.Background(), lockKey("user-1", "leaf-1")); held {
		t.Fatalf("lock still held after stream closed")
	}
}

func TestStreamPausesOnInteraction(t *testing.T) {
	blk := &types.Block{BID: "blk-1", Position: 1, Type: types.BlockTypeButton, Payload: mustPayload(t, types.ButtonPayload{})}
	tree := testTree(leafNode("leaf-1", blk))
	env := newTestEnv(t, tree)
	c := NewStudyController(env.deps, newFakeLock(), logger.NewNop())

	stream, err := c.Stream(context.Background(), RunRequest{User: testUser(), ShifuBID: "shifu-1", OutlineBID: "leaf-1"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	events := drainStream(t, stream)
	waitDone(t, stream)

	last := events[len(events)-1]
	if last.Type != EventEnd || last.Reason != EndReasonPause {
		t.Fatalf("last event = %+v, want pause end", last)
	}
	hasInteraction := false
	for _, ev := range events {
		if ev.Type == EventInteraction {
			hasInteraction = true
		}
	}
	if !hasInteraction {
		t.Fatalf("expected interaction before pause, got %v", eventTypes(events))
	}
}

func TestStreamBusyWritesNothing(t *testing.T) {
	tree := testTree(leafNode("leaf-1", contentBlock(t, "blk-1", 1, "hello", false)))
	env := newTestEnv(t, tree)
	lock := newFakeLock()
	if _, err := lock.Acquire(context.Background(), lockKey("user-1", "leaf-1"), time.Minute, 0); err != nil {
		t.Fatalf("pre-acquire: %v", err)
	}
	c := NewStudyController(env.deps, lock, logger.NewNop())

	stream, err := c.Stream(context.Background(), RunRequest{User: testUser(), ShifuBID: "shifu-1", OutlineBID: "leaf-1"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	events := drainStream(t, stream)
	waitDone(t, stream)

	if len(events) != 1 || events[0].Type != EventEnd || events[0].Reason != EndReasonBusy {
		t.Fatalf("events = %v, want single busy end", events)
	}
	if env.store.writeCount() != 0 {
		t.Fatalf("busy rejection must not write, got %d writes", env.store.writeCount())
	}
}

func TestStreamCancelReleasesLock(t *testing.T) {
	blk := &types.Block{
		BID:      "blk-1",
		Position: 1,
		Type:     types.BlockTypeContent,
		Payload:  mustPayload(t, types.ContentPayload{Text: "slow", LLMEnabled: true}),
	}
	tree := testTree(
		leafNode("leaf-1", blk),
		leafNode("leaf-2", contentBlock(t, "blk-2", 1, "next", false)),
	)
	env := newTestEnv(t, tree)
	env.llm.streamText = "slow answer"
	env.llm.delay = 50 * time.Millisecond
	lock := newFakeLock()
	c := NewStudyController(env.deps, lock, logger.NewNop())

	stream, err := c.Stream(context.Background(), RunRequest{User: testUser(), ShifuBID: "shifu-1", OutlineBID: "leaf-1"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	stream.Cancel()
	waitDone(t, stream)

	if held, _ := lock.IsLocked(context.Background(), lockKey("user-1", "leaf-1")); held {
		t.Fatalf("lock still held after cancel")
	}
	// At most the in-flight block persists; the next item is never touched.
	if rec := env.store.progressFor("user-1", "leaf-2"); rec != nil {
		t.Fatalf("writes continued past the canceled block: %+v", rec)
	}
}

func TestTranscriptReturnsLiveRows(t *testing.T) {
	env := newTestEnv(t, testTree(leafNode("leaf-1")))
	env.store.progress["rec-1"] = &types.LearnProgressRecord{
		BID: "rec-1", UserBID: "user-1", OutlineBID: "leaf-1", Status: types.ProgressInProgress,
	}
	env.store.generated = []*types.LearnGeneratedBlock{
		{BID: "gen-1", ProgressBID: "rec-1", Role: types.RoleTeacher, Content: "old", Status: types.GeneratedSuperseded, Position: 1},
		{BID: "gen-2", ProgressBID: "rec-1", Role: types.RoleTeacher, Content: "one", Status: types.GeneratedActive, Position: 2},
		{BID: "gen-3", ProgressBID: "rec-1", Role: types.RoleStudent, Content: "hi", Status: types.GeneratedActive, Position: 3},
	}
	c := NewStudyController(env.deps, newFakeLock(), logger.NewNop())

	rows, err := c.Transcript(context.Background(), testUser(), "leaf-1")
	if err != nil {
		t.Fatalf("Transcript: %v", err)
	}
	if len(rows) != 2 || rows[0].BID != "gen-2" || rows[1].BID != "gen-3" {
		t.Fatalf("rows = %+v, want active gen-2, gen-3", rows)
	}

	// Another learner has no record for this item and sees nothing.
	rows, err = c.Transcript(context.Background(), &types.User{BID: "user-2"}, "leaf-1")
	if err != nil || len(rows) != 0 {
		t.Fatalf("foreign transcript = (%v, %v), want empty", rows, err)
	}
}

func TestStreamErrorSurfacesCode(t *testing.T) {
	blk := &types.Block{
		BID:      "blk-1",
		Position: 1,
		Type:     types.BlockTypeContent,
		Payload:  mustPayload(t, types.ContentPayload{Text: "x", LLMEnabled: true}),
	}
	tree := testTree(leafNode("leaf-1", blk))
	env := newTestEnv(t, tree)
	env.llm.streamErr = errors.New("upstream exploded")
	c := NewStudyController(env.deps, newFakeLock(), logger.NewNop())

	stream, err := c.Stream(context.Background(), RunRequest{User: testUser(), ShifuBID: "shifu-1", OutlineBID: "leaf-1"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	events := drainStream(t, stream)
	waitDone(t, stream)

	var code string
	for _, ev := range events {
		if ev.Type == EventError {
			code = ev.Text
		}
	}
	if code != "RUN_FAILED" {
		t.Fatalf("error code = %q, want opaque RUN_FAILED", code)
	}
	last := events[len(events)-1]
	if last.Type != EventEnd || last.Reason != EndReasonError {
		t.Fatalf("last event = %+v, want error end", last)
	}
}

func TestIsRunning(t *testing.T) {
	env := newTestEnv(t, testTree(leafNode("leaf-1")))
	lock := newFakeLock()
	c := NewStudyController(env.deps, lock, logger.NewNop())

	running, err := c.IsRunning(context.Background(), "user-1", "leaf-1")
	if err != nil || running {
		t.Fatalf("IsRunning = (%v, %v), want idle", running, err)
	}
	if _, err := lock.Acquire(context.Background(), lockKey("user-1", "leaf-1"), time.Minute, 0); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	running, err = c.IsRunning(context.Background(), "user-1", "leaf-1")
	if err != nil || !running {
		t.Fatalf("IsRunning = (%v, %v), want running", running, err)
	}
}

func TestLikeChecksOwnership(t *testing.T) {
	env := newTestEnv(t, testTree(leafNode("leaf-1")))
	env.store.progress["rec-1"] = &types.LearnProgressRecord{
		BID: "rec-1", UserBID: "user-1", OutlineBID: "leaf-1", Status: types.ProgressCompleted,
	}
	env.store.generated = []*types.LearnGeneratedBlock{
		{BID: "gen-1", ProgressBID: "rec-1", Status: types.GeneratedActive, Position: 1},
	}
	c := NewStudyController(env.deps, newFakeLock(), logger.NewNop())

	if err := c.Like(context.Background(), testUser(), "gen-1", types.LikedUp); err != nil {
		t.Fatalf("Like: %v", err)
	}
	if env.store.generated[0].Liked != types.LikedUp {
		t.Fatalf("liked = %d", env.store.generated[0].Liked)
	}

	other := &types.User{BID: "user-2"}
	err := c.Like(context.Background(), other, "gen-1", types.LikedDown)
	var ae *apierr.Error
	if !errors.As(err, &ae) || ae.Status != 403 {
		t.Fatalf("err = %v, want 403", err)
	}
}

func TestResetSubtree(t *testing.T) {
	tree := testTree(
		leafNode("leaf-1", contentBlock(t, "blk-1", 1, "one", false)),
		leafNode("leaf-2", contentBlock(t, "blk-2", 1, "two", false)),
	)
	env := newTestEnv(t, tree)
	env.store.progress["rec-1"] = &types.LearnProgressRecord{
		BID: "rec-1", UserBID: "user-1", OutlineBID: "leaf-1", Status: types.ProgressCompleted,
	}
	env.store.progress["rec-2"] = &types.LearnProgressRecord{
		BID: "rec-2", UserBID: "user-1", OutlineBID: "leaf-2", Status: types.ProgressInProgress,
	}
	c := NewStudyController(env.deps, newFakeLock(), logger.NewNop())

	if err := c.Reset(context.Background(), testUser(), "shifu-1", "leaf-1", false); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if env.store.progress["rec-1"].Status != types.ProgressReset {
		t.Fatalf("leaf-1 status = %s, want reset", env.store.progress["rec-1"].Status)
	}
	if env.store.progress["rec-2"].Status != types.ProgressInProgress {
		t.Fatalf("leaf-2 must be untouched, got %s", env.store.progress["rec-2"].Status)
	}
}
