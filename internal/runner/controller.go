package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ai-shifu/shifu-backend/internal/apierr"
	redisclient "github.com/ai-shifu/shifu-backend/internal/clients/redis"
	"github.com/ai-shifu/shifu-backend/internal/logger"
	"github.com/ai-shifu/shifu-backend/internal/types"
)

// RunRequest is the external "run" operation: resume or advance a lesson,
// optionally staging input or re-running a historical block.
type RunRequest struct {
	User       *types.User
	ShifuBID   string
	OutlineBID string
	Preview    bool
	Input      string
	InputType  string
	ReloadBID  string
}

// RunStream is a live, FIFO event stream for one run. The consumer drains
// Events; Cancel stops the run cooperatively between blocks.
type RunStream struct {
	events     chan Event
	cancelOnce sync.Once
	cancelCh   chan struct{}
	done       chan struct{}
}

func (s *RunStream) Events() <-chan Event { return s.events }

// Cancel signals cooperative cancellation: the worker observes it between
// blocks, so at most one in-flight block finishes before teardown.
func (s *RunStream) Cancel() {
	s.cancelOnce.Do(func() { close(s.cancelCh) })
}

// Done closes once the stream has fully torn down and the lock is released.
func (s *RunStream) Done() <-chan struct{} { return s.done }

func (s *RunStream) canceled() bool {
	select {
	case <-s.cancelCh:
		return true
	default:
		return false
	}
}

// StudyController serializes execution per (learner, outline item) behind a
// distributed lock, drives the state machine on a worker goroutine and
// relays its events through a bounded queue with heartbeats.
type StudyController struct {
	log  *logger.Logger
	deps Deps
	lock redisclient.RunLock
}

func NewStudyController(deps Deps, lock redisclient.RunLock, baseLog *logger.Logger) *StudyController {
	return &StudyController{
		log:  baseLog.With("component", "StudyController"),
		deps: deps,
		lock: lock,
	}
}

func lockKey(userBID, outlineBID string) string {
	return fmt.Sprintf("lock:run:%s:%s", userBID, outlineBID)
}

// Stream starts one run. Domain errors (unknown shifu/outline, locked item)
// are returned synchronously; everything after lock acquisition arrives as
// events. On lock contention the stream carries a single "busy" end event
// and no persistence write is attempted.
func (c *StudyController) Stream(ctx context.Context, req RunRequest) (*RunStream, error) {
	rc, err := NewRunContext(ctx, c.deps, req.User, req.ShifuBID, req.OutlineBID, req.Preview)
	if err != nil {
		return nil, err
	}

	cfg := c.deps.Config
	stream := &RunStream{
		events:   make(chan Event, cfg.Stream.QueueSize),
		cancelCh: make(chan struct{}),
		done:     make(chan struct{}),
	}

	if rc.done {
		go func() {
			stream.events <- endEvent(EndReasonComplete)
			close(stream.events)
			close(stream.done)
		}()
		return stream, nil
	}

	key := lockKey(req.User.BID, rc.OutlineBID())
	token, err := c.lock.Acquire(ctx, key, cfg.LockTTL(), cfg.LockWait())
	if err != nil {
		return nil, err
	}
	if token == "" {
		c.log.Info("Run already in progress, rejecting", "key", key)
		go func() {
			stream.events <- endEvent(EndReasonBusy)
			close(stream.events)
			close(stream.done)
		}()
		return stream, nil
	}

	// The worker must survive a client disconnect for the duration of the
	// in-flight block; cancellation is the cooperative flag, not ctx.
	workerCtx := context.WithoutCancel(ctx)

	evs := make(chan Event, cfg.Stream.QueueSize)
	abort := make(chan struct{})
	workerDone := make(chan struct{})

	emit := func(ev Event) {
		select {
		case evs <- ev:
		case <-abort:
		}
	}

	go c.runWorker(workerCtx, rc, req, stream, emit, workerDone)
	go c.relay(key, token, stream, evs, abort, workerDone)

	return stream, nil
}

func (c *StudyController) runWorker(ctx context.Context, rc *RunContext, req RunRequest, stream *RunStream, emit func(Event), workerDone chan struct{}) {
	defer close(workerDone)

	rc.SetEmitter(emit)

	if req.ReloadBID != "" {
		if err := rc.Reload(ctx, req.ReloadBID); err != nil {
			c.emitFailure(emit, err)
			return
		}
		if _, err := rc.Step(ctx); err != nil {
			c.emitFailure(emit, err)
			return
		}
		emit(endEvent(EndReasonPause))
		return
	}

	if req.Input != "" || req.InputType != "" {
		rc.SetInput(req.Input, req.InputType)
	}

	for {
		if stream.canceled() {
			return
		}
		res, err := rc.Step(ctx)
		if err != nil {
			c.emitFailure(emit, err)
			return
		}
		if res.Done {
			emit(endEvent(EndReasonComplete))
			return
		}
		switch res.Outcome.Kind {
		case OutcomeAdvance, OutcomeBranch:
			continue
		default:
			// Suspend, Retry and Halt all hand control back to the learner.
			emit(endEvent(EndReasonPause))
			return
		}
	}
}

// emitFailure converts any worker error into one terminal event pair.
// Nothing below this boundary crashes the worker silently, and raw error
// text never reaches a client.
func (c *StudyController) emitFailure(emit func(Event), err error) {
	var ae *apierr.Error
	code := "RUN_FAILED"
	if errors.As(err, &ae) && ae.Code != "" {
		code = ae.Code
	}
	c.log.Error("Run worker failed", "error", err)
	emit(errorEvent(code))
	emit(endEvent(EndReasonError))
}

// relay drains the worker queue into the consumer stream, interleaving
// heartbeats while idle. The lock is released on every exit path.
func (c *StudyController) relay(key, token string, stream *RunStream, evs chan Event, abort chan struct{}, workerDone chan struct{}) {
	cfg := c.deps.Config
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.lock.Release(releaseCtx, key, token); err != nil {
			c.log.Warn("Run lock release failed", "key", key, "error", err)
		}
		close(stream.events)
		close(stream.done)
	}()

	heartbeat := time.NewTicker(cfg.Heartbeat())
	defer heartbeat.Stop()

	var joinDeadline <-chan time.Time
	for {
		select {
		case ev := <-evs:
			if stream.canceled() {
				continue
			}
			select {
			case stream.events <- ev:
			case <-stream.cancelCh:
			}
		case <-heartbeat.C:
			if stream.canceled() {
				continue
			}
			select {
			case stream.events <- heartbeatEvent():
			default:
				// Consumer is slow; skip this beat rather than block.
			}
		case <-stream.cancelCh:
			if joinDeadline == nil {
				joinDeadline = time.After(cfg.WorkerJoin())
			}
			select {
			case <-workerDone:
				return
			case <-evs:
				// Discard; the in-flight block is allowed to finish.
			case <-joinDeadline:
				c.log.Warn("Run worker did not stop within join timeout", "key", key)
				close(abort)
				return
			}
		case <-workerDone:
			// Flush whatever the worker left in the queue.
			for {
				select {
				case ev := <-evs:
					if stream.canceled() {
						return
					}
					select {
					case stream.events <- ev:
					case <-stream.cancelCh:
						return
					}
				default:
					return
				}
			}
		}
	}
}

// IsRunning reports whether a run currently holds the lock for the learner
// and outline item.
func (c *StudyController) IsRunning(ctx context.Context, userBID, outlineBID string) (bool, error) {
	return c.lock.IsLocked(ctx, lockKey(userBID, outlineBID))
}

// Transcript returns the learner's live transcript for an outline item in
// insertion order, superseded rows excluded. An unvisited item yields an
// empty transcript; scoping by the learner's own progress record is the
// ownership check.
func (c *StudyController) Transcript(ctx context.Context, user *types.User, outlineBID string) ([]*types.LearnGeneratedBlock, error) {
	rec, err := c.deps.Store.GetLiveProgress(ctx, user.BID, outlineBID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	return c.deps.Store.ListActiveGenerated(ctx, rec.BID)
}

// Like toggles the reaction flag on one transcript entry, the only in-place
// transcript update.
func (c *StudyController) Like(ctx context.Context, user *types.User, generatedBID string, liked int) error {
	gen, err := c.deps.Store.GetGenerated(ctx, generatedBID)
	if err != nil {
		return apierr.NotFound("GENERATED_BLOCK_NOT_FOUND", err)
	}
	rec, err := c.deps.Store.GetProgressByBID(ctx, gen.ProgressBID)
	if err != nil {
		return err
	}
	if rec.UserBID != user.BID {
		return apierr.New(403, "FORBIDDEN", fmt.Errorf("generated block %s belongs to another learner", generatedBID))
	}
	return c.deps.Store.SetGeneratedLiked(ctx, generatedBID, liked)
}

// Reset soft-invalidates the learner's progress under an outline subtree
// (or the whole shifu when outlineBID is empty). Fresh records appear
// lazily on next access.
func (c *StudyController) Reset(ctx context.Context, user *types.User, shifuBID, outlineBID string, preview bool) error {
	tree, err := c.deps.Resolver.GetStruct(ctx, shifuBID, preview, user.Paid)
	if err != nil {
		return err
	}
	bids := tree.SubtreeLeafBIDs(outlineBID)
	if len(bids) == 0 {
		return apierr.NotFound("OUTLINE_NOT_FOUND", fmt.Errorf("outline %s not in struct tree", outlineBID))
	}
	return c.deps.Store.BulkResetProgress(ctx, user.BID, bids)
}
