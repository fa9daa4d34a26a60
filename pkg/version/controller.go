// ABOUTME: Version controller serializing snapshot commits and restores for one whiteboard
// ABOUTME: Transient store failures are retried with bounded exponential backoff

package version

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nainya/boardstore/pkg/board"
)

// ErrClosed is returned for work submitted after Close
var ErrClosed = errors.New("version: controller closed")

type result struct {
	version *board.SnapshotVersion
	err     error
}

// job is one queued commit or restore
type job struct {
	restore bool
	payload string
	index   int
	ctx     context.Context
	done    chan result // restore only
}

// Controller owns the write path of one whiteboard. Commits and restores run
// on a single worker in submission order.
type Controller struct {
	store Persister
	id    string
	cfg   Config
	ctx   context.Context // for commits; never canceled

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*job
	running *job
	drawing bool
	closed  bool

	busy   bool
	idleCh chan struct{}

	notSaved bool
	pending  string
	lastErr  error
	last     *board.SnapshotVersion

	onCommitted []func(*board.SnapshotVersion, error)
	onRestored  []func(*board.SnapshotVersion)

	done chan struct{}
}

// New starts a controller for whiteboard id. Values in ctx (such as the
// author) are carried into every commit; its cancellation is not.
func New(ctx context.Context, store Persister, id string, cfg Config) *Controller {
	idle := make(chan struct{})
	close(idle)

	c := &Controller{
		store:  store,
		id:     id,
		cfg:    cfg,
		ctx:    context.WithoutCancel(ctx),
		idleCh: idle,
		done:   make(chan struct{}),
	}
	c.cond = sync.NewCond(&c.mu)
	go c.run()
	return c
}

// State returns the current lifecycle state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.drawing:
		return Drawing
	case c.busy:
		return Committing
	}
	return Idle
}

// Status returns the save indicator
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.busy:
		return Saving
	case c.notSaved:
		return NotSaved
	}
	return Saved
}

// Err returns the error of the last failed write, or nil once a later write
// succeeded
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Last returns the most recent version written through this controller
func (c *Controller) Last() *board.SnapshotVersion {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return nil
	}
	return c.last.Clone()
}

// OnCommitted registers fn to run after each commit attempt completes
func (c *Controller) OnCommitted(fn func(*board.SnapshotVersion, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCommitted = append(c.onCommitted, fn)
}

// OnRestored registers fn to run after each applied restore, before the
// restoring caller is released
func (c *Controller) OnRestored(fn func(*board.SnapshotVersion)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRestored = append(c.onRestored, fn)
}

// StrokeStarted moves the controller to Drawing. Restores still waiting in
// the queue are canceled with board.ErrBusy.
func (c *Controller) StrokeStarted() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.drawing = true

	kept := c.queue[:0]
	for _, j := range c.queue {
		if j.restore {
			j.done <- result{err: board.ErrBusy}
			continue
		}
		kept = append(kept, j)
	}
	c.queue = kept
	c.maybeIdleLocked()
}

// StrokeEnded leaves Drawing
func (c *Controller) StrokeEnded() {
	c.mu.Lock()
	c.drawing = false
	c.mu.Unlock()
}

// Submit queues payload to become the current snapshot
func (c *Controller) Submit(payload string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	c.enqueueLocked(&job{payload: payload})
	return nil
}

// Restore makes version index current. It runs as soon as earlier commits
// have resolved and fails with board.ErrBusy while a stroke is being drawn.
func (c *Controller) Restore(ctx context.Context, index int) (*board.SnapshotVersion, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.drawing {
		c.mu.Unlock()
		return nil, board.ErrBusy
	}
	j := &job{restore: true, index: index, ctx: ctx, done: make(chan result, 1)}
	c.enqueueLocked(j)
	c.mu.Unlock()

	select {
	case r := <-j.done:
		return r.version, r.err
	case <-ctx.Done():
		c.mu.Lock()
		c.removeLocked(j)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Flush resubmits an unsaved payload, if any, and waits for the queue to
// drain. It returns the error of the last write when the snapshot is still
// not saved.
func (c *Controller) Flush(ctx context.Context) error {
	c.mu.Lock()
	if c.notSaved && c.pending != "" && !c.closed && !c.hasCommitLocked() {
		c.enqueueLocked(&job{payload: c.pending})
	}
	c.mu.Unlock()

	if err := c.Wait(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.notSaved {
		return c.lastErr
	}
	return nil
}

// Wait blocks until no commit or restore is queued or running
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	ch := c.idleCh
	c.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting work. Queued work still runs; Done is closed once
// the worker exits.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.cond.Broadcast()
	c.mu.Unlock()
}

// Done is closed when the worker has exited after Close
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

func (c *Controller) enqueueLocked(j *job) {
	if !c.busy {
		c.busy = true
		c.idleCh = make(chan struct{})
	}
	c.queue = append(c.queue, j)
	c.cond.Signal()
}

func (c *Controller) removeLocked(target *job) {
	for i, j := range c.queue {
		if j == target {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			break
		}
	}
	c.maybeIdleLocked()
}

func (c *Controller) hasCommitLocked() bool {
	if c.running != nil && !c.running.restore {
		return true
	}
	for _, j := range c.queue {
		if !j.restore {
			return true
		}
	}
	return false
}

func (c *Controller) maybeIdleLocked() {
	if c.busy && c.running == nil && len(c.queue) == 0 {
		c.busy = false
		close(c.idleCh)
	}
}

func (c *Controller) run() {
	defer close(c.done)

	for {
		c.mu.Lock()
		for len(c.queue) == 0 && !c.closed {
			c.cond.Wait()
		}
		if len(c.queue) == 0 {
			c.mu.Unlock()
			return
		}
		j := c.queue[0]
		c.queue = c.queue[1:]
		c.running = j
		c.mu.Unlock()

		if j.restore {
			c.applyRestore(j)
		} else {
			c.applyCommit(j)
		}

		c.mu.Lock()
		c.running = nil
		c.maybeIdleLocked()
		c.mu.Unlock()
	}
}

func (c *Controller) applyCommit(j *job) {
	v, err := c.persist(c.ctx, "commit", func(ctx context.Context) (*board.SnapshotVersion, error) {
		return c.store.PutCurrent(ctx, c.id, j.payload)
	})

	c.mu.Lock()
	if err != nil {
		c.notSaved = true
		c.pending = j.payload
		c.lastErr = err
	} else {
		c.notSaved = false
		c.pending = ""
		c.lastErr = nil
		c.last = v
	}
	hooks := append([]func(*board.SnapshotVersion, error){}, c.onCommitted...)
	c.mu.Unlock()

	if err != nil {
		c.cfg.Logger.Error().Err(err).Str("whiteboard", c.id).Msg("Snapshot not saved")
	}
	for _, fn := range hooks {
		fn(v, err)
	}
}

func (c *Controller) applyRestore(j *job) {
	if err := j.ctx.Err(); err != nil {
		j.done <- result{err: err}
		return
	}

	// Author comes from the restoring caller, the rest from the session
	ctx := j.ctx
	if board.AuthorFrom(ctx) == "" {
		ctx = board.WithAuthor(ctx, board.AuthorFrom(c.ctx))
	}

	v, err := c.persist(ctx, "restore", func(ctx context.Context) (*board.SnapshotVersion, error) {
		return c.store.Restore(ctx, c.id, j.index)
	})
	if err != nil {
		j.done <- result{err: err}
		return
	}

	c.mu.Lock()
	c.notSaved = false
	c.pending = ""
	c.lastErr = nil
	c.last = v
	hooks := append([]func(*board.SnapshotVersion){}, c.onRestored...)
	c.mu.Unlock()

	for _, fn := range hooks {
		fn(v)
	}
	j.done <- result{version: v}
}

// persist runs op, retrying only board.ErrStoreUnavailable
func (c *Controller) persist(ctx context.Context, what string, op func(context.Context) (*board.SnapshotVersion, error)) (*board.SnapshotVersion, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialInterval
	b.MaxInterval = c.cfg.MaxInterval
	b.MaxElapsedTime = 0

	var v *board.SnapshotVersion
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		var err error
		v, err = op(ctx)
		if err != nil && !board.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, c.cfg.MaxRetries), ctx), func(err error, wait time.Duration) {
		c.cfg.Logger.Warn().
			Err(err).
			Str("whiteboard", c.id).
			Str("op", what).
			Int("attempt", attempt).
			Dur("retry_in", wait).
			Msg("Store unavailable, retrying")
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}
