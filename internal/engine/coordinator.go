package engine

import (
	"context"
	"sync"

	"github.com/openmiclive/lineup/internal/domain"
	apperrors "github.com/openmiclive/lineup/internal/errors"
	"github.com/openmiclive/lineup/pkg/logger"
)

// Result is the durable outcome of one mutation.
type Result struct {
	Signup *domain.Signup
	Err    error
}

// NoticeFunc surfaces a rejected mutation to whoever is watching the
// view. The pre-mutation state has already been restored when it fires.
type NoticeFunc func(id string, err error)

// Coordinator applies mutations to the local view immediately, issues the
// durable write in the background, and reconciles the view with the
// authoritative record on success or restores the pre-mutation snapshot on
// failure.
//
// Mutations to different signups are independent. Same-signup concurrency
// is not serialized here; the durable store's own semantics decide the
// winner, and each mutation rolls back to its own snapshot regardless.
type Coordinator struct {
	view   *View
	l      logger.Logger
	notice NoticeFunc

	// settleMu serializes only the settle step (reconcile or rollback),
	// not the writes themselves.
	settleMu sync.Mutex
	wg       sync.WaitGroup
}

func NewCoordinator(view *View, l logger.Logger, notice NoticeFunc) *Coordinator {
	return &Coordinator{view: view, l: l, notice: notice}
}

// Mutate captures the pre-mutation record, applies the change to the local
// view synchronously, and issues the durable write asynchronously. The
// returned channel delivers exactly one Result once the write settles.
//
// A NotFoundError is returned synchronously when the id is absent from the
// view; nothing is applied in that case.
func (c *Coordinator) Mutate(
	ctx context.Context,
	id string,
	apply func(su *domain.Signup),
	write func(ctx context.Context) (*domain.Signup, error),
) (<-chan Result, error) {
	var (
		pre *domain.Signup
		gen uint64
	)
	for {
		var ok bool
		pre, gen, ok = c.view.GetWithGeneration(id)
		if !ok {
			return nil, apperrors.NewNotFoundError(id)
		}
		optimistic := pre.Clone()
		apply(optimistic)
		if c.view.PutIfGeneration(optimistic, gen) {
			break
		}
		// A refresh replaced the view mid-apply; re-read and retry.
	}

	ch := make(chan Result, 1)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		authoritative, err := write(ctx)
		c.settle(id, pre, gen, authoritative, err)
		ch <- Result{Signup: authoritative, Err: err}
	}()
	return ch, nil
}

// Remove optimistically drops the record from the view and issues the
// destructive write. On failure the record is restored.
func (c *Coordinator) Remove(
	ctx context.Context,
	id string,
	write func(ctx context.Context) error,
) (<-chan Result, error) {
	var (
		pre *domain.Signup
		gen uint64
	)
	for {
		var ok bool
		pre, gen, ok = c.view.GetWithGeneration(id)
		if !ok {
			return nil, apperrors.NewNotFoundError(id)
		}
		if c.view.RemoveIfGeneration(id, gen) {
			break
		}
	}

	ch := make(chan Result, 1)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		err := write(ctx)

		c.settleMu.Lock()
		if err != nil && c.view.Generation() == gen {
			c.view.Put(pre)
		}
		c.settleMu.Unlock()

		if err != nil {
			c.l.Warn("delete rejected, view restored", "id", id, "error", err)
			if c.notice != nil {
				c.notice(id, err)
			}
		}
		ch <- Result{Err: err}
	}()
	return ch, nil
}

// settle reconciles the view with the authoritative post-write record, or
// rolls the optimistic change back to the captured snapshot. Either way a
// wholesale refresh that landed in between wins and the outcome is
// discarded.
func (c *Coordinator) settle(id string, pre *domain.Signup, gen uint64, authoritative *domain.Signup, err error) {
	c.settleMu.Lock()
	superseded := c.view.Generation() != gen
	if !superseded {
		if err != nil {
			c.view.Put(pre)
		} else if authoritative != nil {
			c.view.Put(authoritative)
		}
	}
	c.settleMu.Unlock()

	switch {
	case err != nil:
		c.l.Warn("mutation rejected, view restored",
			"id", id,
			"superseded", superseded,
			"error", err,
		)
		if c.notice != nil {
			c.notice(id, err)
		}
	case superseded:
		c.l.Debug("mutation settled after refresh, result discarded", "id", id)
	}
}

// Wait blocks until every in-flight write has settled. Writes cannot be
// canceled once issued; teardown waits for them instead.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}
