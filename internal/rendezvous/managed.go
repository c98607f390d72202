package rendezvous

import (
	"context"

	"github.com/tphakala/rtbridge/internal/errors"
	"github.com/tphakala/rtbridge/internal/logger"
)

// ReadInput waits for the next cycle and copies its input into dst, up to
// the smaller of the two lengths. It reports true when a cycle's input was
// copied. Calling it again before WriteOutput copies the same cycle's input
// without waiting.
//
// After SignalShutdown it returns false with a nil error and leaves dst
// untouched. It returns an error only when ctx ends or the context has been
// released.
func (c *Context) ReadInput(ctx context.Context, dst []float32) (bool, error) {
	ok, err := c.acquire(ctx, "read_input")
	if !ok || err != nil {
		return false, err
	}

	c.inWindow.Add(1)
	defer c.inWindow.Add(-1)
	if c.terminated.Load() {
		return false, nil
	}
	copy(dst, c.window.In)
	return true, nil
}

// WriteOutput copies src into the current cycle's output, up to the smaller
// of the two lengths, and hands the cycle back to the real-time side.
// After SignalShutdown it does nothing and returns nil.
func (c *Context) WriteOutput(src []float32) error {
	if c.State() == StateReleased {
		return stateError(ErrReleased, c, "write_output")
	}
	if c.terminated.Load() {
		return nil
	}
	if !c.armed.Load() {
		return stateError(ErrNoCycle, c, "write_output")
	}

	c.inWindow.Add(1)
	if c.terminated.Load() {
		c.inWindow.Add(-1)
		return nil
	}
	copy(c.window.Out, src)
	c.inWindow.Add(-1)

	c.armed.Store(false)
	c.ready.Post()
	return nil
}

// Borrow waits for the next cycle and calls fn with its window, then hands
// the cycle back. fn must not retain the window and must return promptly:
// a shutdown arriving while fn runs waits for it on the real-time thread.
// The result follows ReadInput.
func (c *Context) Borrow(ctx context.Context, fn func(w Window)) (bool, error) {
	ok, err := c.acquire(ctx, "borrow")
	if !ok || err != nil {
		return false, err
	}

	c.inWindow.Add(1)
	if c.terminated.Load() {
		c.inWindow.Add(-1)
		return false, nil
	}
	fn(c.window)
	c.inWindow.Add(-1)

	c.armed.Store(false)
	c.ready.Post()
	return true, nil
}

// acquire takes ownership of the current cycle, waiting for wake if the
// consumer does not hold one yet.
func (c *Context) acquire(ctx context.Context, operation string) (bool, error) {
	if c.State() == StateReleased {
		return false, stateError(ErrReleased, c, operation)
	}
	if c.terminated.Load() {
		return false, nil
	}
	if c.armed.Load() {
		return true, nil
	}

	select {
	case <-c.wake.C():
	case <-c.done:
		return false, nil
	case <-ctx.Done():
		return false, errors.New(ctx.Err()).
			Component(ComponentRendezvous).
			Category(errors.CategoryCancellation).
			Context("context_id", c.id).
			Context("operation", operation).
			Build()
	}

	if c.terminated.Load() {
		return false, nil
	}
	c.armed.Store(true)
	return true, nil
}

// SignalShutdown marks the context terminated and releases both sides:
// a consumer blocked in ReadInput returns false and a real-time cycle
// blocked on ready returns silence. Idempotent and safe from any goroutine.
func (c *Context) SignalShutdown() {
	c.shutdownOnce.Do(func() {
		c.terminated.Store(true)
		c.state.CompareAndSwap(int32(StateActive), int32(StateTerminating))
		close(c.done)
		c.wake.Post()
		c.log.Debug("rendezvous shutdown signalled", logger.Uint64("cycles", c.cycles.Load()))
	})
}

// Release tears down the adapter and marks the context released. The host
// must already have stopped invoking cycles; shutdown is signalled first if
// it has not been. A second call returns ErrReleased.
func (c *Context) Release() error {
	c.releaseMu.Lock()
	defer c.releaseMu.Unlock()

	if c.State() == StateReleased {
		return stateError(ErrReleased, c, "release")
	}

	c.SignalShutdown()
	err := c.adapter.Release()
	c.state.Store(int32(StateReleased))
	live.Add(-1)

	if err != nil {
		c.log.Warn("buffer adapter release failed", logger.Error(err))
		return errors.New(err).
			Component(ComponentRendezvous).
			Category(errors.CategoryResource).
			Context("context_id", c.id).
			Context("operation", "release_adapter").
			Build()
	}
	c.log.Debug("rendezvous released", logger.Uint64("cycles", c.cycles.Load()))
	return nil
}
