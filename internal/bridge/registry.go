package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/tphakala/rtbridge/internal/errors"
	"github.com/tphakala/rtbridge/internal/host"
	"github.com/tphakala/rtbridge/internal/observability/metrics"
	"github.com/tphakala/rtbridge/internal/rendezvous"
)

// Handle is the opaque identifier callers hold instead of a context pointer.
// The zero Handle is never issued.
type Handle uint64

// contextGauge is implemented by recorders that track the number of live
// contexts.
type contextGauge interface {
	SetActiveContexts(n int)
}

// Registry maps handles to rendezvous contexts and is the boundary through
// which contexts are configured, driven and released. It is safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	next     Handle
	contexts map[Handle]*rendezvous.Context
	recorder metrics.Recorder
}

// NewRegistry creates an empty registry. A nil recorder records nothing.
func NewRegistry(recorder metrics.Recorder) *Registry {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Registry{
		contexts: make(map[Handle]*rendezvous.Context),
		recorder: recorder,
	}
}

// Configure creates a rendezvous on module and returns its handle.
func (r *Registry) Configure(module host.Module, cfg rendezvous.Config, opts ...rendezvous.Option) (Handle, error) {
	start := time.Now()
	c, err := rendezvous.Configure(cfg, module, opts...)
	r.recorder.RecordDuration(metrics.OpConfigure, time.Since(start).Seconds())
	if err != nil {
		r.fail(metrics.OpConfigure, err)
		return 0, err
	}

	r.mu.Lock()
	r.next++
	h := r.next
	r.contexts[h] = c
	n := len(r.contexts)
	r.mu.Unlock()

	r.recorder.RecordOperation(metrics.OpConfigure, metrics.StatusSuccess)
	r.setActive(n)
	return h, nil
}

// Release releases the context and forgets the handle. The handle is
// invalid afterwards even when the adapter reported an error.
func (r *Registry) Release(h Handle) error {
	r.mu.Lock()
	c, ok := r.contexts[h]
	delete(r.contexts, h)
	n := len(r.contexts)
	r.mu.Unlock()

	if !ok {
		return r.invalid(h, metrics.OpRelease)
	}
	r.setActive(n)

	start := time.Now()
	err := c.Release()
	r.recorder.RecordDuration(metrics.OpRelease, time.Since(start).Seconds())
	if err != nil {
		r.fail(metrics.OpRelease, err)
		return err
	}
	r.recorder.RecordOperation(metrics.OpRelease, metrics.StatusSuccess)
	return nil
}

// ReadInput waits for the next cycle of h and copies its input into dst.
// See rendezvous.Context.ReadInput.
func (r *Registry) ReadInput(ctx context.Context, h Handle, dst []float32) (bool, error) {
	c, err := r.lookup(h, metrics.OpReadInput)
	if err != nil {
		return false, err
	}
	ok, err := c.ReadInput(ctx, dst)
	switch {
	case err != nil:
		r.fail(metrics.OpReadInput, err)
	case !ok:
		r.recorder.RecordOperation(metrics.OpReadInput, metrics.StatusShutdown)
	default:
		r.recorder.RecordOperation(metrics.OpReadInput, metrics.StatusSuccess)
	}
	return ok, err
}

// WriteOutput hands the current cycle of h back with src as its output.
func (r *Registry) WriteOutput(h Handle, src []float32) error {
	c, err := r.lookup(h, metrics.OpWriteOutput)
	if err != nil {
		return err
	}
	if err := c.WriteOutput(src); err != nil {
		r.fail(metrics.OpWriteOutput, err)
		return err
	}
	if c.Terminated() {
		r.recorder.RecordOperation(metrics.OpWriteOutput, metrics.StatusShutdown)
	} else {
		r.recorder.RecordOperation(metrics.OpWriteOutput, metrics.StatusSuccess)
	}
	return nil
}

// Borrow runs fn with the window of the next cycle of h.
func (r *Registry) Borrow(ctx context.Context, h Handle, fn func(w rendezvous.Window)) (bool, error) {
	c, err := r.lookup(h, metrics.OpBorrow)
	if err != nil {
		return false, err
	}
	ok, err := c.Borrow(ctx, fn)
	switch {
	case err != nil:
		r.fail(metrics.OpBorrow, err)
	case !ok:
		r.recorder.RecordOperation(metrics.OpBorrow, metrics.StatusShutdown)
	default:
		r.recorder.RecordOperation(metrics.OpBorrow, metrics.StatusSuccess)
	}
	return ok, err
}

// SignalShutdown stops the context of h. It is idempotent.
func (r *Registry) SignalShutdown(h Handle) error {
	c, err := r.lookup(h, metrics.OpSignalShutdown)
	if err != nil {
		return err
	}
	c.SignalShutdown()
	r.recorder.RecordOperation(metrics.OpSignalShutdown, metrics.StatusSuccess)
	return nil
}

// Context resolves h.
func (r *Registry) Context(h Handle) (*rendezvous.Context, error) {
	return r.lookup(h, "lookup")
}

// Count returns the number of configured, unreleased contexts.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.contexts)
}

// Close signals shutdown on every context and releases them. The host
// must already have stopped driving them.
func (r *Registry) Close() error {
	r.mu.RLock()
	handles := make([]Handle, 0, len(r.contexts))
	for h := range r.contexts {
		handles = append(handles, h)
	}
	r.mu.RUnlock()

	var errs []error
	for _, h := range handles {
		if err := r.Release(h); err != nil && !errors.Is(err, ErrInvalidHandle) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) lookup(h Handle, operation string) (*rendezvous.Context, error) {
	r.mu.RLock()
	c, ok := r.contexts[h]
	r.mu.RUnlock()
	if !ok {
		return nil, r.invalid(h, operation)
	}
	return c, nil
}

func (r *Registry) invalid(h Handle, operation string) error {
	err := errors.New(ErrInvalidHandle).
		Component(ComponentBridge).
		Category(errors.CategoryNotFound).
		Context("handle", uint64(h)).
		Context("operation", operation).
		Build()
	r.fail(operation, err)
	return err
}

func (r *Registry) fail(operation string, err error) {
	r.recorder.RecordOperation(operation, metrics.StatusError)
	r.recorder.RecordError(operation, errorType(err))
}

func (r *Registry) setActive(n int) {
	if g, ok := r.recorder.(contextGauge); ok {
		g.SetActiveContexts(n)
	}
}
