package rendezvous

import "context"

// Semaphore is a binary signal with coalescing posts. A post that finds the
// signal already raised is dropped, so at most one wakeup is ever pending.
// Post never blocks or allocates and is safe on a real-time thread. A post
// happens before the wait that consumes it returns.
type Semaphore struct {
	ch chan struct{}
}

// NewSemaphore returns a lowered semaphore.
func NewSemaphore() *Semaphore {
	return &Semaphore{ch: make(chan struct{}, 1)}
}

// Post raises the signal. It reports false if the signal was already raised.
func (s *Semaphore) Post() bool {
	select {
	case s.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// TryWait lowers the signal if it is raised.
func (s *Semaphore) TryWait() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

// Wait blocks until the signal is raised, then lowers it.
func (s *Semaphore) Wait(ctx context.Context) error {
	select {
	case <-s.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// C exposes the signal for use in select statements. A receive lowers it.
func (s *Semaphore) C() <-chan struct{} {
	return s.ch
}
