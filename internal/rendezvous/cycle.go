package rendezvous

import (
	"runtime"
	"time"
)

// ProcessCycle is the real-time side of the protocol, called by the buffer
// adapter once per user block on the host thread.
//
// It publishes the buffers, posts wake and blocks until the consumer posts
// ready. It never allocates, takes a lock or logs. After shutdown it writes
// silence and returns without blocking.
func (c *Context) ProcessCycle(sampleRate, frames, inCh int, in []float32, outCh int, out []float32) {
	if c.terminated.Load() {
		clear(out)
		c.obs.CycleSkipped()
		return
	}

	c.window = Window{
		SampleRate:     sampleRate,
		Frames:         frames,
		InputChannels:  inCh,
		OutputChannels: outCh,
		In:             in,
		Out:            out,
	}
	start := time.Now()
	c.wake.Post()

	select {
	case <-c.ready.C():
		c.cycles.Add(1)
		c.obs.CycleCompleted(time.Since(start))
	case <-c.done:
		c.abortCycle(out)
	}
}

// abortCycle runs when shutdown interrupts the wait for ready. A consumer
// copy that started before terminated was set may still be touching the
// window; wait it out so the buffers are not used after we return.
func (c *Context) abortCycle(out []float32) {
	for c.inWindow.Load() != 0 {
		runtime.Gosched()
	}
	if !c.ready.TryWait() {
		clear(out)
	}
	c.obs.CycleAborted()
}
