// Package idle implements the per-channel read/write idle timers described
// in the tunnel spec: 60s of silence on the inbound side closes a channel,
// 40s of silence on the outbound side prompts a heartbeat. It mirrors the
// semantics of the original Netty IdleCheckHandler (read/write idle state
// events) without depending on Netty's scheduler.
package idle

import (
	"sync"
	"time"
)

// ReadIdleTimeout is the inbound silence window after which a channel is
// considered dead.
const ReadIdleTimeout = 60 * time.Second

// WriteIdleTimeout is the outbound silence window after which the client
// side emits an empty heartbeat frame.
const WriteIdleTimeout = 40 * time.Second

// Detector tracks the last read/write activity on one connection and fires
// OnReadIdle / OnWriteIdle at most once per idle period. It is safe for
// concurrent use: MarkRead/MarkWrite are typically called from the
// connection's own worker while the timers fire from a separate goroutine.
type Detector struct {
	OnReadIdle  func()
	OnWriteIdle func()

	mu        sync.Mutex
	lastRead  time.Time
	lastWrite time.Time
	stop      chan struct{}
}

// New creates a Detector. Call Start once both callbacks are set.
func New() *Detector {
	now := time.Now()
	return &Detector{
		lastRead:  now,
		lastWrite: now,
		stop:      make(chan struct{}),
	}
}

// MarkRead records inbound activity, resetting the read-idle clock.
func (d *Detector) MarkRead() {
	d.mu.Lock()
	d.lastRead = time.Now()
	d.mu.Unlock()
}

// MarkWrite records outbound activity, resetting the write-idle clock.
func (d *Detector) MarkWrite() {
	d.mu.Lock()
	d.lastWrite = time.Now()
	d.mu.Unlock()
}

// Start begins polling for idleness. It returns immediately; the timers
// run on their own goroutine until Stop is called.
func (d *Detector) Start() {
	go d.loop()
}

// Stop cancels the detector's timers. Stop is idempotent.
func (d *Detector) Stop() {
	select {
	case <-d.stop:
		// already stopped
	default:
		close(d.stop)
	}
}

func (d *Detector) loop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	readFired := false
	writeFired := false

	for {
		select {
		case <-d.stop:
			return
		case now := <-ticker.C:
			d.mu.Lock()
			sinceRead := now.Sub(d.lastRead)
			sinceWrite := now.Sub(d.lastWrite)
			d.mu.Unlock()

			if sinceRead >= ReadIdleTimeout {
				if !readFired {
					readFired = true
					if d.OnReadIdle != nil {
						d.OnReadIdle()
					}
				}
			} else {
				readFired = false
			}

			if sinceWrite >= WriteIdleTimeout {
				if !writeFired {
					writeFired = true
					if d.OnWriteIdle != nil {
						d.OnWriteIdle()
					}
				}
			} else {
				writeFired = false
			}
		}
	}
}
