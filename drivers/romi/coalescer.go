package romi

import (
	"sync"

	"github.com/zhiquanyeo/ftl-robot-host/types"
)

// writeCoalescer serializes every outbound register write through one pending
// buffer so that batched and immediate writes can never hold divergent
// mirrors of the same registers. Buffered writes stage and wait for the
// quiescence window; immediate writes stage and flush in the same critical
// section.
type writeCoalescer struct {
	bus  types.Transport
	addr uint8

	mu      sync.Mutex
	image   [ImageSize]byte // last register image known to be on the board
	pending [ImageSize]byte // image overlaid with staged writes
	dirty   bool
	lo, hi  int // staged span [lo, hi)
}

func newWriteCoalescer(bus types.Transport, addr uint8) *writeCoalescer {
	return &writeCoalescer{bus: bus, addr: addr}
}

// Stage overlays a buffered write. It reports whether this write opened a new
// flush window (the caller arms the one-shot quiescence timer only then;
// later writes in the same window must not restart it).
func (c *writeCoalescer) Stage(offset int, data []byte) (armed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stageLocked(offset, data)
}

// Update read-modify-writes one byte on the buffered path.
func (c *writeCoalescer) Update(offset int, f func(uint8) uint8) (armed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stageLocked(offset, []byte{f(c.peekLocked(offset))})
}

// StageNow writes through immediately: the change is merged with anything
// already pending and flushed as one transaction. On a transport fault the
// buffer is restored exactly, so a failed call leaves no trace.
func (c *writeCoalescer) StageNow(offset int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, prevDirty, prevLo, prevHi := c.pending, c.dirty, c.lo, c.hi
	c.stageLocked(offset, data)
	if err := c.flushLocked(); err != nil {
		c.pending, c.dirty, c.lo, c.hi = prev, prevDirty, prevLo, prevHi
		return err
	}
	return nil
}

// UpdateNow read-modify-writes one byte on the immediate path.
func (c *writeCoalescer) UpdateNow(offset int, f func(uint8) uint8) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, prevDirty, prevLo, prevHi := c.pending, c.dirty, c.lo, c.hi
	c.stageLocked(offset, []byte{f(c.peekLocked(offset))})
	if err := c.flushLocked(); err != nil {
		c.pending, c.dirty, c.lo, c.hi = prev, prevDirty, prevLo, prevHi
		return err
	}
	return nil
}

// Flush is the quiescence-timer path. An empty flush is a no-op. A fault
// drops the staged bytes: the mirror no longer matches the board and a blind
// rewrite would not be a retry, it would be a guess.
func (c *writeCoalescer) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.flushLocked(); err != nil {
		c.pending = c.image
		c.dirty = false
		return err
	}
	return nil
}

func (c *writeCoalescer) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty
}

func (c *writeCoalescer) stageLocked(offset int, data []byte) (armed bool) {
	if !c.dirty {
		c.pending = c.image
		c.lo, c.hi = offset, offset+len(data)
		c.dirty = true
		armed = true
	} else {
		if offset < c.lo {
			c.lo = offset
		}
		if offset+len(data) > c.hi {
			c.hi = offset + len(data)
		}
	}
	copy(c.pending[offset:], data)
	return armed
}

func (c *writeCoalescer) peekLocked(offset int) uint8 {
	if c.dirty {
		return c.pending[offset]
	}
	return c.image[offset]
}

func (c *writeCoalescer) flushLocked() error {
	if !c.dirty {
		return nil
	}
	if err := c.bus.WriteBlock(c.addr, uint8(c.lo), c.pending[c.lo:c.hi]); err != nil {
		return err
	}
	c.image = c.pending
	c.dirty = false
	c.lo, c.hi = 0, 0
	return nil
}
