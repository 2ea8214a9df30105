package planner

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/navratilpetr/Makelangelo-firmware/standalone/config"
)

// Buffer is the segment ring shared by the planner (producer) and the
// pulse generator (consumer). Indices are free-running counters masked on
// access, so tail <= nonbusy <= planned <= head holds in modular order.
//
// The producer writes [planned, head) and advances head and planned. The
// consumer reads [tail, nonbusy) and advances tail and nonbusy. Segments
// move from one side to the other through their flag word.
type Buffer struct {
	segs []Segment
	mask uint32

	tail    atomic.Uint32
	nonbusy atomic.Uint32
	planned atomic.Uint32
	head    atomic.Uint32

	firstDelay atomic.Int32

	epoch     atomic.Uint32
	halted    atomic.Bool
	isrActive atomic.Int32

	// Meanwhile is called while GetNextFreeBlock waits for space
	Meanwhile func()
}

// NewBuffer allocates a ring of size segments (a power of two)
func NewBuffer(size uint32) (*Buffer, error) {
	if size < 4 || size&(size-1) != 0 {
		return nil, fmt.Errorf("%w: %d", config.ErrBufferSize, size)
	}
	return &Buffer{
		segs:      make([]Segment, size),
		mask:      size - 1,
		Meanwhile: runtime.Gosched,
	}, nil
}

// Capacity returns the number of slots, one of which always stays free
func (b *Buffer) Capacity() uint32 {
	return uint32(len(b.segs))
}

func (b *Buffer) at(i uint32) *Segment {
	return &b.segs[i&b.mask]
}

// before reports a < b in modular index order
func before(a, b uint32) bool {
	return int32(a-b) < 0
}

// MovesPlanned returns the number of segments between tail and head
func (b *Buffer) MovesPlanned() uint32 {
	return b.head.Load() - b.tail.Load()
}

// MovesFree returns how many segments can be appended without waiting
func (b *Buffer) MovesFree() uint32 {
	return b.Capacity() - 1 - b.MovesPlanned()
}

// MovesPlannedNotBusy returns the number of segments not yet claimed
func (b *Buffer) MovesPlannedNotBusy() uint32 {
	return b.head.Load() - b.nonbusy.Load()
}

// SegmentBufferFull reports whether an append would have to wait
func (b *Buffer) SegmentBufferFull() bool {
	return b.MovesPlanned() >= b.Capacity()-1
}

// Indices returns tail, nonbusy, planned and head. planned is reported as
// max(planned, nonbusy).
func (b *Buffer) Indices() (tail, nonbusy, planned, head uint32) {
	tail = b.tail.Load()
	nonbusy = b.nonbusy.Load()
	planned = b.plannedIndex()
	head = b.head.Load()
	return
}

// plannedIndex is the first segment whose exit may still change
func (b *Buffer) plannedIndex() uint32 {
	p := b.planned.Load()
	if nb := b.nonbusy.Load(); before(p, nb) {
		return nb
	}
	return p
}

// GetNextFreeBlock waits until a slot is free and returns it with its
// index. The slot is not visible to the consumer until publish.
func (b *Buffer) GetNextFreeBlock() (*Segment, uint32) {
	for b.SegmentBufferFull() {
		// the segment buffer is full, we are way ahead of the motion system
		if b.Meanwhile != nil {
			b.Meanwhile()
		}
	}
	h := b.head.Load()
	return b.at(h), h
}

// publish makes the segment at index h visible to the consumer
func (b *Buffer) publish(h uint32) {
	b.head.Store(h + 1)
}

// GetCurrentBlock claims the segment at tail for execution. It returns nil
// when the buffer is empty, the segment is being recalculated, or the
// first segment delay is still holding back a short queue.
func (b *Buffer) GetCurrentBlock() *Segment {
	t := b.tail.Load()
	if t == b.head.Load() {
		return nil
	}

	if b.firstDelay.Load() > 0 {
		left := b.firstDelay.Add(-1)
		if b.MovesPlanned() < 3 && left > 0 {
			return nil
		}
		b.firstDelay.Store(0)
	}

	seg := b.at(t)
	if !seg.claim() {
		return nil // wait, not ready
	}
	b.nonbusy.Store(t + 1)
	return seg
}

// ReleaseCurrentBlock retires the segment at tail
func (b *Buffer) ReleaseCurrentBlock() {
	b.tail.Store(b.tail.Load() + 1)
}

// FirstSegmentDelay returns the remaining start delay count
func (b *Buffer) FirstSegmentDelay() int32 {
	return b.firstDelay.Load()
}

// Epoch increments on every flush
func (b *Buffer) Epoch() uint32 {
	return b.epoch.Load()
}

// Halted reports whether an emergency stop is latched
func (b *Buffer) Halted() bool {
	return b.halted.Load()
}

// Halt latches the emergency stop
func (b *Buffer) Halt() {
	b.halted.Store(true)
}

// resume releases the emergency stop latch
func (b *Buffer) resume() {
	b.halted.Store(false)
}

// EnterISR marks the start of a consumer firing. It returns false when the
// consumer must not touch the ring. ExitISR must be called either way.
func (b *Buffer) EnterISR() bool {
	b.isrActive.Add(1)
	return !b.halted.Load()
}

// ExitISR marks the end of a consumer firing
func (b *Buffer) ExitISR() {
	b.isrActive.Add(-1)
}

// waitISRIdle spins until no consumer firing is in progress. Only the
// planning context may call it.
func (b *Buffer) waitISRIdle() {
	for b.isrActive.Load() != 0 {
		runtime.Gosched()
	}
}

// Flush drops every queued segment. The caller must exclude the other
// side: the consumer calls it from its own firing, the planner after
// halting and waiting for the consumer to leave.
func (b *Buffer) Flush() {
	h := b.head.Load()
	b.tail.Store(h)
	b.nonbusy.Store(h)
	b.planned.Store(h)
	b.firstDelay.Store(0)
	b.epoch.Add(1)
}
