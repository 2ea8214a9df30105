//go:build motiondebug

package planner

import (
	"fmt"
	"sync/atomic"

	"github.com/petermattis/goid"
)

// producerGuard panics when two goroutines plan at the same time
type producerGuard struct {
	owner atomic.Int64
	depth int
}

func (g *producerGuard) enter() {
	id := goid.Get()
	if g.owner.CompareAndSwap(0, id) {
		g.depth = 1
		return
	}
	if g.owner.Load() == id {
		g.depth++
		return
	}
	panic(fmt.Sprintf("planner: goroutine %d entered while goroutine %d is planning", id, g.owner.Load()))
}

func (g *producerGuard) exit() {
	g.depth--
	if g.depth == 0 {
		g.owner.Store(0)
	}
}

func debugCheckMutable(s *Segment) {
	if s.Busy() {
		panic("planner: mutating a segment claimed by the pulse generator")
	}
}

func debugViolation(msg string) {
	panic("planner: " + msg)
}
