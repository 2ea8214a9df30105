//go:build !motiondebug

package planner

type producerGuard struct{}

func (producerGuard) enter() {}
func (producerGuard) exit()  {}

func debugCheckMutable(*Segment) {}

func debugViolation(string) {}
