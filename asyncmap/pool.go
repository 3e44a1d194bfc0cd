// Package asyncmap implements the async consumer map (C11): a keyed,
// memoized, concurrent computation pool driven by a caller-owned
// work-stealing task pool, plus the critical-section primitive built on
// top of it as a named single-key instance.
package asyncmap

import (
	"github.com/sourcegraph/conc/pool"
)

// Pool is the work-stealing task pool the async consumer map schedules
// continuations onto (§4.11 "Thread model"). It never spawns its own
// goroutines beyond the bounded worker set, and a panicking task never
// takes down the pool — it surfaces through Wait instead.
type Pool struct {
	p *pool.Pool
}

// NewPool constructs a bounded work-stealing pool with the given worker
// count. A non-positive size means unbounded (one goroutine per Go call).
func NewPool(size int) *Pool {
	p := pool.New()
	if size > 0 {
		p = p.WithMaxGoroutines(size)
	}
	return &Pool{p: p}
}

// Go schedules fn to run on the pool.
func (p *Pool) Go(fn func()) { p.p.Go(fn) }

// Wait blocks until every scheduled task has completed, re-panicking any
// task panic on the calling goroutine (conc's recover-and-repanic
// discipline, so a crashed worker is never silently lost).
func (p *Pool) Wait() { p.p.Wait() }
