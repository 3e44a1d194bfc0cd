package asyncmap

import (
	"fmt"
	"sync"
)

// OnValues is scheduled once every key in a ConsumeAfterKeysReady request has
// a value, carrying them back keyed by the requested key string.
type OnValues func(values map[string]any)

// OnError is scheduled at most once per request, the first time any
// requested key fails. fatal distinguishes a cycle or a genuine computation
// failure from a downstream failure merely caused by a sibling key.
type OnError func(msg string, fatal bool)

// Logger receives non-fatal observations surfaced during a computation
// (§4.11 "non-fatal observations are logged and the computation continues").
type Logger func(fatal bool, message string)

// Reader is supplied once at map construction and invoked exactly once per
// distinct key, the first time that key is requested. It receives the pool
// to fan further work out onto, a Setter to report the key's value, a
// Logger, a Subcaller scoped to this computation (so that transitive
// requests are attributed to key for cycle detection), and the key itself.
type Reader func(ctx *ReadContext)

// ReadContext bundles everything a Reader needs, mirroring the
// (ts, setter, logger, subcaller, key) quintuple from §4.11.
type ReadContext struct {
	Pool      *Pool
	Key       string
	Logger    Logger
	Subcaller func(keys []string, onValues OnValues, onError OnError)

	m *Map
}

// Set reports key's computed value, waking every waiter.
func (c *ReadContext) Set(value any) { c.m.compute(c.Key, value) }

// Fail marks key as failed, waking every waiter with the error.
func (c *ReadContext) Fail(msg string, fatal bool) { c.m.fail(c.Key, msg, fatal) }

type keyState int

const (
	statePending keyState = iota
	stateComputing
	stateDone
	stateFailed
)

type entry struct {
	state keyState
	value any
	err   string
	fatal bool

	// waitingFor records, for an in-flight computation, the keys it has
	// itself requested (directly or via a nested subcaller), so that a
	// request cycle can be detected before it deadlocks.
	waitingFor map[string]bool

	waiters []*request
}

// request is one ConsumeAfterKeysReady call, possibly waiting on several
// keys at once.
type request struct {
	mu        sync.Mutex
	remaining int
	values    map[string]any
	onValues  OnValues
	onError   OnError
	done      bool
}

func (r *request) resolve(key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return
	}
	r.values[key] = value
	r.remaining--
	if r.remaining == 0 {
		r.done = true
		r.onValues(r.values)
	}
}

func (r *request) fail(msg string, fatal bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return
	}
	r.done = true
	r.onError(msg, fatal)
}

// Map is the async consumer map (C11): a keyed, memoized, concurrent
// computation pool. Values are computed at most once per key; concurrent
// requesters for the same key share the single in-flight computation's
// result. The map itself never spawns goroutines — every continuation runs
// on the caller-supplied Pool.
type Map struct {
	mu      sync.Mutex
	entries map[string]*entry
	reader  Reader
	pool    *Pool
}

// New constructs an async consumer map that computes each key's value by
// invoking reader exactly once, scheduling reader invocations onto pool.
func New(reader Reader, pool *Pool) *Map {
	return &Map{entries: map[string]*entry{}, reader: reader, pool: pool}
}

// ConsumeAfterKeysReady requests evaluation of every key in keys; once all
// have a value, onValues is scheduled on the pool with the full value map.
// If any key fails, onError is scheduled exactly once. requester is the key
// whose own computation is issuing this request (used for cycle detection
// via Subcaller); pass "" for a top-level, non-nested request.
func (m *Map) ConsumeAfterKeysReady(requester string, keys []string, onValues OnValues, onError OnError) {
	if len(keys) == 0 {
		m.pool.Go(func() { onValues(map[string]any{}) })
		return
	}

	req := &request{remaining: len(keys), values: map[string]any{}, onValues: onValues, onError: onError}

	for _, key := range keys {
		m.request(requester, key, req)
	}
}

// request attaches req as a waiter on key, triggering key's computation if
// this is the first request for it, and detecting cycles against requester.
func (m *Map) request(requester, key string, req *request) {
	m.mu.Lock()

	if requester != "" {
		if cyc, chain := m.wouldCycle(requester, key); cyc {
			m.mu.Unlock()
			msg := fmt.Sprintf("dependency cycle detected: %s", chain)
			m.pool.Go(func() { req.fail(msg, true) })
			return
		}
		m.recordEdge(requester, key)
	}

	e, ok := m.entries[key]
	if !ok {
		e = &entry{state: statePending, waitingFor: map[string]bool{}}
		m.entries[key] = e
	}

	switch e.state {
	case stateDone:
		value := e.value
		m.mu.Unlock()
		m.pool.Go(func() { req.resolve(key, value) })
		return
	case stateFailed:
		msg, fatal := e.err, e.fatal
		m.mu.Unlock()
		m.pool.Go(func() { req.fail(msg, fatal) })
		return
	}

	e.waiters = append(e.waiters, req)
	firstRequest := e.state == statePending
	if firstRequest {
		e.state = stateComputing
	}
	m.mu.Unlock()

	if firstRequest {
		m.startComputation(key)
	}
}

func (m *Map) startComputation(key string) {
	m.pool.Go(func() {
		ctx := &ReadContext{
			Pool: m.pool,
			Key:  key,
			Logger: func(fatal bool, message string) {
				// Observations are purely informational to the caller; the
				// map itself has no sink beyond the Reader's own choices,
				// so this default simply drops them. Readers that want
				// visibility pass their own Logger through a closure.
			},
			m: m,
		}
		ctx.Subcaller = func(keys []string, onValues OnValues, onError OnError) {
			m.ConsumeAfterKeysReady(key, keys, onValues, onError)
		}
		m.reader(ctx)
	})
}

// compute is the Setter half of the producer contract: records key's value
// and wakes every waiter.
func (m *Map) compute(key string, value any) {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = &entry{waitingFor: map[string]bool{}}
		m.entries[key] = e
	}
	if e.state == stateDone || e.state == stateFailed {
		m.mu.Unlock()
		return
	}
	e.state = stateDone
	e.value = value
	waiters := e.waiters
	e.waiters = nil
	m.mu.Unlock()

	for _, w := range waiters {
		req := w
		m.pool.Go(func() { req.resolve(key, value) })
	}
}

// fail is the Setter half for a failed computation.
func (m *Map) fail(key, msg string, fatal bool) {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = &entry{waitingFor: map[string]bool{}}
		m.entries[key] = e
	}
	if e.state == stateDone || e.state == stateFailed {
		m.mu.Unlock()
		return
	}
	e.state = stateFailed
	e.err = msg
	e.fatal = fatal
	waiters := e.waiters
	e.waiters = nil
	m.mu.Unlock()

	for _, w := range waiters {
		req := w
		m.pool.Go(func() { req.fail(msg, fatal) })
	}
}

// recordEdge notes that requester's computation is waiting on key, so that
// wouldCycle can detect a dependency loop before it deadlocks. The edge
// table lives inline on each entry (entry.waitingFor), guarded by m.mu.
func (m *Map) recordEdge(requester, key string) {
	e, ok := m.entries[requester]
	if !ok {
		// requester hasn't registered an entry of its own yet (e.g. it is
		// itself mid-computation but no one has requested it as a key) —
		// nothing to record against.
		return
	}
	e.waitingFor[key] = true
}

// wouldCycle reports whether requester already lies on key's (transitive)
// waiting-for chain, i.e. key's computation is, directly or indirectly,
// waiting on requester — so requester depending on key would close a loop.
func (m *Map) wouldCycle(requester, key string) (bool, string) {
	visited := map[string]bool{}
	var walk func(cur string) (bool, []string)
	walk = func(cur string) (bool, []string) {
		if cur == requester {
			return true, []string{cur}
		}
		if visited[cur] {
			return false, nil
		}
		visited[cur] = true
		e, ok := m.entries[cur]
		if !ok {
			return false, nil
		}
		for next := range e.waitingFor {
			if found, chain := walk(next); found {
				return true, append([]string{cur}, chain...)
			}
		}
		return false, nil
	}
	found, chain := walk(key)
	if !found {
		return false, ""
	}
	chainStr := requester
	for _, c := range chain {
		chainStr += " -> " + c
	}
	return true, chainStr
}
