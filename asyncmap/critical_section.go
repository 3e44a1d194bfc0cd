package asyncmap

// CriticalSection is a named single-key instance of the async consumer map
// (SPEC_FULL §4 item 4), modeling a serialized critical section the way
// justbuild's git repository layer serializes concurrent fetches of the
// same remote into one underlying git operation: every caller racing to
// enter the section for the same name shares the one in-flight Run, and
// later callers after it completes get the memoized outcome instead of
// re-running it.
type CriticalSection struct {
	m *Map
}

// NewCriticalSection builds a critical section whose body is run, a task
// receives the ReadContext it would get as a Reader, and reports its
// outcome via ctx.Set/ctx.Fail exactly like any other async consumer map
// entry.
func NewCriticalSection(pool *Pool, run func(ctx *ReadContext)) *CriticalSection {
	return &CriticalSection{m: New(func(ctx *ReadContext) { run(ctx) }, pool)}
}

// Enter requests the critical section named by key, invoking run at most
// once for that name; onDone is scheduled with the shared result (or
// onFail with the shared failure) once it's available.
func (c *CriticalSection) Enter(key string, onDone func(value any), onFail OnError) {
	c.m.ConsumeAfterKeysReady("", []string{key}, func(values map[string]any) {
		onDone(values[key])
	}, onFail)
}
