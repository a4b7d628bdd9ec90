package ylisp

// ThreadState is a context's cooperative scheduling state, per the
// concurrency model: a thread announces SAFE at known safe points so
// the coordinator can run exclusive operations (full GC, teardown)
// without racing a thread mid-evaluation.
type ThreadState int

const (
	StateRunning ThreadState = iota
	StateSafe
)

func (s ThreadState) String() string {
	if s == StateSafe {
		return "SAFE"
	}
	return "RUNNING"
}

// Signal is a bit in a context's pending-signal set.
type Signal uint32

const (
	SignalKill Signal = 1 << iota
)

// OwnedResource is an external resource a native function acquired on
// behalf of a context -- a child process handle, an open file, a
// transient buffer -- paired with the closure that releases it. Every
// termination path (normal return, error unwind, kill) pops and runs
// these in LIFO order before the context's frame actually unwinds.
type OwnedResource struct {
	Handle  any
	Release func()
}

// Context is one concurrent evaluation thread's private state (C7's
// "thread context" in spec.md's terms). Its pool save-point stack,
// association list and trace are plain Refs into the shared Pool;
// protecting concurrent pool access is the coordinator's job, not
// this struct's.
type Context struct {
	ID uint64

	// Pool is the shared cell arena a native dispatched on this
	// context allocates through -- cons cells, symbols, doubles,
	// custom atoms for its result -- the same pool every other
	// context and the evaluator itself draws from.
	Pool *Pool

	// CurrentAlist is the lexical binding list the evaluator is
	// consulting right now. It is a GC root: a context blocked
	// inside a native call still has live bindings reachable only
	// through this field, not through any top-level save-point.
	CurrentAlist Ref

	// Trace is a stack of the forms currently being evaluated, used
	// to format a backtrace on error and kept as a GC root for the
	// same reason as CurrentAlist.
	Trace []Ref

	savepoints []int // pool save-point tokens, LIFO

	Owned []OwnedResource

	coord   *Coordinator
	state   ThreadState
	pending Signal

	// killed is true once a KILL signal has actually been delivered
	// (the context is unwinding, not merely requested to stop).
	killed bool
}

// NewContext returns a fresh context with an empty lexical scope,
// wired to the pool it allocates through and the coordinator that
// schedules it.
func NewContext(id uint64, pool *Pool, coord *Coordinator) *Context {
	return &Context{ID: id, Pool: pool, coord: coord, CurrentAlist: RefNil, state: StateRunning}
}

// State reports the context's current scheduling state.
func (c *Context) State() ThreadState { return c.state }

// Yield is the safe point a long-running native exposes mid-call: it
// announces SAFE to the coordinator, giving a pending full-GC or
// teardown a chance to run, then returns to RUNNING. A KilledError
// returned here means a Kill was already pending; the native must
// unwind by returning it, exactly as if the error had come from
// evalStep.
func (c *Context) Yield() error {
	if c.coord == nil {
		return nil
	}
	if err := c.coord.MarkSafe(c); err != nil {
		return err
	}
	c.coord.MarkRunning(c)
	return nil
}

// Own registers an external resource a native just acquired -- a
// child process, an open file, a transient buffer -- together with
// the closure that releases it. Owned resources are released in LIFO
// order by releaseAllOwned on every termination path: normal return,
// error unwind, or kill delivery.
func (c *Context) Own(handle any, release func()) {
	c.pushOwned(handle, release)
}

// Disown releases and forgets the most recently owned resource,
// for a native that wants to release a resource itself before
// returning instead of waiting for teardown.
func (c *Context) Disown() {
	if len(c.Owned) == 0 {
		return
	}
	if r := c.Owned[len(c.Owned)-1]; r.Release != nil {
		r.Release()
	}
	c.popOwned()
}

// roots returns every Ref this context is holding live right now:
// its current binding list, its evaluation trace, and the handle of
// every owned resource whose handle is itself a Ref (handles of any
// other type are skipped).
func (c *Context) roots() []Ref {
	out := make([]Ref, 0, len(c.Trace)+2)
	out = append(out, c.CurrentAlist)
	out = append(out, c.Trace...)
	for _, o := range c.Owned {
		if r, ok := o.Handle.(Ref); ok {
			out = append(out, r)
		}
	}
	return out
}

func (c *Context) pushTrace(form Ref) { c.Trace = append(c.Trace, form) }

func (c *Context) popTrace() {
	if len(c.Trace) > 0 {
		c.Trace = c.Trace[:len(c.Trace)-1]
	}
}

func (c *Context) pushOwned(handle any, release func()) {
	c.Owned = append(c.Owned, OwnedResource{Handle: handle, Release: release})
}

func (c *Context) popOwned() {
	if len(c.Owned) > 0 {
		c.Owned = c.Owned[:len(c.Owned)-1]
	}
}

// releaseAllOwned runs every owned-resource release closure, most
// recently acquired first, and clears the list. Used on every
// termination path: normal top-level completion, error unwind, and
// kill delivery.
func (c *Context) releaseAllOwned() {
	for i := len(c.Owned) - 1; i >= 0; i-- {
		if c.Owned[i].Release != nil {
			c.Owned[i].Release()
		}
	}
	c.Owned = nil
}
