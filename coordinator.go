package ylisp

import "sync"

// Coordinator is the single shared state of C7: one mutex guarding the
// live-context set, plus a condition variable a full-GC or teardown
// caller blocks on until every live context has announced SAFE. No
// dependency in the retrieved pack offers a ready-made "wait until N
// things agree" rendezvous narrower than a full errgroup barrier, so
// this one stays on sync.Cond -- see DESIGN.md.
type Coordinator struct {
	mu       sync.Mutex
	allSafe  *sync.Cond
	contexts map[uint64]*Context
	nextID   uint64
	pool     *Pool
}

// NewCoordinator returns an empty coordinator over pool, the arena
// every context it registers will allocate through.
func NewCoordinator(pool *Pool) *Coordinator {
	c := &Coordinator{contexts: make(map[uint64]*Context), pool: pool}
	c.allSafe = sync.NewCond(&c.mu)
	return c
}

// Register creates and tracks a new context, transitioning it to
// RUNNING, and returns it to the caller thread.
func (co *Coordinator) Register() *Context {
	co.mu.Lock()
	defer co.mu.Unlock()
	co.nextID++
	ctx := NewContext(co.nextID, co.pool, co)
	co.contexts[ctx.ID] = ctx
	return ctx
}

// Deregister closes every owned resource of ctx and removes it from
// the live set. Called on thread exit, whichever way the thread ends.
func (co *Coordinator) Deregister(ctx *Context) {
	co.mu.Lock()
	defer co.mu.Unlock()
	ctx.releaseAllOwned()
	delete(co.contexts, ctx.ID)
	co.allSafe.Broadcast()
}

// MarkSafe transitions ctx to SAFE and broadcasts the "maybe all safe"
// signal. If ctx has a pending KILL, the signal is delivered
// immediately: MarkSafe returns a KilledError the caller must
// propagate as an unwind.
func (co *Coordinator) MarkSafe(ctx *Context) error {
	co.mu.Lock()
	defer co.mu.Unlock()
	ctx.state = StateSafe
	co.allSafe.Broadcast()
	if ctx.pending&SignalKill != 0 && !ctx.killed {
		ctx.killed = true
		return KilledError{ContextID: ctx.ID}
	}
	return nil
}

// MarkRunning transitions ctx back to RUNNING after a safe point.
func (co *Coordinator) MarkRunning(ctx *Context) {
	co.mu.Lock()
	defer co.mu.Unlock()
	ctx.state = StateRunning
}

// Kill marks target for cancellation by setting its pending KILL bit.
// The kill is delivered at target's next MarkSafe (the start of its
// next top-level Eval, or its next Yield), whether or not target is
// SAFE right now; a target that is already SAFE is not interrupted.
// Self-kill from the same context is rejected, per the protocol.
func (co *Coordinator) Kill(self, target *Context) error {
	if self != nil && target != nil && self.ID == target.ID {
		return newErr(KindInternal, Location{}, "a context cannot kill itself")
	}
	co.mu.Lock()
	defer co.mu.Unlock()
	if _, ok := co.contexts[target.ID]; !ok {
		return newErr(KindEvalUndefined, Location{}, "no live context %d", target.ID)
	}
	target.pending |= SignalKill
	co.allSafe.Broadcast()
	return nil
}

// waitAllSafe blocks until every live context is SAFE, holding the
// coordinator lock throughout so nothing transitions back to RUNNING
// underneath the caller. The caller must release co.mu itself when
// done with the exclusive section (see Pool/GC full-collect callers).
func (co *Coordinator) waitAllSafe() {
	for !co.allSafeLocked() {
		co.allSafe.Wait()
	}
}

func (co *Coordinator) allSafeLocked() bool {
	for _, ctx := range co.contexts {
		if ctx.state != StateSafe {
			return false
		}
	}
	return true
}

// WithExclusive runs fn while holding the coordinator lock and with
// every live context guaranteed SAFE, the access mode a full GC pass
// or process-wide teardown needs.
func (co *Coordinator) WithExclusive(fn func()) {
	co.mu.Lock()
	defer co.mu.Unlock()
	co.waitAllSafe()
	fn()
}

// Roots collects the GC roots contributed by every live context.
func (co *Coordinator) Roots() []Ref {
	co.mu.Lock()
	defer co.mu.Unlock()
	var out []Ref
	for _, ctx := range co.contexts {
		out = append(out, ctx.roots()...)
	}
	return out
}

// Live returns the number of currently registered contexts.
func (co *Coordinator) Live() int {
	co.mu.Lock()
	defer co.mu.Unlock()
	return len(co.contexts)
}

// ContextByID finds a live context, used by Kill's callers to resolve
// a target identity supplied across a thread boundary.
func (co *Coordinator) ContextByID(id uint64) (*Context, bool) {
	co.mu.Lock()
	defer co.mu.Unlock()
	ctx, ok := co.contexts[id]
	return ctx, ok
}
