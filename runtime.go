package ylisp

import (
	"errors"
	"io"
	"math"

	"golang.org/x/sync/errgroup"
)

// Result is what a synchronous or asynchronous interpretation of one
// source buffer produces: the last top-level value read and its
// printed form, or the error that aborted the stream.
type Result struct {
	Value   Ref
	Printed string
	Err     error
}

// Runtime bundles the four core subsystems plus the ambient stack
// (config, logger, native registry) into the single object a host
// embeds, mirroring the host system vector's init()/deinit() pair.
type Runtime struct {
	Pool        *Pool
	SymbolTable *SymbolTable
	Coordinator *Coordinator
	Evaluator   *Evaluator
	Natives     *NativeRegistry
	Config      *Config
	Logger      Logger

	group *errgroup.Group
}

// NewRuntime performs init(system_vector): creates the pool, symbol
// table, coordinator and evaluator, and installs the predefined
// symbols and built-in special forms. cfg may be nil, in which case
// NewConfig()'s defaults are used.
func NewRuntime(cfg *Config, logger Logger) (*Runtime, error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	if logger == nil {
		logger = NewStdLogger()
	}

	pool := NewPool(cfg.GetInt("pool.capacity"), logger)
	pool.gcTriggerPercent = cfg.GetFloat("pool.gc_trigger_percent")
	pool.gcMinEffectPercent = cfg.GetFloat("pool.gc_min_effect_percent")

	symtab := NewSymbolTable()
	coord := NewCoordinator(pool)
	natives := NewNativeRegistry()

	rt := &Runtime{
		Pool:        pool,
		SymbolTable: symtab,
		Coordinator: coord,
		Natives:     natives,
		Config:      cfg,
		Logger:      logger,
	}
	rt.Evaluator = NewEvaluator(pool, symtab, coord, cfg, rt.roots)

	if err := rt.Evaluator.Bootstrap(); err != nil {
		return nil, &InterpError{Kind: KindInitErr, Message: err.Error()}
	}
	return rt, nil
}

// RegisterNative adds a host native function to the registry and
// binds it in the symbol table, the extension surface's primary entry
// point (C8). It may be called any time after NewRuntime, including
// after Interpret calls, matching the spec's "hosts register native
// functions by name" contract.
func (rt *Runtime) RegisterNative(fn *NativeFunc) error {
	if err := rt.Natives.Register(fn); err != nil {
		return err
	}
	ref, err := rt.Pool.NewFunc(fn)
	if err != nil {
		return err
	}
	return rt.SymbolTable.Insert(fn.Name, SymbolBound, ref)
}

// RegisterCustomKind exposes the pool's custom-atom capability table
// registration to hosts.
func (rt *Runtime) RegisterCustomKind(kind CustomKind) (int, error) {
	return rt.Pool.customKinds.Register(kind)
}

// roots is the global GC root set: every live context's roots plus
// every value bound in the symbol table. The three predefined cells
// are implicit (never pool-resident), so they need no entry here.
func (rt *Runtime) roots() []Ref {
	out := rt.Coordinator.Roots()
	for _, name := range rt.SymbolTable.Enumerate("", math.MaxInt) {
		if rec, ok := rt.SymbolTable.Get(name); ok {
			out = append(out, rec.Value)
		}
	}
	return out
}

// maybeFullCollect runs a full mark-and-sweep pass if the pool has
// crossed its high-water mark and the pool is at its outermost
// save-point, matching the condition in the memory pool design.
func (rt *Runtime) maybeFullCollect() error {
	if !rt.Pool.ShouldFullCollect() || !rt.Pool.AtOutermostSavepoint() {
		return nil
	}
	var err error
	rt.Coordinator.WithExclusive(func() {
		err = rt.Pool.FullCollect(rt.roots())
	})
	return err
}

// Interpret runs the reader and evaluator synchronously on the
// calling goroutine, one context for the whole call. It returns the
// last top-level result; a syntax or eval error on any form aborts the
// stream and is returned without evaluating the rest.
func (rt *Runtime) Interpret(src []byte) Result {
	ctx := rt.Coordinator.Register()
	defer rt.Coordinator.Deregister(ctx)

	reader := NewReader(rt.Pool, src, rt.Config.GetInt("reader.max_atom_bytes"))

	var last Result
	for {
		form, err := reader.Next(rt.roots)
		if errors.Is(err, io.EOF) {
			return last
		}
		if err != nil {
			return Result{Err: err}
		}

		value, err := rt.Evaluator.Eval(ctx, form, RefNil)
		if err != nil {
			rt.recoverAfterError(ctx)
			return Result{Err: err}
		}
		last = Result{Value: value, Printed: rt.Pool.String(value)}

		if err := rt.maybeFullCollect(); err != nil {
			rt.Logger.Warnf("%s", err)
		}
	}
}

// recoverAfterError runs the recovery full sweep the design requires
// after any interpreter-visible error: the reader's outermost
// save-point has already unwound via defer/PopSavepoint chains by the
// time this runs, so a full collect here just reclaims whatever the
// aborted form left allocated beyond its own save-points. ctx, the
// context whose form failed, is SAFE for the duration so WithExclusive
// doesn't wait on it, and the roots are gathered before WithExclusive
// takes the coordinator lock that Coordinator.Roots also needs.
func (rt *Runtime) recoverAfterError(ctx *Context) {
	roots := rt.roots()
	_ = rt.Coordinator.MarkSafe(ctx)
	defer rt.Coordinator.MarkRunning(ctx)
	rt.Coordinator.WithExclusive(func() {
		_ = rt.Pool.FullCollect(roots)
	})
}

// InterpretAsync spawns src's interpretation on its own goroutine,
// supervised by an errgroup so ForceStop can wait for every spawned
// context to actually finish unwinding instead of just requesting it.
// It returns the context's ID, the identity Kill/kill(target) target.
func (rt *Runtime) InterpretAsync(src []byte) (uint64, <-chan Result) {
	if rt.group == nil {
		rt.group = &errgroup.Group{}
	}
	ctx := rt.Coordinator.Register()
	out := make(chan Result, 1)

	rt.group.Go(func() error {
		defer rt.Coordinator.Deregister(ctx)
		defer close(out)

		reader := NewReader(rt.Pool, src, rt.Config.GetInt("reader.max_atom_bytes"))
		var last Result
		for {
			form, err := reader.Next(rt.roots)
			if errors.Is(err, io.EOF) {
				out <- last
				return nil
			}
			if err != nil {
				out <- Result{Err: err}
				return err
			}
			value, err := rt.Evaluator.Eval(ctx, form, RefNil)
			if err != nil {
				rt.recoverAfterError(ctx)
				out <- Result{Err: err}
				return err
			}
			last = Result{Value: value, Printed: rt.Pool.String(value)}
			if gcErr := rt.maybeFullCollect(); gcErr != nil {
				rt.Logger.Warnf("%s", gcErr)
			}
		}
	})
	return ctx.ID, out
}

// Kill requests cancellation of the context identified by target,
// found via the coordinator's live-context registry.
func (rt *Runtime) Kill(target uint64) error {
	ctx, ok := rt.Coordinator.ContextByID(target)
	if !ok {
		return newErr(KindEvalUndefined, Location{}, "no live context %d", target)
	}
	return rt.Coordinator.Kill(nil, ctx)
}

// ForceStop requests termination of every active evaluation and
// blocks until every spawned InterpretAsync goroutine has actually
// finished unwinding.
func (rt *Runtime) ForceStop() error {
	if rt.group == nil {
		return nil
	}
	for _, id := range rt.liveIDs() {
		if ctx, ok := rt.Coordinator.ContextByID(id); ok {
			rt.Coordinator.Kill(nil, ctx)
		}
	}
	err := rt.group.Wait()
	if err != nil && !errors.As(err, new(KilledError)) {
		return err
	}
	return nil
}

func (rt *Runtime) liveIDs() []uint64 {
	rt.Coordinator.mu.Lock()
	defer rt.Coordinator.mu.Unlock()
	ids := make([]uint64, 0, len(rt.Coordinator.contexts))
	for id := range rt.Coordinator.contexts {
		ids = append(ids, id)
	}
	return ids
}

// Complete exposes the symbol table's auto-completion to the host.
func (rt *Runtime) Complete(prefix string) Completion {
	return rt.SymbolTable.Complete(prefix)
}

// Candidates exposes enumeration under a prefix, bounded by max.
func (rt *Runtime) Candidates(prefix string, max int) []string {
	return rt.SymbolTable.Enumerate(prefix, max)
}

// Deinit tears the runtime down in reverse of NewRuntime: stop every
// active evaluation first, then nothing else needs explicit release
// since the pool and symbol table are garbage-collected Go memory.
func (rt *Runtime) Deinit() error {
	return rt.ForceStop()
}
