package ylisp

import "strconv"

// Evaluator implements C6: the five evaluation cases, the
// label/lambda/mlambda structural forms, and macro substitution. It
// holds no per-evaluation state of its own -- that all lives on the
// Context passed into Eval -- so a single Evaluator is shared by every
// concurrent context a Runtime creates.
type Evaluator struct {
	pool    *Pool
	symtab  *SymbolTable
	coord   *Coordinator
	cfg     *Config
	roots   func() []Ref
}

// NewEvaluator wires an Evaluator to the shared runtime state. roots
// is consulted by every save-point pop the evaluator performs; it
// should report every GC root outside the context currently
// evaluating (the rest of the live contexts, plus the symbol table,
// which Pool.PopSavepoint's caller-supplied walk doesn't see on its
// own since symbol values aren't cell-shaped roots until resolved).
func NewEvaluator(pool *Pool, symtab *SymbolTable, coord *Coordinator, cfg *Config, roots func() []Ref) *Evaluator {
	return &Evaluator{pool: pool, symtab: symtab, coord: coord, cfg: cfg, roots: roots}
}

func (ev *Evaluator) recursionLimit() int { return ev.cfg.GetInt("eval.recursion_limit") }

// Eval is the evaluator's public entry point: one top-level step. It
// announces a safe point before starting (so a pending kill or a full
// GC waiting on "all safe" can run), then brackets the recursive
// evaluation in a pool save-point that keeps only the final result
// alive.
func (ev *Evaluator) Eval(ctx *Context, e, alist Ref) (Ref, error) {
	if err := ev.coord.MarkSafe(ctx); err != nil {
		return RefNone, err
	}
	ev.coord.MarkRunning(ctx)

	old := ctx.CurrentAlist
	ctx.CurrentAlist = alist
	defer func() { ctx.CurrentAlist = old }()

	ev.pool.PushSavepoint()
	result, err := ev.evalStep(ctx, e, alist, 0)
	if err != nil {
		if _, killed := err.(KilledError); killed {
			ctx.releaseAllOwned()
		}
		ev.pool.PopSavepoint(ev.roots)
		return RefNone, err
	}
	ev.pool.PopSavepoint(ev.roots, result)
	return result, nil
}

func (ev *Evaluator) evalStep(ctx *Context, e, alist Ref, depth int) (Ref, error) {
	if depth > ev.recursionLimit() {
		return RefNone, newErr(KindEvalAssert, Location{}, "recursion limit of %d exceeded", ev.recursionLimit())
	}
	switch {
	case e == RefNil:
		return RefNone, newErr(KindEvalSquoted, Location{}, "cannot evaluate the empty list as a form")
	case e == RefT, e == RefQuote:
		return e, nil
	}
	c := ev.pool.at(e)
	switch c.Kind {
	case KindSymbol:
		return ev.evalSymbol(ctx, c.Sym, alist, depth)
	case KindPair:
		ctx.pushTrace(e)
		defer ctx.popTrace()
		return ev.evalPair(ctx, e, alist, depth)
	default:
		return e, nil
	}
}

// evalSymbol is case 2's symbol sub-case: alist, then the symbol
// table, then a numeric-literal fallback, in that order.
func (ev *Evaluator) evalSymbol(ctx *Context, name string, alist Ref, depth int) (Ref, error) {
	if v, _, found := ev.alistLookup(alist, name); found {
		return v, nil
	}
	if rec, found := ev.symtab.Get(name); found {
		if rec.Kind == SymbolMacro {
			return ev.evalStep(ctx, rec.Value, alist, depth+1)
		}
		return rec.Value, nil
	}
	if f, err := strconv.ParseFloat(name, 64); err == nil {
		return ev.pool.NewDouble(f)
	}
	return RefNone, UnboundError{Name: name}
}

// symbolName reports the name a Ref would be looked up under in
// function or variable position: true symbol atoms, plus the
// RefQuote sentinel the reader's `'` shorthand embeds directly instead
// of allocating a fresh "quote" symbol cell.
func (ev *Evaluator) symbolName(r Ref) (string, bool) {
	if r == RefQuote {
		return "quote", true
	}
	if r.IsPredefined() {
		return "", false
	}
	c := ev.pool.at(r)
	if c.Kind == KindSymbol {
		return c.Sym, true
	}
	return "", false
}

func (ev *Evaluator) lookupFunctional(name string, alist Ref) (Ref, SymbolKind, bool, error) {
	if v, _, found := ev.alistLookup(alist, name); found {
		return v, SymbolBound, true, nil
	}
	if rec, found := ev.symtab.Get(name); found {
		return rec.Value, rec.Kind, true, nil
	}
	return RefNone, 0, false, nil
}

// evalPair implements cases 3, 4 and 5 as a single restart loop: a
// macro expansion, a function-value substitution, or the "evaluate
// car(e)" fallback all rewrite e and continue the loop rather than
// recursing, so an arbitrarily long macro/indirection chain doesn't
// grow the Go call stack.
func (ev *Evaluator) evalPair(ctx *Context, e, alist Ref, depth int) (Ref, error) {
	for {
		c := ev.pool.at(e)
		head, args := c.Head, c.Tail

		if name, ok := ev.symbolName(head); ok {
			switch name {
			case "label", "lambda", "mlambda":
				// A label/lambda/mlambda form in value position (the
				// value argument of set or mset, say) evaluates to itself.
				return e, nil
			}
			val, kind, found, err := ev.lookupFunctional(name, alist)
			if err != nil {
				return RefNone, err
			}
			if !found {
				return RefNone, UnboundError{Name: name}
			}
			if kind == SymbolMacro {
				newE, err := ev.pool.Cons(val, args)
				if err != nil {
					return RefNone, err
				}
				e = newE
				continue
			}
			if !val.IsPredefined() {
				if vc := ev.pool.at(val); vc.Kind == KindPair {
					newE, err := ev.pool.Cons(val, args)
					if err != nil {
						return RefNone, err
					}
					e = newE
					continue
				}
			}
			return ev.applyFunctionValue(ctx, val, args, alist, depth)
		}

		if !head.IsPredefined() {
			hc := ev.pool.at(head)
			switch hc.Kind {
			case KindNative, KindSpecial:
				return ev.applyFunctionValue(ctx, head, args, alist, depth)
			case KindPair:
				if opName, ok := ev.symbolName(hc.Head); ok {
					switch opName {
					case "label":
						return ev.evalLabel(ctx, head, args, alist, depth)
					case "lambda":
						return ev.evalLambda(ctx, head, args, alist, depth)
					case "mlambda":
						return ev.evalMlambda(ctx, head, args, alist, depth)
					}
				}
				newHead, err := ev.evalStep(ctx, head, alist, depth+1)
				if err != nil {
					return RefNone, err
				}
				newE, err := ev.pool.Cons(newHead, args)
				if err != nil {
					return RefNone, err
				}
				e = newE
				continue
			}
		}
		return RefNone, NotCallableError{What: ev.pool.String(head)}
	}
}

func (ev *Evaluator) applyFunctionValue(ctx *Context, val, args, alist Ref, depth int) (Ref, error) {
	if val.IsPredefined() {
		return RefNone, NotCallableError{What: val.predefinedName()}
	}
	vc := ev.pool.at(val)
	switch vc.Kind {
	case KindNative:
		evaled, err := ev.evalList(ctx, args, alist, depth)
		if err != nil {
			return RefNone, err
		}
		return ev.callNative(ctx, vc.Fn, evaled, alist)
	case KindSpecial:
		return ev.callNative(ctx, vc.Fn, args, alist)
	default:
		return RefNone, NotCallableError{What: vc.Kind.String()}
	}
}

func (ev *Evaluator) callNative(ctx *Context, fn *NativeFunc, args, alist Ref) (Ref, error) {
	items, err := ev.listToSlice(args)
	if err != nil {
		return RefNone, err
	}
	if len(items) < fn.MinArity || (fn.MaxArity >= 0 && len(items) > fn.MaxArity) {
		return RefNone, newErr(KindFuncInvalidParam, Location{}, "%s expects [%d,%d] args, got %d", fn.Name, fn.MinArity, fn.MaxArity, len(items))
	}
	return fn.Dispatch(ctx, args, alist)
}

// evalLabel implements OP=label: `((label name f) . args)` binds name
// to the whole `(label name f)` structure within a, so a recursive
// call to name from inside f resolves back here, then evaluates
// `(f . args)` under that augmented environment.
func (ev *Evaluator) evalLabel(ctx *Context, opList, args, alist Ref, depth int) (Ref, error) {
	rest := ev.pool.at(opList).Tail
	restCell := ev.pool.at(rest)
	name, ok := ev.symbolName(restCell.Head)
	if !ok {
		return RefNone, newErr(KindEvalRange, Location{}, "label requires a name as its first operand")
	}
	fnExprRef := ev.pool.at(restCell.Tail).Head

	newAlist, err := ev.alistPrepend(alist, name, opList)
	if err != nil {
		return RefNone, err
	}
	newE, err := ev.pool.Cons(fnExprRef, args)
	if err != nil {
		return RefNone, err
	}
	return ev.evalStep(ctx, newE, newAlist, depth+1)
}

// evalLambda implements OP=lambda: zip params with evaluated args,
// prepend to a, evaluate body forms in order.
func (ev *Evaluator) evalLambda(ctx *Context, opList, args, alist Ref, depth int) (Ref, error) {
	rest := ev.pool.at(opList).Tail
	restCell := ev.pool.at(rest)
	params, body := restCell.Head, restCell.Tail

	evaledArgs, err := ev.evalList(ctx, args, alist, depth)
	if err != nil {
		return RefNone, err
	}
	newAlist, err := ev.zipBind(params, evaledArgs, alist)
	if err != nil {
		return RefNone, err
	}
	return ev.evalBody(ctx, body, newAlist, depth+1)
}

// evalMlambda implements OP=mlambda: zip params with unevaluated
// args, substitute formals in a fresh clone of body, evaluate the
// result. An empty params list with a non-empty body instead splices
// args onto the tail of body -- a variadic macro that sees its whole
// call form.
func (ev *Evaluator) evalMlambda(ctx *Context, opList, args, alist Ref, depth int) (Ref, error) {
	rest := ev.pool.at(opList).Tail
	restCell := ev.pool.at(rest)
	params, body := restCell.Head, restCell.Tail

	if params == RefNil && body != RefNil {
		spliced, err := ev.appendList(body, args)
		if err != nil {
			return RefNone, err
		}
		return ev.evalBody(ctx, spliced, alist, depth+1)
	}

	bindings, err := ev.zipNames(params, args)
	if err != nil {
		return RefNone, err
	}
	cloned, err := ev.substitute(body, bindings)
	if err != nil {
		return RefNone, err
	}
	return ev.evalBody(ctx, cloned, alist, depth+1)
}

// evalList evaluates every element of a raw argument list in order
// and returns a fresh list of the results.
func (ev *Evaluator) evalList(ctx *Context, args, alist Ref, depth int) (Ref, error) {
	items, err := ev.listToSlice(args)
	if err != nil {
		return RefNone, err
	}
	out := make([]Ref, len(items))
	for i, it := range items {
		v, err := ev.evalStep(ctx, it, alist, depth+1)
		if err != nil {
			return RefNone, err
		}
		out[i] = v
	}
	return ev.pool.List(out...)
}

// evalBody evaluates each form of a body list in order and returns
// the last result, or NIL for an empty body.
func (ev *Evaluator) evalBody(ctx *Context, body, alist Ref, depth int) (Ref, error) {
	items, err := ev.listToSlice(body)
	if err != nil {
		return RefNone, err
	}
	result := Ref(RefNil)
	for _, it := range items {
		result, err = ev.evalStep(ctx, it, alist, depth+1)
		if err != nil {
			return RefNone, err
		}
	}
	return result, nil
}

func (ev *Evaluator) listToSlice(r Ref) ([]Ref, error) {
	var out []Ref
	for r != RefNil {
		if r.IsPredefined() {
			return nil, newErr(KindEvalRange, Location{}, "improper list where a proper list was expected")
		}
		c := ev.pool.at(r)
		if c.Kind != KindPair {
			return nil, newErr(KindEvalRange, Location{}, "improper list where a proper list was expected")
		}
		out = append(out, c.Head)
		r = c.Tail
	}
	return out, nil
}

func (ev *Evaluator) appendList(a, b Ref) (Ref, error) {
	if a == RefNil {
		return b, nil
	}
	c := ev.pool.at(a)
	tail, err := ev.appendList(c.Tail, b)
	if err != nil {
		return RefNone, err
	}
	return ev.pool.Cons(c.Head, tail)
}

// zipBind pairs each formal in params with the corresponding value in
// values (both proper lists of identical length, else EvalRange),
// prepending each `(name . value)` onto alist.
func (ev *Evaluator) zipBind(params, values, alist Ref) (Ref, error) {
	names, err := ev.listToSlice(params)
	if err != nil {
		return RefNone, err
	}
	vals, err := ev.listToSlice(values)
	if err != nil {
		return RefNone, err
	}
	if len(names) != len(vals) {
		return RefNone, newErr(KindEvalRange, Location{}, "expected %d arguments, got %d", len(names), len(vals))
	}
	out := alist
	for i, n := range names {
		name, ok := ev.symbolName(n)
		if !ok {
			return RefNone, newErr(KindEvalRange, Location{}, "lambda parameter is not a symbol")
		}
		out, err = ev.alistPrepend(out, name, vals[i])
		if err != nil {
			return RefNone, err
		}
	}
	return out, nil
}

// zipNames pairs each formal in params with the corresponding
// unevaluated expression in args, for mlambda substitution.
func (ev *Evaluator) zipNames(params, args Ref) (map[string]Ref, error) {
	names, err := ev.listToSlice(params)
	if err != nil {
		return nil, err
	}
	exprs, err := ev.listToSlice(args)
	if err != nil {
		return nil, err
	}
	if len(names) != len(exprs) {
		return nil, newErr(KindEvalRange, Location{}, "macro expected %d arguments, got %d", len(names), len(exprs))
	}
	bindings := make(map[string]Ref, len(names))
	for i, n := range names {
		name, ok := ev.symbolName(n)
		if !ok {
			return nil, newErr(KindEvalRange, Location{}, "macro parameter is not a symbol")
		}
		bindings[name] = exprs[i]
	}
	return bindings, nil
}

// substitute deep-clones r, replacing every symbol occurrence that
// names a formal parameter with its bound (unevaluated) expression.
// The clone means a stored macro body is never mutated by expansion.
func (ev *Evaluator) substitute(r Ref, bindings map[string]Ref) (Ref, error) {
	if r.IsPredefined() || r == RefNone {
		return r, nil
	}
	c := ev.pool.at(r)
	switch c.Kind {
	case KindSymbol:
		if v, ok := bindings[c.Sym]; ok {
			return v, nil
		}
		return ev.pool.NewSymbol(c.Sym)
	case KindPair:
		head, err := ev.substitute(c.Head, bindings)
		if err != nil {
			return RefNone, err
		}
		tail, err := ev.substitute(c.Tail, bindings)
		if err != nil {
			return RefNone, err
		}
		return ev.pool.Cons(head, tail)
	default:
		return ev.pool.Clone(r)
	}
}

func (ev *Evaluator) alistLookup(alist Ref, name string) (Ref, Ref, bool) {
	cur := alist
	for cur != RefNil {
		if cur.IsPredefined() {
			return RefNone, RefNone, false
		}
		pairRef := ev.pool.at(cur).Head
		pair := ev.pool.at(pairRef)
		if n, ok := ev.symbolName(pair.Head); ok && n == name {
			return pair.Tail, pairRef, true
		}
		cur = ev.pool.at(cur).Tail
	}
	return RefNone, RefNone, false
}

func (ev *Evaluator) alistPrepend(alist Ref, name string, value Ref) (Ref, error) {
	sym, err := ev.pool.NewSymbol(name)
	if err != nil {
		return RefNone, err
	}
	pair, err := ev.pool.Cons(sym, value)
	if err != nil {
		return RefNone, err
	}
	return ev.pool.Cons(pair, alist)
}
