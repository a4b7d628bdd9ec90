package ylisp

// Bootstrap installs the three reserved identifiers and the built-in
// special forms into symtab, exactly as NewRuntime's "installs
// predefined symbols t, nil, quote" contract requires, plus the
// generic special-form machinery spec.md groups under evaluator step
// 3/4: quote, cond, and, or, let, while, eval, apply, set, mset,
// unset. label/lambda/mlambda are NOT installed here: they are
// recognized structurally in evalPair, never looked up by name.
func (ev *Evaluator) Bootstrap() error {
	if err := ev.symtab.Insert("t", SymbolBound, RefT); err != nil {
		return err
	}
	if err := ev.symtab.Insert("nil", SymbolBound, RefNil); err != nil {
		return err
	}
	// "quote" written as a symbol resolves through the specials loop
	// below, same as every other special form; symbolName already
	// special-cases the RefQuote sentinel the reader's `'x` shorthand
	// embeds directly, so quote needs no symbol-table entry of its own
	// for that path.

	specials := []*NativeFunc{
		{Name: "quote", MinArity: 1, MaxArity: 1, Special: true, Dispatch: ev.spQuote, Desc: "return its argument unevaluated"},
		{Name: "cond", MinArity: 1, MaxArity: -1, Special: true, Dispatch: ev.spCond, Desc: "first matching clause"},
		{Name: "and", MinArity: 1, MaxArity: -1, Special: true, Dispatch: ev.spAnd, Desc: "short-circuiting conjunction"},
		{Name: "or", MinArity: 1, MaxArity: -1, Special: true, Dispatch: ev.spOr, Desc: "short-circuiting disjunction"},
		{Name: "let", MinArity: 2, MaxArity: -1, Special: true, Dispatch: ev.spLet, Desc: "lexical bindings"},
		{Name: "while", MinArity: 2, MaxArity: -1, Special: true, Dispatch: ev.spWhile, Desc: "conditional loop"},
		{Name: "eval", MinArity: 1, MaxArity: 1, Special: true, Dispatch: ev.spEval, Desc: "evaluate a form twice"},
		{Name: "apply", MinArity: 2, MaxArity: 2, Special: true, Dispatch: ev.spApply, Desc: "apply fn to an evaluated argument list"},
		{Name: "set", MinArity: 2, MaxArity: 3, Special: true, Dispatch: ev.spSet, Desc: "bind or rebind a name"},
		{Name: "mset", MinArity: 2, MaxArity: 3, Special: true, Dispatch: ev.spMset, Desc: "bind a name as a macro"},
		{Name: "unset", MinArity: 1, MaxArity: 1, Special: true, Dispatch: ev.spUnset, Desc: "remove a symbol-table binding"},
	}
	for _, fn := range specials {
		ref, err := ev.pool.NewFunc(fn)
		if err != nil {
			return err
		}
		if err := ev.symtab.Insert(fn.Name, SymbolBound, ref); err != nil {
			return err
		}
	}
	return nil
}

func (ev *Evaluator) spQuote(ctx *Context, args, alist Ref) (Ref, error) {
	return ev.pool.at(args).Head, nil
}

// spCond evaluates (p1 e1) (p2 e2) ... clauses in order, returning ei
// for the first pi that evaluates non-nil, or NIL if none do.
func (ev *Evaluator) spCond(ctx *Context, args, alist Ref) (Ref, error) {
	clauses, err := ev.listToSlice(args)
	if err != nil {
		return RefNone, err
	}
	for _, clauseRef := range clauses {
		clause := ev.pool.at(clauseRef)
		test, err := ev.evalStep(ctx, clause.Head, alist, 0)
		if err != nil {
			return RefNone, err
		}
		if Truthy(test) {
			bodyRef := ev.pool.at(clause.Tail).Head
			return ev.evalStep(ctx, bodyRef, alist, 0)
		}
	}
	return RefNil, nil
}

func (ev *Evaluator) spAnd(ctx *Context, args, alist Ref) (Ref, error) {
	items, err := ev.listToSlice(args)
	if err != nil {
		return RefNone, err
	}
	result := Ref(RefT)
	for _, item := range items {
		v, err := ev.evalStep(ctx, item, alist, 0)
		if err != nil {
			return RefNone, err
		}
		if !Truthy(v) {
			return RefNil, nil
		}
		result = v
	}
	return result, nil
}

func (ev *Evaluator) spOr(ctx *Context, args, alist Ref) (Ref, error) {
	items, err := ev.listToSlice(args)
	if err != nil {
		return RefNone, err
	}
	for _, item := range items {
		v, err := ev.evalStep(ctx, item, alist, 0)
		if err != nil {
			return RefNone, err
		}
		if Truthy(v) {
			return v, nil
		}
	}
	return RefNil, nil
}

// spLet evaluates each binding's value expression in the current a,
// prepends `(xi . vi)` pairs, then evaluates the body in sequence.
func (ev *Evaluator) spLet(ctx *Context, args, alist Ref) (Ref, error) {
	argsCell := ev.pool.at(args)
	bindings, body := argsCell.Head, argsCell.Tail

	clauses, err := ev.listToSlice(bindings)
	if err != nil {
		return RefNone, err
	}
	newAlist := alist
	for _, clauseRef := range clauses {
		clause := ev.pool.at(clauseRef)
		name, ok := ev.symbolName(clause.Head)
		if !ok {
			return RefNone, newErr(KindEvalRange, Location{}, "let binding name must be a symbol")
		}
		valExpr := ev.pool.at(clause.Tail).Head
		v, err := ev.evalStep(ctx, valExpr, alist, 0)
		if err != nil {
			return RefNone, err
		}
		newAlist, err = ev.alistPrepend(newAlist, name, v)
		if err != nil {
			return RefNone, err
		}
	}
	return ev.evalBody(ctx, body, newAlist, 0)
}

// spWhile evaluates cond; while non-nil, it runs body once per
// iteration inside its own pool save-point (iteration results are
// discarded) up to a configured iteration cap.
func (ev *Evaluator) spWhile(ctx *Context, args, alist Ref) (Ref, error) {
	argsCell := ev.pool.at(args)
	condExpr, body := argsCell.Head, argsCell.Tail
	limit := ev.cfg.GetInt("eval.while_iteration_limit")

	for i := 0; ; i++ {
		if i >= limit {
			return RefNone, newErr(KindEvalAssert, Location{}, "while exceeded %d iterations", limit)
		}
		if err := ctx.Yield(); err != nil {
			return RefNone, err
		}
		test, err := ev.evalStep(ctx, condExpr, alist, 0)
		if err != nil {
			return RefNone, err
		}
		if !Truthy(test) {
			return RefNil, nil
		}
		ev.pool.PushSavepoint()
		_, err = ev.evalBody(ctx, body, alist, 0)
		if err != nil {
			ev.pool.PopSavepoint(ev.roots)
			return RefNone, err
		}
		ev.pool.PopSavepoint(ev.roots)
	}
}

// spEval evaluates its operand once to produce a form, then evaluates
// that form again as code.
func (ev *Evaluator) spEval(ctx *Context, args, alist Ref) (Ref, error) {
	expr := ev.pool.at(args).Head
	form, err := ev.evalStep(ctx, expr, alist, 0)
	if err != nil {
		return RefNone, err
	}
	return ev.evalStep(ctx, form, alist, 0)
}

// spApply evaluates fn and the argument-list expression, then
// reconstructs a call form with each evaluated value wrapped in
// `(quote v)` so it is safe to re-evaluate regardless of fn's calling
// convention (native, lambda, or macro).
func (ev *Evaluator) spApply(ctx *Context, args, alist Ref) (Ref, error) {
	argsCell := ev.pool.at(args)
	fnExpr := argsCell.Head
	argListExpr := ev.pool.at(argsCell.Tail).Head

	fnVal, err := ev.evalStep(ctx, fnExpr, alist, 0)
	if err != nil {
		return RefNone, err
	}
	argListVal, err := ev.evalStep(ctx, argListExpr, alist, 0)
	if err != nil {
		return RefNone, err
	}
	values, err := ev.listToSlice(argListVal)
	if err != nil {
		return RefNone, err
	}
	quoted := make([]Ref, len(values))
	for i, v := range values {
		inner, err := ev.pool.Cons(v, RefNil)
		if err != nil {
			return RefNone, err
		}
		quoted[i], err = ev.pool.Cons(RefQuote, inner)
		if err != nil {
			return RefNone, err
		}
	}
	rawArgs, err := ev.pool.List(quoted...)
	if err != nil {
		return RefNone, err
	}
	newE, err := ev.pool.Cons(fnVal, rawArgs)
	if err != nil {
		return RefNone, err
	}
	return ev.evalStep(ctx, newE, alist, 0)
}

// spSet evaluates the new value and, optionally, a description. If
// the name is already shadowed in a, it mutates that binding in
// place; otherwise it inserts into the symbol table as an ordinary
// value.
func (ev *Evaluator) spSet(ctx *Context, args, alist Ref) (Ref, error) {
	name, value, desc, err := ev.evalSetArgs(ctx, args, alist)
	if err != nil {
		return RefNone, err
	}
	if _, pairRef, found := ev.alistLookup(alist, name); found {
		ev.pool.at(pairRef).Tail = value
		return value, nil
	}
	if err := ev.symtab.Insert(name, SymbolBound, value); err != nil {
		return RefNone, err
	}
	if desc != "" {
		_ = ev.symtab.SetDescription(name, desc)
	}
	return value, nil
}

// spMset always inserts into the symbol table as a macro, ignoring
// any alist shadowing.
func (ev *Evaluator) spMset(ctx *Context, args, alist Ref) (Ref, error) {
	name, value, desc, err := ev.evalSetArgs(ctx, args, alist)
	if err != nil {
		return RefNone, err
	}
	if err := ev.symtab.Insert(name, SymbolMacro, value); err != nil {
		return RefNone, err
	}
	if desc != "" {
		_ = ev.symtab.SetDescription(name, desc)
	}
	return value, nil
}

func (ev *Evaluator) spUnset(ctx *Context, args, alist Ref) (Ref, error) {
	nameExpr := ev.pool.at(args).Head
	nameVal, err := ev.evalStep(ctx, nameExpr, alist, 0)
	if err != nil {
		return RefNone, err
	}
	name, ok := ev.symbolName(nameVal)
	if !ok {
		return RefNone, newErr(KindEvalRange, Location{}, "unset expects a symbol name")
	}
	return RefNil, ev.symtab.Delete(name)
}

func (ev *Evaluator) evalSetArgs(ctx *Context, args, alist Ref) (name string, value Ref, desc string, err error) {
	items, err := ev.listToSlice(args)
	if err != nil {
		return "", RefNone, "", err
	}
	nameVal, err := ev.evalStep(ctx, items[0], alist, 0)
	if err != nil {
		return "", RefNone, "", err
	}
	name, ok := ev.symbolName(nameVal)
	if !ok {
		return "", RefNone, "", newErr(KindEvalRange, Location{}, "set/mset expects a symbol name")
	}
	value, err = ev.evalStep(ctx, items[1], alist, 0)
	if err != nil {
		return "", RefNone, "", err
	}
	if len(items) == 3 {
		descVal, err := ev.evalStep(ctx, items[2], alist, 0)
		if err != nil {
			return "", RefNone, "", err
		}
		if descVal.IsPredefined() {
			return name, value, "", nil
		}
		if dc := ev.pool.at(descVal); dc.Kind == KindBinary {
			desc = string(dc.Bin)
		}
	}
	return name, value, desc, nil
}
