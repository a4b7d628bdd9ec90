package ylisp

import "fmt"

// CellKind tags the variant of a Cell. A pair's CellKind is KindPair;
// every other CellKind identifies an atom variant.
type CellKind uint8

const (
	KindPair CellKind = iota
	KindSymbol
	KindDouble
	KindBinary
	KindNative
	KindSpecial
	KindCustom
)

func (k CellKind) String() string {
	switch k {
	case KindPair:
		return "pair"
	case KindSymbol:
		return "symbol"
	case KindDouble:
		return "double"
	case KindBinary:
		return "binary"
	case KindNative:
		return "native"
	case KindSpecial:
		return "special"
	case KindCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// Ref is a cell identity. Non-negative values index into a Pool's
// arena; cells never move, so a Ref is stable for the cell's whole
// lifetime. Negative values name the three predefined cells that live
// outside any pool (NIL, T, QUOTE) or the absence of a reference.
type Ref int32

const (
	// RefNone marks an absent pair component (a freshly recycled
	// cell) or "no value" in APIs that can fail to produce a Ref.
	RefNone Ref = -1
	// RefNil is the empty list / boolean false.
	RefNil Ref = -2
	// RefT is the canonical non-nil / boolean true value.
	RefT Ref = -3
	// RefQuote is the symbol `quote`, used to build `(quote x)` forms
	// without a symbol table round trip.
	RefQuote Ref = -4
)

// IsPredefined reports whether r names one of the three cells that
// live outside the pool and compare by identity.
func (r Ref) IsPredefined() bool {
	return r == RefNil || r == RefT || r == RefQuote
}

func (r Ref) predefinedName() string {
	switch r {
	case RefNil:
		return "nil"
	case RefT:
		return "t"
	case RefQuote:
		return "quote"
	}
	return ""
}

// NativeFunc describes a host-registered function atom. See extension.go.
type NativeFunc struct {
	Name     string
	MinArity int
	MaxArity int // -1 means unbounded
	Special  bool
	Dispatch func(ctx *Context, args Ref, alist Ref) (Ref, error)
	Desc     string
}

// CustomAtom is the payload of a KindCustom cell: an opaque value plus
// the type tag under which its capability table was registered (see
// extension.go's customKindRegistry).
type CustomAtom struct {
	Tag     int
	Payload any
	cleaned bool
}

// Cell is the fundamental unit of allocation. It is either a pair
// (Head/Tail valid) or an atom (exactly one of the payload fields
// valid, selected by Kind).
type Cell struct {
	Kind CellKind

	// mark is reader/evaluator scratch space, also reused as the
	// scratch "visited" flag during a scoped save-point sweep.
	mark bool
	// gcMark is reachability state set only during a full
	// mark-and-sweep pass.
	gcMark bool

	// pair payload
	Head Ref
	Tail Ref

	// atom payloads, selected by Kind
	Sym    string
	Num    float64
	Bin    []byte
	Fn     *NativeFunc
	Custom *CustomAtom
}

func freshCell() Cell {
	return Cell{Kind: KindPair, Head: RefNone, Tail: RefNone}
}

// Equal implements the Atom/Pair model's structural equality, C1. Pairs
// recurse structurally; atoms compare by variant-specific rule; custom
// atoms delegate to their registered capability table.
func (p *Pool) Equal(a, b Ref) bool {
	if a == b {
		return true
	}
	if a.IsPredefined() || b.IsPredefined() {
		return false // identity already checked above
	}
	ca, cb := p.at(a), p.at(b)
	if ca.Kind != cb.Kind {
		return false
	}
	switch ca.Kind {
	case KindPair:
		return p.Equal(ca.Head, cb.Head) && p.Equal(ca.Tail, cb.Tail)
	case KindSymbol:
		return ca.Sym == cb.Sym
	case KindDouble:
		return ca.Num == cb.Num
	case KindBinary:
		return string(ca.Bin) == string(cb.Bin)
	case KindNative, KindSpecial:
		return ca.Fn == cb.Fn
	case KindCustom:
		iface, ok := p.customKinds.lookup(ca.Custom.Tag)
		if !ok || iface.Equal == nil {
			return false
		}
		return iface.Equal(ca.Custom.Payload, cb.Custom.Payload)
	}
	return false
}

// String implements C1's to_string capability for every variant.
func (p *Pool) String(r Ref) string {
	if r.IsPredefined() {
		return r.predefinedName()
	}
	c := p.at(r)
	switch c.Kind {
	case KindPair:
		return p.pairString(r)
	case KindSymbol:
		return c.Sym
	case KindDouble:
		return fmt.Sprintf("%f", c.Num)
	case KindBinary:
		return fmt.Sprintf("%q", string(c.Bin))
	case KindNative:
		return fmt.Sprintf("#<native:%s>", c.Fn.Name)
	case KindSpecial:
		return fmt.Sprintf("#<special:%s>", c.Fn.Name)
	case KindCustom:
		if iface, ok := p.customKinds.lookup(c.Custom.Tag); ok && iface.ToString != nil {
			return iface.ToString(c.Custom.Payload)
		}
		return "#<custom>"
	}
	return "#<?>"
}

func (p *Pool) pairString(r Ref) string {
	out := "("
	cur := r
	first := true
	for {
		c := p.at(cur)
		if !first {
			out += " "
		}
		first = false
		out += p.String(c.Head)
		if c.Tail == RefNil {
			break
		}
		if c.Tail.IsPredefined() || p.at(c.Tail).Kind != KindPair {
			out += " . " + p.String(c.Tail)
			break
		}
		cur = c.Tail
	}
	return out + ")"
}

// Visit implements C1's reachability visit: for a pair it yields both
// components, for an atom it yields whatever it transitively owns
// (only custom atoms can embed cells, e.g. arrays or maps).
func (p *Pool) Visit(r Ref, yield func(Ref)) {
	if r.IsPredefined() || r == RefNone {
		return
	}
	c := p.at(r)
	switch c.Kind {
	case KindPair:
		if c.Head != RefNone {
			yield(c.Head)
		}
		if c.Tail != RefNone {
			yield(c.Tail)
		}
	case KindCustom:
		if iface, ok := p.customKinds.lookup(c.Custom.Tag); ok && iface.Visit != nil {
			iface.Visit(c.Custom.Payload, yield)
		}
	}
}

// Clean releases a cell's variant-specific payload. It is invoked
// exactly once per cell lifetime, right before the cell returns to the
// free list.
func (p *Pool) clean(c *Cell) {
	switch c.Kind {
	case KindSymbol:
		c.Sym = ""
	case KindBinary:
		c.Bin = nil
	case KindCustom:
		if c.Custom != nil && !c.Custom.cleaned {
			if iface, ok := p.customKinds.lookup(c.Custom.Tag); ok && iface.Clean != nil {
				iface.Clean(c.Custom.Payload)
			}
			c.Custom.cleaned = true
		}
		c.Custom = nil
	}
	c.Head, c.Tail = RefNone, RefNone
	c.Fn = nil
}

// Clone performs the Atom/Pair model's structural clone: a deep copy
// following pair edges and delegating atom copy to the variant's
// interface. It is used by mlambda/mset macro expansion so that
// substitution never mutates a stored body. Custom atoms that don't
// implement a Clone capability fail the clone.
func (p *Pool) Clone(r Ref) (Ref, error) {
	if r.IsPredefined() || r == RefNone {
		return r, nil
	}
	c := p.at(r)
	switch c.Kind {
	case KindPair:
		head, err := p.Clone(c.Head)
		if err != nil {
			return RefNone, err
		}
		tail, err := p.Clone(c.Tail)
		if err != nil {
			return RefNone, err
		}
		return p.Cons(head, tail)
	case KindSymbol:
		return p.NewSymbol(c.Sym)
	case KindDouble:
		return p.NewDouble(c.Num)
	case KindBinary:
		return p.NewBinary(append([]byte(nil), c.Bin...))
	case KindNative, KindSpecial:
		return r, nil // function atoms are shared, never cloned
	case KindCustom:
		iface, ok := p.customKinds.lookup(c.Custom.Tag)
		if !ok || iface.Clone == nil {
			return RefNone, &InternalError{Reason: fmt.Sprintf("custom atom kind %d has no Clone capability", c.Custom.Tag)}
		}
		payload, err := iface.Clone(c.Custom.Payload)
		if err != nil {
			return RefNone, err
		}
		return p.NewCustom(c.Custom.Tag, payload)
	}
	return RefNone, &InternalError{Reason: "clone: unknown kind"}
}

// IsNil reports whether r is the canonical empty list / false value.
func IsNil(r Ref) bool { return r == RefNil }

// Truthy mirrors the evaluator's "non-nil is true" rule used by cond/
// and/or/while.
func Truthy(r Ref) bool { return r != RefNil }
