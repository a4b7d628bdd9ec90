package ylisp

import "strings"

// FormatFunc renders one tree node's own label, independent of its
// children -- the same separation the teacher's AST printer uses so a
// single treePrinter can serve every node type in a grammar.
type FormatFunc[T any] func(input string, token T) string

// treePrinter accumulates an indented, branch-drawn tree into a
// strings.Builder, adapted from the teacher's AST pretty-printer
// (tree_printer.go) down to its padding/indent primitives; the
// grammar-specific traversal is gone, replaced by printChild's
// head/tail walk below.
type treePrinter[T any] struct {
	padStr *[]string
	output *strings.Builder
	format FormatFunc[T]
}

func newTreePrinter[T any](format FormatFunc[T]) *treePrinter[T] {
	return &treePrinter[T]{
		padStr: &[]string{},
		output: &strings.Builder{},
		format: format,
	}
}

func (tp *treePrinter[T]) indent(s string) {
	*tp.padStr = append(*tp.padStr, s)
}

func (tp *treePrinter[T]) unindent() {
	index := len(*tp.padStr) - 1
	*tp.padStr = (*tp.padStr)[:index]
}

func (tp *treePrinter[T]) padding() {
	for _, item := range *tp.padStr {
		tp.write(item)
	}
}

func (tp *treePrinter[T]) writel(s string) {
	tp.write(s)
	tp.output.WriteRune('\n')
}

func (tp *treePrinter[T]) pwritel(s string) {
	tp.pwrite(s)
	tp.output.WriteRune('\n')
}

func (tp *treePrinter[T]) write(s string) {
	tp.output.WriteString(s)
}

func (tp *treePrinter[T]) pwrite(s string) {
	tp.padding()
	tp.write(s)
}

var literalSanitizer = strings.NewReplacer(
	`"`, `\"`,
	`\`, `\\`,
	string('\n'), `\n`,
	string('\r'), `\r`,
	string('\t'), `\t`,
)

func escapeLiteral(s string) string {
	return literalSanitizer.Replace(s)
}

// PrettyPrint renders r as an indented branch tree, one line per cell,
// rather than pool.String's flat `(a b c)` form -- useful for
// inspecting a deeply nested form or a macro's expanded body in a REPL
// debug command. Every pair node draws exactly two children, labeled
// "head" and "tail", so the tree mirrors the cons structure exactly
// rather than trying to special-case proper lists.
func (p *Pool) PrettyPrint(r Ref) string {
	tp := newTreePrinter(func(label string, ref Ref) string {
		if label == "" {
			return p.label(ref)
		}
		return label + ": " + p.label(ref)
	})
	tp.writel(tp.format("", r))
	if c := p.pairAt(r); c != nil {
		p.printChild(tp, "head", c.Head, false)
		p.printChild(tp, "tail", c.Tail, true)
	}
	return tp.output.String()
}

func (p *Pool) label(r Ref) string {
	if r.IsPredefined() {
		return r.predefinedName()
	}
	c := p.at(r)
	switch c.Kind {
	case KindPair:
		return "."
	case KindSymbol:
		return c.Sym
	case KindBinary:
		return `"` + escapeLiteral(string(c.Bin)) + `"`
	default:
		return p.String(r)
	}
}

func (p *Pool) printChild(tp *treePrinter[Ref], label string, r Ref, last bool) {
	branch := "├── "
	pad := "│   "
	if last {
		branch = "└── "
		pad = "    "
	}
	tp.pwritel(branch + tp.format(label, r))

	c := p.pairAt(r)
	if c == nil {
		return
	}
	tp.indent(pad)
	p.printChild(tp, "head", c.Head, false)
	p.printChild(tp, "tail", c.Tail, true)
	tp.unindent()
}

// pairAt is a nil-safe peek: it reports c's underlying pair cell when r
// names one, and nil for a predefined atom, RefNone, or any other
// atom kind, without panicking the way at() would on a non-pool Ref.
func (p *Pool) pairAt(r Ref) *Cell {
	if r.IsPredefined() || r == RefNone {
		return nil
	}
	c := p.at(r)
	if c.Kind != KindPair {
		return nil
	}
	return c
}
