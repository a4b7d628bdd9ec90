package ylisp

import "github.com/davecgh/go-spew/spew"

// debugConfig renders Go values compactly for host-facing debug
// dumps: no pointer addresses, method calls disabled so a Stringer
// such as CellKind.String doesn't replace the raw value being dumped.
var debugConfig = spew.ConfigState{
	Indent:                  "  ",
	DisablePointerAddresses: true,
	DisableMethods:          true,
	DisableCapacities:       true,
}

// DumpCell renders a single cell's raw struct fields, Head/Tail/Sym/
// Num/Bin/Fn included, the low-level counterpart to PrettyPrint's
// S-expression view -- useful when a bug is in the cell's variant
// tagging itself rather than in the tree it represents.
func (p *Pool) DumpCell(r Ref) string {
	if r.IsPredefined() || r == RefNone {
		return debugConfig.Sdump(r)
	}
	return debugConfig.Sdump(*p.at(r))
}

// DumpPool renders the pool's allocation bookkeeping -- capacity,
// free-list length, used-list length, and open save-points -- without
// walking into every cell, which would be unreadable at real capacity.
func (p *Pool) DumpPool() string {
	return debugConfig.Sdump(p.Stat())
}

// DumpContext renders a context's scheduling state and GC roots, the
// debug counterpart a host's REPL `:context` command prints when
// diagnosing a stuck or leaked thread.
func DumpContext(c *Context) string {
	return debugConfig.Sdump(struct {
		ID      uint64
		State   string
		Owned   int
		Trace   int
		Pending Signal
	}{c.ID, c.State().String(), len(c.Owned), len(c.Trace), c.pending})
}
