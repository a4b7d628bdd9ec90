package ylisp

import "io"

// readerMode is the reader's state-machine position. INIT and LIST
// collapse into a single "expecting a form" mode here: the only
// difference between them in the transition table is whether `)` is
// an error or an exit, which this implementation expresses instead as
// "is the frame stack empty".
type readerMode int

const (
	modeForm readerMode = iota
	modeSymbol
	modeDquote
	modeComment
	modeEscape
)

// readerFrame is one open, unterminated `(` on the nesting stack,
// modeled on the teacher's frame/stack push-pop-top idiom
// (vm_stack.go): a typed record pushed on `(` and popped on the
// matching `)`.
type readerFrame struct {
	items      []Ref
	quoteWraps int
}

// Reader turns a byte stream into one top-level Cell tree per call to
// Next, per the {INIT, LIST, SQUOTE, SYMBOL, DQUOTE, COMMENT, ESCAPE}
// state machine. SQUOTE doesn't appear as a distinct readerMode value:
// a `'` only ever increments pendingQuotes and leaves mode at
// modeForm; the count is applied to the next completed atom, string
// or list. A quote still pending at a `)` or at the end of input is a
// SyntaxQuote error.
type Reader struct {
	pool         *Pool
	maxAtomBytes int

	src []byte
	pos int
	lt  lineTracker

	mode           readerMode
	escapeReturn   readerMode
	atomBuf        []byte
	pendingQuotes  int
	frames         []readerFrame
}

// NewReader wraps src for incremental top-level-form reads.
func NewReader(pool *Pool, src []byte, maxAtomBytes int) *Reader {
	return &Reader{pool: pool, src: src, maxAtomBytes: maxAtomBytes, lt: newLineTracker()}
}

func (r *Reader) peekLoc() Location { return r.lt.location() }

func (r *Reader) eof() bool { return r.pos >= len(r.src) }

func (r *Reader) advance() byte {
	c := r.src[r.pos]
	r.pos++
	r.lt.advance(c)
	return c
}

func isWhitespace(c byte) bool { return c == ' ' || c == '\t' || c == '\r' || c == '\n' }

// Next reads and returns the next top-level form. It returns io.EOF
// (wrapping nothing else) once the stream is exhausted with no
// pending partial form. The reader manages its own pool save-point
// for the duration of one call: a syntax error discards everything
// allocated while reading the doomed form, success keeps only the
// returned Ref.
func (r *Reader) Next(roots func() []Ref) (Ref, error) {
	r.pool.PushSavepoint()

	result, err := r.readOne()
	if err != nil {
		r.pool.PopSavepoint(roots)
		return RefNone, err
	}
	r.pool.PopSavepoint(roots, result)
	return result, nil
}

func (r *Reader) readOne() (Ref, error) {
	for {
		if r.eof() {
			return r.atEOF()
		}
		c := r.advance()

		switch r.mode {
		case modeForm:
			if done, result, err := r.stepForm(c); done {
				return result, err
			}
		case modeSymbol:
			if done, result, err := r.stepSymbol(c); done {
				return result, err
			}
		case modeDquote:
			if done, result, err := r.stepDquote(c); done {
				return result, err
			}
		case modeComment:
			if c == '\n' {
				r.mode = modeForm
			}
		case modeEscape:
			if done, result, err := r.stepEscape(c); done {
				return result, err
			}
		}
	}
}

func (r *Reader) stepForm(c byte) (bool, Ref, error) {
	switch {
	case c == '"':
		r.mode = modeDquote
		r.atomBuf = r.atomBuf[:0]
	case c == '\'':
		r.pendingQuotes++
	case c == '\\':
		r.mode = modeEscape
		r.escapeReturn = modeSymbol
		r.atomBuf = r.atomBuf[:0]
	case c == '(':
		r.frames = append(r.frames, readerFrame{quoteWraps: r.pendingQuotes})
		r.pendingQuotes = 0
	case c == ')':
		if len(r.frames) == 0 {
			return true, RefNone, newErr(KindSyntaxParen, r.peekLoc(), "unmatched )")
		}
		if r.pendingQuotes != 0 {
			return true, RefNone, newErr(KindSyntaxQuote, r.peekLoc(), "dangling quote before )")
		}
		return r.closeList()
	case c == ';':
		r.mode = modeComment
	case isWhitespace(c):
		// no-op
	default:
		r.mode = modeSymbol
		r.atomBuf = append(r.atomBuf[:0], c)
	}
	return false, RefNone, nil
}

func (r *Reader) closeList() (bool, Ref, error) {
	frame := r.frames[len(r.frames)-1]
	r.frames = r.frames[:len(r.frames)-1]

	list, err := r.pool.List(frame.items...)
	if err != nil {
		return true, RefNone, err
	}
	wrapped, err := r.wrapQuotes(list, frame.quoteWraps)
	if err != nil {
		return true, RefNone, err
	}
	return r.produce(wrapped)
}

// produce delivers a completed form either up to the enclosing list
// frame, or, if the frame stack is empty, as the finished top-level
// value.
func (r *Reader) produce(form Ref) (bool, Ref, error) {
	if len(r.frames) == 0 {
		return true, form, nil
	}
	top := &r.frames[len(r.frames)-1]
	top.items = append(top.items, form)
	return false, RefNone, nil
}

func (r *Reader) wrapQuotes(form Ref, n int) (Ref, error) {
	for i := 0; i < n; i++ {
		quoted, err := r.pool.Cons(form, RefNil)
		if err != nil {
			return RefNone, err
		}
		wrapped, err := r.pool.Cons(RefQuote, quoted)
		if err != nil {
			return RefNone, err
		}
		form = wrapped
	}
	return form, nil
}

func (r *Reader) finishAtom() (bool, Ref, error) {
	name := string(r.atomBuf)
	sym, err := r.pool.NewSymbol(name)
	if err != nil {
		return true, RefNone, err
	}
	wrapped, err := r.wrapQuotes(sym, r.pendingQuotes)
	if err != nil {
		return true, RefNone, err
	}
	r.pendingQuotes = 0
	r.mode = modeForm
	return r.produce(wrapped)
}

func (r *Reader) stepSymbol(c byte) (bool, Ref, error) {
	switch {
	case c == '\\':
		r.mode = modeEscape
		r.escapeReturn = modeSymbol
		return false, RefNone, nil
	case c == '"', c == '\'', c == '(', c == ')', c == ';', isWhitespace(c):
		done, result, err := r.finishAtom()
		if err != nil {
			return true, RefNone, err
		}
		if !isWhitespace(c) {
			// The terminator carries its own meaning (closes a list,
			// starts a string, begins a comment...) and wasn't
			// consumed by the atom; let modeForm see it next.
			r.pos--
			r.lt.column--
			r.lt.cursor--
		}
		return done, result, nil
	default:
		if len(r.atomBuf) >= r.maxAtomBytes {
			return true, RefNone, newErr(KindSyntaxUnknown, r.peekLoc(), "atom exceeds %d byte limit", r.maxAtomBytes)
		}
		r.atomBuf = append(r.atomBuf, c)
		return false, RefNone, nil
	}
}

func (r *Reader) finishString() (bool, Ref, error) {
	bin, err := r.pool.NewBinary(append([]byte(nil), r.atomBuf...))
	if err != nil {
		return true, RefNone, err
	}
	wrapped, err := r.wrapQuotes(bin, r.pendingQuotes)
	if err != nil {
		return true, RefNone, err
	}
	r.pendingQuotes = 0
	r.mode = modeForm
	return r.produce(wrapped)
}

func (r *Reader) stepDquote(c byte) (bool, Ref, error) {
	switch c {
	case '"':
		return r.finishString()
	case '\\':
		r.mode = modeEscape
		r.escapeReturn = modeDquote
	default:
		if len(r.atomBuf) >= r.maxAtomBytes {
			return true, RefNone, newErr(KindSyntaxUnknown, r.peekLoc(), "string exceeds %d byte limit", r.maxAtomBytes)
		}
		r.atomBuf = append(r.atomBuf, c)
	}
	return false, RefNone, nil
}

func (r *Reader) stepEscape(c byte) (bool, Ref, error) {
	switch c {
	case '\'', '(', ')', ';':
		return true, RefNone, newErr(KindSyntaxEscape, r.peekLoc(), "invalid escape \\%c", c)
	default:
		if isWhitespace(c) {
			return true, RefNone, newErr(KindSyntaxEscape, r.peekLoc(), "invalid escape before whitespace")
		}
	}
	decoded := c
	switch c {
	case 'n':
		decoded = '\n'
	case '"', '\\':
		decoded = c
	}
	r.atomBuf = append(r.atomBuf, decoded)
	r.mode = r.escapeReturn
	return false, RefNone, nil
}

func (r *Reader) atEOF() (Ref, error) {
	switch r.mode {
	case modeSymbol:
		_, result, err := r.finishAtom()
		if err != nil {
			return RefNone, err
		}
		if len(r.frames) != 0 {
			return RefNone, newErr(KindSyntaxUnknown, r.peekLoc(), "unterminated list at end of input")
		}
		return result, nil
	case modeDquote, modeEscape:
		return RefNone, newErr(KindSyntaxUnknown, r.peekLoc(), "unterminated string at end of input")
	}
	if len(r.frames) != 0 {
		return RefNone, newErr(KindSyntaxUnknown, r.peekLoc(), "unterminated list at end of input")
	}
	if r.pendingQuotes != 0 {
		return RefNone, newErr(KindSyntaxQuote, r.peekLoc(), "dangling quote at end of input")
	}
	return RefNone, io.EOF
}
