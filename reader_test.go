package ylisp

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readOneForm(t *testing.T, p *Pool, src string) Ref {
	t.Helper()
	r := NewReader(p, []byte(src), 4096)
	ref, err := r.Next(noRoots)
	require.NoError(t, err)
	return ref
}

func TestReaderBareSymbolAtom(t *testing.T) {
	p := NewPool(64, NewNopLogger())
	ref := readOneForm(t, p, "hello")
	c := p.at(ref)
	require.Equal(t, KindSymbol, c.Kind)
	assert.Equal(t, "hello", c.Sym)
}

func TestReaderNumericTokenReadsAsSymbolNotDouble(t *testing.T) {
	// the reader never special-cases digits: "42" becomes a KindSymbol
	// atom whose text happens to parse as a float later, inside eval.
	p := NewPool(64, NewNopLogger())
	ref := readOneForm(t, p, "42")
	c := p.at(ref)
	require.Equal(t, KindSymbol, c.Kind)
	assert.Equal(t, "42", c.Sym)
}

func TestReaderList(t *testing.T) {
	p := NewPool(64, NewNopLogger())
	ref := readOneForm(t, p, "(a b c)")
	assert.Equal(t, "(a b c)", p.String(ref))
}

func TestReaderNestedLists(t *testing.T) {
	p := NewPool(64, NewNopLogger())
	ref := readOneForm(t, p, "(a (b c) d)")
	assert.Equal(t, "(a (b c) d)", p.String(ref))
}

func TestReaderQuoteShorthand(t *testing.T) {
	p := NewPool(64, NewNopLogger())
	ref := readOneForm(t, p, "'x")
	c := p.at(ref)
	require.Equal(t, KindPair, c.Kind)
	assert.Equal(t, RefQuote, c.Head)
}

func TestReaderStackedQuotes(t *testing.T) {
	p := NewPool(64, NewNopLogger())
	ref := readOneForm(t, p, "''x")
	assert.Equal(t, "(quote (quote x))", p.String(ref))
}

func TestReaderQuotedList(t *testing.T) {
	p := NewPool(64, NewNopLogger())
	ref := readOneForm(t, p, "'(1 2 3)")
	assert.Equal(t, "(quote (1 2 3))", p.String(ref))
}

func TestReaderDoubleQuotedString(t *testing.T) {
	p := NewPool(64, NewNopLogger())
	ref := readOneForm(t, p, `"hello world"`)
	c := p.at(ref)
	require.Equal(t, KindBinary, c.Kind)
	assert.Equal(t, []byte("hello world"), c.Bin)
}

func TestReaderEscapesInsideString(t *testing.T) {
	p := NewPool(64, NewNopLogger())
	ref := readOneForm(t, p, `"line\nbreak \"quoted\""`)
	c := p.at(ref)
	require.Equal(t, KindBinary, c.Kind)
	assert.Equal(t, "line\nbreak \"quoted\"", string(c.Bin))
}

func TestReaderBackslashEscapeOutsideString(t *testing.T) {
	p := NewPool(64, NewNopLogger())
	ref := readOneForm(t, p, `\"not-a-string`)
	c := p.at(ref)
	require.Equal(t, KindSymbol, c.Kind)
	assert.Equal(t, `"not-a-string`, c.Sym)
}

func TestReaderCommentSkipsToEndOfLine(t *testing.T) {
	p := NewPool(64, NewNopLogger())
	ref := readOneForm(t, p, "; this whole line is ignored\n(a b)")
	assert.Equal(t, "(a b)", p.String(ref))
}

func TestReaderNextReturnsEachTopLevelFormInTurn(t *testing.T) {
	p := NewPool(64, NewNopLogger())
	r := NewReader(p, []byte("(a) (b)"), 4096)

	first, err := r.Next(noRoots)
	require.NoError(t, err)
	assert.Equal(t, "(a)", p.String(first))

	second, err := r.Next(noRoots)
	require.NoError(t, err)
	assert.Equal(t, "(b)", p.String(second))

	_, err = r.Next(noRoots)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReaderUnmatchedCloseParenIsSyntaxError(t *testing.T) {
	p := NewPool(64, NewNopLogger())
	r := NewReader(p, []byte(")"), 4096)
	_, err := r.Next(noRoots)
	require.Error(t, err)
	assert.True(t, isKind(err, KindSyntaxParen))
}

func TestReaderUnterminatedListAtEOF(t *testing.T) {
	// SyntaxParen is reserved for an unmatched `)`; a `(` that never
	// closes before the stream ends is SyntaxUnknown.
	p := NewPool(64, NewNopLogger())
	r := NewReader(p, []byte("(a b"), 4096)
	_, err := r.Next(noRoots)
	require.Error(t, err)
	assert.True(t, isKind(err, KindSyntaxUnknown))
}

func TestReaderUnterminatedStringAtEOF(t *testing.T) {
	p := NewPool(64, NewNopLogger())
	r := NewReader(p, []byte(`"no closing quote`), 4096)
	_, err := r.Next(noRoots)
	require.Error(t, err)
	assert.True(t, isKind(err, KindSyntaxUnknown))
}

func TestReaderDanglingQuoteAtEOF(t *testing.T) {
	p := NewPool(64, NewNopLogger())
	r := NewReader(p, []byte("'"), 4096)
	_, err := r.Next(noRoots)
	require.Error(t, err)
	assert.True(t, isKind(err, KindSyntaxQuote))
}

func TestReaderAtomExceedingMaxBytesIsSyntaxError(t *testing.T) {
	p := NewPool(64, NewNopLogger())
	r := NewReader(p, []byte("abcdefgh"), 4)
	_, err := r.Next(noRoots)
	require.Error(t, err)
	assert.True(t, isKind(err, KindSyntaxUnknown))
}

func TestReaderEmptyListReadsAsNil(t *testing.T) {
	p := NewPool(64, NewNopLogger())
	ref := readOneForm(t, p, "()")
	assert.Equal(t, RefNil, ref)
}

func TestReaderDiscardsAllocationsOnSyntaxError(t *testing.T) {
	// Next brackets the whole read in its own save-point, so a doomed
	// form's partial allocations never leak into pool usage.
	p := NewPool(64, NewNopLogger())
	before := p.Usage()

	r := NewReader(p, []byte("(a b"), 4096)
	_, err := r.Next(noRoots)
	require.Error(t, err)

	assert.Equal(t, before, p.Usage())
}
