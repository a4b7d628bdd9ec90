package ylisp

import "fmt"

// Location is a 1-based line/column position plus the raw byte cursor,
// in the spirit of the teacher's BaseParser.Location.
type Location struct {
	Line   int
	Column int
	Cursor int
}

func (l Location) String() string {
	return fmt.Sprintf("%d:%d", l.Line, l.Column)
}

// lineTracker maintains the reader's current line/column as it
// consumes bytes one at a time. Unlike the teacher's LineIndex (which
// precomputes every line start for random access into a fully
// buffered grammar file), the reader only ever moves forward over its
// input, so an incrementally updated counter is enough and avoids a
// second pass over the stream.
type lineTracker struct {
	line   int
	column int
	cursor int
}

func newLineTracker() lineTracker {
	return lineTracker{line: 1, column: 1}
}

func (t *lineTracker) advance(c byte) {
	t.cursor++
	if c == '\n' {
		t.line++
		t.column = 1
	} else {
		t.column++
	}
}

func (t lineTracker) location() Location {
	return Location{Line: t.line, Column: t.column, Cursor: t.cursor}
}
