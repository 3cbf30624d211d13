package codegen

import (
	"go/format"
	"strings"

	"github.com/relaycore/capnp/internal/exc"
)

// outputWriter accumulates generated Go source with explicit indentation,
// the way a hand-written template-free emitter builds up text line by
// line before handing it to the formatter.
type outputWriter struct {
	buffer      strings.Builder
	indentLevel int
}

func newOutputWriter() *outputWriter {
	return &outputWriter{}
}

func (o *outputWriter) indent()   { o.indentLevel++ }
func (o *outputWriter) unindent() { o.indentLevel-- }

func (o *outputWriter) writeIndent() {
	for i := 0; i < o.indentLevel; i++ {
		o.buffer.WriteString("\t")
	}
}

func (o *outputWriter) writei(s string) {
	o.writeIndent()
	o.write(s)
}

func (o *outputWriter) write(s string) {
	o.buffer.WriteString(s)
}

func (o *outputWriter) writelni(s string) {
	o.writeIndent()
	o.buffer.WriteString(s)
	o.buffer.WriteString("\n")
}

func (o *outputWriter) writeln(s string) {
	o.buffer.WriteString(s)
	o.buffer.WriteString("\n")
}

// String returns the accumulated, unformatted source.
func (o *outputWriter) String() string { return o.buffer.String() }

// formatSource runs src through go/format, the only dependency in the
// pack capable of producing gofmt'd, syntactically checked Go source (see
// DESIGN.md for why no third-party pretty-printer is used here).
func formatSource(src string) ([]byte, error) {
	out, err := format.Source([]byte(src))
	if err != nil {
		return nil, exc.WrapError("format generated source", err)
	}
	return out, nil
}
