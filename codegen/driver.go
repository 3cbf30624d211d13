package codegen

import (
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/relaycore/capnp/internal/exc"
	"github.com/relaycore/capnp/schema"
)

// GeneratedFile is one emitted Go source file, keyed by the name the
// driver would write it under.
type GeneratedFile struct {
	Name string
	Body []byte
}

// Driver (C12) runs the per-node emitters (C13) over a parsed Request (C11) and
// produces one GeneratedFile per requested schema file.
type Driver struct {
	Log zerolog.Logger
}

// NewDriver returns a Driver that logs to log, or a disabled logger if
// log is the zero value.
func NewDriver(log zerolog.Logger) *Driver {
	return &Driver{Log: log}
}

// Generate emits one Go source file per entry in req.RequestedFiles.
func (d *Driver) Generate(req *Request) ([]GeneratedFile, error) {
	var out []GeneratedFile
	for _, rf := range req.RequestedFiles {
		fileNode, ok := req.Graph.Node(rf.Id)
		if !ok {
			return nil, exc.Raise(exc.InvalidSchema, "generate", "requested file %s not present in node graph", rf.DisplayName)
		}
		body, nodeCount, err := d.generateFile(req.Graph, fileNode)
		if err != nil {
			return nil, exc.WrapError("generate "+rf.DisplayName, err)
		}
		d.Log.Info().
			Str("file", rf.DisplayName).
			Int("nodes", nodeCount).
			Int("bytes", len(body)).
			Msg("generated file")
		out = append(out, GeneratedFile{Name: goTypeFileName(rf.DisplayName), Body: body})
	}
	return out, nil
}

func (d *Driver) generateFile(g *schema.Graph, fileNode *schema.Node) ([]byte, int, error) {
	e := newEmitter(g, packageNameFor(fileNode.DisplayName))

	count := 0
	for _, nested := range fileNode.NestedNodes {
		n, ok := g.Node(nested.Id)
		if !ok {
			continue
		}
		if err := e.visitNode(n); err != nil {
			return nil, 0, exc.WrapError("emit "+nested.Name, err)
		}
		count++
	}

	src, err := formatSource(e.prelude() + e.w.String())
	if err != nil {
		return nil, 0, err
	}
	return src, count, nil
}

func packageNameFor(displayName string) string {
	name := displayName
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '/' {
			name = name[i+1:]
			break
		}
	}
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}
	return unexportedName(name)
}

// RunPlugin implements the cmd/capnpc-go-core entry point: read a
// CodeGeneratorRequest from r, generate, and hand each generated file to
// emit, one call per file; the caller decides where the source goes.
func RunPlugin(r io.Reader, emit func(GeneratedFile) error, log zerolog.Logger) error {
	msg, err := decodeRequestMessage(r)
	if err != nil {
		return exc.WrapError("run plugin", err)
	}
	req, err := ParseRequest(msg)
	if err != nil {
		return exc.WrapError("run plugin", err)
	}
	d := NewDriver(log)
	files, err := d.Generate(req)
	if err != nil {
		return exc.WrapError("run plugin", err)
	}
	for _, f := range files {
		if err := emit(f); err != nil {
			return exc.WrapError("run plugin", err)
		}
	}
	return nil
}
