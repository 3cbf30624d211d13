package codegen_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	capnp "github.com/relaycore/capnp"
	"github.com/relaycore/capnp/codegen"
	"github.com/relaycore/capnp/schema"
)

// buildRequest constructs a CodeGeneratorRequest message for a single file
// named path declaring one struct, widgetId, with a text field named
// fieldName, matching the wire layout codegen.ParseRequest expects.
func buildRequest(t *testing.T, path string, fileId, widgetId uint64, fieldName string) *capnp.Message {
	t.Helper()
	msg, seg := capnp.NewSingleSegmentMessage(nil)
	root, err := capnp.NewRootStruct(seg, capnp.ObjectSize{PointerCount: 3})
	require.NoError(t, err)

	nodesList, err := capnp.NewCompositeList(seg, capnp.ObjectSize{DataSize: 24, PointerCount: 3}, 2)
	require.NoError(t, err)
	require.NoError(t, root.SetPtr(0, nodesList.ToPtr()))

	fileNode := nodesList.Struct(0)
	fileNode.SetUint64(capnp.DataOffset(0), fileId)
	fileNode.SetUint16(capnp.DataOffset(16), uint16(schema.FileNode))
	require.NoError(t, fileNode.SetText(0, path))

	nested, err := capnp.NewCompositeList(seg, capnp.ObjectSize{DataSize: 8, PointerCount: 1}, 1)
	require.NoError(t, err)
	nested.Struct(0).SetUint64(capnp.DataOffset(0), widgetId)
	require.NoError(t, nested.Struct(0).SetText(0, "Widget"))
	require.NoError(t, fileNode.SetPtr(1, nested.ToPtr()))

	widgetNode := nodesList.Struct(1)
	widgetNode.SetUint64(capnp.DataOffset(0), widgetId)
	widgetNode.SetUint16(capnp.DataOffset(16), uint16(schema.StructNode))
	require.NoError(t, widgetNode.SetText(0, path+":Widget"))

	body, err := widgetNode.NewStructAt(2, capnp.ObjectSize{DataSize: 16, PointerCount: 1})
	require.NoError(t, err)
	body.SetUint16(capnp.DataOffset(0), 0) // data word count
	body.SetUint16(capnp.DataOffset(2), 1) // pointer count

	fields, err := capnp.NewCompositeList(seg, capnp.ObjectSize{DataSize: 8, PointerCount: 2}, 1)
	require.NoError(t, err)
	fieldStruct := fields.Struct(0)
	fieldStruct.SetUint16(capnp.DataOffset(0), schema.NoDiscriminant)
	fieldStruct.SetUint16(capnp.DataOffset(2), uint16(schema.SlotField))
	require.NoError(t, fieldStruct.SetText(0, fieldName))

	slotBody, err := fieldStruct.NewStructAt(1, capnp.ObjectSize{DataSize: 48})
	require.NoError(t, err)
	slotBody.SetUint32(capnp.DataOffset(0), 0)
	slotBody.SetUint16(capnp.DataOffset(4), uint16(schema.TextType))

	require.NoError(t, body.SetPtr(0, fields.ToPtr()))

	filesList, err := capnp.NewCompositeList(seg, capnp.ObjectSize{DataSize: 8, PointerCount: 1}, 1)
	require.NoError(t, err)
	filesList.Struct(0).SetUint64(capnp.DataOffset(0), fileId)
	require.NoError(t, filesList.Struct(0).SetText(0, path))
	require.NoError(t, root.SetPtr(1, filesList.ToPtr()))

	require.NoError(t, root.SetText(2, "1.0.0"))

	return msg
}

func TestParseRequest(t *testing.T) {
	msg := buildRequest(t, "widget.capnp", 0x10, 0x11, "label")
	req, err := codegen.ParseRequest(msg)
	require.NoError(t, err)

	assert.Equal(t, "1.0.0", req.CapnpVersion)
	require.Len(t, req.RequestedFiles, 1)
	assert.Equal(t, "widget.capnp", req.RequestedFiles[0].DisplayName)

	fileNode, ok := req.Graph.Node(0x10)
	require.True(t, ok)
	assert.Equal(t, schema.FileNode, fileNode.Kind)
	require.Len(t, fileNode.NestedNodes, 1)
	assert.Equal(t, "Widget", fileNode.NestedNodes[0].Name)

	widgetNode, ok := req.Graph.Node(0x11)
	require.True(t, ok)
	require.NotNil(t, widgetNode.Struct)
	require.Len(t, widgetNode.Struct.Fields, 1)
	assert.Equal(t, "label", widgetNode.Struct.Fields[0].Name)
	assert.Equal(t, schema.TextType, widgetNode.Struct.Fields[0].Slot.Type)
}

func TestDriverGeneratesCompilableLookingSource(t *testing.T) {
	msg := buildRequest(t, "widget.capnp", 0x20, 0x21, "label")
	req, err := codegen.ParseRequest(msg)
	require.NoError(t, err)

	d := codegen.NewDriver(discardLogger())
	files, err := d.Generate(req)
	require.NoError(t, err)
	require.Len(t, files, 1)

	src := string(files[0].Body)
	assert.Contains(t, src, "package widget")
	assert.Contains(t, src, "type Widget struct")
	assert.Contains(t, src, "func (s Widget) Label() (string, error)")
	assert.Contains(t, src, "func (s Widget) SetLabel(v string) error")
}
