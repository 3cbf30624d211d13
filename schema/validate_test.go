package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	capnp "github.com/relaycore/capnp"
	"github.com/relaycore/capnp/internal/exc"
	"github.com/relaycore/capnp/schema"
)

const personStructId = 0x1

func buildPersonGraph() *schema.Graph {
	return schema.NewGraph([]*schema.Node{
		{
			Id:          personStructId,
			DisplayName: "person.capnp:Person",
			Kind:        schema.StructNode,
			Struct: &schema.StructNode{
				DataWordCount: 1,
				PointerCount:  1,
				Fields: []schema.Field{
					{
						Name:            "age",
						Kind:            schema.SlotField,
						DiscriminantVal: schema.NoDiscriminant,
						Slot:            &schema.SlotField{Offset: 0, Type: schema.UInt16Type},
					},
					{
						Name:            "name",
						Kind:            schema.SlotField,
						DiscriminantVal: schema.NoDiscriminant,
						Slot:            &schema.SlotField{Offset: 0, Type: schema.TextType},
					},
				},
			},
		},
	})
}

func TestValidateAcceptsWellFormedStruct(t *testing.T) {
	msg, seg := capnp.NewSingleSegmentMessage(nil)
	root, err := capnp.NewRootStruct(seg, capnp.ObjectSize{DataSize: 8, PointerCount: 1})
	require.NoError(t, err)
	root.SetUint16(capnp.DataOffset(0), 30)
	require.NoError(t, root.SetText(0, "Ada"))

	g := buildPersonGraph()
	err = schema.Validate(g, personStructId, msg, schema.DefaultOptions())
	assert.NoError(t, err)
}

func TestValidateRejectsCycleThroughGroups(t *testing.T) {
	const groupId = 0x2
	g := schema.NewGraph([]*schema.Node{
		{
			Id:          groupId,
			DisplayName: "cyclic.capnp:Self",
			Kind:        schema.StructNode,
			Struct: &schema.StructNode{
				IsGroup: true,
				Fields: []schema.Field{
					{
						Name:            "self",
						Kind:            schema.GroupField,
						DiscriminantVal: schema.NoDiscriminant,
						Group:           &schema.GroupField{TypeId: groupId},
					},
				},
			},
		},
	})

	msg, seg := capnp.NewSingleSegmentMessage(nil)
	_, err := capnp.NewRootStruct(seg, capnp.ObjectSize{})
	require.NoError(t, err)

	err = schema.Validate(g, groupId, msg, schema.DefaultOptions())
	require.Error(t, err)
	assert.Equal(t, exc.SchemaCycleDetected, exc.KindOf(err))
}

func TestValidateTraversesLinkedListWithoutFalsePositiveCycle(t *testing.T) {
	const nodeId = 0x3
	g := schema.NewGraph([]*schema.Node{
		{
			Id:          nodeId,
			DisplayName: "list.capnp:Node",
			Kind:        schema.StructNode,
			Struct: &schema.StructNode{
				PointerCount: 1,
				Fields: []schema.Field{
					{
						Name:            "next",
						Kind:            schema.SlotField,
						DiscriminantVal: schema.NoDiscriminant,
						Slot:            &schema.SlotField{Offset: 0, Type: schema.StructType, StructId: nodeId},
					},
				},
			},
		},
	})

	msg, seg := capnp.NewSingleSegmentMessage(nil)
	root, err := capnp.NewRootStruct(seg, capnp.ObjectSize{PointerCount: 1})
	require.NoError(t, err)
	_, err = root.NewStructAt(0, capnp.ObjectSize{PointerCount: 1})
	require.NoError(t, err)

	err = schema.Validate(g, nodeId, msg, schema.DefaultOptions())
	assert.NoError(t, err)
}
