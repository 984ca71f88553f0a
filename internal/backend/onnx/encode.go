package onnx

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Marshal encodes m in the ONNX protobuf wire format.
// Empty fields are omitted, as proto3 does.
func Marshal(m *ModelProto) []byte {
	var e encoder
	e.varint(1, uint64(m.IRVersion)) //nolint:gosec // G115: two's complement.
	e.str(2, m.ProducerName)
	e.str(3, m.ProducerVersion)
	e.str(4, m.Domain)
	e.varint(5, uint64(m.ModelVersion)) //nolint:gosec // G115: two's complement.
	e.str(6, m.DocString)
	if m.Graph != nil {
		e.message(7, func(e *encoder) { e.graph(m.Graph) })
	}
	for _, o := range m.OpsetImport {
		e.message(8, func(e *encoder) {
			e.str(1, o.Domain)
			e.varint(2, uint64(o.Version)) //nolint:gosec // G115: two's complement.
		})
	}
	for _, kv := range m.MetadataProps {
		e.message(14, func(e *encoder) {
			e.str(1, kv.Key)
			e.str(2, kv.Value)
		})
	}
	return e.b
}

type encoder struct {
	b []byte
}

func (e *encoder) varint(num protowire.Number, v uint64) {
	if v == 0 {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.VarintType)
	e.b = protowire.AppendVarint(e.b, v)
}

func (e *encoder) str(num protowire.Number, s string) {
	if s == "" {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendString(e.b, s)
}

func (e *encoder) bytes(num protowire.Number, b []byte) {
	if len(b) == 0 {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendBytes(e.b, b)
}

func (e *encoder) message(num protowire.Number, fn func(e *encoder)) {
	var sub encoder
	fn(&sub)
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendBytes(e.b, sub.b)
}

func (e *encoder) packedVarints(num protowire.Number, vs []uint64) {
	if len(vs) == 0 {
		return
	}
	var p []byte
	for _, v := range vs {
		p = protowire.AppendVarint(p, v)
	}
	e.bytes(num, p)
}

func (e *encoder) packedInt64s(num protowire.Number, vs []int64) {
	us := make([]uint64, len(vs))
	for i, v := range vs {
		us[i] = uint64(v) //nolint:gosec // G115: two's complement.
	}
	e.packedVarints(num, us)
}

func (e *encoder) packedFloats(num protowire.Number, vs []float32) {
	if len(vs) == 0 {
		return
	}
	p := make([]byte, 0, 4*len(vs))
	for _, v := range vs {
		p = protowire.AppendFixed32(p, math.Float32bits(v))
	}
	e.bytes(num, p)
}

func (e *encoder) graph(g *GraphProto) {
	for i := range g.Nodes {
		e.message(1, func(e *encoder) { e.node(&g.Nodes[i]) })
	}
	e.str(2, g.Name)
	for i := range g.Initializers {
		e.message(5, func(e *encoder) { e.tensor(&g.Initializers[i]) })
	}
	e.str(10, g.DocString)
	for i := range g.Inputs {
		e.message(11, func(e *encoder) { e.valueInfo(&g.Inputs[i]) })
	}
	for i := range g.Outputs {
		e.message(12, func(e *encoder) { e.valueInfo(&g.Outputs[i]) })
	}
	for i := range g.ValueInfo {
		e.message(13, func(e *encoder) { e.valueInfo(&g.ValueInfo[i]) })
	}
}

func (e *encoder) node(n *NodeProto) {
	// Repeated strings keep empty entries: they mark omitted optional inputs.
	for _, in := range n.Inputs {
		e.b = protowire.AppendTag(e.b, 1, protowire.BytesType)
		e.b = protowire.AppendString(e.b, in)
	}
	for _, out := range n.Outputs {
		e.b = protowire.AppendTag(e.b, 2, protowire.BytesType)
		e.b = protowire.AppendString(e.b, out)
	}
	e.str(3, n.Name)
	e.str(4, n.OpType)
	for i := range n.Attributes {
		e.message(5, func(e *encoder) { e.attribute(&n.Attributes[i]) })
	}
	e.str(6, n.DocString)
	e.str(7, n.Domain)
}

func (e *encoder) tensor(t *TensorProto) {
	e.packedInt64s(1, t.Dims)
	e.varint(2, uint64(t.DataType)) //nolint:gosec // G115: enum value.
	e.packedFloats(4, t.FloatData)
	if len(t.Int32Data) > 0 {
		us := make([]uint64, len(t.Int32Data))
		for i, v := range t.Int32Data {
			us[i] = uint64(int64(v)) //nolint:gosec // G115: sign-extended like protobuf int32.
		}
		e.packedVarints(5, us)
	}
	e.packedInt64s(7, t.Int64Data)
	e.str(8, t.Name)
	e.bytes(9, t.RawData)
	if len(t.DoubleData) > 0 {
		p := make([]byte, 0, 8*len(t.DoubleData))
		for _, v := range t.DoubleData {
			p = protowire.AppendFixed64(p, math.Float64bits(v))
		}
		e.bytes(10, p)
	}
	e.packedVarints(11, t.Uint64Data)
	e.str(12, t.DocString)
}

func (e *encoder) valueInfo(vi *ValueInfoProto) {
	e.str(1, vi.Name)
	if vi.Type != nil && vi.Type.TensorType != nil {
		tt := vi.Type.TensorType
		e.message(2, func(e *encoder) {
			e.message(1, func(e *encoder) {
				e.varint(1, uint64(tt.ElemType)) //nolint:gosec // G115: enum value.
				if tt.Shape != nil {
					e.message(2, func(e *encoder) {
						for _, d := range tt.Shape.Dims {
							e.message(1, func(e *encoder) {
								e.varint(1, uint64(d.DimValue)) //nolint:gosec // G115: two's complement.
								e.str(2, d.DimParam)
							})
						}
					})
				}
			})
		})
	}
	e.str(3, vi.DocString)
}

func (e *encoder) attribute(a *AttributeProto) {
	e.str(1, a.Name)
	if a.F != 0 {
		e.b = protowire.AppendTag(e.b, 2, protowire.Fixed32Type)
		e.b = protowire.AppendFixed32(e.b, math.Float32bits(a.F))
	}
	e.varint(3, uint64(a.I)) //nolint:gosec // G115: two's complement.
	e.bytes(4, a.S)
	if a.T != nil {
		e.message(5, func(e *encoder) { e.tensor(a.T) })
	}
	e.packedFloats(7, a.Floats)
	e.packedInt64s(8, a.Ints)
	for _, s := range a.Strings {
		e.b = protowire.AppendTag(e.b, 9, protowire.BytesType)
		e.b = protowire.AppendBytes(e.b, s)
	}
	for i := range a.Tensors {
		e.message(10, func(e *encoder) { e.tensor(&a.Tensors[i]) })
	}
	e.str(13, a.DocString)
	e.varint(20, uint64(a.Type)) //nolint:gosec // G115: enum value.
}
