package onnx

import (
	"math"
	"os"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// ParseFile parses an ONNX model from file.
//
//nolint:gosec // G304: Path is provided by user, file inclusion is intentional for ONNX model loading
func ParseFile(path string) (*ModelProto, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read file")
	}
	return Parse(data)
}

// Parse parses an ONNX model from bytes.
func Parse(data []byte) (*ModelProto, error) {
	model := &ModelProto{}
	if err := readModelProto(data, model); err != nil {
		return nil, errors.Wrap(err, "failed to parse model")
	}
	return model, nil
}

// field is one decoded protobuf field. Scalar payloads land in u,
// length-delimited payloads in data.
type field struct {
	num  protowire.Number
	typ  protowire.Type
	u    uint64
	data []byte
}

// walk calls fn for every field of the message encoded in b.
func walk(b []byte, fn func(f *field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.u, n = protowire.ConsumeVarint(b)
		case protowire.Fixed32Type:
			var v uint32
			v, n = protowire.ConsumeFixed32(b)
			f.u = uint64(v)
		case protowire.Fixed64Type:
			f.u, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.data, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		if err := fn(&f); err != nil {
			return errors.Wrapf(err, "field %d", num)
		}
	}
	return nil
}

func (f *field) string() string { return string(f.data) }

func (f *field) int64() int64 { return int64(f.u) } //nolint:gosec // G115: protobuf int64 is two's complement.

func (f *field) float32() float32 { return math.Float32frombits(uint32(f.u)) } //nolint:gosec // G115: fixed32 payload.

// varints returns the values of a repeated varint field, packed or not.
func (f *field) varints() ([]uint64, error) {
	if f.typ == protowire.VarintType {
		return []uint64{f.u}, nil
	}
	if f.typ != protowire.BytesType {
		return nil, errors.Errorf("unexpected wire type %d for repeated varint", f.typ)
	}
	var out []uint64
	for b := f.data; len(b) > 0; {
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		out = append(out, v)
		b = b[n:]
	}
	return out, nil
}

func (f *field) int64s() ([]int64, error) {
	vs, err := f.varints()
	if err != nil {
		return nil, err
	}
	out := make([]int64, len(vs))
	for i, v := range vs {
		out[i] = int64(v) //nolint:gosec // G115: protobuf int64 is two's complement.
	}
	return out, nil
}

// fixed32s returns the values of a repeated fixed32 field, packed or not.
func (f *field) fixed32s() ([]uint32, error) {
	if f.typ == protowire.Fixed32Type {
		return []uint32{uint32(f.u)}, nil //nolint:gosec // G115: fixed32 payload.
	}
	if f.typ != protowire.BytesType || len(f.data)%4 != 0 {
		return nil, errors.New("malformed repeated fixed32 field")
	}
	out := make([]uint32, 0, len(f.data)/4)
	for b := f.data; len(b) > 0; {
		v, n := protowire.ConsumeFixed32(b)
		out = append(out, v)
		b = b[n:]
	}
	return out, nil
}

func (f *field) fixed64s() ([]uint64, error) {
	if f.typ == protowire.Fixed64Type {
		return []uint64{f.u}, nil
	}
	if f.typ != protowire.BytesType || len(f.data)%8 != 0 {
		return nil, errors.New("malformed repeated fixed64 field")
	}
	out := make([]uint64, 0, len(f.data)/8)
	for b := f.data; len(b) > 0; {
		v, n := protowire.ConsumeFixed64(b)
		out = append(out, v)
		b = b[n:]
	}
	return out, nil
}

func readModelProto(b []byte, m *ModelProto) error {
	return walk(b, func(f *field) error {
		switch f.num {
		case 1: // ir_version
			m.IRVersion = f.int64()
		case 2: // producer_name
			m.ProducerName = f.string()
		case 3: // producer_version
			m.ProducerVersion = f.string()
		case 4: // domain
			m.Domain = f.string()
		case 5: // model_version
			m.ModelVersion = f.int64()
		case 6: // doc_string
			m.DocString = f.string()
		case 7: // graph
			m.Graph = &GraphProto{}
			return readGraphProto(f.data, m.Graph)
		case 8: // opset_import
			var opset OperatorSetID
			if err := readOperatorSetID(f.data, &opset); err != nil {
				return err
			}
			m.OpsetImport = append(m.OpsetImport, opset)
		case 14: // metadata_props
			var entry StringStringEntry
			if err := readStringStringEntry(f.data, &entry); err != nil {
				return err
			}
			m.MetadataProps = append(m.MetadataProps, entry)
		}
		return nil
	})
}

func readGraphProto(b []byte, g *GraphProto) error {
	return walk(b, func(f *field) error {
		switch f.num {
		case 1: // node
			var node NodeProto
			if err := readNodeProto(f.data, &node); err != nil {
				return err
			}
			g.Nodes = append(g.Nodes, node)
		case 2: // name
			g.Name = f.string()
		case 5: // initializer
			var t TensorProto
			if err := readTensorProto(f.data, &t); err != nil {
				return err
			}
			g.Initializers = append(g.Initializers, t)
		case 10: // doc_string
			g.DocString = f.string()
		case 11, 12, 13: // input, output, value_info
			var vi ValueInfoProto
			if err := readValueInfoProto(f.data, &vi); err != nil {
				return err
			}
			switch f.num {
			case 11:
				g.Inputs = append(g.Inputs, vi)
			case 12:
				g.Outputs = append(g.Outputs, vi)
			default:
				g.ValueInfo = append(g.ValueInfo, vi)
			}
		}
		return nil
	})
}

func readNodeProto(b []byte, n *NodeProto) error {
	return walk(b, func(f *field) error {
		switch f.num {
		case 1: // input
			n.Inputs = append(n.Inputs, f.string())
		case 2: // output
			n.Outputs = append(n.Outputs, f.string())
		case 3: // name
			n.Name = f.string()
		case 4: // op_type
			n.OpType = f.string()
		case 5: // attribute
			var attr AttributeProto
			if err := readAttributeProto(f.data, &attr); err != nil {
				return err
			}
			n.Attributes = append(n.Attributes, attr)
		case 6: // doc_string
			n.DocString = f.string()
		case 7: // domain
			n.Domain = f.string()
		}
		return nil
	})
}

//nolint:gocyclo,cyclop // Protobuf parsing requires field-by-field switch logic
func readTensorProto(b []byte, t *TensorProto) error {
	return walk(b, func(f *field) error {
		switch f.num {
		case 1: // dims
			dims, err := f.int64s()
			if err != nil {
				return err
			}
			t.Dims = append(t.Dims, dims...)
		case 2: // data_type
			t.DataType = int32(f.u) //nolint:gosec // G115: enum value.
		case 4: // float_data
			vs, err := f.fixed32s()
			if err != nil {
				return err
			}
			for _, v := range vs {
				t.FloatData = append(t.FloatData, math.Float32frombits(v))
			}
		case 5: // int32_data
			vs, err := f.varints()
			if err != nil {
				return err
			}
			for _, v := range vs {
				t.Int32Data = append(t.Int32Data, int32(v)) //nolint:gosec // G115: int32 varint.
			}
		case 7: // int64_data
			vs, err := f.int64s()
			if err != nil {
				return err
			}
			t.Int64Data = append(t.Int64Data, vs...)
		case 8: // name
			t.Name = f.string()
		case 9: // raw_data
			t.RawData = append([]byte(nil), f.data...)
		case 10: // double_data
			vs, err := f.fixed64s()
			if err != nil {
				return err
			}
			for _, v := range vs {
				t.DoubleData = append(t.DoubleData, math.Float64frombits(v))
			}
		case 11: // uint64_data
			vs, err := f.varints()
			if err != nil {
				return err
			}
			t.Uint64Data = append(t.Uint64Data, vs...)
		case 12: // doc_string
			t.DocString = f.string()
		}
		return nil
	})
}

func readValueInfoProto(b []byte, vi *ValueInfoProto) error {
	return walk(b, func(f *field) error {
		switch f.num {
		case 1: // name
			vi.Name = f.string()
		case 2: // type
			vi.Type = &TypeProto{}
			return readTypeProto(f.data, vi.Type)
		case 3: // doc_string
			vi.DocString = f.string()
		}
		return nil
	})
}

func readTypeProto(b []byte, tp *TypeProto) error {
	return walk(b, func(f *field) error {
		if f.num != 1 { // tensor_type
			return nil
		}
		tp.TensorType = &TensorTypeProto{}
		return walk(f.data, func(f *field) error {
			switch f.num {
			case 1: // elem_type
				tp.TensorType.ElemType = int32(f.u) //nolint:gosec // G115: enum value.
			case 2: // shape
				tp.TensorType.Shape = &TensorShapeProto{}
				return readTensorShapeProto(f.data, tp.TensorType.Shape)
			}
			return nil
		})
	})
}

func readTensorShapeProto(b []byte, s *TensorShapeProto) error {
	return walk(b, func(f *field) error {
		if f.num != 1 { // dim
			return nil
		}
		var d DimensionProto
		err := walk(f.data, func(f *field) error {
			switch f.num {
			case 1: // dim_value
				d.DimValue = f.int64()
			case 2: // dim_param
				d.DimParam = f.string()
			}
			return nil
		})
		if err != nil {
			return err
		}
		s.Dims = append(s.Dims, d)
		return nil
	})
}

//nolint:gocyclo,cyclop // Protobuf parsing requires field-by-field switch logic
func readAttributeProto(b []byte, a *AttributeProto) error {
	return walk(b, func(f *field) error {
		switch f.num {
		case 1: // name
			a.Name = f.string()
		case 2: // f
			a.F = f.float32()
		case 3: // i
			a.I = f.int64()
		case 4: // s
			a.S = append([]byte(nil), f.data...)
		case 5: // t
			a.T = &TensorProto{}
			return readTensorProto(f.data, a.T)
		case 7: // floats
			vs, err := f.fixed32s()
			if err != nil {
				return err
			}
			for _, v := range vs {
				a.Floats = append(a.Floats, math.Float32frombits(v))
			}
		case 8: // ints
			vs, err := f.int64s()
			if err != nil {
				return err
			}
			a.Ints = append(a.Ints, vs...)
		case 9: // strings
			a.Strings = append(a.Strings, append([]byte(nil), f.data...))
		case 10: // tensors
			var t TensorProto
			if err := readTensorProto(f.data, &t); err != nil {
				return err
			}
			a.Tensors = append(a.Tensors, t)
		case 13: // doc_string
			a.DocString = f.string()
		case 20: // type
			a.Type = int32(f.u) //nolint:gosec // G115: enum value.
		}
		return nil
	})
}

func readOperatorSetID(b []byte, o *OperatorSetID) error {
	return walk(b, func(f *field) error {
		switch f.num {
		case 1: // domain
			o.Domain = f.string()
		case 2: // version
			o.Version = f.int64()
		}
		return nil
	})
}

func readStringStringEntry(b []byte, e *StringStringEntry) error {
	return walk(b, func(f *field) error {
		switch f.num {
		case 1: // key
			e.Key = f.string()
		case 2: // value
			e.Value = f.string()
		}
		return nil
	})
}
