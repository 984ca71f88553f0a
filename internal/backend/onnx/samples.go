package onnx

import (
	"github.com/pkg/errors"

	"github.com/born-ml/singleshot/internal/backend/onnx/operators"
	"github.com/born-ml/singleshot/internal/tensor"
)

// SampleNames lists the models SampleModel can build.
var SampleNames = []string{"add", "relu"}

// SampleModel builds one of the small models used by the CLI and tests.
// With static set every extent is fixed, otherwise the leading axis is a
// symbolic batch dimension.
func SampleModel(name string, static bool) (*ModelProto, error) {
	switch name {
	case "add":
		return AddModel(static), nil
	case "relu":
		return ReluModel(static), nil
	default:
		return nil, errors.Errorf("unknown sample model %q", name)
	}
}

// AddModel returns output = input + 2 over a float32 vector.
func AddModel(static bool) *ModelProto {
	two := TensorProtoOf("two", operators.ValueFromFloat32s(tensor.Shape{1}, []float32{2}))
	return sampleModel("add", &GraphProto{
		Name: "add",
		Nodes: []NodeProto{
			{Name: "add", OpType: "Add", Inputs: []string{"input", "two"}, Outputs: []string{"output"}},
		},
		Initializers: []TensorProto{two},
		Inputs:       []ValueInfoProto{sampleValueInfo("input", TensorProtoFloat, batchDims(static))},
		Outputs:      []ValueInfoProto{sampleValueInfo("output", TensorProtoFloat, batchDims(static))},
	})
}

// ReluModel returns output = min(max(input, 0), 6) over float32 rows of
// four values, computed as Relu followed by Clip.
func ReluModel(static bool) *ModelProto {
	dims := append(batchDims(static), DimensionProto{DimValue: 4})
	six := TensorProtoOf("six", operators.ValueFromFloat32s(tensor.Shape{}, []float32{6}))
	return sampleModel("relu", &GraphProto{
		Name: "relu6",
		Nodes: []NodeProto{
			{Name: "relu", OpType: "Relu", Inputs: []string{"input"}, Outputs: []string{"relu_out"}},
			{Name: "clip", OpType: "Clip", Inputs: []string{"relu_out", "", "six"}, Outputs: []string{"output"}},
		},
		Initializers: []TensorProto{six},
		Inputs:       []ValueInfoProto{sampleValueInfo("input", TensorProtoFloat, dims)},
		Outputs:      []ValueInfoProto{sampleValueInfo("output", TensorProtoFloat, dims)},
	})
}

func batchDims(static bool) []DimensionProto {
	if static {
		return []DimensionProto{{DimValue: 1}}
	}
	return []DimensionProto{{DimParam: "N"}}
}

func sampleModel(name string, graph *GraphProto) *ModelProto {
	return &ModelProto{
		IRVersion:       8,
		ProducerName:    "nnshot",
		ProducerVersion: "gen",
		OpsetImport:     []OperatorSetID{{Version: 13}},
		Graph:           graph,
		MetadataProps:   []StringStringEntry{{Key: "sample", Value: name}},
	}
}

func sampleValueInfo(name string, elemType int32, dims []DimensionProto) ValueInfoProto {
	return ValueInfoProto{
		Name: name,
		Type: &TypeProto{TensorType: &TensorTypeProto{
			ElemType: elemType,
			Shape:    &TensorShapeProto{Dims: dims},
		}},
	}
}
