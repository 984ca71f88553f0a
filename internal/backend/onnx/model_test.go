package onnx

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/born-ml/singleshot/internal/backend"
	"github.com/born-ml/singleshot/internal/backend/onnx/operators"
	"github.com/born-ml/singleshot/internal/errdefs"
	"github.com/born-ml/singleshot/internal/tensor"
)

func float32Bytes(vs ...float32) []byte {
	b := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
	}
	return b
}

func bytesFloat32(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out
}

func loadSample(t *testing.T, m *ModelProto) *Model {
	t.Helper()
	model, err := LoadFromBytes(Marshal(m))
	if err != nil {
		t.Fatalf("LoadFromBytes failed: %v", err)
	}
	return model
}

// runModel allocates buffers for the current schemas and runs the model.
func runModel(t *testing.T, m *Model, input []float32) []float32 {
	t.Helper()
	inInfo, err := m.InputInfo()
	if err != nil {
		t.Fatalf("InputInfo failed: %v", err)
	}
	outInfo, err := m.OutputInfo()
	if err != nil {
		t.Fatalf("OutputInfo failed: %v", err)
	}
	in, err := inInfo.Allocate()
	if err != nil {
		t.Fatalf("Allocate input failed: %v", err)
	}
	if err := in.SetTensor(0, float32Bytes(input...)); err != nil {
		t.Fatalf("SetTensor failed: %v", err)
	}
	out, err := outInfo.Allocate()
	if err != nil {
		t.Fatalf("Allocate output failed: %v", err)
	}
	if err := m.Run(context.Background(), in, out); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	buf, _ := out.Tensor(0)
	return bytesFloat32(buf)
}

func TestLoadAddModel(t *testing.T) {
	m := loadSample(t, AddModel(false))

	if got := m.InputNames(); len(got) != 1 || got[0] != "input" {
		t.Errorf("InputNames = %v", got)
	}
	if got := m.OutputNames(); len(got) != 1 || got[0] != "output" {
		t.Errorf("OutputNames = %v", got)
	}
	if m.OpsetVersion() != 13 {
		t.Errorf("OpsetVersion = %d, want 13", m.OpsetVersion())
	}
	if !m.Reshapable() {
		t.Error("symbolic batch should make the model reshapable")
	}
	if got := m.Metadata()["sample"]; got != "add" {
		t.Errorf("Metadata[sample] = %q", got)
	}

	in, err := m.InputInfo()
	if err != nil {
		t.Fatalf("InputInfo failed: %v", err)
	}
	if in.String() != "input:float32[1:1:1:1]" {
		t.Errorf("InputInfo = %s", in)
	}

	got := runModel(t, m, []float32{1.5})
	if len(got) != 1 || got[0] != 3.5 {
		t.Errorf("Run = %v, want [3.5]", got)
	}
}

func TestModelSetInputInfo(t *testing.T) {
	m := loadSample(t, AddModel(false))

	info := &tensor.Info{}
	if err := info.Add(tensor.Float32, 10); err != nil {
		t.Fatal(err)
	}
	if err := m.SetInputInfo(info); err != nil {
		t.Fatalf("SetInputInfo failed: %v", err)
	}

	out, err := m.OutputInfo()
	if err != nil {
		t.Fatalf("OutputInfo failed: %v", err)
	}
	if out.String() != "output:float32[10:1:1:1]" {
		t.Errorf("OutputInfo = %s", out)
	}

	input := make([]float32, 10)
	for i := range input {
		input[i] = float32(i)
	}
	got := runModel(t, m, input)
	for i, v := range got {
		if v != float32(i)+2 {
			t.Errorf("output[%d] = %v, want %v", i, v, float32(i)+2)
		}
	}

	// Same schema again is a no-op.
	if err := m.SetInputInfo(info); err != nil {
		t.Errorf("repeated SetInputInfo failed: %v", err)
	}
}

func TestModelSetInputInfoRejects(t *testing.T) {
	m := loadSample(t, ReluModel(false))
	before, _ := m.InputInfo()

	mustInfo := func(typ tensor.Type, dims ...int) *tensor.Info {
		info := &tensor.Info{}
		if err := info.Add(typ, dims...); err != nil {
			t.Fatal(err)
		}
		return info
	}
	two := mustInfo(tensor.Float32, 4, 2)
	if err := two.Add(tensor.Float32, 4); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		info *tensor.Info
	}{
		{"count", two},
		{"type", mustInfo(tensor.Int32, 4, 2)},
		{"fixed axis", mustInfo(tensor.Float32, 3, 2)},
		{"rank", mustInfo(tensor.Float32, 4, 2, 2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.SetInputInfo(tt.info)
			if !errors.Is(err, errdefs.ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
			if n := strings.Count(err.Error(), "invalid argument"); n != 1 {
				t.Errorf("kind repeated %d times in %q", n, err)
			}
			after, _ := m.InputInfo()
			if !after.Equal(before) {
				t.Errorf("schema changed to %s", after)
			}
		})
	}
}

func TestStaticModelNotReshapable(t *testing.T) {
	m := loadSample(t, AddModel(true))
	if m.Reshapable() {
		t.Fatal("static model reported reshapable")
	}

	info := &tensor.Info{}
	if err := info.Add(tensor.Float32, 10); err != nil {
		t.Fatal(err)
	}
	if err := m.SetInputInfo(info); !errors.Is(err, errdefs.ErrNotSupported) {
		t.Errorf("expected ErrNotSupported, got %v", err)
	}

	same, _ := m.InputInfo()
	if err := m.SetInputInfo(same); err != nil {
		t.Errorf("unchanged schema should be accepted, got %v", err)
	}
}

func TestReluModelRun(t *testing.T) {
	m := loadSample(t, ReluModel(false))

	info := &tensor.Info{}
	if err := info.Add(tensor.Float32, 4, 2); err != nil {
		t.Fatal(err)
	}
	if err := m.SetInputInfo(info); err != nil {
		t.Fatalf("SetInputInfo failed: %v", err)
	}

	got := runModel(t, m, []float32{-1, 0, 3, 9, 6, -0.5, 5.5, 100})
	want := []float32{0, 0, 3, 6, 6, 0, 5.5, 6}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("output[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestModelRunCanceled(t *testing.T) {
	m := loadSample(t, AddModel(false))
	inInfo, _ := m.InputInfo()
	outInfo, _ := m.OutputInfo()
	in, _ := inInfo.Allocate()
	out, _ := outInfo.Allocate()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Run(ctx, in, out); !errors.Is(err, errdefs.ErrBackend) {
		t.Errorf("expected ErrBackend, got %v", err)
	}
}

func TestModelRunWrongCount(t *testing.T) {
	m := loadSample(t, AddModel(false))
	inInfo, _ := m.InputInfo()
	in, _ := inInfo.Allocate()

	if err := m.Run(context.Background(), in, &tensor.Data{}); !errors.Is(err, errdefs.ErrBackend) {
		t.Errorf("expected ErrBackend, got %v", err)
	}
}

func TestLoadRejects(t *testing.T) {
	vi := func(name string, elemType int32, rank int) ValueInfoProto {
		dims := make([]DimensionProto, rank)
		for i := range dims {
			dims[i] = DimensionProto{DimValue: 2}
		}
		return sampleValueInfo(name, elemType, dims)
	}
	graph := func(op string, in, out ValueInfoProto) *ModelProto {
		return sampleModel("bad", &GraphProto{
			Nodes:   []NodeProto{{Name: "n", OpType: op, Inputs: []string{in.Name}, Outputs: []string{out.Name}}},
			Inputs:  []ValueInfoProto{in},
			Outputs: []ValueInfoProto{out},
		})
	}

	tests := []struct {
		name  string
		model *ModelProto
		want  string
	}{
		{"no graph", &ModelProto{IRVersion: 8}, "no graph"},
		{"rank 5", graph("Relu", vi("x", TensorProtoFloat, 5), vi("y", TensorProtoFloat, 5)), "rank 5"},
		{"unknown op", graph("LSTM", vi("x", TensorProtoFloat, 2), vi("y", TensorProtoFloat, 2)), "unsupported operator: LSTM"},
		{"bool", graph("Identity", vi("x", TensorProtoBool, 2), vi("y", TensorProtoBool, 2)), "x"},
		{"no shape", graph("Relu", ValueInfoProto{Name: "x", Type: &TypeProto{TensorType: &TensorTypeProto{ElemType: TensorProtoFloat}}}, vi("y", TensorProtoFloat, 1)), "no shape"},
		{"no inputs", sampleModel("bad", &GraphProto{Outputs: []ValueInfoProto{vi("y", TensorProtoFloat, 1)}}), "no inputs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromProto(tt.model, DefaultLoadOptions())
			if !errors.Is(err, errdefs.ErrBackend) {
				t.Fatalf("expected ErrBackend, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadCustomOp(t *testing.T) {
	m := sampleModel("custom", &GraphProto{
		Nodes:   []NodeProto{{Name: "n", OpType: "Twice", Inputs: []string{"x"}, Outputs: []string{"y"}}},
		Inputs:  []ValueInfoProto{sampleValueInfo("x", TensorProtoFloat, []DimensionProto{{DimValue: 2}})},
		Outputs: []ValueInfoProto{sampleValueInfo("y", TensorProtoFloat, []DimensionProto{{DimValue: 2}})},
	})
	if _, err := LoadFromProto(m, DefaultLoadOptions()); err == nil {
		t.Fatal("expected unknown operator error")
	}

	twice, _ := Registry().Get("Add")
	opts := DefaultLoadOptions()
	opts.CustomOps = map[string]operators.Operator{
		"Twice": {
			Infer: func(node *operators.Node, inputs []*operators.ValueInfo) ([]*operators.ValueInfo, error) {
				return twice.Infer(node, []*operators.ValueInfo{inputs[0], inputs[0]})
			},
			Run: func(ctx *operators.Context, node *operators.Node, inputs []*operators.Value, outputs []*operators.ValueInfo) ([]*operators.Value, error) {
				return twice.Run(ctx, node, []*operators.Value{inputs[0], inputs[0]}, outputs)
			},
		},
	}
	model, err := LoadFromProto(m, opts)
	if err != nil {
		t.Fatalf("LoadFromProto failed: %v", err)
	}
	got := runModel(t, model, []float32{1, -4})
	if got[0] != 2 || got[1] != -8 {
		t.Errorf("Run = %v, want [2 -8]", got)
	}
	if _, ok := Registry().Get("Twice"); ok {
		t.Error("custom operator leaked into the shared registry")
	}
}

func TestTopologicalSort(t *testing.T) {
	nodes := []NodeProto{
		{Name: "c", Inputs: []string{"b_out"}, Outputs: []string{"c_out"}},
		{Name: "b", Inputs: []string{"a_out", ""}, Outputs: []string{"b_out", ""}},
		{Name: "a", Inputs: []string{"x"}, Outputs: []string{"a_out"}},
	}
	sorted := topologicalSort(nodes)
	var order []string
	for _, n := range sorted {
		order = append(order, n.Name)
	}
	if strings.Join(order, ",") != "a,b,c" {
		t.Errorf("order = %v, want [a b c]", order)
	}
}

func TestTensorFromProto(t *testing.T) {
	tests := []struct {
		name    string
		proto   TensorProto
		wantErr bool
	}{
		{"raw", TensorProto{DataType: TensorProtoFloat, Dims: []int64{2}, RawData: float32Bytes(1, 2)}, false},
		{"float_data", TensorProto{DataType: TensorProtoFloat, Dims: []int64{2}, FloatData: []float32{1, 2}}, false},
		{"int8 in int32_data", TensorProto{DataType: TensorProtoInt8, Dims: []int64{2}, Int32Data: []int32{-1, 5}}, false},
		{"uint32 in uint64_data", TensorProto{DataType: TensorProtoUint32, Dims: []int64{1}, Uint64Data: []uint64{7}}, false},
		{"raw too short", TensorProto{DataType: TensorProtoFloat, Dims: []int64{2}, RawData: []byte{1}}, true},
		{"float_data wrong type", TensorProto{DataType: TensorProtoInt32, Dims: []int64{1}, FloatData: []float32{1}}, true},
		{"zero extent", TensorProto{DataType: TensorProtoFloat, Dims: []int64{0}}, true},
		{"string", TensorProto{DataType: TensorProtoString, Dims: []int64{1}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tensorFromProto(&tt.proto)
			if (err != nil) != tt.wantErr {
				t.Errorf("tensorFromProto() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	v, err := tensorFromProto(&TensorProto{DataType: TensorProtoInt8, Dims: []int64{2}, Int32Data: []int32{-1, 5}})
	if err != nil {
		t.Fatal(err)
	}
	if v.Data[0] != 0xff || v.Data[1] != 5 {
		t.Errorf("int8 data = %v", v.Data)
	}
}

func TestBackendOpen(t *testing.T) {
	b, err := backend.ForPath("model.ONNX")
	if err != nil {
		t.Fatalf("ForPath failed: %v", err)
	}
	if b.Name() != Name {
		t.Fatalf("ForPath picked %q", b.Name())
	}

	path := filepath.Join(t.TempDir(), "add.onnx")
	if err := os.WriteFile(path, Marshal(AddModel(false)), 0o600); err != nil {
		t.Fatal(err)
	}

	h, err := b.Open(path, backend.Options{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	in, err := h.Info(backend.Input)
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	out, _ := h.Info(backend.Output)
	inData, _ := in.Allocate()
	outData, _ := out.Allocate()
	if err := h.Run(context.Background(), inData, outData); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	buf, _ := outData.Tensor(0)
	if got := bytesFloat32(buf); got[0] != 2 {
		t.Errorf("Run = %v, want [2]", got)
	}

	if err := h.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := h.Info(backend.Input); !errors.Is(err, errdefs.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState after Close, got %v", err)
	}

	if _, err := b.Open(filepath.Join(t.TempDir(), "missing.onnx"), backend.Options{}); !errors.Is(err, errdefs.ErrBackend) {
		t.Errorf("expected ErrBackend for missing file, got %v", err)
	}
}
