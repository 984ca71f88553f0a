package onnx

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	"github.com/born-ml/singleshot/internal/backend/onnx/operators"
	"github.com/born-ml/singleshot/internal/errdefs"
	"github.com/born-ml/singleshot/internal/parallel"
	"github.com/born-ml/singleshot/internal/tensor"
)

// port is a graph input or output.
type port struct {
	name     string
	typ      tensor.Type
	declared []int64 // declared extents, outermost first
	symbolic []bool  // per axis: extent chosen at run time
	shape    tensor.Shape
}

func (p *port) dimension() (tensor.Dimension, error) {
	return tensor.DimensionOf(p.shape)
}

// Model represents a loaded ONNX model ready for inference.
type Model struct {
	proto        *ModelProto
	registry     *operators.Registry
	consts       map[string]*operators.Value // Initializers
	inputs       []port
	outputs      []port
	nodes        []*operators.Node
	infos        map[string]*operators.ValueInfo // Inferred for the current input shapes
	reshapable   bool
	opsetVersion int64
	parallel     parallel.Config
	log          logr.Logger
}

// InputNames returns the names of model inputs.
func (m *Model) InputNames() []string {
	return portNames(m.inputs)
}

// OutputNames returns the names of model outputs.
func (m *Model) OutputNames() []string {
	return portNames(m.outputs)
}

func portNames(ports []port) []string {
	names := make([]string, len(ports))
	for i := range ports {
		names[i] = ports[i].name
	}
	return names
}

// OpsetVersion returns the ONNX opset version.
func (m *Model) OpsetVersion() int64 {
	return m.opsetVersion
}

// Reshapable reports whether any input has a symbolic dimension.
func (m *Model) Reshapable() bool {
	return m.reshapable
}

// Metadata returns model metadata as key-value pairs.
func (m *Model) Metadata() map[string]string {
	meta := make(map[string]string)
	for _, prop := range m.proto.MetadataProps {
		meta[prop.Key] = prop.Value
	}
	for k, v := range map[string]string{
		"producer_name":    m.proto.ProducerName,
		"producer_version": m.proto.ProducerVersion,
		"domain":           m.proto.Domain,
	} {
		if v != "" {
			meta[k] = v
		}
	}
	return meta
}

// InputInfo returns the current input schema.
func (m *Model) InputInfo() (*tensor.Info, error) {
	return schemaOf(m.inputs)
}

// OutputInfo returns the output schema for the current input schema.
func (m *Model) OutputInfo() (*tensor.Info, error) {
	return schemaOf(m.outputs)
}

func schemaOf(ports []port) (*tensor.Info, error) {
	entries := make([]tensor.Entry, len(ports))
	for i := range ports {
		d, err := ports[i].dimension()
		if err != nil {
			return nil, errdefs.Backend(errors.Wrapf(err, "tensor %q", ports[i].name))
		}
		entries[i] = tensor.Entry{Name: ports[i].name, Type: ports[i].typ, Dim: d}
	}
	info, err := tensor.NewInfo(entries...)
	if err != nil {
		return nil, errdefs.Backend(err)
	}
	return info, nil
}

// SetInputInfo changes the input shapes and recomputes the output shapes.
// The model is unchanged when an error is returned.
func (m *Model) SetInputInfo(info *tensor.Info) error {
	if info.Count() != len(m.inputs) {
		return errdefs.InvalidArgument("model has %d inputs, schema describes %d", len(m.inputs), info.Count())
	}
	entries := info.Entries()

	changed := false
	for i := range m.inputs {
		in := &m.inputs[i]
		if entries[i].Type != in.typ {
			return errdefs.InvalidArgument("input %q has type %s, got %s", in.name, in.typ, entries[i].Type)
		}
		current, err := in.dimension()
		if err != nil {
			return errdefs.Backend(err)
		}
		if current != entries[i].Dim {
			changed = true
		}
	}
	if !changed {
		return nil
	}
	if !m.reshapable {
		return errdefs.NotSupported("model has static input shapes")
	}

	shapes := make([]tensor.Shape, len(m.inputs))
	for i := range m.inputs {
		in := &m.inputs[i]
		s, err := entries[i].Dim.Shape(len(in.declared))
		if err != nil {
			return errdefs.Annotate(err, "input %q", in.name)
		}
		for ax := range s {
			if !in.symbolic[ax] && int64(s[ax]) != in.declared[ax] {
				return errdefs.InvalidArgument("input %q: axis %d is fixed to %d, got %d", in.name, ax, in.declared[ax], s[ax])
			}
		}
		shapes[i] = s
	}

	infos, outShapes, err := m.infer(shapes)
	if err != nil {
		return errdefs.Annotate(err, "input schema %s", info)
	}

	for i := range m.inputs {
		m.inputs[i].shape = shapes[i]
	}
	for i := range m.outputs {
		m.outputs[i].shape = outShapes[i]
	}
	m.infos = infos
	m.log.V(1).Info("input shapes changed", "input", info.String())
	return nil
}

// infer runs shape inference over the graph for the given input shapes.
func (m *Model) infer(shapes []tensor.Shape) (map[string]*operators.ValueInfo, []tensor.Shape, error) {
	infos := make(map[string]*operators.ValueInfo, len(m.consts)+len(m.nodes))
	for name, v := range m.consts {
		infos[name] = v.Info()
	}
	for i := range m.inputs {
		infos[m.inputs[i].name] = &operators.ValueInfo{Type: m.inputs[i].typ, Shape: shapes[i]}
	}

	for _, node := range m.nodes {
		ins := make([]*operators.ValueInfo, len(node.Inputs))
		for i, name := range node.Inputs {
			if name == "" {
				continue
			}
			info, ok := infos[name]
			if !ok {
				return nil, nil, errors.Errorf("node %s: missing input %s", node.Name, name)
			}
			ins[i] = info
		}
		outs, err := m.registry.Infer(node, ins)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "node %s (%s)", node.Name, node.OpType)
		}
		for i, name := range node.Outputs {
			if name != "" {
				infos[name] = outs[i]
			}
		}
	}

	outShapes := make([]tensor.Shape, len(m.outputs))
	for i := range m.outputs {
		out := &m.outputs[i]
		info, ok := infos[out.name]
		if !ok {
			return nil, nil, errors.Errorf("missing output: %s", out.name)
		}
		if info.Type != out.typ {
			return nil, nil, errors.Errorf("output %s: computed type %s, declared %s", out.name, info.Type, out.typ)
		}
		if len(info.Shape) > tensor.Rank {
			return nil, nil, errors.Errorf("output %s: rank %d exceeds %d", out.name, len(info.Shape), tensor.Rank)
		}
		if _, err := tensor.DimensionOf(info.Shape); err != nil {
			return nil, nil, errors.Wrapf(err, "output %s", out.name)
		}
		outShapes[i] = info.Shape
	}
	return infos, outShapes, nil
}

// Run computes out from in. Both must match the current schemas.
func (m *Model) Run(ctx context.Context, in, out *tensor.Data) error {
	if in.Count() != len(m.inputs) || out.Count() != len(m.outputs) {
		return errdefs.Backendf("model expects %d inputs and %d outputs, got %d and %d",
			len(m.inputs), len(m.outputs), in.Count(), out.Count())
	}

	values := make(map[string]*operators.Value, len(m.consts)+len(m.nodes))
	for name, v := range m.consts {
		values[name] = v
	}
	for i := range m.inputs {
		buf, err := in.Tensor(i)
		if err != nil {
			return err
		}
		v := &operators.Value{Type: m.inputs[i].typ, Shape: m.inputs[i].shape, Data: buf}
		if len(buf) != v.Len()*v.Type.Size() {
			return errdefs.Backendf("input %s holds %d bytes, want %d", m.inputs[i].name, len(buf), v.Len()*v.Type.Size())
		}
		values[m.inputs[i].name] = v
	}

	kctx := operators.NewContext(ctx, m.parallel)
	for _, node := range m.nodes {
		if err := ctx.Err(); err != nil {
			return errdefs.Backend(err)
		}

		ins := make([]*operators.Value, len(node.Inputs))
		for i, name := range node.Inputs {
			if name == "" {
				continue
			}
			v, ok := values[name]
			if !ok {
				return errdefs.Backendf("node %s: missing input %s", node.Name, name)
			}
			ins[i] = v
		}

		outInfos := make([]*operators.ValueInfo, len(node.Outputs))
		for i, name := range node.Outputs {
			outInfos[i] = m.infos[name]
		}

		outs, err := m.registry.Execute(kctx, node, ins, outInfos)
		if err != nil {
			return errdefs.Backend(errors.Wrapf(err, "node %s (%s)", node.Name, node.OpType))
		}
		for i, name := range node.Outputs {
			if name != "" && i < len(outs) {
				values[name] = outs[i]
			}
		}
	}

	for i := range m.outputs {
		v, ok := values[m.outputs[i].name]
		if !ok {
			return errdefs.Backendf("missing output: %s", m.outputs[i].name)
		}
		dst, err := out.Tensor(i)
		if err != nil {
			return err
		}
		if len(dst) != len(v.Data) {
			return errdefs.Backendf("output %s: computed %d bytes, buffer holds %d", m.outputs[i].name, len(v.Data), len(dst))
		}
		copy(dst, v.Data)
	}
	return nil
}
