package onnx

import (
	"sync"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	"github.com/born-ml/singleshot/internal/backend/onnx/operators"
	"github.com/born-ml/singleshot/internal/errdefs"
	"github.com/born-ml/singleshot/internal/parallel"
	"github.com/born-ml/singleshot/internal/tensor"
)

// LoadOptions configures model loading behavior.
type LoadOptions struct {
	// Threads bounds the kernel workers per run; zero means one per CPU.
	Threads int

	// Logger receives load and reshape diagnostics.
	Logger logr.Logger

	// CustomOps provides additional operators.
	CustomOps map[string]operators.Operator
}

// DefaultLoadOptions returns default loading options.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{
		Threads: 0,
		Logger:  logr.Discard(),
	}
}

var (
	registryOnce    sync.Once
	defaultRegistry *operators.Registry
)

// Registry returns the process-wide operator registry.
func Registry() *operators.Registry {
	registryOnce.Do(func() {
		defaultRegistry = operators.NewRegistry()
	})
	return defaultRegistry
}

// Load loads an ONNX model from file and prepares it for inference.
//
// Example:
//
//	model, err := onnx.Load("add.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
func Load(path string, opts ...LoadOptions) (*Model, error) {
	opt := DefaultLoadOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}

	proto, err := ParseFile(path)
	if err != nil {
		return nil, errdefs.Backend(errors.Wrap(err, "failed to parse ONNX file"))
	}

	return LoadFromProto(proto, opt)
}

// LoadFromBytes loads an ONNX model from bytes.
func LoadFromBytes(data []byte, opts ...LoadOptions) (*Model, error) {
	opt := DefaultLoadOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}

	proto, err := Parse(data)
	if err != nil {
		return nil, errdefs.Backend(errors.Wrap(err, "failed to parse ONNX data"))
	}

	return LoadFromProto(proto, opt)
}

// LoadFromProto loads a model from parsed ModelProto.
// Every failure is reported as errdefs.ErrBackend.
func LoadFromProto(proto *ModelProto, opt LoadOptions) (*Model, error) {
	registry := Registry()
	if len(opt.CustomOps) > 0 {
		registry = registry.Clone()
		for opType, op := range opt.CustomOps {
			registry.Register(opType, op)
		}
	}
	model := &Model{
		proto:    proto,
		registry: registry,
		parallel: parallel.NewConfig(opt.Threads),
		log:      opt.Logger,
	}

	if err := model.compile(); err != nil {
		return nil, errdefs.Backend(errors.Wrap(err, "failed to compile model"))
	}

	model.log.V(1).Info("model loaded",
		"inputs", model.InputNames(),
		"outputs", model.OutputNames(),
		"nodes", len(model.nodes),
		"opset", model.opsetVersion,
		"reshapable", model.reshapable)
	return model, nil
}

// compile prepares the model for inference.
func (m *Model) compile() error {
	graph := m.proto.Graph
	if graph == nil {
		return errors.New("model has no graph")
	}

	for _, opset := range m.proto.OpsetImport {
		if opset.Domain == "" || opset.Domain == "ai.onnx" {
			m.opsetVersion = opset.Version
			break
		}
	}

	// Load initializers (weights)
	m.consts = make(map[string]*operators.Value)
	for i := range graph.Initializers {
		init := &graph.Initializers[i]
		v, err := tensorFromProto(init)
		if err != nil {
			return errors.Wrapf(err, "failed to load initializer %s", init.Name)
		}
		m.consts[init.Name] = v
	}

	// Inputs are graph inputs minus initializers
	for i := range graph.Inputs {
		if _, ok := m.consts[graph.Inputs[i].Name]; ok {
			continue
		}
		p, err := portFromValueInfo(&graph.Inputs[i])
		if err != nil {
			return errors.Wrap(err, "input")
		}
		for _, s := range p.symbolic {
			m.reshapable = m.reshapable || s
		}
		m.inputs = append(m.inputs, p)
	}
	for i := range graph.Outputs {
		p, err := portFromValueInfo(&graph.Outputs[i])
		if err != nil {
			return errors.Wrap(err, "output")
		}
		m.outputs = append(m.outputs, p)
	}
	if err := checkPortCount("inputs", len(m.inputs)); err != nil {
		return err
	}
	if err := checkPortCount("outputs", len(m.outputs)); err != nil {
		return err
	}

	sorted := topologicalSort(graph.Nodes)
	m.nodes = make([]*operators.Node, len(sorted))
	for i := range sorted {
		node, err := m.nodeFromProto(&sorted[i])
		if err != nil {
			return err
		}
		if node.Domain != "" && node.Domain != "ai.onnx" {
			return errors.Errorf("node %s: unsupported domain %q", node.Name, node.Domain)
		}
		if _, ok := m.registry.Get(node.OpType); !ok {
			return errors.Errorf("unsupported operator: %s", node.OpType)
		}
		m.nodes[i] = node
	}

	shapes := make([]tensor.Shape, len(m.inputs))
	for i := range m.inputs {
		shapes[i] = m.inputs[i].shape
	}
	infos, outShapes, err := m.infer(shapes)
	if err != nil {
		return err
	}
	for i := range m.outputs {
		m.outputs[i].shape = outShapes[i]
	}
	m.infos = infos
	return nil
}

func checkPortCount(what string, n int) error {
	if n == 0 {
		return errors.Errorf("model has no %s", what)
	}
	if n > tensor.MaxTensors {
		return errors.Errorf("model has %d %s, at most %d supported", n, what, tensor.MaxTensors)
	}
	return nil
}

// portFromValueInfo maps a graph input or output. Symbolic extents start at 1.
func portFromValueInfo(vi *ValueInfoProto) (port, error) {
	p := port{name: vi.Name}
	if vi.Type == nil || vi.Type.TensorType == nil {
		return p, errors.Errorf("%s is not a tensor", vi.Name)
	}
	tt := vi.Type.TensorType

	typ, err := operators.TypeFromProto(tt.ElemType)
	if err != nil {
		return p, errors.Wrap(err, vi.Name)
	}
	p.typ = typ

	if tt.Shape == nil {
		return p, errors.Errorf("%s has no shape", vi.Name)
	}
	if len(tt.Shape.Dims) > tensor.Rank {
		return p, errors.Errorf("%s has rank %d, at most %d supported", vi.Name, len(tt.Shape.Dims), tensor.Rank)
	}
	for _, d := range tt.Shape.Dims {
		extent := d.DimValue
		if d.Symbolic() {
			extent = 1
		}
		p.declared = append(p.declared, d.DimValue)
		p.symbolic = append(p.symbolic, d.Symbolic())
		p.shape = append(p.shape, int(extent))
	}
	if p.shape == nil {
		p.shape = tensor.Shape{}
	}
	return p, nil
}

// nodeFromProto converts NodeProto to operators.Node.
func (m *Model) nodeFromProto(proto *NodeProto) (*operators.Node, error) {
	attrs := make([]operators.Attribute, len(proto.Attributes))
	for i := range proto.Attributes {
		attr := &proto.Attributes[i]
		attrs[i] = operators.Attribute{
			Name:    attr.Name,
			Type:    attr.Type,
			F:       attr.F,
			I:       attr.I,
			S:       attr.S,
			Floats:  attr.Floats,
			Ints:    attr.Ints,
			Strings: attr.Strings,
		}
		if attr.T != nil {
			v, err := tensorFromProto(attr.T)
			if err != nil {
				return nil, errors.Wrapf(err, "node %s: attribute %s", proto.Name, attr.Name)
			}
			attrs[i].T = v
		}
	}
	return &operators.Node{
		Name:       proto.Name,
		OpType:     proto.OpType,
		Inputs:     proto.Inputs,
		Outputs:    proto.Outputs,
		Attributes: attrs,
		Domain:     proto.Domain,
		Opset:      m.opsetVersion,
	}, nil
}

// topologicalSort sorts nodes in execution order.
// Ensures dependencies are executed before dependents.
func topologicalSort(nodes []NodeProto) []NodeProto {
	outputToNode := make(map[string]int)
	for i := range nodes {
		for _, output := range nodes[i].Outputs {
			if output != "" {
				outputToNode[output] = i
			}
		}
	}

	visited := make([]bool, len(nodes))
	result := make([]NodeProto, 0, len(nodes))

	var visit func(i int)
	visit = func(i int) {
		if visited[i] {
			return
		}
		visited[i] = true

		for _, input := range nodes[i].Inputs {
			if depIdx, ok := outputToNode[input]; ok {
				visit(depIdx)
			}
		}

		result = append(result, nodes[i])
	}

	for i := range nodes {
		visit(i)
	}

	return result
}

// ListSupportedOps returns all supported ONNX operators.
func ListSupportedOps() []string {
	return Registry().SupportedOps()
}
