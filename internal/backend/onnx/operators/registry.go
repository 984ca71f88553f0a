package operators

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/born-ml/singleshot/internal/parallel"
)

// OpHandler computes the outputs of node. outputs carries the inferred
// description of every output and is what handlers allocate from.
type OpHandler func(ctx *Context, node *Node, inputs []*Value, outputs []*ValueInfo) ([]*Value, error)

// ShapeFunc infers output types and shapes from input descriptions.
// Inputs omitted by the node are nil.
type ShapeFunc func(node *Node, inputs []*ValueInfo) ([]*ValueInfo, error)

// Operator pairs a kernel with its shape function.
type Operator struct {
	Infer ShapeFunc
	Run   OpHandler
}

// Context carries cancellation and the worker configuration into kernels.
type Context struct {
	ctx      context.Context
	parallel parallel.Config
}

// NewContext returns a kernel context.
func NewContext(ctx context.Context, cfg parallel.Config) *Context {
	return &Context{ctx: ctx, parallel: cfg}
}

// Err reports whether the run was cancelled.
func (c *Context) Err() error {
	return c.ctx.Err()
}

// For runs f over chunks of [0, n) with the configured workers.
func (c *Context) For(n int, f func(start, end int) error) error {
	return parallel.For(c.ctx, n, f, c.parallel)
}

// Registry maps ONNX operator types to operators.
type Registry struct {
	ops map[string]Operator
}

// NewRegistry creates a new operator registry with all supported operators.
func NewRegistry() *Registry {
	r := &Registry{
		ops: make(map[string]Operator),
	}

	r.registerMathOps()
	r.registerActivations()
	r.registerShapeOps()
	r.registerUtilityOps()
	r.registerReduceOps()

	return r
}

// Clone returns a registry with the same operators.
func (r *Registry) Clone() *Registry {
	c := &Registry{ops: make(map[string]Operator, len(r.ops))}
	for k, v := range r.ops {
		c.ops[k] = v
	}
	return c
}

// Register adds or replaces an operator.
func (r *Registry) Register(opType string, op Operator) {
	r.ops[opType] = op
}

// Get returns the operator for an operator type.
func (r *Registry) Get(opType string) (Operator, bool) {
	op, ok := r.ops[opType]
	return op, ok
}

// Infer runs the shape function of node.
func (r *Registry) Infer(node *Node, inputs []*ValueInfo) ([]*ValueInfo, error) {
	op, ok := r.ops[node.OpType]
	if !ok {
		return nil, errors.Errorf("unsupported operator: %s", node.OpType)
	}
	outs, err := op.Infer(node, inputs)
	if err != nil {
		return nil, err
	}
	if len(outs) < len(node.Outputs) {
		return nil, errors.Errorf("%s produces %d outputs, node expects %d", node.OpType, len(outs), len(node.Outputs))
	}
	return outs, nil
}

// Execute runs an operator with the given inputs.
func (r *Registry) Execute(ctx *Context, node *Node, inputs []*Value, outputs []*ValueInfo) ([]*Value, error) {
	op, ok := r.ops[node.OpType]
	if !ok {
		return nil, errors.Errorf("unsupported operator: %s", node.OpType)
	}
	return op.Run(ctx, node, inputs, outputs)
}

// SupportedOps returns all supported operator types in sorted order.
func (r *Registry) SupportedOps() []string {
	ops := make([]string, 0, len(r.ops))
	for op := range r.ops {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// arity checks the number of inputs present.
func arity(node *Node, inputs []*ValueInfo, minIn, maxIn int) error {
	n := len(inputs)
	if n < minIn || n > maxIn {
		if minIn == maxIn {
			return errors.Errorf("%s expects %d inputs, got %d", node.OpType, minIn, n)
		}
		return errors.Errorf("%s expects %d to %d inputs, got %d", node.OpType, minIn, maxIn, n)
	}
	for i := 0; i < minIn; i++ {
		if inputs[i] == nil {
			return errors.Errorf("%s: input %d is required", node.OpType, i)
		}
	}
	return nil
}
