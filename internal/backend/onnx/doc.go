// Package onnx is a pure-Go interpreter backend for ONNX models.
//
// Models are decoded with a protowire-based parser, compiled into a
// topologically sorted node list and executed by element-wise kernels over
// little-endian byte buffers. Tensor ranks up to four are supported, which
// is what the single-shot schema can describe.
//
// Graph inputs whose shape carries a symbolic dimension (a dim_param or a
// non-positive dim_value) are reshapable: the extent starts at 1 and can be
// changed through SetInputInfo, after which output shapes are recomputed by
// shape inference.
//
// Example usage:
//
//	model, err := onnx.Load("add.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	in, _ := model.InputInfo().Allocate()
//	out, _ := model.OutputInfo().Allocate()
//	err = model.Run(ctx, in, out)
package onnx
