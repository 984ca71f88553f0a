package onnx

import (
	"context"

	"github.com/born-ml/singleshot/internal/backend"
	"github.com/born-ml/singleshot/internal/errdefs"
	"github.com/born-ml/singleshot/internal/tensor"
)

// Name is the registry name of the ONNX backend.
const Name = "onnx"

// Extension is the model file extension served by this backend.
const Extension = ".onnx"

func init() {
	backend.Register(Backend{}, Extension)
}

// Backend opens ONNX models with the pure-Go interpreter.
type Backend struct{}

// Name implements backend.Backend.
func (Backend) Name() string { return Name }

// Init builds the operator registry.
func (Backend) Init() error {
	Registry()
	return nil
}

// Open implements backend.Backend.
func (Backend) Open(path string, opts backend.Options) (backend.Handle, error) {
	model, err := Load(path, LoadOptions{
		Threads: opts.Threads,
		Logger:  opts.Logger.WithName(Name),
	})
	if err != nil {
		return nil, err
	}
	return &handle{model: model}, nil
}

type handle struct {
	model *Model
}

func (h *handle) open() (*Model, error) {
	if h.model == nil {
		return nil, errdefs.InvalidState("model is closed")
	}
	return h.model, nil
}

func (h *handle) Info(which backend.Which) (*tensor.Info, error) {
	m, err := h.open()
	if err != nil {
		return nil, err
	}
	if which == backend.Output {
		return m.OutputInfo()
	}
	return m.InputInfo()
}

func (h *handle) SetInputInfo(info *tensor.Info) error {
	m, err := h.open()
	if err != nil {
		return err
	}
	return m.SetInputInfo(info)
}

func (h *handle) Run(ctx context.Context, in, out *tensor.Data) error {
	m, err := h.open()
	if err != nil {
		return err
	}
	return m.Run(ctx, in, out)
}

func (h *handle) Metadata() map[string]string {
	m, err := h.open()
	if err != nil {
		return nil
	}
	return m.Metadata()
}

func (h *handle) Close() error {
	h.model = nil
	return nil
}
