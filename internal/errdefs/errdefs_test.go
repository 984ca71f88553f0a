package errdefs

import (
	"fmt"
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{io.EOF, ""},
		{InvalidArgument("bad %d", 1), "InvalidArgument"},
		{InvalidState("closed"), "InvalidState"},
		{NotSupported("dynamic dimension"), "NotSupported"},
		{Timeout("after %s", "10ms"), "Timeout"},
		{Backend(io.ErrUnexpectedEOF), "BackendError"},
		{Backendf("node %q failed", "add"), "BackendError"},
		{errors.Wrap(Timeout("x"), "invoke"), "Timeout"},
		{fmt.Errorf("outer: %w", InvalidState("x")), "InvalidState"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Kind(tc.err), "%v", tc.err)
	}
}

func TestBackendKeepsMessage(t *testing.T) {
	err := Backend(io.ErrUnexpectedEOF)
	assert.Equal(t, io.ErrUnexpectedEOF.Error(), err.Error())
	assert.True(t, errors.Is(err, ErrBackend))
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.False(t, errors.Is(err, ErrTimeout))

	assert.Equal(t, `node "add" failed`, Backendf("node %q failed", "add").Error())
	assert.Nil(t, Backend(nil))
}

func TestBackendPassesKindedErrors(t *testing.T) {
	inner := NotSupported("reshape")
	assert.Same(t, inner, Backend(inner))
	assert.False(t, errors.Is(Backend(inner), ErrBackend))
}

func TestAnnotate(t *testing.T) {
	err := Annotate(InvalidArgument("rank %d", 5), "input %q", "x")
	assert.Equal(t, `input "x": rank 5: invalid argument`, err.Error())
	assert.Equal(t, "InvalidArgument", Kind(err))

	err = Annotate(NotSupported("static"), "reshape")
	assert.Equal(t, "NotSupported", Kind(err))

	err = Annotate(io.EOF, "decode")
	assert.Equal(t, "decode: EOF: invalid argument", err.Error())
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	assert.Nil(t, Annotate(nil, "unused"))
}

func TestWrappedMessage(t *testing.T) {
	err := InvalidArgument("tensor index %d out of range", 3)
	assert.Equal(t, "tensor index 3 out of range: invalid argument", err.Error())
}
