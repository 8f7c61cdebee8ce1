package handler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoHandler() Handler {
	return HandlerFunc{TypeName: "echo", Fn: func(ctx context.Context, payload Payload) (Result, error) {
		return Result(payload), nil
	}}
}

func TestRegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(echoHandler()))

	h, ok := reg.Get("echo")
	require.True(t, ok)
	assert.Equal(t, "echo", h.Type())

	_, ok = reg.Get("missing")
	assert.False(t, ok)
}

func TestRegisterDuplicateRejected(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(echoHandler()))
	err := reg.Register(echoHandler())
	assert.Error(t, err)
}

func TestRegisterNilOrEmptyType(t *testing.T) {
	reg := NewRegistry()
	assert.Error(t, reg.Register(nil))
	assert.Error(t, reg.Register(HandlerFunc{TypeName: ""}))
}

func TestHasAndList(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(echoHandler()))
	assert.True(t, reg.Has("echo"))
	assert.False(t, reg.Has("sleep"))
	assert.Equal(t, []string{"echo"}, reg.List())
}
