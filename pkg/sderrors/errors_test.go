package sderrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCapturesTypeAndStack(t *testing.T) {
	err := New(ErrorTypeConfig, "binding already established")
	assert.Equal(t, ErrorTypeConfig, err.Type)
	assert.Equal(t, "config: binding already established", err.Error())
	assert.NotEmpty(t, err.Stack)
}

func TestNewf(t *testing.T) {
	err := Newf(ErrorTypeConfig, "invalid produce mode %q", "bogus")
	assert.Contains(t, err.Error(), `invalid produce mode "bogus"`)
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, ErrorTypeConnection, "producer setup failed")

	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "connection: producer setup failed: connection refused", err.Error())
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeConnection, "ignored"))
}

func TestWrapPreservesExistingStack(t *testing.T) {
	inner := New(ErrorTypeData, "corrupt accumulator value")
	outer := Wrap(fmt.Errorf("reading key: %w", inner), ErrorTypeConnection, "store read failed")

	assert.Equal(t, inner.Stack, outer.Stack)
	assert.True(t, IsType(outer, ErrorTypeConnection))
}

func TestWithDetail(t *testing.T) {
	err := New(ErrorTypeConfig, "invalid produce mode").
		WithDetail("mode", "bogus").
		WithDetail("valid", "send, buffer, buffer_format")

	assert.Equal(t, "bogus", err.Details["mode"])
	assert.Equal(t, "send, buffer, buffer_format", err.Details["valid"])
}

func TestIsType(t *testing.T) {
	err := New(ErrorTypeValidation, "pipeline requires a keyed store")
	assert.True(t, IsType(err, ErrorTypeValidation))
	assert.False(t, IsType(err, ErrorTypeConfig))

	wrapped := fmt.Errorf("constructing: %w", err)
	assert.True(t, IsType(wrapped, ErrorTypeValidation))

	assert.False(t, IsType(errors.New("plain"), ErrorTypeValidation))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(ErrorTypeConnection, "broker unreachable")))
	assert.True(t, IsRetryable(New(ErrorTypeTimeout, "flush timed out")))
	assert.False(t, IsRetryable(New(ErrorTypeConfig, "binding already established")))
	assert.False(t, IsRetryable(New(ErrorTypeValidation, "missing collaborator")))
	assert.False(t, IsRetryable(errors.New("plain")))
}
