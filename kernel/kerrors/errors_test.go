package kerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("Should build an error with the given code and message", func(t *testing.T) {
		err := New(PermissionDenied, "action denied")

		assert.Equal(t, PermissionDenied, err.Code)
		assert.Equal(t, "action denied", err.Message)
		assert.Equal(t, "permission_denied: action denied", err.Error())
	})
}

func TestArgument(t *testing.T) {
	t.Run("Should record the parameter index and argument_error code", func(t *testing.T) {
		err := Argument(2, "bad handle")

		assert.Equal(t, ArgError, err.Code)
		assert.Equal(t, 2, err.Param)
		assert.Contains(t, err.Error(), "bad handle")
	})
}

func TestWrap(t *testing.T) {
	t.Run("Should preserve the wrapped error for Unwrap", func(t *testing.T) {
		inner := errors.New("boom")

		err := Wrap(inner, Failed, "wrapped failure")

		require.ErrorIs(t, err, inner)
		assert.Equal(t, "wrapped failure", err.Message)
	})

	t.Run("Should fall back to the wrapped error's message when none given", func(t *testing.T) {
		inner := errors.New("boom")

		err := Wrap(inner, Failed, "")

		assert.Equal(t, "boom", err.Message)
	})
}

func TestAsMap(t *testing.T) {
	t.Run("Should expose code, message, and details as a map", func(t *testing.T) {
		err := New(Overflow, "queue full")
		err.Details = map[string]any{"depth": 16}

		m := err.AsMap()

		assert.Equal(t, Overflow, m["code"])
		assert.Equal(t, "queue full", m["message"])
		assert.Equal(t, map[string]any{"depth": 16}, m["details"])
	})
}

func TestIs(t *testing.T) {
	t.Run("Should match when the error carries the given code", func(t *testing.T) {
		err := New(Timeout, "too slow")

		assert.True(t, Is(err, Timeout))
		assert.False(t, Is(err, Overflow))
	})

	t.Run("Should not match a plain error", func(t *testing.T) {
		assert.False(t, Is(errors.New("plain"), Timeout))
	})
}
