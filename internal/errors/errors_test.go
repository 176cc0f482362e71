package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	err := New(CodeBusy, "deep scan already running")
	assert.Equal(t, "[BUSY] deep scan already running", err.Error())

	withTarget := err.WithTarget("10.0.0.5")
	assert.Equal(t, "[BUSY] deep scan already running (target: 10.0.0.5)", withTarget.Error())
	assert.Empty(t, err.Target, "WithTarget must not mutate the original")

	wrapped := Wrap(CodeToolUnavailable, "nmap launch failed", stderrors.New("exec: not found"))
	assert.Contains(t, wrapped.Error(), "TOOL_UNAVAILABLE")
	assert.Contains(t, wrapped.Error(), "exec: not found")
}

func TestUnwrapChain(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(CodeTimeout, "resolution window expired", cause)

	require.ErrorIs(t, err, cause)
	assert.Equal(t, CodeTimeout, GetCode(err))

	// Codes survive further wrapping by callers.
	outer := fmt.Errorf("session: %w", err)
	assert.True(t, IsCode(outer, CodeTimeout))
	assert.Equal(t, CodeTimeout, GetCode(outer))
}

func TestGetCodeDefaultsToInternal(t *testing.T) {
	assert.Equal(t, CodeInternal, GetCode(stderrors.New("plain")))
	assert.False(t, IsCode(stderrors.New("plain"), CodeBusy))
}

func TestPredicates(t *testing.T) {
	assert.True(t, IsBusy(New(CodeBusy, "busy")))
	assert.True(t, IsToolUnavailable(New(CodeToolUnavailable, "no nmap")))
	assert.True(t, IsTimeout(New(CodeTimeout, "window")))
	assert.False(t, IsBusy(New(CodeTimeout, "window")))
	assert.False(t, IsBusy(nil))
}

func TestNewf(t *testing.T) {
	err := Newf(CodeMalformedResult, "invalid address %q", "not-an-ip")
	assert.Equal(t, CodeMalformedResult, err.Code)
	assert.Contains(t, err.Message, `"not-an-ip"`)
}
