package service

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineError_MessageIncludesContextAndCause(t *testing.T) {
	err := NewErrorWithCause(ErrOverflow, "translation too long", fmt.Errorf("14 > 10")).
		WithContext("record", "BIN:3")

	msg := err.Error()
	assert.Contains(t, msg, "[Overflow]")
	assert.Contains(t, msg, "record=BIN:3")
	assert.Contains(t, msg, "14 > 10")
}

func TestIsErrorType(t *testing.T) {
	err := WrapError(fmt.Errorf("boom"), ErrPointerTable, "table corrupt")
	assert.True(t, IsErrorType(err, ErrPointerTable))
	assert.False(t, IsErrorType(err, ErrOverflow))
	assert.False(t, IsErrorType(fmt.Errorf("plain"), ErrPointerTable))

	wrapped := fmt.Errorf("outer: %w", err)
	assert.True(t, IsErrorType(wrapped, ErrPointerTable))
}

func TestDefaultErrorHandler_AdvicePerType(t *testing.T) {
	h := NewDefaultErrorHandler()
	overflowAdvice := h.GetAdvice(NewError(ErrOverflow, "x"))
	conflictAdvice := h.GetAdvice(NewError(ErrMergeConflict, "x"))
	assert.NotEqual(t, overflowAdvice, conflictAdvice)
	assert.NotEmpty(t, h.GetAdvice(NewError(ErrUnknown, "x")))
}

func TestSafeExecute_RecoversPanic(t *testing.T) {
	err := SafeExecute(func() error { panic("kaboom") })
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrUnknown))
}
