package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainErrorFormat(t *testing.T) {
	err := NewDomainError("flow.createChatbot", ErrValidation, "businessDescription is required")
	want := "flow.createChatbot: businessDescription is required: validation failed: invalid input"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorFormatNoDetail(t *testing.T) {
	err := NewDomainError("orchestration.Run", ErrMaxIterations, "")
	want := "orchestration.Run: orchestration reached max iterations"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorUnwrap(t *testing.T) {
	err := NewDomainError("flow.runAgent", ErrValidation, "task")
	if !errors.Is(err, ErrValidation) {
		t.Error("errors.Is should match ErrValidation")
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Error("ErrValidation should belong to the ErrInvalidInput category")
	}
}

func TestDomainErrorAs(t *testing.T) {
	err := NewDomainError("LLM.Chat", ErrProviderNotFound, "vertex")
	var de *DomainError
	if !errors.As(err, &de) {
		t.Fatal("errors.As should match *DomainError")
	}
	if de.Op != "LLM.Chat" {
		t.Errorf("Op = %q, want %q", de.Op, "LLM.Chat")
	}
}

func TestWrapOp(t *testing.T) {
	assert.Nil(t, WrapOp("op", nil))

	err := WrapOp("settings.Load", ErrSettingsStore)
	assert.EqualError(t, err, "settings.Load: settings store operation failed")
	assert.ErrorIs(t, err, ErrSettingsStore)
}

func TestGenerationFailedKeepsCause(t *testing.T) {
	err := fmt.Errorf("%w: %w", ErrGenerationFailed, ErrRateLimit)
	assert.ErrorIs(t, err, ErrGenerationFailed)
	assert.ErrorIs(t, err, ErrProviderError)
	assert.ErrorIs(t, err, ErrRateLimit)
	assert.Equal(t, CodeGenerationFailed, ErrorCodeOf(err))
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, IsRetryableError(fmt.Errorf("x: %w", ErrRateLimit)))
	assert.True(t, IsRetryableError(ErrProviderUnavailable))
	assert.False(t, IsRetryableError(ErrAuthInvalid))
	assert.False(t, IsRetryableError(ErrOutputShape))
}

// --- ErrorCode tests ---

func TestErrorCodeOf_DirectSentinel(t *testing.T) {
	assert.Equal(t, CodeValidation, ErrorCodeOf(ErrValidation))
	assert.Equal(t, CodeOutputShape, ErrorCodeOf(ErrOutputShape))
	assert.Equal(t, CodeRateLimit, ErrorCodeOf(ErrRateLimit))
	assert.Equal(t, CodeContainerNotFound, ErrorCodeOf(ErrContainerNotFound))
}

func TestErrorCodeOf_DomainError(t *testing.T) {
	err := NewDomainError("flow.runChatbot", ErrValidation, "history[0].role")
	assert.Equal(t, CodeValidation, ErrorCodeOf(err))

	var de *DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, CodeValidation, de.Code())
}

func TestErrorCodeOf_WrappedError(t *testing.T) {
	err := fmt.Errorf("gateway: %w", ErrOutputShape)
	assert.Equal(t, CodeOutputShape, ErrorCodeOf(err))
}

func TestErrorCodeOf_CategoryFallback(t *testing.T) {
	err := fmt.Errorf("lookup: %w", ErrNotFound)
	assert.Equal(t, CodeNotFound, ErrorCodeOf(err))
}

func TestErrorCodeOf_Unknown(t *testing.T) {
	assert.Equal(t, CodeUnknown, ErrorCodeOf(nil))
	assert.Equal(t, CodeUnknown, ErrorCodeOf(errors.New("boom")))
}
