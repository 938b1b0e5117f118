package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Subsystem-specific sentinels below wrap these so callers
// can match either the precise cause or its category with errors.Is.
var (
	ErrNotFound      = fmt.Errorf("not found")
	ErrInvalidInput  = fmt.Errorf("invalid input")
	ErrProviderError = fmt.Errorf("provider error")
	ErrTimeout       = fmt.Errorf("operation timed out")
)

// Sentinel errors for the domain layer.
var (
	// Flow errors. ErrValidation is returned before any provider call is made.
	ErrValidation       = fmt.Errorf("validation failed: %w", ErrInvalidInput)
	ErrGenerationFailed = fmt.Errorf("generation failed: %w", ErrProviderError)
	ErrOutputShape      = fmt.Errorf("model output does not match declared shape")

	ErrProviderNotFound    = fmt.Errorf("llm provider not found")
	ErrProviderUnavailable = fmt.Errorf("llm provider unavailable")
	ErrToolNotFound        = fmt.Errorf("tool not found")
	ErrFlowNotFound        = fmt.Errorf("flow: %w", ErrNotFound)
	ErrMaxIterations       = fmt.Errorf("orchestration reached max iterations")
	ErrConfigLoad          = fmt.Errorf("failed to load configuration")
	ErrEncryption          = fmt.Errorf("encryption operation failed")
	ErrDecryption          = fmt.Errorf("decryption failed")
	ErrSettingsStore       = fmt.Errorf("settings store operation failed")

	// Board errors.
	ErrContainerNotFound = fmt.Errorf("container: %w", ErrNotFound)
	ErrBoardItemNotFound = fmt.Errorf("board item: %w", ErrNotFound)
	ErrContainerExists   = fmt.Errorf("container already exists")

	// Gateway / RPC errors.
	ErrGatewayAuthFailed = fmt.Errorf("gateway: %w", ErrAuthInvalid)
	ErrRPCMethodNotFound = fmt.Errorf("rpc method not found")
	ErrRPCInvalidPayload = fmt.Errorf("rpc payload invalid")

	// Provider resilience errors.
	ErrContextOverflow = fmt.Errorf("context window exceeded")
	ErrRateLimit       = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid     = fmt.Errorf("authentication failed")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "flow.createChatbot")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient provider error.
// Flows never retry on their own; this is used by failover and metrics.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrProviderUnavailable)
}

// ErrorCode is a machine-parseable error category for API clients and metrics.
type ErrorCode string

const (
	CodeUnknown             ErrorCode = "UNKNOWN"
	CodeValidation          ErrorCode = "VALIDATION"
	CodeGenerationFailed    ErrorCode = "GENERATION_FAILED"
	CodeOutputShape         ErrorCode = "OUTPUT_SHAPE"
	CodeProviderNotFound    ErrorCode = "PROVIDER_NOT_FOUND"
	CodeProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	CodeToolNotFound        ErrorCode = "TOOL_NOT_FOUND"
	CodeFlowNotFound        ErrorCode = "FLOW_NOT_FOUND"
	CodeMaxIterations       ErrorCode = "MAX_ITERATIONS"
	CodeConfigLoad          ErrorCode = "CONFIG_LOAD"
	CodeEncryption          ErrorCode = "ENCRYPTION"
	CodeDecryption          ErrorCode = "DECRYPTION"
	CodeSettingsStore       ErrorCode = "SETTINGS_STORE"
	CodeContainerNotFound   ErrorCode = "CONTAINER_NOT_FOUND"
	CodeBoardItemNotFound   ErrorCode = "BOARD_ITEM_NOT_FOUND"
	CodeContainerExists     ErrorCode = "CONTAINER_EXISTS"
	CodeGatewayAuth         ErrorCode = "GATEWAY_AUTH"
	CodeRPCMethodNotFound   ErrorCode = "RPC_METHOD_NOT_FOUND"
	CodeRPCInvalidPayload   ErrorCode = "RPC_INVALID_PAYLOAD"
	CodeContextOverflow     ErrorCode = "CONTEXT_OVERFLOW"
	CodeRateLimit           ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid         ErrorCode = "AUTH_INVALID"

	// Category fallback codes.
	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeInvalidInput  ErrorCode = "INVALID_INPUT"
	CodeProviderError ErrorCode = "PROVIDER_ERROR"
	CodeTimeout       ErrorCode = "TIMEOUT"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrValidation:          CodeValidation,
	ErrGenerationFailed:    CodeGenerationFailed,
	ErrOutputShape:         CodeOutputShape,
	ErrProviderNotFound:    CodeProviderNotFound,
	ErrProviderUnavailable: CodeProviderUnavailable,
	ErrToolNotFound:        CodeToolNotFound,
	ErrFlowNotFound:        CodeFlowNotFound,
	ErrMaxIterations:       CodeMaxIterations,
	ErrConfigLoad:          CodeConfigLoad,
	ErrEncryption:          CodeEncryption,
	ErrDecryption:          CodeDecryption,
	ErrSettingsStore:       CodeSettingsStore,
	ErrContainerNotFound:   CodeContainerNotFound,
	ErrBoardItemNotFound:   CodeBoardItemNotFound,
	ErrContainerExists:     CodeContainerExists,
	ErrGatewayAuthFailed:   CodeGatewayAuth,
	ErrRPCMethodNotFound:   CodeRPCMethodNotFound,
	ErrRPCInvalidPayload:   CodeRPCInvalidPayload,
	ErrContextOverflow:     CodeContextOverflow,
	ErrRateLimit:           CodeRateLimit,
	ErrAuthInvalid:         CodeAuthInvalid,
}

// categoryCodes is consulted after errorCodeMap so specific codes win.
var categoryCodes = []struct {
	err  error
	code ErrorCode
}{
	{ErrNotFound, CodeNotFound},
	{ErrInvalidInput, CodeInvalidInput},
	{ErrProviderError, CodeProviderError},
	{ErrTimeout, CodeTimeout},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// Specific sentinels are preferred over their categories.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	// Generation failures wrap the provider cause; report the outer class.
	if errors.Is(err, ErrGenerationFailed) {
		return CodeGenerationFailed
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	for _, c := range categoryCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	return ErrorCodeOf(e.Err)
}
