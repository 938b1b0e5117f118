package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"agentverse/internal/domain"
	"agentverse/internal/infra/tracer"
)

// Execute parses rawParams into P, runs handler inside a span named op and
// converts what it returns into a ToolResult. Handler errors never escape:
// the coordinator model sees them as an error result and decides what to do.
//
// Return values map as follows: *domain.ToolResult is passed through, a
// string becomes plain text, anything else is rendered as indented JSON.
func Execute[P any](
	ctx context.Context,
	op string,
	logger *slog.Logger,
	rawParams json.RawMessage,
	handler func(ctx context.Context, span trace.Span, params P) (any, error),
) (*domain.ToolResult, error) {
	ctx, span := tracer.StartSpan(ctx, op,
		trace.WithAttributes(
			tracer.StringAttr("tool.op", op),
			tracer.StringAttr("tool.run_id", domain.RunIDFromContext(ctx)),
		),
	)
	defer span.End()

	p, bad := ParseParams[P](rawParams)
	if bad != nil {
		tracer.RecordError(span, errors.New(bad.Content))
		return bad, nil
	}

	result, err := handler(ctx, span, p)
	if err == nil {
		return formatResult(span, result)
	}

	tracer.RecordError(span, err)
	logger.WarnContext(ctx, "tool call failed",
		"op", op,
		"code", string(domain.ErrorCodeOf(err)),
		"error", err,
	)
	msg := "Error: " + err.Error()
	if domain.IsRetryableError(err) {
		msg += " (temporary, the same call may succeed later)"
	}
	return &domain.ToolResult{IsError: true, Content: msg}, nil
}

// formatResult converts the handler's return value into a ToolResult.
func formatResult(span trace.Span, result any) (*domain.ToolResult, error) {
	switch v := result.(type) {
	case *domain.ToolResult:
		if v.IsError {
			tracer.RecordError(span, errors.New(v.Content))
		} else {
			tracer.SetOK(span)
		}
		return v, nil
	case string:
		tracer.SetOK(span)
		return TextResult(v), nil
	default:
		res, err := JSONResult(result)
		if err != nil {
			tracer.RecordError(span, err)
			return &domain.ToolResult{
				IsError: true,
				Content: fmt.Sprintf("failed to format response: %v", err),
			}, nil
		}
		tracer.SetOK(span)
		return res, nil
	}
}

// ParseParams unmarshals rawParams into P. A decode failure comes back as an
// error result the caller can hand straight to the model.
func ParseParams[P any](rawParams json.RawMessage) (P, *domain.ToolResult) {
	var p P
	if err := json.Unmarshal(rawParams, &p); err != nil {
		return p, &domain.ToolResult{
			IsError: true,
			Content: fmt.Sprintf("invalid params: %v", err),
		}
	}
	return p, nil
}

// ErrResult is an in-band failure. Nothing is logged.
func ErrResult(format string, args ...any) *domain.ToolResult {
	return &domain.ToolResult{
		IsError: true,
		Content: fmt.Sprintf(format, args...),
	}
}

// JSONResult marshals v as indented JSON into a success ToolResult.
func JSONResult(v any) (*domain.ToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &domain.ToolResult{Content: string(data)}, nil
}

// TextResult wraps s as a successful result.
func TextResult(s string) *domain.ToolResult {
	return &domain.ToolResult{Content: s}
}
