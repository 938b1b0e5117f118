package domain

import (
	"context"
	"testing"
)

func TestRunIDContext(t *testing.T) {
	if got := RunIDFromContext(context.Background()); got != "" {
		t.Errorf("empty context RunID = %q", got)
	}
	ctx := ContextWithRunID(context.Background(), "01J0RUN")
	if got := RunIDFromContext(ctx); got != "01J0RUN" {
		t.Errorf("RunID = %q, want %q", got, "01J0RUN")
	}
}
