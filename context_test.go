package scriptbus

import (
	"context"
	"testing"
)

func TestContextSender(t *testing.T) {
	ctx := withContextSender(context.Background(), ":1.42")

	got, ok := ContextSender(ctx)
	if !ok {
		t.Fatal("sender not found in context")
	}
	if got != ":1.42" {
		t.Fatalf("wrong sender, got %q want %q", got, ":1.42")
	}

	got, ok = ContextSender(context.Background())
	if ok {
		t.Fatalf("got sender %q from context with no sender", got)
	}
	got, ok = ContextSender(withContextSender(context.Background(), ""))
	if ok {
		t.Fatalf("got sender %q from context with empty sender", got)
	}
}
