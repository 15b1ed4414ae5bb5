package scriptbus

import (
	"context"
)

type senderContextKey struct{}

func withContextSender(ctx context.Context, sender string) context.Context {
	return context.WithValue(ctx, senderContextKey{}, sender)
}

// ContextSender returns the bus name of the peer that sent the method
// call being handled, for use in a [HandlerFunc].
func ContextSender(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(senderContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
