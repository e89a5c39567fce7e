// Package actor carries the id of the principal performing a change, so the
// engines can stamp created_by and updated_by without knowing about tokens.
package actor

import "context"

// System is recorded for changes that no principal requested, such as
// catalog events.
const System = "system"

type ctxKey struct{}

func With(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// From returns the principal stored in ctx, or System.
func From(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok && id != "" {
		return id
	}
	return System
}
