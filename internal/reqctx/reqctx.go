// Package reqctx carries the request id from the HTTP layer into services and
// the background work they start.
package reqctx

import "context"

type ridKey struct{}

func WithRID(ctx context.Context, rid string) context.Context {
	if rid == "" {
		return ctx
	}
	return context.WithValue(ctx, ridKey{}, rid)
}

func RID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	rid, _ := ctx.Value(ridKey{}).(string)
	return rid
}
