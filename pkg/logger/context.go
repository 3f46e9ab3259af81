package logger

import (
	"context"

	"go.uber.org/zap"
)

type traceIDKey struct{}

// WithTraceID 把追踪 ID 写入 ctx
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey{}).(string)
	return id
}

// Ctx 为 l 追加 ctx 中的 trace_id，没有时原样返回
func Ctx(ctx context.Context, l *zap.Logger) *zap.Logger {
	if id := TraceID(ctx); id != "" {
		return l.With(zap.String("trace_id", id))
	}
	return l
}
