package ctxutil

import "context"

// Default returns context.Background() when ctx is nil.
func Default(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// Detach keeps ctx's values (trace and request ids) but drops its deadline and
// cancellation, for work that must outlive the request that started it.
func Detach(ctx context.Context) context.Context {
	return context.WithoutCancel(Default(ctx))
}
