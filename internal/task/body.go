package task

import "context"

// Body is the single polymorphic entry point the worker pool calls to execute
// a task, regardless of whether the underlying work is synchronous or
// asynchronous.
type Body interface {
	Run(ctx context.Context) (any, error)
}

// Func is a synchronous task body. It occupies a worker for its whole
// duration.
type Func func(ctx context.Context) (any, error)

// Run implements Body.
func (f Func) Run(ctx context.Context) (any, error) {
	return f(ctx)
}

// Result is the resolution of an asynchronous task body.
type Result struct {
	Value any
	Err   error
}

// AsyncFunc is an asynchronous task body: it starts work and returns a
// channel that later resolves to a Result. The worker blocks on the channel
// but honors cancellation while waiting.
type AsyncFunc func(ctx context.Context) <-chan Result

// Run implements Body.
func (f AsyncFunc) Run(ctx context.Context) (any, error) {
	ch := f(ctx)
	select {
	case res, ok := <-ch:
		if !ok {
			return nil, context.Canceled
		}
		return res.Value, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
