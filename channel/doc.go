// Package channel is the host side of the sandboxed execution channel.
//
// A Channel owns at most one isolate (an in-process sandbox.Frame or a
// child sandbox.Process), tracks its lifecycle and correlates execution
// requests with their results:
//
//	ch := channel.New(func() (channel.Isolate, error) {
//		return sandbox.NewFrame(), nil
//	}, channel.WithRenderer(log))
//	defer ch.Close()
//
//	res, err := ch.Run(ctx, `return 1 + 1;`)
//
// Submissions made before the isolate reports ready are deferred and
// retried at a fixed interval. The number of retries is bounded and
// exhaustion yields ErrNotReady.
package channel
