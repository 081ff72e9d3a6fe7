// Package selectspawn implements the "first of N wins" cooperative
// cancellation combinator used by every service's run loop: race an
// indefinite wait-disabled signal against one or more worker functions,
// propagate the worker's error if it finishes first, and otherwise cancel
// the workers via context and wait for them to unwind (dropping their
// peripheral handles) before returning.
package selectspawn

import "context"

// Race runs waitDisabled and each worker concurrently. waitDisabled is
// called with a context that is cancelled as soon as any worker returns;
// each worker is called with a context that is cancelled as soon as
// waitDisabled returns. Whichever side finishes first determines the
// result:
//   - if a worker returns (with or without error) before waitDisabled does,
//     Race cancels waitDisabled's context and returns that worker's error;
//   - if waitDisabled returns first, Race cancels every worker's context,
//     waits for all of them to unwind, and returns nil.
//
// Race always waits for every worker goroutine to exit before returning, so
// that a worker's deferred peripheral release has completed by the time the
// caller proceeds.
func Race(ctx context.Context, waitDisabled func(context.Context), workers ...func(context.Context) error) error {
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	disabledCtx, cancelDisabled := context.WithCancel(ctx)
	defer cancelDisabled()

	type result struct {
		err error
	}

	resultCh := make(chan result, len(workers))
	for _, w := range workers {
		w := w
		go func() {
			resultCh <- result{err: w(workerCtx)}
		}()
	}

	disabledCh := make(chan struct{})
	go func() {
		waitDisabled(disabledCtx)
		close(disabledCh)
	}()

	var finalErr error
	remaining := len(workers)

	select {
	case res := <-resultCh:
		finalErr = res.err
		remaining--
		cancelDisabled()
	case <-disabledCh:
		cancelWorkers()
	}

	// Drain whichever side didn't win, so every worker has unwound (and
	// released its peripheral) before Race returns.
	for remaining > 0 {
		<-resultCh
		remaining--
	}
	<-disabledCh

	return finalErr
}
