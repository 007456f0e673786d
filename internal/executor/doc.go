/*
Package executor drives pending op futures on a single cooperative goroutine
and runs blocking work on a bounded worker pool.

# Execution Model

  - Run executes every queued task on the calling goroutine, one at a time.
    Script engines that are not goroutine safe (goja) are only touched from
    tasks.
  - Submit enqueues a task from any goroutine. The queue is unbounded so a
    worker finishing blocking work never waits on the loop.
  - Spawn tracks a pending response future as ref (keeps Run alive) or unref
    (does not). When the future settles its delivery is queued as a task.
  - SpawnBlocking runs work on the pool. A panic becomes a broken future.

# Faults

A future settled with *future.BrokenPromise is never delivered. The loop logs
it, counts it and reports it to the fault hook; with fail-fast enabled Run
returns it.

# Usage Example

	loop := executor.New(executor.WithLogger(logger))
	loop.Submit(func() {
		loop.Spawn(op.Future, false, deliver)
	})
	if err := loop.Run(ctx); err != nil {
		logger.Error("loop stopped", zap.Error(err))
	}
*/
package executor
