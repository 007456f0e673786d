/*
Package dispatch adapts native op handlers to the host channel.

# Overview

A script calls an op by handing the host channel a control buffer (JSON
request envelope) and an optional zero-copy binary segment. JSON wraps a
Handler into an OpFunc that:

 1. Extracts the promiseId. A malformed envelope is answered synchronously
    with an error and a null promiseId.
 2. Invokes the handler with the execution context, the raw args and the
    zero-copy segment.
 3. On handler error, answers on the channel the caller chose: synchronously
    without a promiseId, through an already settled future with one.
 4. On Immediate, answers synchronously.
 5. On Deferred/DeferredUnref, attaches an encoding continuation and hands
    the future to the host, tagged ref or unref.

# Synchronicity Contract

Handlers declare synchronicity by the Outcome they return. Returning
Immediate for a call that carried a promiseId (or a Deferred outcome for one
that did not) is a bug in the handler. In strict mode (the default) the
adapter panics with a *ContractViolation; otherwise it logs the violation
and answers with an Internal error on the channel the caller expects.

# Blocking Work

Blocking lets a handler run work inline (sync calls) or on the executor's
worker pool (async calls). A panic on the pool breaks the future with a
future.BrokenPromise; the adapter passes it through untouched so no response
is produced and the executor sees the fault.
*/
package dispatch
