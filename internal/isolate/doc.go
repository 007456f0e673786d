/*
Package isolate hosts scripts in a goja VM wired to the op bridge.

An Isolate owns one VM, one executor loop and one ops.State. It installs a
global `core` object with the host half of the bridge:

	core.ops()                          name -> op id map
	core.dispatch(opId, control, buf?)  sync response bytes, or null when async
	core.setAsyncHandler(opId, fn)      receives async response bytes
	core.encode(str) / core.decode(u8)  UTF-8 helpers
	core.print(msg, isErr)              console sink
	core.decodeBase64(str)              binary op results

An embedded prelude then builds core.jsonOpSync, core.jsonOpAsync, console,
timers and the Deno global on top of it.

All VM access happens on the goroutine that calls Execute: the script runs
first, then the loop delivers async responses into the registered handlers
until no ref'ed work remains.

Example Usage:

	iso, err := isolate.New(isolate.WithTimeout(30 * time.Second))
	if err != nil {
		return err
	}
	defer iso.Close()

	value, err := iso.Execute(ctx, "main.js", source)
*/
package isolate
