/*
Package sandbox provides the isolated execution context for the scratch
console.

# Overview

An isolated context is a goja JavaScript runtime owned by a goja_nodejs
event loop. Scripts, timer callbacks and outbound events all run as jobs on
that loop. The host never touches the runtime directly; it posts
[protocol.HostMessage] values in and reads [protocol.ContextMessage] values
out, the same way a page talks to a sandboxed iframe with postMessage.

Each context:

  - strips host-ish globals (require, process, module, exports)
  - intercepts console.log/info/debug/warn/error and turns every call into a
    log message for the host
  - provides setTimeout, setInterval, setImmediate, their clear functions
    and queueMicrotask; exceptions thrown from timer callbacks are reported
    as "Uncaught ..." error logs
  - wraps submitted code as the body of an async function, so top-level
    await and return work

Globals persist between executions in the same context. Two executions
posted back to back share that state and may interleave once either of them
awaits.

# Transports

[Frame] runs the context in-process. [Process] runs it in a child process
that speaks newline-delimited JSON over stdin/stdout; the child side is
[Serve]. Both satisfy the same small interface the host channel consumes:

	frame := sandbox.NewFrame()
	if err := frame.Start(); err != nil {
		return err
	}
	defer frame.Close()

	for msg := range frame.Messages() {
		// first message is {"type":"ready"}
	}

# Limits

There are no execution time limits. A script that never yields blocks its
context until [Frame.Close] interrupts it. Recursion is bounded by
[WithMaxCallStackSize]; exceeding it fails the execution with
"RangeError: Maximum call stack size exceeded".
*/
package sandbox
