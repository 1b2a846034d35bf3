package sandbox

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/caffeineduck/quickhub/protocol"
	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"go.uber.org/zap"
)

// runtime wraps the loop's goja VM. Every method except interrupt must be
// called from a loop job.
type runtime struct {
	vm     *goja.Runtime
	loop   *eventloop.EventLoop
	emit   func(protocol.Event)
	quit   <-chan struct{}
	mirror io.Writer
	logger *zap.Logger

	// Captured at setup so user code that reassigns the globals cannot
	// break result serialization.
	stringify goja.Callable
	toString  goja.Callable
}

func newRuntime(vm *goja.Runtime, loop *eventloop.EventLoop, cfg config, emit func(protocol.Event), quit <-chan struct{}) (*runtime, error) {
	r := &runtime{
		vm:     vm,
		loop:   loop,
		emit:   emit,
		quit:   quit,
		mirror: cfg.mirror,
		logger: cfg.logger,
	}

	if cfg.maxCallStack > 0 {
		r.vm.SetMaxCallStackSize(cfg.maxCallStack)
	}

	if err := r.setupGlobals(); err != nil {
		return nil, err
	}
	return r, nil
}

// setupGlobals configures global objects and security
func (r *runtime) setupGlobals() error {
	// Remove dangerous globals. The loop enables require by default.
	for _, name := range []string{"require", "process", "module", "exports"} {
		if err := r.vm.Set(name, goja.Undefined()); err != nil {
			return fmt.Errorf("clear global %s: %w", name, err)
		}
	}

	stringify, ok := goja.AssertFunction(r.vm.Get("JSON").ToObject(r.vm).Get("stringify"))
	if !ok {
		return errors.New("JSON.stringify unavailable")
	}
	toString, ok := goja.AssertFunction(r.vm.Get("String"))
	if !ok {
		return errors.New("String unavailable")
	}
	r.stringify, r.toString = stringify, toString

	console := r.vm.NewObject()
	levels := map[string]protocol.Level{
		"log":   protocol.LevelInfo,
		"info":  protocol.LevelInfo,
		"debug": protocol.LevelInfo,
		"warn":  protocol.LevelWarn,
		"error": protocol.LevelError,
	}
	for name, level := range levels {
		if err := console.Set(name, r.makeConsoleFunc(level)); err != nil {
			return fmt.Errorf("install console.%s: %w", name, err)
		}
	}
	if err := r.vm.Set("console", console); err != nil {
		return fmt.Errorf("install console: %w", err)
	}

	return r.setupTimers()
}

// setupTimers replaces the loop's timer globals. The loop's own versions
// drop exceptions thrown by callbacks; these report them as uncaught errors.
// Scheduling and cancellation stay with the loop.
func (r *runtime) setupTimers() error {
	globals := map[string]func(goja.FunctionCall) goja.Value{
		"setTimeout":     func(call goja.FunctionCall) goja.Value { return r.schedule(call, true, false) },
		"setInterval":    func(call goja.FunctionCall) goja.Value { return r.schedule(call, true, true) },
		"setImmediate":   func(call goja.FunctionCall) goja.Value { return r.schedule(call, false, false) },
		"clearTimeout":   r.clearTimer,
		"clearInterval":  r.clearTimer,
		"clearImmediate": r.clearTimer,
	}
	for name, fn := range globals {
		if err := r.vm.Set(name, fn); err != nil {
			return fmt.Errorf("install %s: %w", name, err)
		}
	}
	if _, err := r.vm.RunString(microtaskShim); err != nil {
		return fmt.Errorf("install queueMicrotask: %w", err)
	}
	return nil
}

// A resolved promise's reaction runs from goja's job queue, which drains
// before control returns to the loop.
const microtaskShim = `globalThis.queueMicrotask = function(cb) {
	if (typeof cb !== "function") throw new TypeError("callback must be a function");
	Promise.resolve().then(cb);
};`

func (r *runtime) schedule(call goja.FunctionCall, hasDelay, repeat bool) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(r.vm.NewTypeError("callback must be a function"))
	}

	var delay time.Duration
	first := 1
	if hasDelay {
		delay = max(time.Duration(call.Argument(1).ToInteger())*time.Millisecond, 0)
		first = 2
	}
	var args []goja.Value
	if len(call.Arguments) > first {
		args = append(args, call.Arguments[first:]...)
	}

	cb := func(*goja.Runtime) { r.fire(fn, args) }
	if repeat {
		// A zero period would spin the loop.
		return r.vm.ToValue(r.loop.SetInterval(cb, max(delay, time.Millisecond)))
	}
	return r.vm.ToValue(r.loop.SetTimeout(cb, delay))
}

func (r *runtime) fire(fn goja.Callable, args []goja.Value) {
	if r.stopping() {
		return
	}
	if _, err := fn(goja.Undefined(), args...); err != nil {
		r.emit(protocol.LogMessage{Level: protocol.LevelError, Text: "Uncaught " + r.errorText(err)})
	}
}

func (r *runtime) clearTimer(call goja.FunctionCall) goja.Value {
	switch t := call.Argument(0).Export().(type) {
	case *eventloop.Timer:
		r.loop.ClearTimeout(t)
	case *eventloop.Interval:
		r.loop.ClearInterval(t)
	}
	return goja.Undefined()
}

// makeConsoleFunc creates a console function that forwards to the host.
func (r *runtime) makeConsoleFunc(level protocol.Level) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			if goja.IsString(arg) {
				parts[i] = arg.String()
				continue
			}
			parts[i] = r.serialize(arg)
		}
		text := strings.Join(parts, " ")

		r.emit(protocol.LogMessage{Level: level, Text: text})
		if r.mirror != nil {
			fmt.Fprintln(r.mirror, text)
		}
		return goja.Undefined()
	}
}

// wrapCode turns source into an immediately invoked async function so that
// return and await are legal at the top level.
func wrapCode(code string) string {
	return "(async function(){\n" + code + "\n})()"
}

// stopping reports whether the frame is closing. Queued scripts and timer
// callbacks are skipped once it is.
func (r *runtime) stopping() bool {
	select {
	case <-r.quit:
		return true
	default:
		return false
	}
}

// execute runs code and emits exactly one result for id.
func (r *runtime) execute(id, code string) {
	if r.stopping() {
		return
	}
	val, err := r.vm.RunString(wrapCode(code))
	if err != nil {
		r.emit(protocol.Err(id, r.errorText(err)))
		return
	}

	promise, ok := val.Export().(*goja.Promise)
	if !ok {
		r.emit(protocol.Ok(id, r.serialize(val)))
		return
	}

	switch promise.State() {
	case goja.PromiseStateFulfilled:
		r.emit(protocol.Ok(id, r.serialize(promise.Result())))
	case goja.PromiseStateRejected:
		r.emit(protocol.Err(id, r.text(promise.Result())))
	default:
		r.settleLater(id, val)
	}
}

// settleLater attaches handlers to a pending promise. They run from goja's
// job queue once a later loop job, usually a timer callback, resolves it.
func (r *runtime) settleLater(id string, val goja.Value) {
	obj := val.ToObject(r.vm)
	then, ok := goja.AssertFunction(obj.Get("then"))
	if !ok {
		r.emit(protocol.Err(id, "result is not thenable"))
		return
	}

	onFulfilled := func(call goja.FunctionCall) goja.Value {
		r.emit(protocol.Ok(id, r.serialize(call.Argument(0))))
		return goja.Undefined()
	}
	onRejected := func(call goja.FunctionCall) goja.Value {
		r.emit(protocol.Err(id, r.text(call.Argument(0))))
		return goja.Undefined()
	}

	if _, err := then(obj, r.vm.ToValue(onFulfilled), r.vm.ToValue(onRejected)); err != nil {
		r.emit(protocol.Err(id, r.errorText(err)))
	}
}

// serialize renders a value as JSON, falling back to its string form when
// JSON.stringify throws or produces nothing.
func (r *runtime) serialize(v goja.Value) string {
	if v == nil {
		return "undefined"
	}
	out, err := r.stringify(goja.Undefined(), v)
	if err != nil || out == nil || goja.IsUndefined(out) {
		return r.text(v)
	}
	return out.String()
}

// text is String(v) that never panics.
func (r *runtime) text(v goja.Value) string {
	if v == nil {
		return "undefined"
	}
	out, err := r.toString(goja.Undefined(), v)
	if err != nil {
		r.logger.Debug("String() conversion failed", zap.Error(err))
		return "[unprintable value]"
	}
	return out.String()
}

// stackOverflowText matches what browsers report for runaway recursion.
const stackOverflowText = "RangeError: Maximum call stack size exceeded"

func (r *runtime) errorText(err error) string {
	var overflow *goja.StackOverflowError
	if errors.As(err, &overflow) {
		return stackOverflowText
	}
	var ex *goja.Exception
	if errors.As(err, &ex) && ex.Value() != nil {
		return r.text(ex.Value())
	}
	return err.Error()
}

// interrupt aborts the running script. Safe to call from any goroutine.
func (r *runtime) interrupt(reason string) {
	r.vm.Interrupt(reason)
}
