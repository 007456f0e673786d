package isolate

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/codec"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/dispatch"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/infrastructure/monitoring"
)

func (i *Isolate) installCore() error {
	core := i.vm.NewObject()
	bindings := map[string]func(goja.FunctionCall) goja.Value{
		"ops":             i.coreOps,
		"dispatch":        i.coreDispatch,
		"setAsyncHandler": i.coreSetAsyncHandler,
		"encode":          i.coreEncode,
		"decode":          i.coreDecode,
		"print":           i.corePrint,
		"decodeBase64":    i.coreDecodeBase64,
	}
	for name, fn := range bindings {
		if err := core.Set(name, fn); err != nil {
			return err
		}
	}
	return i.vm.Set("core", core)
}

func (i *Isolate) coreOps(goja.FunctionCall) goja.Value {
	obj := i.vm.NewObject()
	for name, id := range i.reg.Names() {
		obj.Set(name, id)
	}
	return obj
}

func (i *Isolate) coreDispatch(call goja.FunctionCall) goja.Value {
	id := uint32(call.Argument(0).ToInteger())
	control, err := i.bytesArg(call.Argument(1))
	if err != nil {
		panic(i.vm.NewTypeError("dispatch: control: %v", err))
	}
	var zeroCopy []byte
	if arg := call.Argument(2); !goja.IsUndefined(arg) && !goja.IsNull(arg) {
		if zeroCopy, err = i.bytesArg(arg); err != nil {
			panic(i.vm.NewTypeError("dispatch: zeroCopy: %v", err))
		}
	}

	// Handlers may keep buffers past this call; script memory must not
	// change under them.
	control = bytes.Clone(control)
	zeroCopy = bytes.Clone(zeroCopy)

	name, _ := i.reg.Name(id)
	timer := monitoring.NewTimer(i.metrics, name)

	op, err := i.reg.Dispatch(i.state, id, control, zeroCopy)
	if err != nil {
		panic(i.vm.NewTypeError(err.Error()))
	}

	i.counters.dispatched(op.Mode, len(control), len(zeroCopy))
	if i.metrics != nil {
		i.metrics.RecordDispatch(name, op.Mode.String())
	}

	if !op.IsAsync() {
		i.counters.completed(op.Mode, len(op.Buf))
		timer.Stop(outcome(op.Buf), len(op.Buf))
		return i.bytesValue(op.Buf)
	}

	mode := op.Mode
	i.loop.Spawn(op.Future, mode == dispatch.ModeAsyncUnref, func(buf []byte) {
		i.deliver(id, mode, timer, buf)
	})
	return goja.Null()
}

// deliver runs on the loop goroutine.
func (i *Isolate) deliver(id uint32, mode dispatch.Mode, timer *monitoring.Timer, buf []byte) {
	i.counters.completed(mode, len(buf))
	timer.Stop(outcome(buf), len(buf))

	handler, ok := i.handlers[id]
	if !ok {
		i.fail(fmt.Errorf("isolate: no async handler registered for op %d", id))
		return
	}
	if _, err := handler(goja.Undefined(), i.bytesValue(buf)); err != nil {
		i.fail(i.scriptErr(i.ctx, "", err))
		return
	}
	if err := i.checkRejections(); err != nil {
		i.fail(err)
	}
}

func (i *Isolate) coreSetAsyncHandler(call goja.FunctionCall) goja.Value {
	id := uint32(call.Argument(0).ToInteger())
	fn, ok := goja.AssertFunction(call.Argument(1))
	if !ok {
		panic(i.vm.NewTypeError("setAsyncHandler: handler must be a function"))
	}
	i.handlers[id] = fn
	return goja.Undefined()
}

func (i *Isolate) coreEncode(call goja.FunctionCall) goja.Value {
	return i.bytesValue([]byte(call.Argument(0).String()))
}

func (i *Isolate) coreDecode(call goja.FunctionCall) goja.Value {
	b, err := i.bytesArg(call.Argument(0))
	if err != nil {
		panic(i.vm.NewTypeError("decode: %v", err))
	}
	return i.vm.ToValue(string(b))
}

func (i *Isolate) corePrint(call goja.FunctionCall) goja.Value {
	w := i.stdout
	if call.Argument(1).ToBoolean() {
		w = i.stderr
	}
	io.WriteString(w, call.Argument(0).String())
	return goja.Undefined()
}

func (i *Isolate) coreDecodeBase64(call goja.FunctionCall) goja.Value {
	arg := call.Argument(0)
	if goja.IsNull(arg) || goja.IsUndefined(arg) {
		return i.bytesValue(nil)
	}
	b, err := base64.StdEncoding.DecodeString(arg.String())
	if err != nil {
		panic(i.vm.NewTypeError("decodeBase64: %v", err))
	}
	return i.bytesValue(b)
}

// bytesArg accepts a Uint8Array, an ArrayBuffer or a string.
func (i *Isolate) bytesArg(v goja.Value) ([]byte, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, fmt.Errorf("expected Uint8Array, got %v", v)
	}
	switch x := v.Export().(type) {
	case []byte:
		return x, nil
	case goja.ArrayBuffer:
		return x.Bytes(), nil
	case string:
		return []byte(x), nil
	default:
		return nil, fmt.Errorf("expected Uint8Array, got %T", x)
	}
}

func (i *Isolate) bytesValue(b []byte) goja.Value {
	if b == nil {
		b = []byte{}
	}
	u8, err := i.vm.New(i.vm.Get("Uint8Array"), i.vm.ToValue(i.vm.NewArrayBuffer(b)))
	if err != nil {
		panic(i.vm.NewGoError(err))
	}
	return u8
}

func outcome(buf []byte) string {
	if codec.IsErr(buf) {
		return "err"
	}
	return "ok"
}
