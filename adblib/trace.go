package adblib

import (
	"context"
	"log/slog"
	"os"
	"reflect"
	"strconv"

	"github.com/adbview/adbview/adblib/adbfb"
	"github.com/adbview/adbview/adblib/adbsync"
)

var debug *slog.Logger

func init() {
	if v, _ := strconv.ParseBool(os.Getenv("ADBVIEW_TRACE")); v {
		Trace(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	} else {
		debug = slog.New(slog.DiscardHandler)
	}
}

// Trace enables debug logging to the specified logger, including for the
// sync and framebuffer clients.
func Trace(logger *slog.Logger) {
	debug = logger
	adbsync.Trace(logger.With("component", "adbsync"))
	adbfb.Trace(logger.With("component", "adbfb"))
}

// ClientTrace is a set of hooks to run at various points while a Client
// performs an operation. Any particular hook may be nil. Functions may be
// called concurrently from different goroutines. They should avoid blocking
// for extended periods of time.
//
// These hooks should not be used for important logic. They are intended for
// debugging and metrics.
type ClientTrace struct {
	// DevicesListed is called after the device list is loaded from the server.
	DevicesListed func(devs []Device)

	// DeviceResolved is called after a selector is resolved to a device.
	DeviceResolved func(sel string, dev Device)

	// ResolveFailed is called when a selector cannot be resolved.
	ResolveFailed func(sel string, err error)

	// OperationStart is called before an operation is sent to a device.
	OperationStart func(op, serial, path string)

	// OperationDone is called after an operation completes. For content, this
	// is called once the stream is opened.
	OperationDone func(op, serial, path string, err error)
}

type clientTraceKey struct{}

func contextClientTrace(ctx context.Context) *ClientTrace {
	if t := ctx.Value(clientTraceKey{}); t != nil {
		return t.(*ClientTrace)
	}
	return nil
}

// WithClientTrace returns a new context based on the provided parent ctx. When
// the returned context is used with a Client, the provided trace hooks will be
// used, in addition to any previous hooks registered with ctx. Any hooks
// defined in the provided trace will be called first.
func WithClientTrace(ctx context.Context, trace *ClientTrace) context.Context {
	if trace == nil {
		panic("nil trace")
	}
	if old := ctx.Value(clientTraceKey{}); old != nil {
		composeHooks(trace, old.(*ClientTrace))
	}
	return context.WithValue(ctx, clientTraceKey{}, trace)
}

// composeHooks modifies func fields t to call the corresponding ones in next
// afterwards, if defined.
//
// inspired by net/http/httptrace
func composeHooks(t, next any) {
	tv := reflect.ValueOf(t).Elem()
	ov := reflect.ValueOf(next).Elem()
	structType := tv.Type()
	for i := range structType.NumField() {
		tf := tv.Field(i)
		hookType := tf.Type()
		if hookType.Kind() != reflect.Func {
			continue
		}
		of := ov.Field(i)
		if of.IsNil() {
			continue
		}
		if tf.IsNil() {
			tf.Set(of)
			continue
		}
		tfCopy := reflect.ValueOf(tf.Interface())
		newFunc := reflect.MakeFunc(hookType, func(args []reflect.Value) []reflect.Value {
			tfCopy.Call(args)
			return of.Call(args)
		})
		tv.Field(i).Set(newFunc)
	}
}

// traceStart calls OperationStart and returns a function which calls
// OperationDone.
func traceStart(ctx context.Context, op, serial, path string) func(error) {
	debug.Debug("operation start", "op", op, "serial", serial, "path", path)
	t := contextClientTrace(ctx)
	if t != nil && t.OperationStart != nil {
		t.OperationStart(op, serial, path)
	}
	return func(err error) {
		debug.Debug("operation done", "op", op, "serial", serial, "path", path, "error", err)
		if t != nil && t.OperationDone != nil {
			t.OperationDone(op, serial, path, err)
		}
	}
}
