// Package adb opens services on ADB devices.
package adb

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/adbview/adbview/adb/adbproto"
)

// Dialer opens a stream to a service on a device.
//
// The context only applies while the stream is being opened. Once the conn is
// returned, cancelling it has no effect.
type Dialer interface {
	DialADB(ctx context.Context, svc string) (net.Conn, error)
}

// Features is implemented by dialers which know which optional features were
// negotiated with the device.
type Features interface {
	SupportsFeature(f adbproto.Feature) bool
}

// ErrFeatureNotSupported is matched by the error returned by
// [SupportsFeature]. It also matches [errors.ErrUnsupported].
var ErrFeatureNotSupported = errors.New("feature not supported")

// FeatureError is returned when a dialer does not report support for a
// feature.
type FeatureError struct {
	Feature adbproto.Feature
}

func (e *FeatureError) Error() string {
	return fmt.Sprintf("%v: %s", ErrFeatureNotSupported, e.Feature)
}

func (e *FeatureError) Is(target error) bool {
	return target == ErrFeatureNotSupported || target == errors.ErrUnsupported
}

// SupportsFeature returns nil if d reports support for every one of fs. Dialers
// which do not implement [Features] support nothing.
func SupportsFeature(d Dialer, fs ...adbproto.Feature) error {
	df, _ := d.(Features)
	for _, f := range fs {
		if df == nil || !df.SupportsFeature(f) {
			return &FeatureError{f}
		}
	}
	return nil
}

// https://cs.android.com/android/platform/superproject/main/+/main:packages/modules/adb/daemon/services.cpp;drc=a9b3987d2a42a40de0d67fcecb50c9716639ef03

// Sync opens a file sync session. The returned conn speaks the sync protocol
// implemented by the syncproto package, one request at a time.
func Sync(ctx context.Context, srv Dialer) (net.Conn, error) {
	return srv.DialADB(ctx, "sync:")
}

// Framebuffer opens a framebuffer capture. The device writes a header
// followed by the raw pixels and closes the connection.
//
// https://cs.android.com/android/platform/superproject/main/+/main:packages/modules/adb/daemon/framebuffer_service.cpp;drc=61197364367c9e404c7da6900658f1b16c42d0da
func Framebuffer(ctx context.Context, srv Dialer) (net.Conn, error) {
	return srv.DialADB(ctx, "framebuffer:")
}
