package adbhost

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net"
	"strconv"
	"sync/atomic"

	"github.com/adbview/adbview/adb"
	"github.com/adbview/adbview/adb/adbproto"
)

// ErrNoSuchDevice is matched by errors returned when the host server rejects
// the device selected by a [Transport].
var ErrNoSuchDevice = errors.New("no such device")

// Transport selects a device to connect to via a host server.
//
// https://cs.android.com/android/platform/superproject/main/+/main:packages/modules/adb/adb.cpp;l=1293-1352;drc=9f298fb1f3317371b49439efb20a598b3a881bf3.
type Transport interface {
	hostPrefix() string
	transport() string
}

// TransportID selects a specific transport by its ID.
type TransportID uint64

func (t TransportID) String() string {
	return "TransportID(" + strconv.FormatUint(uint64(t), 10) + ")"
}

func (t TransportID) hostPrefix() string {
	return "host-transport-id:" + strconv.FormatUint(uint64(t), 10)
}

func (t TransportID) transport() string {
	return "host:transport-id:" + strconv.FormatUint(uint64(t), 10)
}

// Serial uniquely identifies devices connected to the ADB host server.
type Serial string

func (s Serial) String() string {
	if s == "" {
		return ""
	}
	return "Serial(" + string(s) + ")"
}

func (s Serial) hostPrefix() string {
	if s == "" {
		return ""
	}
	return "host-serial:" + string(s)
}

func (s Serial) transport() string {
	if s == "" {
		return ""
	}
	return "host:transport:" + string(s)
}

// TransportError is returned when the host server fails to switch a
// connection to a transport. It matches [ErrNoSuchDevice] and
// [adbproto.ErrServer].
type TransportError struct {
	Transport Transport
	Err       *adbproto.ServerError
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%v %v: %s", ErrNoSuchDevice, e.Transport, e.Err.Message)
}

func (e *TransportError) Is(target error) bool {
	return target == ErrNoSuchDevice
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// TransportDialer is an [adb.Dialer] which dials a transport through a host
// server. Every connection is a fresh socket switched to the transport.
type TransportDialer struct {
	d *Dialer
	t Transport
	f atomic.Pointer[map[adbproto.Feature]struct{}]
}

var _ adb.Dialer = (*TransportDialer)(nil)
var _ adb.Features = (*TransportDialer)(nil)

// Server returns an [adb.Dialer] for a [Transport] accessible through the host
// server.
//
// If d is nil, an empty one is used.
func Server(d *Dialer, t Transport) *TransportDialer {
	return &TransportDialer{d: d, t: t}
}

// Transport returns the transport selected by the dialer.
func (h *TransportDialer) Transport() Transport {
	return h.t
}

// DialADB opens a connection to svc on the transport.
func (h *TransportDialer) DialADB(ctx context.Context, svc string) (net.Conn, error) {
	transportSvc := h.t.transport()
	if transportSvc == "" {
		return nil, errors.New("invalid transport")
	}
	conn, err := h.d.DialADBHost(ctx, transportSvc)
	if err != nil {
		var se *adbproto.ServerError
		if errors.As(err, &se) {
			return nil, &TransportError{h.t, se}
		}
		return nil, err
	}
	if err := adbService(ctx, conn, svc); err != nil {
		conn.Close()
		return nil, fmt.Errorf("service %q: %w", svc, err)
	}
	return conn, nil
}

// DialADBHostTransport opens a connection to the host svc for the transport.
func (h *TransportDialer) DialADBHostTransport(ctx context.Context, svc string) (net.Conn, error) {
	prefix := h.t.hostPrefix()
	if prefix == "" {
		return nil, errors.New("invalid transport")
	}
	return h.d.DialADBHost(ctx, prefix+":"+svc)
}

// SupportsFeature returns true if the transport supports the provided feature.
// This is the intersection of the features supported by the transport and the
// features supported by the host server. If [TransportDialer.LoadFeatures] or
// [Dialer.LoadFeatures] have not been called, this will always return false.
func (h *TransportDialer) SupportsFeature(f adbproto.Feature) bool {
	if h.d.SupportsFeature(f) {
		if fm := h.f.Load(); fm != nil {
			_, ok := (*fm)[f]
			return ok
		}
	}
	return false
}

// LoadFeatures updates the list of supported optional features. Note that you
// also need to call [Dialer.LoadFeatures] if you haven't already done so.
func (h *TransportDialer) LoadFeatures(ctx context.Context) error {
	conn, err := h.DialADBHostTransport(ctx, "features")
	if err != nil {
		var se *adbproto.ServerError
		if errors.As(err, &se) {
			return &TransportError{h.t, se}
		}
		return err
	}
	defer conn.Close()

	buf, err := adbproto.ReadProtocolBytes(conn, nil)
	if err != nil {
		return err
	}
	fm := parseFeatures(buf)
	h.f.Store(&fm)
	return nil
}

// Features returns all supported features. This is the intersection of the
// features supported by the transport and the features supported by the host
// server.
func (h *TransportDialer) Features() iter.Seq[adbproto.Feature] {
	return func(yield func(adbproto.Feature) bool) {
		if fm := h.f.Load(); fm != nil {
			for f := range *fm {
				if h.d.SupportsFeature(f) {
					if !yield(f) {
						return
					}
				}
			}
		}
	}
}
