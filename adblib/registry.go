package adblib

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/adbview/adbview/adb/adbhost"
)

// Errors returned when resolving a device selector.
var (
	ErrNoSuchDevice      = adbhost.ErrNoSuchDevice
	ErrAmbiguousSelector = errors.New("ambiguous device selector")
)

// Status is the simplified connection state of a device.
type Status string

const (
	StatusDevice       Status = "device"
	StatusOffline      Status = "offline"
	StatusUnauthorized Status = "unauthorized"
	StatusUnknown      Status = "unknown"
)

// StatusOf maps a connection state to a [Status]. Unrecognized states are
// [StatusUnknown].
func StatusOf(cs adbhost.ConnectionState) Status {
	switch cs {
	case adbhost.CsDevice:
		return StatusDevice
	case adbhost.CsOffline:
		return StatusOffline
	case adbhost.CsUnauthorized:
		return StatusUnauthorized
	default:
		return StatusUnknown
	}
}

// Device is a device known to the host server.
type Device struct {
	Serial string
	Status Status

	// State is the connection state reported by the server.
	State adbhost.ConnectionState
}

func deviceOf(info *adbhost.TransportInfo) Device {
	return Device{
		Serial: info.Serial,
		Status: StatusOf(info.State),
		State:  info.State,
	}
}

// Matches checks whether the device is selected by sel. Serials are compared
// case-insensitively, and an empty selector matches every device.
func (d Device) Matches(sel string) bool {
	return sel == "" || strings.EqualFold(d.Serial, sel)
}

type selectorError struct {
	Selector string
	Matches  []string
}

func (e *selectorError) Error() string {
	sel := e.Selector
	if sel == "" {
		sel = "(any)"
	}
	if len(e.Matches) == 0 {
		return fmt.Sprintf("%v: %s", ErrNoSuchDevice, sel)
	}
	return fmt.Sprintf("%v: %s matches %s", ErrAmbiguousSelector, sel, strings.Join(e.Matches, ", "))
}

func (e *selectorError) Is(target error) bool {
	if len(e.Matches) == 0 {
		return target == ErrNoSuchDevice
	}
	return target == ErrAmbiguousSelector
}

// Registry holds the last known list of devices. The list is replaced as a
// whole, so readers never see a partial update.
type Registry struct {
	d    *adbhost.Dialer
	snap atomic.Pointer[[]Device]
}

// NewRegistry creates a registry for the devices on the host server.
func NewRegistry(d *adbhost.Dialer) *Registry {
	return &Registry{d: d}
}

// Devices returns the last known devices.
func (r *Registry) Devices() []Device {
	if p := r.snap.Load(); p != nil {
		return slices.Clone(*p)
	}
	return nil
}

func (r *Registry) store(infos []*adbhost.TransportInfo) []Device {
	devs := make([]Device, len(infos))
	for i, info := range infos {
		devs[i] = deviceOf(info)
	}
	r.snap.Store(&devs)
	return slices.Clone(devs)
}

// Refresh gets the device list from the server and replaces the snapshot.
func (r *Registry) Refresh(ctx context.Context) ([]Device, error) {
	infos, err := adbhost.Devices(ctx, r.d, false)
	if err != nil {
		return nil, err
	}
	devs := r.store(infos)
	debug.Debug("devices refreshed", "count", len(devs))
	return devs, nil
}

// Lookup finds the single device matching sel in the current snapshot.
func (r *Registry) Lookup(sel string) (Device, error) {
	var (
		match   Device
		matches []string
	)
	for _, d := range r.Devices() {
		if d.Matches(sel) {
			match = d
			matches = append(matches, d.Serial)
		}
	}
	if len(matches) != 1 {
		return Device{}, &selectorError{sel, matches}
	}
	return match, nil
}

// Resolve refreshes the snapshot, then finds the single device matching sel.
func (r *Registry) Resolve(ctx context.Context, sel string) (Device, error) {
	if _, err := r.Refresh(ctx); err != nil {
		return Device{}, err
	}
	return r.Lookup(sel)
}

// Track keeps the snapshot up to date until ctx is cancelled or the server
// connection fails, calling fn (if not nil) after every update.
func (r *Registry) Track(ctx context.Context, fn func([]Device)) error {
	var err error
	for infos := range adbhost.TrackDevices(ctx, r.d, false)(&err) {
		devs := r.store(infos)
		debug.Debug("devices changed", "count", len(devs))
		if fn != nil {
			fn(devs)
		}
	}
	return err
}
