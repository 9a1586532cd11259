// Package adblib provides high-level ADB functionality.
package adblib

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"time"

	"github.com/adbview/adbview/adb/adbhost"
	"github.com/adbview/adbview/adb/adbproto"
	"github.com/adbview/adbview/adblib/adbfb"
	"github.com/adbview/adbview/adblib/adbsync"
	"github.com/adbview/adbview/internal/bionic"
)

// Client performs operations on devices attached to an ADB server. Every
// operation resolves the device selector against a fresh device list, then
// uses a new connection to the device which is closed afterwards.
//
// A device selector is a serial, compared case-insensitively. An empty
// selector selects the only attached device.
type Client struct {
	Dialer   *adbhost.Dialer
	Registry *Registry

	// NegotiateFeatures loads the features of the server and the device before
	// file operations, enabling RCV2 and compression if both sides support it.
	NegotiateFeatures bool

	// CompressionConfig is passed to the sync client.
	CompressionConfig *adbsync.CompressionConfig
}

// NewClient creates a client for the devices attached to the server dialed by
// d. If d is nil, the default server address is used.
func NewClient(d *adbhost.Dialer) *Client {
	if d == nil {
		d = &adbhost.Dialer{}
	}
	return &Client{
		Dialer:            d,
		Registry:          NewRegistry(d),
		NegotiateFeatures: true,
	}
}

// Devices gets the devices attached to the server, updating the registry.
func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	devs, err := c.Registry.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	if t := contextClientTrace(ctx); t != nil && t.DevicesListed != nil {
		t.DevicesListed(devs)
	}
	return devs, nil
}

func (c *Client) resolve(ctx context.Context, sel string) (Device, error) {
	t := contextClientTrace(ctx)
	dev, err := c.Registry.Resolve(ctx, sel)
	if err != nil {
		if t != nil && t.ResolveFailed != nil {
			t.ResolveFailed(sel, err)
		}
		return Device{}, err
	}
	if t != nil && t.DeviceResolved != nil {
		t.DeviceResolved(sel, dev)
	}
	return dev, nil
}

func (c *Client) transport(ctx context.Context, dev Device, features bool) (*adbhost.TransportDialer, error) {
	srv := adbhost.Server(c.Dialer, adbhost.Serial(dev.Serial))
	debug.Debug("using transport", "transport", srv.Transport(), "features", features && c.NegotiateFeatures)
	if features && c.NegotiateFeatures {
		if err := c.Dialer.LoadFeatures(ctx); err != nil {
			return nil, fmt.Errorf("load host features: %w", err)
		}
		if err := srv.LoadFeatures(ctx); err != nil {
			return nil, fmt.Errorf("load device features: %w", err)
		}
	}
	return srv, nil
}

func (c *Client) sync(ctx context.Context, dev Device) (*adbsync.Client, error) {
	srv, err := c.transport(ctx, dev, true)
	if err != nil {
		return nil, err
	}
	return &adbsync.Client{
		Server:            srv,
		CompressionConfig: c.CompressionConfig,
	}, nil
}

// Stat gets information about a path on the selected device. A missing path
// returns an error matching [adbsync.ErrPathNotFound].
func (c *Client) Stat(ctx context.Context, sel, name string) (st adbsync.Stat, err error) {
	dev, err := c.resolve(ctx, sel)
	if err != nil {
		return adbsync.Stat{}, err
	}
	done := traceStart(ctx, "stat", dev.Serial, name)
	defer func() { done(err) }()

	sc, err := c.sync(ctx, dev)
	if err != nil {
		return adbsync.Stat{}, err
	}
	return sc.Stat(ctx, name)
}

// DirList lists a directory on the selected device. Listing something other
// than a directory returns no entries.
func (c *Client) DirList(ctx context.Context, sel, name string) (ents []adbsync.DirEntry, err error) {
	dev, err := c.resolve(ctx, sel)
	if err != nil {
		return nil, err
	}
	done := traceStart(ctx, "list", dev.Serial, name)
	defer func() { done(err) }()

	sc, err := c.sync(ctx, dev)
	if err != nil {
		return nil, err
	}
	return sc.DirList(ctx, name)
}

// GetContent opens a file on the selected device for reading. The size is
// available before reading. The content must be closed, and cancelling ctx
// closes it.
func (c *Client) GetContent(ctx context.Context, sel, name string) (content *adbsync.Content, err error) {
	dev, err := c.resolve(ctx, sel)
	if err != nil {
		return nil, err
	}
	done := traceStart(ctx, "recv", dev.Serial, name)
	defer func() { done(err) }()

	sc, err := c.sync(ctx, dev)
	if err != nil {
		return nil, err
	}
	return sc.Open(ctx, name)
}

// GetFrameBuffer captures and decodes the screen of the selected device.
func (c *Client) GetFrameBuffer(ctx context.Context, sel string) (*adbfb.Surface, error) {
	fb, err := c.CaptureFrameBuffer(ctx, sel)
	if err != nil {
		return nil, err
	}
	return fb.Decode()
}

// CaptureFrameBuffer captures the raw screen of the selected device without
// decoding the pixels.
func (c *Client) CaptureFrameBuffer(ctx context.Context, sel string) (fb *adbfb.FrameBuffer, err error) {
	dev, err := c.resolve(ctx, sel)
	if err != nil {
		return nil, err
	}
	done := traceStart(ctx, "framebuffer", dev.Serial, "")
	defer func() { done(err) }()

	srv, err := c.transport(ctx, dev, false)
	if err != nil {
		return nil, err
	}
	return adbfb.Capture(ctx, srv)
}

// Features is the result of [Client.Features].
type Features struct {
	Transport adbhost.Transport

	// Host contains the features supported by the server.
	Host []adbproto.Feature

	// Device contains the features supported by both the server and the
	// device. It is nil if the device is not online.
	Device []adbproto.Feature
}

// Features gets the optional features supported by the server and the
// selected device, sorted by name.
func (c *Client) Features(ctx context.Context, sel string) (*Features, error) {
	dev, err := c.resolve(ctx, sel)
	if err != nil {
		return nil, err
	}
	if err := c.Dialer.LoadFeatures(ctx); err != nil {
		return nil, fmt.Errorf("load host features: %w", err)
	}
	srv := adbhost.Server(c.Dialer, adbhost.Serial(dev.Serial))
	fs := &Features{
		Transport: srv.Transport(),
		Host:      slices.Sorted(c.Dialer.Features()),
	}
	if !dev.State.IsOnline() {
		debug.Debug("not loading features of device", "serial", dev.Serial, "state", dev.State)
		return fs, nil
	}
	if err := srv.LoadFeatures(ctx); err != nil {
		return nil, fmt.Errorf("load device features: %w", err)
	}
	fs.Device = slices.Sorted(srv.Features())
	if fs.Device == nil {
		fs.Device = []adbproto.Feature{}
	}
	return fs, nil
}

// DevicesAsync is like [Client.Devices], but runs in the background.
func (c *Client) DevicesAsync(ctx context.Context) *Future[[]Device] {
	return Go(ctx, c.Devices)
}

// StatAsync is like [Client.Stat], but runs in the background.
func (c *Client) StatAsync(ctx context.Context, sel, name string) *Future[adbsync.Stat] {
	return Go(ctx, func(ctx context.Context) (adbsync.Stat, error) {
		return c.Stat(ctx, sel, name)
	})
}

// DirListAsync is like [Client.DirList], but runs in the background.
func (c *Client) DirListAsync(ctx context.Context, sel, name string) *Future[[]adbsync.DirEntry] {
	return Go(ctx, func(ctx context.Context) ([]adbsync.DirEntry, error) {
		return c.DirList(ctx, sel, name)
	})
}

// GetContentAsync is like [Client.GetContent], but runs in the background.
// Cancelling the future after it completes closes the content.
func (c *Client) GetContentAsync(ctx context.Context, sel, name string) *Future[*adbsync.Content] {
	return Go(ctx, func(ctx context.Context) (*adbsync.Content, error) {
		return c.GetContent(ctx, sel, name)
	})
}

// GetFrameBufferAsync is like [Client.GetFrameBuffer], but runs in the
// background.
func (c *Client) GetFrameBufferAsync(ctx context.Context, sel string) *Future[*adbfb.Surface] {
	return Go(ctx, func(ctx context.Context) (*adbfb.Surface, error) {
		return c.GetFrameBuffer(ctx, sel)
	})
}

// Listing is the result of [Client.Browse]. Exactly one of Entries (for
// directories) or Content (for other files) is set.
type Listing struct {
	Serial string // empty for the device list
	Path   string
	Stat   adbsync.Stat

	Entries []adbsync.DirEntry
	Content *adbsync.Content
}

// IsDir returns true if the listing is a directory.
func (l *Listing) IsDir() bool {
	return l.Content == nil
}

// Close closes the content, if any.
func (l *Listing) Close() error {
	if l.Content != nil {
		return l.Content.Close()
	}
	return nil
}

// Browse gets a path on a device, listing it if it is a directory, or opening
// it otherwise. If sel is empty, the attached devices which are not offline
// are listed as directories. The listing must be closed.
func (c *Client) Browse(ctx context.Context, sel, name string) (*Listing, error) {
	if sel == "" {
		return c.browseDevices(ctx)
	}
	name = path.Clean("/" + name)

	dev, err := c.resolve(ctx, sel)
	if err != nil {
		return nil, err
	}
	done := traceStart(ctx, "browse", dev.Serial, name)

	sc, err := c.sync(ctx, dev)
	if err != nil {
		done(err)
		return nil, err
	}
	st, err := sc.Stat(ctx, name)
	if err != nil {
		done(err)
		return nil, err
	}
	l := &Listing{
		Serial: dev.Serial,
		Path:   name,
		Stat:   st,
	}
	if st.IsDir() {
		l.Entries, err = sc.DirList(ctx, name)
	} else {
		l.Content, err = sc.Open(ctx, name)
	}
	done(err)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (c *Client) browseDevices(ctx context.Context) (*Listing, error) {
	devs, err := c.Devices(ctx)
	if err != nil {
		return nil, err
	}
	l := &Listing{
		Path: "/",
		Stat: adbsync.Stat{
			Mode:  bionic.S_IFDIR | 0o755,
			Mtime: time.Unix(0, 0),
		},
		Entries: []adbsync.DirEntry{},
	}
	for _, d := range devs {
		if d.Status == StatusOffline {
			continue
		}
		l.Entries = append(l.Entries, adbsync.DirEntry{
			Name: d.Serial,
			Stat: adbsync.Stat{
				Mode:  bionic.S_IFDIR | 0o755,
				Mtime: time.Unix(0, 0),
			},
		})
	}
	return l, nil
}

// IsDeviceError returns true if err means that the selected device could not
// be used, as opposed to an error with the server connection or the path.
func IsDeviceError(err error) bool {
	return errors.Is(err, ErrNoSuchDevice) || errors.Is(err, ErrAmbiguousSelector)
}
