package adbhost_test

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/adbview/adbview/adb"
	"github.com/adbview/adbview/adb/adbhost"
	"github.com/adbview/adbview/adb/adbproto"
	"github.com/adbview/adbview/internal/adbtest"
)

func TestDevices(t *testing.T) {
	srv := adbtest.NewServer(
		&adbtest.Device{Serial: "aaa1", State: "device"},
		&adbtest.Device{Serial: "bbb2", State: "offline"},
	)
	d := &adbhost.Dialer{DialContext: srv.DialContext}

	devs, err := adbhost.Devices(context.Background(), d, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(devs) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(devs))
	}
	for i, exp := range []struct {
		serial string
		state  adbhost.ConnectionState
	}{
		{"aaa1", adbhost.CsDevice},
		{"bbb2", adbhost.CsOffline},
	} {
		if devs[i].Serial != exp.serial || devs[i].State != exp.state {
			t.Errorf("device %d: expected %s %s, got %s %s", i, exp.serial, exp.state, devs[i].Serial, devs[i].State)
		}
	}
	if reqs := srv.Requests(); len(reqs) != 1 || reqs[0] != "host:devices" {
		t.Errorf("unexpected requests %q", reqs)
	}
}

func TestDevicesEmpty(t *testing.T) {
	srv := adbtest.NewServer()
	devs, err := adbhost.Devices(context.Background(), &adbhost.Dialer{DialContext: srv.DialContext}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(devs) != 0 {
		t.Errorf("expected no devices, got %d", len(devs))
	}
}

func TestConnectionRefused(t *testing.T) {
	srv := adbtest.NewServer()
	srv.Refuse = true
	_, err := adbhost.Devices(context.Background(), &adbhost.Dialer{DialContext: srv.DialContext}, false)
	if !errors.Is(err, adbhost.ErrConnection) {
		t.Fatalf("expected connection error, got %v", err)
	}
	if errors.Is(err, adbproto.ErrServer) || errors.Is(err, adbproto.ErrProtocol) {
		t.Errorf("connection error should not match server or protocol errors: %v", err)
	}
	if !strings.Contains(err.Error(), "is the adb server running?") {
		t.Errorf("expected hint in error message, got %q", err)
	}
}

func TestDialTimeout(t *testing.T) {
	d := &adbhost.Dialer{
		DialTimeout: 50 * time.Millisecond,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	start := time.Now()
	_, err := adbhost.Devices(context.Background(), d, false)
	if !errors.Is(err, adbhost.ErrConnection) {
		t.Fatalf("expected connection error, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if el := time.Since(start); el > 5*time.Second {
		t.Errorf("dial was not bounded by the timeout (took %s)", el)
	}
}

func TestIdleTimeout(t *testing.T) {
	d := &adbhost.Dialer{
		IdleTimeout: 50 * time.Millisecond,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			c1, c2 := net.Pipe()
			go func() {
				defer c2.Close()
				if _, err := adbproto.ReadProtocolBytes(c2, nil); err != nil {
					return
				}
				adbproto.SendOkay(c2)
				io.Copy(io.Discard, c2) // never send the device list
			}()
			return c1, nil
		},
	}
	start := time.Now()
	_, err := adbhost.Devices(context.Background(), d, false)
	if !errors.Is(err, adbproto.ErrProtocol) {
		t.Fatalf("expected protocol error, got %v", err)
	}
	if !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if errors.Is(err, adbhost.ErrConnection) {
		t.Errorf("idle timeout should not be a connection error: %v", err)
	}
	if el := time.Since(start); el > 5*time.Second {
		t.Errorf("read was not bounded by the timeout (took %s)", el)
	}
}

func TestTransportDialer(t *testing.T) {
	srv := adbtest.NewServer(
		&adbtest.Device{Serial: "aaa1", State: "device", Files: map[string]*adbtest.File{"/": adbtest.Dir()}},
		&adbtest.Device{Serial: "bbb2", State: "offline"},
	)
	d := &adbhost.Dialer{DialContext: srv.DialContext}

	t.Run("Sync", func(t *testing.T) {
		conn, err := adb.Sync(context.Background(), adbhost.Server(d, adbhost.Serial("aaa1")))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		conn.Close()
	})
	for _, serial := range []string{"zzz9", "bbb2"} {
		t.Run("NoSuchDevice/"+serial, func(t *testing.T) {
			_, err := adb.Sync(context.Background(), adbhost.Server(d, adbhost.Serial(serial)))
			if !errors.Is(err, adbhost.ErrNoSuchDevice) {
				t.Fatalf("expected no such device error, got %v", err)
			}
			if !errors.Is(err, adbproto.ErrServer) {
				t.Errorf("expected error to also match server error, got %v", err)
			}
		})
	}
	t.Run("UnknownService", func(t *testing.T) {
		_, err := adbhost.Server(d, adbhost.Serial("aaa1")).DialADB(context.Background(), "nope:")
		if !errors.Is(err, adbproto.ErrServer) || errors.Is(err, adbhost.ErrNoSuchDevice) {
			t.Fatalf("expected plain server error, got %v", err)
		}
	})
}

func TestFeatures(t *testing.T) {
	srv := adbtest.NewServer(&adbtest.Device{
		Serial:   "aaa1",
		State:    "device",
		Features: []string{"sendrecv_v2", "sendrecv_v2_zstd", "shell_v2"},
	})
	srv.Features = []string{"sendrecv_v2", "sendrecv_v2_zstd", "sendrecv_v2_lz4"}
	d := &adbhost.Dialer{DialContext: srv.DialContext}
	td := adbhost.Server(d, adbhost.Serial("aaa1"))

	if td.SupportsFeature(adbproto.FeatureSendRecv2) {
		t.Errorf("features should not be supported before loading")
	}
	if err := d.LoadFeatures(context.Background()); err != nil {
		t.Fatalf("load host features: %v", err)
	}
	if err := td.LoadFeatures(context.Background()); err != nil {
		t.Fatalf("load transport features: %v", err)
	}
	for f, exp := range map[adbproto.Feature]bool{
		adbproto.FeatureSendRecv2:       true,
		adbproto.FeatureSendRecv2Zstd:   true,
		adbproto.FeatureSendRecv2LZ4:    false, // host only
		adbproto.FeatureSendRecv2Brotli: false,
		adbproto.Feature("shell_v2"):    false, // device only
	} {
		if act := td.SupportsFeature(f); act != exp {
			t.Errorf("%s: expected %t, got %t", f, exp, act)
		}
	}
	if err := adb.SupportsFeature(td, adbproto.FeatureSendRecv2Brotli); !errors.Is(err, adb.ErrFeatureNotSupported) {
		t.Errorf("expected unsupported feature error, got %v", err)
	}

	var nilDialer *adbhost.Dialer
	if nilDialer.SupportsFeature(adbproto.FeatureSendRecv2) {
		t.Errorf("nil dialer should not support features")
	}
}

func TestTrackDevices(t *testing.T) {
	for _, proto := range []bool{false, true} {
		name := "Text"
		if proto {
			name = "Proto"
		}
		t.Run(name, func(t *testing.T) {
			srv := adbtest.NewServer(&adbtest.Device{Serial: "aaa1", State: "device", TransportID: 3})
			if proto {
				srv.Features = []string{string(adbproto.FeatureDeviceTrackerProtoFormat)}
			}
			d := &adbhost.Dialer{DialContext: srv.DialContext, IdleTimeout: time.Second}
			if err := d.LoadFeatures(context.Background()); err != nil {
				t.Fatalf("load features: %v", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			var (
				err     error
				updates [][]*adbhost.TransportInfo
			)
			for devs := range adbhost.TrackDevices(ctx, d, true)(&err) {
				updates = append(updates, devs)
				if len(updates) == 1 {
					time.Sleep(2 * time.Second) // longer than the idle timeout
					srv.SetDevices(
						&adbtest.Device{Serial: "aaa1", State: "device", TransportID: 3},
						&adbtest.Device{Serial: "bbb2", State: "unauthorized", TransportID: 4},
					)
				} else {
					break
				}
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(updates) != 2 || len(updates[0]) != 1 || len(updates[1]) != 2 {
				t.Fatalf("unexpected updates: %v", updates)
			}
			if dev := updates[1][1]; dev.Serial != "bbb2" || dev.State != adbhost.CsUnauthorized || dev.Transport != 4 {
				t.Errorf("unexpected device: %+v", dev)
			}
			exp := "host:track-devices-l"
			if proto {
				exp = "host:track-devices-proto-binary"
			}
			if reqs := srv.Requests(); reqs[len(reqs)-1] != exp {
				t.Errorf("expected %q, got %q", exp, reqs)
			}
		})
	}
}

func TestTrackDevicesCancel(t *testing.T) {
	srv := adbtest.NewServer(&adbtest.Device{Serial: "aaa1", State: "device"})
	d := &adbhost.Dialer{DialContext: srv.DialContext}

	ctx, cancel := context.WithCancel(context.Background())
	var err error
	for range adbhost.TrackDevices(ctx, d, false)(&err) {
		cancel()
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context cancellation, got %v", err)
	}
}
