package adbfb_test

import (
	"context"
	"errors"
	"testing"

	"github.com/adbview/adbview/adb/adbhost"
	"github.com/adbview/adbview/adb/adbproto"
	"github.com/adbview/adbview/adb/adbproto/fbproto"
	"github.com/adbview/adbview/adblib/adbfb"
	"github.com/adbview/adbview/internal/adbtest"
)

func framebuffer(w, h uint32, pix []byte) []byte {
	b := fbproto.AppendHeader(nil, fbproto.Header{
		Version:      fbproto.Version1,
		BitsPerPixel: 16,
		Size:         w * h * 2,
		Width:        w,
		Height:       h,
		Red:          fbproto.Channel{Offset: 11, Width: 5},
		Green:        fbproto.Channel{Offset: 5, Width: 6},
		Blue:         fbproto.Channel{Offset: 0, Width: 5},
	})
	return append(b, pix...)
}

func dialer(fb []byte) *adbhost.TransportDialer {
	srv := adbtest.NewServer(&adbtest.Device{Serial: "aaa1", State: "device", Framebuffer: fb})
	return adbhost.Server(&adbhost.Dialer{DialContext: srv.DialContext}, adbhost.Serial("aaa1"))
}

func TestCapture(t *testing.T) {
	fb, err := adbfb.Capture(context.Background(), dialer(framebuffer(2, 1, []byte{0x00, 0xF8, 0xFF, 0xFF})))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fb.Width != 2 || fb.Height != 1 || len(fb.Pix) != 4 {
		t.Fatalf("incorrect framebuffer %v (%d bytes)", fb.Header, len(fb.Pix))
	}
	s, err := fb.Decode()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exp := []byte{255, 0, 0, 255, 255, 255}; string(s.Pix) != string(exp) {
		t.Errorf("incorrect pixels %v", s.Pix)
	}
}

func TestCaptureTruncated(t *testing.T) {
	_, err := adbfb.Capture(context.Background(), dialer(framebuffer(2, 2, []byte{0x00, 0xF8, 0xFF})))
	if !errors.Is(err, adbfb.ErrCapture) {
		t.Fatalf("expected capture error, got %v", err)
	}
}

func TestCaptureBadHeader(t *testing.T) {
	_, err := adbfb.Capture(context.Background(), dialer([]byte{3, 0, 0, 0}))
	if !errors.Is(err, adbfb.ErrCapture) || !errors.Is(err, adbproto.ErrProtocol) {
		t.Fatalf("expected capture protocol error, got %v", err)
	}
}

func TestCaptureHugeHeader(t *testing.T) {
	for name, hdr := range map[string]fbproto.Header{
		"Overflow": {
			Version: fbproto.Version1, BitsPerPixel: 32, Size: 16, Width: 0xFFFFFFFF, Height: 0xFFFFFFFF,
			Red: fbproto.Channel{Offset: 0, Width: 8}, Green: fbproto.Channel{Offset: 8, Width: 8},
			Blue: fbproto.Channel{Offset: 16, Width: 8}, Alpha: fbproto.Channel{Offset: 24, Width: 8},
		},
		"SizeMismatch": {
			Version: fbproto.Version1, BitsPerPixel: 16, Size: 16, Width: 100, Height: 100,
			Red: fbproto.Channel{Offset: 11, Width: 5}, Green: fbproto.Channel{Offset: 5, Width: 6},
			Blue: fbproto.Channel{Offset: 0, Width: 5},
		},
	} {
		fb := append(fbproto.AppendHeader(nil, hdr), make([]byte, 16)...)
		_, err := adbfb.Capture(context.Background(), dialer(fb))
		if !errors.Is(err, adbfb.ErrCapture) || !errors.Is(err, adbproto.ErrProtocol) {
			t.Errorf("%s: expected capture protocol error, got %v", name, err)
		}
	}
}

func TestCaptureNoSuchDevice(t *testing.T) {
	srv := adbtest.NewServer()
	_, err := adbfb.Capture(context.Background(), adbhost.Server(&adbhost.Dialer{DialContext: srv.DialContext}, adbhost.Serial("aaa1")))
	if !errors.Is(err, adbhost.ErrNoSuchDevice) || errors.Is(err, adbfb.ErrCapture) {
		t.Fatalf("expected no such device error, got %v", err)
	}
}

func TestOpenCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := adbfb.Open(ctx, dialer(framebuffer(4, 4, make([]byte, 32))))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()

	if s.Len() != 32 {
		t.Errorf("expected 32 bytes, got %d", s.Len())
	}
	if _, err := s.Read(make([]byte, 8)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cancel()
	if n, err := s.Read(make([]byte, 8)); n != 0 || !errors.Is(err, context.Canceled) {
		t.Errorf("expected no more data after cancellation, got %d %v", n, err)
	}
}
