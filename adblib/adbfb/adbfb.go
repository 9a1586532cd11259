// Package adbfb captures and decodes the device framebuffer.
package adbfb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"sync/atomic"

	"github.com/adbview/adbview/adb"
	"github.com/adbview/adbview/adb/adbhost"
	"github.com/adbview/adbview/adb/adbproto/fbproto"
)

// ErrCapture is matched by errors which occur after the framebuffer service
// has been reached, including a truncated capture.
var ErrCapture = errors.New("framebuffer capture failed")

type captureError struct {
	Err error
}

func (e *captureError) Error() string {
	return ErrCapture.Error() + ": " + e.Err.Error()
}

func (e *captureError) Is(target error) bool {
	return target == ErrCapture
}

func (e *captureError) Unwrap() error {
	return e.Err
}

// FrameBuffer is a captured framebuffer. Pix contains exactly
// [fbproto.Header.PixelsLen] bytes.
type FrameBuffer struct {
	fbproto.Header
	Pix []byte
}

// Decode decodes the pixels.
func (f *FrameBuffer) Decode() (*Surface, error) {
	return DecodePixels(f.Pix, f.Header)
}

// Stream reads the raw pixels of a framebuffer capture.
type Stream struct {
	fbproto.Header

	conn   net.Conn
	ctx    context.Context
	stop   func() bool
	n      int64
	closed atomic.Bool
}

// Open starts a framebuffer capture. The returned stream must be closed.
// Cancelling ctx closes the stream.
func Open(ctx context.Context, d adb.Dialer) (*Stream, error) {
	conn, err := adb.Framebuffer(ctx, d)
	if err != nil {
		if errors.Is(err, adbhost.ErrNoSuchDevice) || errors.Is(err, adbhost.ErrConnection) || ctx.Err() != nil {
			return nil, err
		}
		return nil, &captureError{err}
	}
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	hdr, err := fbproto.ReadHeader(conn)
	stop()
	if err != nil {
		conn.Close()
		if ctx.Err() != nil {
			return nil, context.Cause(ctx)
		}
		return nil, &captureError{fmt.Errorf("read header: %w", err)}
	}
	debug.Debug("framebuffer header", "header", hdr)

	s := &Stream{
		Header: hdr,
		conn:   conn,
		ctx:    ctx,
		n:      hdr.PixelsLen(),
	}
	s.stop = context.AfterFunc(ctx, s.abort)
	return s, nil
}

// Len returns the number of bytes remaining.
func (s *Stream) Len() int64 {
	return s.n
}

// Read reads pixels. It returns an error matching [ErrCapture] if the
// connection ends early.
func (s *Stream) Read(p []byte) (int, error) {
	if s.closed.Load() || s.ctx.Err() != nil {
		return 0, s.closedErr()
	}
	if s.n <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > s.n {
		p = p[:s.n]
	}
	n, err := s.conn.Read(p)
	if s.closed.Load() || s.ctx.Err() != nil {
		return 0, s.closedErr()
	}
	s.n -= int64(n)
	if err != nil {
		if err == io.EOF && s.n > 0 {
			err = io.ErrUnexpectedEOF
		}
		if err != io.EOF {
			err = &captureError{fmt.Errorf("read pixels (%d bytes left): %w", s.n, err)}
		}
	}
	return n, err
}

func (s *Stream) closedErr() error {
	if err := context.Cause(s.ctx); err != nil {
		return err
	}
	return fs.ErrClosed
}

func (s *Stream) abort() {
	if !s.closed.Swap(true) {
		s.conn.Close()
	}
}

// Close stops the capture and closes the connection.
func (s *Stream) Close() error {
	s.stop()
	if s.closed.Swap(true) {
		return nil
	}
	return s.conn.Close()
}

// Capture reads an entire framebuffer.
func Capture(ctx context.Context, d adb.Dialer) (*FrameBuffer, error) {
	s, err := Open(ctx, d)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	fb := &FrameBuffer{
		Header: s.Header,
		Pix:    make([]byte, s.Len()),
	}
	if _, err := io.ReadFull(s, fb.Pix); err != nil {
		if errors.Is(err, ErrCapture) || ctx.Err() != nil {
			return nil, err
		}
		return nil, &captureError{err}
	}
	return fb, nil
}
