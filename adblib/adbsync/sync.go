// Package adbsync wraps the sync protocol.
package adbsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adbview/adbview/adb"
	"github.com/adbview/adbview/adb/adbproto"
	"github.com/adbview/adbview/adb/adbproto/syncproto"
	"github.com/adbview/adbview/internal/bionic"
)

// ErrPathNotFound is matched by errors for paths which do not exist on the
// device. It also matches [fs.ErrNotExist].
var ErrPathNotFound error = adbproto.ENOENT

// maximum path length accepted by adbd
const maxPathLen = 1024

// Client accesses files on a device. Every operation uses its own sync
// session, which is closed afterwards.
type Client struct {
	Server adb.Dialer

	// ConnectTimeout, if non-zero, is the maximum amount of time to wait for a
	// new sync connection to be opened before returning an error.
	ConnectTimeout time.Duration

	// CompressionConfig contains options for decompression. Compression is
	// only used if the dialer reports support for the sendrecv_v2 features.
	CompressionConfig *CompressionConfig
}

// Stat is the result of a stat. Mode is the raw st_mode, including the file
// type bits.
type Stat struct {
	Mode  uint32
	Size  uint32
	Mtime time.Time
}

// IsDir checks whether the mode has the directory type.
func (s Stat) IsDir() bool {
	return s.Mode&bionic.S_IFMT == bionic.S_IFDIR
}

// IsSymlink checks whether the mode has the symlink type.
func (s Stat) IsSymlink() bool {
	return s.Mode&bionic.S_IFMT == bionic.S_IFLNK
}

// FileMode converts the mode into an [io/fs.FileMode].
func (s Stat) FileMode() fs.FileMode {
	return bionic.FileMode(s.Mode)
}

// DirEntry is a directory listing entry. Note that the mode of symlinks is not
// resolved.
type DirEntry struct {
	Name string
	Stat
}

// Conn is a sync session. Requests are sent one at a time. If a request
// fails with a protocol error, the connection is closed and must not be used
// again.
type Conn struct {
	conn net.Conn
	srv  adb.Dialer
	cfg  *CompressionConfig

	mu     sync.Mutex
	broken error
}

// Dial opens a new sync session. The context only applies to establishing the
// session.
func (c *Client) Dial(ctx context.Context) (*Conn, error) {
	if c.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.ConnectTimeout)
		defer cancel()
	}
	conn, err := adb.Sync(ctx, c.Server)
	if err != nil {
		return nil, err
	}
	debug.Debug("sync session opened", "server", c.Server)
	return &Conn{
		conn: conn,
		srv:  c.Server,
		cfg:  c.CompressionConfig,
	}, nil
}

// Close ends the session.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken == nil {
		syncproto.SyncRequest(c.conn, syncproto.Packet_QUIT, "")
		c.broken = net.ErrClosed
	}
	return c.conn.Close()
}

// do runs fn while holding the session, marking it as broken if fn returns a
// protocol error.
func (c *Conn) do(fn func(conn net.Conn) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken != nil {
		return c.broken
	}
	err := fn(c.conn)
	if errors.Is(err, adbproto.ErrProtocol) {
		c.broken = err
		c.conn.Close()
	}
	return err
}

func checkPath(op, name string) error {
	if len(name) > maxPathLen {
		return &fs.PathError{Op: op, Path: name, Err: fmt.Errorf("%w: path too long", fs.ErrInvalid)}
	}
	if strings.IndexByte(name, 0) != -1 {
		return &fs.PathError{Op: op, Path: name, Err: fmt.Errorf("%w: path contains nul", fs.ErrInvalid)}
	}
	return nil
}

// Stat gets information about a file. Symlinks are not followed. A
// non-existent file is reported by the device as an all-zero stat, which is
// returned as an error matching [ErrPathNotFound].
func (c *Conn) Stat(name string) (Stat, error) {
	if err := checkPath("stat", name); err != nil {
		return Stat{}, err
	}
	var st Stat
	err := c.do(func(conn net.Conn) error {
		if err := syncproto.SyncRequest(conn, syncproto.Packet_LSTAT_V1, name); err != nil {
			return err
		}
		rec, err := syncproto.ReadRecord(conn, syncproto.Packet_LSTAT_V1)
		if err != nil {
			return err
		}
		switch rec := rec.(type) {
		case *syncproto.StatRecord:
			st = Stat{
				Mode:  rec.Mode,
				Size:  rec.Size,
				Mtime: time.Unix(int64(rec.Mtime), 0),
			}
			return nil
		case *syncproto.FailRecord:
			return rec.Err()
		default:
			return adbproto.ProtocolErrorf("unexpected stat response %s", rec.ID())
		}
	})
	if err != nil {
		return Stat{}, pathError("stat", name, err)
	}
	if st.Mode == 0 {
		return Stat{}, &fs.PathError{Op: "stat", Path: name, Err: adbproto.ENOENT}
	}
	return st, nil
}

// List lists a directory. The "." and ".." entries are omitted. Listing
// something which isn't a directory (or doesn't exist) returns an empty list,
// since the device doesn't report errors for it.
func (c *Conn) List(name string) ([]DirEntry, error) {
	if err := checkPath("readdir", name); err != nil {
		return nil, err
	}
	ents := []DirEntry{}
	err := c.do(func(conn net.Conn) error {
		if err := syncproto.SyncRequest(conn, syncproto.Packet_LIST_V1, name); err != nil {
			return err
		}
		for {
			rec, err := syncproto.ReadRecord(conn, syncproto.Packet_DENT_V1)
			if err != nil {
				return err
			}
			switch rec := rec.(type) {
			case *syncproto.DentRecord:
				if rec.Name == "." || rec.Name == ".." {
					continue
				}
				ents = append(ents, DirEntry{
					Name: rec.Name,
					Stat: Stat{
						Mode:  rec.Mode,
						Size:  rec.Size,
						Mtime: time.Unix(int64(rec.Mtime), 0),
					},
				})
			case *syncproto.DoneRecord:
				return nil
			case *syncproto.FailRecord:
				return rec.Err()
			default:
				return adbproto.ProtocolErrorf("unexpected list response %s", rec.ID())
			}
		}
	})
	if err != nil {
		return nil, pathError("readdir", name, err)
	}
	return ents, nil
}

// Recv starts reading a file. The session is consumed by the returned reader,
// and must be closed after reading. The reader returns the error sent by the
// device, if any, after the data received before it.
func (c *Conn) Recv(name string) (io.Reader, error) {
	if err := checkPath("open", name); err != nil {
		return nil, err
	}
	var r io.Reader
	err := c.do(func(conn net.Conn) error {
		method := compressionMethodNone
		if adb.SupportsFeature(c.srv, syncproto.Feature_sendrecv_v2) == nil {
			method = c.cfg.decompressNegotiate(c.srv)
			if err := syncproto.SyncRequest(conn, syncproto.Packet_RECV_V2, name); err != nil {
				return err
			}
			if err := syncproto.SyncRequestObject(conn, syncproto.Packet_RECV_V2, syncproto.SyncRecv2{
				Flags: method.syncFlag(),
			}); err != nil {
				return err
			}
		} else {
			if err := syncproto.SyncRequest(conn, syncproto.Packet_RECV_V1, name); err != nil {
				return err
			}
		}
		debug.Debug("sync recv", "path", name, "compression", method)

		r = &pathErrorReader{syncproto.SyncDataReader(conn), name}
		if method != compressionMethodNone {
			dr, err := c.cfg.decompress(method, r)
			if err != nil {
				return fmt.Errorf("decompress %s: %w", method, err)
			}
			r = &decompressReader{dr}
		}
		c.broken = errors.New("sync session consumed by recv")
		return nil
	})
	if err != nil {
		return nil, pathError("open", name, err)
	}
	return r, nil
}

// decompressReader turns corrupt compressed data into a protocol error.
type decompressReader struct {
	r io.ReadCloser
}

func (d *decompressReader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	if err != nil && err != io.EOF {
		var pe *fs.PathError
		if !errors.As(err, &pe) && !errors.Is(err, adbproto.ErrProtocol) {
			err = adbproto.ProtocolErrorf("decompress: %w", err)
		}
	}
	return n, err
}

func (d *decompressReader) Close() error {
	return d.r.Close()
}

// pathErrorReader wraps sync failures in a [fs.PathError].
type pathErrorReader struct {
	r    io.Reader
	name string
}

func (p *pathErrorReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if err != nil && err != io.EOF {
		err = pathError("read", p.name, err)
	}
	return n, err
}

// pathError wraps device failures in a [fs.PathError]. Protocol and
// connection errors are returned as-is.
func pathError(op, name string, err error) error {
	var sf syncproto.SyncFail
	if errors.As(err, &sf) {
		return &fs.PathError{Op: op, Path: name, Err: err}
	}
	return err
}

// Content is a file being read from the device.
type Content struct {
	// Stat is the information about the file at the time it was opened.
	Stat

	conn   *Conn
	r      io.Reader
	ctx    context.Context
	stop   func() bool
	once   sync.Once
	closed atomic.Bool
}

// Size returns the number of bytes which will be read.
func (c *Content) Size() int64 {
	return int64(c.Stat.Size)
}

// Read reads the next chunk of the file. Once the content is closed or the
// context passed to [Client.Open] is done, no more data is returned.
func (c *Content) Read(p []byte) (int, error) {
	if c.closed.Load() || c.ctx.Err() != nil {
		return 0, c.closedErr()
	}
	n, err := c.r.Read(p)
	if c.closed.Load() || c.ctx.Err() != nil {
		return 0, c.closedErr()
	}
	return n, err
}

func (c *Content) closedErr() error {
	if err := context.Cause(c.ctx); err != nil {
		return err
	}
	return fs.ErrClosed
}

func (c *Content) abort() {
	if !c.closed.Swap(true) {
		c.conn.conn.Close()
	}
}

// Close stops reading the file and closes the connection.
func (c *Content) Close() error {
	c.stop()
	c.once.Do(func() {
		if rc, ok := c.r.(io.Closer); ok {
			rc.Close()
		}
	})
	if c.closed.Swap(true) {
		return nil
	}
	return c.conn.conn.Close()
}

// Stat gets information about a file.
func (c *Client) Stat(ctx context.Context, name string) (Stat, error) {
	var st Stat
	err := c.with(ctx, func(conn *Conn) (err error) {
		st, err = conn.Stat(name)
		return
	})
	return st, err
}

// DirList lists a directory, without the "." and ".." entries. The result is
// non-nil if no error is returned.
func (c *Client) DirList(ctx context.Context, name string) ([]DirEntry, error) {
	var ents []DirEntry
	err := c.with(ctx, func(conn *Conn) (err error) {
		ents, err = conn.List(name)
		return
	})
	return ents, err
}

// Open stats name, then starts reading it on the same session. The returned
// content must be closed. Cancelling ctx closes the content.
func (c *Client) Open(ctx context.Context, name string) (*Content, error) {
	conn, err := c.Dial(ctx)
	if err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		conn.conn.Close()
	})
	st, err := conn.Stat(name)
	if err != nil {
		stop()
		conn.Close()
		if ctx.Err() != nil {
			return nil, context.Cause(ctx)
		}
		return nil, err
	}
	if st.IsDir() {
		stop()
		conn.Close()
		return nil, &fs.PathError{Op: "open", Path: name, Err: adbproto.EISDIR}
	}
	r, err := conn.Recv(name)
	if err != nil {
		stop()
		conn.Close()
		return nil, err
	}
	stop()
	content := &Content{
		Stat: st,
		conn: conn,
		r:    r,
		ctx:  ctx,
	}
	content.stop = context.AfterFunc(ctx, content.abort)
	return content, nil
}

// ReadFile reads an entire file.
func (c *Client) ReadFile(ctx context.Context, name string) ([]byte, error) {
	content, err := c.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer content.Close()

	buf := make([]byte, 0, min(content.Size(), 64<<20)+1)
	for {
		n, err := content.Read(buf[len(buf):cap(buf)])
		buf = buf[:len(buf)+n]
		if err != nil {
			if err == io.EOF {
				return buf, nil
			}
			return buf, err
		}
		if len(buf) == cap(buf) {
			buf = append(buf, 0)[:len(buf)]
		}
	}
}

// with runs fn on a new session, closing it early if ctx is cancelled.
func (c *Client) with(ctx context.Context, fn func(conn *Conn) error) error {
	conn, err := c.Dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		conn.conn.Close()
	})
	defer stop()

	if err := fn(conn); err != nil {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		return err
	}
	return nil
}
