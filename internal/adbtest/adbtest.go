// Package adbtest implements an in-memory ADB host server for tests.
package adbtest

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"slices"
	"strings"
	"sync"
	"syscall"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/adbview/adbview/adb/adbproto"
	"github.com/adbview/adbview/adb/adbproto/adbpb"
	"github.com/adbview/adbview/adb/adbproto/syncproto"
)

// File is a file or directory on a fake device. The size is the length of
// Data.
type File struct {
	Mode  uint32
	Mtime uint32
	Data  []byte
}

// Dir returns a directory with mode 040755.
func Dir() *File {
	return &File{Mode: 0o40755}
}

// Reg returns a regular file with mode 0100644.
func Reg(data string) *File {
	return &File{Mode: 0o100644, Data: []byte(data)}
}

// Device is a device attached to a fake server.
type Device struct {
	Serial      string
	State       string
	Product     string
	Model       string
	TransportID uint64
	Features    []string

	// Files maps absolute paths to files.
	Files map[string]*File

	// Framebuffer is written as-is in response to "framebuffer:".
	Framebuffer []byte
}

// Server is a fake ADB host server. Connections are created in-memory with
// [net.Pipe] by [Server.DialContext], and each one is served on its own
// goroutine.
type Server struct {
	// Features is the list of host features.
	Features []string

	// ChunkSize limits the size of DATA chunks. If zero,
	// [syncproto.SyncDataMax] is used.
	ChunkSize int

	// Refuse makes DialContext fail with ECONNREFUSED.
	Refuse bool

	mu      sync.Mutex
	devices []*Device
	changed chan struct{}
	log     []string
}

// NewServer creates a server with the provided devices.
func NewServer(devs ...*Device) *Server {
	return &Server{
		devices: devs,
		changed: make(chan struct{}),
	}
}

// SetDevices replaces the attached devices and notifies device trackers.
func (s *Server) SetDevices(devs ...*Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices = devs
	close(s.changed)
	s.changed = make(chan struct{})
}

// Requests returns the services and sync requests received so far, in order.
// Sync requests are formatted like "STAT /sdcard".
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.log)
}

// DialContext can be used as the DialContext of an adbhost.Dialer.
func (s *Server) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if s.Refuse {
		return nil, &net.OpError{Op: "dial", Net: network, Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c1, c2 := net.Pipe()
	go func() {
		defer c2.Close()
		s.serve(c2)
	}()
	return c1, nil
}

func (s *Server) record(req string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, req)
}

func (s *Server) snapshot() ([]*Device, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.devices), s.changed
}

func (s *Server) lookup(serial string) (*Device, error) {
	devs, _ := s.snapshot()
	for _, d := range devs {
		if d.Serial == serial {
			if d.State != "device" {
				return nil, fmt.Errorf("device %s", d.State)
			}
			return d, nil
		}
	}
	return nil, fmt.Errorf("device '%s' not found", serial)
}

func (s *Server) serve(conn net.Conn) {
	svc, err := adbproto.ReadProtocolBytes(conn, nil)
	if err != nil {
		return
	}
	s.record(string(svc))

	switch svcs := string(svc); {
	case svcs == "host:devices" || svcs == "host:devices-l":
		devs, _ := s.snapshot()
		adbproto.SendOkay(conn)
		adbproto.SendProtocolString(conn, formatDevices(devs, svcs == "host:devices-l"))

	case svcs == "host:track-devices" || svcs == "host:track-devices-l" || svcs == "host:track-devices-proto-binary":
		adbproto.SendOkay(conn)
		closed := make(chan struct{})
		go func() {
			io.Copy(io.Discard, conn)
			close(closed)
		}()
		for {
			devs, changed := s.snapshot()
			var msg string
			if svcs == "host:track-devices-proto-binary" {
				msg = string(protoDevices(devs))
			} else {
				msg = formatDevices(devs, svcs == "host:track-devices-l")
			}
			if adbproto.SendProtocolString(conn, msg) != nil {
				return
			}
			select {
			case <-changed:
			case <-closed:
				return
			}
		}

	case svcs == "host:host-features":
		adbproto.SendOkay(conn)
		adbproto.SendProtocolString(conn, strings.Join(s.Features, ","))

	case strings.HasPrefix(svcs, "host-serial:") && strings.HasSuffix(svcs, ":features"):
		dev, err := s.lookup(strings.TrimSuffix(strings.TrimPrefix(svcs, "host-serial:"), ":features"))
		if err != nil {
			adbproto.SendFail(conn, err.Error())
			return
		}
		adbproto.SendOkay(conn)
		adbproto.SendProtocolString(conn, strings.Join(dev.Features, ","))

	case strings.HasPrefix(svcs, "host:transport:"):
		dev, err := s.lookup(strings.TrimPrefix(svcs, "host:transport:"))
		if err != nil {
			adbproto.SendFail(conn, err.Error())
			return
		}
		adbproto.SendOkay(conn)
		s.serveDevice(conn, dev)

	default:
		adbproto.SendFail(conn, "unknown host service")
	}
}

func (s *Server) serveDevice(conn net.Conn, dev *Device) {
	svc, err := adbproto.ReadProtocolBytes(conn, nil)
	if err != nil {
		return
	}
	s.record(string(svc))

	switch string(svc) {
	case "sync:":
		adbproto.SendOkay(conn)
		s.serveSync(conn, dev)
	case "framebuffer:":
		adbproto.SendOkay(conn)
		conn.Write(dev.Framebuffer)
	default:
		adbproto.SendFail(conn, "unknown service")
	}
}

func (s *Server) serveSync(conn net.Conn, dev *Device) {
	for {
		var hdr struct {
			ID  syncproto.PacketID
			Len uint32
		}
		if err := binary.Read(conn, binary.LittleEndian, &hdr); err != nil {
			return
		}
		if hdr.ID == syncproto.Packet_QUIT {
			return
		}
		arg := make([]byte, hdr.Len)
		if _, err := io.ReadFull(conn, arg); err != nil {
			return
		}
		p := string(arg)
		s.record(hdr.ID.String() + " " + p)

		var err error
		switch hdr.ID {
		case syncproto.Packet_LSTAT_V1:
			err = s.syncStat(conn, dev, p)
		case syncproto.Packet_LIST_V1:
			err = s.syncList(conn, dev, p)
		case syncproto.Packet_RECV_V1:
			err = s.syncRecv(conn, dev, p, syncproto.SyncFlag_None)
		case syncproto.Packet_RECV_V2:
			var req struct {
				ID syncproto.PacketID
				syncproto.SyncRecv2
			}
			if err := binary.Read(conn, binary.LittleEndian, &req); err != nil {
				return
			}
			err = s.syncRecv(conn, dev, p, req.Flags)
		default:
			syncFail(conn, "unknown command")
			return
		}
		if err != nil {
			return
		}
	}
}

func (s *Server) syncStat(w io.Writer, dev *Device, p string) error {
	var st syncproto.SyncStat1
	if f, ok := dev.Files[p]; ok {
		st = syncproto.SyncStat1{Mode: f.Mode, Size: uint32(len(f.Data)), Mtime: f.Mtime}
	}
	b, _ := binary.Append(syncproto.Packet_LSTAT_V1[:], binary.LittleEndian, st)
	_, err := w.Write(b)
	return err
}

func (s *Server) syncList(w io.Writer, dev *Device, p string) error {
	var b []byte
	if f, ok := dev.Files[p]; ok && f.Mode&0o170000 == 0o040000 {
		dent := func(name string, f *File) {
			b, _ = binary.Append(b, binary.LittleEndian, syncproto.Packet_DENT_V1)
			b, _ = binary.Append(b, binary.LittleEndian, syncproto.SyncDent1{
				Mode:    f.Mode,
				Size:    uint32(len(f.Data)),
				Mtime:   f.Mtime,
				Namelen: uint32(len(name)),
			})
			b = append(b, name...)
		}
		dent(".", f)
		dent("..", Dir())
		var names []string
		for fp := range dev.Files {
			if fp != p && path.Dir(fp) == path.Clean(p) {
				names = append(names, path.Base(fp))
			}
		}
		slices.Sort(names)
		for _, name := range names {
			dent(name, dev.Files[path.Join(p, name)])
		}
	}
	b, _ = binary.Append(b, binary.LittleEndian, syncproto.Packet_DONE)
	b, _ = binary.Append(b, binary.LittleEndian, syncproto.SyncDent1{})
	_, err := w.Write(b)
	return err
}

func (s *Server) syncRecv(w io.Writer, dev *Device, p string, flags uint32) error {
	f, ok := dev.Files[p]
	if !ok {
		return syncFail(w, "open failed: No such file or directory")
	}
	if f.Mode&0o170000 == 0o040000 {
		return syncFail(w, "read failed: Is a directory")
	}
	data, err := compress(f.Data, flags)
	if err != nil {
		return syncFail(w, err.Error())
	}
	chunk := s.ChunkSize
	if chunk <= 0 {
		chunk = syncproto.SyncDataMax
	}
	for c := range slices.Chunk(data, chunk) {
		b, _ := binary.Append(syncproto.Packet_DATA[:], binary.LittleEndian, syncproto.SyncData{Size: uint32(len(c))})
		if _, err := w.Write(append(b, c...)); err != nil {
			return err
		}
	}
	b, _ := binary.Append(syncproto.Packet_DONE[:], binary.LittleEndian, syncproto.SyncData{})
	_, err = w.Write(b)
	return err
}

func syncFail(w io.Writer, msg string) error {
	b, _ := binary.Append(syncproto.Packet_FAIL[:], binary.LittleEndian, syncproto.SyncStatus{Msglen: uint32(len(msg))})
	_, err := w.Write(append(b, msg...))
	return err
}

func compress(data []byte, flags uint32) ([]byte, error) {
	var (
		buf bytes.Buffer
		w   io.WriteCloser
		err error
	)
	switch flags {
	case syncproto.SyncFlag_None:
		return data, nil
	case syncproto.SyncFlag_Brotli:
		w = brotli.NewWriter(&buf)
	case syncproto.SyncFlag_LZ4:
		w = lz4.NewWriter(&buf)
	case syncproto.SyncFlag_Zstd:
		w, err = zstd.NewWriter(&buf)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported flags %d", flags)
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatDevices(devs []*Device, long bool) string {
	var b strings.Builder
	for _, d := range devs {
		if !long {
			fmt.Fprintf(&b, "%s\t%s\n", d.Serial, d.State)
			continue
		}
		fmt.Fprintf(&b, "%-22s %s", d.Serial, d.State)
		if d.Product != "" {
			fmt.Fprintf(&b, " product:%s", d.Product)
		}
		if d.Model != "" {
			fmt.Fprintf(&b, " model:%s", d.Model)
		}
		if d.TransportID != 0 {
			fmt.Fprintf(&b, " transport_id:%d", d.TransportID)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

var protoStates = map[string]adbpb.ConnectionState{
	"offline":      adbpb.ConnectionState_OFFLINE,
	"device":       adbpb.ConnectionState_DEVICE,
	"unauthorized": adbpb.ConnectionState_UNAUTHORIZED,
	"recovery":     adbpb.ConnectionState_RECOVERY,
}

func protoDevices(devs []*Device) []byte {
	pdevs := make([]*adbpb.Device, 0, len(devs))
	for _, d := range devs {
		pdevs = append(pdevs, &adbpb.Device{
			Serial:         d.Serial,
			State:          protoStates[d.State],
			Product:        d.Product,
			Model:          d.Model,
			ConnectionType: adbpb.ConnectionType_USB,
			TransportId:    int64(d.TransportID),
		})
	}
	return adbpb.AppendDevices(nil, pdevs)
}
