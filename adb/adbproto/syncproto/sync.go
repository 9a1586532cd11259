package syncproto

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/adbview/adbview/adb/adbproto"
)

// maximum length of a path or failure message we'll accept from the device
const maxNameLen = 4096

// SyncRequest sends a request with a path argument.
func SyncRequest(w io.Writer, id PacketID, path string) error {
	req := make([]byte, 4+4+len(path))
	copy(req[0:4], id[:])
	binary.LittleEndian.PutUint32(req[4:8], uint32(len(path)))
	copy(req[8:], path)
	if _, err := w.Write(req); err != nil {
		return adbproto.ProtocolErrorf("sync request: %w", err)
	}
	return nil
}

// SyncRequestObject sends a request with a fixed-size argument.
func SyncRequestObject(w io.Writer, id PacketID, obj any) error {
	req, err := binary.Append(id[:], binary.LittleEndian, obj)
	if err != nil {
		return adbproto.ProtocolErrorf("encode sync request: %w", err)
	}
	if _, err := w.Write(req); err != nil {
		return adbproto.ProtocolErrorf("sync request: %w", err)
	}
	return nil
}

// ReadRecord reads the next response to a request expecting reply records of
// type want (one of STAT, DENT or DATA). A DONE record is padded to the size of
// the expected record. FAIL is returned as a [*FailRecord]. Any other id is a
// protocol error, after which the connection must not be reused.
func ReadRecord(r io.Reader, want PacketID) (Record, error) {
	var id PacketID
	if _, err := io.ReadFull(r, id[:]); err != nil {
		return nil, adbproto.ProtocolErrorf("read sync response id: %w", err)
	}
	switch id {
	case Packet_FAIL:
		var st SyncStatus
		if err := binary.Read(r, binary.LittleEndian, &st); err != nil {
			return nil, adbproto.ProtocolErrorf("read sync error response: %w", err)
		}
		if st.Msglen > maxNameLen {
			return nil, adbproto.ProtocolErrorf("sync error message too long (len=%d)", st.Msglen)
		}
		msg := make([]byte, st.Msglen)
		if _, err := io.ReadFull(r, msg); err != nil {
			return nil, adbproto.ProtocolErrorf("read sync error response: %w", err)
		}
		return &FailRecord{Message: string(msg)}, nil
	case want, Packet_DONE:
		// handled below
	default:
		return nil, adbproto.ProtocolErrorf("unexpected sync response id %q (expected %s or DONE)", id, want)
	}
	switch want {
	case Packet_LSTAT_V1:
		if id == Packet_DONE {
			break // STAT is never terminated by DONE
		}
		var rec StatRecord
		if err := binary.Read(r, binary.LittleEndian, &rec.SyncStat1); err != nil {
			return nil, adbproto.ProtocolErrorf("read sync response %s: %w", id, err)
		}
		return &rec, nil
	case Packet_DENT_V1:
		var rec DentRecord
		if err := binary.Read(r, binary.LittleEndian, &rec.SyncDent1); err != nil {
			return nil, adbproto.ProtocolErrorf("read sync response %s: %w", id, err)
		}
		if id == Packet_DONE {
			return &DoneRecord{}, nil
		}
		if rec.Namelen > maxNameLen {
			return nil, adbproto.ProtocolErrorf("sync dent name too long (len=%d)", rec.Namelen)
		}
		name := make([]byte, rec.Namelen)
		if _, err := io.ReadFull(r, name); err != nil {
			return nil, adbproto.ProtocolErrorf("read sync dent name: %w", err)
		}
		rec.Name = string(name)
		return &rec, nil
	case Packet_DATA:
		var rec DataRecord
		if err := binary.Read(r, binary.LittleEndian, &rec.SyncData); err != nil {
			return nil, adbproto.ProtocolErrorf("read sync response %s: %w", id, err)
		}
		if id == Packet_DONE {
			return &DoneRecord{}, nil
		}
		if rec.Size > SyncDataMax {
			return nil, adbproto.ProtocolErrorf("sync data chunk too large (len=%d)", rec.Size)
		}
		return &rec, nil
	}
	return nil, adbproto.ProtocolErrorf("unexpected sync response id %q (expected %s)", id, want)
}

// SyncDataReader returns a reader which reads recv data from r. It returns
// [io.EOF] after successfully reading everything, or a sticky error otherwise.
// The reader is not safe for concurrent usage.
func SyncDataReader(r io.Reader) io.Reader {
	return &syncDataReader{
		r: r,
	}
}

type syncDataReader struct {
	r   io.Reader
	buf bytes.Buffer
	err error
}

func (r *syncDataReader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}

	for r.buf.Len() == 0 {
		// get another chunk
		rec, err := ReadRecord(r.r, Packet_DATA)
		if err != nil {
			r.err = err
			return 0, r.err
		}
		switch rec := rec.(type) {
		case *DoneRecord:
			r.err = io.EOF
			return 0, r.err
		case *FailRecord:
			r.err = rec.Err()
			return 0, r.err
		case *DataRecord:
			// read a chunk
			r.buf.Grow(int(rec.Size))
			if _, err := io.ReadFull(r.r, r.buf.AvailableBuffer()[:rec.Size]); err != nil {
				r.err = adbproto.ProtocolErrorf("read sync data (len=%d): %w", rec.Size, err)
				return 0, r.err
			}
			r.buf.Write(r.buf.AvailableBuffer()[:rec.Size])
		}
	}

	// read from our buffered chunk
	return r.buf.Read(p)
}
