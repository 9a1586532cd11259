package syncproto

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"io/fs"
	"testing"

	"github.com/adbview/adbview/adb/adbproto"
)

func record(id PacketID, fields ...any) []byte {
	b := id[:]
	for _, f := range fields {
		switch f := f.(type) {
		case string:
			b = append(b, f...)
		case []byte:
			b = append(b, f...)
		default:
			b, _ = binary.Append(b, binary.LittleEndian, f)
		}
	}
	return b
}

func TestSyncRequest(t *testing.T) {
	var buf bytes.Buffer
	if err := SyncRequest(&buf, Packet_LSTAT_V1, "/sdcard"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if act, exp := buf.Bytes(), []byte("STAT\x07\x00\x00\x00/sdcard"); !bytes.Equal(act, exp) {
		t.Errorf("incorrect request:\n\texp %q\n\tact %q", exp, act)
	}

	buf.Reset()
	if err := SyncRequestObject(&buf, Packet_RECV_V2, SyncRecv2{Flags: SyncFlag_Zstd}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if act, exp := buf.Bytes(), []byte("RCV2\x04\x00\x00\x00"); !bytes.Equal(act, exp) {
		t.Errorf("incorrect request:\n\texp %q\n\tact %q", exp, act)
	}
}

func TestReadRecord(t *testing.T) {
	t.Run("Stat", func(t *testing.T) {
		r := bytes.NewReader(record(Packet_LSTAT_V1, SyncStat1{0x41ED, 0, 1700000000}))
		rec, err := ReadRecord(r, Packet_LSTAT_V1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		st, ok := rec.(*StatRecord)
		if !ok {
			t.Fatalf("expected stat record, got %T", rec)
		}
		if st.Mode != 0x41ED || st.Mtime != 1700000000 {
			t.Errorf("incorrect stat: %+v", st.SyncStat1)
		}
	})
	t.Run("Dent", func(t *testing.T) {
		r := bytes.NewReader(bytes.Join([][]byte{
			record(Packet_DENT_V1, SyncDent1{0x81A4, 12, 3, 5}, "a.txt"),
			record(Packet_DONE, SyncDent1{}),
		}, nil))
		rec, err := ReadRecord(r, Packet_DENT_V1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if de, ok := rec.(*DentRecord); !ok || de.Name != "a.txt" || de.Size != 12 {
			t.Fatalf("incorrect dent: %#v", rec)
		}
		rec, err = ReadRecord(r, Packet_DENT_V1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := rec.(*DoneRecord); !ok {
			t.Fatalf("expected done record, got %T", rec)
		}
		if r.Len() != 0 {
			t.Errorf("expected padded done record to be fully consumed, %d bytes left", r.Len())
		}
	})
	t.Run("Fail", func(t *testing.T) {
		msg := "open failed: No such file or directory"
		r := bytes.NewReader(record(Packet_FAIL, uint32(len(msg)), msg))
		rec, err := ReadRecord(r, Packet_DATA)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		fr, ok := rec.(*FailRecord)
		if !ok {
			t.Fatalf("expected fail record, got %T", rec)
		}
		if err := fr.Err(); !errors.Is(err, fs.ErrNotExist) {
			t.Errorf("expected failure to match fs.ErrNotExist, got %v", err)
		}
	})
	t.Run("Unexpected", func(t *testing.T) {
		r := bytes.NewReader(record(PacketID{'W', 'H', 'A', 'T'}, uint32(0)))
		if _, err := ReadRecord(r, Packet_DENT_V1); !errors.Is(err, adbproto.ErrProtocol) {
			t.Errorf("expected protocol error, got %v", err)
		}
	})
	t.Run("DoneForStat", func(t *testing.T) {
		r := bytes.NewReader(record(Packet_DONE, SyncStat1{}))
		if _, err := ReadRecord(r, Packet_LSTAT_V1); !errors.Is(err, adbproto.ErrProtocol) {
			t.Errorf("expected protocol error, got %v", err)
		}
	})
	t.Run("Truncated", func(t *testing.T) {
		r := bytes.NewReader(record(Packet_DENT_V1, SyncDent1{0x81A4, 12, 3, 5}, "a."))
		if _, err := ReadRecord(r, Packet_DENT_V1); !errors.Is(err, adbproto.ErrProtocol) {
			t.Errorf("expected protocol error, got %v", err)
		}
	})
}

func TestSyncDataReader(t *testing.T) {
	var wire []byte
	var exp []byte
	for _, chunk := range []string{"hello", "", ", ", "world"} {
		wire = append(wire, record(Packet_DATA, uint32(len(chunk)), chunk)...)
		exp = append(exp, chunk...)
	}
	wire = append(wire, record(Packet_DONE, uint32(0))...)

	act, err := io.ReadAll(SyncDataReader(bytes.NewReader(wire)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(act, exp) {
		t.Errorf("incorrect data: expected %q, got %q", exp, act)
	}

	t.Run("Fail", func(t *testing.T) {
		msg := "read failed: Is a directory"
		wire := append(record(Packet_DATA, uint32(2), "ab"), record(Packet_FAIL, uint32(len(msg)), msg)...)
		r := SyncDataReader(bytes.NewReader(wire))
		act, err := io.ReadAll(r)
		if string(act) != "ab" {
			t.Errorf("expected data before failure to be delivered, got %q", act)
		}
		var sf SyncFail
		if !errors.As(err, &sf) || string(sf) != msg {
			t.Errorf("expected sync failure %q, got %v", msg, err)
		}
		if _, err2 := r.Read(make([]byte, 1)); err2 != err {
			t.Errorf("expected sticky error, got %v", err2)
		}
	})
	t.Run("Truncated", func(t *testing.T) {
		r := SyncDataReader(bytes.NewReader(record(Packet_DATA, uint32(10), "abc")))
		if _, err := io.ReadAll(r); !errors.Is(err, adbproto.ErrProtocol) {
			t.Errorf("expected protocol error, got %v", err)
		}
	})
}
