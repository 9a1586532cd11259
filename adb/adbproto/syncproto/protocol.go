// Package syncproto implements the sync service wire format.
package syncproto

import (
	"github.com/adbview/adbview/adb/adbproto"
)

// https://cs.android.com/android/platform/superproject/main/+/main:packages/modules/adb/file_sync_protocol.h;drc=af6fae67a49070ca75c26ceed5759576eb4d3573

const (
	Feature_sendrecv_v2        = adbproto.FeatureSendRecv2
	Feature_sendrecv_v2_brotli = adbproto.FeatureSendRecv2Brotli
	Feature_sendrecv_v2_lz4    = adbproto.FeatureSendRecv2LZ4
	Feature_sendrecv_v2_zstd   = adbproto.FeatureSendRecv2Zstd
)

type PacketID [4]byte

var (
	Packet_LSTAT_V1 = PacketID{'S', 'T', 'A', 'T'}
	Packet_LIST_V1  = PacketID{'L', 'I', 'S', 'T'}
	Packet_DENT_V1  = PacketID{'D', 'E', 'N', 'T'}
	Packet_RECV_V1  = PacketID{'R', 'E', 'C', 'V'}
	Packet_RECV_V2  = PacketID{'R', 'C', 'V', '2'} // if sendrecv_v2
	Packet_DONE     = PacketID{'D', 'O', 'N', 'E'} // signals the end of an array of values
	Packet_DATA     = PacketID{'D', 'A', 'T', 'A'}
	Packet_OKAY     = PacketID{'O', 'K', 'A', 'Y'}
	Packet_FAIL     = PacketID{'F', 'A', 'I', 'L'}
	Packet_QUIT     = PacketID{'Q', 'U', 'I', 'T'}
)

func (id PacketID) String() string {
	return string(id[:])
}

// SyncFail is a failure message sent by the device.
type SyncFail string

func (s SyncFail) Error() string {
	return string(s)
}

// Unwrap returns the [adbproto.Errno] named by the message, if any.
func (s SyncFail) Unwrap() error {
	if e, ok := adbproto.ErrnoFromMessage(string(s)); ok {
		return e
	}
	return nil
}

const SyncDataMax = 64 * 1024

type SyncStat1 struct {
	// Packet_LSTAT_V1
	Mode  uint32
	Size  uint32
	Mtime uint32
}

type SyncDent1 struct {
	// Packet_DENT_V1
	Mode    uint32
	Size    uint32
	Mtime   uint32
	Namelen uint32
	// followed by `namelen` bytes of the name.
}

const (
	SyncFlag_None   uint32 = 0
	SyncFlag_Brotli uint32 = 1 // if sendrecv_v2_brotli
	SyncFlag_LZ4    uint32 = 2 // if sendrecv_v2_lz4
	SyncFlag_Zstd   uint32 = 4 // if sendrecv_v2_zstd
)

// recv_v1 just sends the path without any accompanying data.

// recv_v2 sends just the path in the first request, and then sends another with details.
type SyncRecv2 struct {
	// Packet_RECV_V2
	Flags uint32
}

type SyncData struct {
	// Packet_DATA
	Size uint32
	// followed by `size` bytes of data.
}

type SyncStatus struct {
	// Packet_OKAY, Packet_FAIL, Packet_DONE
	Msglen uint32
	// followed by `msglen` bytes of error message, if id == ID_FAIL.
}

// Record is a decoded sync response. It is one of [*StatRecord],
// [*DentRecord], [*DataRecord], [*DoneRecord] or [*FailRecord].
type Record interface {
	ID() PacketID
}

// StatRecord is the reply to a STAT request.
type StatRecord struct {
	SyncStat1
}

// DentRecord is one entry of a LIST reply.
type DentRecord struct {
	SyncDent1
	Name string
}

// DataRecord is one chunk of a RECV reply. It is followed on the wire by Size
// bytes of data, which have not been consumed yet.
type DataRecord struct {
	SyncData
}

// DoneRecord ends a LIST or RECV reply.
type DoneRecord struct{}

// FailRecord is an error reported by the device.
type FailRecord struct {
	Message string
}

func (*StatRecord) ID() PacketID { return Packet_LSTAT_V1 }
func (*DentRecord) ID() PacketID { return Packet_DENT_V1 }
func (*DataRecord) ID() PacketID { return Packet_DATA }
func (*DoneRecord) ID() PacketID { return Packet_DONE }
func (*FailRecord) ID() PacketID { return Packet_FAIL }

// Err returns the failure as a [SyncFail].
func (r *FailRecord) Err() error {
	return SyncFail(r.Message)
}
