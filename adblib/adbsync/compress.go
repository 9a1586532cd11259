package adbsync

import (
	"errors"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/adbview/adbview/adb"
	"github.com/adbview/adbview/adb/adbproto"
	"github.com/adbview/adbview/adb/adbproto/syncproto"
)

// CompressionMethod is a compression algorithm used by RCV2 transfers. The
// zero value means no compression.
type CompressionMethod string

const (
	compressionMethodNone   CompressionMethod = "" // not exported intentionally
	CompressionMethodBrotli CompressionMethod = "brotli"
	CompressionMethodLZ4    CompressionMethod = "lz4"
	CompressionMethodZstd   CompressionMethod = "zstd"
)

func (m CompressionMethod) syncFlag() uint32 {
	switch m {
	case CompressionMethodBrotli:
		return syncproto.SyncFlag_Brotli
	case CompressionMethodLZ4:
		return syncproto.SyncFlag_LZ4
	case CompressionMethodZstd:
		return syncproto.SyncFlag_Zstd
	default:
		return syncproto.SyncFlag_None
	}
}

func (m CompressionMethod) adbFeature() adbproto.Feature {
	switch m {
	case CompressionMethodBrotli:
		return syncproto.Feature_sendrecv_v2_brotli
	case CompressionMethodLZ4:
		return syncproto.Feature_sendrecv_v2_lz4
	case CompressionMethodZstd:
		return syncproto.Feature_sendrecv_v2_zstd
	default:
		return ""
	}
}

// CompressionConfig controls which compressed transfers are requested from
// the device.
type CompressionConfig struct {
	// DecompressMethods, if not nil, sets the allowed decompression methods in
	// the preferred order. An empty slice disables compression. A nil slice
	// uses the default value. The values will be limited to ones supported by
	// the server.
	DecompressMethods []CompressionMethod

	// DecompressFunc allows the decompression parameters to be customized.
	DecompressFunc func(method CompressionMethod, r io.Reader) (io.ReadCloser, error)
}

// DefaultCompressionConfig is used if a client has no CompressionConfig. It
// accepts zstd, then lz4, then brotli.
var DefaultCompressionConfig = &CompressionConfig{}

var defaultMethods = []CompressionMethod{
	CompressionMethodZstd,
	CompressionMethodLZ4,
	CompressionMethodBrotli,
}

func defaultDecompress(method CompressionMethod, r io.Reader) (io.ReadCloser, error) {
	switch method {
	case CompressionMethodBrotli:
		return io.NopCloser(brotli.NewReader(r)), nil
	case CompressionMethodLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case CompressionMethodZstd:
		d, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return d.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported decompression method %q", errors.ErrUnsupported, method)
	}
}

// decompressNegotiate picks the first allowed method which both sides
// support, or none.
func (c *CompressionConfig) decompressNegotiate(d adb.Dialer) CompressionMethod {
	if c == nil {
		c = DefaultCompressionConfig
	}
	m := c.DecompressMethods
	if m == nil {
		m = defaultMethods
	}
	for _, m := range m {
		if m == compressionMethodNone {
			break
		}
		if adb.SupportsFeature(d, syncproto.Feature_sendrecv_v2, m.adbFeature()) == nil {
			return m
		}
	}
	return compressionMethodNone
}

func (c *CompressionConfig) decompress(method CompressionMethod, r io.Reader) (io.ReadCloser, error) {
	if method == compressionMethodNone {
		panic("decompress called with method none")
	}
	if c == nil {
		c = DefaultCompressionConfig
	}
	fn := c.DecompressFunc
	if fn == nil {
		fn = defaultDecompress
	}
	return fn(method, r)
}
