// Package fbproto implements the framebuffer service header.
package fbproto

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/adbview/adbview/adb/adbproto"
)

// https://cs.android.com/android/platform/superproject/main/+/main:packages/modules/adb/daemon/framebuffer_service.cpp;drc=61197364367c9e404c7da6900658f1b16c42d0da

const (
	Version1      = 1  // bpp, size, geometry and channel layout
	Version2      = 2  // like Version1, but with a color space after bpp
	VersionLegacy = 16 // size and geometry only, always RGB565
)

// Channel is the position of a color channel within a pixel, in bits from the
// least significant bit of the little-endian pixel value.
type Channel struct {
	Offset uint32
	Width  uint32
}

// Header describes the pixels which follow it.
type Header struct {
	Version      uint32
	BitsPerPixel uint32
	ColorSpace   uint32 // Version2 only
	Size         uint32
	Width        uint32
	Height       uint32
	Red          Channel
	Green        Channel
	Blue         Channel
	Alpha        Channel
}

// BytesPerPixel returns the number of bytes used by each pixel.
func (h Header) BytesPerPixel() int {
	return int(h.BitsPerPixel+7) / 8
}

// MaxPixelsLen is the largest amount of pixel data accepted after a header.
const MaxPixelsLen = 256 << 20

// PixelsLen returns the number of bytes of pixel data which follow the header,
// or -1 if it would exceed [MaxPixelsLen].
func (h Header) PixelsLen() int64 {
	n := uint64(h.Width) * uint64(h.Height)
	if bpp := uint64(h.BytesPerPixel()); bpp != 0 {
		if n > MaxPixelsLen/bpp {
			return -1
		}
		n *= bpp
	}
	return int64(n)
}

// checkLen ensures the pixel data length is sane and matches the size the
// device reported.
func (h Header) checkLen() error {
	n := h.PixelsLen()
	if n < 0 {
		return adbproto.ProtocolErrorf("framebuffer too large (%dx%d, %d bpp)", h.Width, h.Height, h.BitsPerPixel)
	}
	if int64(h.Size) != n {
		return adbproto.ProtocolErrorf("framebuffer size %d does not match %dx%d at %d bpp", h.Size, h.Width, h.Height, h.BitsPerPixel)
	}
	return nil
}

// channels in wire order
type layout struct {
	Size                    uint32
	Width                   uint32
	Height                  uint32
	RedOffset, RedWidth     uint32
	BlueOffset, BlueWidth   uint32
	GreenOffset, GreenWidth uint32
	AlphaOffset, AlphaWidth uint32
}

// ReadHeader reads a framebuffer header. Legacy headers are returned with an
// explicit RGB565 layout. The size must be exactly the length of the pixels,
// and no more than [MaxPixelsLen].
func ReadHeader(r io.Reader) (Header, error) {
	var h Header
	if err := binary.Read(r, binary.LittleEndian, &h.Version); err != nil {
		return h, adbproto.ProtocolErrorf("read framebuffer version: %w", err)
	}
	switch h.Version {
	case VersionLegacy:
		var v struct{ Size, Width, Height uint32 }
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return h, adbproto.ProtocolErrorf("read legacy framebuffer header: %w", err)
		}
		h.BitsPerPixel = 16
		h.Size, h.Width, h.Height = v.Size, v.Width, v.Height
		h.Red = Channel{11, 5}
		h.Green = Channel{5, 6}
		h.Blue = Channel{0, 5}
		return h, h.checkLen()
	case Version1, Version2:
	default:
		return h, adbproto.ProtocolErrorf("unsupported framebuffer version %d", h.Version)
	}
	if err := binary.Read(r, binary.LittleEndian, &h.BitsPerPixel); err != nil {
		return h, adbproto.ProtocolErrorf("read framebuffer header: %w", err)
	}
	if h.Version == Version2 {
		if err := binary.Read(r, binary.LittleEndian, &h.ColorSpace); err != nil {
			return h, adbproto.ProtocolErrorf("read framebuffer header: %w", err)
		}
	}
	var v layout
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return h, adbproto.ProtocolErrorf("read framebuffer header: %w", err)
	}
	h.Size, h.Width, h.Height = v.Size, v.Width, v.Height
	h.Red = Channel{v.RedOffset, v.RedWidth}
	h.Green = Channel{v.GreenOffset, v.GreenWidth}
	h.Blue = Channel{v.BlueOffset, v.BlueWidth}
	h.Alpha = Channel{v.AlphaOffset, v.AlphaWidth}
	if h.BitsPerPixel == 0 || h.BitsPerPixel > 32 {
		return h, adbproto.ProtocolErrorf("invalid framebuffer bpp %d", h.BitsPerPixel)
	}
	return h, h.checkLen()
}

// AppendHeader encodes h.
func AppendHeader(b []byte, h Header) []byte {
	b = binary.LittleEndian.AppendUint32(b, h.Version)
	if h.Version == VersionLegacy {
		b, _ = binary.Append(b, binary.LittleEndian, [3]uint32{h.Size, h.Width, h.Height})
		return b
	}
	b = binary.LittleEndian.AppendUint32(b, h.BitsPerPixel)
	if h.Version == Version2 {
		b = binary.LittleEndian.AppendUint32(b, h.ColorSpace)
	}
	b, _ = binary.Append(b, binary.LittleEndian, layout{
		h.Size, h.Width, h.Height,
		h.Red.Offset, h.Red.Width,
		h.Blue.Offset, h.Blue.Width,
		h.Green.Offset, h.Green.Width,
		h.Alpha.Offset, h.Alpha.Width,
	})
	return b
}

func (h Header) String() string {
	return fmt.Sprintf("v%d %dx%d %dbpp r=%d/%d g=%d/%d b=%d/%d a=%d/%d",
		h.Version, h.Width, h.Height, h.BitsPerPixel,
		h.Red.Offset, h.Red.Width, h.Green.Offset, h.Green.Width,
		h.Blue.Offset, h.Blue.Width, h.Alpha.Offset, h.Alpha.Width)
}
