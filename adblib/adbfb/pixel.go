package adbfb

import (
	"errors"
	"fmt"
	"image"

	"github.com/adbview/adbview/adb/adbproto/fbproto"
)

// ErrUnsupportedPixelFormat is returned for channel layouts which can't be
// decoded exactly.
var ErrUnsupportedPixelFormat = errors.New("unsupported pixel format")

var (
	table5 [1 << 5]uint8
	table6 [1 << 6]uint8
)

func init() {
	for i := range table5 {
		table5[i] = uint8((i*527 + 23) >> 6)
	}
	for i := range table6 {
		table6[i] = uint8((i*259 + 33) >> 6)
	}
}

// ExpandChannel scales a 5, 6 or 8-bit channel sample to 8 bits, so that the
// maximum value maps to 255. It panics for other widths.
func ExpandChannel(sample uint32, bits int) uint8 {
	switch bits {
	case 5:
		return table5[sample&(1<<5-1)]
	case 6:
		return table6[sample&(1<<6-1)]
	case 8:
		return uint8(sample)
	default:
		panic(fmt.Sprintf("adbfb: cannot expand %d-bit channel", bits))
	}
}

// Surface contains decoded pixels, interleaved in R, G, B order, followed by A
// if Channels is 4.
type Surface struct {
	Width    int
	Height   int
	Channels int
	Pix      []byte
}

// Image converts the surface into an image. Surfaces without an alpha channel
// are opaque.
func (s *Surface) Image() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, s.Width, s.Height))
	if s.Channels == 4 {
		copy(img.Pix, s.Pix)
		return img
	}
	for i, j := 0, 0; i+3 <= len(s.Pix) && j+4 <= len(img.Pix); i, j = i+3, j+4 {
		img.Pix[j+0] = s.Pix[i+0]
		img.Pix[j+1] = s.Pix[i+1]
		img.Pix[j+2] = s.Pix[i+2]
		img.Pix[j+3] = 0xFF
	}
	return img
}

func unsupported(layout fbproto.Header) error {
	return fmt.Errorf("%w (%v)", ErrUnsupportedPixelFormat, layout)
}

// DecodePixels decodes raw framebuffer pixels. 32bpp buffers must have 8-bit
// byte-aligned R, G, B and A channels, which are copied as-is. 16bpp buffers
// must have 5 or 6-bit R, G and B channels and no alpha, which are expanded to
// 8 bits. Anything else is rejected with [ErrUnsupportedPixelFormat].
func DecodePixels(buf []byte, layout fbproto.Header) (*Surface, error) {
	n := layout.PixelsLen()
	if n < 0 {
		return nil, fmt.Errorf("framebuffer too large (%dx%d)", layout.Width, layout.Height)
	}
	if int64(len(buf)) < n {
		return nil, fmt.Errorf("short pixel buffer (expected %d bytes, got %d)", n, len(buf))
	}
	s := &Surface{
		Width:  int(layout.Width),
		Height: int(layout.Height),
	}
	count := s.Width * s.Height
	switch layout.BitsPerPixel {
	case 32:
		var idx [4]int
		for i, c := range []fbproto.Channel{layout.Red, layout.Green, layout.Blue, layout.Alpha} {
			if c.Width != 8 || c.Offset%8 != 0 || c.Offset > 24 {
				return nil, unsupported(layout)
			}
			idx[i] = int(c.Offset / 8)
		}
		if idx[0] == idx[1] || idx[0] == idx[2] || idx[0] == idx[3] || idx[1] == idx[2] || idx[1] == idx[3] || idx[2] == idx[3] {
			return nil, unsupported(layout)
		}
		s.Channels = 4
		s.Pix = make([]byte, count*4)
		for i := range count {
			px, out := buf[i*4:i*4+4], s.Pix[i*4:i*4+4]
			out[0], out[1], out[2], out[3] = px[idx[0]], px[idx[1]], px[idx[2]], px[idx[3]]
		}
	case 16:
		if layout.Alpha.Width != 0 {
			return nil, unsupported(layout)
		}
		chs := []fbproto.Channel{layout.Red, layout.Green, layout.Blue}
		for _, c := range chs {
			if (c.Width != 5 && c.Width != 6) || c.Offset+c.Width > 16 {
				return nil, unsupported(layout)
			}
		}
		s.Channels = 3
		s.Pix = make([]byte, count*3)
		for i := range count {
			px := uint32(buf[i*2]) | uint32(buf[i*2+1])<<8
			for j, c := range chs {
				s.Pix[i*3+j] = ExpandChannel(px>>c.Offset, int(c.Width))
			}
		}
	default:
		return nil, unsupported(layout)
	}
	return s, nil
}
