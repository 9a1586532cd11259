package adbhost

import (
	"bytes"
	"context"
	"iter"

	"github.com/adbview/adbview/adb/adbproto"
)

// LoadFeatures updates the list of optional features supported by the host
// server using "host:host-features".
func (c *Dialer) LoadFeatures(ctx context.Context) error {
	conn, err := c.DialADBHost(ctx, "host:host-features")
	if err != nil {
		return err
	}
	defer conn.Close()

	buf, err := adbproto.ReadProtocolBytes(conn, nil)
	if err != nil {
		return err
	}
	fm := parseFeatures(buf)
	c.f.Store(&fm)
	return nil
}

// SupportsFeature returns true if the host server supports the provided
// feature. If [Dialer.LoadFeatures] has not been called, this will always
// return false.
func (c *Dialer) SupportsFeature(f adbproto.Feature) bool {
	if c != nil {
		if fm := c.f.Load(); fm != nil {
			_, ok := (*fm)[f]
			return ok
		}
	}
	return false
}

// Features returns all features supported by the host server.
func (c *Dialer) Features() iter.Seq[adbproto.Feature] {
	return func(yield func(adbproto.Feature) bool) {
		if c == nil {
			return
		}
		if fm := c.f.Load(); fm != nil {
			for f := range *fm {
				if !yield(f) {
					return
				}
			}
		}
	}
}

func parseFeatures(buf []byte) map[adbproto.Feature]struct{} {
	fm := map[adbproto.Feature]struct{}{}
	for feat := range bytes.SplitSeq(bytes.TrimSpace(buf), []byte{','}) {
		if len(feat) != 0 {
			fm[adbproto.Feature(feat)] = struct{}{}
		}
	}
	return fm
}
