// Package adbpb decodes the adb host protobuf messages.
//
// Only the device tracker messages are implemented. They are small and stable,
// so they are read directly from the wire format rather than through generated
// code. Decoding follows proto3 rules: unknown fields are skipped, the last
// value of a repeated scalar wins, and string fields must be valid UTF-8.
//
// https://cs.android.com/android/platform/superproject/main/+/main:packages/modules/adb/proto/adb_host.proto;drc=9f298fb1f3317371b49439efb20a598b3a881bf3
package adbpb

import (
	"fmt"
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protowire"
)

// ConnectionState mirrors adb.proto.ConnectionState.
type ConnectionState int32

const (
	ConnectionState_CONNECTING   ConnectionState = 0
	ConnectionState_AUTHORIZING  ConnectionState = 1
	ConnectionState_UNAUTHORIZED ConnectionState = 2
	ConnectionState_NOPERMISSION ConnectionState = 3
	ConnectionState_DETACHED     ConnectionState = 4
	ConnectionState_OFFLINE      ConnectionState = 5
	ConnectionState_BOOTLOADER   ConnectionState = 6
	ConnectionState_DEVICE       ConnectionState = 7
	ConnectionState_HOST         ConnectionState = 8
	ConnectionState_RECOVERY     ConnectionState = 9
	ConnectionState_SIDELOAD     ConnectionState = 10
	ConnectionState_RESCUE       ConnectionState = 11
)

// ConnectionType mirrors adb.proto.ConnectionType.
type ConnectionType int32

const (
	ConnectionType_UNKNOWN ConnectionType = 0
	ConnectionType_USB     ConnectionType = 1
	ConnectionType_SOCKET  ConnectionType = 2
)

// Device mirrors adb.proto.Device.
type Device struct {
	Serial          string          // 1
	State           ConnectionState // 2
	BusAddress      string          // 3
	Product         string          // 4
	Model           string          // 5
	Device          string          // 6
	ConnectionType  ConnectionType  // 7
	NegotiatedSpeed int64           // 8
	MaxSpeed        int64           // 9
	TransportId     int64           // 10
}

// UnmarshalDevices decodes an adb.proto.Devices message.
func UnmarshalDevices(b []byte) ([]*Device, error) {
	var devs []*Device
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("devices: %w", protowire.ParseError(n))
		}
		b = b[n:]
		if num == 1 && typ == protowire.BytesType {
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("devices: device: %w", protowire.ParseError(n))
			}
			dev, err := unmarshalDevice(v)
			if err != nil {
				return nil, fmt.Errorf("devices: device %d: %w", len(devs), err)
			}
			devs = append(devs, dev)
			b = b[n:]
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return nil, fmt.Errorf("devices: field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return devs, nil
}

func unmarshalDevice(b []byte) (*Device, error) {
	var dev Device
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case typ == protowire.BytesType && num >= 1 && num <= 6 && num != 2:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
			}
			if !utf8.Valid(v) {
				return nil, fmt.Errorf("field %d: invalid UTF-8", num)
			}
			switch num {
			case 1:
				dev.Serial = string(v)
			case 3:
				dev.BusAddress = string(v)
			case 4:
				dev.Product = string(v)
			case 5:
				dev.Model = string(v)
			case 6:
				dev.Device = string(v)
			}
			b = b[n:]
		case typ == protowire.VarintType && (num == 2 || (num >= 7 && num <= 10)):
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
			}
			switch num {
			case 2:
				dev.State = ConnectionState(int32(v))
			case 7:
				dev.ConnectionType = ConnectionType(int32(v))
			case 8:
				dev.NegotiatedSpeed = int64(v)
			case 9:
				dev.MaxSpeed = int64(v)
			case 10:
				dev.TransportId = int64(v)
			}
			b = b[n:]
		default:
			// unknown fields are skipped for forwards compatibility
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return &dev, nil
}

// AppendDevices encodes an adb.proto.Devices message.
func AppendDevices(b []byte, devs []*Device) []byte {
	for _, dev := range devs {
		var m []byte
		m = appendString(m, 1, dev.Serial)
		m = appendVarint(m, 2, uint64(dev.State))
		m = appendString(m, 3, dev.BusAddress)
		m = appendString(m, 4, dev.Product)
		m = appendString(m, 5, dev.Model)
		m = appendString(m, 6, dev.Device)
		m = appendVarint(m, 7, uint64(dev.ConnectionType))
		m = appendVarint(m, 8, uint64(dev.NegotiatedSpeed))
		m = appendVarint(m, 9, uint64(dev.MaxSpeed))
		m = appendVarint(m, 10, uint64(dev.TransportId))
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, m)
	}
	return b
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}
