package adbhost

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/adbview/adbview/adb/adbproto/adbpb"
)

// ConnectionState represents the state of a device connected to an ADB host.
//
// Note that since we don't actually deal with raw enum values anywhere (adb
// sends it as either a string or a protobuf enum), we define this as a string
// here for flexibility and compatibility.
//
// https://cs.android.com/android/platform/superproject/main/+/main:packages/modules/adb/adb.h;l=105-123;drc=4af6e4ff6ff587b344236c30cb3d6765cb1de6be
type ConnectionState string

const (
	CsConnecting   ConnectionState = "connecting"     // Haven't received a response from the device yet.
	CsAuthorizing  ConnectionState = "authorizing"    // Authorizing with keys from ADB_VENDOR_KEYS.
	CsUnauthorized ConnectionState = "unauthorized"   // ADB_VENDOR_KEYS exhausted, fell back to user prompt.
	CsNoPerm       ConnectionState = "no permissions" // Insufficient permissions to communicate with the device.
	CsDetached     ConnectionState = "detached"       // USB device detached from the adb server (known but not opened/claimed).
	CsOffline      ConnectionState = "offline"        // A peer has been detected (device/host) but no comm has started yet.

	// After CNXN packet, the ConnectionState describes not a state but the type
	// of service on the other end of the transport.

	CsBootloader ConnectionState = "bootloader" // Device running fastboot OS (fastboot) or userspace fastboot (fastbootd).
	CsDevice     ConnectionState = "device"     // Device running Android OS (adbd).
	CsHost       ConnectionState = "host"       // What a device sees from its end of a Transport (adb host).
	CsRecovery   ConnectionState = "recovery"   // Device with bootloader loaded but no ROM OS loaded (adbd).
	CsSideload   ConnectionState = "sideload"   // Device running Android OS Sideload mode (minadbd sideload mode).
	CsRescue     ConnectionState = "rescue"     // Device running Android OS Rescue mode (minadbd rescue mode).
)

// ParseConnectionState attempts to parse the provided string as a connection
// state. Use [ConnectionState.IsValid] to check if it is a known value.
func ParseConnectionState(s string) ConnectionState {
	if strings.HasPrefix(s, string(CsNoPerm)+" (") {
		// https://cs.android.com/android/platform/superproject/main/+/main:system/core/diagnose_usb/diagnose_usb.cpp;l=83-90;drc=9c843a66d11d85e1f69e944f1b37314d3e47aab1
		return CsNoPerm // this is a special case since adb can add a reason afterwards
	}
	return ConnectionState(s)
}

// String returns the connection state as a string.
func (c ConnectionState) String() string {
	if c == "" {
		return "unknown"
	}
	return string(c)
}

// IsOnline returns true if the state is considered to be online.
func (c ConnectionState) IsOnline() bool {
	switch c {
	case CsBootloader:
	case CsDevice:
	case CsHost:
	case CsRecovery:
	case CsSideload:
	case CsRescue:
	default:
		return false
	}
	return true
}

// IsValid returns true if the state is a recognized value.
func (c ConnectionState) IsValid() bool {
	switch c {
	case CsConnecting:
	case CsAuthorizing:
	case CsUnauthorized:
	case CsNoPerm:
	case CsDetached:
	case CsOffline:
	case CsBootloader:
	case CsDevice:
	case CsHost:
	case CsRecovery:
	case CsSideload:
	case CsRescue:
	default:
		return false
	}
	return true
}

var protoConnectionStates = map[adbpb.ConnectionState]ConnectionState{
	adbpb.ConnectionState_CONNECTING:   CsConnecting,
	adbpb.ConnectionState_AUTHORIZING:  CsAuthorizing,
	adbpb.ConnectionState_UNAUTHORIZED: CsUnauthorized,
	adbpb.ConnectionState_NOPERMISSION: CsNoPerm,
	adbpb.ConnectionState_DETACHED:     CsDetached,
	adbpb.ConnectionState_OFFLINE:      CsOffline,
	adbpb.ConnectionState_BOOTLOADER:   CsBootloader,
	adbpb.ConnectionState_DEVICE:       CsDevice,
	adbpb.ConnectionState_HOST:         CsHost,
	adbpb.ConnectionState_RECOVERY:     CsRecovery,
	adbpb.ConnectionState_SIDELOAD:     CsSideload,
	adbpb.ConnectionState_RESCUE:       CsRescue,
}

type ConnectionType string

const (
	CtUnknown ConnectionType = "unknown"
	CtUSB     ConnectionType = "usb"
	CtSocket  ConnectionType = "socket"
)

// String returns the connection type as a string.
func (c ConnectionType) String() string {
	if c == "" {
		return "unknown"
	}
	return string(c)
}

// IsValid returns true if the state is a recognized value. Note that
// [CtUnknown] is a recognized value.
func (c ConnectionType) IsValid() bool {
	switch c {
	case CtUnknown:
	case CtUSB:
	case CtSocket:
	default:
		return false
	}
	return true
}

// TransportInfo contains the status of a device connected to the ADB host. Not
// all fields may be set.
//
// https://cs.android.com/android/platform/superproject/main/+/main:packages/modules/adb/transport.cpp;l=1372-1435;drc=af6fae67a49070ca75c26ceed5759576eb4d3573
type TransportInfo struct {
	Serial          string
	State           ConnectionState
	BusAddress      string
	Product         string
	Model           string
	Device          string
	ConnectionType  ConnectionType
	NegotiatedSpeed int64
	MaxSpeed        int64
	Transport       TransportID
}

const unknownSerial = "(no serial number)"

// ParseDevices parses devices info from the textual device tracker output. Note
// that the textual device tracker sanitizes non-alphanumeric values in
// attributes by replacing them with underscores.
func ParseDevices(buf []byte) ([]*TransportInfo, error) {
	var devs []*TransportInfo
	for line := range strings.FieldsFuncSeq(string(buf), func(r rune) bool { return r == '\n' }) {
		var info TransportInfo

		line = strings.TrimSuffix(line, "\r")

		var (
			serial, rest string
			isSerialTab  bool // short listings delimit the serial by a tab
		)
		if r, ok := strings.CutPrefix(line, unknownSerial); ok && r != "" && (r[0] == '\t' || r[0] == ' ') {
			serial, rest, isSerialTab = "", r[1:], r[0] == '\t'
		} else if serial, rest, isSerialTab = strings.Cut(line, "\t"); !isSerialTab {
			if serial, rest, ok = strings.Cut(serial, " "); !ok {
				return devs, fmt.Errorf("parse line %q: missing tab or space after serial", line)
			}
		}
		if !isSerialTab {
			rest = strings.TrimLeft(rest, " ") // long listings right-pad with spaces
		}
		info.Serial = serial

		var (
			stateStr string
			isLong   bool
		)
		if isSerialTab {
			stateStr = rest
		} else {
			stateStr, rest, isLong = strings.Cut(rest, " ")
			if stateStr == "no" && strings.HasPrefix(rest, "permissions") {
				// the reason which follows isn't made of attributes
				stateStr, isLong = string(CsNoPerm), false
			}
		}
		info.State = ParseConnectionState(stateStr) // don't check IsValid for forwards compatibility

		if isLong {
			var attrs bool
			for attr := range strings.FieldsSeq(rest) {
				k, v, isAttr := strings.Cut(attr, ":")
				if !attrs && (!isAttr || k == "usb") {
					info.BusAddress = attr
					attrs = true
					continue
				}
				attrs = true
				switch k {
				case "product":
					info.Product = v
				case "model":
					info.Model = v
				case "device":
					info.Device = v
				case "transport_id":
					tid, err := strconv.ParseUint(v, 10, 64)
					if err != nil {
						return devs, fmt.Errorf("parse line %q: parse transport id: %w", line, err)
					}
					info.Transport = TransportID(tid)
				default:
					// ignore unknown attributes for forwards compatibility
				}
			}
		}

		devs = append(devs, &info)
	}
	return devs, nil
}

// ParseDevicesProto parses devices info from the binary protobuf device
// tracker output.
func ParseDevicesProto(buf []byte) ([]*TransportInfo, error) {
	pdevs, err := adbpb.UnmarshalDevices(buf)
	if err != nil {
		return nil, err
	}
	devs := make([]*TransportInfo, 0, len(pdevs))
	for _, pd := range pdevs {
		info := &TransportInfo{
			Serial:          pd.Serial,
			State:           protoConnectionStates[pd.State], // unknown values are left empty
			BusAddress:      pd.BusAddress,
			Product:         pd.Product,
			Model:           pd.Model,
			Device:          pd.Device,
			NegotiatedSpeed: pd.NegotiatedSpeed,
			MaxSpeed:        pd.MaxSpeed,
			Transport:       TransportID(pd.TransportId),
		}
		switch pd.ConnectionType {
		case adbpb.ConnectionType_USB:
			info.ConnectionType = CtUSB
		case adbpb.ConnectionType_SOCKET:
			info.ConnectionType = CtSocket
		default:
			info.ConnectionType = CtUnknown
		}
		devs = append(devs, info)
	}
	return devs, nil
}
