package adbhost

import (
	"testing"
)

func TestParseDevices(t *testing.T) {
	for _, tc := range []struct {
		name string
		in   string
		exp  []TransportInfo
	}{
		{
			name: "Short",
			in:   "aaa1\tdevice\nbbb2\toffline\n",
			exp: []TransportInfo{
				{Serial: "aaa1", State: CsDevice},
				{Serial: "bbb2", State: CsOffline},
			},
		},
		{
			name: "CRLF",
			in:   "aaa1\tunauthorized\r\n",
			exp: []TransportInfo{
				{Serial: "aaa1", State: CsUnauthorized},
			},
		},
		{
			name: "Unknown",
			in:   "aaa1\tsomething-new\n",
			exp: []TransportInfo{
				{Serial: "aaa1", State: ConnectionState("something-new")},
			},
		},
		{
			name: "NoPermissions",
			in:   "aaa1\tno permissions (missing udev rules? user is in the plugdev group); see [http://developer.android.com/tools/device.html]\n",
			exp: []TransportInfo{
				{Serial: "aaa1", State: CsNoPerm},
			},
		},
		{
			name: "Long",
			in: "emulator-5554          device product:sdk_gphone64_x86_64 model:sdk_gphone64_x86_64 device:emu64xa transport_id:1\n" +
				"0123456789ABCDEF       device usb:1-1 product:walleye model:Pixel_2 device:walleye transport_id:2\n" +
				"(no serial number)     no permissions (user in plugdev group; are your udev rules wrong?); see [http://developer.android.com/tools/device.html] usb:1-2\n",
			exp: []TransportInfo{
				{Serial: "emulator-5554", State: CsDevice, Product: "sdk_gphone64_x86_64", Model: "sdk_gphone64_x86_64", Device: "emu64xa", Transport: 1},
				{Serial: "0123456789ABCDEF", State: CsDevice, BusAddress: "usb:1-1", Product: "walleye", Model: "Pixel_2", Device: "walleye", Transport: 2},
				{Serial: "", State: CsNoPerm},
			},
		},
		{
			name: "Empty",
			in:   "",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			act, err := ParseDevices([]byte(tc.in))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(act) != len(tc.exp) {
				t.Fatalf("expected %d devices, got %d", len(tc.exp), len(act))
			}
			for i := range act {
				if *act[i] != tc.exp[i] {
					t.Errorf("device %d:\n\texp %+v\n\tact %+v", i, tc.exp[i], *act[i])
				}
			}
		})
	}
}

func TestParseDevicesInvalid(t *testing.T) {
	for _, in := range []string{
		"aaa1\n",
		"aaa1 device transport_id:x\n",
	} {
		if _, err := ParseDevices([]byte(in)); err == nil {
			t.Errorf("%q: expected error", in)
		}
	}
}

func TestConnectionState(t *testing.T) {
	if !CsDevice.IsOnline() || CsOffline.IsOnline() || CsUnauthorized.IsOnline() {
		t.Errorf("incorrect online states")
	}
	if ConnectionState("something-new").IsValid() {
		t.Errorf("unknown state should not be valid")
	}
	if act := ConnectionState("").String(); act != "unknown" {
		t.Errorf("expected empty state to be unknown, got %q", act)
	}
}
