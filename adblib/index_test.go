package adblib_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/adbview/adbview/adblib"
	"github.com/adbview/adbview/adblib/adbsync"
)

func TestIndexURL(t *testing.T) {
	for _, tc := range []struct {
		serial, path, url string
	}{
		{"", "", "adb:///"},
		{"", "/", "adb:///"},
		{"aaa1", "/", "adb://aaa1/"},
		{"aaa1", "sdcard", "adb://aaa1/sdcard/"},
		{"emulator-5554", "/sdcard/../data", "adb://emulator-5554/data/"},
		{"aaa1", "/a b", "adb://aaa1/a%20b/"},
	} {
		if u := adblib.IndexURL(tc.serial, tc.path); u != tc.url {
			t.Errorf("%q %q: expected %q, got %q", tc.serial, tc.path, tc.url, u)
		}
	}
}

func TestWriteIndex(t *testing.T) {
	l := &adblib.Listing{
		Serial: "aaa1",
		Path:   "/sdcard",
		Entries: []adbsync.DirEntry{
			{Name: "DCIM", Stat: adbsync.Stat{Mode: 0x41F8, Mtime: time.Unix(0, 0)}},
			{Name: "a b.txt", Stat: adbsync.Stat{Mode: 0x81A4, Size: 13, Mtime: time.Unix(1700000000, 0)}},
			{Name: "link", Stat: adbsync.Stat{Mode: 0xA1FF, Size: 5, Mtime: time.Unix(1700000000, 0)}},
		},
	}
	var b strings.Builder
	if err := adblib.WriteIndex(&b, l); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	exp := "300: adb://aaa1/sdcard/\n" +
		"200: filename content-length last-modified file-type\n" +
		"201: DCIM 0 Thu,%201%20Jan%201970%2000:00:00%20GMT DIRECTORY\n" +
		"201: a%20b.txt 13 Tue,%2014%20Nov%202023%2022:13:20%20GMT FILE\n" +
		"201: link 5 Tue,%2014%20Nov%202023%2022:13:20%20GMT SYMBOLIC-LINK\n"
	if b.String() != exp {
		t.Errorf("incorrect index:\n%s\nexpected:\n%s", b.String(), exp)
	}
}

func TestWriteIndexDevices(t *testing.T) {
	l, err := testClient(testServer()).Browse(context.Background(), "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var b strings.Builder
	if err := adblib.WriteIndex(&b, l); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	exp := "300: adb:///\n" +
		"200: filename content-length last-modified file-type\n" +
		"201: aaa1 0 Thu,%201%20Jan%201970%2000:00:00%20GMT DIRECTORY\n" +
		"201: ccc3 0 Thu,%201%20Jan%201970%2000:00:00%20GMT DIRECTORY\n" +
		"201: ddd4 0 Thu,%201%20Jan%201970%2000:00:00%20GMT DIRECTORY\n"
	if b.String() != exp {
		t.Errorf("incorrect index:\n%s\nexpected:\n%s", b.String(), exp)
	}
}
