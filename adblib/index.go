package adblib

import (
	"bufio"
	"io"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/adbview/adbview/adblib/adbsync"
)

// IndexContentType is the content type of [WriteIndex] output.
const IndexContentType = "application/http-index-format"

const indexTimeFormat = "Mon, 2 Jan 2006 15:04:05 GMT"

// IndexURL returns the adb URL for a path on a device. If serial is empty, it
// is the URL of the device list.
func IndexURL(serial, name string) string {
	u := url.URL{
		Scheme: "adb",
		Host:   serial,
		Path:   path.Clean("/" + name),
	}
	if u.Path != "/" {
		u.Path += "/"
	}
	return u.String()
}

// WriteIndex writes a directory listing in the http-index-format:
//
//	300: adb://serial/path/
//	200: filename content-length last-modified file-type
//	201: name size Thu,%201%20Jan%201970%2000:00:00%20GMT DIRECTORY
//
// Names and dates are URL-escaped. The file type is one of FILE, DIRECTORY, or
// SYMBOLIC-LINK.
func WriteIndex(w io.Writer, l *Listing) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("300: ")
	bw.WriteString(IndexURL(l.Serial, l.Path))
	bw.WriteString("\n200: filename content-length last-modified file-type\n")
	for _, e := range l.Entries {
		bw.WriteString("201: ")
		bw.WriteString(url.PathEscape(e.Name))
		bw.WriteByte(' ')
		bw.WriteString(strconv.FormatUint(uint64(e.Size), 10))
		bw.WriteByte(' ')
		bw.WriteString(strings.ReplaceAll(e.Mtime.UTC().Format(indexTimeFormat), " ", "%20"))
		bw.WriteByte(' ')
		bw.WriteString(indexFileType(e.Stat))
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func indexFileType(st adbsync.Stat) string {
	switch {
	case st.IsDir():
		return "DIRECTORY"
	case st.IsSymlink():
		return "SYMBOLIC-LINK"
	default:
		return "FILE"
	}
}
