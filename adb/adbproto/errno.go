package adbproto

import (
	"io/fs"
	"strconv"
	"strings"
)

// https://cs.android.com/android/platform/superproject/main/+/main:packages/modules/adb/sysdeps/errno.cpp;drc=af6fae67a49070ca75c26ceed5759576eb4d3573

// Errno is a Linux errno as reported by adbd.
type Errno uint32

const (
	EPERM   Errno = 1
	ENOENT  Errno = 2
	EIO     Errno = 5
	EACCES  Errno = 13
	EEXIST  Errno = 17
	ENOTDIR Errno = 20
	EISDIR  Errno = 21
	EINVAL  Errno = 22
	ELOOP   Errno = 40
)

// bionic strerror strings, which adbd uses for sync failure messages
var errnoMessages = map[Errno]string{
	EPERM:   "Operation not permitted",
	ENOENT:  "No such file or directory",
	EIO:     "I/O error",
	EACCES:  "Permission denied",
	EEXIST:  "File exists",
	ENOTDIR: "Not a directory",
	EISDIR:  "Is a directory",
	EINVAL:  "Invalid argument",
	ELOOP:   "Too many symbolic links encountered",
}

func (e Errno) Error() string {
	if s, ok := errnoMessages[e]; ok {
		return s
	}
	return "errno " + strconv.FormatUint(uint64(e), 10)
}

func (e Errno) Is(target error) bool {
	switch target {
	case fs.ErrInvalid:
		return e == EINVAL
	case fs.ErrPermission:
		return e == EACCES || e == EPERM
	case fs.ErrExist:
		return e == EEXIST
	case fs.ErrNotExist:
		return e == ENOENT
	}
	return false
}

// ErrnoFromMessage finds a known strerror string at the end of a failure
// message (adbd usually formats them as "<op> failed: <strerror>").
func ErrnoFromMessage(msg string) (Errno, bool) {
	for e, s := range errnoMessages {
		if strings.HasSuffix(msg, s) {
			return e, true
		}
	}
	return 0, false
}
