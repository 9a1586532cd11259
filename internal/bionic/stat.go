// Package bionic contains the stat constants used by the Android C library.
package bionic

import "io/fs"

// Linux stat constants.
const (
	S_IFMT   = 0xf000
	S_IFSOCK = 0xc000
	S_IFLNK  = 0xa000
	S_IFREG  = 0x8000
	S_IFBLK  = 0x6000
	S_IFDIR  = 0x4000
	S_IFCHR  = 0x2000
	S_IFIFO  = 0x1000
	S_ISUID  = 0x800
	S_ISGID  = 0x400
	S_ISVTX  = 0x200
	S_IRWXU  = 0x1c0
	S_IRWXG  = 0x38
	S_IRWXO  = 0x7
)

// FileMode converts a raw st_mode into an [io/fs.FileMode].
func FileMode(mode uint32) fs.FileMode {
	m := fs.FileMode(mode & 0777)
	switch mode & S_IFMT {
	case S_IFBLK:
		m |= fs.ModeDevice
	case S_IFCHR:
		m |= fs.ModeDevice | fs.ModeCharDevice
	case S_IFDIR:
		m |= fs.ModeDir
	case S_IFIFO:
		m |= fs.ModeNamedPipe
	case S_IFLNK:
		m |= fs.ModeSymlink
	case S_IFREG:
		// nothing to do
	case S_IFSOCK:
		m |= fs.ModeSocket
	}
	if mode&S_ISGID != 0 {
		m |= fs.ModeSetgid
	}
	if mode&S_ISUID != 0 {
		m |= fs.ModeSetuid
	}
	if mode&S_ISVTX != 0 {
		m |= fs.ModeSticky
	}
	return m
}
