package adbsync

import (
	"context"
	"io"
	"io/fs"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/adbview/adbview/adb/adbproto"
)

type fsImpl struct {
	c    *Client
	root string
}

var (
	_ fs.FS          = (*fsImpl)(nil)
	_ fs.StatFS      = (*fsImpl)(nil)
	_ fs.ReadDirFS   = (*fsImpl)(nil)
	_ fs.ReadFileFS  = (*fsImpl)(nil)
	_ fs.SubFS       = (*fsImpl)(nil)
	_ fs.File        = (*fsFileImpl)(nil)
	_ fs.ReadDirFile = (*fsFileImpl)(nil)
	_ fs.FileInfo    = fileInfo{}
	_ fs.DirEntry    = fileInfo{}
)

// FS implements [io/fs.FS] for an ADB device, rooted at "/". Symlinks are
// reported as such, and are not followed when listing directories.
func FS(c *Client) fs.FS {
	return &fsImpl{c, "/"}
}

func (f *fsImpl) transform(op, name string) (string, error) {
	if !fs.ValidPath(name) {
		return "", &fs.PathError{
			Op:   op,
			Path: name,
			Err:  fs.ErrInvalid,
		}
	}
	return path.Join(f.root, name), nil
}

// fixPath replaces the device path in err with the fs path.
func fixPath(err error, name string) error {
	if pe, ok := err.(*fs.PathError); ok {
		pe.Path = name
	}
	return err
}

func (f *fsImpl) Sub(dir string) (fs.FS, error) {
	p, err := f.transform("sub", dir)
	if err != nil {
		return nil, err
	}
	return &fsImpl{f.c, p}, nil
}

func (f *fsImpl) Stat(name string) (fs.FileInfo, error) {
	p, err := f.transform("stat", name)
	if err != nil {
		return nil, err
	}
	st, err := f.c.Stat(context.Background(), p)
	if err != nil {
		return nil, fixPath(err, name)
	}
	return fileInfo{path.Base(name), st}, nil
}

func (f *fsImpl) ReadDir(name string) ([]fs.DirEntry, error) {
	p, err := f.transform("readdir", name)
	if err != nil {
		return nil, err
	}
	return f.readDir(p, name)
}

func (f *fsImpl) readDir(p, name string) ([]fs.DirEntry, error) {
	// LIST doesn't fail for non-directories
	st, err := f.c.Stat(context.Background(), p)
	if err != nil {
		return nil, fixPath(err, name)
	}
	if !st.IsDir() {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: adbproto.ENOTDIR}
	}
	ents, err := f.c.DirList(context.Background(), p)
	if err != nil {
		return nil, fixPath(err, name)
	}
	des := make([]fs.DirEntry, len(ents))
	for i, e := range ents {
		des[i] = fileInfo{e.Name, e.Stat}
	}
	slices.SortFunc(des, func(a, b fs.DirEntry) int {
		return strings.Compare(a.Name(), b.Name())
	})
	return des, nil
}

func (f *fsImpl) ReadFile(name string) ([]byte, error) {
	p, err := f.transform("open", name)
	if err != nil {
		return nil, err
	}
	buf, err := f.c.ReadFile(context.Background(), p)
	if err != nil {
		return nil, fixPath(err, name)
	}
	return buf, nil
}

type fsFileImpl struct {
	name string
	path string
	fs   *fsImpl
	fi   fileInfo
	fr   io.ReadCloser
	de   []fs.DirEntry
}

func (f *fsImpl) Open(name string) (fs.File, error) {
	p, err := f.transform("open", name)
	if err != nil {
		return nil, err
	}
	ff := &fsFileImpl{
		name: name,
		path: p,
		fs:   f,
	}
	st, err := f.c.Stat(context.Background(), p)
	if err != nil {
		return nil, fixPath(err, name)
	}
	ff.fi = fileInfo{path.Base(name), st}
	if !st.IsDir() {
		content, err := f.c.Open(context.Background(), p)
		if err != nil {
			return nil, fixPath(err, name)
		}
		ff.fr = content
	}
	return ff, nil
}

func (f *fsFileImpl) Stat() (fs.FileInfo, error) {
	return f.fi, nil
}

func (f *fsFileImpl) Read(p []byte) (n int, err error) {
	if f.fr == nil {
		return 0, &fs.PathError{
			Op:   "read",
			Path: f.name,
			Err:  adbproto.EISDIR,
		}
	}
	return f.fr.Read(p)
}

func (f *fsFileImpl) ReadDir(n int) ([]fs.DirEntry, error) {
	if !f.fi.IsDir() {
		return nil, &fs.PathError{
			Op:   "readdir",
			Path: f.name,
			Err:  adbproto.ENOTDIR,
		}
	}
	if f.de == nil {
		de, err := f.fs.readDir(f.path, f.name)
		if err != nil {
			return nil, err
		}
		f.de = de
	}
	if n <= 0 {
		de := f.de
		f.de = f.de[len(f.de):]
		return de, nil
	}
	if len(f.de) == 0 {
		return nil, io.EOF
	}
	n = min(n, len(f.de))
	de := f.de[:n]
	f.de = f.de[n:]
	return de, nil
}

func (f *fsFileImpl) Close() error {
	if f.fr == nil {
		return nil
	}
	return f.fr.Close()
}

// fileInfo implements [fs.FileInfo] and [fs.DirEntry].
type fileInfo struct {
	name string
	st   Stat
}

func (fi fileInfo) Name() string               { return fi.name }
func (fi fileInfo) Size() int64                { return int64(fi.st.Size) }
func (fi fileInfo) Mode() fs.FileMode          { return fi.st.FileMode() }
func (fi fileInfo) ModTime() time.Time         { return fi.st.Mtime }
func (fi fileInfo) IsDir() bool                { return fi.st.IsDir() }
func (fi fileInfo) Sys() any                   { return fi.st }
func (fi fileInfo) Type() fs.FileMode          { return fi.Mode().Type() }
func (fi fileInfo) Info() (fs.FileInfo, error) { return fi, nil }
func (fi fileInfo) String() string             { return fs.FormatFileInfo(fi) }
