package db

import (
	"fmt"
	"hash"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"syscall"

	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
)

// file modes
const (
	NEW   = 0
	READ  = 0444
	WRITE = 0644
)

// WORM is a write-once-read-many object file.  A new WORM is written
// to a temporary file and only gets its permanent, hash-derived name
// on Close.  Each file starts with a one-line class header which is
// hashed along with the content, so identical bytes stored under
// different classes never share a name.
type WORM struct {
	Db *Db
	*Path
	_mode os.FileMode
	fh    *os.File
	hash  hash.Hash
}

func CreateWORM(db *Db, class string, algo string) (file *WORM, err error) {
	defer Return(&err)
	ErrnoIf(class == "" || class == "label", syscall.EINVAL, "bad object class %q", class)
	file = &WORM{}
	file.Db = db
	// we don't call Path.New() here 'cause we don't know the hash yet
	file.Path = &Path{Db: db, Class: class, Algo: algo}
	file.hash, err = newHash(algo)
	Ck(err)
	file.Mode(WRITE)
	return
}

func OpenWORM(db *Db, path *Path) (file *WORM, err error) {
	defer Return(&err)
	file = &WORM{}
	file.Db = db
	file.Path = path
	ErrnoIf(len(file.Path.Abs) == 0, syscall.EINVAL, "empty path")
	ErrnoIf(!exists(file.Path.Abs), syscall.ENOENT, "not found: %s", file.Path.Abs)
	file.Mode(READ)
	return
}

// gets called by Read(), Write(), etc.
func (file *WORM) ckopen() (err error) {
	defer Return(&err)

	if file.fh != nil {
		return
	}
	switch file.Mode() {
	case WRITE:
		// open temporary file
		file.fh, err = file.Db.tmpFile()
		Ck(err)
		// write file header
		header := []byte(file.header())
		n, err := file.fh.Write(header)
		Ck(err)
		Assert(n == len(header))
		// the header is hashed too
		n, err = file.hash.Write(header)
		Ck(err)
		Assert(n == len(header))
	case READ:
		// open existing file
		file.fh, err = os.Open(file.Path.Abs)
		Ck(err)
		// strip file header
		header := file.header()
		buf := make([]byte, len(header))
		n, err := io.ReadFull(file.fh, buf)
		if err != nil || n != len(header) || string(buf) != header {
			return fmt.Errorf("malformed header: %q file: %s", string(buf[:n]), file.Path.Abs)
		}
	default:
		Assert(false, "file not open: %s", file.Path.Canon)
	}
	return
}

func (file *WORM) Close() (err error) {
	defer Return(&err)
	switch file.Mode() {
	case NEW, READ:
		if file.fh == nil {
			return
		}
		// no err check needed because readonly
		file.fh.Close()
		file.fh = nil
		return
	case WRITE:
		// an empty object still gets a header
		err = file.ckopen()
		Ck(err)

		tmpname := file.fh.Name()
		err = file.fh.Close()
		Ck(err)

		// now that we know what the data's hash is, we can replace
		// the tmp Path with the permanent Path
		hexhash := bin2hex(file.hash.Sum(nil))
		canpath := filepath.Join(file.Path.Class, file.Path.Algo, hexhash)
		file.Path, err = Path{}.New(file.Db, canpath)
		Ck(err)

		// make sure subdirs exist
		dir, _ := filepath.Split(file.Path.Abs)
		err = os.MkdirAll(dir, 0755)
		Ck(err)

		// rename temp file to permanent file
		err = os.Rename(tmpname, file.Path.Abs)
		Ck(err)

		file.fh = nil
		file.Mode(READ)

		log.Debugf("stored %s", file.Path.Canon)
		return
	}
	return
}

func (file *WORM) Mode(newmode ...os.FileMode) (oldmode os.FileMode) {
	Assert(len(newmode) < 2)
	oldmode = file._mode
	if len(newmode) > 0 {
		file._mode = newmode[0]
		if file._mode == READ && exists(file.Path.Abs) {
			err := os.Chmod(file.Path.Abs, file._mode)
			Ck(err)
		}
	}
	return
}

// Read reads object content, not including the header.  Supports the
// io.Reader interface.
func (file *WORM) Read(buf []byte) (n int, err error) {
	if file.Mode() != READ {
		return 0, fmt.Errorf("cannot read from unclosed object: %s", file.Path.Class)
	}
	err = file.ckopen()
	if err != nil {
		return
	}
	return file.fh.Read(buf)
}

func (file *WORM) ReadAll() (buf []byte, err error) {
	return ioutil.ReadAll(file)
}

// Size returns the content size, not including the header.
func (file *WORM) Size() (n int64, err error) {
	info, err := os.Stat(file.Path.Abs)
	if err != nil {
		return
	}
	n = info.Size() - int64(len(file.header()))
	return
}

// Write adds data to a new object.  Large objects can be written using
// multiple Write() calls.  Supports the io.Writer interface.
func (file *WORM) Write(data []byte) (n int, err error) {
	if file.Mode() != WRITE {
		err = fmt.Errorf("cannot write to existing object: %s", file.Path.Abs)
		return
	}

	err = file.ckopen()
	if err != nil {
		return
	}

	// add data to hash digest
	n, err = file.hash.Write(data)
	if err != nil {
		return
	}

	// write data to disk file
	return file.fh.Write(data)
}
