package db

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/google/renameio"
	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
)

// Db is a write-once content-addressed store. Dir is the base
// directory. Depth is the number of subdirectory levels in the object
// dirs.  We use three-character hexadecimal names for the subdirectories,
// giving us a maximum of 4096 subdirs in a parent dir -- that's a sweet
// spot.  Two-character names (such as what git uses under .git/objects)
// only allow for 256 subdirs, which is unnecessarily small.
// Four-character names would give us 65,536 subdirs, which would
// cause performance issues on e.g. ext4.
type Db struct {
	Dir   string // base of tree
	Depth int    // number of subdir levels in object dirs
}

// object classes, each stored in its own top-level dir
var classes = []string{"blob", "tx", "label"}

const configName = "config.json"

// Open loads an existing db object from dir.
func Open(dir string) (db *Db, err error) {
	dir = filepath.Clean(dir)

	if !canstat(dir) {
		return nil, fmt.Errorf("cannot open: %s", dir)
	}

	// load config
	buf, err := ioutil.ReadFile(filepath.Join(dir, configName))
	if err != nil {
		return nil, &NotDbError{Dir: dir}
	}
	db = &Db{}
	err = json.Unmarshal(buf, db)
	if err != nil {
		return nil, &NotDbError{Dir: dir}
	}
	// the config may have been copied from elsewhere
	db.Dir = dir
	if db.Depth < 1 {
		return nil, &NotDbError{Dir: dir}
	}

	return
}

// Create initializes a db directory and its contents.  An existing
// empty directory is fine; a non-empty one is an *ExistsError.
func (db Db) Create() (out *Db, err error) {
	defer Return(&err)

	dir := filepath.Clean(db.Dir)
	db.Dir = dir

	// if directory exists, make sure it's empty
	if canstat(dir) {
		var files []os.FileInfo
		files, err = ioutil.ReadDir(dir)
		Ck(err)
		if len(files) > 0 {
			return nil, &ExistsError{Dir: dir}
		}
	}

	// set nesting depth
	if db.Depth < 1 {
		db.Depth = 2
	}

	err = mkdir(dir)
	Ck(err)
	for _, class := range classes {
		err = mkdir(filepath.Join(dir, class))
		Ck(err)
	}

	buf, err := json.Marshal(db)
	Ck(err)
	err = renameio.WriteFile(filepath.Join(dir, configName), buf, 0644)
	Ck(err)
	log.Debugf("created db %s depth %d", dir, db.Depth)

	return &db, nil
}

type NotDbError struct {
	Dir string
}

func (e *NotDbError) Error() string {
	return fmt.Sprintf("not a database: %s", e.Dir)
}

type ExistsError struct {
	Dir string
}

func (e *ExistsError) Error() string {
	return fmt.Sprintf("directory not empty: %s", e.Dir)
}

func (db *Db) tmpFile() (fh *os.File, err error) {
	return ioutil.TempFile(db.Dir, "*.tmp")
}

// PutBlob hashes buf, stores it in a file named after the hash, and
// returns its path.  Storing the same buf twice yields the same path.
func (db *Db) PutBlob(class, algo string, buf []byte) (path *Path, err error) {
	defer Return(&err)

	Assert(db != nil, "db is nil")

	file, err := CreateWORM(db, class, algo)
	Ck(err)

	var n int
	n, err = file.Write(buf)
	Ck(err)
	Assert(n == len(buf), "short write")
	err = file.Close()
	Ck(err)

	return file.Path, nil
}

// GetBlob retrieves an entire object into buf by reading its file
// contents.
func (db *Db) GetBlob(path *Path) (buf []byte, err error) {
	file, err := OpenWORM(db, path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return file.ReadAll()
}

// Rm deletes the file associated with a path of any format and returns an error
// if the file doesn't exist.
func (db *Db) Rm(path *Path) (err error) {
	return os.Remove(path.Abs)
}
