package db

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Path is every way of naming one object.  Given any of the absolute,
// relative, or canonical forms, Path.New fills in the rest.
type Path struct {
	Db    *Db
	Raw   string
	Abs   string // absolute
	Rel   string // relative, including subdirs
	Canon string // canonical; relative without subdirs
	Class string
	Algo  string
	Hash  string
	Addr  string
	Label string // label name
}

func (path Path) New(db *Db, raw string) (res *Path, err error) {
	path.Db = db
	path.Raw = raw

	clean := filepath.Clean(raw)

	// remove db.Dir
	if strings.HasPrefix(clean, db.Dir+"/") {
		clean = strings.TrimPrefix(clean, db.Dir+"/")
	}

	// split into parts
	parts := strings.Split(clean, "/")
	if len(parts) < 2 {
		return nil, fmt.Errorf("malformed path: %s", raw)
	}
	path.Class = parts[0]
	if path.Class == "label" {
		path.Label = filepath.Join(parts[1:]...)
		path.Rel = filepath.Join(path.Class, path.Label)
		path.Abs = filepath.Join(db.Dir, path.Rel)
		path.Canon = path.Rel
		return &path, nil
	}

	if len(parts) < 3 {
		return nil, fmt.Errorf("malformed path: %s", raw)
	}
	path.Algo = parts[1]
	// the last part of the path should always be the full hash,
	// regardless of whether we were given the full or canonical
	// path
	path.Hash = parts[len(parts)-1]
	if len(path.Hash) < 3*db.Depth || !ishex(path.Hash) {
		return nil, fmt.Errorf("malformed hash in path: %s", raw)
	}

	// Rel uses the nesting depth described in the Db comments.  The
	// full hash is kept in the last component so UNIX tools still show
	// it.
	var subpath string
	for i := 0; i < db.Depth; i++ {
		subdir := path.Hash[(3 * i):((3 * i) + 3)]
		subpath = filepath.Join(subpath, subdir)
	}
	path.Rel = filepath.Join(path.Class, path.Algo, subpath, path.Hash)
	path.Abs = filepath.Join(db.Dir, path.Rel)
	path.Canon = filepath.Join(path.Class, path.Algo, path.Hash)
	// Addr is a universally-unique address for the data stored at path.
	path.Addr = filepath.Join(path.Algo, path.Hash)

	return &path, nil
}

func (path *Path) header() string {
	return path.Class + "\n"
}

func (path *Path) String() string {
	return path.Canon
}

func ishex(s string) bool {
	for _, c := range s {
		switch {
		case '0' <= c && c <= '9':
		case 'a' <= c && c <= 'f':
		default:
			return false
		}
	}
	return true
}
