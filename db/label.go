package db

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
)

// Link points the label name at path, replacing any earlier target.
// Labels are symlinks under label/ holding a path relative to the
// label dir, so the whole db can be moved.
func (db *Db) Link(path *Path, name string) (label *Path, err error) {
	defer Return(&err)
	err = ckLabel(name)
	Ck(err)
	if !exists(path.Abs) {
		return nil, errors.Wrapf(os.ErrNotExist, "link target %s", path.Canon)
	}
	label, err = Path{}.New(db, filepath.Join("label", name))
	Ck(err)
	target := filepath.Join("..", path.Rel)
	err = renameio.Symlink(target, label.Abs)
	Ck(err)
	log.Debugf("label %s -> %s", name, path.Canon)
	return
}

// OpenLabel returns the path the label name points at.
func (db *Db) OpenLabel(name string) (path *Path, err error) {
	defer Return(&err)
	err = ckLabel(name)
	Ck(err)
	linkabs := filepath.Join(db.Dir, "label", name)
	target, err := os.Readlink(linkabs)
	if err != nil {
		return nil, errors.Wrapf(err, "label %s", name)
	}
	abs := filepath.Join(db.Dir, "label", target)
	path, err = Path{}.New(db, abs)
	Ck(err)
	path.Label = name
	return
}

// Labels returns all label names, sorted.
func (db *Db) Labels() (names []string, err error) {
	files, err := ioutil.ReadDir(filepath.Join(db.Dir, "label"))
	if err != nil {
		return
	}
	for _, fi := range files {
		// skip renameio temp files
		if fi.Mode()&os.ModeSymlink == 0 || strings.HasPrefix(fi.Name(), ".") {
			continue
		}
		names = append(names, fi.Name())
	}
	return
}

func ckLabel(name string) error {
	if name == "" || strings.HasPrefix(name, ".") || strings.ContainsAny(name, "/\x00") {
		return errors.Errorf("invalid label: %q", name)
	}
	return nil
}
