/*

Package db is a write-once content-addressable store for signed
transactions and anything else worth keeping next to them.

Vocabulary:

- abspath: absolute path on hard disk, including subdirs
- relpath: path relative to db.Dir, including subdirs
- canpath: canonical path; relpath without subdirs, e.g.
  tx/sha256/5b1e...
- hash: cryptographic hash of an object's header and content
- algo: name (string) describing hash algorithm; sha256 or sha512
- subdir: three-character hexadecimal segment of hash
- subdirs: one or more subdir segments inserted in abspath or relpath
	in order to keep directory sizes small; the number of subdirs is fixed
	at database creation
- class: kind of object, stored as the first line of the object file
	and as the top-level dir; blob or tx
- blob: opaque content
- tx: a signed transaction envelope
- label: human-readable name of an object; stored as a symlink
  under label/ pointing at the object
- address: algo/hash, the part of a canpath that is the same on every
  machine holding the object

XXX the store trusts its own files; a tx read back is not re-verified
unless the caller does it.

*/

package db
