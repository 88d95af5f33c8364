package db

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"os"
	"syscall"
)

func newHash(algo string) (h hash.Hash, err error) {
	switch algo {
	case "sha256":
		return sha256.New(), nil
	case "sha512":
		return sha512.New(), nil
	}
	return nil, fmt.Errorf("%w: %s", syscall.ENOSYS, algo)
}

// Hash returns the digest of buf using the named algorithm.
func Hash(algo string, buf []byte) (binhash []byte, err error) {
	h, err := newHash(algo)
	if err != nil {
		return
	}
	h.Write(buf)
	return h.Sum(nil), nil
}

func bin2hex(buf []byte) string {
	return hex.EncodeToString(buf)
}

func canstat(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func mkdir(dir string) (err error) {
	if canstat(dir) {
		return
	}
	return os.MkdirAll(dir, 0755)
}
