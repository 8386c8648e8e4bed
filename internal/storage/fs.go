// Package storage holds course files, such as answer-checking scripts
// referenced by src attributes.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

type Store interface {
	Put(key string, r io.Reader) (string, error) // returns canonical key
	Get(key string) (io.ReadCloser, error)
}

type FSStore struct{ base string }

func NewFSStore(base string) (*FSStore, error) {
	if base == "" {
		base = "./data"
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, err
	}
	return &FSStore{base: base}, nil
}

// path resolves key below the base directory. Rooting the key before
// cleaning keeps ".." from climbing out of it.
func (s *FSStore) path(key string) (string, string, error) {
	if key == "" {
		return "", "", errors.New("empty key")
	}
	clean := filepath.ToSlash(filepath.Clean("/" + key))[1:]
	if clean == "" {
		return "", "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(s.base, filepath.FromSlash(clean)), clean, nil
}

func (s *FSStore) Put(key string, r io.Reader) (string, error) {
	dst, clean, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return "", err
	}
	return clean, nil
}

func (s *FSStore) Get(key string) (io.ReadCloser, error) {
	src, _, err := s.path(key)
	if err != nil {
		return nil, err
	}
	return os.Open(src)
}
