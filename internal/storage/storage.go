// Package storage holds the files of sites. Paths are slash separated and relative to the root of the store.
package storage

import (
	"errors"
	"io"
	"time"
)

var (
	ErrNotDir        = errors.New("given root is not a directory")
	ErrInternal      = errors.New("internal error")
	ErrCreate        = errors.New("failed to create file")
	ErrAlreadyExists = errors.New("filename already exists")
	ErrNotExist      = errors.New("file does not exist")
	ErrInvalidPath   = errors.New("invalid path")
)

type Entry struct {
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

type Storage interface {
	Open(path string) ([]byte, error)
	// Create fails with ErrAlreadyExists if path exists.
	Create(content io.Reader, path string) error
	// Put creates or replaces path. Readers see either the old or the new content.
	Put(content io.Reader, path string) error
	Delete(path string) error
	// List walks the regular files under dir.
	List(dir string) ([]Entry, error)
}
