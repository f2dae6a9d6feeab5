package filestore

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedhost/internal/storage"
)

type FileStore struct {
	Root string
}

func New(root string) (fs storage.Storage, err error) {
	fs = &FileStore{
		Root: root,
	}

	info, err := os.Stat(root)
	if err == nil {
		if !info.IsDir() {
			log.Error().Str("root", root).Msg("not a directory")
			err = storage.ErrNotDir
		}
		return
	}

	if errors.Is(err, os.ErrNotExist) {
		err = os.MkdirAll(root, 0o750)
	}

	if err != nil {
		log.Error().Err(err).Msg("internal error when setting up storage")
		err = storage.ErrInternal
	}

	return
}

// resolve maps a slash separated path to the filesystem. Paths leaving the root or naming hidden files are
// refused.
func (s *FileStore) resolve(p string) (string, error) {
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	if p == "" || !filepath.IsLocal(filepath.FromSlash(p)) {
		return "", fmt.Errorf("%w: %q", storage.ErrInvalidPath, p)
	}
	for _, part := range strings.Split(p, "/") {
		if strings.HasPrefix(part, ".") {
			return "", fmt.Errorf("%w: %q is hidden", storage.ErrInvalidPath, p)
		}
	}
	return filepath.Join(s.Root, filepath.FromSlash(p)), nil
}

func (s *FileStore) Open(p string) (content []byte, err error) {
	full, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = storage.ErrNotExist
		} else {
			log.Error().Err(err).Str("path", full).Msg("failed to open file")
			err = storage.ErrInternal
		}
		return
	}
	defer f.Close()

	content, err = io.ReadAll(f)
	if err != nil {
		log.Error().Err(err).Str("path", full).Msg("failed to read file")
		err = storage.ErrInternal
	}
	return
}

func (s *FileStore) Delete(p string) error {
	full, err := s.resolve(p)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return storage.ErrNotExist
		}
		log.Error().Err(err).Str("path", full).Msg("file deletion error")
		return storage.ErrInternal
	}

	return nil
}

func (s *FileStore) Create(content io.Reader, p string) error {
	full, err := s.resolve(p)
	if err != nil {
		return err
	}
	_, err = os.Stat(full)
	if err == nil {
		return storage.ErrAlreadyExists
	}
	if !os.IsNotExist(err) {
		log.Error().Err(err).Msg("unknown filesystem error")
		return storage.ErrInternal
	}
	return s.write(full, content)
}

func (s *FileStore) Put(content io.Reader, p string) error {
	full, err := s.resolve(p)
	if err != nil {
		return err
	}
	if info, err := os.Stat(full); err == nil && info.IsDir() {
		return fmt.Errorf("%w: %q is a directory", storage.ErrInvalidPath, p)
	}
	return s.write(full, content)
}

// write goes through a temporary file renamed over the destination, so the watcher sees one complete file.
func (s *FileStore) write(full string, content io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		log.Error().Err(err).Str("path", full).Msg("failed to create parent directories")
		return storage.ErrCreate
	}
	if err := atomic.WriteFile(full, content); err != nil {
		log.Error().Err(err).Str("path", full).Msg("failed to write file")
		return fmt.Errorf("%w: %w", storage.ErrCreate, err)
	}
	return nil
}

func (s *FileStore) List(dir string) ([]storage.Entry, error) {
	full, err := s.resolve(dir)
	if err != nil {
		return nil, err
	}

	entries := []storage.Entry{}
	err = filepath.WalkDir(full, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p != full && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(full, p)
		entries = append(entries, storage.Entry{Path: filepath.ToSlash(rel), Size: info.Size(), Modified: info.ModTime()})
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, storage.ErrNotExist
	} else if err != nil {
		log.Error().Err(err).Str("path", full).Msg("failed to list files")
		return nil, storage.ErrInternal
	}
	return entries, nil
}
