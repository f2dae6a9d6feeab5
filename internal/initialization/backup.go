package initialization

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Backup copies the database file into dir, stamping the copy with the current time. A missing database is not an
// error: there is nothing to back up on the first start.
func Backup(dbPath, dir string, now time.Time) (string, error) {
	src, err := os.Open(dbPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	defer src.Close()

	if err = os.MkdirAll(dir, 0o750); err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s-%s.db", trimExt(filepath.Base(dbPath)), now.UTC().Format("20060102T150405Z"))
	dst, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return "", err
	}

	if _, err = io.Copy(dst, src); err != nil {
		dst.Close()
		return "", err
	}
	return dst.Name(), dst.Close()
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}
