package filestore

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedhost/internal/storage"
)

var store storage.Storage
var root string

func TestMain(m *testing.M) {
	var err error
	root, err = os.MkdirTemp("", "filestore")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup tests")
		return
	}

	store = &FileStore{
		Root: root,
	}

	code := m.Run()
	if err = os.RemoveAll(root); err != nil {
		log.Fatal().Err(err).Msg("removal of temporary directory failed")
	}
	os.Exit(code)
}

func TestCreate(t *testing.T) {
	cases := []struct {
		Casename string
		Path     string
		Content  string
		Err      error
	}{
		{"create file", "alice/f1.txt", "hello, world!", nil},
		{"create duplicate file", "alice/f1.txt", "hello, world!", storage.ErrAlreadyExists},
		{"create nested file", "alice/css/site.css", "body{}", nil},
		{"escape the root", "../outside.txt", "nope", nil},
		{"hidden file", "alice/.env", "SECRET=1", storage.ErrInvalidPath},
		{"empty path", "", "nothing", storage.ErrInvalidPath},
	}

	for _, c := range cases {
		t.Run(c.Casename, func(t *testing.T) {
			err := store.Create(strings.NewReader(c.Content), c.Path)
			if err != nil {
				if c.Err == nil {
					t.Error("unexpected error:", err)
					return
				} else if !errors.Is(err, c.Err) {
					t.Errorf("unexpected error type.\nexpected: %s\ngot: %s\n", c.Err, err)
				}
				return
			}
			if c.Err != nil {
				t.Errorf("expected %s, got nothing", c.Err)
				return
			}

			// cleaned paths stay under the root
			rel := strings.TrimPrefix(filepath.Clean("/"+c.Path), "/")
			content, err := os.ReadFile(filepath.Join(root, rel))
			if err != nil {
				t.Errorf("failed to read file: %s", err)
				return
			}
			if string(content) != c.Content {
				t.Errorf("expected \"%s\", got \"%s\"", c.Content, content)
			}
		})
	}
}

func TestPutReplaces(t *testing.T) {
	if err := store.Put(strings.NewReader("v1"), "bob/index.html"); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if err := store.Put(strings.NewReader("v2"), "bob/index.html"); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	content, err := store.Open("bob/index.html")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if string(content) != "v2" {
		t.Errorf("expected v2, got %s", content)
	}

	if err = store.Put(strings.NewReader("x"), "bob"); !errors.Is(err, storage.ErrInvalidPath) {
		t.Errorf("expected %s writing over a directory, got %v", storage.ErrInvalidPath, err)
	}
}

func TestOpen(t *testing.T) {
	if _, err := store.Open("nobody/none.txt"); !errors.Is(err, storage.ErrNotExist) {
		t.Errorf("expected %s, got %v", storage.ErrNotExist, err)
	}
	if _, err := store.Open("carol/.git/config"); !errors.Is(err, storage.ErrInvalidPath) {
		t.Errorf("expected %s, got %v", storage.ErrInvalidPath, err)
	}
}

func TestList(t *testing.T) {
	for name, content := range map[string]string{
		"dave/index.html":   "<p>dave</p>",
		"dave/img/logo.png": "png",
	} {
		if err := store.Put(strings.NewReader(content), name); err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
	}
	if err := os.WriteFile(filepath.Join(root, "dave", ".hidden"), []byte("h"), 0o640); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	entries, err := store.List("dave")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	var paths []string
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	if diff := cmp.Diff([]string{"img/logo.png", "index.html"}, paths); diff != "" {
		t.Errorf("listing mismatch (-want +got):\n%s", diff)
	}

	if _, err = store.List("nobody"); !errors.Is(err, storage.ErrNotExist) {
		t.Errorf("expected %s, got %v", storage.ErrNotExist, err)
	}
}

func TestDelete(t *testing.T) {
	name := "moribundus"
	newpath := filepath.Join(root, name)
	f, err := os.Create(newpath)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	f.Close()

	err = store.Delete(name)
	if err != nil {
		t.Errorf("unexpected error: %s", err)
	}

	name = "none"
	err = store.Delete(name)
	if err == nil || !errors.Is(err, storage.ErrNotExist) {
		t.Errorf("unexpected err: %s\nexpected \"%s\"", err, storage.ErrNotExist)
	}
}

func TestEscapeStaysUnderRoot(t *testing.T) {
	if err := store.Put(strings.NewReader("x"), "../../escaped.txt"); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(root), "escaped.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("file was written outside the root: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "escaped.txt")); err != nil {
		t.Errorf("expected the file under the root: %s", err)
	}
}
