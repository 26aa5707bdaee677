// Package docstore manages the shared document directory where fetched
// certificates and merged dossiers are written.
package docstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Dir is an append-only directory of uniquely named documents.
type Dir struct {
	root       string
	publicBase string
}

// New prepares root, creating it if absent. publicBase is the URL prefix that
// serves the directory, e.g. "http://localhost:8080/files".
func New(root, publicBase string) (*Dir, error) {
	if root == "" {
		return nil, errors.New("docstore: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create document dir: %w", err)
	}
	return &Dir{root: root, publicBase: strings.TrimRight(publicBase, "/")}, nil
}

// NewName returns a fresh file name: a random uuid prefix plus suffix.
func (d *Dir) NewName(suffix string) string {
	return uuid.NewString() + "_" + suffix
}

// Write creates name with data. It never overwrites an existing file.
func (d *Dir) Write(name string, data []byte) error {
	path, err := d.Path(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(d.root, 0o755); err != nil {
		return fmt.Errorf("create document dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	return f.Close()
}

// Path resolves name inside the directory. Names with path separators are
// rejected.
func (d *Dir) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("docstore: invalid file name %q", name)
	}
	return filepath.Join(d.root, name), nil
}

// Exists reports whether name is a regular file in the directory.
func (d *Dir) Exists(name string) bool {
	path, err := d.Path(name)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// URL is the public address of name.
func (d *Dir) URL(name string) string {
	return d.publicBase + "/" + name
}

// Root returns the directory on disk.
func (d *Dir) Root() string {
	return d.root
}
