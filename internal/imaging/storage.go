package imaging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store persists local copies of normalized images. A stored copy is the
// attachment payload for commit and for any later retry of a failed
// attachment upload, so a name handed to Save must read back byte-identical
// until Delete.
type Store interface {
	// Save saves image data under a bare file name and returns the stored path
	Save(name string, data []byte) (string, error)

	// Get retrieves image data by stored path
	Get(path string) ([]byte, error)

	// Delete removes a stored image
	Delete(path string) error
}

// LocalStore keeps image copies as flat files in one directory. Names are
// session-derived, never user input, but Save still refuses anything that
// would escape the directory.
type LocalStore struct {
	basePath string
}

// NewLocalStore creates a LocalStore rooted at basePath, creating the
// directory if needed.
func NewLocalStore(basePath string) (*LocalStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	return &LocalStore{
		basePath: basePath,
	}, nil
}

// Save writes image data atomically: the bytes land in a temp file first and
// are renamed into place, so a crash mid-write can never leave a truncated
// copy for the attachment retry to pick up.
func (l *LocalStore) Save(name string, data []byte) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(l.basePath, name+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), filepath.Join(l.basePath, name)); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("renaming temp file: %w", err)
	}
	return name, nil
}

// Get retrieves image data from local storage
func (l *LocalStore) Get(path string) ([]byte, error) {
	if err := validName(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(l.basePath, path))
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Delete removes an image from local storage
func (l *LocalStore) Delete(path string) error {
	if err := validName(path); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(l.basePath, path)); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}

func validName(name string) error {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid image name: %q", name)
	}
	return nil
}
