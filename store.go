package mirror

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
)

// DefaultMaxConsecutiveFailures is how many writes in a row may fail
// before the Store gives up.
const DefaultMaxConsecutiveFailures = 5

// Store writes fetched resources below a root directory, at the
// location given by LocalPath.
type Store struct {
	root string

	// MaxConsecutiveFailures turns isolated write errors into a
	// storage failure once this many happened in a row.
	MaxConsecutiveFailures int

	mx       sync.Mutex
	failures int

	// Serializes moving files out of the way of directories.
	dirMx sync.Mutex
}

// NewStore creates the root directory if necessary.
func NewStore(root string) (*Store, error) {
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, &FilesystemError{Path: root, Err: err}
	}
	return &Store{
		root:                   root,
		MaxConsecutiveFailures: DefaultMaxConsecutiveFailures,
	}, nil
}

// Root returns the directory the Store writes to.
func (s *Store) Root() string {
	return s.root
}

// Save writes body to the file for u and returns its path. Errors are
// of type *FilesystemError; those that make further writes pointless
// also match ErrStorageFailed.
//
// A URL can turn out to be a directory only after it was saved as a
// file ("/v1.0" first, then "/v1.0/page.html"). The file is then moved
// to the directory's index.html, and later saves of "/v1.0" go there
// too.
func (s *Store) Save(u *url.URL, body []byte) (string, error) {
	path := LocalPath(u, s.root)
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		path = filepath.Join(path, indexFile)
	}
	err := s.mkdirAll(filepath.Dir(path))
	if err == nil {
		err = writeFile(path, body)
	}

	s.mx.Lock()
	defer s.mx.Unlock()
	if err == nil {
		s.failures = 0
		return path, nil
	}
	s.failures++
	if isSystemic(err) || (s.MaxConsecutiveFailures > 0 && s.failures >= s.MaxConsecutiveFailures) {
		err = fmt.Errorf("%w: %w", ErrStorageFailed, err)
	}
	return path, &FilesystemError{Path: path, Err: err}
}

// mkdirAll creates dir, moving a file found in its way to that file's
// index.html. Host directories are never moved.
func (s *Store) mkdirAll(dir string) error {
	err := os.MkdirAll(dir, 0755)
	if err == nil || !errors.Is(err, syscall.ENOTDIR) {
		return err
	}

	s.dirMx.Lock()
	defer s.dirMx.Unlock()
	for p := dir; strings.HasPrefix(p, s.root+string(filepath.Separator)) && filepath.Dir(p) != s.root; p = filepath.Dir(p) {
		fi, serr := os.Stat(p)
		if serr != nil || fi.IsDir() {
			continue
		}
		if err := fileToIndex(p); err != nil {
			return err
		}
		break
	}
	return os.MkdirAll(dir, 0755)
}

func fileToIndex(path string) error {
	tmp := path + ".mirror-move"
	if err := os.Rename(path, tmp); err != nil {
		return err
	}
	if err := os.Mkdir(path, 0755); err != nil {
		os.Rename(tmp, path) // nolint
		return err
	}
	return os.Rename(tmp, filepath.Join(path, indexFile))
}

// Write to a temporary file first so that a file is either complete
// or absent, even if two URLs map to the same path.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, ".mirror-*")
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()           // nolint
		os.Remove(f.Name()) // nolint
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name()) // nolint
		return err
	}
	if err := os.Chmod(f.Name(), 0644); err != nil {
		os.Remove(f.Name()) // nolint
		return err
	}
	if err := os.Rename(f.Name(), path); err != nil {
		os.Remove(f.Name()) // nolint
		return err
	}
	return nil
}

func isSystemic(err error) bool {
	return errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EROFS) || errors.Is(err, syscall.EDQUOT)
}
