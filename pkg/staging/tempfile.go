// Package staging manages the local files a result payload is staged to.
//
// A TempFile has two phases. After Create it is open for writing; Commit
// syncs and closes it and records its size. From then on it can be opened
// for reading any number of times until Remove deletes it. Remove is
// idempotent and safe to call in any phase, so every exit path of a
// pipeline can call it unconditionally.
package staging

import (
	"fmt"
	"os"
	"sync"

	"github.com/ajitpratap0/nebula-bulk/pkg/errors"
	"github.com/ajitpratap0/nebula-bulk/pkg/metrics"
)

const filePattern = "nebula-bulk-*.csv"

// TempFile is an ownership-scoped staging file.
type TempFile struct {
	path string

	mu        sync.Mutex
	w         *os.File
	size      int64
	committed bool
	removed   bool
	removeErr error
}

// Create creates an empty staging file in dir (os.TempDir() when empty),
// open for writing.
func Create(dir string) (*TempFile, error) {
	f, err := os.CreateTemp(dir, filePattern)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeStorage, "failed to create staging file").
			WithDetail(errors.DetailPath, dir)
	}
	metrics.StagedFiles.Inc()
	return &TempFile{path: f.Name(), w: f}, nil
}

// Write appends p to the file. It fails once the file is committed or removed.
func (t *TempFile) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.w == nil {
		return 0, errors.New(errors.ErrorTypeStorage, "staging file is not open for writing").
			WithDetail(errors.DetailPath, t.path)
	}
	n, err := t.w.Write(p)
	t.size += int64(n)
	if err != nil {
		return n, errors.Wrap(err, errors.ErrorTypeStorage, "failed to write staging file").
			WithDetail(errors.DetailPath, t.path)
	}
	return n, nil
}

// Commit flushes the file to disk and closes it for writing.
func (t *TempFile) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.w == nil {
		return errors.New(errors.ErrorTypeStorage, "staging file is not open for writing").
			WithDetail(errors.DetailPath, t.path)
	}
	w := t.w
	t.w = nil

	if err := w.Sync(); err != nil {
		_ = w.Close()
		return errors.Wrap(err, errors.ErrorTypeStorage, "failed to sync staging file").
			WithDetail(errors.DetailPath, t.path)
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeStorage, "failed to close staging file").
			WithDetail(errors.DetailPath, t.path)
	}
	t.committed = true
	return nil
}

// Open opens the committed file for reading.
func (t *TempFile) Open() (*os.File, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case t.removed:
		return nil, errors.New(errors.ErrorTypeRead, "staging file has been removed").
			WithDetail(errors.DetailPath, t.path)
	case !t.committed:
		return nil, errors.New(errors.ErrorTypeRead, "staging file has not been committed").
			WithDetail(errors.DetailPath, t.path)
	}

	f, err := os.Open(t.path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeRead, "failed to open staging file").
			WithDetail(errors.DetailPath, t.path)
	}
	return f, nil
}

// Remove closes the file if it is still being written and deletes it.
// Only the first call does any work; later calls return its result.
func (t *TempFile) Remove() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.removed {
		return t.removeErr
	}
	t.removed = true

	if t.w != nil {
		_ = t.w.Close()
		t.w = nil
	}
	if err := os.Remove(t.path); err != nil && !os.IsNotExist(err) {
		t.removeErr = errors.Wrap(err, errors.ErrorTypeStorage, "failed to remove staging file").
			WithDetail(errors.DetailPath, t.path)
	}
	metrics.StagedFiles.Dec()
	return t.removeErr
}

// Removed reports whether Remove has been called.
func (t *TempFile) Removed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.removed
}

// Path returns the file's location on disk.
func (t *TempFile) Path() string {
	return t.path
}

// Size returns the number of bytes written.
func (t *TempFile) Size() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.size
}

func (t *TempFile) String() string {
	return fmt.Sprintf("staging.TempFile(%s, %d bytes)", t.path, t.Size())
}
