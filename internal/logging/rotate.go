package logging

import (
	"fmt"
	"os"
	"sync"
)

// DefaultMaxSizeBytes is the size-rotation threshold, matching the
// original relay's logrus.cpp default (10 MiB, one backup kept).
const DefaultMaxSizeBytes = 10 * 1024 * 1024

// RotatingWriter is a minimal size-triggered log file rotator. No library
// in the retrieved pack pulls in a rotation dependency (lumberjack, zap's
// rotator, etc. are all absent), so this is hand-rolled directly on
// os.File; see DESIGN.md for that justification.
type RotatingWriter struct {
	mu      sync.Mutex
	path    string
	maxSize int64
	file    *os.File
	size    int64
}

// NewRotatingWriter opens path for append, creating it if necessary, and
// rotates it once its size exceeds maxSize bytes.
func NewRotatingWriter(path string, maxSize int64) (*RotatingWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("logging: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("logging: stat %s: %w", path, err)
	}
	return &RotatingWriter{path: path, maxSize: maxSize, file: f, size: info.Size()}, nil
}

// Write appends p to the current log file, rotating first if p would push
// the file past maxSize.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size+int64(len(p)) > w.maxSize {
		if err := w.rotateLocked(); err != nil {
			return 0, err
		}
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *RotatingWriter) rotateLocked() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("logging: close before rotate: %w", err)
	}
	backup := w.path + ".1"
	if err := os.Rename(w.path, backup); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("logging: rotate %s: %w", w.path, err)
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("logging: reopen %s: %w", w.path, err)
	}
	w.file = f
	w.size = 0
	return nil
}

// Close closes the underlying file.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
