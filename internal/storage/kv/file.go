package kv

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fsnotify/fsnotify"
)

// tmpPrefix marks in-flight writes; such files are invisible to readers.
const tmpPrefix = ".tmp-"

// File stores each key as a file in one directory.
//
// Writes go to a temporary file that is renamed into place, so readers in
// other processes never see a partial value.
type File struct {
	dir    string
	quota  int64
	logger *slog.Logger

	// mu serializes writes so the quota check sees a stable directory.
	mu     sync.Mutex
	closed bool

	watchMu  sync.Mutex
	watchers []*fsnotify.Watcher
}

// NewFile creates a file backend rooted at dir, creating dir if needed.
func NewFile(dir string, quota int64, logger *slog.Logger) (*File, error) {
	if dir == "" {
		return nil, fmt.Errorf("file backend: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("file backend: create dir: %w", err)
	}
	return &File{dir: dir, quota: quota, logger: logger}, nil
}

func (f *File) path(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, ".") || strings.ContainsAny(key, `/\`) || key != filepath.Base(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(f.dir, key), nil
}

// Get implements Backend.
func (f *File) Get(_ context.Context, key string) ([]byte, error) {
	p, err := f.path(key)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return b, nil
}

// Set implements Backend.
func (f *File) Set(_ context.Context, key string, value []byte) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}

	if f.quota > 0 {
		used, err := f.usage(key)
		if err != nil {
			return err
		}
		if next := used + int64(len(key)+len(value)); next > f.quota {
			return fmt.Errorf("%w: %d bytes would exceed %d", ErrQuotaExceeded, next, f.quota)
		}
	}

	tmp, err := os.CreateTemp(f.dir, tmpPrefix+"*")
	if err != nil {
		return classifyFSError(err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return classifyFSError(err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return classifyFSError(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return classifyFSError(err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return classifyFSError(err)
	}
	return nil
}

// usage returns the bytes counted against the quota, excluding key.
func (f *File) usage(exclude string) (int64, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || name == exclude {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		total += int64(len(name)) + info.Size()
	}
	return total, nil
}

// Delete implements Backend.
func (f *File) Delete(_ context.Context, key string) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Scan implements Backend.
func (f *File) Scan(ctx context.Context, prefix string, fn func(key string, value []byte) bool) error {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasPrefix(name, prefix) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		b, err := os.ReadFile(filepath.Join(f.dir, name))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
		if !fn(name, b) {
			break
		}
	}
	return nil
}

// Size implements Backend.
func (f *File) Size(_ context.Context) (int64, error) {
	return f.usage("")
}

// Watch implements Watcher using fsnotify on the backend directory.
func (f *File) Watch(ctx context.Context, prefix string) (<-chan string, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(f.dir); err != nil {
		w.Close()
		return nil, err
	}

	f.watchMu.Lock()
	f.watchers = append(f.watchers, w)
	f.watchMu.Unlock()

	out := make(chan string, 64)
	go func() {
		defer close(out)
		defer f.removeWatcher(w)
		for {
			select {
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				name := filepath.Base(event.Name)
				if strings.HasPrefix(name, ".") || !strings.HasPrefix(name, prefix) {
					continue
				}
				if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
					continue
				}
				select {
				case out <- name:
				default:
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				f.logger.Warn("file backend watch error", "dir", f.dir, "error", err)
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// removeWatcher closes w and forgets it.
func (f *File) removeWatcher(w *fsnotify.Watcher) {
	w.Close()
	f.watchMu.Lock()
	defer f.watchMu.Unlock()
	for i, cur := range f.watchers {
		if cur == w {
			f.watchers = append(f.watchers[:i], f.watchers[i+1:]...)
			return
		}
	}
}

// Close implements Backend. Active watches end.
func (f *File) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()

	f.watchMu.Lock()
	defer f.watchMu.Unlock()
	for _, w := range f.watchers {
		w.Close()
	}
	f.watchers = nil
	return nil
}

// classifyFSError maps out-of-space conditions to ErrQuotaExceeded.
func classifyFSError(err error) error {
	if errors.Is(err, syscall.ENOSPC) {
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	}
	return err
}

var (
	_ Backend = (*File)(nil)
	_ Watcher = (*File)(nil)
)
