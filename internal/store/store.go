// Package store persists the key collection as a single JSON document.
//
// The whole collection is read and written as a unit. Every access goes
// through Store, which serializes callers in this process with a mutex and
// callers in other processes with an advisory lock on a sibling ".lock"
// file. Writes go to a temporary file that is renamed over the target, so a
// crash never leaves a truncated store behind.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/maxkornevpro/key/internal/model"
)

// slowLock is the lock wait above which a debug line is logged.
const slowLock = 50 * time.Millisecond

var utf8BOM = []byte("\xef\xbb\xbf")

// Store owns the key store file. It is safe for concurrent use.
type Store struct {
	path     string
	lockPath string
	mu       sync.RWMutex
	logger   *slog.Logger
}

// New returns a Store for the file at path, creating its parent directory.
// The file itself is not touched; see CreateIfAbsent.
func New(path string, logger *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("key store path is empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve key store path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return nil, fmt.Errorf("create key store dir: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		path:     abs,
		lockPath: abs + ".lock",
		logger:   logger,
	}, nil
}

// Open is New followed by CreateIfAbsent.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	s, err := New(path, logger)
	if err != nil {
		return nil, err
	}
	created, err := s.CreateIfAbsent(ctx)
	if err != nil {
		return nil, err
	}
	if created {
		s.logger.Info("created empty key store", "path", s.path)
	}
	return s, nil
}

// Path returns the absolute path of the store file.
func (s *Store) Path() string {
	return s.path
}

// CreateIfAbsent writes an empty collection if the store file does not exist
// yet. It reports whether a file was created.
func (s *Store) CreateIfAbsent(ctx context.Context) (bool, error) {
	created := false
	err := s.withLock(ctx, true, func() error {
		_, err := os.Stat(s.path)
		if err == nil {
			return nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("stat key store: %w", err)
		}
		created = true
		return s.write(model.NewKeySet())
	})
	return created, err
}

// Load reads the full collection. A missing file yields an empty set; an
// unparsable one yields ErrMalformedData.
func (s *Store) Load(ctx context.Context) (*model.KeySet, error) {
	var out *model.KeySet
	err := s.View(ctx, func(set *model.KeySet) error {
		out = set
		return nil
	})
	return out, err
}

// Save replaces the store contents with set.
func (s *Store) Save(ctx context.Context, set *model.KeySet) error {
	return s.withLock(ctx, true, func() error {
		return s.write(set)
	})
}

// Update runs a read-modify-write transaction. The exclusive lock is held
// from the read until the write completes. If fn returns an error nothing is
// written and the error is returned unchanged, except ErrNoChange which ends
// the transaction successfully without a write.
func (s *Store) Update(ctx context.Context, fn func(set *model.KeySet) error) error {
	return s.withLock(ctx, true, func() error {
		set, err := s.read()
		if err != nil {
			return err
		}
		if err := fn(set); err != nil {
			if errors.Is(err, ErrNoChange) {
				return nil
			}
			return err
		}
		return s.write(set)
	})
}

// View runs fn against a freshly loaded collection under a shared lock.
func (s *Store) View(ctx context.Context, fn func(set *model.KeySet) error) error {
	return s.withLock(ctx, false, func() error {
		set, err := s.read()
		if err != nil {
			return err
		}
		return fn(set)
	})
}

// Count returns the number of records in the store.
func (s *Store) Count(ctx context.Context) (int, error) {
	n := 0
	err := s.View(ctx, func(set *model.KeySet) error {
		n = set.Len()
		return nil
	})
	return n, err
}

func (s *Store) withLock(ctx context.Context, exclusive bool, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if exclusive {
		s.mu.Lock()
		defer s.mu.Unlock()
	} else {
		s.mu.RLock()
		defer s.mu.RUnlock()
	}

	f, err := os.OpenFile(s.lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("open key store lock: %w", err)
	}
	defer f.Close()

	start := time.Now()
	if err := lockFile(f, exclusive); err != nil {
		return fmt.Errorf("lock key store: %w", err)
	}
	defer unlockFile(f) //nolint:errcheck

	if waited := time.Since(start); waited > slowLock {
		s.logger.Debug("waited for key store lock", "path", s.path, "exclusive", exclusive, "waited", waited)
	}
	return fn()
}

func (s *Store) read() (*model.KeySet, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return model.NewKeySet(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read key store: %w", err)
	}

	set := model.NewKeySet()
	if err := json.Unmarshal(bytes.TrimPrefix(data, utf8BOM), set); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedData, s.path, err)
	}
	return set, nil
}

func (s *Store) write(set *model.KeySet) error {
	raw, err := set.MarshalJSON()
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrWriteFailed, err)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return fmt.Errorf("%w: encode: %w", ErrWriteFailed, err)
	}
	buf.WriteByte('\n')

	mode := fs.FileMode(0644)
	if fi, err := os.Stat(s.path); err == nil {
		mode = fi.Mode().Perm()
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", ErrWriteFailed, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("%w: write: %w", ErrWriteFailed, err)
	}
	if err := tmp.Chmod(mode); err != nil {
		return fmt.Errorf("%w: chmod: %w", ErrWriteFailed, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("%w: sync: %w", ErrWriteFailed, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close: %w", ErrWriteFailed, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("%w: rename: %w", ErrWriteFailed, err)
	}
	committed = true

	syncDir(dir)
	return nil
}

// syncDir flushes the directory entry after a rename. Not every platform
// can open a directory for syncing, so failures are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	d.Sync()
	d.Close()
}
