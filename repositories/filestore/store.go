// Package filestore keeps the usage log as a single JSON array document.
//
// Every append is a full read-modify-write of the document. It is serialized
// by a mutex inside the process and by an advisory file lock across
// processes, and the new document replaces the old one with an atomic rename.
package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/upb/agency-llm-client/models"
	"go.uber.org/zap"
)

// ErrCorruptLog is returned when the document exists but is not a JSON array
// of entries. The store never overwrites such a file.
var ErrCorruptLog = errors.New("usage log is not a valid JSON array")

const lockRetryDelay = 10 * time.Millisecond

// Store is a UsageRepository backed by one JSON file
type Store struct {
	path   string
	mu     sync.Mutex
	lock   *flock.Flock
	logger *zap.Logger
}

// New creates a store writing to path. The containing directory is created
// lazily on first append.
func New(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		path:   path,
		lock:   flock.New(path + ".lock"),
		logger: logger,
	}
}

// Path returns the document location
func (s *Store) Path() string {
	return s.path
}

// Append adds one entry to the end of the document
func (s *Store) Append(ctx context.Context, entry *models.UsageLogEntry) error {
	if entry == nil {
		return errors.New("usage entry cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create usage log dir: %w", err)
	}

	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("lock usage log: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock usage log: %w", ctx.Err())
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Warn("failed to release usage log lock", zap.String("path", s.path), zap.Error(err))
		}
	}()

	entries, err := s.read()
	if err != nil {
		return err
	}
	entries = append(entries, entry)

	return s.write(entries)
}

// List returns every entry in append order. A missing document is an empty log.
func (s *Store) List(ctx context.Context) ([]*models.UsageLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.read()
}

// Close is a no-op; the lock is only held during Append
func (s *Store) Close() error {
	return nil
}

func (s *Store) read() ([]*models.UsageLogEntry, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []*models.UsageLogEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read usage log: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []*models.UsageLogEntry{}, nil
	}

	var entries []*models.UsageLogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptLog, s.path, err)
	}
	return entries, nil
}

func (s *Store) write(entries []*models.UsageLogEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal usage log: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+"-*")
	if err != nil {
		return fmt.Errorf("create temp usage log: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write usage log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp usage log: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace usage log: %w", err)
	}
	return nil
}
