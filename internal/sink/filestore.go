package sink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"mediaworker/internal/fileutil"
	"mediaworker/internal/textutil"
)

const lockRetryDelay = 50 * time.Millisecond

// FileStore writes one JSON document per job into a directory. Writers in
// any process serialize on a lock file in that directory.
type FileStore struct {
	dir  string
	mu   sync.Mutex
	lock *flock.Flock
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("file store: results directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file store: create %s: %w", dir, err)
	}
	return &FileStore{dir: dir, lock: flock.New(filepath.Join(dir, ".results.lock"))}, nil
}

// Dir returns the results directory.
func (s *FileStore) Dir() string { return s.dir }

// DocumentPath returns where the JSON document for jobID lives. The name is
// derived from the exact id, so ids differing only in case or punctuation
// never share a file.
func (s *FileStore) DocumentPath(jobID string) string {
	return filepath.Join(s.dir, textutil.FileKey(jobID)+".json")
}

// TranscriptPath returns where the SubRip transcript for jobID lives.
func (s *FileStore) TranscriptPath(jobID string) string {
	return filepath.Join(s.dir, textutil.FileKey(jobID)+".srt")
}

// Save implements Store.
func (s *FileStore) Save(ctx context.Context, rec Record) (bool, error) {
	if rec.JobID == "" {
		return false, errors.New("file store: job id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return false, fmt.Errorf("file store: lock: %w", err)
	}
	if !locked {
		return false, errors.New("file store: lock not acquired")
	}
	defer func() { _ = s.lock.Unlock() }()

	docPath := s.DocumentPath(rec.JobID)
	if fileutil.Exists(docPath) {
		return false, nil
	}
	if rec.SRT != "" {
		if err := fileutil.WriteFileAtomic(s.TranscriptPath(rec.JobID), []byte(rec.SRT), 0o644); err != nil {
			return false, fmt.Errorf("file store: %w", err)
		}
	}
	// The document is written last; its presence marks the record complete.
	if err := fileutil.WriteFileAtomic(docPath, rec.Document, 0o644); err != nil {
		return false, fmt.Errorf("file store: %w", err)
	}
	return true, nil
}

// Load implements Store.
func (s *FileStore) Load(_ context.Context, jobID string) ([]byte, error) {
	data, err := os.ReadFile(s.DocumentPath(jobID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file store: %w", err)
	}
	return data, nil
}

// Close implements Store.
func (s *FileStore) Close() error { return nil }
