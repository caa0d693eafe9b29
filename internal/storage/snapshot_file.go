package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"rowstats/internal/core"
	"sync"
)

var ErrSnapshotCorrupted = errors.New("snapshot file is empty or corrupted")

// SnapshotFile is the on-disk home of the counter snapshot. Every write
// overwrites the document in place starting at offset zero.
type SnapshotFile struct {
	file            *os.File
	mutex           sync.Mutex
	path            string
	truncateOnWrite bool
}

// persistedCounters detects missing fields; a document without both
// counters is treated as corrupted rather than partially applied.
type persistedCounters struct {
	RowsWritten *uint64 `json:"rows_written"`
	RowsRead    *uint64 `json:"rows_read"`
}

func OpenSnapshotFile(path string, truncateOnWrite bool) (*SnapshotFile, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot file: %w", err)
	}
	return &SnapshotFile{
		file:            file,
		path:            path,
		truncateOnWrite: truncateOnWrite,
	}, nil
}

func (s *SnapshotFile) Path() string { return s.path }

// Load decodes the first JSON document in the file. Bytes following that
// document are ignored, which tolerates leftovers from a longer earlier write.
func (s *SnapshotFile) Load() (core.CounterSnapshot, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return core.CounterSnapshot{}, err
	}

	var decoded persistedCounters
	if err := json.NewDecoder(s.file).Decode(&decoded); err != nil {
		return core.CounterSnapshot{}, fmt.Errorf("%w: %v", ErrSnapshotCorrupted, err)
	}
	if decoded.RowsWritten == nil || decoded.RowsRead == nil {
		return core.CounterSnapshot{}, fmt.Errorf("%w: missing counter field", ErrSnapshotCorrupted)
	}

	return core.CounterSnapshot{
		RowsWritten: *decoded.RowsWritten,
		RowsRead:    *decoded.RowsRead,
	}, nil
}

// Overwrite writes snapshot at offset zero. Without truncateOnWrite a shorter
// document leaves the tail of the previous one on disk.
func (s *SnapshotFile) Overwrite(snapshot core.CounterSnapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := s.file.Write(payload); err != nil {
		return err
	}

	if s.truncateOnWrite {
		return s.file.Truncate(int64(len(payload)))
	}
	return nil
}

func (s *SnapshotFile) Sync() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.file.Sync()
}

func (s *SnapshotFile) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.file.Close()
}
