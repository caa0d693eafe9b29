// Package stats tracks how many rows a database has written and read since it
// was created, and keeps those totals in <db_path>/stats.json.
//
// Counters are updated in memory with atomic adds and written to disk by a
// background agent once per persistence interval. A crash loses at most the
// increments made since the last completed tick.
package stats

import (
	"errors"
	"fmt"
	"path/filepath"
	"rowstats/internal/agents"
	"rowstats/internal/core"
	"rowstats/internal/logger"
	"rowstats/internal/metrics"
	"rowstats/internal/storage"
	"sync"
	"time"
)

const StatsFileName = "stats.json"

type options struct {
	persistInterval time.Duration
	truncateOnWrite bool
	registry        *metrics.PersistenceMetrics
}

// Option configures Open.
type Option func(*options)

// WithPersistInterval sets how often the counters are written to disk.
func WithPersistInterval(interval time.Duration) Option {
	return func(o *options) {
		o.persistInterval = interval
	}
}

// WithTruncateOnWrite cuts the snapshot file to the length of each new
// document instead of leaving the tail of a longer previous write behind.
func WithTruncateOnWrite(truncate bool) Option {
	return func(o *options) {
		o.truncateOnWrite = truncate
	}
}

// WithMetricsRegistry records persistence ticks into registry.
func WithMetricsRegistry(registry *metrics.PersistenceMetrics) Option {
	return func(o *options) {
		o.registry = registry
	}
}

// Stats is the counter service handed to the rest of the database. It is safe
// for concurrent use.
type Stats struct {
	store        *core.CounterStore
	snapshotFile *storage.SnapshotFile
	agent        *agents.PersistenceAgent

	closeMutex sync.Mutex
	closed     bool
}

// Open loads <dbPath>/stats.json, creating it when absent, and starts the
// persistence agent. Failure to open the file is returned; unreadable content
// is not, and the counters start from zero instead.
func Open(dbPath string, opts ...Option) (*Stats, error) {
	o := options{
		persistInterval: agents.DefaultPersistenceInterval,
	}
	for _, opt := range opts {
		opt(&o)
	}

	snapshotFile, err := storage.OpenSnapshotFile(filepath.Join(dbPath, StatsFileName), o.truncateOnWrite)
	if err != nil {
		return nil, err
	}

	seed, err := snapshotFile.Load()
	if err != nil {
		logger.LogInfoEvent("No usable stats snapshot at %s, starting from zero: %v", snapshotFile.Path(), err)
		seed = core.CounterSnapshot{}
	}

	store := core.NewCounterStore(seed)
	agent := agents.StartPersistenceAgentInBackground(store, snapshotFile, o.persistInterval, o.registry)

	return &Stats{
		store:        store,
		snapshotFile: snapshotFile,
		agent:        agent,
	}, nil
}

// IncrementRowsWritten increments the number of written rows by n.
func (s *Stats) IncrementRowsWritten(n uint64) { s.store.IncrementRowsWritten(n) }

// IncrementRowsRead increments the number of read rows by n.
func (s *Stats) IncrementRowsRead(n uint64) { s.store.IncrementRowsRead(n) }

// TryIncrementRowsWritten adds n unless the counter would overflow.
func (s *Stats) TryIncrementRowsWritten(n uint64) bool { return s.store.TryIncrementRowsWritten(n) }

// TryIncrementRowsRead adds n unless the counter would overflow.
func (s *Stats) TryIncrementRowsRead(n uint64) bool { return s.store.TryIncrementRowsRead(n) }

// RowsWritten returns the total number of rows written since this database was created.
func (s *Stats) RowsWritten() uint64 { return s.store.RowsWritten() }

// RowsRead returns the total number of rows read since this database was created.
func (s *Stats) RowsRead() uint64 { return s.store.RowsRead() }

func (s *Stats) Snapshot() core.CounterSnapshot { return s.store.Snapshot() }

// Store exposes the shared counters, e.g. for metric collectors.
func (s *Stats) Store() *core.CounterStore { return s.store }

func (s *Stats) PersistenceMetrics() *metrics.PersistenceMetrics { return s.agent.Metrics() }

// Close stops the persistence agent after a final write and releases the
// snapshot file. Counters stay readable after Close but are no longer saved.
// Calling Close again is a no-op.
func (s *Stats) Close() error {
	s.closeMutex.Lock()
	defer s.closeMutex.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	flushErr := s.agent.Stop()
	syncErr := s.snapshotFile.Sync()
	closeErr := s.snapshotFile.Close()

	if err := errors.Join(flushErr, syncErr, closeErr); err != nil {
		return fmt.Errorf("failed to close stats: %w", err)
	}
	return nil
}
