package agents

import (
	"rowstats/internal/core"
	"rowstats/internal/logger"
	"rowstats/internal/metrics"
	"sync"
	"time"
)

const DefaultPersistenceInterval = 5 * time.Second

// SnapshotWriter is the destination of persistence ticks.
type SnapshotWriter interface {
	Overwrite(snapshot core.CounterSnapshot) error
}

// PersistenceAgent periodically writes the counter store to its snapshot
// file. It owns the writer for its lifetime; callers never wait on it.
type PersistenceAgent struct {
	store    *core.CounterStore
	writer   SnapshotWriter
	interval time.Duration
	metrics  *metrics.PersistenceMetrics

	tickMutex sync.Mutex
	stopChan  chan struct{}
	doneChan  chan struct{}
	stopOnce  sync.Once
}

// StartPersistenceAgentInBackground writes one snapshot right away and then
// one per interval until Stop is called.
func StartPersistenceAgentInBackground(store *core.CounterStore, writer SnapshotWriter, interval time.Duration, registry *metrics.PersistenceMetrics) *PersistenceAgent {
	if interval <= 0 {
		interval = DefaultPersistenceInterval
	}
	if registry == nil {
		registry = metrics.NewPersistenceMetrics()
	}

	agent := &PersistenceAgent{
		store:    store,
		writer:   writer,
		interval: interval,
		metrics:  registry,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
	go agent.run()
	return agent
}

func (agent *PersistenceAgent) run() {
	defer close(agent.doneChan)

	ticker := time.NewTicker(agent.interval)
	defer ticker.Stop()

	for {
		agent.FlushNow()

		select {
		case <-ticker.C:
		case <-agent.stopChan:
			return
		}
	}
}

// FlushNow runs a single persistence tick. Errors are recorded and logged,
// never retried; the next tick simply tries again.
func (agent *PersistenceAgent) FlushNow() error {
	agent.tickMutex.Lock()
	defer agent.tickMutex.Unlock()

	snapshot := agent.store.Snapshot()
	if err := agent.writer.Overwrite(snapshot); err != nil {
		agent.metrics.RecordFailure()
		logger.LogErrorEvent("Stats persistence tick skipped: %v", err)
		return err
	}

	agent.metrics.RecordSuccess(time.Now())
	logger.LogDebugEvent("Persisted stats: rows_written=%d rows_read=%d", snapshot.RowsWritten, snapshot.RowsRead)
	return nil
}

// Stop ends the loop and writes a final snapshot. Safe to call more than once.
func (agent *PersistenceAgent) Stop() error {
	var err error
	agent.stopOnce.Do(func() {
		close(agent.stopChan)
		<-agent.doneChan
		err = agent.FlushNow()
	})
	return err
}

func (agent *PersistenceAgent) Interval() time.Duration { return agent.interval }

func (agent *PersistenceAgent) Metrics() *metrics.PersistenceMetrics { return agent.metrics }
