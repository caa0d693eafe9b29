package core

import (
	"math"
	"sync/atomic"
)

// CounterSnapshot is the persisted shape of the row counters.
type CounterSnapshot struct {
	RowsWritten uint64 `json:"rows_written"`
	RowsRead    uint64 `json:"rows_read"`
}

// CounterStore holds the running row totals for one database instance.
//
// Each counter is updated with a single atomic add, so increments from any
// number of goroutines are never lost. The two counters are independent:
// Snapshot may observe them at slightly different instants.
type CounterStore struct {
	rowsWrittenCount atomic.Uint64
	rowsReadCount    atomic.Uint64
}

func NewCounterStore(seed CounterSnapshot) *CounterStore {
	store := &CounterStore{}
	store.rowsWrittenCount.Store(seed.RowsWritten)
	store.rowsReadCount.Store(seed.RowsRead)
	return store
}

// IncrementRowsWritten adds n to the number of written rows.
func (store *CounterStore) IncrementRowsWritten(n uint64) {
	store.rowsWrittenCount.Add(n)
}

// IncrementRowsRead adds n to the number of read rows.
func (store *CounterStore) IncrementRowsRead(n uint64) {
	store.rowsReadCount.Add(n)
}

// TryIncrementRowsWritten adds n unless the total would wrap past
// math.MaxUint64, in which case the counter is left unchanged.
func (store *CounterStore) TryIncrementRowsWritten(n uint64) bool {
	return addWithoutOverflow(&store.rowsWrittenCount, n)
}

// TryIncrementRowsRead is TryIncrementRowsWritten for read rows.
func (store *CounterStore) TryIncrementRowsRead(n uint64) bool {
	return addWithoutOverflow(&store.rowsReadCount, n)
}

func addWithoutOverflow(cell *atomic.Uint64, n uint64) bool {
	for {
		current := cell.Load()
		if n > math.MaxUint64-current {
			return false
		}
		if cell.CompareAndSwap(current, current+n) {
			return true
		}
	}
}

// RowsWritten returns the total number of rows written since the database was created.
func (store *CounterStore) RowsWritten() uint64 {
	return store.rowsWrittenCount.Load()
}

// RowsRead returns the total number of rows read since the database was created.
func (store *CounterStore) RowsRead() uint64 {
	return store.rowsReadCount.Load()
}

func (store *CounterStore) Snapshot() CounterSnapshot {
	return CounterSnapshot{
		RowsWritten: store.rowsWrittenCount.Load(),
		RowsRead:    store.rowsReadCount.Load(),
	}
}
