package testing

import (
	"os"
	"path/filepath"
	"rowstats/internal/stats"
	"testing"
	"time"
)

// TestStatsFactory opens stats services against a per-test data directory.
type TestStatsFactory struct {
	t       *testing.T
	RootDir string
}

func NewTestFactory(t *testing.T) *TestStatsFactory {
	return &TestStatsFactory{
		t:       t,
		RootDir: t.TempDir(),
	}
}

// OpenStats opens a service with a short persistence interval unless opts
// override it. The service is closed when the test ends.
func (f *TestStatsFactory) OpenStats(opts ...stats.Option) *stats.Stats {
	f.t.Helper()

	allOpts := append([]stats.Option{stats.WithPersistInterval(10 * time.Millisecond)}, opts...)
	service, err := stats.Open(f.RootDir, allOpts...)
	if err != nil {
		f.t.Fatalf("Factory failed to open stats: %v", err)
	}
	f.t.Cleanup(func() { service.Close() })
	return service
}

func (f *TestStatsFactory) SnapshotPath() string {
	return filepath.Join(f.RootDir, stats.StatsFileName)
}

func (f *TestStatsFactory) WriteSnapshot(content string) {
	f.t.Helper()
	if err := os.WriteFile(f.SnapshotPath(), []byte(content), 0644); err != nil {
		f.t.Fatalf("Factory failed to write snapshot: %v", err)
	}
}

func (f *TestStatsFactory) ReadSnapshot() string {
	f.t.Helper()
	raw, err := os.ReadFile(f.SnapshotPath())
	if err != nil {
		f.t.Fatalf("Factory failed to read snapshot: %v", err)
	}
	return string(raw)
}
