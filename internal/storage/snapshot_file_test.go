package storage

import (
	"os"
	"path/filepath"
	"rowstats/internal/core"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestSnapshot(t *testing.T, truncate bool) *SnapshotFile {
	t.Helper()
	snapshotFile, err := OpenSnapshotFile(filepath.Join(t.TempDir(), "stats.json"), truncate)
	require.NoError(t, err)
	t.Cleanup(func() { snapshotFile.Close() })
	return snapshotFile
}

func TestSnapshotFile_OpenCreatesFile(t *testing.T) {
	snapshotFile := openTestSnapshot(t, false)

	info, err := os.Stat(snapshotFile.Path())
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestSnapshotFile_OpenMissingDirectory(t *testing.T) {
	_, err := OpenSnapshotFile(filepath.Join(t.TempDir(), "missing", "stats.json"), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSnapshotFile_LoadEmptyIsCorrupted(t *testing.T) {
	snapshotFile := openTestSnapshot(t, false)

	_, err := snapshotFile.Load()
	assert.ErrorIs(t, err, ErrSnapshotCorrupted)
}

func TestSnapshotFile_OverwriteThenLoad(t *testing.T) {
	snapshotFile := openTestSnapshot(t, false)

	require.NoError(t, snapshotFile.Overwrite(core.CounterSnapshot{RowsWritten: 8, RowsRead: 10}))
	require.NoError(t, snapshotFile.Overwrite(core.CounterSnapshot{RowsWritten: 9, RowsRead: 12}))

	snapshot, err := snapshotFile.Load()
	require.NoError(t, err)
	assert.Equal(t, core.CounterSnapshot{RowsWritten: 9, RowsRead: 12}, snapshot)

	raw, err := os.ReadFile(snapshotFile.Path())
	require.NoError(t, err)
	assert.JSONEq(t, `{"rows_written":9,"rows_read":12}`, string(raw))
}

func TestSnapshotFile_ShorterWriteLeavesTrailingBytes(t *testing.T) {
	snapshotFile := openTestSnapshot(t, false)

	require.NoError(t, snapshotFile.Overwrite(core.CounterSnapshot{RowsWritten: 123456789, RowsRead: 987654321}))
	require.NoError(t, snapshotFile.Overwrite(core.CounterSnapshot{RowsWritten: 1, RowsRead: 2}))

	raw, err := os.ReadFile(snapshotFile.Path())
	require.NoError(t, err)
	assert.Greater(t, len(raw), len(`{"rows_written":1,"rows_read":2}`))

	snapshot, err := snapshotFile.Load()
	require.NoError(t, err)
	assert.Equal(t, core.CounterSnapshot{RowsWritten: 1, RowsRead: 2}, snapshot)
}

func TestSnapshotFile_TruncateOnWrite(t *testing.T) {
	snapshotFile := openTestSnapshot(t, true)

	require.NoError(t, snapshotFile.Overwrite(core.CounterSnapshot{RowsWritten: 123456789, RowsRead: 987654321}))
	require.NoError(t, snapshotFile.Overwrite(core.CounterSnapshot{RowsWritten: 1, RowsRead: 2}))

	raw, err := os.ReadFile(snapshotFile.Path())
	require.NoError(t, err)
	assert.Equal(t, `{"rows_written":1,"rows_read":2}`, string(raw))
}

func TestSnapshotFile_LoadRejectsBadDocuments(t *testing.T) {
	cases := map[string]string{
		"truncated":     `{"rows_written":12,"rows_r`,
		"garbage":       "\x00\x01not json",
		"wrong type":    `{"rows_written":"twelve","rows_read":1}`,
		"negative":      `{"rows_written":-1,"rows_read":1}`,
		"missing field": `{"rows_written":5}`,
		"array":         `[1,2]`,
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "stats.json")
			require.NoError(t, os.WriteFile(path, []byte(content), 0644))

			snapshotFile, err := OpenSnapshotFile(path, false)
			require.NoError(t, err)
			defer snapshotFile.Close()

			_, err = snapshotFile.Load()
			assert.ErrorIs(t, err, ErrSnapshotCorrupted)
		})
	}
}

func TestSnapshotFile_OpenDoesNotTruncate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"rows_written":3,"rows_read":4}`), 0644))

	snapshotFile, err := OpenSnapshotFile(path, true)
	require.NoError(t, err)
	defer snapshotFile.Close()

	snapshot, err := snapshotFile.Load()
	require.NoError(t, err)
	assert.Equal(t, core.CounterSnapshot{RowsWritten: 3, RowsRead: 4}, snapshot)
}
