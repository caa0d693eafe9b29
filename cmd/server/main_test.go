package main

import (
	"context"
	"path/filepath"
	"rowstats/internal/config"
	"rowstats/internal/stats"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenStatsCreatesDataDirectory(t *testing.T) {
	cfg := config.StatsServiceConfiguration{
		DataDirectoryPath:            filepath.Join(t.TempDir(), "nested", "data"),
		PersistenceIntervalInSeconds: 1,
	}

	service, err := openStats(cfg)
	require.NoError(t, err)
	defer service.Close()

	assert.FileExists(t, filepath.Join(cfg.DataDirectoryPath, stats.StatsFileName))
}

func TestNewRegistry(t *testing.T) {
	service, err := stats.Open(t.TempDir())
	require.NoError(t, err)
	defer service.Close()

	reg, err := newRegistry(service)
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestRunStopsOnCancelAndPersists(t *testing.T) {
	dataDir := t.TempDir()
	cfg := config.StatsServiceConfiguration{
		DataDirectoryPath:            dataDir,
		ServerPort:                   0,
		PersistenceIntervalInSeconds: 60,
		AuthenticationToken:          "configured",
		AuthenticationSecret:         "secret",
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}

	reopened, err := stats.Open(dataDir)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Zero(t, reopened.RowsWritten())
}

func TestConfigureRuntime(t *testing.T) {
	configureRuntime(config.StatsServiceConfiguration{MaximumCpuCount: 0})
	// Just ensures no panic
}

func TestPrintToken(t *testing.T) {
	printAdminToken(config.StatsServiceConfiguration{AuthenticationSecret: "secret"})
	printAdminToken(config.StatsServiceConfiguration{AuthenticationToken: "set"})
}
