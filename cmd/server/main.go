package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"rowstats/internal/api"
	"rowstats/internal/config"
	"rowstats/internal/logger"
	"rowstats/internal/metrics"
	"rowstats/internal/stats"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/valyala/fasthttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfgPath := flag.String("config", "", "Config path")
	flag.Parse()

	cfg, err := config.LoadConfigurationFromFile(*cfgPath)
	if err != nil {
		log.Fatalf("Config Error: %v", err)
	}

	if err := logger.InitializeLogger(cfg.LogDirectoryPath, cfg.LogSeverityLevel); err != nil {
		log.Fatal(err)
	}
	defer logger.ShutdownLogger()

	configureRuntime(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.LogErrorEvent("Server exited: %v", err)
		logger.ShutdownLogger()
		os.Exit(1)
	}
}

func configureRuntime(cfg config.StatsServiceConfiguration) {
	if cfg.MaximumCpuCount > 0 {
		runtime.GOMAXPROCS(cfg.MaximumCpuCount)
	}
}

func openStats(cfg config.StatsServiceConfiguration) (*stats.Stats, error) {
	if err := os.MkdirAll(cfg.DataDirectoryPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return stats.Open(cfg.DataDirectoryPath,
		stats.WithPersistInterval(cfg.PersistenceInterval()),
		stats.WithTruncateOnWrite(cfg.TruncateSnapshotOnWrite),
	)
}

func printAdminToken(cfg config.StatsServiceConfiguration) {
	if cfg.AuthenticationToken != "" {
		return
	}
	token, err := api.IssueAdminToken(cfg.AuthenticationSecret, 24*time.Hour)
	if err != nil {
		logger.LogErrorEvent("Admin token error: %v", err)
		return
	}
	fmt.Printf("ADMIN TOKEN: %s\n", token)
}

func newRegistry(service *stats.Stats) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := metrics.RegisterCounterCollectors(reg, service.Store(), service.PersistenceMetrics()); err != nil {
		return nil, err
	}
	return reg, nil
}

// run serves the admin API until ctx is cancelled, then closes the stats
// service so the last increments reach disk.
func run(ctx context.Context, cfg config.StatsServiceConfiguration) error {
	service, err := openStats(cfg)
	if err != nil {
		return err
	}
	logger.LogInfoEvent("Stats loaded: rows_written=%d rows_read=%d", service.RowsWritten(), service.RowsRead())

	reg, err := newRegistry(service)
	if err != nil {
		service.Close()
		return err
	}

	printAdminToken(cfg)

	router := api.NewHttpApiRouter(service, cfg, reg)
	server := &fasthttp.Server{
		Handler: router.GetFastHTTPHandler(),
		Name:    "rowstats",
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.ServerPort))
	if err != nil {
		service.Close()
		return fmt.Errorf("failed to listen: %w", err)
	}
	logger.LogInfoEvent("Listening on %s", listener.Addr())

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.Serve(listener)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		err := server.Shutdown()
		// Serve may not have registered the listener yet.
		listener.Close()
		return err
	})

	serveErr := group.Wait()
	closeErr := service.Close()
	logger.LogInfoEvent("Stats closed: rows_written=%d rows_read=%d", service.RowsWritten(), service.RowsRead())

	if serveErr != nil {
		return serveErr
	}
	return closeErr
}
