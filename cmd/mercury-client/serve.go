package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"mercury-client/internal/api"
	"mercury-client/internal/localcache"
	"mercury-client/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var errAPIDisabled = errors.New("api is disabled: set api.enabled or MERCURY_API_ENABLED=true")

var (
	serveReplay []string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the inspection API",
		Long: `Starts the HTTP API over a fresh cache. Events are pushed with
POST /api/v1/events; feeds are opened with PUT /api/v1/feeds/{name}.
Configuration comes from the config file and MERCURY_* environment variables.`,
		RunE: runServe,
	}
)

func init() {
	serveCmd.Flags().StringSliceVar(&serveReplay, "replay", nil, "JSON lines files to ingest before serving")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, closeLogs, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLogs()

	if !cfg.API.Enabled {
		return errAPIDisabled
	}

	lc, err := localcache.New(cfg.Cache, cfg.Outbox)
	if err != nil {
		return err
	}

	for _, path := range serveReplay {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		var report ReplayReport
		err = replay(lc, f, &report)
		f.Close()
		if err != nil {
			return fmt.Errorf("failed to replay %s: %w", path, err)
		}
		logrus.Infof("[serve] replayed %s: %d read, %d stored, %d rejected", path, report.Read, report.Stored, report.Rejected)
	}

	feeds := localcache.NewFeeds(lc, cfg.Feed.Window)
	defer feeds.CloseAll()

	var gatherer prometheus.Gatherer
	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		if err := metrics.Register(registry); err != nil {
			return err
		}
		gatherer = registry
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := api.NewRESTAPIServer(cfg, lc, feeds, gatherer)
	return server.Start(ctx)
}
