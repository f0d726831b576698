package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mutuals/internal/capture"
	"mutuals/internal/platform/config"
	"mutuals/internal/platform/httpclient"
	"mutuals/internal/platform/logger"
	"mutuals/internal/platform/metrics"
	"mutuals/internal/poller/anomaly"
	pollermetrics "mutuals/internal/poller/metrics"
	"mutuals/internal/poller/names"
	"mutuals/internal/poller/service"
	"mutuals/internal/profile"
	"mutuals/internal/report"
	dErrors "mutuals/pkg/domain-errors"
	"mutuals/pkg/runcontext"
)

// runPoll wires the run: config, capture, client, engine, report. Input
// errors stop the run before any request is made.
func runPoll(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		logger.New(os.Stderr, "info", "text").Error("invalid configuration", "error", err)
		return err
	}

	log := logger.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(runcontext.WithRunID(cmd.Context(), uuid.NewString()), os.Interrupt, syscall.SIGTERM)
	defer stop()

	captured, err := capture.New().LoadFile(cfg.HARPath)
	if err != nil {
		log.ErrorContext(ctx, "failed to read capture",
			"path", cfg.HARPath,
			"code", dErrors.CodeOf(err),
			"error", err,
		)
		return err
	}
	log.InfoContext(ctx, "capture parsed",
		"entries", captured.Entries,
		"identifiers", len(captured.Identifiers),
		"credential_fp", captured.CredentialFingerprint(),
	)

	httpClient, err := httpclient.New(cfg.RequestTimeout)
	if err != nil {
		log.Error("failed to build http client", "error", err)
		return err
	}
	client, err := profile.New(cfg.APIBaseURL, captured.Credential,
		profile.WithHTTPClient(httpClient),
		profile.WithUserAgent(cfg.UserAgent),
		profile.WithReferer(cfg.Referer),
		profile.WithTransportRetries(cfg.TransportRetries, cfg.TransportRetryDelay),
		profile.WithLogger(log),
	)
	if err != nil {
		log.Error("failed to build profile client", "error", err)
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	engine, err := service.New(client,
		service.WithLogger(log),
		service.WithMetrics(pollermetrics.New(reg)),
		service.WithAnomalyRecorder(anomaly.NewInMemoryStore()),
		service.WithAttemptDelay(cfg.AttemptDelay),
		service.WithFetchGroups(cfg.FetchGroups),
		service.WithFetchConnections(cfg.FetchConnections),
		service.WithProgressEvery(cfg.ProgressEvery),
	)
	if err != nil {
		log.Error("failed to build polling engine", "error", err)
		return err
	}

	result, runErr := run(ctx, log, cfg, engine, reg, captured)
	if result == nil {
		return runErr
	}

	rep := report.Build(result.Records, result.Names, report.Options{
		FetchGroups:      cfg.FetchGroups,
		FetchConnections: cfg.FetchConnections,
		Stats:            result.Stats,
	})
	if err := report.WriteFile(cfg.OutputPath, rep); err != nil {
		log.Error("failed to write report", "path", cfg.OutputPath, "error", err)
		return err
	}
	report.NewConsole(os.Stdout, cfg.ConsoleMinGroups, cfg.ConsoleMinConnections).Print(rep, cfg.OutputPath)

	return runErr
}

// run polls every identifier and, when configured, serves metrics until the
// engine returns.
func run(ctx context.Context, log *slog.Logger, cfg *config.Config, engine *service.Service, reg *prometheus.Registry, captured *capture.Result) (*service.RunResult, error) {
	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServing := context.WithCancel(gctx)
	defer stopServing()

	if cfg.MetricsAddr != "" {
		srv := metrics.NewServer(cfg.MetricsAddr, reg)
		g.Go(func() error {
			log.InfoContext(ctx, "serving metrics", "addr", cfg.MetricsAddr)
			if err := srv.Run(serveCtx); err != nil {
				log.WarnContext(ctx, "metrics server stopped", "error", err)
			}
			return nil
		})
	}

	var result *service.RunResult
	g.Go(func() error {
		defer stopServing()
		var err error
		result, err = engine.Run(gctx, captured.Identifiers, names.New())
		return err
	})

	err := g.Wait()
	if dErrors.HasCode(err, dErrors.CodeCancelled) {
		log.WarnContext(ctx, "run cancelled, writing partial report")
	}
	return result, err
}

// loadConfig layers command-line flags over the file and environment config.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("har") {
		cfg.HARPath = harPath
	}
	if flags.Changed("out") {
		cfg.OutputPath = outputPath
	}
	if noGroups {
		cfg.FetchGroups = false
	}
	if noConnections {
		cfg.FetchConnections = false
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = metricsAddr
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
