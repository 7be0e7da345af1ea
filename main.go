package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"jobscout/api"
	"jobscout/config"
	"jobscout/httputil"
	"jobscout/logging"
	"jobscout/metrics"
	"jobscout/models"
	"jobscout/scheduler"
	"jobscout/scraper"
	"jobscout/services"
	"jobscout/storage"
)

var (
	monitorNow = flag.Bool("monitor", false, "Run one monitoring pass and exit")
	migrate    = flag.Bool("migrate", false, "Apply the database schema and exit")
	cmdName    = flag.String("cmd", "", "Enqueue an operator command for the running daemon and exit (monitor_now, scrape_site, pause, resume)")
	cmdSite    = flag.String("site", "", "Site id for -cmd scrape_site")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.LogFile, cfg.LogLevel)

	if *cmdName != "" {
		if err := enqueueOperatorCommand(cfg.OpsDBPath, *cmdName, *cmdSite); err != nil {
			slog.Error("failed to enqueue command", "error", err)
			os.Exit(1)
		}
		return
	}

	slog.Info("starting jobscout", "sites", len(cfg.Sites))
	for id, site := range cfg.Sites {
		slog.Info("site profile loaded", "id", id, "name", site.Name)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pgStore, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()
	slog.Info("connected to postgres", "url", maskConnectionString(cfg.DatabaseURL))

	if *migrate {
		if err := pgStore.Migrate(ctx); err != nil {
			slog.Error("migration failed", "error", err)
			os.Exit(1)
		}
		slog.Info("schema applied")
		return
	}

	blobs, err := storage.NewBlobStore(ctx, storage.BlobConfig{
		Bucket:          cfg.Blob.Bucket,
		Region:          cfg.Blob.Region,
		Endpoint:        cfg.Blob.Endpoint,
		AccessKeyID:     cfg.Blob.AccessKeyID,
		SecretAccessKey: cfg.Blob.SecretAccessKey,
	})
	if err != nil {
		slog.Error("failed to initialize blob storage", "error", err)
		os.Exit(1)
	}

	ops, err := storage.NewOpsStore(cfg.OpsDBPath)
	if err != nil {
		slog.Error("failed to open ops database", "error", err)
		os.Exit(1)
	}
	defer ops.Close()
	slog.Info("ops database open", "path", cfg.OpsDBPath)

	clients := httputil.NewClients()

	browserTier := scraper.NewBrowserTier(clients, cfg.Monitor.FetchTimeout)
	defer browserTier.Close()
	searchTier := scraper.NewSearchTier(scraper.SearchConfig{
		BaseURL: cfg.Search.BaseURL,
		AppID:   cfg.Search.AppID,
		AppKey:  cfg.Search.AppKey,
		Country: cfg.Search.Country,
	}, clients.API)
	externalTier := scraper.NewExternalTier(pgStore)
	resolver := scraper.NewOrchestrator(browserTier, searchTier, externalTier)

	snapshotService := services.NewSnapshotService(pgStore, blobs)
	changeService := services.NewChangeService(cfg.Monitor.FailureThreshold)
	monitorService := services.NewMonitorService(
		pgStore, resolver, snapshotService, changeService, cfg.Monitor, cfg.Sites)
	ingestService := services.NewIngestService(pgStore, cfg.Monitor.DefaultCadence)

	if *monitorNow {
		slog.Info("running single monitoring pass")
		if _, err := monitorService.RunPass(ctx); err != nil {
			slog.Error("monitoring pass failed", "error", err)
			os.Exit(1)
		}
		return
	}

	sched := scheduler.New(cfg, monitorService, ops)
	if err := sched.Start(ctx); err != nil {
		slog.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	server := api.NewServer(pgStore, pgStore, pgStore, ingestService, cfg.Server.APIToken, cfg.Queue)
	go func() {
		if err := server.ListenAndServe(ctx, cfg.Server.Addr); err != nil {
			slog.Error("api server stopped", "error", err)
			cancel()
		}
	}()

	go metrics.Expose(cfg.Server.MetricsAddr)

	slog.Info("daemon running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	cancel()
	sched.Stop()
}

// enqueueOperatorCommand writes one command into the local ops database for
// the running daemon's poll loop to pick up.
func enqueueOperatorCommand(dbPath, name, site string) error {
	cmd := models.CommandType(name)
	switch cmd {
	case models.CmdMonitorNow, models.CmdPause, models.CmdResume:
	case models.CmdScrapeSite:
		if site == "" {
			return fmt.Errorf("scrape_site requires -site")
		}
	default:
		return fmt.Errorf("unknown command %q", name)
	}

	ops, err := storage.NewOpsStore(dbPath)
	if err != nil {
		return err
	}
	defer ops.Close()

	var params *models.CommandParams
	if site != "" {
		params = &models.CommandParams{Site: site}
	}
	if err := ops.EnqueueCommand(cmd, params); err != nil {
		return err
	}
	slog.Info("command enqueued", "command", name, "site", site)
	return nil
}

// maskConnectionString masks the password in a connection string for logging
func maskConnectionString(connStr string) string {
	start := 0
	for i := 0; i < len(connStr)-3; i++ {
		if connStr[i:i+3] == "://" {
			start = i + 3
			break
		}
	}
	if start == 0 {
		return connStr
	}

	colonIdx := -1
	atIdx := -1
	for i := start; i < len(connStr); i++ {
		if connStr[i] == ':' && colonIdx == -1 {
			colonIdx = i
		}
		if connStr[i] == '@' {
			atIdx = i
			break
		}
	}

	if colonIdx > 0 && atIdx > colonIdx {
		return connStr[:colonIdx+1] + "****" + connStr[atIdx:]
	}
	return connStr
}
