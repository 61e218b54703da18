package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/junglemonkey/wumpus-archiver/internal/config"
	"github.com/junglemonkey/wumpus-archiver/internal/discord"
	"github.com/junglemonkey/wumpus-archiver/internal/httpapi"
	"github.com/junglemonkey/wumpus-archiver/internal/jobs"
	"github.com/junglemonkey/wumpus-archiver/internal/metrics"
	"github.com/junglemonkey/wumpus-archiver/internal/scraper"
	"github.com/junglemonkey/wumpus-archiver/internal/store"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "./wumpus.toml", "Path to config file")
	version := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *version {
		fmt.Printf("wumpus-archiver %s\n", Version)
		os.Exit(0)
	}

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	log.SetLevel(config.ParseLogLevel(cfg))
	entry := log.WithField("component", "main")

	if err := os.MkdirAll(cfg.AttachmentsPath, 0o755); err != nil {
		entry.WithError(err).Fatal("failed to create attachments directory")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := store.NewRegistry()

	primary, err := store.Open(cfg.PrimaryStoreURL)
	if err != nil {
		entry.WithError(err).Fatal("failed to build primary store")
	}
	registry.Register("primary", primary)

	if cfg.HasSecondarySource() {
		secondary, err := store.Open(cfg.SecondaryStoreURL)
		if err != nil {
			entry.WithError(err).Fatal("failed to build secondary store")
		}
		registry.Register("secondary", secondary)
	}

	if err := registry.ConnectAll(ctx); err != nil {
		entry.WithError(err).Fatal("failed to connect registered stores")
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := registry.DisconnectAll(shutdownCtx); err != nil {
			entry.WithError(err).Warn("error disconnecting stores")
		}
	}()

	if err := registry.SetActive("primary"); err != nil {
		entry.WithError(err).Fatal("failed to activate primary store")
	}

	sc := scraper.New(scraper.Config{
		PageSize:     cfg.ScrapeBatchSize,
		RequestDelay: time.Duration(cfg.RequestDelayMillis) * time.Millisecond,
	}, entry.WithField("component", "scraper"))

	newClient := func() discord.Client { return discord.NewHTTPClient(entry.WithField("component", "discord")) }

	scrapeMgr := jobs.NewScrapeManager(registry, sc, newClient, cfg.DiscordToken, entry.WithField("component", "scrape_manager"))
	downloadMgr := jobs.NewDownloadManager(registry, jobs.DefaultDownloadConfig(cfg.AttachmentsPath), entry.WithField("component", "download_manager"))
	transferMgr := jobs.NewTransferManager(registry, entry.WithField("component", "transfer_manager"))

	mtr := metrics.New()
	scrapeMgr.SetMetrics(mtr)
	downloadMgr.SetMetrics(mtr)
	transferMgr.SetMetrics(mtr)

	if cfg.AutoDownload {
		scrapeMgr.SetOnCompleted(func(jobs.ScrapeJob) {
			if _, err := downloadMgr.Start(); err != nil {
				entry.WithError(err).Warn("auto-download trigger failed")
			}
		})
	}

	server := httpapi.New(registry, scrapeMgr, downloadMgr, transferMgr, cfg.DiscordToken, entry.WithField("component", "httpapi"))
	server.SetMetrics(mtr)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.BindPort),
		Handler: server.Router(),
	}

	go func() {
		entry.WithField("addr", httpSrv.Addr).Info("starting control-plane HTTP server")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			entry.WithError(err).Fatal("http server error")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	entry.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		entry.WithError(err).Warn("error during http shutdown")
	}
	entry.Info("stopped")
}
