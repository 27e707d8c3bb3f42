package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/blockedby/telescout/internal/config"
	"github.com/blockedby/telescout/internal/logger"
	"github.com/blockedby/telescout/internal/nats"
	"github.com/blockedby/telescout/internal/publisher"
	"github.com/blockedby/telescout/internal/scout"
	"github.com/blockedby/telescout/internal/telegram"
	"github.com/blockedby/telescout/internal/web"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	logLevel := flag.String("log-level", "INFO", "logging level: DEBUG, INFO, WARNING or ERROR")
	noLogFile := flag.Bool("no-log-file", false, "disable logging to file")
	scanOnly := flag.Bool("scan-only", false, "only scan historical messages, skip real-time monitoring")
	noHistorical := flag.Bool("no-historical", false, "skip historical scan, only do real-time monitoring")
	gui := flag.Bool("gui", false, "serve the admin web UI alongside monitoring")
	flag.Parse()

	logDir := "logs"
	if *noLogFile {
		logDir = ""
	}
	if err := logger.Init(zerologLevel(*logLevel), logDir); err != nil {
		fmt.Fprintln(os.Stderr, "failed to init logger:", err)
		os.Exit(1)
	}
	log := logger.Get()

	for _, warning := range config.CheckFilePermissions(*configPath, ".env") {
		log.Warn().Msg(warning)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error().Err(err).Msg("configuration error")
		os.Exit(1)
	}

	log.Info().
		Int("channels", len(cfg.Channels)).
		Int("keywords", len(cfg.Keywords)).
		Msg("starting telescout")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("received shutdown signal")
		cancel()
	}()

	var pub scout.EventPublisher
	if cfg.NatsURL != "" {
		nc, err := nats.New(cfg.NatsURL)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to nats, publishing disabled")
		} else {
			defer nc.Close()
			pub = publisher.NewNATSPublisher(nc.Conn)
		}
	}

	tgClient := telegram.NewClient(cfg)
	if err := tgClient.Start(ctx); err != nil {
		log.Error().Err(err).Msg("telegram authentication failed")
		os.Exit(1)
	}
	defer tgClient.Stop()

	svc, err := scout.NewService(cfg, tgClient, pub)
	if err != nil {
		log.Error().Err(err).Msg("failed to build pipeline")
		os.Exit(1)
	}

	if err := svc.Resolve(ctx); err != nil {
		log.Error().Err(err).Msg("source resolution failed")
		os.Exit(1)
	}

	if *gui {
		server := web.NewServer(cfg.HTTPPort, svc)
		go func() {
			log.Info().Int("port", cfg.HTTPPort).Msg("admin UI listening")
			if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("admin server error")
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			_ = server.Stop(shutdownCtx)
		}()
	}

	if !*noHistorical {
		if err := svc.ScanHistorical(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("historical scan failed")
		}
	}

	if *scanOnly {
		log.Info().Msg("scan-only mode: historical scan complete, exiting")
		return
	}

	if err := svc.Monitor(ctx); err != nil {
		log.Error().Err(err).Msg("monitoring stopped with error")
		os.Exit(1)
	}

	log.Info().Msg("shutdown complete")
}

// zerologLevel maps the CLI level names onto zerolog's.
func zerologLevel(level string) string {
	l := strings.ToLower(level)
	if l == "warning" {
		return "warn"
	}
	return l
}
