package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/mrzeku2000XTTT/FluxKmail/internal/credential"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/entity"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/inbound"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/logging"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/model"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", model.DefaultConfigPath(), "path to config.yaml")
	imports := flag.Bool("imports", true, "poll configured IMAP sources")
	flag.Parse()

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}

	// A server logs to stdout unless a file is configured explicitly.
	if os.Getenv("KMAIL_LOG_FILE") == "" {
		cfg.Log.File = ""
	}
	logFile, err := logging.Setup(cfg.Log, os.Stdout)
	if err != nil {
		logrus.WithError(err).Fatal("setup logging")
	}
	defer logFile.Close()

	var creds credential.Store
	if kr, err := credential.Open(model.ConfigDir()); err != nil {
		logrus.WithError(err).Warn("keyring unavailable; secrets come from the environment only")
	} else {
		creds = kr
	}

	store, closer, err := entity.Open(cfg.Backend, credential.Lookup(creds, "KMAIL_BACKEND_API_KEY", credential.KeyBackendAPI))
	if err != nil {
		logrus.WithError(err).Fatal("open store")
	}
	defer closer.Close()

	apiKey := credential.Lookup(creds, "KMAIL_INBOUND_API_KEY", credential.KeyInboundAPI)
	if apiKey == "" {
		logrus.Warn("KMAIL_INBOUND_API_KEY not set; every request will be rejected")
	}

	srv := &http.Server{
		Addr:              cfg.Inbound.ListenAddr,
		Handler:           inbound.NewReceiver(store, apiKey),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	importsDone := make(chan struct{})
	go func() {
		defer close(importsDone)
		if !*imports {
			return
		}
		inbound.RunAll(ctx, schedules(cfg, store, creds))
	}()

	go func() {
		logrus.WithField("addr", srv.Addr).Info("inbound receiver listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Error("http server stopped")
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("shutdown http")
	}
	select {
	case <-importsDone:
	case <-shutdownCtx.Done():
		logrus.Warn("imports still running at shutdown")
	}
}

func schedules(cfg *model.AppConfig, store entity.Store, creds credential.Store) []inbound.Schedule {
	intervals := make(map[string]time.Duration, len(cfg.Inbound.Sources))
	for _, src := range cfg.Inbound.Sources {
		intervals[src.ID] = time.Duration(src.PollIntervalSec) * time.Second
	}

	var out []inbound.Schedule
	for _, imp := range inbound.Importers(cfg.Inbound.Sources, store, creds) {
		out = append(out, inbound.Schedule{Importer: imp, Interval: intervals[imp.ID()]})
	}
	return out
}
