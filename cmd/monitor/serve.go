package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"MarketMirror/internal/provider"
	"MarketMirror/internal/server"
	"MarketMirror/internal/store"
)

type serveCmd struct {
	configFlag
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "serve the reference dashboard backend API" }
func (*serveCmd) Usage() string {
	return `monitor serve [-config <path>]

  Serves /api/tabs, /api/watchlist, /api/quotes, /api/chart and /api/search
  backed by a SQLite watchlist database and Yahoo Finance market data.
`
}

func (s *serveCmd) SetFlags(f *flag.FlagSet) { s.register(f) }

func (s *serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, log, err := s.load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if dir := filepath.Dir(cfg.Server.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.WithError(err).Error("create database directory")
			return subcommands.ExitFailure
		}
	}
	st, err := store.OpenSQLite(ctx, cfg.Server.SQLitePath, log)
	if err != nil {
		log.WithError(err).Error("open store")
		return subcommands.ExitFailure
	}
	defer st.Close()

	gin.SetMode(gin.ReleaseMode)
	if log.IsLevelEnabled(logrus.DebugLevel) {
		gin.SetMode(gin.DebugMode)
	}
	handler := server.NewHandler(st, provider.NewYahoo(cfg.Proxy, cfg.Timeout(), log), log)
	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           server.NewRouter(&server.Config{Handler: handler, Log: log}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.WithField("listen", cfg.Server.Listen).Info("backend serving")

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("backend server failed")
			return subcommands.ExitFailure
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("backend shutdown")
		}
	}
	log.Info("backend stopped")
	return subcommands.ExitSuccess
}
