package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"MarketMirror/internal/app"
	"MarketMirror/internal/eventloop"
	"MarketMirror/internal/hub"
)

type runCmd struct {
	configFlag
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "run the dashboard engine and serve renderers over websocket" }
func (*runCmd) Usage() string {
	return `monitor run [-config <path>]

  Loads the watchlist tabs from the backend, keeps quotes and the selected
  chart in sync, and pushes every change to renderers connected on /ws.
`
}

func (r *runCmd) SetFlags(f *flag.FlagSet) { r.register(f) }

func (r *runCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, log, err := r.load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	offset, err := cfg.TZOffset(time.Now())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loop := eventloop.New(256)
	engine := app.New(ctx, loop, newClient(cfg, log), app.Options{
		TabID:    cfg.Dashboard.TabID,
		Period:   cfg.Dashboard.Period,
		Interval: cfg.Dashboard.Interval,
		TZOffset: offset,
		Cycle:    cfg.RefreshCycle(),
		Debounce: cfg.SearchDebounce(),
	}, log)

	h := hub.New(func(cmd app.Command) {
		loop.Post(func() { _ = engine.Execute(cmd) })
	}, log)
	engine.Subscribe(h)

	mux := http.NewServeMux()
	mux.Handle("/ws", h)
	mux.HandleFunc("/state", func(w http.ResponseWriter, _ *http.Request) {
		var snap app.State
		if !loop.Call(func() { snap = engine.Snapshot() }) {
			http.Error(w, "engine stopped", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snap)
	})
	srv := &http.Server{Addr: cfg.Hub.Listen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	log.WithFields(logrus.Fields{
		"backend":  cfg.Backend.BaseURL,
		"listen":   cfg.Hub.Listen,
		"tz_shift": offset,
	}).Info("monitor starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		loop.Run(gctx)
		return nil
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("hub server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		engine.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	loop.Post(engine.Init)
	if err := engine.Start(); err != nil {
		log.WithError(err).Error("start poller")
		stop()
	}

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("monitor stopped with error")
		return subcommands.ExitFailure
	}
	log.Info("monitor stopped")
	return subcommands.ExitSuccess
}
