// Command fableforge runs the world-building backend: the in-memory run
// engine, its HTTP/SSE API and the world-architect workflow.
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

	"goa.design/clue/log"

	"github.com/fableforge/fableforge/api"
	"github.com/fableforge/fableforge/config"
	"github.com/fableforge/fableforge/features/model/openrouter"
	"github.com/fableforge/fableforge/runtime/architect"
	"github.com/fableforge/fableforge/runtime/run"
)

func main() {
	var (
		configF = flag.String("config", "", "Path to YAML configuration file")
		dbgF    = flag.Bool("debug", false, "Enable debug logs")
	)
	flag.Parse()

	// Setup logger.
	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
		log.Debugf(ctx, "debug logs enabled")
	}

	cfg, err := config.Load(*configF)
	if err != nil {
		log.Fatal(ctx, err)
	}

	gen, err := openrouter.New(openrouter.Options{
		BaseURL:           cfg.Generation.BaseURL,
		APIKey:            cfg.Generation.APIKey,
		Model:             cfg.Generation.Model,
		Temperature:       cfg.Generation.Temperature,
		Timeout:           cfg.Generation.Timeout.Std(),
		RequestsPerSecond: cfg.Generation.RequestsPerSecond,
	})
	if err != nil {
		log.Fatal(ctx, err)
	}

	reg := run.NewRegistry(ctx)
	arch := architect.New(reg, gen)

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	go reg.Janitor(janitorCtx, cfg.Runs.SweepInterval.Std(), cfg.Runs.Retention.Std())

	srv := api.NewServer(ctx, cfg.HTTP.Addr, reg, arch, cfg.Runs.Keepalive.Std())

	errc := make(chan error, 1)
	go func() {
		log.Print(ctx, log.KV{K: "msg", V: "HTTP server listening"}, log.KV{K: "addr", V: cfg.HTTP.Addr})
		errc <- srv.Start()
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, err)
		}
	case sig := <-sigc:
		log.Print(ctx, log.KV{K: "msg", V: "shutting down"}, log.KV{K: "signal", V: sig.String()})
	}

	stopJanitor()
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, err)
	}
	log.Print(ctx, log.KV{K: "msg", V: "exited"})
}
