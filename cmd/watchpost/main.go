// Command watchpost serves the incident analysis API and runs one-off
// analyses and migrations.
//
//	watchpost [-config file] [serve]
//	watchpost [-config file] analyze <video>
//	watchpost [-config file] migrate up|down|status
//	watchpost version
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/banshee-data/watchpost/internal/config"
	"github.com/banshee-data/watchpost/internal/db"
	"github.com/banshee-data/watchpost/internal/monitoring"
	"github.com/banshee-data/watchpost/internal/version"
)

var (
	configPath = flag.String("config", config.DefaultConfigPath, "Path to the JSON settings file")
	listen     = flag.String("listen", "", "Listen address (overrides the config file)")
)

var errUsage = errors.New("usage: watchpost [-config file] [serve | analyze <video> | migrate <action> | version]")

func main() {
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flag.Args(), os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}
	if cmd == "version" {
		fmt.Fprintln(out, version.Get())
		return nil
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *listen != "" {
		cfg.Listen = listen
	}

	logger, err := monitoring.NewLogger(cfg.GetLogLevel(), cfg.GetLogFormat(), "watchpost")
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()
	monitoring.UseZap(logger)

	switch cmd {
	case "serve":
		return serve(ctx, cfg)
	case "analyze":
		if len(args) != 1 {
			return errUsage
		}
		return analyze(ctx, cfg, args[0], out)
	case "migrate":
		return db.RunMigrateCommand(out, args, cfg.GetDBPath())
	default:
		return errUsage
	}
}

func analyze(ctx context.Context, cfg *config.Config, path string, out io.Writer) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	rep, err := a.service.AnalyzeFile(ctx, path, filepath.Base(path))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

func serve(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	h, err := a.handler()
	if err != nil {
		return err
	}
	server := &http.Server{
		Addr:              cfg.GetListen(),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		monitoring.Logf("%s listening on %s", version.Get(), server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	monitoring.Logf("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			monitoring.Logf("HTTP server force close error: %v", err)
		}
	}
	monitoring.Logf("Graceful shutdown complete")
	return nil
}
