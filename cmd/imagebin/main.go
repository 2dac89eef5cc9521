package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"imagebin/internal/config"
	"imagebin/internal/imagebin"
	"imagebin/internal/store"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

func Run(ctx context.Context) error {

	cfg := config.Load()

	listenPort := flag.String("listen", cfg.Port, "HTTP listen port")
	dataDir := flag.String("data-dir", cfg.DataDir, "directory to store uploads and the metadata index")
	indexDriver := flag.String("index", cfg.IndexDriver, "metadata index backing: snapshot or sqlite")

	flag.Parse()

	handler := log.NewWithOptions(os.Stdout, log.Options{
		Level:           log.DebugLevel,
		TimeFormat:      time.RFC3339,
		ReportTimestamp: true,
		TimeFunction:    log.NowUTC,
		ReportCaller:    true,
	})

	slog.SetDefault(slog.New(handler))

	// Ensure data directory is absolute for easier debugging.
	absDataDir, err := filepath.Abs(*dataDir)
	if err != nil {
		return fmt.Errorf("failed to resolve data directory: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	serverCfg := imagebin.Config{
		DataDir:       absDataDir,
		AllowedOrigin: cfg.AllowedOrigin,
	}

	switch *indexDriver {
	case "", "snapshot":
		// NewServer wires up the default snapshot index.
	case "sqlite":
		dbPath := cfg.SQLitePath
		if dbPath == "" {
			dbPath = filepath.Join(absDataDir, "metadata.sqlite")
		}
		idx, err := store.NewSQLiteIndex(dbPath)
		if err != nil {
			return fmt.Errorf("failed to open sqlite index: %w", err)
		}
		serverCfg.Index = idx
	default:
		return fmt.Errorf("unknown index driver %q", *indexDriver)
	}

	server, err := imagebin.NewServer(serverCfg)
	if err != nil {
		return fmt.Errorf("failed to create imagebin server: %w", err)
	}

	defer server.Close()

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", *listenPort),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 20 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	eg.Go(func() error {
		slog.Info("Starting imagebin HTTP server", "port", *listenPort, "data_dir", absDataDir)
		err := httpServer.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	slog.Info("imagebin started")
	return eg.Wait()
}

func main() {
	if err := Run(context.Background()); err != nil {
		slog.Error("imagebin exited with error", "error", err)
	}
}
