package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/will-hinson/datapond/internal/config"
	"github.com/will-hinson/datapond/internal/datapond"
)

func newRootCommand() *cobra.Command {
	var (
		flagConfig        string
		flagListen        string
		flagRootDir       string
		flagLogLevel      string
		flagFailureChance float64
	)

	c := &cobra.Command{
		Use:   "datapond",
		Short: "Local emulator for Azure Data Lake Storage Gen2",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flagConfig)
			if err != nil {
				return err
			}

			// Flags win over config file and environment.
			if flagListen != "" {
				cfg.Server.Listen = flagListen
			}
			if flagRootDir != "" {
				cfg.Storage.RootDir = flagRootDir
			}
			if flagLogLevel != "" {
				cfg.Logging.Level = flagLogLevel
			}
			if cmd.Flags().Changed("failure-chance") {
				cfg.Storage.FailureChance = flagFailureChance
			}

			config.ApplyDefaults(cfg)
			if err := config.Validate(cfg); err != nil {
				return err
			}

			return run(cmd.Context(), cfg)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	c.Flags().StringVarP(&flagConfig, "config", "c", "", "path to config file (./datapond.yaml is picked up automatically)")
	c.Flags().StringVar(&flagListen, "listen", "", "HTTP listen address")
	c.Flags().StringVar(&flagRootDir, "root-dir", "", "directory to emulate filesystems under")
	c.Flags().StringVar(&flagLogLevel, "log-level", "", "minimum log level (DEBUG, INFO, WARN, ERROR)")
	c.Flags().Float64Var(&flagFailureChance, "failure-chance", 0, "probability in [0, 1] of rejecting a request with ServerBusy")

	return c
}

func run(ctx context.Context, cfg *config.Config) error {

	handler := log.NewWithOptions(os.Stdout, log.Options{
		Level:           parseLogLevel(cfg.Logging.Level),
		TimeFormat:      time.RFC3339,
		ReportTimestamp: true,
		TimeFunction:    log.NowUTC,
		ReportCaller:    true,
	})

	slog.SetDefault(slog.New(handler))

	// Ensure the storage root is absolute for easier debugging.
	absRootDir, err := filepath.Abs(cfg.Storage.RootDir)
	if err != nil {
		return fmt.Errorf("failed to resolve storage root: %w", err)
	}

	server, err := datapond.NewServer(datapond.Config{
		RootDir:       absRootDir,
		FailureChance: cfg.Storage.FailureChance,
	})
	if err != nil {
		return fmt.Errorf("failed to create datapond server: %w", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 20 * time.Second,
		ReadTimeout:       20 * time.Second,
		WriteTimeout:      20 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		return httpServer.Shutdown(shutdownCtx)
	})

	eg.Go(func() error {
		slog.Info("Starting Datapond HTTP server", "addr", cfg.Server.Listen, "root", absRootDir)
		err := httpServer.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	slog.Info("Datapond started")
	return eg.Wait()
}

func parseLogLevel(level string) log.Level {
	parsed, err := log.ParseLevel(level)
	if err != nil {
		return log.InfoLevel
	}

	return parsed
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		slog.Error("Datapond exited with error", "error", err)
		os.Exit(1)
	}
}
