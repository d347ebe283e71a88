package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Nixie-Tech-LLC/signage/internal/db"
	"github.com/Nixie-Tech-LLC/signage/internal/logging"
	"github.com/Nixie-Tech-LLC/signage/internal/metrics"
	"github.com/Nixie-Tech-LLC/signage/internal/schedule"
	"github.com/Nixie-Tech-LLC/signage/internal/scheduler"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:           "signaged",
	Short:         "Signage schedule engine",
	Long:          "signaged stores playlist schedules, serves the control API and switches the player when schedule windows open and close.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the activation loop",
	RunE:  runServe,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one activation tick and exit (for cron)",
	RunE:  runCheck,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ./signage.yaml or /etc/signage/signage.yaml)")
	rootCmd.AddCommand(serveCmd, checkCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := LoadEnvironment(configFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	runner := scheduler.NewRunner(eng.activator, cfg.TickInterval, cfg.Location())
	if err := runner.Start(ctx); err != nil {
		return err
	}
	defer runner.Stop()

	if cfg.WatchSchedules {
		watcher, err := db.WatchDocument(ctx, cfg.SchedulesFile, runner.Trigger)
		if err != nil {
			// edits through the API still trigger ticks
			log.Warn().Err(err).Str("path", cfg.SchedulesFile).Msg("schedule watcher unavailable")
		} else {
			defer watcher.Close()
		}
	}

	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), logging.RequestLogger(), metrics.Middleware())
	RegisterRoutes(r, cfg, eng, runner.Trigger)

	httpServer := &http.Server{
		Addr:              cfg.ServerAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ServerAddress).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	}

	log.Info().Msg("shutting down gracefully...")
	timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	return nil
}

// runCheck is the cron entry point: one tick, report on stdout.
func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := LoadEnvironment(configFile)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.TickInterval+cfg.PlayerTimeout*4)
	defer cancel()

	eng, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	report, err := eng.activator.Tick(ctx)
	if errors.Is(err, schedule.ErrTickInProgress) {
		log.Info().Msg("another check is running, nothing to do")
		return nil
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
