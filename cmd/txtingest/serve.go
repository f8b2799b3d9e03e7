package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/txtingest/internal/pipeline"
	"github.com/JonMunkholm/txtingest/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pipeline on a schedule and serve its status over HTTP",
	RunE:  runServe,
}

var serveRunOnStart bool

func init() {
	serveCmd.Flags().BoolVar(&serveRunOnStart, "run-on-start", false, "Start a run immediately instead of waiting for the schedule")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(true)
	if err != nil {
		return err
	}
	p, err := a.pipeline()
	if err != nil {
		return err
	}
	logger := a.logger
	daemon := a.cfg.Daemon

	sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Runs outlive the signal so an in-flight one gets the shutdown grace period.
	runCtx, cancelRuns := context.WithCancel(context.Background())
	defer cancelRuns()

	runner := pipeline.NewRunner(p)

	schedCfg := pipeline.SchedulerConfig{Cron: daemon.Schedule}
	if daemon.WatchRawDir {
		schedCfg.WatchDir = p.Options.RawDir
	}
	sched, err := pipeline.NewScheduler(runner, schedCfg, logger)
	if err != nil {
		return err
	}
	if err := sched.Start(runCtx); err != nil {
		return err
	}

	server := web.NewServer(web.Options{
		Runs:       runner,
		Layouts:    a.layouts,
		NextRun:    sched.Next,
		APIKeys:    daemon.APIKeys,
		RunContext: runCtx,
		Logger:     logger,
	})

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start(daemon.StatusAddr())
	}()

	if serveRunOnStart {
		if err := runner.Start(runCtx, "startup"); err != nil {
			logger.Warn("startup run not started", "error", err)
		}
	}

	select {
	case <-sigCtx.Done():
		logger.Info("shutting down...")
	case err := <-serveErr:
		sched.Stop()
		cancelRuns()
		_ = runner.Wait(context.Background())
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("status server: %w", err)
	}

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), daemon.ShutdownTimeout)
	defer cancel()

	if running, trigger := runner.Running(); running {
		logger.Info("waiting for run to complete", "trigger", trigger)
		if err := runner.Wait(shutdownCtx); err != nil {
			logger.Warn("run did not complete in time, cancelling", "error", err)
			cancelRuns()
			_ = runner.Wait(context.Background())
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("stopped")
	return nil
}
