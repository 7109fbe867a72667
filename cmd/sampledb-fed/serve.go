package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/sampledb/sampledb/pkg/api"
	"github.com/sampledb/sampledb/pkg/tasks"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the background task workers",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

func init() {
	serveCmd.Flags().String("listen", "", "Address to listen on (overrides config)")
	if err := settings.BindPFlag("listen", serveCmd.Flags().Lookup("listen")); err != nil {
		panic(err)
	}
}

func runServe() {
	_ = flag.Set("logtostderr", "true")

	a, err := newApp()
	if err != nil {
		glog.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()
	logger := a.logger

	logger.Info("starting federation node",
		"listen", a.cfg.Listen,
		"federationUUID", a.cfg.FederationUUID,
		"database", a.cfg.Database.Type,
		"languages", a.cfg.Languages,
		"elnFileImport", a.cfg.EnableELNFileImport,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	taskStore := tasks.NewTaskStore(a.db)
	if err := a.migrate(taskStore.AutoMigrate); err != nil {
		glog.Fatalf("Failed to migrate task tables: %v", err)
	}
	svc := tasks.NewService(taskStore, a.cfg.TaskConfig(), logger)
	a.engine.RegisterTasks(svc)
	if err := svc.Start(ctx); err != nil {
		glog.Fatalf("Failed to start task service: %v", err)
	}

	httpServer := &http.Server{
		Addr:    a.cfg.Listen,
		Handler: api.NewServer(a.engine, svc, logger).Router(),
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			glog.Fatalf("HTTP server error: %v", err)
		}
	}()

	logger.Info("federation node ready", "listen", a.cfg.Listen)

	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	svc.Stop()

	logger.Info("federation node stopped")
}
