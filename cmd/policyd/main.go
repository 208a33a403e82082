// Package main provides the policy server entry point.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kikokikok/fps-genie/internal/config"
	"github.com/kikokikok/fps-genie/internal/logging"
	"github.com/kikokikok/fps-genie/internal/policy"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)

	model, err := policy.LoadModel(cfg.Policy.ModelPath)
	if err != nil {
		logger.WithError(err).WithField("path", cfg.Policy.ModelPath).Error("Failed to load policy model")
		os.Exit(1)
	}
	logger.WithField("path", cfg.Policy.ModelPath).Info("Policy model loaded")

	addr := net.JoinHostPort(cfg.Policy.Host, cfg.Policy.Port)
	server, err := policy.NewServer(addr, model, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to create policy server")
		os.Exit(1)
	}
	if err := server.Start(); err != nil {
		logger.WithError(err).Error("Failed to start policy server")
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown failed")
		os.Exit(1)
	}
}
