/*
Package main is the entry point for the tcpchat server.

It is responsible for loading configuration, initializing the global logging system,
binding the TCP chat listener and the HTTP status API, and gracefully handling
operating system interrupt signals (SIGINT, SIGTERM) to ensure a smooth shutdown.
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tcpchat/internal/configs"
	"tcpchat/internal/handler"
	"tcpchat/internal/pkg/logx"
	"tcpchat/internal/registry"
	"tcpchat/internal/server"
)

func main() {
	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.Environment == "development")
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Int("status_port", cfg.StatusPort).
		Int("max_sessions", cfg.MaxSessions).
		Str("duplicate_policy", cfg.DuplicatePolicy).
		Msg("Configuration loaded successfully")

	policy, err := registry.ParsePolicy(cfg.DuplicatePolicy)
	if err != nil {
		logx.Fatal(err, "Invalid DUPLICATE_POLICY configuration")
	}

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize the shared registry and the chat server
	reg := registry.New(policy)

	chatServer := server.New(cfg, reg)
	if err := chatServer.Listen(); err != nil {
		logx.Fatal(err, "Chat server failed to bind")
	}

	serveErr := make(chan error, 1)
	go func() {
		logx.Info(fmt.Sprintf("Chat server listening on %s", chatServer.Addr()))
		serveErr <- chatServer.Serve(ctx)
	}()

	// Setup the read-only status API
	statusRouter := handler.Router(reg, cfg)
	statusAddr := fmt.Sprintf(":%d", cfg.StatusPort)
	statusServer := &http.Server{
		Addr:         statusAddr,
		Handler:      statusRouter,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("Status API listening on http://localhost%s", statusAddr))
		if err := statusServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Fatal(err, "Status API failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown with a timeout of 5 seconds.
	chatDone := false
	select {
	case <-ctx.Done():
		logx.Info("Received shutdown signal. Starting graceful shutdown...")
	case err := <-serveErr:
		chatDone = true
		if err != nil {
			logx.Fatal(err, "Chat server failed")
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := statusServer.Shutdown(shutdownCtx); err != nil {
		logx.Fatal(err, "Status API forced to shutdown")
	}

	// The chat server drains its sessions when the signal context is cancelled.
	if !chatDone {
		<-serveErr
	}

	logx.Info("Server gracefully stopped.")
}
