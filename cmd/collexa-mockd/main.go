package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8788", "listen address")
	token := flag.String("token", "", "require this token on every request (empty disables auth)")
	interval := flag.Duration("interval", time.Second, "runner tick interval")
	debug := flag.Bool("debug", false, "verbose logging")
	flag.Parse()

	logger, err := buildLogger(*debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := NewStore()
	store.Seed(time.Now())

	feed := NewFeed(store, logger)
	hub := newStreamHub()
	runner := NewRunner(store, feed, hub, *interval, logger)
	runner.Start(ctx)

	server := NewServer(store, feed, hub, *token, logger)
	srv := &http.Server{
		Addr:        *addr,
		Handler:     server.Routes(),
		ReadTimeout: 30 * time.Second,
		// No write timeout: streams and the feed stay open for as
		// long as their clients do. Request contexts hang off ctx so
		// a shutdown unwinds them.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
	}()

	logger.Info("mock platform listening",
		zap.String("addr", *addr),
		zap.Bool("auth", *token != ""))
	logger.Info("point the console at it", zap.String("env", "COLLEXA_API_URL=http://"+*addr))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}

func buildLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if !debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}
