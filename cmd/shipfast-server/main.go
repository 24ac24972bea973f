package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shipfast-demo/shipgate-go/server"
	"github.com/shipfast-demo/shipgate-go/shipgate"
)

func main() {
	configPath := flag.String("config", "", "path to the server yaml config")
	flag.Parse()

	logger := log.New(os.Stdout, "shipfast ", log.LstdFlags)

	cfg, err := server.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	sdk, err := shipgate.New(cfg.SDKConfig(logger))
	if err != nil {
		logger.Fatalf("configure authentication: %v", err)
	}

	users, err := server.NewUserVerifier(cfg.User, logger)
	if err != nil {
		logger.Fatalf("configure user verifier: %v", err)
	}

	handler, err := server.NewRouter(server.RouterConfig{
		SDK:       sdk,
		Users:     users,
		Shipments: server.NewShipmentStore(nil),
		Metrics:   server.NewMetrics(cfg.Metrics),
		Logger:    logger,
	})
	if err != nil {
		logger.Fatalf("configure router: %v", err)
	}

	srv := &http.Server{
		Addr:         cfg.Listen,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Printf("listening on %s (stage %s)", cfg.Listen, sdk.Stage())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("serve: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("shutdown: %v", err)
	}
}
