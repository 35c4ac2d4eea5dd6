package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Nzyazin/paychain/internal/core/logger"
	"github.com/Nzyazin/paychain/internal/server"
	"github.com/Nzyazin/paychain/pkg/config"
	"github.com/Nzyazin/paychain/pkg/postgresdb"
)

func main() {
	configPath := flag.String("config", "config.env", "path to the env file")
	migrate := flag.Bool("migrate", true, "create missing tables on startup (postgres backend)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, cleanup, err := logger.NewLogger(cfg.LogDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	if *migrate && cfg.StorageBackend == config.StoragePostgres {
		if err := runMigrations(cfg, log); err != nil {
			log.Error("Failed to migrate database", logger.ErrorField("error", err))
			return
		}
	}

	srv, err := server.NewServer(cfg, log)
	if err != nil {
		log.Error("Failed to create server", logger.ErrorField("error", err))
		return
	}

	go func() {
		log.Info("Starting server",
			logger.StringField("addr", cfg.HTTPAddr),
			logger.StringField("storage", cfg.StorageBackend))
		var err error
		if cfg.TLSEnabled() {
			err = srv.RunTLS(cfg.HTTPAddr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = srv.Run(cfg.HTTPAddr)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed", logger.ErrorField("error", err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server shutdown failed", logger.ErrorField("error", err))
	}

	log.Info("Server exited properly")
}

func runMigrations(cfg *config.Config, log logger.Logger) error {
	db, err := postgresdb.NewPostgresDB(cfg.DB, log)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	return postgresdb.Migrate(ctx, db.DB)
}
