// Package main provides the entry point for the PocketSaver persistence gateway.
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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/yeoleshweta/PocketSaver/pkg/config"
	"github.com/yeoleshweta/PocketSaver/pkg/gateway"
	"github.com/yeoleshweta/PocketSaver/pkg/logging"
	"github.com/yeoleshweta/PocketSaver/pkg/statement"
	"github.com/yeoleshweta/PocketSaver/server/handlers"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	seed := flag.Bool("seed", false, "seed the demo account before serving")
	flag.Parse()

	if err := run(*configPath, *seed); err != nil {
		fmt.Fprintf(os.Stderr, "gateway: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, seed bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw, err := gateway.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to start %s adapter: %w", cfg.Adapter, err)
	}
	defer func() {
		if err := gw.Close(); err != nil {
			log.WithError(err).Warn("Failed to close adapter")
		}
	}()

	if seed {
		userID, err := gateway.SeedDemo(ctx, gw, gateway.DemoEmail, gateway.DemoPassword)
		if err != nil {
			return fmt.Errorf("failed to seed demo account: %w", err)
		}
		log.WithFields(logrus.Fields{"email": gateway.DemoEmail, "user_id": userID}).Info("Seeded demo account")
	}

	stmts := statement.NewManager(cfg.Statements.TTL)
	defer stmts.Close()

	stmtHandler := handlers.NewStatementsHandler(gw, stmts, gw.Adapter(), log)
	stmtHandler.SetAsyncTimeout(cfg.Statements.AsyncTimeout)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	stmtHandler.Routes(r)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithFields(logrus.Fields{"port": cfg.Server.Port, "adapter": gw.Adapter()}).Info("Starting PocketSaver gateway")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("Shutting down gateway")
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
