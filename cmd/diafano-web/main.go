package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	diafano "github.com/eldiafano/diafano"
	"github.com/eldiafano/diafano/internal/auth"
	"github.com/eldiafano/diafano/internal/config"
)

func main() {
	configPath := flag.String("config", "", "config file path (default: "+config.DefaultPath+")")
	addr := flag.String("addr", "", "listen address (default from config)")
	migrate := flag.Bool("migrate", false, "create missing tables before serving")
	flag.Parse()

	if err := run(*configPath, *addr, *migrate); err != nil {
		fmt.Fprintf(os.Stderr, "diafano-web: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, addr string, migrate bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := cfg.NewLogger()
	slog.SetDefault(log)
	if addr == "" {
		addr = cfg.Server.Addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := diafano.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer engine.Close()

	if migrate {
		if err := engine.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	var jwt *auth.JWTManager
	if cfg.API.AdminSecret != "" {
		if jwt, err = auth.NewJWTManager(cfg.API.AdminSecret, "", 0); err != nil {
			return err
		}
	} else {
		log.Warn("api.admin_secret not set, admin API disabled")
	}
	if cfg.API.Secret == "" {
		log.Warn("api.secret not set, every write request will be rejected")
	}

	srv := &http.Server{
		Addr:         addr,
		Handler:      logging(log, recovery(log, newRouter(engine, jwt, log))),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("stopped")
	return nil
}
