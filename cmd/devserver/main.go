// cmd/devserver/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/jason-s-yu/bulletmania/internal/auth"
	"github.com/jason-s-yu/bulletmania/internal/config"
	"github.com/jason-s-yu/bulletmania/internal/devserver"
	"github.com/jason-s-yu/bulletmania/internal/logging"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.LoadDevServer()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var dir devserver.Directory = devserver.NewMemoryDirectory()
	if cfg.DatabaseURL != "" {
		pool, err := devserver.ConnectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("postgres: %v", err)
		}
		defer pool.Close()
		pg, err := devserver.NewPgDirectory(ctx, pool)
		if err != nil {
			logger.Fatalf("postgres: %v", err)
		}
		dir = pg
		logger.Info("storing lobbies in postgres")
	}

	signer, err := auth.NewSigner(cfg.TokenTTL)
	if err != nil {
		logger.Fatalf("signer: %v", err)
	}

	api := devserver.NewAPI(devserver.APIOptions{
		AppID:          cfg.AppID,
		GameHost:       cfg.GameHost,
		GamePort:       cfg.GamePort,
		ProvisionDelay: cfg.ProvisionDelay,
	}, dir, signer, logger)

	servers := []*http.Server{
		{Addr: cfg.HTTPAddr, Handler: api.Router(), ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second},
		{Addr: cfg.GameAddr, Handler: devserver.NewGameServer(dir, signer, logger)},
	}

	errc := make(chan error, len(servers))
	for _, srv := range servers {
		srv := srv
		go func() {
			logger.Infof("listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- err
			}
		}()
	}

	select {
	case err := <-errc:
		logger.Errorf("failed to serve: %v", err)
	case <-ctx.Done():
		logger.Info("terminating")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("shutdown %s: %v", srv.Addr, err)
		}
	}
}
