package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/jason-s-yu/bulletmania/internal/auth"
	"github.com/jason-s-yu/bulletmania/internal/config"
	"github.com/jason-s-yu/bulletmania/internal/logging"
	"github.com/jason-s-yu/bulletmania/internal/orchestrator"
	"github.com/jason-s-yu/bulletmania/internal/readiness"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

const usage = `usage: lobby <command> [flags]

commands:
  list    [-watch] [-region R]                          list public lobbies
  create  [-visibility V] [-region R] [-capacity N] [-score N]
                                                        create a lobby and wait until it is ready
  join    [-nickname NAME] <roomId>                     join a room and relay chat from stdin
  logout                                                forget the stored session token
`

// app holds the services every command shares.
type app struct {
	cfg      config.Client
	logger   *logrus.Logger
	client   *orchestrator.Client
	provider *auth.Provider
	poller   *readiness.Poller
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.LoadClient()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("%v", err)
	}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "list":
		err = a.list(ctx, args)
	case "create":
		err = a.create(ctx, args)
	case "join":
		err = a.join(ctx, args)
	case "logout":
		err = a.provider.Logout(ctx)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp(ctx context.Context, cfg config.Client, logger *logrus.Logger) (*app, error) {
	client := orchestrator.New(cfg.OrchestratorURL, cfg.AppID, orchestrator.WithLogger(logger))

	var store auth.Store = auth.NewMemoryStore()
	if cfg.RedisAddr != "" {
		rdb, err := auth.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("session store: %w", err)
		}
		store = auth.NewRedisStore(rdb, cfg.SessionID, cfg.SessionTTL)
	}

	poller := readiness.NewPoller(client, client, logger)
	poller.Interval = cfg.PollInterval
	poller.MaxAttempts = cfg.PollMaxAttempts

	return &app{
		cfg:      cfg,
		logger:   logger,
		client:   client,
		provider: auth.NewProvider(client, store, logger),
		poller:   poller,
	}, nil
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	return fs
}
