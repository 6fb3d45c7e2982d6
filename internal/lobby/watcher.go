package lobby

import (
	"context"
	"io"
	"time"

	"github.com/jason-s-yu/bulletmania/internal/models"
	"github.com/sirupsen/logrus"
)

// DefaultListInterval is how often the public lobby list is refreshed.
const DefaultListInterval = 2 * time.Second

// PublicLister lists joinable lobbies.
type PublicLister interface {
	ListActivePublicLobbies(ctx context.Context, region models.Region) ([]models.LobbyInfo, error)
}

// Watcher keeps a public lobby list fresh.
type Watcher struct {
	client   PublicLister
	logger   *logrus.Logger
	Region   models.Region
	Interval time.Duration
}

func NewWatcher(client PublicLister, logger *logrus.Logger) *Watcher {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Watcher{client: client, logger: logger, Interval: DefaultListInterval}
}

// Run lists lobbies immediately and then every Interval, passing each list to
// fn, until ctx is done. Failed lookups are logged and skipped.
func (w *Watcher) Run(ctx context.Context, fn func([]models.LobbyInfo)) error {
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultListInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		lobbies, err := w.client.ListActivePublicLobbies(ctx, w.Region)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Warnf("list public lobbies: %v", err)
		} else {
			fn(lobbies)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
