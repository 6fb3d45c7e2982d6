package lobby

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jason-s-yu/bulletmania/internal/auth"
	"github.com/jason-s-yu/bulletmania/internal/models"
	"github.com/jason-s-yu/bulletmania/internal/orchestrator"
	"github.com/jason-s-yu/bulletmania/internal/readiness"
	"github.com/sirupsen/logrus"
)

var (
	// ErrLobbyCreationFailed wraps every failure of Creator.Create.
	ErrLobbyCreationFailed = errors.New("failed to create lobby")
	// ErrGoogleSignInRequired is returned when an anonymous player tries to
	// create a non-local lobby.
	ErrGoogleSignInRequired = errors.New("Google sign-in is required to create a match")
)

// LobbyCreator provisions lobbies.
type LobbyCreator interface {
	CreateLobby(ctx context.Context, playerToken string, req orchestrator.CreateLobbyRequest) (*models.LobbyInfo, error)
}

// Waiter blocks until a room is reachable.
type Waiter interface {
	ResolveConnection(ctx context.Context, roomID string) (*readiness.Result, error)
}

// Creator creates lobbies and waits for them to be ready to join.
type Creator struct {
	client  LobbyCreator
	waiter  Waiter
	logger  *logrus.Logger
	DevMode bool
}

func NewCreator(client LobbyCreator, waiter Waiter, logger *logrus.Logger) *Creator {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Creator{client: client, waiter: waiter, logger: logger}
}

// Create provisions a lobby for the player and returns its room id once the
// room's server is reachable.
func (c *Creator) Create(ctx context.Context, token auth.Token, opts Options) (string, error) {
	if err := opts.Validate(c.DevMode); err != nil {
		return "", fmt.Errorf("%w: %w", ErrLobbyCreationFailed, err)
	}
	if !token.IsGoogle() && opts.Visibility != models.VisibilityLocal {
		return "", fmt.Errorf("%w: %w", ErrLobbyCreationFailed, ErrGoogleSignInRequired)
	}

	req, err := orchestrator.NewCreateLobbyRequest(opts.Visibility, opts.Region, opts.RoomConfig())
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrLobbyCreationFailed, err)
	}
	info, err := c.client.CreateLobby(ctx, token.Value, req)
	if err != nil {
		c.logger.Warnf("create lobby failed: %v", err)
		return "", fmt.Errorf("%w: %w", ErrLobbyCreationFailed, err)
	}
	c.logger.WithFields(logrus.Fields{
		"room":       info.RoomID,
		"visibility": opts.Visibility,
		"region":     opts.Region,
	}).Info("lobby created, waiting for room")

	if _, err := c.waiter.ResolveConnection(ctx, info.RoomID); err != nil {
		return "", fmt.Errorf("%w: room %s: %w", ErrLobbyCreationFailed, info.RoomID, err)
	}
	return info.RoomID, nil
}
