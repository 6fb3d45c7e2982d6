package readiness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jason-s-yu/bulletmania/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultInterval is the wait between connection-info lookups.
	DefaultInterval = time.Second
	// DefaultMaxAttempts bounds the number of connection-info lookups.
	DefaultMaxAttempts = 50
)

var (
	// ErrRoomNotFound means the lobby record could not be fetched, or a lookup
	// failed while waiting for the room. It is never retried.
	ErrRoomNotFound = errors.New("room not found")
	// ErrPollTimeout means the room never exposed a port within the attempt budget.
	ErrPollTimeout = errors.New("polling timed out")
)

// LobbyInfoGetter fetches lobby records.
type LobbyInfoGetter interface {
	GetLobbyInfo(ctx context.Context, roomID string) (*models.LobbyInfo, error)
}

// ConnectionInfoGetter fetches a room's connection info.
type ConnectionInfoGetter interface {
	GetConnectionInfo(ctx context.Context, roomID string) (*models.ConnectionInfo, error)
}

// Result is a room that is ready to be connected to.
type Result struct {
	LobbyInfo      *models.LobbyInfo
	ConnectionInfo models.ConnectionDetails
}

// Poller waits for dynamically provisioned rooms to become reachable.
// A Poller is safe for concurrent use with different room ids; it does not
// deduplicate concurrent calls for the same room.
type Poller struct {
	lobbies LobbyInfoGetter
	rooms   ConnectionInfoGetter
	logger  *logrus.Logger

	Interval    time.Duration
	MaxAttempts int
	Sleep       Sleeper
}

// NewPoller builds a Poller with the default 50 x 1s budget.
func NewPoller(lobbies LobbyInfoGetter, rooms ConnectionInfoGetter, logger *logrus.Logger) *Poller {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Poller{
		lobbies:     lobbies,
		rooms:       rooms,
		logger:      logger,
		Interval:    DefaultInterval,
		MaxAttempts: DefaultMaxAttempts,
		Sleep:       RealSleeper,
	}
}

// ResolveConnection fetches the lobby for roomID and waits until its game
// server exposes a port. Local rooms resolve to LocalConnectionDetails
// without any connection-info lookups.
func (p *Poller) ResolveConnection(ctx context.Context, roomID string) (*Result, error) {
	if roomID == "" {
		return nil, fmt.Errorf("%w: empty room id", ErrRoomNotFound)
	}

	lobbyInfo, err := p.lobbies.GetLobbyInfo(ctx, roomID)
	if err != nil {
		p.logger.Warnf("Room %s: lobby lookup failed: %v", roomID, err)
		return nil, fmt.Errorf("%w: %s: %w", ErrRoomNotFound, roomID, err)
	}

	if lobbyInfo.Visibility == models.VisibilityLocal {
		p.logger.Debugf("Room %s: local room, using %s", roomID, models.LocalConnectionDetails)
		return &Result{LobbyInfo: lobbyInfo, ConnectionInfo: models.LocalConnectionDetails}, nil
	}

	attempts := 0
	info, err := Poll(ctx,
		func(ctx context.Context) (*models.ConnectionInfo, error) {
			attempts++
			return p.rooms.GetConnectionInfo(ctx, roomID)
		},
		func(ci *models.ConnectionInfo) bool {
			return ci != nil && ci.ExposedPort != nil
		},
		p.Interval, p.MaxAttempts, p.Sleep,
	)
	switch {
	case err == nil:
	case errors.Is(err, ErrMaxAttempts):
		p.logger.Warnf("Room %s: no exposed port after %d attempts", roomID, attempts)
		return nil, fmt.Errorf("%w: %s after %d attempts", ErrPollTimeout, roomID, attempts)
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		p.logger.Warnf("Room %s: connection info lookup failed on attempt %d: %v", roomID, attempts, err)
		return nil, fmt.Errorf("%w: %s: %w", ErrRoomNotFound, roomID, err)
	}

	details := info.ExposedPort.Details()
	p.logger.Infof("Room %s: ready at %s after %d attempt(s)", roomID, details, attempts)
	return &Result{LobbyInfo: lobbyInfo, ConnectionInfo: details}, nil
}
