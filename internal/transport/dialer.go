package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/bulletmania/internal/models"
	"github.com/sirupsen/logrus"
)

// Subprotocol is negotiated with the game server.
const Subprotocol = "game"

// ErrUnsupportedTransport is returned for transport types that cannot be
// carried over a websocket.
var ErrUnsupportedTransport = errors.New("unsupported transport type")

// Dialer opens game connections for a single player.
type Dialer struct {
	Token  string
	Logger *logrus.Logger
	// Insecure forces ws:// even for remote hosts.
	Insecure     bool
	PingInterval time.Duration
	// PingTimeout bounds each ping (0 => DefaultPingTimeout).
	PingTimeout  time.Duration
	HTTPClient   *http.Client
}

// Open connects to roomID's game server at details.
func (d *Dialer) Open(ctx context.Context, roomID string, details models.ConnectionDetails) (*Conn, error) {
	u, err := d.roomURL(roomID, details)
	if err != nil {
		return nil, err
	}
	logger := d.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	header := http.Header{}
	if d.Token != "" {
		header.Set("Authorization", "Bearer "+d.Token)
	}
	ws, _, err := websocket.Dial(ctx, u, &websocket.DialOptions{
		HTTPClient:   d.HTTPClient,
		HTTPHeader:   header,
		Subprotocols: []string{Subprotocol},
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u, err)
	}
	ws.SetReadLimit(1 << 20)

	logger.Infof("Room %s: connected to %s", roomID, details)
	return newConn(roomID, ws, logger, d.PingInterval, d.PingTimeout), nil
}

func (d *Dialer) roomURL(roomID string, details models.ConnectionDetails) (string, error) {
	var scheme string
	switch details.TransportType {
	case models.TransportTLS:
		scheme = "wss"
	case models.TransportTCP, models.TransportWS:
		scheme = "wss"
		if d.Insecure || isLoopback(details.Host) {
			scheme = "ws"
		}
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedTransport, details.TransportType)
	}
	u := url.URL{
		Scheme: scheme,
		Host:   details.Addr(),
		Path:   "/" + url.PathEscape(roomID),
	}
	return u.String(), nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
