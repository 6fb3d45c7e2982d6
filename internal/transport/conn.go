package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
)

// NormalClosure is the close code sent when the client leaves a room on purpose.
const NormalClosure = int(websocket.StatusNormalClosure)

// DefaultPingTimeout bounds how long a ping waits for its pong.
const DefaultPingTimeout = 15 * time.Second

// ErrClosed is returned by Send once the connection has closed.
var ErrClosed = errors.New("connection closed")

// Conn is a live connection to a room's game server. The renderer drains
// Messages; the session controller waits on Done.
type Conn struct {
	RoomID string

	ws       *websocket.Conn
	logger   *logrus.Logger
	messages chan []byte
	cancel   context.CancelFunc

	pingInterval time.Duration
	pingTimeout  time.Duration
	dropped      atomic.Int64

	closeOnce   sync.Once
	done        chan struct{}
	mu          sync.Mutex
	closeStatus websocket.StatusCode
	closeErr    error
	localClose  bool
}

func newConn(roomID string, ws *websocket.Conn, logger *logrus.Logger, pingInterval, pingTimeout time.Duration) *Conn {
	if pingTimeout <= 0 {
		pingTimeout = DefaultPingTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		RoomID:       roomID,
		ws:           ws,
		logger:       logger,
		messages:     make(chan []byte, 64),
		cancel:       cancel,
		pingInterval: pingInterval,
		pingTimeout:  pingTimeout,
		done:         make(chan struct{}),
		closeStatus:  -1,
	}
	go c.readPump(ctx)
	if pingInterval > 0 {
		go c.pingPump(ctx)
	}
	return c
}

// Messages yields inbound game messages. It is closed after Done.
func (c *Conn) Messages() <-chan []byte {
	return c.messages
}

// Done is closed exactly once, when the connection has closed for any reason.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// CloseStatus reports the code passed to Disconnect, else the close code
// received from the peer, or -1 if the connection ended without a close
// frame. Only meaningful after Done.
func (c *Conn) CloseStatus() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int(c.closeStatus)
}

// Err is the error that ended the read loop, if any.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeErr
}

// Dropped is how many inbound messages were discarded because Messages was
// not drained fast enough.
func (c *Conn) Dropped() int64 {
	return c.dropped.Load()
}

// Send writes a text message to the game server.
func (c *Conn) Send(ctx context.Context, data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.ws.Write(writeCtx, websocket.MessageText, data)
}

// Disconnect closes the connection with the given close code.
func (c *Conn) Disconnect(code int) error {
	c.mu.Lock()
	if !c.localClose {
		c.localClose = true
		c.closeStatus = websocket.StatusCode(code)
	}
	c.mu.Unlock()
	err := c.ws.Close(websocket.StatusCode(code), "client disconnect")
	c.finish(websocket.StatusCode(code), nil)
	return err
}

func (c *Conn) finish(status websocket.StatusCode, err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		if !c.localClose {
			c.closeStatus = status
			c.closeErr = err
		}
		c.mu.Unlock()
		c.cancel()
		close(c.done)
	})
}

// readPump drains the socket until it closes.
func (c *Conn) readPump(ctx context.Context) {
	defer close(c.messages)
	for {
		typ, msg, err := c.ws.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				c.logger.Infof("Room %s: connection closed normally (%d)", c.RoomID, status)
				err = nil
			} else if ctx.Err() == nil {
				c.logger.Warnf("Room %s: read error: %v (CloseStatus: %d)", c.RoomID, err, status)
			}
			c.finish(status, err)
			return
		}
		if typ != websocket.MessageText && typ != websocket.MessageBinary {
			continue
		}
		select {
		case c.messages <- msg:
		default:
			// Never block here: the close frame must still be observed.
			n := c.dropped.Add(1)
			c.logger.Warnf("Room %s: inbound buffer full, dropped %d byte message (%d dropped so far)", c.RoomID, len(msg), n)
		}
	}
}

// pingPump pings the server every pingInterval. A ping that gets no pong
// within pingTimeout ends the connection.
func (c *Conn) pingPump(ctx context.Context) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, c.pingTimeout)
			err := c.ws.Ping(pingCtx)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				c.logger.Warnf("Room %s: ping failed: %v. Assuming disconnect.", c.RoomID, err)
				c.finish(-1, fmt.Errorf("ping: %w", err))
				c.ws.CloseNow()
				return
			}
		}
	}
}
