// internal/session/controller.go
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jason-s-yu/bulletmania/internal/models"
	"github.com/jason-s-yu/bulletmania/internal/readiness"
	"github.com/sirupsen/logrus"
)

// NormalClosure is the close code used when a connection is replaced or the
// controller shuts down.
const NormalClosure = 1000

var (
	// ErrConnectFailed wraps dial errors after a room resolved successfully.
	ErrConnectFailed = errors.New("failed to connect")
	// ErrEmptyNickname is returned by AckNickname for a blank name.
	ErrEmptyNickname = errors.New("nickname must not be empty")
)

// Resolver waits until a room can be connected to.
type Resolver interface {
	ResolveConnection(ctx context.Context, roomID string) (*readiness.Result, error)
}

// LobbyFetcher re-reads lobby records after a connection closes.
type LobbyFetcher interface {
	GetLobbyInfo(ctx context.Context, roomID string) (*models.LobbyInfo, error)
}

// Conn is a connection handle. Done must be closed exactly once when the
// underlying transport closes, including after Disconnect.
type Conn interface {
	Done() <-chan struct{}
	Disconnect(code int) error
}

// Dialer opens connections to resolved rooms.
type Dialer interface {
	Open(ctx context.Context, roomID string, details models.ConnectionDetails) (Conn, error)
}

// DialFunc adapts a function to Dialer.
type DialFunc func(ctx context.Context, roomID string, details models.ConnectionDetails) (Conn, error)

func (f DialFunc) Open(ctx context.Context, roomID string, details models.ConnectionDetails) (Conn, error) {
	return f(ctx, roomID, details)
}

// Controller owns the current room: it resolves it, holds at most one live
// connection to it, and reconciles lobby metadata when that connection closes.
//
// Every room change starts a new generation. Work started for an older
// generation never changes the controller's state.
type Controller struct {
	resolver Resolver
	lobbies  LobbyFetcher
	dialer   Dialer
	logger   *logrus.Logger

	// RefetchTimeout bounds the lobby lookup made after a connection closes.
	RefetchTimeout time.Duration

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu              sync.Mutex
	generation      uint64
	cancelResolve   context.CancelFunc
	roomID          string
	state           State
	metadata        *models.SessionMetadata
	failedToConnect bool
	roomIDNotFound  string
	err             error
	conn            Conn
	nickname        string
	nicknameAcked   bool
	closed          bool

	subscribers map[int]chan Snapshot
	nextSubID   int
}

// New builds a Controller in StateIdle.
func New(resolver Resolver, lobbies LobbyFetcher, dialer Dialer, logger *logrus.Logger) *Controller {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		resolver:       resolver,
		lobbies:        lobbies,
		dialer:         dialer,
		logger:         logger,
		RefetchTimeout: 10 * time.Second,
		baseCtx:        ctx,
		baseCancel:     cancel,
		subscribers:    make(map[int]chan Snapshot),
	}
}

// Navigate makes roomID the current room and, if it differs from the
// tracked one, runs a resolve cycle for it. It blocks until the cycle has
// been applied or discarded. An empty roomID returns to StateIdle and closes
// any live connection. Navigating to the room already tracked is a no-op,
// whatever state it is in.
//
// Failures never escape: they are recorded as StateRoomNotFound.
func (c *Controller) Navigate(ctx context.Context, roomID string) {
	c.mu.Lock()
	if c.closed || roomID == c.roomID {
		c.mu.Unlock()
		return
	}
	if c.cancelResolve != nil {
		c.cancelResolve()
		c.cancelResolve = nil
	}
	c.generation++
	gen := c.generation
	c.roomID = roomID
	c.metadata = nil
	c.failedToConnect = false
	c.roomIDNotFound = ""
	c.err = nil
	c.nickname = ""
	c.nicknameAcked = false

	var stale Conn
	if roomID == "" {
		stale = c.conn
		c.conn = nil
		c.state = StateIdle
	} else {
		c.state = StateResolving
	}
	resolveCtx, cancel := context.WithCancel(ctx)
	c.cancelResolve = cancel
	snap := c.snapshotLocked()
	c.mu.Unlock()
	defer cancel()

	c.disconnect(stale)
	c.publish(snap)
	if roomID == "" {
		return
	}

	c.logger.Infof("Room %s: resolving (generation %d)", roomID, gen)
	res, err := c.resolver.ResolveConnection(resolveCtx, roomID)
	if err != nil {
		c.fail(gen, roomID, err)
		return
	}
	if res.LobbyInfo.IsGameEnd() {
		c.applyEnded(gen, res)
		return
	}
	c.connect(resolveCtx, gen, roomID, res)
}

// connect replaces the live connection with a new one to the resolved room.
func (c *Controller) connect(ctx context.Context, gen uint64, roomID string, res *readiness.Result) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		c.logger.Debugf("Room %s: discarding stale resolve result (generation %d)", roomID, gen)
		return
	}
	prev := c.conn
	c.conn = nil
	c.mu.Unlock()

	// The predecessor is fully closed before the replacement is dialed.
	c.disconnect(prev)

	conn, err := c.dialer.Open(ctx, roomID, res.ConnectionInfo)
	if err != nil {
		c.fail(gen, roomID, fmt.Errorf("%w: %s: %w", ErrConnectFailed, roomID, err))
		return
	}

	c.mu.Lock()
	if gen != c.generation || c.closed {
		c.mu.Unlock()
		c.logger.Debugf("Room %s: superseded while dialing, closing new connection", roomID)
		c.disconnect(conn)
		return
	}
	c.conn = conn
	md := models.NewSessionMetadata(res.LobbyInfo, res.ConnectionInfo)
	c.metadata = &md
	c.state = StateConnected
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Infof("Room %s: connected to %s", roomID, res.ConnectionInfo)
	c.publish(snap)
	go c.watch(gen, roomID, res.ConnectionInfo, conn)
}

// watch waits for conn to close, then re-reads the lobby and marks the
// session disconnected. Closes of superseded connections are ignored.
func (c *Controller) watch(gen uint64, roomID string, details models.ConnectionDetails, conn Conn) {
	select {
	case <-conn.Done():
	case <-c.baseCtx.Done():
		return
	}
	if !c.owns(gen, conn) {
		return
	}
	c.logger.Infof("Room %s: connection closed, refreshing lobby info", roomID)

	ctx, cancel := context.WithTimeout(c.baseCtx, c.RefetchTimeout)
	info, err := c.lobbies.GetLobbyInfo(ctx, roomID)
	cancel()

	c.mu.Lock()
	if gen != c.generation || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	if err != nil {
		c.logger.Warnf("Room %s: lobby refresh after close failed: %v", roomID, err)
	} else {
		md := models.NewSessionMetadata(info, details)
		c.metadata = &md
	}
	c.failedToConnect = true
	c.state = StateDisconnected
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.publish(snap)
}

func (c *Controller) owns(gen uint64, conn Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.generation && c.conn == conn
}

func (c *Controller) applyEnded(gen uint64, res *readiness.Result) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	prev := c.conn
	c.conn = nil
	md := models.NewSessionMetadata(res.LobbyInfo, res.ConnectionInfo)
	md.IsGameEnd = true
	c.metadata = &md
	c.state = StateEnded
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Infof("Room %s: game already ended, not connecting", md.RoomID)
	c.disconnect(prev)
	c.publish(snap)
}

func (c *Controller) fail(gen uint64, roomID string, err error) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		c.logger.Debugf("Room %s: discarding stale failure: %v", roomID, err)
		return
	}
	prev := c.conn
	c.conn = nil
	c.roomIDNotFound = roomID
	c.err = err
	c.state = StateRoomNotFound
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Warnf("Room %s: %v", roomID, err)
	c.disconnect(prev)
	c.publish(snap)
}

func (c *Controller) disconnect(conn Conn) {
	if conn == nil {
		return
	}
	if err := conn.Disconnect(NormalClosure); err != nil {
		c.logger.Debugf("disconnect: %v", err)
	}
}

// AckNickname records that the player confirmed a display name. Until then
// Connection withholds the handle from the renderer.
func (c *Controller) AckNickname(nickname string) error {
	if nickname == "" {
		return ErrEmptyNickname
	}
	c.mu.Lock()
	c.nickname = nickname
	c.nicknameAcked = true
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.publish(snap)
	return nil
}

// Connection returns the live handle once the nickname is acknowledged.
func (c *Controller) Connection() (Conn, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || !c.nicknameAcked {
		return nil, false
	}
	return c.conn, true
}

// Snapshot returns a copy of the controller's current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe returns a channel receiving a Snapshot after every change, and a
// function to stop the subscription. Slow subscribers miss updates rather
// than blocking the controller.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 16)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = ch
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			if sub, ok := c.subscribers[id]; ok {
				delete(c.subscribers, id)
				close(sub)
			}
			c.mu.Unlock()
		})
	}
}

func (c *Controller) publish(snap Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.subscribers {
		select {
		case ch <- snap:
		default:
			c.logger.Debugf("Room %s: subscriber full, dropped %s snapshot", snap.RoomID, snap.State)
		}
	}
}

// Close tears down the live connection and ends all subscriptions.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.generation++
	if c.cancelResolve != nil {
		c.cancelResolve()
	}
	conn := c.conn
	c.conn = nil
	subs := c.subscribers
	c.subscribers = map[int]chan Snapshot{}
	c.mu.Unlock()

	c.disconnect(conn)
	c.baseCancel()
	for _, ch := range subs {
		close(ch)
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		RoomID:          c.roomID,
		State:           c.state,
		FailedToConnect: c.failedToConnect,
		RoomIDNotFound:  c.roomIDNotFound,
		Err:             c.err,
		Nickname:        c.nickname,
		NicknameAcked:   c.nicknameAcked,
		Connected:       c.conn != nil,
	}
	if c.metadata != nil {
		md := c.metadata.Clone()
		snap.Metadata = &md
	}
	return snap
}
