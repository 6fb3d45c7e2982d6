package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/bulletmania/internal/auth"
	"github.com/jason-s-yu/bulletmania/internal/middleware"
	"github.com/jason-s-yu/bulletmania/internal/models"
	"github.com/jason-s-yu/bulletmania/internal/transport"
	"github.com/sirupsen/logrus"
)

// GameServer is a minimal stand-in for a room's game process. It accepts
// player websockets at /{roomId}, relays chat, records nicknames and ends the
// game when a player reports a win.
type GameServer struct {
	dir    Directory
	signer *auth.Signer
	logger *logrus.Logger

	// PingInterval is how often idle connections are pinged, and PingTimeout
	// how long a pong may take before the player is dropped.
	PingInterval time.Duration
	PingTimeout  time.Duration

	mu    sync.Mutex
	rooms map[string]*room
}

type room struct {
	id      string
	players map[string]*player
	ended   bool
}

// player fields other than id and conn are guarded by GameServer.mu.
type player struct {
	id     string
	conn   *websocket.Conn
	out    chan []byte
	closed bool
	code   websocket.StatusCode
	reason string
}

// inbound is a message sent by a player.
type inbound struct {
	Type     string `json:"type"`
	Nickname string `json:"nickname,omitempty"`
	Msg      string `json:"msg,omitempty"`
}

func NewGameServer(dir Directory, signer *auth.Signer, logger *logrus.Logger) *GameServer {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &GameServer{
		dir:          dir,
		signer:       signer,
		logger:       logger,
		PingInterval: 30 * time.Second,
		PingTimeout:  15 * time.Second,
		rooms:        make(map[string]*room),
	}
}

func (g *GameServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	roomID := strings.Trim(r.URL.Path, "/")
	if roomID == "" {
		http.Error(w, "missing room id", http.StatusNotFound)
		return
	}
	info, err := g.dir.Get(r.Context(), roomID)
	if errors.Is(err, ErrLobbyNotFound) {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	if err != nil {
		g.logger.Errorf("Room %s: lookup failed: %v", roomID, err)
		http.Error(w, "failed to read room", http.StatusInternalServerError)
		return
	}

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{transport.Subprotocol},
		InsecureSkipVerify: true,
	})
	if err != nil {
		g.logger.Warnf("Room %s: websocket accept error: %v", roomID, err)
		return
	}
	defer c.CloseNow()

	if c.Subprotocol() != transport.Subprotocol {
		c.Close(BadSubprotocolError, "client must speak the game subprotocol")
		return
	}
	claims, err := g.signer.Verify(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	if err != nil {
		g.logger.Warnf("Room %s: rejected token from %s: %v", roomID, r.RemoteAddr, err)
		c.Close(InvalidAuthTokenError, "invalid auth token")
		return
	}
	if info.IsGameEnd() {
		c.Close(RoomEndedError, "game has ended")
		return
	}

	p := &player{id: claims.PlayerID, conn: c, out: make(chan []byte, 32)}
	if code, reason, ok := g.join(info, p); !ok {
		c.Close(code, reason)
		return
	}
	middleware.LogRoomJoin(g.logger, roomID, p.id, r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	g.mu.Lock()
	g.sendLocked(p, map[string]interface{}{
		"type":      "welcome",
		"roomId":    roomID,
		"playerId":  p.id,
		"nicknames": info.State.PlayerNicknameMap,
	})
	g.broadcastLocked(roomID, p, map[string]interface{}{"type": "player_joined", "playerId": p.id})
	g.mu.Unlock()

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		g.writePump(ctx, p)
	}()

	err = g.readPump(ctx, roomID, p)
	g.leave(roomID, p)
	<-writeDone
	middleware.LogRoomLeave(g.logger, roomID, p.id, err)
}

// join registers p in its room, replacing any earlier connection by the same
// player. It reports false with a close code when the room cannot take p.
func (g *GameServer) join(info *models.LobbyInfo, p *player) (websocket.StatusCode, string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rm, ok := g.rooms[info.RoomID]
	if !ok {
		rm = &room{id: info.RoomID, players: make(map[string]*player)}
		g.rooms[info.RoomID] = rm
	}
	if rm.ended {
		return RoomEndedError, "game has ended", false
	}
	if prev, ok := rm.players[p.id]; ok {
		g.finishLocked(prev, websocket.StatusPolicyViolation, "connected from another client")
	} else if capacity := info.InitialConfig.Capacity; capacity > 0 && len(rm.players) >= capacity {
		return RoomFullError, "room is full", false
	}
	rm.players[p.id] = p
	if info.State == nil {
		info.State = &models.LobbyState{PlayerNicknameMap: map[string]string{}}
	}
	return 0, "", true
}

func (g *GameServer) leave(roomID string, p *player) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.finishLocked(p, websocket.StatusNormalClosure, "")
	rm, ok := g.rooms[roomID]
	if !ok || rm.players[p.id] != p {
		return
	}
	delete(rm.players, p.id)
	if len(rm.players) == 0 {
		delete(g.rooms, roomID)
		return
	}
	g.broadcastLocked(roomID, nil, map[string]interface{}{"type": "player_left", "playerId": p.id})
}

// readPump reads player messages until the connection ends. Normal closes
// return nil.
func (g *GameServer) readPump(ctx context.Context, roomID string, p *player) error {
	for {
		typ, data, err := p.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			continue
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			g.logger.Warnf("Room %s: invalid json from %s: %v", roomID, p.id, err)
			g.reply(p, map[string]interface{}{"type": "error", "msg": "invalid JSON"})
			continue
		}
		g.handleMessage(ctx, roomID, p, msg)
	}
}

func (g *GameServer) handleMessage(ctx context.Context, roomID string, p *player, msg inbound) {
	switch msg.Type {
	case "nickname":
		nickname := strings.TrimSpace(msg.Nickname)
		if nickname == "" {
			g.reply(p, map[string]interface{}{"type": "error", "msg": "nickname must not be empty"})
			return
		}
		_, err := g.dir.UpdateState(ctx, roomID, func(s *models.LobbyState) {
			s.PlayerNicknameMap[p.id] = nickname
		})
		if err != nil {
			g.logger.Errorf("Room %s: failed to store nickname for %s: %v", roomID, p.id, err)
			g.reply(p, map[string]interface{}{"type": "error", "msg": "failed to store nickname"})
			return
		}
		g.mu.Lock()
		g.broadcastLocked(roomID, nil, map[string]interface{}{"type": "nickname", "playerId": p.id, "nickname": nickname})
		g.mu.Unlock()

	case "chat":
		g.mu.Lock()
		g.broadcastLocked(roomID, nil, map[string]interface{}{"type": "chat", "playerId": p.id, "msg": msg.Msg})
		g.mu.Unlock()

	case "win":
		g.endGame(ctx, roomID, p.id)

	default:
		g.reply(p, map[string]interface{}{"type": "error", "msg": "unknown message type: " + msg.Type})
	}
}

// endGame records winnerID as the winner, tells every player and then closes
// all connections normally. The lobby state is written before any connection
// closes so that clients refetching it on close see the result.
func (g *GameServer) endGame(ctx context.Context, roomID, winnerID string) {
	info, err := g.dir.UpdateState(ctx, roomID, func(s *models.LobbyState) {
		s.IsGameEnd = true
		s.WinningPlayerID = winnerID
	})
	if err != nil {
		g.logger.Errorf("Room %s: failed to record winner %s: %v", roomID, winnerID, err)
		return
	}
	g.logger.WithFields(logrus.Fields{"room": roomID, "winner": winnerID}).Info("game ended")

	g.mu.Lock()
	defer g.mu.Unlock()
	rm, ok := g.rooms[roomID]
	if !ok {
		return
	}
	rm.ended = true
	g.broadcastLocked(roomID, nil, map[string]interface{}{
		"type":     "game_end",
		"winner":   winnerID,
		"nickname": info.State.PlayerNicknameMap[winnerID],
	})
	for _, pl := range rm.players {
		g.finishLocked(pl, websocket.StatusNormalClosure, "game over")
	}
}

func (g *GameServer) reply(p *player, v interface{}) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sendLocked(p, v)
}

func (g *GameServer) broadcastLocked(roomID string, except *player, v interface{}) {
	rm, ok := g.rooms[roomID]
	if !ok {
		return
	}
	for _, pl := range rm.players {
		if pl != except {
			g.sendLocked(pl, v)
		}
	}
}

func (g *GameServer) sendLocked(p *player, v interface{}) {
	if p.closed {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		g.logger.Warnf("failed to marshal message for %s: %v", p.id, err)
		return
	}
	select {
	case p.out <- data:
	default:
		g.logger.Warnf("outbound buffer full for %s, dropping message", p.id)
	}
}

// finishLocked stops accepting messages for p. Its write pump flushes what is
// queued and then closes the connection with code.
func (g *GameServer) finishLocked(p *player, code websocket.StatusCode, reason string) {
	if p.closed {
		return
	}
	p.closed = true
	p.code = code
	p.reason = reason
	close(p.out)
}

func (g *GameServer) writePump(ctx context.Context, p *player) {
	ticker := time.NewTicker(g.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-p.out:
			if !ok {
				g.mu.Lock()
				code, reason := p.code, p.reason
				g.mu.Unlock()
				_ = p.conn.Close(code, reason)
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := p.conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				g.logger.Warnf("failed to write to %s: %v", p.id, err)
				p.conn.CloseNow()
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, g.PingTimeout)
			err := p.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				g.logger.Warnf("failed to ping %s: %v, assuming disconnect", p.id, err)
				p.conn.CloseNow()
				return
			}
		}
	}
}
